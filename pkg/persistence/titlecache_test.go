package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("market not found")

func TestTitleCacheServesFromCacheWithinTTL(t *testing.T) {
	calls := 0
	load := func(ctx context.Context, marketID string) (string, error) {
		calls++
		return "Will it rain tomorrow?", nil
	}
	c, err := NewTitleCache(16, time.Minute, load)
	require.NoError(t, err)

	title1, err := c.Title(context.Background(), "mkt-1")
	require.NoError(t, err)
	require.Equal(t, "Will it rain tomorrow?", title1)

	title2, err := c.Title(context.Background(), "mkt-1")
	require.NoError(t, err)
	require.Equal(t, title1, title2)
	require.Equal(t, 1, calls, "second lookup within TTL must not hit load")
}

func TestTitleCacheReloadsAfterTTLExpiry(t *testing.T) {
	calls := 0
	load := func(ctx context.Context, marketID string) (string, error) {
		calls++
		return "title", nil
	}
	c, err := NewTitleCache(16, time.Millisecond, load)
	require.NoError(t, err)

	_, err = c.Title(context.Background(), "mkt-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = c.Title(context.Background(), "mkt-1")
	require.NoError(t, err)
	require.Equal(t, 2, calls, "expired entry must reload")
}

func TestTitleCacheDistinctMarketsDontCollide(t *testing.T) {
	titles := map[string]string{"a": "Market A", "b": "Market B"}
	load := func(ctx context.Context, marketID string) (string, error) {
		return titles[marketID], nil
	}
	c, err := NewTitleCache(16, time.Minute, load)
	require.NoError(t, err)

	got, err := c.Title(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, "Market A", got)

	got, err = c.Title(context.Background(), "b")
	require.NoError(t, err)
	require.Equal(t, "Market B", got)
}

func TestTitleCachePropagatesLoadError(t *testing.T) {
	load := func(ctx context.Context, marketID string) (string, error) {
		return "", errNotFound
	}
	c, err := NewTitleCache(16, time.Minute, load)
	require.NoError(t, err)

	_, err = c.Title(context.Background(), "missing")
	require.ErrorIs(t, err, errNotFound)
}
