package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	markets []Market
	err     error
}

func (f fakeLoader) ListMarkets(context.Context) ([]Market, error) {
	return f.markets, f.err
}

func TestRefreshPopulatesRegistry(t *testing.T) {
	r := NewRegistry()
	loader := fakeLoader{markets: []Market{
		{ID: "m1", Title: "Will it rain", Active: true},
		{ID: "m2", Title: "Election result", Active: false},
	}}

	require.NoError(t, r.Refresh(context.Background(), loader))
	require.Equal(t, 2, r.Count())

	m, ok := r.Get("m1")
	require.True(t, ok)
	require.Equal(t, "Will it rain", m.Title)
}

func TestIsActiveReflectsLoadedStatus(t *testing.T) {
	r := NewRegistry()
	loader := fakeLoader{markets: []Market{
		{ID: "m1", Active: true},
		{ID: "m2", Active: false},
	}}
	require.NoError(t, r.Refresh(context.Background(), loader))

	require.True(t, r.IsActive("m1"))
	require.False(t, r.IsActive("m2"))
	require.False(t, r.IsActive("unknown"))
}

func TestRefreshReplacesPreviousContents(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Refresh(context.Background(), fakeLoader{markets: []Market{{ID: "stale"}}}))
	require.Equal(t, 1, r.Count())

	require.NoError(t, r.Refresh(context.Background(), fakeLoader{markets: []Market{{ID: "fresh"}}}))
	require.Equal(t, 1, r.Count())
	_, ok := r.Get("stale")
	require.False(t, ok)
	_, ok = r.Get("fresh")
	require.True(t, ok)
}

func TestRefreshPropagatesLoaderError(t *testing.T) {
	r := NewRegistry()
	err := r.Refresh(context.Background(), fakeLoader{err: errors.New("db unreachable")})
	require.Error(t, err)
}

func TestListReturnsAllMarkets(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Refresh(context.Background(), fakeLoader{markets: []Market{
		{ID: "m1"}, {ID: "m2"}, {ID: "m3"},
	}}))
	require.Len(t, r.List(), 3)
}
