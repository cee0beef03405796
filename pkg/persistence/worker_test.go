package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldStringMissingKeyReturnsEmpty(t *testing.T) {
	require.Equal(t, "", fieldString(map[string]interface{}{}, "market"))
}

func TestFieldStringIgnoresNonStringValue(t *testing.T) {
	fields := map[string]interface{}{"side": 1}
	require.Equal(t, "", fieldString(fields, "side"))
}

func TestFieldInt64ParsesDecimalString(t *testing.T) {
	fields := map[string]interface{}{"timestamp_ms": "1700000000000"}
	require.Equal(t, int64(1700000000000), fieldInt64(fields, "timestamp_ms"))
}

func TestFieldInt64OnGarbageReturnsZero(t *testing.T) {
	fields := map[string]interface{}{"nonce": "not-a-number"}
	require.Equal(t, int64(0), fieldInt64(fields, "nonce"))
}

func TestFieldUint8ParsesByteRange(t *testing.T) {
	fields := map[string]interface{}{"token_id": "2"}
	require.Equal(t, uint8(2), fieldUint8(fields, "token_id"))
}

func TestFieldUint8OverflowReturnsZero(t *testing.T) {
	fields := map[string]interface{}{"token_id": "999"}
	require.Equal(t, uint8(0), fieldUint8(fields, "token_id"))
}
