package onchain

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildOrderStatusAccount(hash [32]byte, filledOrCancelled bool, remaining uint64) []byte {
	data := make([]byte, orderStatusLen)
	copy(data[0:8], []byte{1, 2, 3, 4, 5, 6, 7, 8}) // discriminator, opaque to the decoder
	copy(data[8:40], hash[:])
	if filledOrCancelled {
		data[40] = 1
	}
	binary.LittleEndian.PutUint64(data[41:49], remaining)
	data[49] = 0xFF // bump
	return data
}

func TestDecodeOrderStatusOpenOrder(t *testing.T) {
	var hash [32]byte
	hash[0] = 0xAB
	data := buildOrderStatusAccount(hash, false, 42)

	status, err := decodeOrderStatus(data, hash)
	require.NoError(t, err)
	require.False(t, status.IsFilledOrCancelled)
	require.Equal(t, uint64(42), status.Remaining)
}

func TestDecodeOrderStatusFilled(t *testing.T) {
	var hash [32]byte
	hash[0] = 0xCD
	data := buildOrderStatusAccount(hash, true, 0)

	status, err := decodeOrderStatus(data, hash)
	require.NoError(t, err)
	require.True(t, status.IsFilledOrCancelled)
	require.Equal(t, uint64(0), status.Remaining)
}

func TestDecodeOrderStatusHashMismatchRejected(t *testing.T) {
	var hash, other [32]byte
	hash[0] = 0x01
	other[0] = 0x02
	data := buildOrderStatusAccount(hash, false, 10)

	_, err := decodeOrderStatus(data, other)
	require.Error(t, err)
}

func TestDecodeOrderStatusTruncatedAccountRejected(t *testing.T) {
	var hash [32]byte
	_, err := decodeOrderStatus(make([]byte, 10), hash)
	require.Error(t, err)
}

func TestDecodeNonceReadsLittleEndianU64(t *testing.T) {
	data := make([]byte, nonceAccountLen)
	binary.LittleEndian.PutUint64(data[8:16], 7)

	nonce, err := decodeNonce(data)
	require.NoError(t, err)
	require.Equal(t, uint64(7), nonce)
}

func TestDecodeNonceTruncatedAccountRejected(t *testing.T) {
	_, err := decodeNonce(make([]byte, 4))
	require.Error(t, err)
}
