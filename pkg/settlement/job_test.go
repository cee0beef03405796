package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/matching"
)

func TestEncodeDecodeJobRoundTrips(t *testing.T) {
	var taker, maker1, maker2 [32]byte
	taker[0] = 0xAA
	maker1[0] = 0x01
	maker2[0] = 0x02

	job := matching.Job{
		TakerOrderHash:   taker,
		TakerFillAmount:  150,
		MakerOrderHashes: [][32]byte{maker1, maker2},
		MakerFillAmounts: []uint64{100, 50},
	}

	encoded, err := EncodeJob(job)
	require.NoError(t, err)

	decoded, err := DecodeJob(encoded)
	require.NoError(t, err)
	require.Equal(t, job, decoded)
}

func TestDecodeJobRejectsMalformedHash(t *testing.T) {
	_, err := DecodeJob([]byte(`{"takerOrderHash":"not-hex","makerOrderHashes":[]}`))
	require.Error(t, err)
}
