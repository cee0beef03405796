package order

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleOrder() Order {
	var maker, market [32]byte
	maker[0] = 0xAA
	market[0] = 0xBB
	return Order{
		Salt:        42,
		Maker:       maker,
		Signer:      maker,
		Taker:       DefaultTaker,
		Market:      market,
		TokenID:     TokenYes,
		MakerAmount: 60_000_000,
		TakerAmount: 100,
		Expiration:  0,
		Nonce:       1,
		FeeRateBps:  50,
		Side:        SideBuy,
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	o := sampleOrder()
	ser := Serialize(o)
	require.Len(t, ser, EncodedSize)

	got, err := Deserialize(ser[:])
	require.NoError(t, err)
	require.Equal(t, o, got)
}

func TestDeserializeWrongLength(t *testing.T) {
	_, err := Deserialize(make([]byte, EncodedSize-1))
	require.Error(t, err)
}

func TestHashStableAcrossCalls(t *testing.T) {
	o := sampleOrder()
	h1 := Hash(o)
	h2 := Hash(o)
	require.Equal(t, h1, h2)

	o2 := o
	o2.Salt++
	require.NotEqual(t, h1, Hash(o2))
}

func TestFingerprintRoundTrip(t *testing.T) {
	h := Hash(sampleOrder())
	s := FingerprintString(h)
	back, err := ParseFingerprint(s)
	require.NoError(t, err)
	require.Equal(t, h, back)
}

func TestValidateFeeRateBoundary(t *testing.T) {
	o := sampleOrder()
	o.FeeRateBps = MaxFeeRateBps
	require.NoError(t, Validate(o))

	o.FeeRateBps = MaxFeeRateBps + 1
	err := Validate(o)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrInvalidOrder, verr.Kind)
}

func TestValidateZeroAmounts(t *testing.T) {
	o := sampleOrder()
	o.MakerAmount = 0
	require.Error(t, Validate(o))

	o = sampleOrder()
	o.TakerAmount = 0
	require.Error(t, Validate(o))
}

func TestValidateTokenAndSideRange(t *testing.T) {
	o := sampleOrder()
	o.TokenID = 3
	require.Error(t, Validate(o))

	o = sampleOrder()
	o.Side = 2
	require.Error(t, Validate(o))
}

func TestIsExpired(t *testing.T) {
	o := sampleOrder()
	o.Expiration = 0
	require.False(t, IsExpired(o, 1_700_000_000))

	o.Expiration = 1_700_000_000
	require.True(t, IsExpired(o, 1_700_000_001))
	require.False(t, IsExpired(o, 1_700_000_000))
}

func TestPriceSymmetric(t *testing.T) {
	buy := sampleOrder()
	buy.Side = SideBuy
	buy.MakerAmount = 60
	buy.TakerAmount = 100
	require.Equal(t, uint64(600_000), Price(buy))

	sell := buy
	sell.Side = SideSell
	sell.MakerAmount = 100
	sell.TakerAmount = 60
	require.Equal(t, uint64(600_000), Price(sell))
}

func TestVerifySignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	o := sampleOrder()
	copy(o.Signer[:], pub)

	h := Hash(o)
	sig := ed25519.Sign(priv, h[:])
	require.NoError(t, Verify(o, sig))

	badSig := append([]byte(nil), sig...)
	badSig[0] ^= 0xFF
	require.Error(t, Verify(o, badSig))

	require.Error(t, Verify(o, sig[:10]))
}

func TestIsOpenTaker(t *testing.T) {
	require.True(t, IsOpenTaker(DefaultTaker))
	var other [32]byte
	other[5] = 1
	require.False(t, IsOpenTaker(other))
}
