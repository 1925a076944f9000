package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test vector: private key 0x...01 maps to this address.
const (
	testKeyHex  = "0000000000000000000000000000000000000000000000000000000000000001"
	testKeyAddr = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"
)

func TestNewSignerDerivesAddress(t *testing.T) {
	s, err := NewSigner(testKeyHex, 137)
	require.NoError(t, err)
	assert.Equal(t, testKeyAddr, s.Address().Hex())

	// 0x prefix is accepted too.
	s2, err := NewSigner("0x"+testKeyHex, 137)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), s2.Address())
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	_, err := NewSigner("not-hex", 137)
	assert.Error(t, err)
}

func TestSignAuthMessageIsDeterministic(t *testing.T) {
	s, err := NewSigner(testKeyHex, 137)
	require.NoError(t, err)

	sig1, err := s.SignAuthMessage(testKeyAddr, 1750000000, 0)
	require.NoError(t, err)
	sig2, err := s.SignAuthMessage(testKeyAddr, 1750000000, 0)
	require.NoError(t, err)
	sig3, err := s.SignAuthMessage(testKeyAddr, 1750000001, 0)
	require.NoError(t, err)

	assert.Equal(t, sig1, sig2)
	assert.NotEqual(t, sig1, sig3)
	assert.True(t, strings.HasPrefix(sig1, "0x"))
	assert.Len(t, sig1, 2+65*2)
}

func TestSignOrder(t *testing.T) {
	s, err := NewSigner(testKeyHex, 137)
	require.NoError(t, err)

	order := OrderPayload{
		Salt:        "12345",
		Maker:       testKeyAddr,
		Signer:      testKeyAddr,
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount: "1000000",
		TakerAmount: "8333333",
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
	}

	sig, err := s.SignOrder(order)
	require.NoError(t, err)
	assert.Len(t, sig, 2+65*2)

	order.Salt = "bogus"
	_, err = s.SignOrder(order)
	assert.Error(t, err)
}

func TestL2HeadersAt(t *testing.T) {
	auth := &HMACAuth{
		Key:        "key-1",
		Secret:     base64.StdEncoding.EncodeToString([]byte("secret")),
		Passphrase: "pass",
	}

	h := auth.L2HeadersAt(testKeyAddr, "POST", "/order", `{"x":1}`, 1750000000)
	assert.Equal(t, testKeyAddr, h["POLY_ADDRESS"])
	assert.Equal(t, "key-1", h["POLY_API_KEY"])
	assert.Equal(t, "1750000000", h["POLY_TIMESTAMP"])
	assert.Equal(t, "pass", h["POLY_PASSPHRASE"])
	require.NotEmpty(t, h["POLY_SIGNATURE"])

	// Same inputs yield the same signature, any change yields a new one.
	again := auth.L2HeadersAt(testKeyAddr, "POST", "/order", `{"x":1}`, 1750000000)
	assert.Equal(t, h["POLY_SIGNATURE"], again["POLY_SIGNATURE"])
	other := auth.L2HeadersAt(testKeyAddr, "POST", "/order", `{"x":2}`, 1750000000)
	assert.NotEqual(t, h["POLY_SIGNATURE"], other["POLY_SIGNATURE"])
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadKeyPrefersRawKey(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}
