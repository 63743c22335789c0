package x402

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() PaymentPayload {
	return PaymentPayload{
		X402Version: 2,
		Payload: map[string]interface{}{
			"signature": "0xabc",
			"nonce":     "0x01",
		},
		Accepted: PaymentRequirements{
			Scheme:            "exact",
			Network:           "eip155:8453",
			Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Amount:            "10000",
			PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
			MaxTimeoutSeconds: 300,
		},
	}
}

func TestPaymentHeaderRoundTrip(t *testing.T) {
	header, err := EncodePaymentHeader(samplePayload())
	require.NoError(t, err)

	decoded, err := DecodePaymentPayload(header)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.X402Version)
	assert.Equal(t, "exact", decoded.Accepted.Scheme)
	assert.Equal(t, "0xabc", decoded.Payload["signature"])
}

func TestDecodePaymentHeaderURLSafeBase64(t *testing.T) {
	header, err := EncodePaymentHeader(samplePayload())
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)
	urlSafe := base64.URLEncoding.EncodeToString(raw)

	_, err = DecodePaymentPayload(urlSafe)
	require.NoError(t, err)
}

func TestDecodePaymentHeaderRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not base64":   "!!!not-base64!!!",
		"base64 text":  base64.StdEncoding.EncodeToString([]byte("hello world")),
		"empty header": "",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePaymentHeader(header)
			require.Error(t, err)
			var pe *PaymentError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, ErrInvalidPayload, pe.Code)
		})
	}
}

func TestDecodePaymentPayloadValidates(t *testing.T) {
	bad := samplePayload()
	bad.X402Version = 3
	header, err := EncodePaymentHeader(bad)
	require.NoError(t, err)

	_, err = DecodePaymentPayload(header)
	require.Error(t, err)
}

func TestSettleHeaderRoundTrip(t *testing.T) {
	response := SettleResponse{
		Success:     true,
		Payer:       "0x857b06519E91e3A54538791bDbb0E22373e36b66",
		Transaction: "0xdeadbeef",
		Network:     "eip155:8453",
	}
	header, err := EncodeSettleHeader(response)
	require.NoError(t, err)

	decoded, err := DecodeSettleHeader(header)
	require.NoError(t, err)
	assert.Equal(t, response, *decoded)
}

func TestDecodeSettleHeaderRejectsTrailingData(t *testing.T) {
	header := base64.StdEncoding.EncodeToString([]byte(`{"success":true,"transaction":"0x1","network":"eip155:8453"} trailing`))
	_, err := DecodeSettleHeader(header)
	require.Error(t, err)
}

func TestCanonicalJSONSortsKeysRecursively(t *testing.T) {
	value := map[string]interface{}{
		"zeta":  1,
		"alpha": map[string]interface{}{"b": 2, "a": 1},
		"list":  []interface{}{map[string]interface{}{"y": 1, "x": 2}},
	}
	out, err := CanonicalJSON(value)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":1,"b":2},"list":[{"x":2,"y":1}],"zeta":1}`, string(out))
}

func TestCanonicalJSONPreservesLargeIntegers(t *testing.T) {
	// Values above 2^53 must survive canonicalization digit-exact; a float64
	// intermediate would round them.
	type signed struct {
		Nonce  uint64 `json:"nonce"`
		Amount string `json:"amount"`
	}
	out, err := CanonicalJSON(signed{Nonce: 9007199254740993, Amount: "1"})
	require.NoError(t, err)
	assert.Equal(t, `{"amount":"1","nonce":9007199254740993}`, string(out))
}

func TestCanonicalJSONIsStableAcrossFieldOrder(t *testing.T) {
	a, err := CanonicalJSON(map[string]interface{}{"x": 1, "y": "two"})
	require.NoError(t, err)
	b, err := CanonicalJSON(map[string]interface{}{"y": "two", "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
