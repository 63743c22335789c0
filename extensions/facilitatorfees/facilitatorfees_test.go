package facilitatorfees

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402labs/x402-go"
)

func TestEffectiveFee(t *testing.T) {
	amount := big.NewInt(1_000_000) // 1 USDC

	tests := []struct {
		name  string
		quote FeeQuote
		want  string
	}{
		{"flat", FeeQuote{Kind: QuoteFlat, FlatFee: "500"}, "500"},
		{"bps", FeeQuote{Kind: QuoteBPS, BPS: 30}, "3000"},
		{"bps clamped to min", FeeQuote{Kind: QuoteBPS, BPS: 1, MinFee: "1000"}, "1000"},
		{"bps clamped to max", FeeQuote{Kind: QuoteBPS, BPS: 500, MaxFee: "10000"}, "10000"},
		{"hybrid", FeeQuote{Kind: QuoteHybrid, FlatFee: "100", BPS: 30}, "3100"},
		{"tiered first tier", FeeQuote{Kind: QuoteTiered, Tiers: []Tier{{UpTo: "2000000", Fee: "200"}, {UpTo: "10000000", Fee: "500"}}}, "200"},
		{"tiered later tier", FeeQuote{Kind: QuoteTiered, Tiers: []Tier{{UpTo: "100", Fee: "10"}, {UpTo: "2000000", Fee: "300"}}}, "300"},
		{"tiered above all tiers", FeeQuote{Kind: QuoteTiered, Tiers: []Tier{{UpTo: "100", Fee: "10"}}}, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, err := EffectiveFee(tt.quote, amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fee.String())
		})
	}
}

func TestEffectiveFeeErrors(t *testing.T) {
	_, err := EffectiveFee(FeeQuote{Kind: "mystery"}, big.NewInt(1))
	require.Error(t, err)

	_, err = EffectiveFee(FeeQuote{Kind: QuoteBPS, BPS: 20000}, big.NewInt(1))
	require.Error(t, err)

	_, err = EffectiveFee(FeeQuote{Kind: QuoteTiered}, big.NewInt(1))
	require.Error(t, err)

	_, err = EffectiveFee(FeeQuote{Kind: QuoteFlat, FlatFee: "500"}, big.NewInt(-1))
	require.Error(t, err)
}

func baseQuote(id string) FeeQuote {
	return FeeQuote{
		QuoteID:       id,
		FacilitatorID: "facilitator.example",
		Kind:          QuoteFlat,
		Network:       "eip155:8453",
		Asset:         "0xusdc",
		FlatFee:       "500",
		ExpiresAt:     time.Now().Add(time.Hour).Unix(),
	}
}

func TestSignAndVerifyQuoteEIP191(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	quote := baseQuote("q-1")
	require.NoError(t, SignQuoteEIP191(&quote, address, func(digest []byte) ([]byte, error) {
		sig, err := crypto.Sign(digest, key)
		if err != nil {
			return nil, err
		}
		sig[64] += 27
		return sig, nil
	}))
	require.NotNil(t, quote.Signature)
	assert.Equal(t, SignatureTypeEIP191, quote.Signature.Type)

	require.NoError(t, VerifyQuote(quote, time.Now()))

	// Any change to the quote body breaks the signature.
	tampered := quote
	tampered.FlatFee = "1"
	require.Error(t, VerifyQuote(tampered, time.Now()))
}

func TestSignAndVerifyQuoteEd25519(t *testing.T) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	quote := baseQuote("q-2")
	require.NoError(t, SignQuoteEd25519(&quote, key))
	assert.Equal(t, SignatureTypeEd25519, quote.Signature.Type)

	require.NoError(t, VerifyQuote(quote, time.Now()))

	tampered := quote
	tampered.BPS = 1
	require.Error(t, VerifyQuote(tampered, time.Now()))
}

func TestVerifyQuoteRejectsExpiredAndUnsigned(t *testing.T) {
	unsigned := baseQuote("q-3")
	require.Error(t, VerifyQuote(unsigned, time.Now()))

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	expired := baseQuote("q-4")
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	require.NoError(t, SignQuoteEd25519(&expired, key))
	require.Error(t, VerifyQuote(expired, time.Now()))
}

func signedOption(t *testing.T, id string, mutate func(*FeeQuote)) FeeOption {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	quote := baseQuote(id)
	if mutate != nil {
		mutate(&quote)
	}
	require.NoError(t, SignQuoteEd25519(&quote, key))
	return FeeOption{FacilitatorID: quote.FacilitatorID, FacilitatorFeeQuote: quote}
}

func acceptedRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            "exact",
		Network:           "eip155:8453",
		Asset:             "0xusdc",
		Amount:            "1000000",
		PayTo:             "0xalice",
		MaxTimeoutSeconds: 300,
	}
}

func TestDeclarationDropsExpiredOptions(t *testing.T) {
	fresh := signedOption(t, "fresh", nil)
	stale := signedOption(t, "stale", func(q *FeeQuote) {
		q.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	})

	ext := Declare([]FeeOption{fresh, stale})
	require.Equal(t, ExtensionKey, ext.Key())

	info := ext.EnrichDeclaration(x402.PaymentRequired{X402Version: 2}, nil)
	require.NotNil(t, info)
	serverInfo := info.(ServerInfo)
	require.Len(t, serverInfo.Options, 1)
	assert.Equal(t, "fresh", serverInfo.Options[0].FacilitatorFeeQuote.QuoteID)

	onlyStale := Declare([]FeeOption{stale})
	assert.Nil(t, onlyStale.EnrichDeclaration(x402.PaymentRequired{X402Version: 2}, nil))
}

func TestClientSelectsCheapestQuote(t *testing.T) {
	cheap := signedOption(t, "cheap", func(q *FeeQuote) { q.FlatFee = "100" })
	pricey := signedOption(t, "pricey", func(q *FeeQuote) { q.FlatFee = "900" })

	required := x402.PaymentRequired{
		X402Version: 2,
		Extensions: map[string]interface{}{
			ExtensionKey: ServerInfo{Options: []FeeOption{pricey, cheap}},
		},
	}
	payload := x402.PaymentPayload{
		X402Version: 2,
		Payload:     map[string]interface{}{"signature": "0x1"},
		Accepted:    acceptedRequirements(),
	}

	client := NewClientExtension()
	enriched, err := client.EnrichPaymentPayload(context.Background(), payload, required)
	require.NoError(t, err)

	bid, ok := ExtractBid(enriched)
	require.True(t, ok)
	assert.Equal(t, "cheap", bid.SelectedQuoteID)
}

func TestClientHonorsFeeCap(t *testing.T) {
	option := signedOption(t, "only", func(q *FeeQuote) { q.FlatFee = "900" })
	required := x402.PaymentRequired{
		X402Version: 2,
		Extensions:  map[string]interface{}{ExtensionKey: ServerInfo{Options: []FeeOption{option}}},
	}
	payload := x402.PaymentPayload{
		X402Version: 2,
		Payload:     map[string]interface{}{"signature": "0x1"},
		Accepted:    acceptedRequirements(),
	}

	client := &ClientExtension{MaxFee: big.NewInt(100)}
	enriched, err := client.EnrichPaymentPayload(context.Background(), payload, required)
	require.NoError(t, err)

	_, ok := ExtractBid(enriched)
	assert.False(t, ok, "no bid when every quote exceeds the cap")
}

func TestClientIgnoresTamperedQuotes(t *testing.T) {
	option := signedOption(t, "tampered", nil)
	option.FacilitatorFeeQuote.FlatFee = "1" // invalidates the signature

	required := x402.PaymentRequired{
		X402Version: 2,
		Extensions:  map[string]interface{}{ExtensionKey: ServerInfo{Options: []FeeOption{option}}},
	}
	payload := x402.PaymentPayload{
		X402Version: 2,
		Payload:     map[string]interface{}{"signature": "0x1"},
		Accepted:    acceptedRequirements(),
	}

	enriched, err := NewClientExtension().EnrichPaymentPayload(context.Background(), payload, required)
	require.NoError(t, err)
	_, ok := ExtractBid(enriched)
	assert.False(t, ok)
}

func TestClientParsesWireFormOptions(t *testing.T) {
	// Over HTTP the extension body arrives as a decoded JSON map.
	required := x402.PaymentRequired{
		X402Version: 2,
		Extensions: map[string]interface{}{
			ExtensionKey: map[string]interface{}{
				"options": []interface{}{
					map[string]interface{}{
						"facilitatorId": "facilitator.example",
						"facilitatorFeeQuote": map[string]interface{}{
							"quoteId":       "wire-quote",
							"facilitatorId": "facilitator.example",
							"kind":          "flat",
							"network":       "eip155:8453",
							"asset":         "0xusdc",
							"flatFee":       "500",
							"expiresAt":     float64(time.Now().Add(time.Hour).Unix()),
						},
					},
				},
			},
		},
	}
	payload := x402.PaymentPayload{
		X402Version: 2,
		Payload:     map[string]interface{}{"signature": "0x1"},
		Accepted:    acceptedRequirements(),
	}

	client := &ClientExtension{SkipVerification: true}
	enriched, err := client.EnrichPaymentPayload(context.Background(), payload, required)
	require.NoError(t, err)

	bid, ok := ExtractBid(enriched)
	require.True(t, ok)
	assert.Equal(t, "wire-quote", bid.SelectedQuoteID)
}

func TestSettlementEchoesFeePaid(t *testing.T) {
	option := signedOption(t, "selected", func(q *FeeQuote) { q.FlatFee = "500" })
	ext := Declare([]FeeOption{option}).(*declaration)

	payload := x402.PaymentPayload{
		X402Version: 2,
		Payload:     map[string]interface{}{"signature": "0x1"},
		Accepted:    acceptedRequirements(),
		Extensions: map[string]interface{}{
			ExtensionKey: BidInfo{FacilitatorFeeBid: Bid{SelectedQuoteID: "selected"}},
		},
	}
	response := x402.SettleResponse{Success: true, Transaction: "0xtx", Network: "eip155:8453"}

	info, err := ext.EnrichSettlementResponse(context.Background(), response, payload, acceptedRequirements())
	require.NoError(t, err)
	settleInfo, ok := info.(SettleInfo)
	require.True(t, ok)
	assert.Equal(t, "500", settleInfo.FacilitatorFeePaid)
	assert.Equal(t, "selected", settleInfo.QuoteID)
}

func TestSettlementSilentWithoutBid(t *testing.T) {
	ext := Declare([]FeeOption{signedOption(t, "q", nil)}).(*declaration)

	payload := x402.PaymentPayload{X402Version: 2, Payload: map[string]interface{}{}, Accepted: acceptedRequirements()}
	response := x402.SettleResponse{Success: true, Transaction: "0xtx", Network: "eip155:8453"}

	info, err := ext.EnrichSettlementResponse(context.Background(), response, payload, acceptedRequirements())
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestExtractBidWireForm(t *testing.T) {
	payload := x402.PaymentPayload{
		Extensions: map[string]interface{}{
			ExtensionKey: map[string]interface{}{
				"facilitatorFeeBid": map[string]interface{}{
					"selectedQuoteId":   "q-9",
					"maxFacilitatorFee": "1000",
				},
			},
		},
	}
	bid, ok := ExtractBid(payload)
	require.True(t, ok)
	assert.Equal(t, "q-9", bid.SelectedQuoteID)
	assert.Equal(t, "1000", bid.MaxFacilitatorFee)
}

type staticIssuer struct {
	quote FeeQuote
	err   error
}

func (i staticIssuer) Quote(ctx context.Context, network x402.Network, asset string, amount string) (FeeQuote, error) {
	return i.quote, i.err
}

func TestQuoteHandler(t *testing.T) {
	server := httptest.NewServer(QuoteHandler(staticIssuer{quote: baseQuote("served")}))
	defer server.Close()

	resp, err := http.Get(server.URL + QuotePath + "?network=eip155:8453&asset=0xusdc&amount=1000000")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	// Missing parameters fail fast.
	resp, err = http.Get(server.URL + QuotePath + "?network=eip155:8453")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Non-atomic amounts are rejected before hitting the issuer.
	resp, err = http.Get(server.URL + QuotePath + "?network=eip155:8453&asset=0xusdc&amount=1.5")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
