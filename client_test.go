package x402

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClientMechanism struct {
	scheme  string
	payload map[string]interface{}
	err     error
}

func (m *stubClientMechanism) Scheme() string { return m.scheme }

func (m *stubClientMechanism) CreatePaymentPayload(ctx context.Context, requirements PaymentRequirements) (PartialPaymentPayload, error) {
	if m.err != nil {
		return PartialPaymentPayload{}, m.err
	}
	return PartialPaymentPayload{X402Version: 2, Payload: m.payload}, nil
}

type stubClientExtension struct {
	key    string
	err    error
	called bool
}

func (e *stubClientExtension) Key() string { return e.key }

func (e *stubClientExtension) EnrichPaymentPayload(ctx context.Context, payload PaymentPayload, required PaymentRequired) (PaymentPayload, error) {
	e.called = true
	if e.err != nil {
		return PaymentPayload{}, e.err
	}
	if payload.Extensions == nil {
		payload.Extensions = make(map[string]interface{})
	}
	payload.Extensions[e.key] = map[string]interface{}{"enriched": true}
	return payload, nil
}

func evmAccepts() []PaymentRequirements {
	return []PaymentRequirements{
		{
			Scheme:            "exact",
			Network:           "eip155:8453",
			Asset:             "0xusdc",
			Amount:            "10000",
			PayTo:             "0xrecipient",
			MaxTimeoutSeconds: 300,
		},
		{
			Scheme:            "exact",
			Network:           "solana:mainnet",
			Asset:             "sol-usdc",
			Amount:            "9000",
			PayTo:             "recipient",
			MaxTimeoutSeconds: 300,
		},
	}
}

func TestSelectPaymentRequirementsNoRegisteredScheme(t *testing.T) {
	client := NewClient()

	_, err := client.SelectPaymentRequirements(2, evmAccepts())
	require.Error(t, err)
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrUnsupportedScheme, pe.Code)
}

func TestSelectPaymentRequirementsFiltersToRegistered(t *testing.T) {
	client := NewClient(
		WithScheme("solana:*", &stubClientMechanism{scheme: "exact"}),
	)

	selected, err := client.SelectPaymentRequirements(2, evmAccepts())
	require.NoError(t, err)
	assert.Equal(t, Network("solana:mainnet"), selected.Network)
}

func TestSelectPaymentRequirementsPolicyViolation(t *testing.T) {
	client := NewClient(
		WithScheme("eip155:*", &stubClientMechanism{scheme: "exact"}),
		WithPolicy(WalletPolicy{MaxAtomic: big.NewInt(100)}),
	)

	_, err := client.SelectPaymentRequirements(2, evmAccepts())
	require.Error(t, err)
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrPaymentExceedsPolicy, pe.Code)
}

func TestSelectPaymentRequirementsCustomSelector(t *testing.T) {
	cheapest := func(version int, requirements []PaymentRequirements) PaymentRequirements {
		best := requirements[0]
		bestAmount, _ := ParseAtomicAmount(best.AtomicAmount())
		for _, r := range requirements[1:] {
			amount, err := ParseAtomicAmount(r.AtomicAmount())
			if err == nil && amount.Cmp(bestAmount) < 0 {
				best, bestAmount = r, amount
			}
		}
		return best
	}

	client := NewClient(
		WithScheme("eip155:*", &stubClientMechanism{scheme: "exact"}),
		WithScheme("solana:*", &stubClientMechanism{scheme: "exact"}),
		WithPaymentSelector(cheapest),
	)

	selected, err := client.SelectPaymentRequirements(2, evmAccepts())
	require.NoError(t, err)
	assert.Equal(t, "9000", selected.Amount)
}

func TestCreatePaymentPayloadEchoesResource(t *testing.T) {
	client := NewClient(
		WithScheme("eip155:*", &stubClientMechanism{
			scheme:  "exact",
			payload: map[string]interface{}{"signature": "0x1"},
		}),
	)

	required := PaymentRequired{
		X402Version: 2,
		Resource:    &ResourceInfo{URL: "https://api.example.com/weather"},
		Accepts:     evmAccepts(),
	}

	payload, err := client.CreatePaymentPayload(context.Background(), 2, evmAccepts()[0], required)
	require.NoError(t, err)
	assert.Equal(t, 2, payload.X402Version)
	assert.Equal(t, evmAccepts()[0], payload.Accepted)
	require.NotNil(t, payload.Resource)
	assert.Equal(t, "https://api.example.com/weather", payload.Resource.URL)
}

func TestClientExtensionRunsOnlyWhenDeclared(t *testing.T) {
	ext := &stubClientExtension{key: "facilitatorFees"}
	client := NewClient(
		WithScheme("eip155:*", &stubClientMechanism{scheme: "exact", payload: map[string]interface{}{"signature": "0x1"}}),
		WithClientExtension(ext),
	)

	undeclared := PaymentRequired{X402Version: 2, Accepts: evmAccepts()}
	payload, err := client.CreatePaymentPayload(context.Background(), 2, evmAccepts()[0], undeclared)
	require.NoError(t, err)
	assert.False(t, ext.called)
	assert.Nil(t, payload.Extensions)

	declared := undeclared
	declared.Extensions = map[string]interface{}{"facilitatorFees": map[string]interface{}{}}
	payload, err = client.CreatePaymentPayload(context.Background(), 2, evmAccepts()[0], declared)
	require.NoError(t, err)
	assert.True(t, ext.called)
	assert.Contains(t, payload.Extensions, "facilitatorFees")
}

func TestClientExtensionFailureDoesNotBlockPayment(t *testing.T) {
	ext := &stubClientExtension{key: "facilitatorFees", err: errors.New("quote service down")}
	client := NewClient(
		WithScheme("eip155:*", &stubClientMechanism{scheme: "exact", payload: map[string]interface{}{"signature": "0x1"}}),
		WithClientExtension(ext),
	)

	required := PaymentRequired{
		X402Version: 2,
		Accepts:     evmAccepts(),
		Extensions:  map[string]interface{}{"facilitatorFees": map[string]interface{}{}},
	}
	payload, err := client.CreatePaymentPayload(context.Background(), 2, evmAccepts()[0], required)
	require.NoError(t, err)
	assert.True(t, ext.called)
	assert.Equal(t, "0x1", payload.Payload["signature"])
}

func TestCreatePaymentForRequiredProducesDecodableHeader(t *testing.T) {
	client := NewClient(
		WithScheme("eip155:*", &stubClientMechanism{scheme: "exact", payload: map[string]interface{}{"signature": "0x1"}}),
	)

	required := PaymentRequired{X402Version: 2, Accepts: evmAccepts()[:1]}
	requiredBytes, err := canonicalRequiredBytes(required)
	require.NoError(t, err)

	header, err := client.CreatePaymentForRequired(context.Background(), requiredBytes)
	require.NoError(t, err)

	payload, err := DecodePaymentPayload(header)
	require.NoError(t, err)
	assert.Equal(t, "exact", payload.Accepted.Scheme)
	assert.Equal(t, "0x1", payload.Payload["signature"])
}

func TestCreatePaymentForRequiredEmptyAccepts(t *testing.T) {
	client := NewClient()
	_, err := client.CreatePaymentForRequired(context.Background(), []byte(`{"x402Version":2,"accepts":[]}`))
	require.Error(t, err)
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrInvalidPaymentRequirements, pe.Code)
}

func canonicalRequiredBytes(required PaymentRequired) ([]byte, error) {
	return CanonicalJSON(required)
}
