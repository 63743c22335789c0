package x402

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMechanism is a programmable facilitator mechanism for dispatch tests.
type stubMechanism struct {
	scheme      string
	family      string
	extra       map[string]interface{}
	verifyFn    func(context.Context, PaymentPayload, PaymentRequirements) (*VerifyResponse, error)
	settleFn    func(context.Context, PaymentPayload, PaymentRequirements) (*SettleResponse, error)
	settleCalls atomic.Int32
}

func (m *stubMechanism) Scheme() string     { return m.scheme }
func (m *stubMechanism) CaipFamily() string { return m.family }
func (m *stubMechanism) GetExtra(network Network) map[string]interface{} {
	return m.extra
}
func (m *stubMechanism) GetSigners(network Network) []string {
	return []string{"0xsigner"}
}

func (m *stubMechanism) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, payload, requirements)
	}
	return &VerifyResponse{IsValid: true, Payer: "0xpayer"}, nil
}

func (m *stubMechanism) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error) {
	m.settleCalls.Add(1)
	if m.settleFn != nil {
		return m.settleFn(ctx, payload, requirements)
	}
	return &SettleResponse{Success: true, Transaction: "0xtx", Network: requirements.Network, Payer: "0xpayer"}, nil
}

func wireBytes(t *testing.T, payload PaymentPayload, requirements PaymentRequirements) ([]byte, []byte) {
	t.Helper()
	payloadBytes, err := json.Marshal(payload)
	require.NoError(t, err)
	requirementsBytes, err := json.Marshal(requirements)
	require.NoError(t, err)
	return payloadBytes, requirementsBytes
}

func TestFacilitatorRoutesToRegisteredMechanism(t *testing.T) {
	mechanism := &stubMechanism{scheme: "exact", family: "eip155:*"}
	facilitator := NewFacilitator().Register("eip155:8453", mechanism)

	payload := samplePayload()
	payloadBytes, requirementsBytes := wireBytes(t, payload, payload.Accepted)

	response, err := facilitator.Verify(context.Background(), payloadBytes, requirementsBytes)
	require.NoError(t, err)
	assert.True(t, response.IsValid)
	assert.Equal(t, "0xpayer", response.Payer)
}

func TestFacilitatorWildcardRegistrationServesFamily(t *testing.T) {
	mechanism := &stubMechanism{scheme: "exact", family: "eip155:*"}
	facilitator := NewFacilitator().Register("eip155:*", mechanism)

	payload := samplePayload()
	payload.Accepted.Network = "eip155:84532"
	payloadBytes, requirementsBytes := wireBytes(t, payload, payload.Accepted)

	response, err := facilitator.Verify(context.Background(), payloadBytes, requirementsBytes)
	require.NoError(t, err)
	assert.True(t, response.IsValid)
}

func TestFacilitatorUnsupportedScheme(t *testing.T) {
	facilitator := NewFacilitator()

	payload := samplePayload()
	payloadBytes, requirementsBytes := wireBytes(t, payload, payload.Accepted)

	response, err := facilitator.Verify(context.Background(), payloadBytes, requirementsBytes)
	require.NoError(t, err)
	assert.False(t, response.IsValid)
	assert.Equal(t, ErrUnsupportedScheme, response.InvalidReason)
}

func TestFacilitatorRejectsMalformedPayload(t *testing.T) {
	facilitator := NewFacilitator()
	_, requirementsBytes := wireBytes(t, samplePayload(), samplePayload().Accepted)

	response, err := facilitator.Verify(context.Background(), []byte("not json"), requirementsBytes)
	require.NoError(t, err)
	assert.False(t, response.IsValid)
	assert.Equal(t, ErrInvalidPayload, response.InvalidReason)
}

func TestFacilitatorBeforeVerifyHookAborts(t *testing.T) {
	mechanism := &stubMechanism{scheme: "exact", family: "eip155:*"}
	facilitator := NewFacilitator().Register("eip155:8453", mechanism)
	facilitator.OnBeforeVerify(func(ctx FacilitatorVerifyContext) (*BeforeHookResult, error) {
		return &BeforeHookResult{Abort: true, Reason: ErrPaymentExceedsPolicy}, nil
	})

	payload := samplePayload()
	payloadBytes, requirementsBytes := wireBytes(t, payload, payload.Accepted)

	response, err := facilitator.Verify(context.Background(), payloadBytes, requirementsBytes)
	require.NoError(t, err)
	assert.False(t, response.IsValid)
	assert.Equal(t, ErrPaymentExceedsPolicy, response.InvalidReason)
}

func TestFacilitatorVerifyFailureHookRecovers(t *testing.T) {
	mechanism := &stubMechanism{
		scheme: "exact",
		family: "eip155:*",
		verifyFn: func(context.Context, PaymentPayload, PaymentRequirements) (*VerifyResponse, error) {
			return nil, errors.New("rpc timeout")
		},
	}
	facilitator := NewFacilitator().Register("eip155:8453", mechanism)
	facilitator.OnVerifyFailure(func(ctx FacilitatorVerifyFailureContext) (*VerifyFailureHookResult, error) {
		return &VerifyFailureHookResult{
			Recovered: true,
			Result:    &VerifyResponse{IsValid: false, InvalidReason: ErrVerificationTimeout},
		}, nil
	})

	payload := samplePayload()
	payloadBytes, requirementsBytes := wireBytes(t, payload, payload.Accepted)

	response, err := facilitator.Verify(context.Background(), payloadBytes, requirementsBytes)
	require.NoError(t, err)
	assert.Equal(t, ErrVerificationTimeout, response.InvalidReason)
}

func TestFacilitatorVerifyErrorBecomesResponse(t *testing.T) {
	mechanism := &stubMechanism{
		scheme: "exact",
		family: "eip155:*",
		verifyFn: func(context.Context, PaymentPayload, PaymentRequirements) (*VerifyResponse, error) {
			return nil, NewVerifyError(ErrInsufficientFunds, "0xpayer", "balance below amount")
		},
	}
	facilitator := NewFacilitator().Register("eip155:8453", mechanism)

	payload := samplePayload()
	payloadBytes, requirementsBytes := wireBytes(t, payload, payload.Accepted)

	response, err := facilitator.Verify(context.Background(), payloadBytes, requirementsBytes)
	require.NoError(t, err)
	assert.False(t, response.IsValid)
	assert.Equal(t, ErrInsufficientFunds, response.InvalidReason)
	assert.Equal(t, "0xpayer", response.Payer)
}

func TestFacilitatorSettleIdempotency(t *testing.T) {
	mechanism := &stubMechanism{scheme: "exact", family: "eip155:*"}
	facilitator := NewFacilitator(WithSettlementIdempotency(time.Minute)).
		Register("eip155:8453", mechanism)

	payload := samplePayload()
	payloadBytes, requirementsBytes := wireBytes(t, payload, payload.Accepted)

	first, err := facilitator.Settle(context.Background(), payloadBytes, requirementsBytes)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := facilitator.Settle(context.Background(), payloadBytes, requirementsBytes)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), mechanism.settleCalls.Load())
}

func TestFacilitatorFailedSettleIsNotCached(t *testing.T) {
	mechanism := &stubMechanism{
		scheme: "exact",
		family: "eip155:*",
		settleFn: func(ctx context.Context, p PaymentPayload, r PaymentRequirements) (*SettleResponse, error) {
			return &SettleResponse{Success: false, ErrorReason: ErrTransactionFailed, Network: r.Network}, nil
		},
	}
	facilitator := NewFacilitator(WithSettlementIdempotency(time.Minute)).
		Register("eip155:8453", mechanism)

	payload := samplePayload()
	payloadBytes, requirementsBytes := wireBytes(t, payload, payload.Accepted)

	for i := 0; i < 2; i++ {
		response, err := facilitator.Settle(context.Background(), payloadBytes, requirementsBytes)
		require.NoError(t, err)
		assert.False(t, response.Success)
	}
	assert.Equal(t, int32(2), mechanism.settleCalls.Load())
}

func TestFacilitatorSettleErrorBecomesResponse(t *testing.T) {
	mechanism := &stubMechanism{
		scheme: "exact",
		family: "eip155:*",
		settleFn: func(ctx context.Context, p PaymentPayload, r PaymentRequirements) (*SettleResponse, error) {
			return nil, NewSettleError(ErrAuthorizationUsed, "0xpayer", r.Network, "", "nonce already consumed")
		},
	}
	facilitator := NewFacilitator().Register("eip155:8453", mechanism)

	payload := samplePayload()
	payloadBytes, requirementsBytes := wireBytes(t, payload, payload.Accepted)

	response, err := facilitator.Settle(context.Background(), payloadBytes, requirementsBytes)
	require.NoError(t, err)
	assert.False(t, response.Success)
	assert.Equal(t, ErrAuthorizationUsed, response.ErrorReason)
}

func TestGetSupportedListsKindsAndExtensions(t *testing.T) {
	evm := &stubMechanism{scheme: "exact", family: "eip155:*"}
	svm := &stubMechanism{scheme: "exact", family: "solana:*", extra: map[string]interface{}{"feePayer": "fee"}}

	facilitator := NewFacilitator().
		Register("eip155:8453", evm).
		Register("solana:mainnet", svm).
		RegisterExtension("bazaar").
		RegisterExtension("bazaar") // duplicates collapse

	supported := facilitator.GetSupported()
	require.Len(t, supported.Kinds, 2)
	assert.Equal(t, []string{"bazaar"}, supported.Extensions)

	byNetwork := make(map[Network]SupportedKind)
	for _, kind := range supported.Kinds {
		byNetwork[kind.Network] = kind
	}
	assert.Equal(t, 2, byNetwork["eip155:8453"].X402Version)
	assert.Equal(t, "fee", byNetwork["solana:mainnet"].Extra["feePayer"])
}
