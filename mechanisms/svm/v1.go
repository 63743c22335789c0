package svm

import (
	"context"
	"encoding/json"
	"fmt"

	x402 "github.com/x402labs/x402-go"
	"github.com/x402labs/x402-go/types"
)

// ExactSvmClientV1 implements x402.SchemeNetworkClientV1 by translating v1
// requirements into the canonical form and delegating to the V2 client. The
// produced payload carries scheme and network at the top level as v1 wire
// format demands.
type ExactSvmClientV1 struct {
	inner *ExactSvmClient
}

// NewExactSvmClientV1 creates the v1 client mechanism.
func NewExactSvmClientV1(signer ClientSvmSigner, config ...*ClientConfig) *ExactSvmClientV1 {
	return &ExactSvmClientV1{inner: NewExactSvmClient(signer, config...)}
}

// Scheme returns the scheme identifier.
func (c *ExactSvmClientV1) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload builds a full v1 payment payload from v1 requirement
// bytes.
func (c *ExactSvmClientV1) CreatePaymentPayload(ctx context.Context, version int, requirementsBytes []byte) ([]byte, error) {
	reqV1, err := types.ToPaymentRequirementsV1(requirementsBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid v1 requirements: %w", err)
	}

	requirements := x402.PaymentRequirements{
		Scheme:            reqV1.Scheme,
		Network:           x402.Network(CanonicalNetwork(reqV1.Network)),
		Asset:             reqV1.Asset,
		Amount:            reqV1.MaxAmountRequired,
		PayTo:             reqV1.PayTo,
		Resource:          reqV1.Resource,
		MaxTimeoutSeconds: reqV1.MaxTimeoutSeconds,
	}
	if reqV1.Extra != nil {
		var extra map[string]interface{}
		if err := json.Unmarshal(*reqV1.Extra, &extra); err == nil {
			requirements.Extra = extra
		}
	}

	partial, err := c.inner.CreatePaymentPayload(ctx, requirements)
	if err != nil {
		return nil, err
	}

	payload := types.PaymentPayloadV1{
		X402Version: version,
		Scheme:      reqV1.Scheme,
		Network:     reqV1.Network,
		Payload:     partial.Payload,
	}
	return json.Marshal(payload)
}

// ExactSvmFacilitatorV1 implements x402.SchemeNetworkFacilitatorV1 by
// lifting v1 structures into the canonical form and delegating to the V2
// facilitator.
type ExactSvmFacilitatorV1 struct {
	inner *ExactSvmFacilitator
}

// NewExactSvmFacilitatorV1 creates the v1 facilitator mechanism.
func NewExactSvmFacilitatorV1(signer FacilitatorSvmSigner) *ExactSvmFacilitatorV1 {
	return &ExactSvmFacilitatorV1{inner: NewExactSvmFacilitator(signer)}
}

// Scheme returns the scheme identifier.
func (f *ExactSvmFacilitatorV1) Scheme() string {
	return SchemeExact
}

// CaipFamily returns the network family this facilitator serves.
func (f *ExactSvmFacilitatorV1) CaipFamily() string {
	return CaipFamilySVM
}

// GetExtra advertises the facilitator's fee payer for the network.
func (f *ExactSvmFacilitatorV1) GetExtra(network x402.Network) map[string]interface{} {
	return f.inner.GetExtra(x402.Network(CanonicalNetwork(string(network))))
}

// GetSigners returns the facilitator's fee payer addresses.
func (f *ExactSvmFacilitatorV1) GetSigners(network x402.Network) []string {
	return f.inner.GetSigners(x402.Network(CanonicalNetwork(string(network))))
}

// Verify verifies a v1 payment payload.
func (f *ExactSvmFacilitatorV1) Verify(ctx context.Context, payload types.PaymentPayloadV1, requirements types.PaymentRequirementsV1) (*x402.VerifyResponse, error) {
	canonicalPayload, canonicalRequirements := liftV1(payload, requirements)
	return f.inner.Verify(ctx, canonicalPayload, canonicalRequirements)
}

// Settle settles a v1 payment payload. The returned network keeps the
// caller's original v1 name.
func (f *ExactSvmFacilitatorV1) Settle(ctx context.Context, payload types.PaymentPayloadV1, requirements types.PaymentRequirementsV1) (*x402.SettleResponse, error) {
	canonicalPayload, canonicalRequirements := liftV1(payload, requirements)
	resp, err := f.inner.Settle(ctx, canonicalPayload, canonicalRequirements)
	if resp != nil {
		resp.Network = x402.Network(requirements.Network)
	}
	return resp, err
}

func liftV1(payload types.PaymentPayloadV1, requirements types.PaymentRequirementsV1) (x402.PaymentPayload, x402.PaymentRequirements) {
	canonicalPayload := x402.PaymentPayload{
		X402Version: payload.X402Version,
		Scheme:      payload.Scheme,
		Network:     x402.Network(CanonicalNetwork(payload.Network)),
		Payload:     payload.Payload,
	}
	canonicalRequirements := x402.PaymentRequirements{
		Scheme:            requirements.Scheme,
		Network:           x402.Network(CanonicalNetwork(requirements.Network)),
		Asset:             requirements.Asset,
		MaxAmountRequired: requirements.MaxAmountRequired,
		PayTo:             requirements.PayTo,
		Resource:          requirements.Resource,
		MaxTimeoutSeconds: requirements.MaxTimeoutSeconds,
	}
	if requirements.Extra != nil {
		var extra map[string]interface{}
		if err := json.Unmarshal(*requirements.Extra, &extra); err == nil {
			canonicalRequirements.Extra = extra
		}
	}
	return canonicalPayload, canonicalRequirements
}
