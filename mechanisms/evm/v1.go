package evm

import (
	"context"
	"encoding/json"
	"fmt"

	x402 "github.com/x402labs/x402-go"
	"github.com/x402labs/x402-go/types"
)

// CanonicalNetwork maps a legacy v1 network name ("base-sepolia") to its
// CAIP-2 form. Already-canonical names pass through.
func CanonicalNetwork(network string) string {
	if caip, ok := V1NetworkNames[network]; ok {
		return caip
	}
	return network
}

// LegacyNetworkName maps a CAIP-2 network back to its v1 name when one
// exists.
func LegacyNetworkName(network string) string {
	for legacy, caip := range V1NetworkNames {
		if caip == network {
			return legacy
		}
	}
	return network
}

// ExactEvmClientV1 implements x402.SchemeNetworkClientV1 by translating v1
// requirements into the canonical form and delegating to the V2 client. The
// produced payload carries scheme and network at the top level as v1 wire
// format demands.
type ExactEvmClientV1 struct {
	inner *ExactEvmClient
}

// NewExactEvmClientV1 creates the v1 client mechanism.
func NewExactEvmClientV1(signer ClientEvmSigner) *ExactEvmClientV1 {
	return &ExactEvmClientV1{inner: NewExactEvmClient(signer)}
}

// Scheme returns the scheme identifier.
func (c *ExactEvmClientV1) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload builds a full v1 payment payload from v1 requirement
// bytes.
func (c *ExactEvmClientV1) CreatePaymentPayload(ctx context.Context, version int, requirementsBytes []byte) ([]byte, error) {
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

// ExactEvmFacilitatorV1 implements x402.SchemeNetworkFacilitatorV1 by
// lifting v1 structures into the canonical form and delegating to the V2
// facilitator.
type ExactEvmFacilitatorV1 struct {
	inner *ExactEvmFacilitator
}

// NewExactEvmFacilitatorV1 creates the v1 facilitator mechanism.
func NewExactEvmFacilitatorV1(signer FacilitatorEvmSigner) *ExactEvmFacilitatorV1 {
	return &ExactEvmFacilitatorV1{inner: NewExactEvmFacilitator(signer)}
}

// Scheme returns the scheme identifier.
func (f *ExactEvmFacilitatorV1) Scheme() string {
	return SchemeExact
}

// CaipFamily returns the network family this facilitator serves.
func (f *ExactEvmFacilitatorV1) CaipFamily() string {
	return CaipFamilyEVM
}

// GetExtra returns nil; EVM kinds carry no facilitator-specific extra data.
func (f *ExactEvmFacilitatorV1) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

// GetSigners returns the facilitator's settlement addresses.
func (f *ExactEvmFacilitatorV1) GetSigners(network x402.Network) []string {
	return f.inner.GetSigners(network)
}

// Verify verifies a v1 payment payload.
func (f *ExactEvmFacilitatorV1) Verify(ctx context.Context, payload types.PaymentPayloadV1, requirements types.PaymentRequirementsV1) (*x402.VerifyResponse, error) {
	canonicalPayload, canonicalRequirements := liftV1(payload, requirements)
	return f.inner.Verify(ctx, canonicalPayload, canonicalRequirements)
}

// Settle settles a v1 payment payload. The returned network keeps the
// caller's original v1 name.
func (f *ExactEvmFacilitatorV1) Settle(ctx context.Context, payload types.PaymentPayloadV1, requirements types.PaymentRequirementsV1) (*x402.SettleResponse, error) {
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
