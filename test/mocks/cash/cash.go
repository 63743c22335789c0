// Package cash is a toy payment rail used in tests. A "cash" payment is a
// promise signed by prefixing the payer's name with a tilde; it exists so
// the engines can be exercised end to end without touching a chain.
package cash

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	x402 "github.com/x402labs/x402-go"
)

// Network is the CAIP-style network identifier for the cash rail.
const Network x402.Network = "x402:cash"

// Scheme is the scheme identifier for the cash rail.
const Scheme = "cash"

// ============================================================================
// Client mechanism
// ============================================================================

// SchemeNetworkClient implements the client side of the cash scheme.
type SchemeNetworkClient struct {
	payer string
}

// NewSchemeNetworkClient creates a cash client signing as the given payer.
func NewSchemeNetworkClient(payer string) *SchemeNetworkClient {
	return &SchemeNetworkClient{payer: payer}
}

func (c *SchemeNetworkClient) Scheme() string {
	return Scheme
}

// CreatePaymentPayload signs a cash promise valid until the requirement's
// timeout elapses.
func (c *SchemeNetworkClient) CreatePaymentPayload(ctx context.Context, requirements x402.PaymentRequirements) (x402.PartialPaymentPayload, error) {
	validUntil := time.Now().Add(time.Duration(requirements.MaxTimeoutSeconds) * time.Second).Unix()

	return x402.PartialPaymentPayload{
		X402Version: 2,
		Payload: map[string]interface{}{
			"signature":  fmt.Sprintf("~%s", c.payer),
			"validUntil": strconv.FormatInt(validUntil, 10),
			"name":       c.payer,
		},
	}, nil
}

// ============================================================================
// Facilitator mechanism
// ============================================================================

// SchemeNetworkFacilitator implements the facilitator side of the cash
// scheme. It remembers settled signatures so replays fail the way a real
// rail's nonce check would.
type SchemeNetworkFacilitator struct {
	mu      sync.Mutex
	settled map[string]bool
}

// NewSchemeNetworkFacilitator creates a cash facilitator with an empty
// settlement history.
func NewSchemeNetworkFacilitator() *SchemeNetworkFacilitator {
	return &SchemeNetworkFacilitator{settled: make(map[string]bool)}
}

func (f *SchemeNetworkFacilitator) Scheme() string {
	return Scheme
}

func (f *SchemeNetworkFacilitator) CaipFamily() string {
	return "x402:*"
}

func (f *SchemeNetworkFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

func (f *SchemeNetworkFacilitator) GetSigners(network x402.Network) []string {
	return []string{"cash-operator"}
}

// Verify checks the tilde signature and the validity window.
func (f *SchemeNetworkFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	signature, name, validUntil, reason := parsePayload(payload)
	if reason != "" {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: reason}, nil
	}

	if signature != fmt.Sprintf("~%s", name) {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrInvalidPayload}, nil
	}
	if validUntil < time.Now().Unix() {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrInvalidPayload}, nil
	}

	f.mu.Lock()
	used := f.settled[replayKey(signature, validUntil)]
	f.mu.Unlock()
	if used {
		return &x402.VerifyResponse{
			IsValid:       false,
			InvalidReason: x402.ErrAuthorizationUsed,
			Payer:         name,
		}, nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: name}, nil
}

// Settle re-verifies, marks the signature spent, and fabricates a
// transaction string describing the transfer.
func (f *SchemeNetworkFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	verifyResponse, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ErrUnexpectedSettleError,
			Network:     requirements.Network,
		}, nil
	}
	if !verifyResponse.IsValid {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: verifyResponse.InvalidReason,
			Payer:       verifyResponse.Payer,
			Network:     requirements.Network,
		}, nil
	}

	signature, name, validUntil, _ := parsePayload(payload)
	f.mu.Lock()
	f.settled[replayKey(signature, validUntil)] = true
	f.mu.Unlock()

	return &x402.SettleResponse{
		Success:     true,
		Transaction: fmt.Sprintf("%s transferred %s %s to %s", name, requirements.Amount, requirements.Asset, requirements.PayTo),
		Network:     requirements.Network,
		Payer:       verifyResponse.Payer,
	}, nil
}

func parsePayload(payload x402.PaymentPayload) (signature, name string, validUntil int64, reason string) {
	signature, ok := payload.Payload["signature"].(string)
	if !ok {
		return "", "", 0, x402.ErrInvalidPayload
	}
	name, ok = payload.Payload["name"].(string)
	if !ok {
		return "", "", 0, x402.ErrInvalidPayload
	}
	validUntilStr, ok := payload.Payload["validUntil"].(string)
	if !ok {
		return "", "", 0, x402.ErrInvalidPayload
	}
	validUntil, err := strconv.ParseInt(validUntilStr, 10, 64)
	if err != nil {
		return "", "", 0, x402.ErrInvalidPayload
	}
	return signature, name, validUntil, ""
}

func replayKey(signature string, validUntil int64) string {
	return fmt.Sprintf("%s@%d", signature, validUntil)
}

// ============================================================================
// Service mechanism
// ============================================================================

// SchemeNetworkService implements the resource-server side of the cash scheme.
type SchemeNetworkService struct{}

// NewSchemeNetworkService creates a cash scheme service.
func NewSchemeNetworkService() *SchemeNetworkService {
	return &SchemeNetworkService{}
}

func (s *SchemeNetworkService) Scheme() string {
	return Scheme
}

// ParsePrice accepts AssetAmount, map, string ("$10", "10 USD"), and numeric
// prices, defaulting the asset to USD.
func (s *SchemeNetworkService) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	switch p := price.(type) {
	case x402.AssetAmount:
		return p, nil

	case map[string]interface{}:
		amount, _ := p["amount"].(string)
		asset, _ := p["asset"].(string)
		if asset == "" {
			asset = "USD"
		}
		return x402.AssetAmount{Amount: amount, Asset: asset}, nil

	case string:
		clean := strings.TrimPrefix(p, "$")
		clean = strings.TrimSuffix(clean, " USD")
		clean = strings.TrimSuffix(clean, "USD")
		clean = strings.TrimSpace(clean)
		return x402.AssetAmount{Amount: clean, Asset: "USD"}, nil

	case float64:
		return x402.AssetAmount{Amount: fmt.Sprintf("%.2f", p), Asset: "USD"}, nil

	case int:
		return x402.AssetAmount{Amount: strconv.Itoa(p), Asset: "USD"}, nil

	default:
		return x402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
	}
}

// EnhancePaymentRequirements is a no-op; cash needs no scheme extras.
func (s *SchemeNetworkService) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	return requirements, nil
}

// ============================================================================
// In-process facilitator client
// ============================================================================

// FacilitatorClient adapts an in-process facilitator to the resource
// server's facilitator-client boundary, skipping the HTTP hop.
type FacilitatorClient struct {
	facilitator *x402.X402Facilitator
}

// NewFacilitatorClient wraps the given facilitator.
func NewFacilitatorClient(facilitator *x402.X402Facilitator) *FacilitatorClient {
	return &FacilitatorClient{facilitator: facilitator}
}

func (c *FacilitatorClient) Verify(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*x402.VerifyResponse, error) {
	return c.facilitator.Verify(ctx, payloadBytes, requirementsBytes)
}

func (c *FacilitatorClient) Settle(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*x402.SettleResponse, error) {
	return c.facilitator.Settle(ctx, payloadBytes, requirementsBytes)
}

func (c *FacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	return c.facilitator.GetSupported(), nil
}

// BuildPaymentRequirements creates a requirements object for the cash rail.
func BuildPaymentRequirements(payTo string, asset string, amount string) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            Scheme,
		Network:           Network,
		Asset:             asset,
		Amount:            amount,
		PayTo:             payTo,
		MaxTimeoutSeconds: 1000,
	}
}
