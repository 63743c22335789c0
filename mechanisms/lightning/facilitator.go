package lightning

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	x402 "github.com/x402labs/x402-go"
)

// ExactLightningFacilitator implements x402.SchemeNetworkFacilitator for
// exact Lightning payments. Verification is structural; settlement confirms
// the invoice through the InvoiceLookup port.
type ExactLightningFacilitator struct {
	lookup InvoiceLookup
}

// NewExactLightningFacilitator creates a facilitator mechanism. A nil
// lookup falls back to SyntheticLookup, which never talks to a node and
// must not be used in production.
func NewExactLightningFacilitator(lookup InvoiceLookup) *ExactLightningFacilitator {
	if lookup == nil {
		lookup = SyntheticLookup{}
	}
	return &ExactLightningFacilitator{lookup: lookup}
}

// Scheme returns the scheme identifier.
func (f *ExactLightningFacilitator) Scheme() string {
	return SchemeExact
}

// CaipFamily returns the network family this facilitator serves.
func (f *ExactLightningFacilitator) CaipFamily() string {
	return CaipFamilyLightning
}

// GetExtra returns nil; Lightning kinds carry no facilitator-specific extra
// data.
func (f *ExactLightningFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

// GetSigners returns nil; Lightning settlement involves no on-chain signing
// key.
func (f *ExactLightningFacilitator) GetSigners(network x402.Network) []string {
	return nil
}

// Verify checks the payload structurally: a well-formed BOLT11 string whose
// prefix matches the network. Lightning has no payer address to recover, so
// Payer stays empty.
func (f *ExactLightningFacilitator) Verify(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (*x402.VerifyResponse, error) {
	scheme, network := payload.SchemeNetwork()
	if scheme != SchemeExact {
		return invalid(x402.ErrUnsupportedScheme), nil
	}
	canonical := x402.Network(CanonicalNetwork(string(requirements.Network)))
	if !x402.Network(CanonicalNetwork(string(network))).Match(canonical) {
		return invalid(x402.ErrNetworkMismatch), nil
	}
	if _, ok := NetworkConfigs[string(canonical)]; !ok {
		return invalid(x402.ErrInvalidNetwork), nil
	}

	lnPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return invalid(x402.ErrInvalidPayload), nil
	}
	if err := CheckInvoiceStructure(lnPayload.Bolt11); err != nil {
		return invalid(ErrInvalidInvoice), nil
	}
	if err := CheckNetworkPrefix(lnPayload.Bolt11, string(canonical)); err != nil {
		return invalid(ErrNetworkPrefix), nil
	}

	return &x402.VerifyResponse{IsValid: true}, nil
}

// Settle verifies the payload, then confirms through the lookup that the
// invoice is settled for at least the required amount.
func (f *ExactLightningFacilitator) Settle(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (*x402.SettleResponse, error) {
	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}
	if !verifyResp.IsValid {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: verifyResp.InvalidReason,
			Network:     requirements.Network,
		}, nil
	}

	lnPayload, _ := PayloadFromMap(payload.Payload)

	status, err := f.lookup.Lookup(ctx, lnPayload.InvoiceID, lnPayload.Bolt11)
	if err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: ErrLookupFailed,
			Network:     requirements.Network,
		}, nil
	}
	if !status.Settled {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: ErrInvoiceNotSettled,
			Network:     requirements.Network,
		}, nil
	}

	required, err := strconv.ParseUint(requirements.AtomicAmount(), 10, 64)
	if err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ErrInvalidPaymentRequirements,
			Network:     requirements.Network,
		}, nil
	}
	if status.AmountMsat < required {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: ErrAmountInsufficient,
			Network:     requirements.Network,
		}, nil
	}

	transaction := status.SettleID
	if transaction == "" {
		transaction = lnPayload.InvoiceID
	}
	return &x402.SettleResponse{
		Success:     true,
		Transaction: transaction,
		Network:     requirements.Network,
	}, nil
}

// SyntheticLookup is a proof-of-concept InvoiceLookup that reports every
// invoice as settled under a synthetic identifier. It performs no node
// lookup whatsoever and exists only so the scheme can be exercised end to
// end without Lightning infrastructure. Never deploy it where money is
// real.
type SyntheticLookup struct{}

// Lookup reports the invoice settled with a fresh UUID settle identifier
// and no amount information.
func (SyntheticLookup) Lookup(ctx context.Context, invoiceID string, bolt11 string) (*InvoiceStatus, error) {
	if bolt11 == "" {
		return nil, fmt.Errorf("empty invoice")
	}
	return &InvoiceStatus{
		Settled: true,
		// ^uint64(0) so any required amount passes; the synthetic lookup
		// has no node to ask.
		AmountMsat: ^uint64(0),
		SettleID:   "ln-poc-" + uuid.New().String(),
	}, nil
}

func invalid(reason string) *x402.VerifyResponse {
	return &x402.VerifyResponse{IsValid: false, InvalidReason: reason}
}
