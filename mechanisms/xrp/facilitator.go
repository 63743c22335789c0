package xrp

import (
	"context"
	"fmt"
	"strings"
	"time"

	x402 "github.com/x402labs/x402-go"
)

// SettleConfig tunes submission retries and validation polling.
type SettleConfig struct {
	MaxRetries        int
	RetryDelay        time.Duration
	ValidationTimeout time.Duration
	ValidationPoll    time.Duration
}

func (c *SettleConfig) fillDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ValidationTimeout <= 0 {
		c.ValidationTimeout = DefaultValidationTimeout
	}
	if c.ValidationPoll <= 0 {
		c.ValidationPoll = DefaultValidationPoll
	}
}

// ExactXrpFacilitator implements x402.SchemeNetworkFacilitator for exact XRP
// payments. Verification decodes the signed blob through the ledger client
// and checks destination, amount, ledger window, sequence, and reserve-aware
// balance; settlement submits the blob and polls until validated.
type ExactXrpFacilitator struct {
	ledger  LedgerClient
	signers []string
	config  SettleConfig
}

// NewExactXrpFacilitator creates a facilitator mechanism backed by the given
// ledger client. Submitting accounts are advertised through signers; XRP
// settlement needs no facilitator key, so the list may be empty.
func NewExactXrpFacilitator(ledger LedgerClient, signers []string, config ...*SettleConfig) *ExactXrpFacilitator {
	f := &ExactXrpFacilitator{ledger: ledger, signers: signers}
	if len(config) > 0 && config[0] != nil {
		f.config = *config[0]
	}
	f.config.fillDefaults()
	return f
}

// Scheme returns the scheme identifier.
func (f *ExactXrpFacilitator) Scheme() string {
	return SchemeExact
}

// CaipFamily returns the network family this facilitator serves.
func (f *ExactXrpFacilitator) CaipFamily() string {
	return CaipFamilyXRP
}

// GetExtra returns nil; XRP kinds carry no facilitator-specific extra data.
func (f *ExactXrpFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

// GetSigners returns the facilitator's submitting accounts.
func (f *ExactXrpFacilitator) GetSigners(network x402.Network) []string {
	return f.signers
}

// Verify checks a payment payload against requirements without submitting
// it. The decoded blob is authoritative; the structured transaction in the
// payload is never trusted for verification.
func (f *ExactXrpFacilitator) Verify(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (*x402.VerifyResponse, error) {
	scheme, network := payload.SchemeNetwork()
	if scheme != SchemeExact {
		return invalid(x402.ErrUnsupportedScheme, ""), nil
	}
	if !network.Match(requirements.Network) {
		return invalid(x402.ErrNetworkMismatch, ""), nil
	}
	if _, err := GetNetworkConfig(string(requirements.Network)); err != nil {
		return invalid(x402.ErrInvalidNetwork, ""), nil
	}

	xrpPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return invalid(x402.ErrInvalidPayload, ""), nil
	}

	decoded, sigValid, err := f.ledger.DecodeSigned(ctx, xrpPayload.SignedTransaction)
	if err != nil {
		return invalid(ErrInvalidTransaction, ""), nil
	}
	payer := decoded.Account
	if !sigValid {
		return invalid(ErrInvalidSignature, payer), nil
	}
	if decoded.TransactionType != "Payment" {
		return invalid(ErrInvalidTransaction, payer), nil
	}

	destination, destinationTag, err := ResolveDestination(requirements.PayTo)
	if err != nil {
		return invalid(x402.ErrInvalidPaymentRequirements, payer), nil
	}
	if decoded.Destination != destination {
		return invalid(ErrDestinationMismatch, payer), nil
	}
	if destinationTag != nil {
		if decoded.DestinationTag == nil || *decoded.DestinationTag != *destinationTag {
			return invalid(ErrDestinationMismatch, payer), nil
		}
	}

	amount, err := ParseDrops(decoded.Amount)
	if err != nil {
		return invalid(ErrInvalidTransaction, payer), nil
	}
	required, err := ParseDrops(requirements.AtomicAmount())
	if err != nil {
		return invalid(x402.ErrInvalidPaymentRequirements, payer), nil
	}
	if amount < required {
		return invalid(ErrAmountInsufficient, payer), nil
	}
	fee, err := ParseDrops(decoded.Fee)
	if err != nil {
		return invalid(ErrInvalidTransaction, payer), nil
	}

	ledgerIndex, err := f.ledger.LedgerIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger index: %w", err)
	}
	if decoded.LastLedgerSequence <= ledgerIndex {
		return invalid(ErrExpired, payer), nil
	}
	if decoded.LastLedgerSequence > ledgerIndex+MaxLastLedgerOffset {
		return invalid(ErrExpired, payer), nil
	}

	info, err := f.ledger.AccountInfo(ctx, payer)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	if decoded.Sequence < info.Sequence || decoded.Sequence > info.Sequence+SequenceQueueSize {
		return invalid(ErrSequenceOutOfRange, payer), nil
	}

	balance, err := ParseDrops(info.Balance)
	if err != nil {
		return nil, fmt.Errorf("invalid account balance %q: %w", info.Balance, err)
	}
	reserve := uint64(BaseReserveDrops) + uint64(info.OwnerCount)*OwnerReserveDrops
	needed := amount + fee
	if balance < reserve || balance-reserve < needed {
		return invalid(ErrInsufficientFunds, payer), nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle verifies the payment, submits the signed blob with retries on
// transient engine results, then polls the ledger until the transaction is
// validated or the timeout elapses.
func (f *ExactXrpFacilitator) Settle(
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
			Payer:       verifyResp.Payer,
			Network:     requirements.Network,
		}, nil
	}
	payer := verifyResp.Payer

	xrpPayload, _ := PayloadFromMap(payload.Payload)

	txHash, submitErr := f.submitWithRetries(ctx, xrpPayload.SignedTransaction)
	if submitErr != "" {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: submitErr,
			Payer:       payer,
			Network:     requirements.Network,
		}, nil
	}

	result, reason := f.awaitValidation(ctx, txHash)
	if reason != "" {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: reason,
			Payer:       payer,
			Transaction: txHash,
			Network:     requirements.Network,
		}, nil
	}
	if !strings.HasPrefix(result, "tes") {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: ErrSubmitFailed,
			Payer:       payer,
			Transaction: txHash,
			Network:     requirements.Network,
		}, nil
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     requirements.Network,
		Payer:       payer,
	}, nil
}

// submitWithRetries submits the blob, retrying transient engine results
// ("ter"/"tel" class). Returns the transaction hash, or a non-empty failure
// reason.
func (f *ExactXrpFacilitator) submitWithRetries(ctx context.Context, blob string) (string, string) {
	var lastHash string
	for attempt := 0; attempt < f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ErrSubmitFailed
			case <-time.After(f.config.RetryDelay):
			}
		}

		result, err := f.ledger.SubmitBlob(ctx, blob)
		if err != nil {
			continue
		}
		lastHash = result.TxHash

		code := result.EngineResult
		switch {
		case strings.HasPrefix(code, "tes"), code == "terQUEUED":
			return result.TxHash, ""
		case strings.HasPrefix(code, "tef"), strings.HasPrefix(code, "tem"):
			// Malformed or permanently failed; retrying cannot help.
			return "", ErrSubmitFailed
		case strings.HasPrefix(code, "tec"):
			// Claimed fee and failed; the transaction is final.
			return "", ErrSubmitFailed
		}
		// ter/tel class: transient, retry.
	}
	if lastHash != "" {
		// The last submit was transient; the transaction may still land.
		return lastHash, ""
	}
	return "", ErrSubmitFailed
}

// awaitValidation polls until the transaction appears in a validated ledger.
// Returns the final result code, or a non-empty failure reason.
func (f *ExactXrpFacilitator) awaitValidation(ctx context.Context, txHash string) (string, string) {
	deadline := time.Now().Add(f.config.ValidationTimeout)
	for {
		tx, err := f.ledger.Tx(ctx, txHash)
		if err == nil && tx.Validated {
			return tx.Result, ""
		}
		if time.Now().After(deadline) {
			return "", x402.ErrTransactionTimeout
		}
		select {
		case <-ctx.Done():
			return "", x402.ErrTransactionTimeout
		case <-time.After(f.config.ValidationPoll):
		}
	}
}

func invalid(reason, payer string) *x402.VerifyResponse {
	return &x402.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}
}
