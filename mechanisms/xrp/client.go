package xrp

import (
	"context"
	"fmt"

	x402 "github.com/x402labs/x402-go"
)

// ExactXrpClient implements x402.SchemeNetworkClient for exact XRP payments.
// It prepares a native XRP Payment with a bounded LastLedgerSequence and
// signs it with the client's key; the facilitator submits the blob during
// settlement.
type ExactXrpClient struct {
	signer ClientXrpSigner
	ledger LedgerClient
	config *ClientConfig
}

// NewExactXrpClient creates a client mechanism backed by the given signer
// and ledger client.
func NewExactXrpClient(signer ClientXrpSigner, ledger LedgerClient, config ...*ClientConfig) *ExactXrpClient {
	c := &ExactXrpClient{signer: signer, ledger: ledger}
	if len(config) > 0 {
		c.config = config[0]
	}
	return c
}

// Scheme returns the scheme identifier.
func (c *ExactXrpClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload builds and signs the payment transaction. The account
// sequence, fee, and ledger index come from the ledger client; the signed
// blob travels alongside the structured transaction.
func (c *ExactXrpClient) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirements,
) (x402.PartialPaymentPayload, error) {
	if _, err := GetNetworkConfig(string(requirements.Network)); err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	amount, err := ParseDrops(requirements.AtomicAmount())
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid amount: %w", err)
	}

	destination, destinationTag, err := ResolveDestination(requirements.PayTo)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid payTo address: %w", err)
	}

	info, err := c.ledger.AccountInfo(ctx, c.signer.Address())
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to get account info: %w", err)
	}

	ledgerIndex, err := c.ledger.LedgerIndex(ctx)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to get ledger index: %w", err)
	}
	offset := uint32(DefaultLastLedgerOffset)
	if c.config != nil && c.config.LastLedgerOffset != 0 {
		offset = c.config.LastLedgerOffset
	}
	if offset > MaxLastLedgerOffset {
		offset = MaxLastLedgerOffset
	}

	fee := ""
	if c.config != nil {
		fee = c.config.Fee
	}
	if fee == "" {
		feeInfo, err := c.ledger.ServerFee(ctx)
		if err != nil {
			return x402.PartialPaymentPayload{}, fmt.Errorf("failed to get server fee: %w", err)
		}
		fee = feeInfo.OpenLedgerFeeDrops
		if fee == "" {
			fee = feeInfo.BaseFeeDrops
		}
	}
	if _, err := ParseDrops(fee); err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid fee: %w", err)
	}

	payment := &Payment{
		TransactionType:    "Payment",
		Account:            c.signer.Address(),
		Destination:        destination,
		Amount:             fmt.Sprintf("%d", amount),
		Fee:                fee,
		Sequence:           info.Sequence,
		LastLedgerSequence: ledgerIndex + offset,
		DestinationTag:     destinationTag,
	}

	blob, err := c.signer.SignPayment(ctx, payment)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to sign payment: %w", err)
	}

	xrpPayload := &ExactXrpPayload{
		Transaction:       *payment,
		SignedTransaction: blob,
	}
	return x402.PartialPaymentPayload{
		X402Version: 2,
		Payload:     xrpPayload.ToMap(),
	}, nil
}
