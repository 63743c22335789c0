package lightning

import (
	"context"
	"fmt"

	x402 "github.com/x402labs/x402-go"
)

// ExactLightningClient implements x402.SchemeNetworkClient for exact
// Lightning payments. The server-issued invoice arrives in
// requirements.extra["invoice"]; when an InvoicePayer is configured the
// client pays it before building the payload, otherwise the invoice is
// echoed back and assumed paid out of band.
type ExactLightningClient struct {
	payer InvoicePayer
}

// NewExactLightningClient creates a client mechanism. The payer may be nil.
func NewExactLightningClient(payer InvoicePayer) *ExactLightningClient {
	return &ExactLightningClient{payer: payer}
}

// Scheme returns the scheme identifier.
func (c *ExactLightningClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload pays the requirement's invoice (when a payer is
// configured) and wraps it into the payment payload.
func (c *ExactLightningClient) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirements,
) (x402.PartialPaymentPayload, error) {
	network := CanonicalNetwork(string(requirements.Network))
	if _, ok := NetworkConfigs[network]; !ok {
		return x402.PartialPaymentPayload{}, fmt.Errorf("unsupported Lightning network: %s", requirements.Network)
	}

	bolt11 := ""
	if requirements.Extra != nil {
		bolt11, _ = requirements.Extra["invoice"].(string)
	}
	if bolt11 == "" {
		return x402.PartialPaymentPayload{}, fmt.Errorf("payment requirements carry no invoice in extra")
	}
	if err := CheckInvoiceStructure(bolt11); err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid invoice in requirements: %w", err)
	}

	payload := &ExactLightningPayload{Bolt11: bolt11}
	if c.payer != nil {
		invoiceID, err := c.payer.Pay(ctx, bolt11)
		if err != nil {
			return x402.PartialPaymentPayload{}, fmt.Errorf("failed to pay invoice: %w", err)
		}
		payload.InvoiceID = invoiceID
	}

	return x402.PartialPaymentPayload{
		X402Version: 2,
		Payload:     payload.ToMap(),
	}, nil
}
