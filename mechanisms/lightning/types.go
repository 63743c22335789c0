package lightning

import (
	"context"
	"fmt"
)

// ExactLightningPayload is the exact payment payload for Lightning
// networks. The BOLT11 string is the invoice being paid; InvoiceID is an
// optional node-local identifier (payment hash or backend id) that lets the
// lookup skip decoding.
type ExactLightningPayload struct {
	Bolt11    string `json:"bolt11"`
	InvoiceID string `json:"invoiceId,omitempty"`
}

// ToMap converts the payload into the generic payload map carried inside a
// PaymentPayload.
func (p *ExactLightningPayload) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"bolt11": p.Bolt11,
	}
	if p.InvoiceID != "" {
		result["invoiceId"] = p.InvoiceID
	}
	return result
}

// PayloadFromMap creates an ExactLightningPayload from a generic payload
// map.
func PayloadFromMap(data map[string]interface{}) (*ExactLightningPayload, error) {
	payload := &ExactLightningPayload{}
	bolt11, ok := data["bolt11"].(string)
	if !ok || bolt11 == "" {
		return nil, fmt.Errorf("missing or invalid bolt11 field")
	}
	payload.Bolt11 = bolt11
	if id, ok := data["invoiceId"].(string); ok {
		payload.InvoiceID = id
	}
	return payload, nil
}

// InvoiceStatus is what an InvoiceLookup reports about an invoice.
type InvoiceStatus struct {
	// Settled reports whether the invoice has been paid.
	Settled bool

	// AmountMsat is the settled amount in millisatoshis.
	AmountMsat uint64

	// SettleID identifies the settlement on the backend (payment hash or
	// preimage). Travels as SettleResponse.Transaction when non-empty.
	SettleID string
}

// InvoiceLookup is the port through which the facilitator confirms invoice
// settlement. Implementations typically wrap an LND or CLN node API.
type InvoiceLookup interface {
	Lookup(ctx context.Context, invoiceID string, bolt11 string) (*InvoiceStatus, error)
}

// InvoiceIssuer is the optional server-side port for generating invoices.
// When configured, the service attaches a fresh invoice to each payment
// requirement so clients need no issuing relationship of their own.
type InvoiceIssuer interface {
	Issue(ctx context.Context, amountMsat uint64, description string) (bolt11 string, invoiceID string, err error)
}

// InvoicePayer is the optional client-side port for paying an invoice
// through the payer's own node or wallet.
type InvoicePayer interface {
	Pay(ctx context.Context, bolt11 string) (invoiceID string, err error)
}
