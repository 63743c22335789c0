package paymentidentifier

import (
	"context"

	x402 "github.com/x402labs/x402-go"
)

// ClientExtension stamps a payment identifier into outgoing payment
// payloads when the server declares the extension.
type ClientExtension struct {
	// Prefix overrides the default "pay_" id prefix.
	Prefix string

	// Generate overrides id generation, e.g. to reuse an order id. The
	// generated id must satisfy IsValidPaymentID.
	Generate func() string
}

// NewClientExtension creates a client extension with default id generation.
func NewClientExtension() *ClientExtension {
	return &ClientExtension{}
}

// Key returns the extension identifier.
func (c *ClientExtension) Key() string {
	return ExtensionKey
}

// EnrichPaymentPayload attaches a payment id to the payload. An id already
// present is kept; retries must reuse the original id for the correlation
// to mean anything.
func (c *ClientExtension) EnrichPaymentPayload(
	ctx context.Context,
	payload x402.PaymentPayload,
	required x402.PaymentRequired,
) (x402.PaymentPayload, error) {
	if payload.Extensions == nil {
		payload.Extensions = make(map[string]interface{})
	}
	if existing, ok := payload.Extensions[ExtensionKey]; ok {
		if ext, err := asExtension(existing); err == nil && ext.Info.ID != "" {
			return payload, nil
		}
	}

	id := ""
	if c.Generate != nil {
		id = c.Generate()
	} else {
		id = GeneratePaymentID(c.Prefix)
	}
	payload.Extensions[ExtensionKey] = PaymentIdentifierExtension{
		Info: Info{Required: true, ID: id},
	}
	return payload, nil
}
