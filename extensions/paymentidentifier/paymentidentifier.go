// Package paymentidentifier implements the payment-identifier extension:
// client-supplied correlation ids that travel with the payment and let both
// sides reconcile verify and settle operations across retries.
package paymentidentifier

import "regexp"

// ExtensionKey identifies the extension in extensions maps.
const ExtensionKey = "paymentIdentifier"

// Payment id format bounds.
const (
	PaymentIDMinLength = 16
	PaymentIDMaxLength = 128
)

// paymentIDPattern allows alphanumerics, hyphens, and underscores.
var paymentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Info is the extension body: the server's required flag on declarations,
// the client's id on payloads.
type Info struct {
	Required bool   `json:"required"`
	ID       string `json:"id,omitempty"`
}

// PaymentIdentifierExtension is the extension envelope.
type PaymentIdentifierExtension struct {
	Info Info `json:"info"`
}

// ValidationResult reports extension validation problems.
type ValidationResult struct {
	Valid  bool
	Errors []string
}
