package paymentidentifier

import (
	"github.com/x402labs/x402-go/types"
)

// declaration is the server-side ResourceServiceExtension that advertises
// payment-identifier support on 402 responses.
type declaration struct {
	required bool
}

// Declare creates the server-side extension. When required is true, clients
// must attach a payment id for their payment to verify.
func Declare(required bool) types.ResourceServiceExtension {
	return &declaration{required: required}
}

// Key returns the extension identifier.
func (d *declaration) Key() string {
	return ExtensionKey
}

// EnrichDeclaration returns the extension body advertised to clients.
func (d *declaration) EnrichDeclaration(declaration interface{}, transportContext interface{}) interface{} {
	return PaymentIdentifierExtension{Info: Info{Required: d.required}}
}
