// Package offerreceipt implements the offer-receipt extension: the resource
// server attaches a signed offer per payment requirement to 402 responses,
// and a signed receipt to the settlement response. The base protocol's
// receipt is unsigned; this extension is the interoperable source of
// authenticity for trustless clients.
//
// Two signature envelopes are supported: compact JWS (detached key, any
// algorithm the caller's sign function implements) and EIP-712 typed data.
package offerreceipt

// ExtensionKey identifies the extension in extensions maps.
const ExtensionKey = "offerReceipt"

// Signature envelope types.
const (
	SignatureTypeJWS    = "jws"
	SignatureTypeEIP712 = "eip712"
)

// Offer is the signed body attached to one payment requirement. All amounts
// are atomic-unit decimal strings.
type Offer struct {
	Resource          string `json:"resource"`
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	Asset             string `json:"asset"`
	Amount            string `json:"amount"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Nonce             string `json:"nonce"`
	IssuedAt          int64  `json:"issuedAt"`
	ExpiresAt         int64  `json:"expiresAt"`
}

// Receipt is the signed body attached to a settlement response. Transaction
// is empty unless the server opted into disclosing it.
type Receipt struct {
	Resource    string `json:"resource"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Transaction string `json:"transaction,omitempty"`
	SettledAt   int64  `json:"settledAt"`
}

// SignatureEnvelope carries one signature in either supported form.
type SignatureEnvelope struct {
	Type string `json:"type"`

	// JWS is the compact serialization when Type is "jws".
	JWS string `json:"jws,omitempty"`

	// Signature, Signer, and ChainID are set when Type is "eip712".
	Signature string `json:"signature,omitempty"`
	Signer    string `json:"signer,omitempty"`
	ChainID   string `json:"chainId,omitempty"`
}

// SignedOffer pairs an offer with its signature.
type SignedOffer struct {
	Offer     Offer             `json:"offer"`
	Signature SignatureEnvelope `json:"signature"`
}

// SignedReceipt pairs a receipt with its signature.
type SignedReceipt struct {
	Receipt   Receipt           `json:"receipt"`
	Signature SignatureEnvelope `json:"signature"`
}

// OfferInfo is the extension body on 402 responses: one signed offer per
// accepts entry, index-aligned.
type OfferInfo struct {
	Offers []SignedOffer `json:"offers"`
}

// ReceiptInfo is the extension body on settlement responses.
type ReceiptInfo struct {
	Receipt SignedReceipt `json:"receipt"`
}
