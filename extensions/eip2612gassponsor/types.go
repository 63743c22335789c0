// Package eip2612gassponsor implements the EIP-2612 gas sponsoring
// extension. Tokens that implement EIP-2612 can approve the canonical
// Permit2 contract gaslessly: the client signs an off-chain permit and the
// facilitator submits it on-chain alongside settlement.
package eip2612gassponsor

// ExtensionKey identifies the extension in extensions maps.
const ExtensionKey = "eip2612GasSponsoring"

// Info is the permit data populated by the client. The facilitator uses it
// to call settleWithPermit.
type Info struct {
	// From is the token owner.
	From string `json:"from"`
	// Asset is the ERC-20 token contract.
	Asset string `json:"asset"`
	// Spender is canonical Permit2.
	Spender string `json:"spender"`
	// Amount is the approval amount as a uint256 decimal string, typically
	// MaxUint256.
	Amount string `json:"amount"`
	// Nonce is the owner's current EIP-2612 nonce.
	Nonce string `json:"nonce"`
	// Deadline is the unix timestamp the permit expires at.
	Deadline string `json:"deadline"`
	// Signature is the 65-byte permit signature as hex.
	Signature string `json:"signature"`
	// Version is the schema version identifier.
	Version string `json:"version"`
}

// ServerInfo is the server-side info included in PaymentRequired; the
// client populates the rest.
type ServerInfo struct {
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Extension is the full extension object as it appears in
// PaymentRequired.extensions and PaymentPayload.extensions.
type Extension struct {
	Info   interface{}            `json:"info"`
	Schema map[string]interface{} `json:"schema"`
}
