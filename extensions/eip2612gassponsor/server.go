package eip2612gassponsor

import (
	"github.com/x402labs/x402-go/types"
)

// declaration is the server-side ResourceServiceExtension advertising that
// the facilitator accepts EIP-2612 gasless Permit2 approvals.
type declaration struct{}

// Declare creates the server-side extension.
func Declare() types.ResourceServiceExtension {
	return declaration{}
}

// Key returns the extension identifier.
func (declaration) Key() string {
	return ExtensionKey
}

// EnrichDeclaration returns the extension body advertised to clients: the
// server info plus the schema the client's permit data must satisfy.
func (declaration) EnrichDeclaration(decl interface{}, transportContext interface{}) interface{} {
	return Extension{
		Info: ServerInfo{
			Description: "The facilitator accepts EIP-2612 gasless Permit to the canonical Permit2 contract.",
			Version:     "1",
		},
		Schema: InfoSchema(),
	}
}

// InfoSchema returns the JSON Schema for the client-populated info.
func InfoSchema() map[string]interface{} {
	return map[string]interface{}{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
		"properties": map[string]interface{}{
			"from": map[string]interface{}{
				"type":        "string",
				"pattern":     "^0x[a-fA-F0-9]{40}$",
				"description": "The address of the sender.",
			},
			"asset": map[string]interface{}{
				"type":        "string",
				"pattern":     "^0x[a-fA-F0-9]{40}$",
				"description": "The address of the ERC-20 token contract.",
			},
			"spender": map[string]interface{}{
				"type":        "string",
				"pattern":     "^0x[a-fA-F0-9]{40}$",
				"description": "The address of the spender (canonical Permit2).",
			},
			"amount": map[string]interface{}{
				"type":        "string",
				"pattern":     "^[0-9]+$",
				"description": "The amount to approve (uint256). Typically MaxUint.",
			},
			"nonce": map[string]interface{}{
				"type":        "string",
				"pattern":     "^[0-9]+$",
				"description": "The current nonce of the sender.",
			},
			"deadline": map[string]interface{}{
				"type":        "string",
				"pattern":     "^[0-9]+$",
				"description": "The timestamp at which the signature expires.",
			},
			"signature": map[string]interface{}{
				"type":        "string",
				"pattern":     "^0x[a-fA-F0-9]+$",
				"description": "The 65-byte concatenated signature (r, s, v) as a hex string.",
			},
			"version": map[string]interface{}{
				"type":        "string",
				"pattern":     `^[0-9]+(\.[0-9]+)*$`,
				"description": "Schema version identifier.",
			},
		},
		"required": []string{
			"from", "asset", "spender", "amount", "nonce", "deadline", "signature", "version",
		},
	}
}
