package svm

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// ExactSvmPayload is the scheme payload for exact SVM payments: a partially
// signed Solana transaction in base64 wire encoding. The fee payer signature
// slot is blank; the facilitator fills it.
type ExactSvmPayload struct {
	Transaction string `json:"transaction"`
}

// ToMap converts the payload to the generic map form carried inside a
// payment payload.
func (p *ExactSvmPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction": p.Transaction,
	}
}

// PayloadFromMap builds an ExactSvmPayload from the generic map form.
func PayloadFromMap(data map[string]interface{}) (*ExactSvmPayload, error) {
	tx, ok := data["transaction"].(string)
	if !ok || tx == "" {
		return nil, fmt.Errorf("missing transaction field in payload")
	}
	return &ExactSvmPayload{Transaction: tx}, nil
}

// ClientSvmSigner signs payment transactions as the token owner.
type ClientSvmSigner interface {
	// Address returns the signer's public key.
	Address() solana.PublicKey

	// SignTransaction adds the signer's signature in place. Signature slots
	// for other required signers are left untouched.
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// FacilitatorSvmSigner performs the fee-payer and RPC operations a
// facilitator needs. Implementations may hold multiple keypairs per network
// for load balancing and rotation, and must be safe for concurrent use.
type FacilitatorSvmSigner interface {
	// GetAddresses returns the fee payer addresses available on a network.
	GetAddresses(ctx context.Context, network string) []solana.PublicKey

	// SignTransaction signs the transaction in place with the keypair
	// matching feePayer. Returns an error if no such keypair exists.
	SignTransaction(ctx context.Context, tx *solana.Transaction, feePayer solana.PublicKey, network string) error

	// SimulateTransaction simulates a fully signed transaction and returns
	// an error if it would fail on-chain.
	SimulateTransaction(ctx context.Context, tx *solana.Transaction, network string) error

	// SendTransaction submits the transaction and returns its signature.
	SendTransaction(ctx context.Context, tx *solana.Transaction, network string) (solana.Signature, error)

	// ConfirmTransaction blocks until the signature is confirmed or the
	// context is done.
	ConfirmTransaction(ctx context.Context, signature solana.Signature, network string) error
}

// AssetInfo describes an SPL token mint.
type AssetInfo struct {
	Address  string
	Symbol   string
	Decimals int
}

// NetworkConfig is the per-network configuration.
type NetworkConfig struct {
	Name         string
	CAIP2        string
	RPCURL       string
	DefaultAsset AssetInfo
}

// ClientConfig carries optional client configuration.
type ClientConfig struct {
	// RPCURL overrides the network's default RPC endpoint.
	RPCURL string
}
