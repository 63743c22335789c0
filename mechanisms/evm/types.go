package evm

import (
	"context"
	"fmt"
	"math/big"
)

// ExactEIP3009Authorization is the EIP-3009 TransferWithAuthorization data.
// All numeric fields travel as decimal strings so 128-bit values survive
// JSON intact.
type ExactEIP3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
	// Version is the token's EIP-712 domain version, carried so the
	// facilitator can reproduce the domain without an extra RPC.
	Version string `json:"version,omitempty"`
}

// ExactEIP3009Payload is the exact payment payload for EVM networks.
type ExactEIP3009Payload struct {
	Signature     string                    `json:"signature,omitempty"`
	Authorization ExactEIP3009Authorization `json:"authorization"`
}

// ToMap converts an ExactEIP3009Payload into the generic payload map carried
// inside a PaymentPayload.
func (p *ExactEIP3009Payload) ToMap() map[string]interface{} {
	auth := map[string]interface{}{
		"from":        p.Authorization.From,
		"to":          p.Authorization.To,
		"value":       p.Authorization.Value,
		"validAfter":  p.Authorization.ValidAfter,
		"validBefore": p.Authorization.ValidBefore,
		"nonce":       p.Authorization.Nonce,
	}
	if p.Authorization.Version != "" {
		auth["version"] = p.Authorization.Version
	}
	result := map[string]interface{}{
		"authorization": auth,
	}
	if p.Signature != "" {
		result["signature"] = p.Signature
	}
	return result
}

// PayloadFromMap creates an ExactEIP3009Payload from a generic payload map.
func PayloadFromMap(data map[string]interface{}) (*ExactEIP3009Payload, error) {
	payload := &ExactEIP3009Payload{}

	if sig, ok := data["signature"].(string); ok {
		payload.Signature = sig
	}

	auth, ok := data["authorization"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid authorization field")
	}
	fields := map[string]*string{
		"from":        &payload.Authorization.From,
		"to":          &payload.Authorization.To,
		"value":       &payload.Authorization.Value,
		"validAfter":  &payload.Authorization.ValidAfter,
		"validBefore": &payload.Authorization.ValidBefore,
		"nonce":       &payload.Authorization.Nonce,
	}
	for name, dst := range fields {
		value, ok := auth[name].(string)
		if !ok {
			return nil, fmt.Errorf("missing or invalid authorization.%s field", name)
		}
		*dst = value
	}
	if version, ok := auth["version"].(string); ok {
		payload.Authorization.Version = version
	}

	return payload, nil
}

// ClientEvmSigner is the client-side EVM signing capability.
type ClientEvmSigner interface {
	// Address returns the signer's Ethereum address.
	Address() string

	// SignTypedData signs EIP-712 typed data and returns a 65-byte signature
	// with v in the {27, 28} convention.
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// FacilitatorEvmSigner is the facilitator-side EVM capability: on-chain reads
// for verification, writes for settlement. Multiple addresses support key
// rotation.
type FacilitatorEvmSigner interface {
	// GetAddresses returns all addresses this facilitator can sign with.
	GetAddresses() []string

	// ReadContract reads data from a contract.
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)

	// VerifyTypedData verifies an EIP-712 signature against an address.
	VerifyTypedData(ctx context.Context, address string, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}, signature []byte) (bool, error)

	// WriteContract executes a contract transaction and returns its hash.
	WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error)

	// WaitForTransactionReceipt blocks until the transaction is mined.
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)

	// GetBalance returns an address's balance of a token.
	GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error)

	// GetChainID returns the chain ID of the connected network.
	GetChainID(ctx context.Context) (*big.Int, error)
}

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField is a field in an EIP-712 type definition.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransactionReceipt is the receipt of a mined transaction.
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// AssetInfo describes an ERC-20 token usable for payments.
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig is per-chain configuration.
type NetworkConfig struct {
	ChainID      *big.Int
	DefaultAsset AssetInfo
}
