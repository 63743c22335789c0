package xrp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Payment carries the XRPL Payment transaction fields the protocol cares
// about. Field names follow rippled's JSON casing. Amount is native XRP in
// drops; issued currencies are out of scope for the exact scheme.
type Payment struct {
	TransactionType    string  `json:"TransactionType"`
	Account            string  `json:"Account"`
	Destination        string  `json:"Destination"`
	Amount             string  `json:"Amount"`
	Fee                string  `json:"Fee"`
	Sequence           uint32  `json:"Sequence"`
	LastLedgerSequence uint32  `json:"LastLedgerSequence"`
	DestinationTag     *uint32 `json:"DestinationTag,omitempty"`
	SigningPubKey      string  `json:"SigningPubKey,omitempty"`
	TxnSignature       string  `json:"TxnSignature,omitempty"`
}

// ExactXrpPayload is the exact payment payload for XRP Ledger networks. The
// signed blob is authoritative; the structured transaction is advisory and
// lets intermediaries inspect the payment without a binary codec.
type ExactXrpPayload struct {
	Transaction       Payment `json:"transaction"`
	SignedTransaction string  `json:"signedTransaction"`
}

// ToMap converts an ExactXrpPayload into the generic payload map carried
// inside a PaymentPayload.
func (p *ExactXrpPayload) ToMap() map[string]interface{} {
	data, _ := json.Marshal(p)
	var result map[string]interface{}
	_ = json.Unmarshal(data, &result)
	return result
}

// PayloadFromMap creates an ExactXrpPayload from a generic payload map.
func PayloadFromMap(data map[string]interface{}) (*ExactXrpPayload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("invalid payload map: %w", err)
	}
	payload := &ExactXrpPayload{}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("invalid xrp payload: %w", err)
	}
	if payload.SignedTransaction == "" {
		return nil, fmt.Errorf("missing signedTransaction field")
	}
	return payload, nil
}

// ClientXrpSigner is the client-side XRPL signing capability.
type ClientXrpSigner interface {
	// Address returns the signer's classic address.
	Address() string

	// SignPayment signs the payment and returns the serialized signed
	// transaction as an uppercase hex blob ready for submission.
	SignPayment(ctx context.Context, payment *Payment) (string, error)
}

// AccountInfo is the subset of rippled's account_info response used for
// verification.
type AccountInfo struct {
	// Balance is the account's XRP balance in drops.
	Balance string `json:"Balance"`

	// Sequence is the account's next valid transaction sequence.
	Sequence uint32 `json:"Sequence"`

	// OwnerCount feeds the owner reserve calculation.
	OwnerCount uint32 `json:"OwnerCount"`
}

// SubmitResult is the outcome of submitting a signed transaction blob.
type SubmitResult struct {
	// EngineResult is rippled's preliminary result code ("tesSUCCESS",
	// "terQUEUED", "tefPAST_SEQ", ...).
	EngineResult string `json:"engine_result"`

	// EngineResultMessage is the human-readable companion to EngineResult.
	EngineResultMessage string `json:"engine_result_message"`

	// TxHash identifies the submitted transaction.
	TxHash string `json:"tx_hash"`
}

// TxResult is the lookup state of a previously submitted transaction.
type TxResult struct {
	// Validated reports whether the transaction is in a validated ledger.
	Validated bool `json:"validated"`

	// Result is the final transaction result code, meaningful once
	// Validated is true.
	Result string `json:"result"`

	Hash string `json:"hash"`
}

// FeeInfo is the subset of rippled's fee response used when preparing
// payments.
type FeeInfo struct {
	// BaseFeeDrops is the reference transaction cost in drops.
	BaseFeeDrops string `json:"base_fee"`

	// OpenLedgerFeeDrops is the cost to get into the current open ledger.
	OpenLedgerFeeDrops string `json:"open_ledger_fee"`
}

// LedgerClient is the narrow capability interface for talking to an XRP
// Ledger node. Implementations wrap a rippled JSON-RPC or websocket
// connection; the mechanism never assumes a particular driver.
type LedgerClient interface {
	// AccountInfo returns balance, sequence and owner count for an account.
	AccountInfo(ctx context.Context, account string) (*AccountInfo, error)

	// LedgerIndex returns the latest validated ledger index.
	LedgerIndex(ctx context.Context) (uint32, error)

	// ServerFee returns the node's current fee levels.
	ServerFee(ctx context.Context) (*FeeInfo, error)

	// SubmitBlob submits a signed transaction blob.
	SubmitBlob(ctx context.Context, blob string) (*SubmitResult, error)

	// Tx looks up a transaction by hash.
	Tx(ctx context.Context, hash string) (*TxResult, error)

	// DecodeSigned deserializes a signed blob and checks its signature.
	// The returned Payment is the authoritative decoded form; the boolean
	// reports signature validity.
	DecodeSigned(ctx context.Context, blob string) (*Payment, bool, error)
}

// NetworkConfig is per-network configuration.
type NetworkConfig struct {
	Name  string
	CAIP2 string
}

// GetNetworkConfig returns the configuration for a CAIP-2 network
// identifier.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	config, ok := NetworkConfigs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported XRP network: %s", network)
	}
	return &config, nil
}

// ClientConfig overrides client-side payment preparation defaults.
type ClientConfig struct {
	// LastLedgerOffset replaces DefaultLastLedgerOffset when non-zero.
	LastLedgerOffset uint32

	// Fee pins the transaction fee in drops instead of asking the node.
	Fee string
}
