package xrp

import "time"

const (
	// SchemeExact is the scheme identifier for exact payments.
	SchemeExact = "exact"

	// CaipFamilyXRP is the wildcard network pattern served by this mechanism.
	CaipFamilyXRP = "xrp:*"

	// AssetXRP is the native asset symbol. XRP has no issuing contract; the
	// asset field carries the symbol itself.
	AssetXRP = "XRP"

	// DropsPerXRP converts whole XRP to drops, the atomic unit.
	DropsPerXRP = 1_000_000

	// XRP network identifiers.
	XrpMainnetCAIP2 = "xrp:mainnet"
	XrpTestnetCAIP2 = "xrp:testnet"
	XrpDevnetCAIP2  = "xrp:devnet"

	// DefaultLastLedgerOffset is how many ledgers past the current index a
	// client-built payment stays submittable.
	DefaultLastLedgerOffset = 20

	// MaxLastLedgerOffset bounds how far into the future a facilitator will
	// accept a payment's LastLedgerSequence. Beyond this the authorization
	// window is long enough to be a replay hazard.
	MaxLastLedgerOffset = 100

	// SequenceQueueSize is how far past the account's next sequence a
	// payment may sit. rippled queues at most 10 transactions per account.
	SequenceQueueSize = 10

	// BaseReserveDrops and OwnerReserveDrops mirror the ledger's reserve
	// requirements. Balance checks subtract the reserve before comparing
	// against amount plus fee.
	BaseReserveDrops  = 1_000_000
	OwnerReserveDrops = 200_000

	// Settlement defaults. Overridable per facilitator via SettleConfig.
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 500 * time.Millisecond
	DefaultValidationTimeout = 30 * time.Second
	DefaultValidationPoll    = 1 * time.Second
)

// Verification and settlement failure reasons for the exact XRP scheme.
// XRPL tooling conventionally reports uppercase error kinds; these travel
// verbatim in VerifyResponse.InvalidReason and SettleResponse.ErrorReason.
const (
	ErrInvalidSignature    = "INVALID_SIGNATURE"
	ErrInvalidTransaction  = "INVALID_TRANSACTION"
	ErrExpired             = "EXPIRED"
	ErrSequenceOutOfRange  = "INVALID_SEQUENCE"
	ErrInsufficientFunds   = "INSUFFICIENT_FUNDS"
	ErrDestinationMismatch = "DESTINATION_MISMATCH"
	ErrAmountInsufficient  = "AMOUNT_INSUFFICIENT"
	ErrSubmitFailed        = "SUBMIT_FAILED"
)

// NetworkConfigs maps CAIP-2 identifiers to per-network configuration.
var NetworkConfigs = map[string]NetworkConfig{
	XrpMainnetCAIP2: {
		Name:  "XRP Ledger Mainnet",
		CAIP2: XrpMainnetCAIP2,
	},
	XrpTestnetCAIP2: {
		Name:  "XRP Ledger Testnet",
		CAIP2: XrpTestnetCAIP2,
	},
	XrpDevnetCAIP2: {
		Name:  "XRP Ledger Devnet",
		CAIP2: XrpDevnetCAIP2,
	},
}
