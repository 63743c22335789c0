package svm

import (
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// SchemeExact is the scheme identifier for exact payments.
	SchemeExact = "exact"

	// CaipFamilySVM is the wildcard network pattern served by this mechanism.
	CaipFamilySVM = "solana:*"

	// DefaultDecimals is the decimal count for USDC mints.
	DefaultDecimals = 6

	// DefaultComputeUnitPriceMicrolamports is the compute unit price clients
	// attach to payment transactions.
	DefaultComputeUnitPriceMicrolamports uint64 = 1

	// MaxComputeUnitPriceMicrolamports caps the compute unit price a
	// facilitator will pay for. 5 lamports per unit, expressed in
	// microlamports.
	MaxComputeUnitPriceMicrolamports uint64 = 5_000_000

	// ComputeUnitLimitTransfer covers compute-limit + compute-price +
	// transfer-checked.
	ComputeUnitLimitTransfer uint32 = 6500

	// ComputeUnitLimitTransferWithCreate additionally covers creating the
	// destination associated token account.
	ComputeUnitLimitTransferWithCreate uint32 = 31000

	// DefaultCommitment is the commitment level used for blockhash fetches
	// and confirmation.
	DefaultCommitment = rpc.CommitmentConfirmed

	// MaxConfirmAttempts bounds confirmation polling during settlement.
	MaxConfirmAttempts = 30

	// ConfirmRetryDelay is the base delay between confirmation attempts.
	ConfirmRetryDelay = 1 * time.Second

	// CAIP-2 network identifiers.
	SolanaMainnetCAIP2 = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	SolanaDevnetCAIP2  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
	SolanaTestnetCAIP2 = "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z"

	// Legacy v1 network names.
	SolanaMainnetV1 = "solana"
	SolanaDevnetV1  = "solana-devnet"
	SolanaTestnetV1 = "solana-testnet"

	// USDC mint addresses. Testnet shares the devnet mint.
	USDCMainnetAddress = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCDevnetAddress  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	USDCTestnetAddress = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
)

// Verification failure reasons for the exact SVM scheme.
const (
	ErrInvalidTransaction        = "invalid_exact_svm_payload_transaction"
	ErrTransactionDecode         = "invalid_exact_svm_payload_transaction_could_not_be_decoded"
	ErrInstructionsLength        = "invalid_exact_svm_payload_transaction_instructions_length"
	ErrComputeLimitInstruction   = "invalid_exact_svm_payload_transaction_instructions_compute_limit_instruction"
	ErrComputePriceInstruction   = "invalid_exact_svm_payload_transaction_instructions_compute_price_instruction"
	ErrComputePriceTooHigh       = "invalid_exact_svm_payload_transaction_instructions_compute_price_instruction_too_high"
	ErrCreateATAInstruction      = "invalid_exact_svm_payload_create_ata_instruction"
	ErrNoTransferInstruction     = "invalid_exact_svm_payload_no_transfer_instruction"
	ErrMintMismatch              = "invalid_exact_svm_payload_mint_mismatch"
	ErrRecipientMismatch         = "invalid_exact_svm_payload_recipient_mismatch"
	ErrAmountInsufficient        = "invalid_exact_svm_payload_amount_insufficient"
	ErrMissingFeePayer           = "invalid_exact_svm_payload_missing_fee_payer"
	ErrATANotFound               = "invalid_exact_svm_payload_ata_not_found"
	ErrFeePayerNotManaged        = "fee_payer_not_managed_by_facilitator"
	ErrFeePayerTransferringFunds = "invalid_exact_svm_payload_transaction_fee_payer_transferring_funds"
	ErrFeePayerMismatch          = "fee_payer_mismatch"
	ErrSigningFailed             = "transaction_signing_failed"
	ErrSimulationFailed          = "transaction_simulation_failed"
	ErrConfirmationFailed        = "transaction_confirmation_failed"
)

var (
	// NetworkConfigs maps CAIP-2 identifiers to network configuration.
	NetworkConfigs = map[string]NetworkConfig{
		SolanaMainnetCAIP2: {
			Name:   "Solana Mainnet",
			CAIP2:  SolanaMainnetCAIP2,
			RPCURL: "https://api.mainnet-beta.solana.com",
			DefaultAsset: AssetInfo{
				Address:  USDCMainnetAddress,
				Symbol:   "USDC",
				Decimals: DefaultDecimals,
			},
		},
		SolanaDevnetCAIP2: {
			Name:   "Solana Devnet",
			CAIP2:  SolanaDevnetCAIP2,
			RPCURL: "https://api.devnet.solana.com",
			DefaultAsset: AssetInfo{
				Address:  USDCDevnetAddress,
				Symbol:   "USDC",
				Decimals: DefaultDecimals,
			},
		},
		SolanaTestnetCAIP2: {
			Name:   "Solana Testnet",
			CAIP2:  SolanaTestnetCAIP2,
			RPCURL: "https://api.testnet.solana.com",
			DefaultAsset: AssetInfo{
				Address:  USDCTestnetAddress,
				Symbol:   "USDC",
				Decimals: DefaultDecimals,
			},
		},
	}

	// V1NetworkNames maps legacy v1 network names to CAIP-2 identifiers.
	V1NetworkNames = map[string]string{
		SolanaMainnetV1: SolanaMainnetCAIP2,
		SolanaDevnetV1:  SolanaDevnetCAIP2,
		SolanaTestnetV1: SolanaTestnetCAIP2,
	}
)
