package evm

import (
	"math/big"
)

const (
	// SchemeExact is the scheme identifier for EIP-3009 exact payments.
	SchemeExact = "exact"

	// CaipFamilyEVM matches every eip155 network.
	CaipFamilyEVM = "eip155:*"

	// DefaultDecimals is the USDC decimal count.
	DefaultDecimals = 6

	// EIP-3009 function names
	FunctionTransferWithAuthorization = "transferWithAuthorization"
	FunctionAuthorizationState        = "authorizationState"
	FunctionBalanceOf                 = "balanceOf"

	// Transaction receipt status
	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// ValidAfterSkewSeconds backdates validAfter to tolerate clock skew
	// between client and chain.
	ValidAfterSkewSeconds = 5

	// UniversalSigValidatorAddress is the ERC-6492 validator singleton.
	// Smart-wallet signatures (EIP-1271, counterfactual ERC-6492) are checked
	// through it via eth_call.
	UniversalSigValidatorAddress = "0x164af34fAF9879394370C7f09064127C043A35E9"

	// Scheme-specific verify reasons.
	ErrAmountInsufficient   = "invalid_exact_evm_payload_amount_insufficient"
	ErrAuthorizationExpired = "invalid_exact_evm_payload_authorization_expired"
	ErrRecipientMismatch    = "invalid_exact_evm_payload_recipient_mismatch"
	ErrInvalidSignature     = "invalid_eip3009_signature"
	ErrDomainMismatch       = "domain_mismatch"
	ErrValidityWindow       = "validity_window"
)

var (
	// Network chain IDs
	ChainIDBase        = big.NewInt(8453)
	ChainIDBaseSepolia = big.NewInt(84532)

	// NetworkConfigs maps CAIP-2 identifiers (and their legacy v1 names) to
	// chain configuration. Each chain's endorsed EIP-3009 stablecoin is the
	// default asset.
	NetworkConfigs = map[string]NetworkConfig{
		// Base Mainnet
		"eip155:8453": {
			ChainID: ChainIDBase,
			DefaultAsset: AssetInfo{
				Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", // USDC on Base
				Name:     "USD Coin",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
		// Base Mainnet (legacy v1 name)
		"base": {
			ChainID: ChainIDBase,
			DefaultAsset: AssetInfo{
				Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				Name:     "USD Coin",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
		// Base Sepolia Testnet
		"eip155:84532": {
			ChainID: ChainIDBaseSepolia,
			DefaultAsset: AssetInfo{
				Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e", // USDC on Base Sepolia
				Name:     "USDC",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
		// Base Sepolia Testnet (legacy v1 name)
		"base-sepolia": {
			ChainID: ChainIDBaseSepolia,
			DefaultAsset: AssetInfo{
				Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				Name:     "USDC",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
	}

	// V1NetworkNames maps legacy v1 network names to CAIP-2 form.
	V1NetworkNames = map[string]string{
		"base":         "eip155:8453",
		"base-sepolia": "eip155:84532",
	}

	// TransferWithAuthorizationABI covers EIP-3009 transferWithAuthorization
	// with split v,r,s signature components (EOA signatures).
	TransferWithAuthorizationABI = []byte(`[
		{
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "v", "type": "uint8"},
				{"name": "r", "type": "bytes32"},
				{"name": "s", "type": "bytes32"}
			],
			"name": "transferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// TransferWithAuthorizationBytesABI is the EIP-3009 overload taking the
	// signature as opaque bytes, required for smart-wallet signatures that do
	// not split into v,r,s.
	TransferWithAuthorizationBytesABI = []byte(`[
		{
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "signature", "type": "bytes"}
			],
			"name": "transferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// UniversalSigValidatorABI is the ERC-6492 isValidSig entry point.
	UniversalSigValidatorABI = []byte(`[
		{
			"inputs": [
				{"name": "_signer", "type": "address"},
				{"name": "_hash", "type": "bytes32"},
				{"name": "_signature", "type": "bytes"}
			],
			"name": "isValidSig",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// AuthorizationStateABI checks whether an EIP-3009 nonce has been used.
	AuthorizationStateABI = []byte(`[
		{
			"inputs": [
				{"name": "authorizer", "type": "address"},
				{"name": "nonce", "type": "bytes32"}
			],
			"name": "authorizationState",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC20BalanceOfABI checks token balances.
	ERC20BalanceOfABI = []byte(`[
		{
			"inputs": [
				{"name": "account", "type": "address"}
			],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC20VersionABI reads the EIP-712 version string from the token.
	ERC20VersionABI = []byte(`[
		{
			"inputs": [],
			"name": "version",
			"outputs": [{"name": "", "type": "string"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
)
