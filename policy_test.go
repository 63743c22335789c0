package x402

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func requirement(network Network, asset, amount string) PaymentRequirements {
	return PaymentRequirements{
		Scheme:  "exact",
		Network: network,
		Asset:   asset,
		Amount:  amount,
		PayTo:   "recipient",
	}
}

func TestWalletPolicyGlobalCap(t *testing.T) {
	policy := WalletPolicy{MaxAtomic: big.NewInt(10000)}

	assert.True(t, policy.Allows(requirement("eip155:8453", "0xusdc", "10000")))
	assert.True(t, policy.Allows(requirement("solana:mainnet", "usdc", "1")))
	assert.False(t, policy.Allows(requirement("eip155:8453", "0xusdc", "10001")))
}

func TestWalletPolicyEmptyAllowsEverything(t *testing.T) {
	policy := WalletPolicy{}
	assert.True(t, policy.Allows(requirement("eip155:8453", "0xusdc", "1000000000")))
}

func TestWalletPolicyPerNetworkLimits(t *testing.T) {
	policy := WalletPolicy{
		Limits: map[Network]map[string]*big.Int{
			"eip155:8453": {
				"0xusdc": big.NewInt(50000),
				"*":      big.NewInt(100),
			},
		},
	}

	assert.True(t, policy.Allows(requirement("eip155:8453", "0xusdc", "50000")))
	assert.False(t, policy.Allows(requirement("eip155:8453", "0xusdc", "50001")))

	// Unlisted assets fall through to the wildcard entry.
	assert.True(t, policy.Allows(requirement("eip155:8453", "0xdai", "100")))
	assert.False(t, policy.Allows(requirement("eip155:8453", "0xdai", "101")))

	// Networks absent from the limits map are rejected outright.
	assert.False(t, policy.Allows(requirement("solana:mainnet", "usdc", "1")))
}

func TestWalletPolicyWildcardNetwork(t *testing.T) {
	policy := WalletPolicy{
		Limits: map[Network]map[string]*big.Int{
			"eip155:*": {"*": big.NewInt(10000)},
		},
	}

	assert.True(t, policy.Allows(requirement("eip155:8453", "0xusdc", "10000")))
	assert.True(t, policy.Allows(requirement("eip155:84532", "0xusdc", "500")))
	assert.False(t, policy.Allows(requirement("solana:mainnet", "usdc", "1")))
}

func TestWalletPolicyRejectsUnparseableAmount(t *testing.T) {
	policy := WalletPolicy{}
	assert.False(t, policy.Allows(requirement("eip155:8453", "0xusdc", "not-a-number")))
}
