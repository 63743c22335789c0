package evm

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// IsValidNetwork reports whether a network identifier has a configuration.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetNetworkConfig returns the configuration for a network.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	config, ok := NetworkConfigs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
	return &config, nil
}

// GetAssetInfo resolves an asset address to its token info on a network.
// An empty asset resolves to the network's default stablecoin.
func GetAssetInfo(network string, asset string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}
	if asset == "" || strings.EqualFold(asset, config.DefaultAsset.Address) {
		info := config.DefaultAsset
		return &info, nil
	}
	if !IsValidAddress(asset) {
		return nil, fmt.Errorf("invalid asset address: %s", asset)
	}
	// Unknown token: assume EIP-3009 with default decimals; the EIP-712
	// name/version must then come from requirements.extra.
	return &AssetInfo{Address: asset, Decimals: DefaultDecimals}, nil
}

// IsValidAddress reports whether s is a hex EVM address.
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// CreateNonce generates a random 32-byte EIP-3009 nonce as a hex string.
func CreateNonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hexutil.Encode(nonce), nil
}

// HexToBytes decodes a 0x-prefixed hex string.
func HexToBytes(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// BytesToHex encodes bytes as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return hexutil.Encode(b)
}

// ParseAmount converts a decimal token amount ("0.01") into the atomic
// amount for a token with the given decimals. String arithmetic, no floats,
// so 128-bit amounts keep full precision.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}

	whole := amount
	frac := ""
	if i := strings.Index(amount, "."); i >= 0 {
		whole = amount[:i]
		frac = amount[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	atomic, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}
	return atomic, nil
}

// FormatAmount converts an atomic amount into a decimal string.
func FormatAmount(amount *big.Int, decimals int) string {
	s := amount.String()
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if negative {
		out = "-" + out
	}
	return out
}
