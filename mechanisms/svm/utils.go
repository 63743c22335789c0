package svm

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
)

// IsValidNetwork reports whether the network is a supported Solana network,
// in either CAIP-2 or legacy v1 form.
func IsValidNetwork(network string) bool {
	if _, ok := NetworkConfigs[network]; ok {
		return true
	}
	_, ok := V1NetworkNames[network]
	return ok
}

// CanonicalNetwork maps a legacy v1 network name ("solana-devnet") to its
// CAIP-2 form. Already-canonical names pass through.
func CanonicalNetwork(network string) string {
	if caip, ok := V1NetworkNames[network]; ok {
		return caip
	}
	return network
}

// LegacyNetworkName maps a CAIP-2 network back to its v1 name when one
// exists.
func LegacyNetworkName(network string) string {
	for legacy, caip := range V1NetworkNames {
		if caip == network {
			return legacy
		}
	}
	return network
}

// GetNetworkConfig returns the configuration for a network given in CAIP-2
// or legacy v1 form.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	config, ok := NetworkConfigs[CanonicalNetwork(network)]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
	return &config, nil
}

// GetAssetInfo resolves an asset reference on a network. The asset may be a
// mint address, a known symbol, or empty for the network default. Unknown
// but well-formed mint addresses are accepted with default decimals.
func GetAssetInfo(network string, asset string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	if asset == "" || asset == config.DefaultAsset.Address ||
		strings.EqualFold(asset, config.DefaultAsset.Symbol) {
		info := config.DefaultAsset
		return &info, nil
	}

	if _, err := solana.PublicKeyFromBase58(asset); err != nil {
		return nil, fmt.Errorf("invalid asset %q on network %s", asset, network)
	}
	return &AssetInfo{Address: asset, Decimals: DefaultDecimals}, nil
}

// EncodeTransaction serializes a transaction to base64 wire encoding.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeTransaction parses a base64-encoded transaction.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

// ParseAmount converts a decimal amount string into the token's smallest
// unit. Amounts with more fractional digits than the token carries are
// rejected rather than rounded.
func ParseAmount(amount string, decimals int) (uint64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, fmt.Errorf("empty amount")
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(combined, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %s: %w", amount, err)
	}
	return value, nil
}

// FormatAmount renders a smallest-unit amount as a decimal string.
func FormatAmount(amount uint64, decimals int) string {
	s := strconv.FormatUint(amount, 10)
	if decimals == 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// GetTokenPayerFromTransaction returns the token owner authorizing the
// transfer: the authority account of the first token-program instruction.
func GetTokenPayerFromTransaction(tx *solana.Transaction) (string, error) {
	return tokenPayerFromInstructions(tx, tx.Message.Instructions)
}

func tokenPayerFromInstructions(tx *solana.Transaction, instructions []solana.CompiledInstruction) (string, error) {
	for _, inst := range instructions {
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
		if !progID.Equals(solana.TokenProgramID) && !progID.Equals(solana.Token2022ProgramID) {
			continue
		}
		// TransferChecked account order: source, mint, destination, authority.
		if len(inst.Accounts) < 4 {
			continue
		}
		authorityIndex := inst.Accounts[3]
		if int(authorityIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		return tx.Message.AccountKeys[authorityIndex].String(), nil
	}
	return "", fmt.Errorf("no token transfer instruction found")
}
