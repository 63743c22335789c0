package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	x402 "github.com/x402labs/x402-go"
)

// ExactEvmService implements x402.SchemeNetworkService for EVM exact
// payments. It is stateless; resource servers share one instance across
// networks.
type ExactEvmService struct{}

// NewExactEvmService creates a new ExactEvmService.
func NewExactEvmService() *ExactEvmService {
	return &ExactEvmService{}
}

// Scheme returns the scheme identifier.
func (s *ExactEvmService) Scheme() string {
	return SchemeExact
}

// ParsePrice converts a route price into an atomic asset amount. Accepted
// forms: "$0.01", "0.01", "0.01 USDC", and bare atomic integers ("10000").
func (s *ExactEvmService) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	priceStr, ok := price.(string)
	if !ok {
		priceStr = fmt.Sprintf("%v", price)
	}

	priceStr = strings.TrimSpace(priceStr)
	priceStr = strings.TrimPrefix(priceStr, "$")
	priceStr = strings.TrimSuffix(priceStr, " USD")
	priceStr = strings.TrimSuffix(priceStr, " USDC")
	priceStr = strings.TrimSpace(priceStr)

	config, err := GetNetworkConfig(string(network))
	if err != nil {
		return x402.AssetAmount{}, err
	}

	if strings.Contains(priceStr, ".") {
		amount, err := ParseAmount(priceStr, config.DefaultAsset.Decimals)
		if err != nil {
			return x402.AssetAmount{}, fmt.Errorf("failed to parse decimal price: %w", err)
		}
		return x402.AssetAmount{
			Asset:  config.DefaultAsset.Address,
			Amount: amount.String(),
		}, nil
	}

	amount, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return x402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
	}

	// An integer at or above one whole token is taken as an atomic amount;
	// below that it reads as whole dollars.
	oneUnit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(config.DefaultAsset.Decimals)), nil)
	if amount.Cmp(oneUnit) < 0 {
		amount.Mul(amount, oneUnit)
	}

	return x402.AssetAmount{
		Asset:  config.DefaultAsset.Address,
		Amount: amount.String(),
	}, nil
}

// EnhancePaymentRequirements fills in the EIP-712 domain fields (token name
// and version) that clients need to reproduce the signature domain.
func (s *ExactEvmService) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	networkStr := string(requirements.Network)
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return requirements, err
	}

	var assetInfo *AssetInfo
	if requirements.Asset != "" {
		assetInfo, err = GetAssetInfo(networkStr, requirements.Asset)
		if err != nil {
			return requirements, err
		}
	} else {
		assetInfo = &config.DefaultAsset
		requirements.Asset = assetInfo.Address
	}

	if requirements.Amount != "" && strings.Contains(requirements.Amount, ".") {
		amount, err := ParseAmount(requirements.Amount, assetInfo.Decimals)
		if err != nil {
			return requirements, fmt.Errorf("failed to parse amount: %w", err)
		}
		requirements.Amount = amount.String()
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}

	// Only fill what the route did not pin explicitly.
	if _, ok := requirements.Extra["name"]; !ok && assetInfo.Name != "" {
		requirements.Extra["name"] = assetInfo.Name
	}
	if _, ok := requirements.Extra["version"]; !ok && assetInfo.Version != "" {
		requirements.Extra["version"] = assetInfo.Version
	}

	// Carry facilitator-declared extension data into the requirement.
	if supportedKind.Extra != nil {
		for _, key := range extensionKeys {
			if val, ok := supportedKind.Extra[key]; ok {
				requirements.Extra[key] = val
			}
		}
	}

	return requirements, nil
}

// GetDisplayAmount formats an atomic amount for human display.
func (s *ExactEvmService) GetDisplayAmount(amount string, network string, asset string) (string, error) {
	assetInfo, err := GetAssetInfo(network, asset)
	if err != nil {
		return "", err
	}

	amountBig, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount: %s", amount)
	}

	return "$" + FormatAmount(amountBig, assetInfo.Decimals) + " USDC", nil
}
