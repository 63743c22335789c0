package svm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	x402 "github.com/x402labs/x402-go"
)

// ExactSvmService implements x402.SchemeNetworkService for SVM exact
// payments. It is stateless; resource servers share one instance across
// networks.
type ExactSvmService struct{}

// NewExactSvmService creates a new ExactSvmService.
func NewExactSvmService() *ExactSvmService {
	return &ExactSvmService{}
}

// Scheme returns the scheme identifier.
func (s *ExactSvmService) Scheme() string {
	return SchemeExact
}

// ParsePrice converts a route price into an atomic asset amount. Accepted
// forms: a pre-parsed {amount, asset, extra} object, strings such as
// "$0.01", "0.01" and "0.01 USDC", and bare numbers read as whole dollars.
func (s *ExactSvmService) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	config, err := GetNetworkConfig(string(network))
	if err != nil {
		return x402.AssetAmount{}, err
	}

	switch v := price.(type) {
	case map[string]interface{}:
		return s.parsePriceObject(v, config)
	case string:
		return s.parsePriceString(v, config)
	case float64:
		return s.atomicAmount(strconv.FormatFloat(v, 'f', config.DefaultAsset.Decimals, 64), &config.DefaultAsset)
	case int:
		return s.atomicAmount(strconv.Itoa(v), &config.DefaultAsset)
	case int64:
		return s.atomicAmount(strconv.FormatInt(v, 10), &config.DefaultAsset)
	}

	return x402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
}

func (s *ExactSvmService) parsePriceObject(priceMap map[string]interface{}, config *NetworkConfig) (x402.AssetAmount, error) {
	amountVal, ok := priceMap["amount"]
	if !ok {
		return x402.AssetAmount{}, fmt.Errorf("price object is missing amount")
	}
	amountStr, ok := amountVal.(string)
	if !ok {
		return x402.AssetAmount{}, fmt.Errorf("price amount must be a string")
	}

	asset := config.DefaultAsset.Address
	if assetVal, ok := priceMap["asset"].(string); ok {
		asset = assetVal
	}
	extra := map[string]interface{}{}
	if extraVal, ok := priceMap["extra"].(map[string]interface{}); ok {
		extra = extraVal
	}

	return x402.AssetAmount{Amount: amountStr, Asset: asset, Extra: extra}, nil
}

func (s *ExactSvmService) parsePriceString(priceStr string, config *NetworkConfig) (x402.AssetAmount, error) {
	cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(priceStr), "$"))
	parts := strings.Fields(cleaned)

	switch len(parts) {
	case 1:
		return s.atomicAmount(parts[0], &config.DefaultAsset)
	case 2:
		symbol := strings.ToUpper(parts[1])
		assetInfo := &config.DefaultAsset
		if symbol != "USDC" && symbol != "USD" {
			info, err := GetAssetInfo(config.CAIP2, parts[1])
			if err != nil {
				return x402.AssetAmount{}, fmt.Errorf("unsupported asset %s on network %s", parts[1], config.CAIP2)
			}
			assetInfo = info
		}
		return s.atomicAmount(parts[0], assetInfo)
	}

	return x402.AssetAmount{}, fmt.Errorf("invalid price format: %q", priceStr)
}

func (s *ExactSvmService) atomicAmount(amountStr string, assetInfo *AssetInfo) (x402.AssetAmount, error) {
	amount, err := ParseAmount(amountStr, assetInfo.Decimals)
	if err != nil {
		return x402.AssetAmount{}, err
	}
	return x402.AssetAmount{
		Amount: strconv.FormatUint(amount, 10),
		Asset:  assetInfo.Address,
		Extra:  map[string]interface{}{},
	}, nil
}

// EnhancePaymentRequirements normalizes the asset and amount and copies the
// facilitator's fee payer into the requirement's extra map. Clients cannot
// build a transaction without it.
func (s *ExactSvmService) EnhancePaymentRequirements(
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
		requirements.Amount = strconv.FormatUint(amount, 10)
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}

	if supportedKind.Extra != nil {
		if feePayer, ok := supportedKind.Extra["feePayer"]; ok {
			requirements.Extra["feePayer"] = feePayer
		}
		// Carry facilitator-declared extension data into the requirement.
		for _, key := range extensionKeys {
			if val, ok := supportedKind.Extra[key]; ok {
				requirements.Extra[key] = val
			}
		}
	}

	return requirements, nil
}

// GetDisplayAmount formats an atomic amount for human display.
func (s *ExactSvmService) GetDisplayAmount(amount string, network string, asset string) (string, error) {
	assetInfo, err := GetAssetInfo(network, asset)
	if err != nil {
		return "", err
	}
	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid amount: %s", amount)
	}
	return "$" + FormatAmount(value, assetInfo.Decimals) + " USDC", nil
}
