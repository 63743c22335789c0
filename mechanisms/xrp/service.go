package xrp

import (
	"context"
	"fmt"
	"strings"

	x402 "github.com/x402labs/x402-go"
)

// ExactXrpService implements x402.SchemeNetworkService for exact XRP
// payments.
type ExactXrpService struct{}

// NewExactXrpService creates a new ExactXrpService.
func NewExactXrpService() *ExactXrpService {
	return &ExactXrpService{}
}

// Scheme returns the scheme identifier.
func (s *ExactXrpService) Scheme() string {
	return SchemeExact
}

// ParsePrice converts a route price into drops. Accepted forms: "0.5 XRP",
// "0.5" (whole XRP when fractional), and bare integers (drops). Dollar
// prices are rejected; XRP routes must quote in the native asset.
func (s *ExactXrpService) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	priceStr, ok := price.(string)
	if !ok {
		priceStr = fmt.Sprintf("%v", price)
	}
	priceStr = strings.TrimSpace(priceStr)
	if strings.HasPrefix(priceStr, "$") {
		return x402.AssetAmount{}, fmt.Errorf("dollar prices are not supported for XRP routes: %s", priceStr)
	}
	priceStr = strings.TrimSuffix(priceStr, " XRP")
	priceStr = strings.TrimSpace(priceStr)

	if _, err := GetNetworkConfig(string(network)); err != nil {
		return x402.AssetAmount{}, err
	}

	if strings.Contains(priceStr, ".") {
		drops, err := ParseXRPAmount(priceStr)
		if err != nil {
			return x402.AssetAmount{}, err
		}
		return x402.AssetAmount{Asset: AssetXRP, Amount: fmt.Sprintf("%d", drops)}, nil
	}

	drops, err := ParseDrops(priceStr)
	if err != nil {
		return x402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
	}
	return x402.AssetAmount{Asset: AssetXRP, Amount: fmt.Sprintf("%d", drops)}, nil
}

// EnhancePaymentRequirements normalizes the asset to the native symbol and
// folds facilitator-declared extension data into the requirement.
func (s *ExactXrpService) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	if _, err := GetNetworkConfig(string(requirements.Network)); err != nil {
		return requirements, err
	}
	if requirements.Asset == "" {
		requirements.Asset = AssetXRP
	}
	if requirements.Asset != AssetXRP {
		return requirements, fmt.Errorf("only native XRP is supported, got asset %q", requirements.Asset)
	}

	if strings.Contains(requirements.Amount, ".") {
		drops, err := ParseXRPAmount(requirements.Amount)
		if err != nil {
			return requirements, fmt.Errorf("failed to parse amount: %w", err)
		}
		requirements.Amount = fmt.Sprintf("%d", drops)
	}

	if supportedKind.Extra != nil {
		if requirements.Extra == nil {
			requirements.Extra = make(map[string]interface{})
		}
		for _, key := range extensionKeys {
			if val, ok := supportedKind.Extra[key]; ok {
				requirements.Extra[key] = val
			}
		}
	}

	return requirements, nil
}
