package lightning

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	x402 "github.com/x402labs/x402-go"
)

// ExactLightningService implements x402.SchemeNetworkService for exact
// Lightning payments. An optional InvoiceIssuer lets it attach a fresh
// invoice to every requirement it enhances.
type ExactLightningService struct {
	issuer InvoiceIssuer
}

// NewExactLightningService creates a service mechanism. The issuer may be
// nil; routes then supply invoices through their own extra data.
func NewExactLightningService(issuer InvoiceIssuer) *ExactLightningService {
	return &ExactLightningService{issuer: issuer}
}

// Scheme returns the scheme identifier.
func (s *ExactLightningService) Scheme() string {
	return SchemeExact
}

// ParsePrice converts a route price into millisatoshis. Accepted forms:
// "21 sat", "21 sats", and bare integers (msat). Dollar prices are
// rejected; Lightning routes quote in the native unit.
func (s *ExactLightningService) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	priceStr, ok := price.(string)
	if !ok {
		priceStr = fmt.Sprintf("%v", price)
	}
	priceStr = strings.TrimSpace(priceStr)
	if strings.HasPrefix(priceStr, "$") {
		return x402.AssetAmount{}, fmt.Errorf("dollar prices are not supported for Lightning routes: %s", priceStr)
	}

	if _, ok := NetworkConfigs[CanonicalNetwork(string(network))]; !ok {
		return x402.AssetAmount{}, fmt.Errorf("unsupported Lightning network: %s", network)
	}

	multiplier := uint64(1)
	for _, suffix := range []string{" sats", " sat"} {
		if strings.HasSuffix(priceStr, suffix) {
			priceStr = strings.TrimSpace(strings.TrimSuffix(priceStr, suffix))
			multiplier = MsatPerSat
			break
		}
	}

	value, err := strconv.ParseUint(priceStr, 10, 64)
	if err != nil {
		return x402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
	}
	return x402.AssetAmount{
		Asset:  AssetBTC,
		Amount: strconv.FormatUint(value*multiplier, 10),
	}, nil
}

// EnhancePaymentRequirements normalizes the network to colon form, fills the
// asset, and attaches a freshly issued invoice when an issuer is configured
// and the route did not pin one.
func (s *ExactLightningService) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	network := CanonicalNetwork(string(requirements.Network))
	if _, ok := NetworkConfigs[network]; !ok {
		return requirements, fmt.Errorf("unsupported Lightning network: %s", requirements.Network)
	}
	requirements.Network = x402.Network(network)
	if requirements.Asset == "" {
		requirements.Asset = AssetBTC
	}

	hasInvoice := false
	if requirements.Extra != nil {
		_, hasInvoice = requirements.Extra["invoice"].(string)
	}
	if !hasInvoice && s.issuer != nil {
		amountMsat, err := strconv.ParseUint(requirements.AtomicAmount(), 10, 64)
		if err != nil {
			return requirements, fmt.Errorf("invalid amount: %w", err)
		}
		bolt11, invoiceID, err := s.issuer.Issue(ctx, amountMsat, requirements.Description)
		if err != nil {
			return requirements, fmt.Errorf("failed to issue invoice: %w", err)
		}
		if requirements.Extra == nil {
			requirements.Extra = make(map[string]interface{})
		}
		requirements.Extra["invoice"] = bolt11
		if invoiceID != "" {
			requirements.Extra["invoiceId"] = invoiceID
		}
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
