package x402

import (
	"fmt"
	"math/big"
)

// ValidatePaymentPayload performs basic validation on a payment payload
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.X402Version < 1 || p.X402Version > 2 {
		return fmt.Errorf("unsupported x402 version: %d", p.X402Version)
	}
	scheme, network := p.SchemeNetwork()
	if scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if network == "" {
		return fmt.Errorf("payment network is required")
	}
	if p.Payload == nil {
		return fmt.Errorf("payment payload is required")
	}
	return nil
}

// ValidatePaymentRequirements performs basic validation on payment requirements
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if _, _, err := r.Network.Parse(); err != nil {
		return err
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	if amount := r.AtomicAmount(); amount != "" {
		if _, err := ParseAtomicAmount(amount); err != nil {
			return err
		}
	}
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	return nil
}

// ParseAtomicAmount parses an atomic-units decimal string into a big.Int.
// Amounts are unsigned; anything negative, fractional, or non-decimal fails.
func ParseAtomicAmount(amount string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid atomic amount: %q", amount)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("atomic amount must be unsigned: %q", amount)
	}
	return v, nil
}

// MatchPayloadToRequirements finds the requirement a payload was created
// against by comparing scheme, network, asset, recipient, and amount.
func MatchPayloadToRequirements(accepts []PaymentRequirements, payload PaymentPayload) (PaymentRequirements, bool) {
	scheme, network := payload.SchemeNetwork()
	for _, r := range accepts {
		if r.Scheme != scheme {
			continue
		}
		if !network.Match(r.Network) {
			continue
		}
		if payload.Accepted.Asset != "" && r.Asset != payload.Accepted.Asset {
			continue
		}
		if payload.Accepted.PayTo != "" && r.PayTo != payload.Accepted.PayTo {
			continue
		}
		if payload.Accepted.AtomicAmount() != "" && r.AtomicAmount() != payload.Accepted.AtomicAmount() {
			continue
		}
		return r, true
	}
	return PaymentRequirements{}, false
}

// findByNetworkAndScheme finds a scheme implementation for a given
// network/scheme combination, supporting network patterns like "eip155:*".
// Exact matches win over wildcard matches.
func findByNetworkAndScheme[T any](networkMap map[Network]map[string]T, scheme string, network Network) T {
	var zero T

	if schemeMap, exists := networkMap[network]; exists {
		if impl, exists := schemeMap[scheme]; exists {
			return impl
		}
	}

	for registeredNetwork, schemeMap := range networkMap {
		if network.Match(registeredNetwork) || registeredNetwork.Match(network) {
			if impl, exists := schemeMap[scheme]; exists {
				return impl
			}
		}
	}

	return zero
}

// findSchemesByNetwork finds all schemes registered for a given network
func findSchemesByNetwork[T any](networkMap map[Network]map[string]T, network Network) map[string]T {
	if schemeMap, exists := networkMap[network]; exists {
		return schemeMap
	}

	for registeredNetwork, schemeMap := range networkMap {
		if network.Match(registeredNetwork) || registeredNetwork.Match(network) {
			return schemeMap
		}
	}

	return nil
}
