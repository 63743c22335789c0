package x402

import "math/big"

// WalletPolicy caps what a client will pay, in atomic units, per network and
// asset. A nil inner map means the network is allowed for any asset up to
// the network-wide cap; networks absent from the map are rejected outright.
//
// Limits nest network -> asset -> atomic cap. The single MaxAtomic cap is
// the legacy form: when set and Limits is empty, any requirement at or under
// the cap passes regardless of network.
type WalletPolicy struct {
	Limits    map[Network]map[string]*big.Int
	MaxAtomic *big.Int
}

// Allows reports whether the requirement fits the policy.
func (p WalletPolicy) Allows(requirements PaymentRequirements) bool {
	amount, err := ParseAtomicAmount(requirements.AtomicAmount())
	if err != nil {
		return false
	}

	if len(p.Limits) == 0 {
		if p.MaxAtomic == nil {
			return true
		}
		return amount.Cmp(p.MaxAtomic) <= 0
	}

	assetLimits := p.lookupNetwork(requirements.Network)
	if assetLimits == nil {
		return false
	}
	limit, ok := assetLimits[requirements.Asset]
	if !ok {
		// Wildcard asset entry, if present, covers unlisted assets.
		limit, ok = assetLimits["*"]
		if !ok {
			return false
		}
	}
	return amount.Cmp(limit) <= 0
}

func (p WalletPolicy) lookupNetwork(network Network) map[string]*big.Int {
	if limits, ok := p.Limits[network]; ok {
		return limits
	}
	for candidate, limits := range p.Limits {
		if network.Match(candidate) {
			return limits
		}
	}
	return nil
}
