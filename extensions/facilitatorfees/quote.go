package facilitatorfees

import (
	"fmt"
	"math/big"
	"time"
)

var bpsDivisor = big.NewInt(10000)

// EffectiveFee computes the fee a quote charges for a payment amount, in
// atomic units of the quote's asset.
//
// A BPS fee is clamp(amount*bps/10000, minFee, maxFee); hybrid adds the flat
// fee on top of the clamped BPS component; tiered picks the first tier whose
// UpTo covers the amount, falling back to the last tier.
func EffectiveFee(quote FeeQuote, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be a non-negative integer")
	}

	switch quote.Kind {
	case QuoteFlat:
		return parseFee(quote.FlatFee, "flatFee")

	case QuoteBPS:
		return bpsFee(quote, amount)

	case QuoteHybrid:
		flat, err := parseFee(quote.FlatFee, "flatFee")
		if err != nil {
			return nil, err
		}
		variable, err := bpsFee(quote, amount)
		if err != nil {
			return nil, err
		}
		return new(big.Int).Add(flat, variable), nil

	case QuoteTiered:
		if len(quote.Tiers) == 0 {
			return nil, fmt.Errorf("tiered quote has no tiers")
		}
		for _, tier := range quote.Tiers {
			upTo, err := parseFee(tier.UpTo, "upTo")
			if err != nil {
				return nil, err
			}
			if amount.Cmp(upTo) <= 0 {
				return parseFee(tier.Fee, "fee")
			}
		}
		return parseFee(quote.Tiers[len(quote.Tiers)-1].Fee, "fee")

	default:
		return nil, fmt.Errorf("unknown quote kind: %q", quote.Kind)
	}
}

func bpsFee(quote FeeQuote, amount *big.Int) (*big.Int, error) {
	if quote.BPS < 0 || quote.BPS > 10000 {
		return nil, fmt.Errorf("bps out of range: %d", quote.BPS)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(quote.BPS))
	fee.Div(fee, bpsDivisor)

	if quote.MinFee != "" {
		minFee, err := parseFee(quote.MinFee, "minFee")
		if err != nil {
			return nil, err
		}
		if fee.Cmp(minFee) < 0 {
			fee.Set(minFee)
		}
	}
	if quote.MaxFee != "" {
		maxFee, err := parseFee(quote.MaxFee, "maxFee")
		if err != nil {
			return nil, err
		}
		if fee.Cmp(maxFee) > 0 {
			fee.Set(maxFee)
		}
	}
	return fee, nil
}

func parseFee(value, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %q", field, value)
	}
	return v, nil
}

// IsExpired reports whether the quote's expiry has passed.
func IsExpired(quote FeeQuote, now time.Time) bool {
	return quote.ExpiresAt != 0 && now.Unix() > quote.ExpiresAt
}
