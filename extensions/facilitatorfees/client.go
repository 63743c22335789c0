package facilitatorfees

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	x402 "github.com/x402labs/x402-go"
)

// ClientExtension selects a facilitator fee quote from the server's options
// and attaches a fee bid to the payment payload. Quotes with bad signatures
// or past expiry are ignored; among the rest the cheapest effective fee wins.
type ClientExtension struct {
	// MaxFee caps the effective fee the client will accept, in atomic units
	// of the payment asset. Nil means no cap.
	MaxFee *big.Int

	// SkipVerification accepts unsigned or unverifiable quotes. Meant for
	// tests and trusted-server setups only.
	SkipVerification bool
}

// NewClientExtension creates a client extension with no fee cap.
func NewClientExtension() *ClientExtension {
	return &ClientExtension{}
}

// Key returns the extension identifier.
func (c *ClientExtension) Key() string {
	return ExtensionKey
}

// EnrichPaymentPayload picks the cheapest acceptable quote and attaches the
// bid. When every option fails verification or exceeds the cap, the payload
// goes out without a bid; fee selection then falls to the server.
func (c *ClientExtension) EnrichPaymentPayload(
	ctx context.Context,
	payload x402.PaymentPayload,
	required x402.PaymentRequired,
) (x402.PaymentPayload, error) {
	info, ok := extractServerInfo(required)
	if !ok {
		return payload, nil
	}
	amount, err := x402.ParseAtomicAmount(payload.Accepted.AtomicAmount())
	if err != nil {
		return payload, nil
	}

	now := time.Now()
	var bestQuote *FeeQuote
	var bestFee *big.Int
	for i := range info.Options {
		quote := info.Options[i].FacilitatorFeeQuote
		if !c.SkipVerification {
			if err := VerifyQuote(quote, now); err != nil {
				continue
			}
		} else if IsExpired(quote, now) {
			continue
		}
		fee, err := EffectiveFee(quote, amount)
		if err != nil {
			continue
		}
		if c.MaxFee != nil && fee.Cmp(c.MaxFee) > 0 {
			continue
		}
		if cap := quoteFeeCap(info.Options[i].MaxFacilitatorFee); cap != nil && fee.Cmp(cap) > 0 {
			continue
		}
		if bestFee == nil || fee.Cmp(bestFee) < 0 {
			bestFee = fee
			q := quote
			bestQuote = &q
		}
	}
	if bestQuote == nil {
		return payload, nil
	}

	if payload.Extensions == nil {
		payload.Extensions = make(map[string]interface{})
	}
	bid := Bid{SelectedQuoteID: bestQuote.QuoteID}
	if c.MaxFee != nil {
		bid.MaxFacilitatorFee = c.MaxFee.String()
	}
	payload.Extensions[ExtensionKey] = BidInfo{FacilitatorFeeBid: bid}
	return payload, nil
}

func extractServerInfo(required x402.PaymentRequired) (ServerInfo, bool) {
	if required.Extensions == nil {
		return ServerInfo{}, false
	}
	raw, ok := required.Extensions[ExtensionKey]
	if !ok {
		return ServerInfo{}, false
	}
	if info, ok := raw.(ServerInfo); ok {
		return info, true
	}
	// Over the wire the body is a generic map; round-trip through JSON.
	data, err := json.Marshal(raw)
	if err != nil {
		return ServerInfo{}, false
	}
	var info ServerInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return ServerInfo{}, false
	}
	return info, len(info.Options) > 0
}
