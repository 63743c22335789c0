package facilitatorfees

import (
	"context"
	"math/big"
	"time"

	x402 "github.com/x402labs/x402-go"
	"github.com/x402labs/x402-go/types"
)

type declaration struct {
	options []FeeOption
}

// Declare creates the server-side extension advertising the given facilitator
// fee options. Expired options are dropped at enrichment time rather than
// served stale.
func Declare(options []FeeOption) types.ResourceServiceExtension {
	return &declaration{options: options}
}

// Key returns the extension identifier.
func (d *declaration) Key() string {
	return ExtensionKey
}

// EnrichDeclaration returns the live fee options for the 402 body.
func (d *declaration) EnrichDeclaration(decl interface{}, transportContext interface{}) interface{} {
	now := time.Now()
	live := make([]FeeOption, 0, len(d.options))
	for _, option := range d.options {
		if IsExpired(option.FacilitatorFeeQuote, now) {
			continue
		}
		live = append(live, option)
	}
	if len(live) == 0 {
		return nil
	}
	return ServerInfo{Options: live}
}

// EnrichSettlementResponse echoes the fee actually paid when the client's
// bid selected one of the advertised quotes.
func (d *declaration) EnrichSettlementResponse(
	ctx context.Context,
	response x402.SettleResponse,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (interface{}, error) {
	if !response.Success {
		return nil, nil
	}
	bid, ok := ExtractBid(payload)
	if !ok || bid.SelectedQuoteID == "" {
		return nil, nil
	}

	for _, option := range d.options {
		quote := option.FacilitatorFeeQuote
		if quote.QuoteID != bid.SelectedQuoteID {
			continue
		}
		amount, err := x402.ParseAtomicAmount(requirements.AtomicAmount())
		if err != nil {
			return nil, err
		}
		fee, err := EffectiveFee(quote, amount)
		if err != nil {
			return nil, err
		}
		return SettleInfo{
			FacilitatorFeePaid: fee.String(),
			QuoteID:            quote.QuoteID,
		}, nil
	}
	return nil, nil
}

// ExtractBid reads the client's fee bid off a payment payload.
func ExtractBid(payload x402.PaymentPayload) (Bid, bool) {
	if payload.Extensions == nil {
		return Bid{}, false
	}
	raw, ok := payload.Extensions[ExtensionKey]
	if !ok {
		return Bid{}, false
	}
	// The extension body arrives either as the typed struct (same-process)
	// or as a decoded JSON map (over the wire).
	switch v := raw.(type) {
	case BidInfo:
		return v.FacilitatorFeeBid, true
	case map[string]interface{}:
		bidMap, ok := v["facilitatorFeeBid"].(map[string]interface{})
		if !ok {
			return Bid{}, false
		}
		bid := Bid{}
		if id, ok := bidMap["selectedQuoteId"].(string); ok {
			bid.SelectedQuoteID = id
		}
		if maxFee, ok := bidMap["maxFacilitatorFee"].(string); ok {
			bid.MaxFacilitatorFee = maxFee
		}
		return bid, true
	default:
		return Bid{}, false
	}
}

// quoteFeeCap parses a MaxFacilitatorFee string, nil when unset.
func quoteFeeCap(value string) *big.Int {
	if value == "" {
		return nil
	}
	cap, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil
	}
	return cap
}
