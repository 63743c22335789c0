package facilitatorfees

import (
	"context"
	"encoding/json"
	"net/http"

	x402 "github.com/x402labs/x402-go"
)

// QuoteIssuer produces signed fee quotes on demand. Facilitators implement
// it against their fee schedule and signing key.
type QuoteIssuer interface {
	Quote(ctx context.Context, network x402.Network, asset string, amount string) (FeeQuote, error)
}

// QuotePath is the fee-quote RPC path on the facilitator surface.
const QuotePath = "/x402/fee-quote"

// QuoteHandler serves GET /x402/fee-quote?network=&asset=&amount= with a
// signed quote from the issuer.
func QuoteHandler(issuer QuoteIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		query := r.URL.Query()
		network := x402.Network(query.Get("network"))
		asset := query.Get("asset")
		amount := query.Get("amount")
		if network == "" || asset == "" || amount == "" {
			http.Error(w, "network, asset, and amount are required", http.StatusBadRequest)
			return
		}
		if _, err := x402.ParseAtomicAmount(amount); err != nil {
			http.Error(w, "amount must be an atomic-unit decimal string", http.StatusBadRequest)
			return
		}

		quote, err := issuer.Quote(r.Context(), network, asset, amount)
		if err != nil {
			http.Error(w, "failed to issue quote", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(quote)
	}
}
