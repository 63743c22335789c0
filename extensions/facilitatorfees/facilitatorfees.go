// Package facilitatorfees implements the facilitator-fees extension: servers
// advertise signed fee quotes from the facilitators they use, clients express
// a preference (and a cap) via a fee bid on the payment payload, and the
// settlement response echoes the fee actually charged.
//
// The canonical extension shape carries an options list on the declaration
// and a selectedQuoteId on the bid.
package facilitatorfees

// ExtensionKey identifies the extension in extensions maps.
const ExtensionKey = "facilitatorFees"

// QuoteKind is the fee schedule shape of a quote.
type QuoteKind string

const (
	QuoteFlat   QuoteKind = "flat"
	QuoteBPS    QuoteKind = "bps"
	QuoteTiered QuoteKind = "tiered"
	QuoteHybrid QuoteKind = "hybrid"
)

// Signature envelope types for fee quotes.
const (
	SignatureTypeEIP191  = "eip191"
	SignatureTypeEd25519 = "ed25519"
)

// Tier is one step of a tiered schedule: payments up to UpTo (atomic units,
// inclusive) pay Fee. Tiers are ordered ascending by UpTo.
type Tier struct {
	UpTo string `json:"upTo"`
	Fee  string `json:"fee"`
}

// QuoteSignature is the facilitator's signature over the quote's canonical
// JSON (with the signature field absent).
type QuoteSignature struct {
	Type   string `json:"type"`
	Signer string `json:"signer"`
	Value  string `json:"value"`
}

// FeeQuote is a signed, expiring fee commitment from one facilitator. All
// fee fields are atomic-unit decimal strings in the quote's asset.
type FeeQuote struct {
	QuoteID       string    `json:"quoteId"`
	FacilitatorID string    `json:"facilitatorId"`
	Kind          QuoteKind `json:"kind"`
	Network       string    `json:"network"`
	Asset         string    `json:"asset"`

	// FlatFee applies to flat and hybrid kinds.
	FlatFee string `json:"flatFee,omitempty"`
	// BPS, MinFee, and MaxFee apply to bps and hybrid kinds.
	BPS    int64  `json:"bps,omitempty"`
	MinFee string `json:"minFee,omitempty"`
	MaxFee string `json:"maxFee,omitempty"`
	// Tiers applies to the tiered kind.
	Tiers []Tier `json:"tiers,omitempty"`

	ExpiresAt int64           `json:"expiresAt"`
	Signature *QuoteSignature `json:"signature,omitempty"`
}

// FeeOption is one advertised facilitator choice on a 402 response.
type FeeOption struct {
	FacilitatorID       string   `json:"facilitatorId"`
	FacilitatorFeeQuote FeeQuote `json:"facilitatorFeeQuote"`
	MaxFacilitatorFee   string   `json:"maxFacilitatorFee,omitempty"`
}

// ServerInfo is the extension body on 402 responses.
type ServerInfo struct {
	Options []FeeOption `json:"options"`
}

// Bid is the client's fee preference, attached to the payment payload.
type Bid struct {
	SelectedQuoteID   string `json:"selectedQuoteId,omitempty"`
	MaxFacilitatorFee string `json:"maxFacilitatorFee,omitempty"`
}

// BidInfo is the extension body the client puts on the payload.
type BidInfo struct {
	FacilitatorFeeBid Bid `json:"facilitatorFeeBid"`
}

// SettleInfo is the extension body on settlement responses: the fee actually
// charged, and which quote it honored.
type SettleInfo struct {
	FacilitatorFeePaid string `json:"facilitatorFeePaid"`
	QuoteID            string `json:"quoteId,omitempty"`
}
