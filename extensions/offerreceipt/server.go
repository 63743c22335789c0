package offerreceipt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	x402 "github.com/x402labs/x402-go"
	"github.com/x402labs/x402-go/types"
)

// DefaultOfferTTL bounds how long a signed offer stays valid.
const DefaultOfferTTL = 5 * time.Minute

// Config configures the server-side extension.
type Config struct {
	Signer Signer

	// IncludeTransaction discloses the settlement transaction hash inside
	// receipts. Off by default: a receipt holder can otherwise link the
	// payment to on-chain activity.
	IncludeTransaction bool

	// OfferTTL overrides DefaultOfferTTL.
	OfferTTL time.Duration
}

type declaration struct {
	config Config
}

// Declare creates the server-side extension. Register it on the resource
// service; it contributes signed offers to 402 responses and a signed
// receipt to settlement responses.
func Declare(config Config) types.ResourceServiceExtension {
	return &declaration{config: config}
}

// Key returns the extension identifier.
func (d *declaration) Key() string {
	return ExtensionKey
}

// EnrichDeclaration signs one offer per accepts entry of the 402 body.
func (d *declaration) EnrichDeclaration(decl interface{}, transportContext interface{}) interface{} {
	required, ok := decl.(x402.PaymentRequired)
	if !ok || d.config.Signer == nil {
		return nil
	}

	ttl := d.config.OfferTTL
	if ttl == 0 {
		ttl = DefaultOfferTTL
	}
	now := time.Now()

	resource := ""
	if required.Resource != nil {
		resource = required.Resource.URL
	}

	offers := make([]SignedOffer, 0, len(required.Accepts))
	for _, req := range required.Accepts {
		offer := Offer{
			Resource:          resource,
			Scheme:            req.Scheme,
			Network:           string(req.Network),
			Asset:             req.Asset,
			Amount:            req.AtomicAmount(),
			PayTo:             req.PayTo,
			MaxTimeoutSeconds: req.MaxTimeoutSeconds,
			Nonce:             uuid.NewString(),
			IssuedAt:          now.Unix(),
			ExpiresAt:         now.Add(ttl).Unix(),
		}
		envelope, err := d.config.Signer.SignOffer(context.Background(), offer)
		if err != nil {
			// A partial offers list is worse than none; the 402 still works
			// without the extension.
			return nil
		}
		offers = append(offers, SignedOffer{Offer: offer, Signature: envelope})
	}

	return OfferInfo{Offers: offers}
}

// EnrichSettlementResponse signs a receipt over the settled payment.
func (d *declaration) EnrichSettlementResponse(
	ctx context.Context,
	response x402.SettleResponse,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (interface{}, error) {
	if d.config.Signer == nil {
		return nil, nil
	}
	if !response.Success {
		return nil, nil
	}

	receipt := Receipt{
		Resource:  requirements.Resource,
		Network:   string(response.Network),
		Payer:     response.Payer,
		Asset:     requirements.Asset,
		Amount:    requirements.AtomicAmount(),
		SettledAt: time.Now().Unix(),
	}
	if d.config.IncludeTransaction {
		receipt.Transaction = response.Transaction
	}

	envelope, err := d.config.Signer.SignReceipt(ctx, receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign receipt: %w", err)
	}
	return ReceiptInfo{Receipt: SignedReceipt{Receipt: receipt, Signature: envelope}}, nil
}
