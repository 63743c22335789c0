package x402

import (
	"context"

	"github.com/x402labs/x402-go/types"
)

// MoneyParser converts a decimal amount to an AssetAmount. Parsers are tried
// in registration order; a parser that cannot handle the conversion returns
// nil so the next one runs.
type MoneyParser func(amount float64, network Network) (*AssetAmount, error)

// ============================================================================
// V1 Interfaces (Legacy - explicitly versioned)
// ============================================================================

// SchemeNetworkClientV1 is implemented by client-side V1 payment mechanisms.
// V1 works with raw bytes at the boundary: requirements in, full payload out.
type SchemeNetworkClientV1 interface {
	Scheme() string
	CreatePaymentPayload(ctx context.Context, version int, requirementsBytes []byte) ([]byte, error)
}

// SchemeNetworkFacilitatorV1 is implemented by facilitator-side V1 payment mechanisms
type SchemeNetworkFacilitatorV1 interface {
	Scheme() string
	CaipFamily() string
	GetExtra(network Network) map[string]interface{}
	GetSigners(network Network) []string
	Verify(ctx context.Context, payload types.PaymentPayloadV1, requirements types.PaymentRequirementsV1) (*VerifyResponse, error)
	Settle(ctx context.Context, payload types.PaymentPayloadV1, requirements types.PaymentRequirementsV1) (*SettleResponse, error)
}

// ============================================================================
// V2 Interfaces (Current - default, no version suffix)
// ============================================================================

// SchemeNetworkClient is implemented by client-side payment mechanisms (V2).
// CreatePaymentPayload turns one selected requirement into the signed,
// scheme-specific payload body.
type SchemeNetworkClient interface {
	Scheme() string
	CreatePaymentPayload(ctx context.Context, requirements PaymentRequirements) (PartialPaymentPayload, error)
}

// ExtensionAwareClient is an optional interface for schemes that can handle
// extensions. When implemented, the client engine calls
// CreatePaymentPayloadWithExtensions instead of CreatePaymentPayload, passing
// the server-declared extensions so the scheme can enrich the payload.
type ExtensionAwareClient interface {
	SchemeNetworkClient
	CreatePaymentPayloadWithExtensions(ctx context.Context, requirements PaymentRequirements, extensions map[string]interface{}) (PartialPaymentPayload, error)
}

// ClientExtension can enrich payment payloads on the client side. Client
// extensions run after the scheme creates the base payload but before the
// retry is issued.
type ClientExtension interface {
	// Key returns the unique extension identifier (e.g., "eip2612GasSponsoring").
	Key() string

	// EnrichPaymentPayload is called when the extension key is present in
	// the 402 response's Extensions.
	EnrichPaymentPayload(ctx context.Context, payload PaymentPayload, required PaymentRequired) (PaymentPayload, error)
}

// SettlementResponseEnricher is an optional interface for resource-service
// extensions. Extensions implementing it contribute receipt data (signed
// receipts, fee disclosures) that the engine merges into the settlement
// response under the extension's key.
type SettlementResponseEnricher interface {
	EnrichSettlementResponse(ctx context.Context, response SettleResponse, payload PaymentPayload, requirements PaymentRequirements) (interface{}, error)
}

// SchemeNetworkService is implemented by server-side payment mechanisms (V2).
// It resolves human prices into atomic amounts and enriches requirements with
// scheme-specific data (EIP-712 domain, SVM fee payer).
type SchemeNetworkService interface {
	Scheme() string
	ParsePrice(price Price, network Network) (AssetAmount, error)
	EnhancePaymentRequirements(
		ctx context.Context,
		requirements PaymentRequirements,
		supportedKind SupportedKind,
		extensionKeys []string,
	) (PaymentRequirements, error)
}

// SchemeNetworkFacilitator is implemented by facilitator-side payment mechanisms (V2)
type SchemeNetworkFacilitator interface {
	Scheme() string

	// CaipFamily returns the CAIP family pattern this facilitator supports,
	// e.g. "eip155:*" for EVM or "solana:*" for SVM. Used to group signers
	// in the supported response.
	CaipFamily() string

	// GetExtra returns mechanism-specific extra data for the supported kinds
	// endpoint. EVM schemes return nil; SVM schemes return the fee payer.
	GetExtra(network Network) map[string]interface{}

	// GetSigners returns signer addresses used by this facilitator for a
	// given network. Multiple addresses support key rotation.
	GetSigners(network Network) []string

	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error)
}

// ============================================================================
// FacilitatorClient Interface (Network Boundary - uses bytes)
// ============================================================================

// FacilitatorClient is the resource server's view of a facilitator. It uses
// bytes at the network boundary; the implementation detects the protocol
// version and routes internally.
type FacilitatorClient interface {
	Verify(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*VerifyResponse, error)
	Settle(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*SettleResponse, error)
	GetSupported(ctx context.Context) (SupportedResponse, error)
}
