package x402

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/x402labs/x402-go/types"
)

// X402Client manages payment mechanisms and creates payment payloads.
// Applications that hold wallets or signers use it to answer 402 challenges.
type X402Client struct {
	// version -> network pattern -> scheme -> implementation
	schemes   map[Network]map[string]SchemeNetworkClient
	schemesV1 map[Network]map[string]SchemeNetworkClientV1

	requirementsSelector PaymentRequirementsSelector
	policies             []PaymentPolicy
	extensions           []ClientExtension
}

// PaymentRequirementsSelector chooses which payment option to use when
// several remain after scheme and policy filtering.
type PaymentRequirementsSelector func(version int, requirements []PaymentRequirements) PaymentRequirements

// PaymentPolicy gates which requirements a client is willing to pay.
// Requirements rejected by every policy-passing entry surface as
// payment_exceeds_policy.
type PaymentPolicy interface {
	Allows(requirements PaymentRequirements) bool
}

// ClientOption configures the client
type ClientOption func(*X402Client)

// WithPaymentSelector sets a custom payment requirements selector
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *X402Client) {
		c.requirementsSelector = selector
	}
}

// WithPolicy adds a spending policy. Policies are conjunctive.
func WithPolicy(policy PaymentPolicy) ClientOption {
	return func(c *X402Client) {
		c.policies = append(c.policies, policy)
	}
}

// WithClientExtension adds a client-side payload enrichment extension.
func WithClientExtension(extension ClientExtension) ClientOption {
	return func(c *X402Client) {
		c.extensions = append(c.extensions, extension)
	}
}

// WithScheme registers a V2 payment mechanism at creation time
func WithScheme(network Network, client SchemeNetworkClient) ClientOption {
	return func(c *X402Client) {
		c.RegisterScheme(network, client)
	}
}

// NewClient creates a new x402 client
func NewClient(opts ...ClientOption) *X402Client {
	c := &X402Client{
		schemes:              make(map[Network]map[string]SchemeNetworkClient),
		schemesV1:            make(map[Network]map[string]SchemeNetworkClientV1),
		requirementsSelector: defaultPaymentSelector,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// defaultPaymentSelector chooses the first available payment option
func defaultPaymentSelector(version int, requirements []PaymentRequirements) PaymentRequirements {
	return requirements[0]
}

// RegisterScheme registers a V2 mechanism for a network or network pattern.
func (c *X402Client) RegisterScheme(network Network, client SchemeNetworkClient) *X402Client {
	if c.schemes[network] == nil {
		c.schemes[network] = make(map[string]SchemeNetworkClient)
	}
	c.schemes[network][client.Scheme()] = client
	return c
}

// RegisterSchemeV1 registers a legacy V1 mechanism.
func (c *X402Client) RegisterSchemeV1(network Network, client SchemeNetworkClientV1) *X402Client {
	if c.schemesV1[network] == nil {
		c.schemesV1[network] = make(map[string]SchemeNetworkClientV1)
	}
	c.schemesV1[network][client.Scheme()] = client
	return c
}

// SelectPaymentRequirements filters the server's accepts list down to the
// requirements this client can actually pay (registered scheme, passing
// policy) and picks one via the selector.
func (c *X402Client) SelectPaymentRequirements(version int, accepts []PaymentRequirements) (PaymentRequirements, error) {
	var supported []PaymentRequirements
	for _, r := range accepts {
		if c.findScheme(version, r.Scheme, r.Network) {
			supported = append(supported, r)
		}
	}
	if len(supported) == 0 {
		return PaymentRequirements{}, NewPaymentError(ErrUnsupportedScheme, "no registered mechanism matches the accepts list")
	}

	var allowed []PaymentRequirements
	for _, r := range supported {
		ok := true
		for _, policy := range c.policies {
			if !policy.Allows(r) {
				ok = false
				break
			}
		}
		if ok {
			allowed = append(allowed, r)
		}
	}
	if len(allowed) == 0 {
		return PaymentRequirements{}, NewPaymentError(ErrPaymentExceedsPolicy, "every acceptable requirement exceeds the wallet policy")
	}

	return c.requirementsSelector(version, allowed), nil
}

func (c *X402Client) findScheme(version int, scheme string, network Network) bool {
	if version == 1 {
		return findByNetworkAndScheme(c.schemesV1, scheme, network) != nil
	}
	return findByNetworkAndScheme(c.schemes, scheme, network) != nil
}

// CreatePaymentPayload creates a complete payment payload for one selected
// requirement. The resource and extensions from the 402 body are echoed into
// the payload as the protocol requires.
func (c *X402Client) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirements PaymentRequirements,
	required PaymentRequired,
) (PaymentPayload, error) {
	if version == 1 {
		return c.createPaymentPayloadV1(ctx, requirements)
	}

	mechanism := findByNetworkAndScheme(c.schemes, requirements.Scheme, requirements.Network)
	if mechanism == nil {
		return PaymentPayload{}, NewPaymentError(ErrUnsupportedScheme,
			fmt.Sprintf("no client mechanism for %s on %s", requirements.Scheme, requirements.Network))
	}

	var partial PartialPaymentPayload
	var err error
	if aware, ok := mechanism.(ExtensionAwareClient); ok && len(required.Extensions) > 0 {
		partial, err = aware.CreatePaymentPayloadWithExtensions(ctx, requirements, required.Extensions)
	} else {
		partial, err = mechanism.CreatePaymentPayload(ctx, requirements)
	}
	if err != nil {
		return PaymentPayload{}, err
	}

	payload := PaymentPayload{
		X402Version: 2,
		Payload:     partial.Payload,
		Accepted:    requirements,
		Resource:    required.Resource,
	}

	for _, ext := range c.extensions {
		if required.Extensions == nil {
			break
		}
		if _, declared := required.Extensions[ext.Key()]; !declared {
			continue
		}
		enriched, err := ext.EnrichPaymentPayload(ctx, payload, required)
		if err != nil {
			// Extension failure never blocks the payment.
			continue
		}
		payload = enriched
	}

	return payload, nil
}

func (c *X402Client) createPaymentPayloadV1(ctx context.Context, requirements PaymentRequirements) (PaymentPayload, error) {
	mechanism := findByNetworkAndScheme(c.schemesV1, requirements.Scheme, requirements.Network)
	if mechanism == nil {
		return PaymentPayload{}, NewPaymentError(ErrUnsupportedScheme,
			fmt.Sprintf("no V1 client mechanism for %s on %s", requirements.Scheme, requirements.Network))
	}

	requirementsBytes, err := json.Marshal(toV1Requirements(requirements))
	if err != nil {
		return PaymentPayload{}, err
	}

	payloadBytes, err := mechanism.CreatePaymentPayload(ctx, 1, requirementsBytes)
	if err != nil {
		return PaymentPayload{}, err
	}

	var payload PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return PaymentPayload{}, NewPaymentError(ErrInvalidPayload, err.Error())
	}
	return payload, nil
}

// CreatePaymentForRequired parses a raw 402 body (either version), selects a
// requirement, and returns the encoded X-PAYMENT header value.
func (c *X402Client) CreatePaymentForRequired(ctx context.Context, requiredBytes []byte) (string, error) {
	version, err := types.DetectVersion(requiredBytes)
	if err != nil {
		return "", NewPaymentError(ErrInvalidPayload, err.Error())
	}

	var required PaymentRequired
	if err := json.Unmarshal(requiredBytes, &required); err != nil {
		return "", NewPaymentError(ErrInvalidPayload, err.Error())
	}
	if len(required.Accepts) == 0 {
		return "", NewPaymentError(ErrInvalidPaymentRequirements, "402 body carries no accepts")
	}

	selected, err := c.SelectPaymentRequirements(version, required.Accepts)
	if err != nil {
		return "", err
	}

	payload, err := c.CreatePaymentPayload(ctx, version, selected, required)
	if err != nil {
		return "", err
	}

	return EncodePaymentHeader(payload)
}

// toV1Requirements projects canonical requirements onto the V1 wire form.
func toV1Requirements(r PaymentRequirements) types.PaymentRequirementsV1 {
	v1 := types.PaymentRequirementsV1{
		Scheme:            r.Scheme,
		Network:           string(r.Network),
		MaxAmountRequired: r.AtomicAmount(),
		Resource:          r.Resource,
		Description:       r.Description,
		MimeType:          r.MimeType,
		PayTo:             r.PayTo,
		MaxTimeoutSeconds: r.MaxTimeoutSeconds,
		Asset:             r.Asset,
	}
	if r.Extra != nil {
		if raw, err := json.Marshal(r.Extra); err == nil {
			msg := json.RawMessage(raw)
			v1.Extra = &msg
		}
	}
	return v1
}
