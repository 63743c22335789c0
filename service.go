package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/x402labs/x402-go/types"
)

// DefaultMaxTimeoutSeconds bounds the authorization validity window a
// resource service will advertise when the route does not set one.
const DefaultMaxTimeoutSeconds = 300

// X402ResourceService manages payment requirements and verification for
// protected resources. Servers that charge for access hold one instance and
// share it across requests; all registration happens before Initialize.
type X402ResourceService struct {
	schemes              map[Network]map[string]SchemeNetworkService
	facilitatorClients   []FacilitatorClient
	registeredExtensions map[string]types.ResourceServiceExtension
	supportedCache       *SupportedCache
	logger               *slog.Logger

	// version -> network -> scheme -> facilitator client serving that kind
	mu                    sync.RWMutex
	facilitatorClientsMap map[int]map[Network]map[string]facilitatorBinding

	beforeVerifyHooks    []ServiceBeforeVerifyHook
	afterVerifyHooks     []ServiceAfterVerifyHook
	onVerifyFailureHooks []ServiceOnVerifyFailureHook
	beforeSettleHooks    []ServiceBeforeSettleHook
	afterSettleHooks     []ServiceAfterSettleHook
	onSettleFailureHooks []ServiceOnSettleFailureHook
}

type facilitatorBinding struct {
	client FacilitatorClient
	kind   SupportedKind
}

// SupportedCache caches facilitator capability responses keyed by
// facilitator index.
type SupportedCache struct {
	mu     sync.RWMutex
	data   map[int]SupportedResponse
	expiry map[int]time.Time
	ttl    time.Duration
}

// Get returns the cached response and whether it is still fresh.
func (c *SupportedCache) Get(key int) (SupportedResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	expiry, ok := c.expiry[key]
	if !ok || time.Now().After(expiry) {
		return SupportedResponse{}, false
	}
	return c.data[key], true
}

// Put stores a response with the cache TTL.
func (c *SupportedCache) Put(key int, response SupportedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = response
	c.expiry[key] = time.Now().Add(c.ttl)
}

// ResourceServiceOption configures the service
type ResourceServiceOption func(*X402ResourceService)

// WithFacilitatorClient adds a facilitator client
func WithFacilitatorClient(client FacilitatorClient) ResourceServiceOption {
	return func(s *X402ResourceService) {
		s.facilitatorClients = append(s.facilitatorClients, client)
	}
}

// WithSchemeService registers a scheme service implementation
func WithSchemeService(network Network, service SchemeNetworkService) ResourceServiceOption {
	return func(s *X402ResourceService) {
		if s.schemes[network] == nil {
			s.schemes[network] = make(map[string]SchemeNetworkService)
		}
		s.schemes[network][service.Scheme()] = service
	}
}

// WithResourceServiceExtension registers a declaration-enriching extension.
func WithResourceServiceExtension(extension types.ResourceServiceExtension) ResourceServiceOption {
	return func(s *X402ResourceService) {
		s.registeredExtensions[extension.Key()] = extension
	}
}

// WithCacheTTL sets the cache TTL for facilitator supported responses.
func WithCacheTTL(ttl time.Duration) ResourceServiceOption {
	return func(s *X402ResourceService) {
		s.supportedCache.ttl = ttl
	}
}

// WithServiceLogger sets the structured logger.
func WithServiceLogger(logger *slog.Logger) ResourceServiceOption {
	return func(s *X402ResourceService) {
		s.logger = logger
	}
}

// NewResourceService creates a resource service. At least one facilitator
// client and one scheme service are needed before payments can flow.
func NewResourceService(opts ...ResourceServiceOption) *X402ResourceService {
	s := &X402ResourceService{
		schemes:              make(map[Network]map[string]SchemeNetworkService),
		registeredExtensions: make(map[string]types.ResourceServiceExtension),
		supportedCache: &SupportedCache{
			data:   make(map[int]SupportedResponse),
			expiry: make(map[int]time.Time),
			ttl:    5 * time.Minute,
		},
		facilitatorClientsMap: make(map[int]map[Network]map[string]facilitatorBinding),
		logger:                slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Initialize queries every facilitator for its supported kinds and builds
// the routing map. Safe to call again to refresh; it replaces the map
// wholesale.
func (s *X402ResourceService) Initialize(ctx context.Context) error {
	routing := make(map[int]map[Network]map[string]facilitatorBinding)

	for i, client := range s.facilitatorClients {
		supported, err := s.supportedFor(ctx, i, client)
		if err != nil {
			return fmt.Errorf("facilitator %d supported query failed: %w", i, err)
		}
		for _, kind := range supported.Kinds {
			if routing[kind.X402Version] == nil {
				routing[kind.X402Version] = make(map[Network]map[string]facilitatorBinding)
			}
			if routing[kind.X402Version][kind.Network] == nil {
				routing[kind.X402Version][kind.Network] = make(map[string]facilitatorBinding)
			}
			// First facilitator advertising a kind wins.
			if _, exists := routing[kind.X402Version][kind.Network][kind.Scheme]; !exists {
				routing[kind.X402Version][kind.Network][kind.Scheme] = facilitatorBinding{client: client, kind: kind}
			}
		}
	}

	s.mu.Lock()
	s.facilitatorClientsMap = routing
	s.mu.Unlock()
	return nil
}

func (s *X402ResourceService) supportedFor(ctx context.Context, key int, client FacilitatorClient) (SupportedResponse, error) {
	if cached, ok := s.supportedCache.Get(key); ok {
		return cached, nil
	}
	supported, err := client.GetSupported(ctx)
	if err != nil {
		return SupportedResponse{}, err
	}
	s.supportedCache.Put(key, supported)
	return supported, nil
}

// findSupportedKind locates the facilitator binding for a scheme/network,
// preferring V2 and honoring network wildcards in the advertised kinds.
func (s *X402ResourceService) findSupportedKind(scheme string, network Network) (facilitatorBinding, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, version := range []int{2, 1} {
		networkMap, ok := s.facilitatorClientsMap[version]
		if !ok {
			continue
		}
		bindings := findSchemesByNetwork(networkMap, network)
		if bindings == nil {
			continue
		}
		if binding, ok := bindings[scheme]; ok {
			return binding, version, true
		}
	}
	return facilitatorBinding{}, 0, false
}

// ExtensionKeys returns the registered extension identifiers.
func (s *X402ResourceService) ExtensionKeys() []string {
	keys := make([]string, 0, len(s.registeredExtensions))
	for key := range s.registeredExtensions {
		keys = append(keys, key)
	}
	return keys
}

// EnrichDeclaration runs every registered extension over a declaration.
// Extension panics and errors never propagate.
func (s *X402ResourceService) EnrichDeclaration(declaration interface{}, transportContext interface{}) interface{} {
	for key, ext := range s.registeredExtensions {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn("extension panicked during declaration enrichment", "extension", key, "panic", r)
				}
			}()
			declaration = ext.EnrichDeclaration(declaration, transportContext)
		}()
	}
	return declaration
}

// EnrichPaymentRequired collects every registered extension's contribution to
// a 402 response body, keyed by extension id. A failing or panicking
// extension is logged and skipped; the payment flow never depends on
// extension health.
func (s *X402ResourceService) EnrichPaymentRequired(required PaymentRequired, transportContext interface{}) map[string]interface{} {
	if len(s.registeredExtensions) == 0 {
		return nil
	}
	enriched := make(map[string]interface{})
	for key, ext := range s.registeredExtensions {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn("extension panicked during 402 enrichment", "extension", key, "panic", r)
				}
			}()
			if info := ext.EnrichDeclaration(required, transportContext); info != nil {
				enriched[key] = info
			}
		}()
	}
	if len(enriched) == 0 {
		return nil
	}
	return enriched
}

// EnrichSettlement merges extension contributions into a settlement response.
// Only extensions implementing SettlementResponseEnricher participate.
func (s *X402ResourceService) EnrichSettlement(
	ctx context.Context,
	response *SettleResponse,
	payload PaymentPayload,
	requirements PaymentRequirements,
) {
	if response == nil {
		return
	}
	for key, ext := range s.registeredExtensions {
		enricher, ok := ext.(SettlementResponseEnricher)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn("extension panicked during settlement enrichment", "extension", key, "panic", r)
				}
			}()
			info, err := enricher.EnrichSettlementResponse(ctx, *response, payload, requirements)
			if err != nil {
				s.logger.Warn("extension failed during settlement enrichment", "extension", key, "error", err)
				return
			}
			if info == nil {
				return
			}
			if response.Extensions == nil {
				response.Extensions = make(map[string]interface{})
			}
			response.Extensions[key] = info
		}()
	}
}

// BuildPaymentRequirements turns a route configuration into the accepts list
// for a 402 response. The scheme service parses the price and enriches the
// requirements with facilitator-declared extras such as the SVM fee payer.
func (s *X402ResourceService) BuildPaymentRequirements(
	ctx context.Context,
	config ResourceConfig,
	resourceURL string,
) ([]PaymentRequirements, error) {
	scheme := config.Scheme
	if scheme == "" {
		scheme = "exact"
	}

	service := findByNetworkAndScheme(s.schemes, scheme, config.Network)
	if service == nil {
		return nil, NewPaymentError(ErrUnsupportedScheme,
			fmt.Sprintf("no scheme service for %s on %s", scheme, config.Network))
	}

	binding, _, ok := s.findSupportedKind(scheme, config.Network)
	if !ok {
		return nil, NewPaymentError(ErrUnsupportedScheme,
			fmt.Sprintf("no facilitator supports %s on %s", scheme, config.Network))
	}

	assetAmount, err := service.ParsePrice(config.Price, config.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}

	timeout := config.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = DefaultMaxTimeoutSeconds
	}

	requirements := PaymentRequirements{
		Scheme:            scheme,
		Network:           config.Network,
		Asset:             assetAmount.Asset,
		Amount:            assetAmount.Amount,
		PayTo:             config.PayTo,
		Resource:          resourceURL,
		Description:       config.Description,
		MimeType:          config.MimeType,
		MaxTimeoutSeconds: timeout,
		Extra:             assetAmount.Extra,
	}

	enhanced, err := service.EnhancePaymentRequirements(ctx, requirements, binding.kind, s.ExtensionKeys())
	if err != nil {
		return nil, fmt.Errorf("failed to enhance payment requirements: %w", err)
	}

	return []PaymentRequirements{enhanced}, nil
}

// FindMatchingRequirements locates the requirement a payment payload was
// created against.
func (s *X402ResourceService) FindMatchingRequirements(
	accepts []PaymentRequirements,
	payload PaymentPayload,
) (PaymentRequirements, bool) {
	return MatchPayloadToRequirements(accepts, payload)
}

// VerifyPayment runs the verify hook pipeline and forwards the raw bytes to
// the facilitator serving the payment's scheme and network.
func (s *X402ResourceService) VerifyPayment(ctx context.Context, payloadBytes, requirementsBytes []byte) (*VerifyResponse, error) {
	hookCtx := VerifyContext{Ctx: ctx, PayloadBytes: payloadBytes, RequirementsBytes: requirementsBytes}
	for _, hook := range s.beforeVerifyHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return &VerifyResponse{IsValid: false, InvalidReason: ErrUnexpectedVerifyError}, err
		}
		if result != nil && result.Abort {
			return &VerifyResponse{IsValid: false, InvalidReason: result.Reason}, nil
		}
	}

	binding, err := s.bindingForPayload(requirementsBytes)
	if err != nil {
		return &VerifyResponse{IsValid: false, InvalidReason: ErrUnsupportedScheme}, err
	}

	result, verifyErr := binding.client.Verify(ctx, payloadBytes, requirementsBytes)
	if verifyErr != nil {
		failureCtx := VerifyFailureContext{VerifyContext: hookCtx, Error: verifyErr}
		for _, hook := range s.onVerifyFailureHooks {
			recovery, _ := hook(failureCtx)
			if recovery != nil && recovery.Recovered {
				return recovery.Result, nil
			}
		}
		return result, verifyErr
	}

	resultCtx := VerifyResultContext{VerifyContext: hookCtx, Result: result}
	for _, hook := range s.afterVerifyHooks {
		if err := hook(resultCtx); err != nil {
			s.logger.Warn("after-verify hook failed", "error", err)
		}
	}
	return result, nil
}

// SettlePayment runs the settle hook pipeline and forwards the raw bytes to
// the facilitator serving the payment's scheme and network.
func (s *X402ResourceService) SettlePayment(ctx context.Context, payloadBytes, requirementsBytes []byte) (*SettleResponse, error) {
	hookCtx := SettleContext{Ctx: ctx, PayloadBytes: payloadBytes, RequirementsBytes: requirementsBytes}
	for _, hook := range s.beforeSettleHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return &SettleResponse{Success: false, ErrorReason: ErrUnexpectedSettleError}, err
		}
		if result != nil && result.Abort {
			return &SettleResponse{Success: false, ErrorReason: result.Reason}, nil
		}
	}

	binding, err := s.bindingForPayload(requirementsBytes)
	if err != nil {
		return &SettleResponse{Success: false, ErrorReason: ErrUnsupportedScheme}, err
	}

	result, settleErr := binding.client.Settle(ctx, payloadBytes, requirementsBytes)
	if settleErr != nil {
		failureCtx := SettleFailureContext{SettleContext: hookCtx, Error: settleErr}
		for _, hook := range s.onSettleFailureHooks {
			recovery, _ := hook(failureCtx)
			if recovery != nil && recovery.Recovered {
				return recovery.Result, nil
			}
		}
		return result, settleErr
	}

	resultCtx := SettleResultContext{SettleContext: hookCtx, Result: result}
	for _, hook := range s.afterSettleHooks {
		if err := hook(resultCtx); err != nil {
			s.logger.Warn("after-settle hook failed", "error", err)
		}
	}
	return result, nil
}

func (s *X402ResourceService) bindingForPayload(requirementsBytes []byte) (facilitatorBinding, error) {
	var requirements PaymentRequirements
	if err := json.Unmarshal(requirementsBytes, &requirements); err != nil {
		return facilitatorBinding{}, NewPaymentError(ErrInvalidPaymentRequirements, err.Error())
	}
	binding, _, ok := s.findSupportedKind(requirements.Scheme, requirements.Network)
	if !ok {
		return facilitatorBinding{}, NewPaymentError(ErrUnsupportedScheme,
			fmt.Sprintf("no facilitator supports %s on %s", requirements.Scheme, requirements.Network))
	}
	return binding, nil
}
