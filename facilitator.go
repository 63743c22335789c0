package x402

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/x402labs/x402-go/types"
)

// X402Facilitator routes verify and settle calls to registered scheme
// mechanisms by (scheme, network pattern). It supports both protocol
// versions: V2 mechanisms work with canonical structs, V1 mechanisms with
// the legacy wire forms. Registration tables are written during setup and
// read-only afterwards.
type X402Facilitator struct {
	schemesV1 map[Network]map[string]SchemeNetworkFacilitatorV1
	schemes   map[Network]map[string]SchemeNetworkFacilitator

	extensions []string

	beforeVerifyHooks    []FacilitatorBeforeVerifyHook
	afterVerifyHooks     []FacilitatorAfterVerifyHook
	onVerifyFailureHooks []FacilitatorOnVerifyFailureHook
	beforeSettleHooks    []FacilitatorBeforeSettleHook
	afterSettleHooks     []FacilitatorAfterSettleHook
	onSettleFailureHooks []FacilitatorOnSettleFailureHook

	settlements *SettlementCache
	logger      *slog.Logger
}

// FacilitatorOption configures a facilitator.
type FacilitatorOption func(*X402Facilitator)

// WithFacilitatorLogger sets the structured logger.
func WithFacilitatorLogger(logger *slog.Logger) FacilitatorOption {
	return func(f *X402Facilitator) {
		f.logger = logger
	}
}

// WithSettlementIdempotency enables the settlement cache so repeated settles
// of the same payload within the TTL return the first result instead of
// resubmitting on-chain.
func WithSettlementIdempotency(ttl time.Duration) FacilitatorOption {
	return func(f *X402Facilitator) {
		f.settlements = NewSettlementCache(ttl)
	}
}

// NewFacilitator creates a facilitator with no registered mechanisms.
func NewFacilitator(opts ...FacilitatorOption) *X402Facilitator {
	f := &X402Facilitator{
		schemesV1:  make(map[Network]map[string]SchemeNetworkFacilitatorV1),
		schemes:    make(map[Network]map[string]SchemeNetworkFacilitator),
		extensions: []string{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register registers a facilitator mechanism (V2, default). The network may
// be a concrete CAIP-2 identifier or a family wildcard like "solana:*".
func (f *X402Facilitator) Register(network Network, facilitator SchemeNetworkFacilitator) *X402Facilitator {
	if f.schemes[network] == nil {
		f.schemes[network] = make(map[string]SchemeNetworkFacilitator)
	}
	f.schemes[network][facilitator.Scheme()] = facilitator
	return f
}

// RegisterV1 registers a V1 facilitator mechanism (legacy)
func (f *X402Facilitator) RegisterV1(network Network, facilitator SchemeNetworkFacilitatorV1) *X402Facilitator {
	if f.schemesV1[network] == nil {
		f.schemesV1[network] = make(map[string]SchemeNetworkFacilitatorV1)
	}
	f.schemesV1[network][facilitator.Scheme()] = facilitator
	return f
}

// RegisterExtension advertises a protocol extension in the supported response.
func (f *X402Facilitator) RegisterExtension(extension string) *X402Facilitator {
	for _, ext := range f.extensions {
		if ext == extension {
			return f
		}
	}
	f.extensions = append(f.extensions, extension)
	return f
}

// Hook registration. Hooks run in registration order.

func (f *X402Facilitator) OnBeforeVerify(hook FacilitatorBeforeVerifyHook) *X402Facilitator {
	f.beforeVerifyHooks = append(f.beforeVerifyHooks, hook)
	return f
}

func (f *X402Facilitator) OnAfterVerify(hook FacilitatorAfterVerifyHook) *X402Facilitator {
	f.afterVerifyHooks = append(f.afterVerifyHooks, hook)
	return f
}

func (f *X402Facilitator) OnVerifyFailure(hook FacilitatorOnVerifyFailureHook) *X402Facilitator {
	f.onVerifyFailureHooks = append(f.onVerifyFailureHooks, hook)
	return f
}

func (f *X402Facilitator) OnBeforeSettle(hook FacilitatorBeforeSettleHook) *X402Facilitator {
	f.beforeSettleHooks = append(f.beforeSettleHooks, hook)
	return f
}

func (f *X402Facilitator) OnAfterSettle(hook FacilitatorAfterSettleHook) *X402Facilitator {
	f.afterSettleHooks = append(f.afterSettleHooks, hook)
	return f
}

func (f *X402Facilitator) OnSettleFailure(hook FacilitatorOnSettleFailureHook) *X402Facilitator {
	f.onSettleFailureHooks = append(f.onSettleFailureHooks, hook)
	return f
}

// decode parses raw payload/requirements bytes into canonical structs and
// reports the detected protocol version. The canonical structs are a strict
// superset of both wire forms, so a single unmarshal covers V1 and V2.
func decode(payloadBytes, requirementsBytes []byte) (int, PaymentPayload, PaymentRequirements, error) {
	version, err := types.DetectVersion(payloadBytes)
	if err != nil {
		return 0, PaymentPayload{}, PaymentRequirements{}, NewPaymentError(ErrInvalidPayload, err.Error())
	}

	var payload PaymentPayload
	if err := jsonUnmarshalStrictEnough(payloadBytes, &payload); err != nil {
		return 0, PaymentPayload{}, PaymentRequirements{}, NewPaymentError(ErrInvalidPayload, err.Error())
	}
	if err := ValidatePaymentPayload(payload); err != nil {
		return 0, PaymentPayload{}, PaymentRequirements{}, NewPaymentError(ErrInvalidPayload, err.Error())
	}

	var requirements PaymentRequirements
	if err := jsonUnmarshalStrictEnough(requirementsBytes, &requirements); err != nil {
		return 0, PaymentPayload{}, PaymentRequirements{}, NewPaymentError(ErrInvalidPaymentRequirements, err.Error())
	}
	if err := ValidatePaymentRequirements(requirements); err != nil {
		return 0, PaymentPayload{}, PaymentRequirements{}, NewPaymentError(ErrInvalidPaymentRequirements, err.Error())
	}

	return version, payload, requirements, nil
}

// Verify verifies a payment. Detects the protocol version from bytes and
// routes to the matching mechanism; the returned response always carries a
// taxonomy reason on failure.
func (f *X402Facilitator) Verify(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*VerifyResponse, error) {
	version, payload, requirements, err := decode(payloadBytes, requirementsBytes)
	if err != nil {
		pe := err.(*PaymentError)
		return &VerifyResponse{IsValid: false, InvalidReason: pe.Code}, nil
	}

	hookCtx := FacilitatorVerifyContext{
		Ctx:               ctx,
		Version:           version,
		Payload:           payload,
		Requirements:      requirements,
		PayloadBytes:      payloadBytes,
		RequirementsBytes: requirementsBytes,
	}
	for _, hook := range f.beforeVerifyHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return &VerifyResponse{IsValid: false, InvalidReason: ErrUnexpectedVerifyError}, err
		}
		if result != nil && result.Abort {
			return &VerifyResponse{IsValid: false, InvalidReason: result.Reason}, nil
		}
	}

	result, verifyErr := f.route(ctx, version, payloadBytes, requirementsBytes, payload, requirements)
	if verifyErr != nil {
		failureCtx := FacilitatorVerifyFailureContext{FacilitatorVerifyContext: hookCtx, Error: verifyErr}
		for _, hook := range f.onVerifyFailureHooks {
			recovery, _ := hook(failureCtx)
			if recovery != nil && recovery.Recovered {
				return recovery.Result, nil
			}
		}
		if ve, ok := verifyErr.(*VerifyError); ok {
			return ve.Response(), nil
		}
		return &VerifyResponse{IsValid: false, InvalidReason: ErrUnexpectedVerifyError}, verifyErr
	}

	resultCtx := FacilitatorVerifyResultContext{FacilitatorVerifyContext: hookCtx, Result: result}
	for _, hook := range f.afterVerifyHooks {
		if err := hook(resultCtx); err != nil {
			f.logger.Warn("after-verify hook failed", "error", err)
		}
	}

	return result, nil
}

// route dispatches a verify to the version-appropriate mechanism table.
func (f *X402Facilitator) route(
	ctx context.Context,
	version int,
	payloadBytes, requirementsBytes []byte,
	payload PaymentPayload,
	requirements PaymentRequirements,
) (*VerifyResponse, error) {
	if version == 1 {
		mechanism := findByNetworkAndScheme(f.schemesV1, requirements.Scheme, requirements.Network)
		if mechanism == nil {
			return nil, NewVerifyError(ErrUnsupportedScheme, "",
				fmt.Sprintf("no mechanism for %s on %s", requirements.Scheme, requirements.Network))
		}
		v1Payload, err := types.ToPaymentPayloadV1(payloadBytes)
		if err != nil {
			return nil, NewVerifyError(ErrInvalidPayload, "", err.Error())
		}
		v1Requirements, err := types.ToPaymentRequirementsV1(requirementsBytes)
		if err != nil {
			return nil, NewVerifyError(ErrInvalidPaymentRequirements, "", err.Error())
		}
		return mechanism.Verify(ctx, *v1Payload, *v1Requirements)
	}

	mechanism := findByNetworkAndScheme(f.schemes, requirements.Scheme, requirements.Network)
	if mechanism == nil {
		return nil, NewVerifyError(ErrUnsupportedScheme, "",
			fmt.Sprintf("no mechanism for %s on %s", requirements.Scheme, requirements.Network))
	}
	return mechanism.Verify(ctx, payload, requirements)
}

// Settle settles a payment. When the settlement cache is enabled, concurrent
// or repeated settles of one payload coalesce into a single on-chain submit.
func (f *X402Facilitator) Settle(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*SettleResponse, error) {
	if f.settlements == nil {
		return f.settle(ctx, payloadBytes, requirementsBytes)
	}

	key := GenerateSettlementKey(payloadBytes)
	status, cached, done := f.settlements.CheckAndMark(key)
	switch status {
	case StatusCached:
		return cached, nil
	case StatusInFlight:
		result, err := f.settlements.WaitForResult(ctx, key, done)
		if err != nil {
			return &SettleResponse{Success: false, ErrorReason: ErrTransactionTimeout}, err
		}
		if result != nil {
			return result, nil
		}
		// The in-flight attempt failed without caching; fall through and retry.
		return f.Settle(ctx, payloadBytes, requirementsBytes)
	}

	result, err := f.settle(ctx, payloadBytes, requirementsBytes)
	if err != nil || result == nil || !result.Success {
		f.settlements.Fail(key, done)
	} else {
		f.settlements.Complete(key, result, done)
	}
	return result, err
}

func (f *X402Facilitator) settle(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*SettleResponse, error) {
	version, payload, requirements, err := decode(payloadBytes, requirementsBytes)
	if err != nil {
		pe := err.(*PaymentError)
		return &SettleResponse{Success: false, ErrorReason: pe.Code, Network: requirements.Network}, nil
	}

	hookCtx := FacilitatorSettleContext{
		Ctx:               ctx,
		Version:           version,
		Payload:           payload,
		Requirements:      requirements,
		PayloadBytes:      payloadBytes,
		RequirementsBytes: requirementsBytes,
	}
	for _, hook := range f.beforeSettleHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return &SettleResponse{Success: false, ErrorReason: ErrUnexpectedSettleError, Network: requirements.Network}, err
		}
		if result != nil && result.Abort {
			return &SettleResponse{Success: false, ErrorReason: result.Reason, Network: requirements.Network}, nil
		}
	}

	result, settleErr := f.routeSettle(ctx, version, payloadBytes, requirementsBytes, payload, requirements)
	if settleErr != nil {
		failureCtx := FacilitatorSettleFailureContext{FacilitatorSettleContext: hookCtx, Error: settleErr}
		for _, hook := range f.onSettleFailureHooks {
			recovery, _ := hook(failureCtx)
			if recovery != nil && recovery.Recovered {
				return recovery.Result, nil
			}
		}
		if se, ok := settleErr.(*SettleError); ok {
			return se.Response(), nil
		}
		return &SettleResponse{Success: false, ErrorReason: ErrUnexpectedSettleError, Network: requirements.Network}, settleErr
	}

	resultCtx := FacilitatorSettleResultContext{FacilitatorSettleContext: hookCtx, Result: result}
	for _, hook := range f.afterSettleHooks {
		if err := hook(resultCtx); err != nil {
			f.logger.Warn("after-settle hook failed", "error", err)
		}
	}

	return result, nil
}

func (f *X402Facilitator) routeSettle(
	ctx context.Context,
	version int,
	payloadBytes, requirementsBytes []byte,
	payload PaymentPayload,
	requirements PaymentRequirements,
) (*SettleResponse, error) {
	if version == 1 {
		mechanism := findByNetworkAndScheme(f.schemesV1, requirements.Scheme, requirements.Network)
		if mechanism == nil {
			return nil, NewSettleError(ErrUnsupportedScheme, "", requirements.Network, "",
				fmt.Sprintf("no mechanism for %s on %s", requirements.Scheme, requirements.Network))
		}
		v1Payload, err := types.ToPaymentPayloadV1(payloadBytes)
		if err != nil {
			return nil, NewSettleError(ErrInvalidPayload, "", requirements.Network, "", err.Error())
		}
		v1Requirements, err := types.ToPaymentRequirementsV1(requirementsBytes)
		if err != nil {
			return nil, NewSettleError(ErrInvalidPaymentRequirements, "", requirements.Network, "", err.Error())
		}
		return mechanism.Settle(ctx, *v1Payload, *v1Requirements)
	}

	mechanism := findByNetworkAndScheme(f.schemes, requirements.Scheme, requirements.Network)
	if mechanism == nil {
		return nil, NewSettleError(ErrUnsupportedScheme, "", requirements.Network, "",
			fmt.Sprintf("no mechanism for %s on %s", requirements.Scheme, requirements.Network))
	}
	return mechanism.Settle(ctx, payload, requirements)
}

// GetSupported enumerates all registered kinds. Mechanism-declared extra
// data (e.g. the SVM fee payer) is resolved per network at call time.
func (f *X402Facilitator) GetSupported() SupportedResponse {
	var kinds []SupportedKind

	for network, schemeMap := range f.schemesV1 {
		for scheme, mechanism := range schemeMap {
			kinds = append(kinds, SupportedKind{
				X402Version: 1,
				Scheme:      scheme,
				Network:     network,
				Extra:       mechanism.GetExtra(network),
			})
		}
	}

	for network, schemeMap := range f.schemes {
		for scheme, mechanism := range schemeMap {
			kinds = append(kinds, SupportedKind{
				X402Version: 2,
				Scheme:      scheme,
				Network:     network,
				Extra:       mechanism.GetExtra(network),
			})
		}
	}

	return SupportedResponse{
		Kinds:      kinds,
		Extensions: f.extensions,
	}
}
