package x402

import "context"

// FacilitatorVerifyContext is passed to verify hooks. Payload and
// Requirements are the canonical forms; the raw bytes are preserved for
// hooks that need to hash or re-parse the original wire data.
type FacilitatorVerifyContext struct {
	Ctx               context.Context
	Version           int
	Payload           PaymentPayload
	Requirements      PaymentRequirements
	PayloadBytes      []byte
	RequirementsBytes []byte
}

// FacilitatorSettleContext is passed to settle hooks.
type FacilitatorSettleContext struct {
	Ctx               context.Context
	Version           int
	Payload           PaymentPayload
	Requirements      PaymentRequirements
	PayloadBytes      []byte
	RequirementsBytes []byte
}

// BeforeHookResult lets a before-hook abort the operation with a reason.
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// FacilitatorVerifyFailureContext carries the error that failed a verify.
type FacilitatorVerifyFailureContext struct {
	FacilitatorVerifyContext
	Error error
}

// FacilitatorSettleFailureContext carries the error that failed a settle.
type FacilitatorSettleFailureContext struct {
	FacilitatorSettleContext
	Error error
}

// VerifyFailureHookResult lets a failure hook substitute a recovered result.
type VerifyFailureHookResult struct {
	Recovered bool
	Result    *VerifyResponse
}

// SettleFailureHookResult lets a failure hook substitute a recovered result.
type SettleFailureHookResult struct {
	Recovered bool
	Result    *SettleResponse
}

// FacilitatorVerifyResultContext carries a successful verify result to
// after-hooks. Hooks may mutate the result in place (e.g. to attach a
// correlation identifier).
type FacilitatorVerifyResultContext struct {
	FacilitatorVerifyContext
	Result *VerifyResponse
}

// FacilitatorSettleResultContext carries a successful settle result to
// after-hooks.
type FacilitatorSettleResultContext struct {
	FacilitatorSettleContext
	Result *SettleResponse
}

// Hook function types. Before-hooks may abort; failure hooks may recover;
// after-hook errors are logged and ignored.
type (
	FacilitatorBeforeVerifyHook    func(FacilitatorVerifyContext) (*BeforeHookResult, error)
	FacilitatorAfterVerifyHook     func(FacilitatorVerifyResultContext) error
	FacilitatorOnVerifyFailureHook func(FacilitatorVerifyFailureContext) (*VerifyFailureHookResult, error)
	FacilitatorBeforeSettleHook    func(FacilitatorSettleContext) (*BeforeHookResult, error)
	FacilitatorAfterSettleHook     func(FacilitatorSettleResultContext) error
	FacilitatorOnSettleFailureHook func(FacilitatorSettleFailureContext) (*SettleFailureHookResult, error)
)
