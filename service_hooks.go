package x402

import "context"

// VerifyContext is passed to resource-service verify hooks. The service
// works with raw bytes at the facilitator boundary, so hooks see the wire
// data exactly as it will be sent.
type VerifyContext struct {
	Ctx               context.Context
	PayloadBytes      []byte
	RequirementsBytes []byte
}

// VerifyResultContext carries a completed verify result to after-hooks.
type VerifyResultContext struct {
	VerifyContext
	Result *VerifyResponse
}

// VerifyFailureContext carries a failed verify to failure hooks.
type VerifyFailureContext struct {
	VerifyContext
	Error error
}

// SettleContext is passed to resource-service settle hooks.
type SettleContext struct {
	Ctx               context.Context
	PayloadBytes      []byte
	RequirementsBytes []byte
}

// SettleResultContext carries a completed settle result to after-hooks.
type SettleResultContext struct {
	SettleContext
	Result *SettleResponse
}

// SettleFailureContext carries a failed settle to failure hooks.
type SettleFailureContext struct {
	SettleContext
	Error error
}

// Resource-service hook function types, mirroring the facilitator hooks:
// before-hooks may abort, failure hooks may recover, after-hook errors are
// logged and ignored.
type (
	ServiceBeforeVerifyHook    func(VerifyContext) (*BeforeHookResult, error)
	ServiceAfterVerifyHook     func(VerifyResultContext) error
	ServiceOnVerifyFailureHook func(VerifyFailureContext) (*VerifyFailureHookResult, error)
	ServiceBeforeSettleHook    func(SettleContext) (*BeforeHookResult, error)
	ServiceAfterSettleHook     func(SettleResultContext) error
	ServiceOnSettleFailureHook func(SettleFailureContext) (*SettleFailureHookResult, error)
)

// Hook options for the resource service.

func WithBeforeVerifyHook(hook ServiceBeforeVerifyHook) ResourceServiceOption {
	return func(s *X402ResourceService) {
		s.beforeVerifyHooks = append(s.beforeVerifyHooks, hook)
	}
}

func WithAfterVerifyHook(hook ServiceAfterVerifyHook) ResourceServiceOption {
	return func(s *X402ResourceService) {
		s.afterVerifyHooks = append(s.afterVerifyHooks, hook)
	}
}

func WithVerifyFailureHook(hook ServiceOnVerifyFailureHook) ResourceServiceOption {
	return func(s *X402ResourceService) {
		s.onVerifyFailureHooks = append(s.onVerifyFailureHooks, hook)
	}
}

func WithBeforeSettleHook(hook ServiceBeforeSettleHook) ResourceServiceOption {
	return func(s *X402ResourceService) {
		s.beforeSettleHooks = append(s.beforeSettleHooks, hook)
	}
}

func WithAfterSettleHook(hook ServiceAfterSettleHook) ResourceServiceOption {
	return func(s *X402ResourceService) {
		s.afterSettleHooks = append(s.afterSettleHooks, hook)
	}
}

func WithSettleFailureHook(hook ServiceOnSettleFailureHook) ResourceServiceOption {
	return func(s *X402ResourceService) {
		s.onSettleFailureHooks = append(s.onSettleFailureHooks, hook)
	}
}
