package x402

import "fmt"

// Stable error reason strings. These travel in VerifyResponse.InvalidReason
// and SettleResponse.ErrorReason and are part of the wire contract; they
// must never be renamed.
const (
	ErrUnsupportedScheme           = "unsupported_scheme"
	ErrInvalidNetwork              = "invalid_network"
	ErrNetworkMismatch             = "network_mismatch"
	ErrInvalidPayload              = "invalid_payload"
	ErrInvalidPaymentRequirements  = "invalid_payment_requirements"
	ErrPaymentExceedsPolicy        = "payment_exceeds_policy"
	ErrPaymentAlreadyAttempted     = "payment_already_attempted"
	ErrVerificationTimeout         = "verification_timeout"
	ErrTransactionTimeout          = "transaction_timeout"
	ErrTransactionFailed           = "transaction_failed"
	ErrTransactionSimulationFailed = "transaction_simulation_failed"
	ErrAuthorizationUsed           = "authorization_used"
	ErrInsufficientFunds           = "insufficient_funds"
	ErrUnexpectedVerifyError       = "unexpected_verify_error"
	ErrUnexpectedSettleError       = "unexpected_settle_error"
)

// PaymentError represents a payment-specific error surfaced by the engine.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string) *PaymentError {
	return &PaymentError{Code: code, Message: message}
}

// VerifyError is returned by mechanism Verify implementations. It carries
// the stable invalid reason so the dispatch layer can build a VerifyResponse
// without matching on error text.
type VerifyError struct {
	InvalidReason string
	Payer         string
	InvalidMsg    string
}

func (e *VerifyError) Error() string {
	if e.InvalidMsg == "" {
		return e.InvalidReason
	}
	return fmt.Sprintf("%s: %s", e.InvalidReason, e.InvalidMsg)
}

// NewVerifyError creates a new verification error
func NewVerifyError(reason, payer, message string) *VerifyError {
	return &VerifyError{InvalidReason: reason, Payer: payer, InvalidMsg: message}
}

// Response converts the error into the VerifyResponse it represents.
func (e *VerifyError) Response() *VerifyResponse {
	return &VerifyResponse{IsValid: false, InvalidReason: e.InvalidReason, Payer: e.Payer}
}

// SettleError is returned by mechanism Settle implementations.
type SettleError struct {
	ErrorReason string
	Payer       string
	Network     Network
	Transaction string
	ErrorMsg    string
}

func (e *SettleError) Error() string {
	if e.ErrorMsg == "" {
		return e.ErrorReason
	}
	return fmt.Sprintf("%s: %s", e.ErrorReason, e.ErrorMsg)
}

// NewSettleError creates a new settlement error
func NewSettleError(reason, payer string, network Network, transaction, message string) *SettleError {
	return &SettleError{
		ErrorReason: reason,
		Payer:       payer,
		Network:     network,
		Transaction: transaction,
		ErrorMsg:    message,
	}
}

// Response converts the error into the SettleResponse it represents.
func (e *SettleError) Response() *SettleResponse {
	return &SettleResponse{
		Success:     false,
		ErrorReason: e.ErrorReason,
		Payer:       e.Payer,
		Network:     e.Network,
		Transaction: e.Transaction,
	}
}
