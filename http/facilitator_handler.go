package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	x402 "github.com/x402labs/x402-go"
)

// rpcRequest is the wire body of POST /verify and POST /settle. The payload
// and requirements stay raw so version detection and validation happen in
// the dispatch layer, not the transport.
type rpcRequest struct {
	PaymentPayload      json.RawMessage `json:"paymentPayload"`
	PaymentRequirements json.RawMessage `json:"paymentRequirements"`
}

// FacilitatorHandlerOption configures the facilitator RPC handler.
type FacilitatorHandlerOption func(*facilitatorHandler)

// WithFacilitatorHandlerLogger sets the structured logger.
func WithFacilitatorHandlerLogger(logger *slog.Logger) FacilitatorHandlerOption {
	return func(h *facilitatorHandler) {
		h.logger = logger
	}
}

type facilitatorHandler struct {
	facilitator *x402.X402Facilitator
	logger      *slog.Logger
}

// FacilitatorHandler exposes a facilitator over its HTTP RPC surface:
// POST /verify, POST /settle, GET /supported.
func FacilitatorHandler(facilitator *x402.X402Facilitator, opts ...FacilitatorHandlerOption) http.Handler {
	h := &facilitatorHandler{facilitator: facilitator, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/verify", h.verify)
	mux.HandleFunc("/settle", h.settle)
	mux.HandleFunc("/supported", h.supported)
	return mux
}

func (h *facilitatorHandler) verify(w http.ResponseWriter, r *http.Request) {
	payload, requirements, ok := h.readRPC(w, r)
	if !ok {
		return
	}
	response, err := h.facilitator.Verify(r.Context(), payload, requirements)
	if err != nil {
		h.logger.Warn("verify failed", "error", err)
	}
	if response == nil {
		response = &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ErrUnexpectedVerifyError}
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *facilitatorHandler) settle(w http.ResponseWriter, r *http.Request) {
	payload, requirements, ok := h.readRPC(w, r)
	if !ok {
		return
	}
	response, err := h.facilitator.Settle(r.Context(), payload, requirements)
	if err != nil {
		h.logger.Warn("settle failed", "error", err)
	}
	if response == nil {
		response = &x402.SettleResponse{Success: false, ErrorReason: x402.ErrUnexpectedSettleError}
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *facilitatorHandler) supported(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.facilitator.GetSupported())
}

func (h *facilitatorHandler) readRPC(w http.ResponseWriter, r *http.Request) ([]byte, []byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, nil, false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return nil, nil, false
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "request body is not valid JSON", http.StatusBadRequest)
		return nil, nil, false
	}
	if len(req.PaymentPayload) == 0 || len(req.PaymentRequirements) == 0 {
		http.Error(w, "paymentPayload and paymentRequirements are required", http.StatusBadRequest)
		return nil, nil, false
	}
	return req.PaymentPayload, req.PaymentRequirements, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
