package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	x402 "github.com/x402labs/x402-go"
)

// RoutesConfig maps route patterns to payment configuration. Patterns take
// the form "VERB /path" where the verb may be "*" and the path may end in
// "/*" for prefix matching. A bare path matches every method.
//
//	"GET /api/premium/*": {...}
//	"POST /generate":     {...}
//	"*":                  {...}
type RoutesConfig map[string]x402.ResourceConfig

// PaymentContextKey is the request-context key under which the verified
// payment's VerifyResponse is stored for downstream handlers.
type contextKey string

const PaymentContextKey = contextKey("x402_payment")

// VerifiedPayment extracts the verification result stored by the middleware,
// if the request passed through a paid route.
func VerifiedPayment(ctx context.Context) (*x402.VerifyResponse, bool) {
	v, ok := ctx.Value(PaymentContextKey).(*x402.VerifyResponse)
	return v, ok
}

// MiddlewareOption configures the payment middleware.
type MiddlewareOption func(*paymentMiddleware)

// WithPaywall sets the paywall configuration used for browser requests.
func WithPaywall(config *PaywallConfig) MiddlewareOption {
	return func(m *paymentMiddleware) {
		m.paywall = config
	}
}

// WithMiddlewareLogger sets the structured logger for the middleware.
func WithMiddlewareLogger(logger *slog.Logger) MiddlewareOption {
	return func(m *paymentMiddleware) {
		m.logger = logger
	}
}

type paymentMiddleware struct {
	service *x402.X402ResourceService
	routes  []route
	paywall *PaywallConfig
	logger  *slog.Logger
}

type route struct {
	method string
	path   string
	prefix bool
	config x402.ResourceConfig
}

// PaymentMiddleware wraps handlers with x402 payment gating. Requests to
// matching routes must carry a valid X-PAYMENT header; everything else passes
// through untouched. Settlement runs after the handler commits a success
// status unless the route asks for SettleBefore.
func PaymentMiddleware(service *x402.X402ResourceService, routes RoutesConfig, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	m := &paymentMiddleware{
		service: service,
		routes:  parseRoutes(routes),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			config, ok := m.matchRoute(r.Method, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			m.handle(w, r, next, config)
		})
	}
}

func parseRoutes(routes RoutesConfig) []route {
	parsed := make([]route, 0, len(routes))
	for pattern, config := range routes {
		method := "*"
		path := pattern
		if before, after, found := strings.Cut(pattern, " "); found {
			method = strings.ToUpper(before)
			path = after
		}
		prefix := false
		if path == "*" {
			path = "/"
			prefix = true
		} else if strings.HasSuffix(path, "/*") {
			path = strings.TrimSuffix(path, "*")
			prefix = true
		}
		parsed = append(parsed, route{method: method, path: path, prefix: prefix, config: config})
	}
	return parsed
}

// matchRoute returns the first configured route matching the request. Exact
// paths are checked before prefixes so "/api/report" beats "/api/*".
func (m *paymentMiddleware) matchRoute(method, path string) (x402.ResourceConfig, bool) {
	for _, rt := range m.routes {
		if rt.prefix {
			continue
		}
		if rt.methodMatches(method) && rt.path == path {
			return rt.config, true
		}
	}
	for _, rt := range m.routes {
		if !rt.prefix {
			continue
		}
		if rt.methodMatches(method) && strings.HasPrefix(path, rt.path) {
			return rt.config, true
		}
	}
	return x402.ResourceConfig{}, false
}

func (rt route) methodMatches(method string) bool {
	return rt.method == "*" || rt.method == strings.ToUpper(method)
}

func (m *paymentMiddleware) handle(w http.ResponseWriter, r *http.Request, next http.Handler, config x402.ResourceConfig) {
	ctx := r.Context()

	accepts, err := m.service.BuildPaymentRequirements(ctx, config, ResourceURL(r))
	if err != nil {
		m.logger.Error("failed to build payment requirements", "path", r.URL.Path, "error", err)
		http.Error(w, "payment configuration error", http.StatusInternalServerError)
		return
	}

	resource := &x402.ResourceInfo{
		URL:         ResourceURL(r),
		Description: config.Description,
		MimeType:    config.MimeType,
	}

	extensions := m.service.EnrichPaymentRequired(x402.PaymentRequired{
		X402Version: 2,
		Resource:    resource,
		Accepts:     accepts,
	}, HTTPRequestContext{Method: r.Method, URL: ResourceURL(r)})

	paymentHeader := r.Header.Get(HeaderPayment)
	if paymentHeader == "" {
		m.sendPaymentRequired(w, r, x402.PaymentRequired{
			X402Version: 2,
			Resource:    resource,
			Accepts:     accepts,
			Extensions:  extensions,
		})
		return
	}

	payload, payloadBytes, err := ValidateAndDecodePaymentHeader(paymentHeader)
	if err != nil {
		m.logger.Warn("invalid payment header", "path", r.URL.Path, "error", err)
		m.sendPaymentRequired(w, r, x402.PaymentRequired{
			X402Version: 2,
			Error:       x402.ErrInvalidPayload,
			Resource:    resource,
			Accepts:     accepts,
			Extensions:  extensions,
		})
		return
	}

	requirements, ok := m.service.FindMatchingRequirements(accepts, *payload)
	if !ok {
		m.sendPaymentRequired(w, r, x402.PaymentRequired{
			X402Version: payload.X402Version,
			Error:       x402.ErrUnsupportedScheme,
			Resource:    resource,
			Accepts:     accepts,
			Extensions:  extensions,
		})
		return
	}

	requirementsBytes, err := json.Marshal(requirements)
	if err != nil {
		http.Error(w, "payment configuration error", http.StatusInternalServerError)
		return
	}

	verifyResp, err := m.service.VerifyPayment(ctx, payloadBytes, requirementsBytes)
	if err != nil || verifyResp == nil || !verifyResp.IsValid {
		reason := x402.ErrUnexpectedVerifyError
		payer := ""
		if verifyResp != nil {
			if verifyResp.InvalidReason != "" {
				reason = verifyResp.InvalidReason
			}
			payer = verifyResp.Payer
		}
		m.logger.Warn("payment verification failed", "path", r.URL.Path, "reason", reason, "error", err)
		m.sendPaymentRequired(w, r, x402.PaymentRequired{
			X402Version: payload.X402Version,
			Error:       reason,
			Payer:       payer,
			Resource:    resource,
			Accepts:     accepts,
			Extensions:  extensions,
		})
		return
	}

	r = r.WithContext(context.WithValue(ctx, PaymentContextKey, verifyResp))

	settle := func(w http.ResponseWriter) bool {
		settleResp, err := m.service.SettlePayment(r.Context(), payloadBytes, requirementsBytes)
		if err != nil || settleResp == nil || !settleResp.Success {
			reason := x402.ErrUnexpectedSettleError
			if settleResp != nil && settleResp.ErrorReason != "" {
				reason = settleResp.ErrorReason
			}
			m.logger.Warn("payment settlement failed", "path", r.URL.Path, "reason", reason, "error", err)
			m.sendPaymentRequired(w, r, x402.PaymentRequired{
				X402Version: payload.X402Version,
				Error:       reason,
				Payer:       verifyResp.Payer,
				Resource:    resource,
				Accepts:     accepts,
			})
			return false
		}
		m.service.EnrichSettlement(r.Context(), settleResp, *payload, requirements)
		header, err := x402.EncodeSettleHeader(*settleResp)
		if err != nil {
			m.logger.Warn("failed to encode settlement receipt", "error", err)
			return true
		}
		w.Header().Set(HeaderPaymentResponse, header)
		w.Header().Set(HeaderExposeHeaders, HeaderPaymentResponse)
		return true
	}

	if config.SettlementTiming == x402.SettleBefore {
		if !settle(w) {
			return
		}
		next.ServeHTTP(w, r)
		return
	}

	interceptor := &settlementInterceptor{
		w:          w,
		settleFunc: func() bool { return settle(w) },
		onSkip: func(statusCode int) {
			m.logger.Warn("handler failed, skipping settlement", "path", r.URL.Path, "status", statusCode)
		},
	}
	next.ServeHTTP(interceptor, r)

	// Handlers that never write still respond 200; settle that too.
	if !interceptor.committed {
		interceptor.WriteHeader(http.StatusOK)
	}
}

// sendPaymentRequired writes the 402 response: a paywall page for browser
// navigations when one is configured, otherwise the JSON body.
func (m *paymentMiddleware) sendPaymentRequired(w http.ResponseWriter, r *http.Request, required x402.PaymentRequired) {
	if m.paywall != nil && IsBrowserRequest(r) {
		html, err := RenderPaywall(m.paywall, required)
		if err == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(html))
			return
		}
		m.logger.Warn("failed to render paywall, falling back to JSON", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(required)
}

// settlementInterceptor delays the handler's success status until settlement
// completes. Error statuses pass through without settling; a failed
// settlement hijacks the response and discards the handler's body.
type settlementInterceptor struct {
	w          http.ResponseWriter
	settleFunc func() bool
	onSkip     func(statusCode int)
	committed  bool
	hijacked   bool
}

func (i *settlementInterceptor) Header() http.Header {
	return i.w.Header()
}

func (i *settlementInterceptor) Write(b []byte) (int, error) {
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}
	if i.hijacked {
		return len(b), nil
	}
	return i.w.Write(b)
}

func (i *settlementInterceptor) WriteHeader(statusCode int) {
	if i.committed {
		return
	}
	i.committed = true

	// The handler refused the request. The client pays for the resource, not
	// for the attempt.
	if statusCode >= 400 {
		if i.onSkip != nil {
			i.onSkip(statusCode)
		}
		i.w.WriteHeader(statusCode)
		return
	}

	if !i.settleFunc() {
		// settleFunc already wrote the failure response.
		i.hijacked = true
		return
	}

	i.w.WriteHeader(statusCode)
}

// Flush implements http.Flusher for streaming responses.
func (i *settlementInterceptor) Flush() {
	if flusher, ok := i.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker for websocket upgrades.
func (i *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := i.w.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// Push implements http.Pusher for HTTP/2 server push.
func (i *settlementInterceptor) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := i.w.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}
