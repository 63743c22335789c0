// Package http provides the HTTP transport of the x402 protocol: the
// payment-aware client transport, the resource-server middleware, the
// facilitator RPC client, and paywall rendering for browser traffic.
package http

import (
	"net/http"
	"strings"
)

// Protocol header names.
const (
	// HeaderPayment carries the base64-encoded PaymentPayload on retried
	// requests.
	HeaderPayment = "X-PAYMENT"
	// HeaderPaymentResponse carries the base64-encoded settlement receipt.
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
	// HeaderExposeHeaders must include HeaderPaymentResponse on CORS
	// boundaries so browser clients can read the receipt.
	HeaderExposeHeaders = "Access-Control-Expose-Headers"
)

// IsBrowserRequest reports whether a request looks like an interactive
// browser navigation: it accepts text/html and sends a Mozilla user agent.
// Such requests get the paywall page instead of the JSON 402 body.
func IsBrowserRequest(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	userAgent := r.Header.Get("User-Agent")
	return strings.Contains(accept, "text/html") && strings.Contains(userAgent, "Mozilla")
}

// HTTPRequestContext is the transport context handed to extensions during
// declaration enrichment.
type HTTPRequestContext struct {
	Method string
	URL    string
}

// TransportMethod returns the HTTP method of the request being enriched.
func (c HTTPRequestContext) TransportMethod() string {
	return c.Method
}

// ResourceURL reconstructs the absolute URL of the requested resource.
func ResourceURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + r.URL.Path
}
