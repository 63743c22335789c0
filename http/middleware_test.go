package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402labs/x402-go"
	"github.com/x402labs/x402-go/test/mocks/cash"
)

func newCashService(t *testing.T, opts ...x402.ResourceServiceOption) *x402.X402ResourceService {
	t.Helper()
	facilitator := x402.NewFacilitator().Register(cash.Network, cash.NewSchemeNetworkFacilitator())
	base := []x402.ResourceServiceOption{
		x402.WithFacilitatorClient(cash.NewFacilitatorClient(facilitator)),
		x402.WithSchemeService(cash.Network, cash.NewSchemeNetworkService()),
	}
	service := x402.NewResourceService(append(base, opts...)...)
	require.NoError(t, service.Initialize(context.Background()))
	return service
}

func premiumRoutes() RoutesConfig {
	return RoutesConfig{
		"GET /premium": {
			Scheme:  cash.Scheme,
			PayTo:   "alice",
			Price:   "$10",
			Network: cash.Network,
		},
	}
}

// payHeaderFor runs the client side of the handshake: fetch the 402 body and
// sign a payment against it.
func payHeaderFor(t *testing.T, server *httptest.Server, path string) string {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var required x402.PaymentRequired
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&required))
	requiredBytes, err := json.Marshal(required)
	require.NoError(t, err)

	client := x402.NewClient(x402.WithScheme(cash.Network, cash.NewSchemeNetworkClient("bob")))
	header, err := client.CreatePaymentForRequired(context.Background(), requiredBytes)
	require.NoError(t, err)
	return header
}

func protectedServer(t *testing.T, service *x402.X402ResourceService, handler http.Handler, opts ...MiddlewareOption) *httptest.Server {
	t.Helper()
	middleware := PaymentMiddleware(service, premiumRoutes(), opts...)
	server := httptest.NewServer(middleware(handler))
	t.Cleanup(server.Close)
	return server
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func TestMiddlewarePassesUnprotectedRoutes(t *testing.T) {
	server := protectedServer(t, newCashService(t), okHandler("free"))

	resp, err := http.Get(server.URL + "/free")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(HeaderPaymentResponse))
}

func TestMiddlewareChallengesWithoutPayment(t *testing.T) {
	server := protectedServer(t, newCashService(t), okHandler("paid"))

	resp, err := http.Get(server.URL + "/premium")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var required x402.PaymentRequired
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&required))
	assert.Equal(t, 2, required.X402Version)
	require.Len(t, required.Accepts, 1)
	assert.Equal(t, cash.Network, required.Accepts[0].Network)
	assert.Equal(t, "10", required.Accepts[0].Amount)
	require.NotNil(t, required.Resource)
	assert.Contains(t, required.Resource.URL, "/premium")
}

func TestMiddlewareAcceptsValidPayment(t *testing.T) {
	var sawPayer string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if payment, ok := VerifiedPayment(r.Context()); ok {
			sawPayer = payment.Payer
		}
		w.Write([]byte("paid content"))
	})
	server := protectedServer(t, newCashService(t), handler)
	header := payHeaderFor(t, server, "/premium")

	req, err := http.NewRequest(http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderPayment, header)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bob", sawPayer)

	receipt, err := SettleReceipt(resp)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Success)
	assert.Equal(t, cash.Network, receipt.Network)
	assert.Equal(t, HeaderPaymentResponse, resp.Header.Get(HeaderExposeHeaders))
}

func TestMiddlewareSettlesHandlerWithNoExplicitWrite(t *testing.T) {
	// A handler that returns without calling Write or WriteHeader still
	// responds 200, and that success must settle like any other.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	server := protectedServer(t, newCashService(t), handler)
	header := payHeaderFor(t, server, "/premium")

	req, err := http.NewRequest(http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderPayment, header)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	receipt, err := SettleReceipt(resp)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Success)
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	server := protectedServer(t, newCashService(t), okHandler("paid"))

	req, err := http.NewRequest(http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderPayment, "not-valid-base64!!!")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	var required x402.PaymentRequired
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&required))
	assert.Equal(t, x402.ErrInvalidPayload, required.Error)
}

func TestMiddlewareRejectsReplayedPayment(t *testing.T) {
	server := protectedServer(t, newCashService(t), okHandler("paid"))
	header := payHeaderFor(t, server, "/premium")

	for attempt, wantStatus := range []int{http.StatusOK, http.StatusPaymentRequired} {
		req, err := http.NewRequest(http.MethodGet, server.URL+"/premium", nil)
		require.NoError(t, err)
		req.Header.Set(HeaderPayment, header)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, wantStatus, resp.StatusCode, "attempt %d", attempt)

		if wantStatus == http.StatusPaymentRequired {
			var required x402.PaymentRequired
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&required))
			assert.Equal(t, x402.ErrAuthorizationUsed, required.Error)
		}
		resp.Body.Close()
	}
}

func TestMiddlewareSkipsSettlementOnHandlerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})
	server := protectedServer(t, newCashService(t), handler)
	header := payHeaderFor(t, server, "/premium")

	req, err := http.NewRequest(http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderPayment, header)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(HeaderPaymentResponse))
}

func TestMiddlewareFailedSettlementDiscardsHandlerResponse(t *testing.T) {
	service := newCashService(t, x402.WithBeforeSettleHook(func(ctx x402.SettleContext) (*x402.BeforeHookResult, error) {
		return &x402.BeforeHookResult{Abort: true, Reason: x402.ErrTransactionFailed}, nil
	}))
	server := protectedServer(t, service, okHandler("should never reach the client"))
	header := payHeaderFor(t, server, "/premium")

	req, err := http.NewRequest(http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderPayment, header)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	var required x402.PaymentRequired
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&required))
	assert.Equal(t, x402.ErrTransactionFailed, required.Error)
}

func TestMiddlewareSettleBeforeHandler(t *testing.T) {
	var handlerRan bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true
		w.Write([]byte("side effect done"))
	})

	routes := RoutesConfig{
		"POST /generate": {
			Scheme:           cash.Scheme,
			PayTo:            "alice",
			Price:            "$10",
			Network:          cash.Network,
			SettlementTiming: x402.SettleBefore,
		},
	}
	service := newCashService(t)
	server := httptest.NewServer(PaymentMiddleware(service, routes)(handler))
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/generate", "application/json", nil)
	require.NoError(t, err)
	var required x402.PaymentRequired
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&required))
	resp.Body.Close()
	require.False(t, handlerRan)

	requiredBytes, err := json.Marshal(required)
	require.NoError(t, err)
	client := x402.NewClient(x402.WithScheme(cash.Network, cash.NewSchemeNetworkClient("bob")))
	header, err := client.CreatePaymentForRequired(context.Background(), requiredBytes)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/generate", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderPayment, header)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, handlerRan)
	assert.NotEmpty(t, resp.Header.Get(HeaderPaymentResponse))
}

func TestMiddlewareRoutePatterns(t *testing.T) {
	routes := RoutesConfig{
		"GET /api/premium/*": {Scheme: cash.Scheme, PayTo: "alice", Price: "$10", Network: cash.Network},
	}
	service := newCashService(t)
	server := httptest.NewServer(PaymentMiddleware(service, routes)(okHandler("ok")))
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/api/premium/reports")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	// Method mismatch passes through.
	resp, err = http.Post(server.URL+"/api/premium/reports", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Outside the prefix passes through.
	resp, err = http.Get(server.URL + "/api/public")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type declaringExtension struct{}

func (declaringExtension) Key() string { return "testDeclare" }

func (declaringExtension) EnrichDeclaration(declaration interface{}, transportContext interface{}) interface{} {
	if rc, ok := transportContext.(HTTPRequestContext); ok {
		return map[string]interface{}{"method": rc.TransportMethod()}
	}
	return nil
}

func TestMiddlewareDeclaresExtensionsIn402(t *testing.T) {
	service := newCashService(t, x402.WithResourceServiceExtension(declaringExtension{}))
	server := protectedServer(t, service, okHandler("paid"))

	resp, err := http.Get(server.URL + "/premium")
	require.NoError(t, err)
	defer resp.Body.Close()

	var required x402.PaymentRequired
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&required))
	require.Contains(t, required.Extensions, "testDeclare")
	info := required.Extensions["testDeclare"].(map[string]interface{})
	assert.Equal(t, "GET", info["method"])
}

func TestMiddlewarePaywallFallsBackToJSON(t *testing.T) {
	// No paywall template supports the cash rail, so browser requests get the
	// JSON body even with a paywall configured.
	server := protectedServer(t, newCashService(t), okHandler("paid"),
		WithPaywall(&PaywallConfig{AppName: "Test App"}))

	req, err := http.NewRequest(http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
