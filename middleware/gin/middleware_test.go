package gin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402labs/x402-go"
	xhttp "github.com/x402labs/x402-go/http"
	"github.com/x402labs/x402-go/test/mocks/cash"
)

func newCashService(t *testing.T) *x402.X402ResourceService {
	t.Helper()
	facilitator := x402.NewFacilitator().Register(cash.Network, cash.NewSchemeNetworkFacilitator())
	service := x402.NewResourceService(
		x402.WithFacilitatorClient(cash.NewFacilitatorClient(facilitator)),
		x402.WithSchemeService(cash.Network, cash.NewSchemeNetworkService()),
	)
	require.NoError(t, service.Initialize(context.Background()))
	return service
}

func newRouter(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	routes := xhttp.RoutesConfig{
		"GET /premium": {Scheme: cash.Scheme, PayTo: "alice", Price: "$10", Network: cash.Network},
	}

	router := gin.New()
	router.Use(PaymentMiddleware(newCashService(t), routes))
	router.GET("/premium", func(c *gin.Context) {
		c.String(http.StatusOK, "paid content")
	})
	router.GET("/free", func(c *gin.Context) {
		c.String(http.StatusOK, "free content")
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestGinMiddlewareChallenges(t *testing.T) {
	server := newRouter(t)

	resp, err := http.Get(server.URL + "/premium")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var required x402.PaymentRequired
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&required))
	require.Len(t, required.Accepts, 1)
	assert.Equal(t, cash.Network, required.Accepts[0].Network)
}

func TestGinMiddlewarePassesFreeRoutes(t *testing.T) {
	server := newRouter(t)

	resp, err := http.Get(server.URL + "/free")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGinMiddlewareAcceptsPayment(t *testing.T) {
	server := newRouter(t)

	x402Client := x402.NewClient(x402.WithScheme(cash.Network, cash.NewSchemeNetworkClient("bob")))
	client := xhttp.WrapHTTPClient(&http.Client{}, x402Client)

	resp, err := client.Get(server.URL + "/premium")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	receipt, err := xhttp.SettleReceipt(resp)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Success)
}
