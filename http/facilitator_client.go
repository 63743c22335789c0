package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/x402labs/x402-go"
	"github.com/x402labs/x402-go/types"
)

// HTTPFacilitatorClient talks to a remote facilitator over its RPC surface:
// POST /verify, POST /settle, GET /supported. It implements
// x402.FacilitatorClient for both protocol versions.
type HTTPFacilitatorClient struct {
	url          string
	httpClient   *http.Client
	authProvider AuthProvider
	identifier   string
}

// AuthProvider generates authentication headers for facilitator requests.
// Separate header sets per endpoint allow scoped credentials.
type AuthProvider interface {
	GetAuthHeaders(ctx context.Context) (AuthHeaders, error)
}

// AuthHeaders contains authentication headers for facilitator endpoints
type AuthHeaders struct {
	Verify    map[string]string
	Settle    map[string]string
	Supported map[string]string
}

// FacilitatorConfig configures the HTTP facilitator client
type FacilitatorConfig struct {
	// URL is the base URL of the facilitator service
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// AuthProvider provides authentication headers (optional)
	AuthProvider AuthProvider

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// Identifier for this facilitator (optional)
	Identifier string
}

// DefaultFacilitatorURL is the default public facilitator
const DefaultFacilitatorURL = "https://x402.org/facilitator"

const (
	getSupportedRetries        = 3
	getSupportedRetryBaseDelay = 1 * time.Second
)

// NewHTTPFacilitatorClient creates a new HTTP facilitator client
func NewHTTPFacilitatorClient(config *FacilitatorConfig) *HTTPFacilitatorClient {
	if config == nil {
		config = &FacilitatorConfig{}
	}

	url := config.URL
	if url == "" {
		url = DefaultFacilitatorURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	identifier := config.Identifier
	if identifier == "" {
		identifier = url
	}

	return &HTTPFacilitatorClient{
		url:          url,
		httpClient:   httpClient,
		authProvider: config.AuthProvider,
		identifier:   identifier,
	}
}

// Identifier names this facilitator for logs and extension bookkeeping.
func (c *HTTPFacilitatorClient) Identifier() string {
	return c.identifier
}

// rpc posts `{x402Version, paymentPayload, paymentRequirements}` to an
// endpoint and returns the response body plus status code.
func (c *HTTPFacilitatorClient) rpc(
	ctx context.Context,
	endpoint string,
	authHeaders func(AuthHeaders) map[string]string,
	payloadBytes, requirementsBytes []byte,
) ([]byte, int, error) {
	version, err := types.DetectVersion(payloadBytes)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to detect version: %w", err)
	}

	requestBody := map[string]interface{}{
		"x402Version":         version,
		"paymentPayload":      json.RawMessage(payloadBytes),
		"paymentRequirements": json.RawMessage(requirementsBytes),
	}
	body, err := json.Marshal(requestBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.authProvider != nil {
		headers, err := c.authProvider.GetAuthHeaders(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to get auth headers: %w", err)
		}
		for k, v := range authHeaders(headers) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s response body: %w", endpoint, err)
	}
	return responseBody, resp.StatusCode, nil
}

// Verify checks a payment against requirements via POST /verify.
func (c *HTTPFacilitatorClient) Verify(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*x402.VerifyResponse, error) {
	responseBody, status, err := c.rpc(ctx, "/verify",
		func(h AuthHeaders) map[string]string { return h.Verify },
		payloadBytes, requirementsBytes)
	if err != nil {
		return nil, err
	}

	var verifyResponse x402.VerifyResponse
	if err := json.Unmarshal(responseBody, &verifyResponse); err != nil {
		return nil, fmt.Errorf("facilitator verify failed (%d): %s", status, string(responseBody))
	}

	if status != http.StatusOK {
		if verifyResponse.InvalidReason != "" {
			return nil, x402.NewVerifyError(verifyResponse.InvalidReason, verifyResponse.Payer,
				fmt.Sprintf("facilitator returned %d", status))
		}
		return nil, fmt.Errorf("facilitator verify failed (%d): %s", status, string(responseBody))
	}

	return &verifyResponse, nil
}

// Settle executes a payment via POST /settle.
func (c *HTTPFacilitatorClient) Settle(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*x402.SettleResponse, error) {
	responseBody, status, err := c.rpc(ctx, "/settle",
		func(h AuthHeaders) map[string]string { return h.Settle },
		payloadBytes, requirementsBytes)
	if err != nil {
		return nil, err
	}

	var settleResponse x402.SettleResponse
	if err := json.Unmarshal(responseBody, &settleResponse); err != nil {
		return nil, fmt.Errorf("facilitator settle failed (%d): %s", status, string(responseBody))
	}

	if status != http.StatusOK {
		if settleResponse.ErrorReason != "" {
			return nil, x402.NewSettleError(settleResponse.ErrorReason, settleResponse.Payer,
				settleResponse.Network, settleResponse.Transaction,
				fmt.Sprintf("facilitator returned %d", status))
		}
		return nil, fmt.Errorf("facilitator settle failed (%d): %s", status, string(responseBody))
	}

	return &settleResponse, nil
}

// GetSupported fetches the facilitator's supported kinds via GET /supported.
// Retries with exponential backoff when the facilitator rate-limits.
func (c *HTTPFacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	var lastErr error

	for attempt := 0; attempt < getSupportedRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/supported", nil)
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("failed to create supported request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		if c.authProvider != nil {
			headers, err := c.authProvider.GetAuthHeaders(ctx)
			if err != nil {
				return x402.SupportedResponse{}, fmt.Errorf("failed to get auth headers: %w", err)
			}
			for k, v := range headers.Supported {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("supported request failed: %w", err)
		}

		responseBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			var supported x402.SupportedResponse
			if err := json.Unmarshal(responseBody, &supported); err != nil {
				return x402.SupportedResponse{}, fmt.Errorf("failed to decode supported response: %w", err)
			}
			return supported, nil
		}

		lastErr = fmt.Errorf("facilitator supported failed (%d): %s", resp.StatusCode, string(responseBody))

		if resp.StatusCode == http.StatusTooManyRequests && attempt < getSupportedRetries-1 {
			delay := getSupportedRetryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return x402.SupportedResponse{}, ctx.Err()
			}
		}

		return x402.SupportedResponse{}, lastErr
	}

	return x402.SupportedResponse{}, lastErr
}
