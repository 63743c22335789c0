package http

import (
	"fmt"
	"io"
	"net/http"

	x402 "github.com/x402labs/x402-go"
)

// PaymentRoundTripper implements http.RoundTripper with transparent x402
// payment handling. On a 402 it selects a requirement, signs a payment with
// the wrapped client, and retries the request exactly once. A second 402
// fails with payment_already_attempted; the transport never loops.
type PaymentRoundTripper struct {
	Transport http.RoundTripper
	Client    *x402.X402Client
}

// WrapHTTPClient wraps a standard HTTP client with x402 payment handling.
func WrapHTTPClient(client *http.Client, x402Client *x402.X402Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &PaymentRoundTripper{
		Transport: transport,
		Client:    x402Client,
	}
	return client
}

// RoundTrip implements http.RoundTripper
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	// A 402 on a request that already carried a payment means the server
	// rejected it; retrying with a fresh signature would double-spend the
	// client's patience, not fix the rejection.
	if req.Header.Get(HeaderPayment) != "" {
		return resp, x402.NewPaymentError(x402.ErrPaymentAlreadyAttempted, "server returned 402 for a paid request")
	}

	requiredBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read 402 response body: %w", err)
	}

	ctx := req.Context()
	header, err := t.Client.CreatePaymentForRequired(ctx, requiredBytes)
	if err != nil {
		return nil, err
	}

	paymentReq := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body for retry: %w", err)
		}
		paymentReq.Body = body
	}
	paymentReq.Header.Set(HeaderPayment, header)
	paymentReq.Header.Set(HeaderExposeHeaders, HeaderPaymentResponse)

	retryResp, err := t.Transport.RoundTrip(paymentReq)
	if err != nil {
		return nil, err
	}
	if retryResp.StatusCode == http.StatusPaymentRequired {
		return retryResp, x402.NewPaymentError(x402.ErrPaymentAlreadyAttempted, "payment was not accepted")
	}
	return retryResp, nil
}

// SettleReceipt extracts the settlement receipt from a response, when
// present.
func SettleReceipt(resp *http.Response) (*x402.SettleResponse, error) {
	header := resp.Header.Get(HeaderPaymentResponse)
	if header == "" {
		return nil, nil
	}
	return x402.DecodeSettleHeader(header)
}
