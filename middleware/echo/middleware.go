// Package echo adapts the x402 payment middleware to the Echo framework.
package echo

import (
	"github.com/labstack/echo/v4"

	x402 "github.com/x402labs/x402-go"
	xhttp "github.com/x402labs/x402-go/http"
)

// PaymentMiddleware returns an Echo middleware that gates the configured
// routes behind x402 payments. It wraps the core net/http middleware, so
// route matching, verification, settlement timing, and paywall rendering
// behave identically across frameworks.
func PaymentMiddleware(
	service *x402.X402ResourceService,
	routes xhttp.RoutesConfig,
	opts ...xhttp.MiddlewareOption,
) echo.MiddlewareFunc {
	core := xhttp.PaymentMiddleware(service, routes, opts...)
	return echo.WrapMiddleware(core)
}
