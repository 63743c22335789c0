// Package gin adapts the x402 payment middleware to the Gin framework.
package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/x402labs/x402-go"
	xhttp "github.com/x402labs/x402-go/http"
)

// PaymentMiddleware returns a Gin middleware that gates the configured routes
// behind x402 payments. Route matching, verification, settlement timing, and
// paywall rendering all follow the core net/http middleware.
func PaymentMiddleware(
	service *x402.X402ResourceService,
	routes xhttp.RoutesConfig,
	opts ...xhttp.MiddlewareOption,
) gin.HandlerFunc {
	core := xhttp.PaymentMiddleware(service, routes, opts...)

	return func(c *gin.Context) {
		handled := false
		wrapped := core(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Payment cleared (or the route is free); run the rest of the
			// Gin chain against the middleware's response writer so
			// settlement can gate the status.
			handled = true
			c.Request = r
			c.Writer = &ginWriter{ResponseWriter: c.Writer, inner: w}
			c.Next()
		}))
		wrapped.ServeHTTP(c.Writer, c.Request)
		if !handled {
			// The middleware wrote the 402 (or an error) itself.
			c.Abort()
		}
	}
}

// ginWriter keeps gin.ResponseWriter's interface while routing writes
// through the settlement interceptor.
type ginWriter struct {
	gin.ResponseWriter
	inner http.ResponseWriter
}

func (w *ginWriter) Write(b []byte) (int, error) {
	return w.inner.Write(b)
}

func (w *ginWriter) WriteHeader(statusCode int) {
	w.inner.WriteHeader(statusCode)
}

func (w *ginWriter) WriteString(s string) (int, error) {
	return w.inner.Write([]byte(s))
}

func (w *ginWriter) Header() http.Header {
	return w.inner.Header()
}
