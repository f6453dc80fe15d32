// Package chi adapts the payment gate to chi routers. The gate's stdlib
// middleware already has chi's shape; this package only adds the router
// conveniences.
package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	xhttp "github.com/tollgate-labs/x402gate/http"
)

// Middleware returns a chi-compatible middleware enforcing payment through
// the gate. Attach with router.Use or chi's With for per-route gating.
func Middleware(gate *xhttp.Gate) func(http.Handler) http.Handler {
	return gate.Middleware()
}

// RequirePayment mounts a paid route on the router: the handler at pattern
// only runs after the gate settles a payment.
func RequirePayment(router chi.Router, pattern string, gate *xhttp.Gate, handler http.HandlerFunc) {
	router.With(Middleware(gate)).Handle(pattern, handler)
}
