// Package gin adapts the payment gate to the Gin framework.
package gin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	x402gate "github.com/tollgate-labs/x402gate"
	"github.com/tollgate-labs/x402gate/encoding"
	xhttp "github.com/tollgate-labs/x402gate/http"
)

// ReceiptKey is the gin context key the settlement receipt is stored under.
const ReceiptKey = "x402gate.receipt"

// Middleware returns a Gin middleware enforcing payment through the gate.
// The receipt lands both in the gin context under ReceiptKey and in the
// request context for xhttp.ReceiptFromContext.
//
// Unlike the stdlib middleware, response bodies are not augmented with the
// receipt; Gin handlers own their bodies. Clients read the
// X-PAYMENT-RESPONSE header instead.
func Middleware(gate *xhttp.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		header := c.GetHeader("X-PAYMENT")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gate.Challenge(c.Request))
			return
		}

		receipt, err := gate.Settle(c.Request.Context(), header)
		if err != nil {
			abortWithPaymentError(c, gate, err)
			return
		}

		if headerValue, err := encoding.EncodeReceipt(*receipt); err == nil {
			c.Header("X-PAYMENT-RESPONSE", headerValue)
		}
		c.Set(ReceiptKey, receipt)
		c.Request = c.Request.WithContext(xhttp.ContextWithReceipt(c.Request.Context(), receipt))

		c.Next()
	}
}

// Receipt returns the settlement receipt for the current gin request.
func Receipt(c *gin.Context) (*x402gate.PaymentReceipt, bool) {
	value, ok := c.Get(ReceiptKey)
	if !ok {
		return nil, false
	}
	receipt, ok := value.(*x402gate.PaymentReceipt)
	return receipt, ok
}

func abortWithPaymentError(c *gin.Context, gate *xhttp.Gate, err error) {
	class := x402gate.ClassOf(err)
	status := x402gate.HTTPStatus(class)

	// Only the classed message goes to the client; the wrapped cause stays
	// server-side.
	message := err.Error()
	var pe *x402gate.PaymentError
	if errors.As(err, &pe) {
		message = pe.Message
	}

	if status == http.StatusPaymentRequired {
		challenge := gate.Challenge(c.Request)
		challenge.Error = message
		c.AbortWithStatusJSON(status, challenge)
		return
	}
	c.AbortWithStatusJSON(status, x402gate.ErrorResponse{Error: class, Message: message})
}
