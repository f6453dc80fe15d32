package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	x402gate "github.com/tollgate-labs/x402gate"
)

// receiptAugmenter wraps the ResponseWriter to stamp the settlement receipt
// into successful JSON responses: a "payment" object plus a top-level
// "transactionHash". Non-JSON bodies, error statuses, and streamed
// responses pass through untouched; those callers still get the receipt
// from the X-PAYMENT-RESPONSE header.
type receiptAugmenter struct {
	w       http.ResponseWriter
	receipt *x402gate.PaymentReceipt

	buf         bytes.Buffer
	status      int
	wroteHeader bool
	streaming   bool
}

func newReceiptAugmenter(w http.ResponseWriter, receipt *x402gate.PaymentReceipt) *receiptAugmenter {
	return &receiptAugmenter{w: w, receipt: receipt, status: http.StatusOK}
}

func (a *receiptAugmenter) Header() http.Header {
	return a.w.Header()
}

func (a *receiptAugmenter) WriteHeader(statusCode int) {
	if a.wroteHeader {
		return
	}
	a.wroteHeader = true
	a.status = statusCode

	// Error and non-JSON responses are not augmented; commit immediately
	// so the handler keeps full control of them.
	if !a.augmentable() {
		a.streaming = true
		a.w.WriteHeader(statusCode)
	}
}

func (a *receiptAugmenter) Write(b []byte) (int, error) {
	if !a.wroteHeader {
		a.WriteHeader(http.StatusOK)
	}
	if a.streaming {
		return a.w.Write(b)
	}
	return a.buf.Write(b)
}

// Flush implements http.Flusher. A handler that flushes is streaming;
// augmentation is abandoned and the buffer drains to the client.
func (a *receiptAugmenter) Flush() {
	if !a.streaming {
		a.w.WriteHeader(a.status)
		if a.buf.Len() > 0 {
			a.w.Write(a.buf.Bytes())
		}
		a.streaming = true
	}
	if flusher, ok := a.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker for websocket upgrades behind the gate.
func (a *receiptAugmenter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := a.w.(http.Hijacker); ok {
		a.streaming = true
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// finalize writes the buffered body, augmented when it parses as a JSON
// object. Called by the gate after the handler returns.
func (a *receiptAugmenter) finalize() {
	if a.streaming {
		return
	}

	body := a.buf.Bytes()
	if augmented, ok := a.augment(body); ok {
		body = augmented
	}
	a.commit(body)
}

// augmentable reports whether the response may be augmented: a success
// status with a JSON (or unset) content type.
func (a *receiptAugmenter) augmentable() bool {
	if a.status < 200 || a.status >= 300 {
		return false
	}
	contentType := a.w.Header().Get("Content-Type")
	return contentType == "" || strings.Contains(contentType, "application/json")
}

// augment injects the receipt into a JSON object body. Arrays, scalars,
// and unparseable bodies are left alone.
func (a *receiptAugmenter) augment(body []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, false
	}

	payload["payment"] = a.receipt
	if a.receipt.TransactionHash != "" {
		payload["transactionHash"] = a.receipt.TransactionHash
	}

	augmented, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	return augmented, true
}

func (a *receiptAugmenter) commit(body []byte) {
	header := a.w.Header()
	if header.Get("Content-Type") == "" && len(body) > 0 {
		header.Set("Content-Type", "application/json")
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	a.w.WriteHeader(a.status)
	if len(body) > 0 {
		a.w.Write(body)
	}
}
