// Package webhook verifies HMAC-signed callbacks from the messaging and payment
// providers.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Default signature headers for each provider.
const (
	MessagingSignatureHeader = "X-Messaging-Signature"
	PaymentSignatureHeader   = "X-Payment-Signature"
)

const maxSignedBody = 1 << 20

// SignPayload computes an HMAC-SHA256 signature of the payload using the given secret,
// returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret. A "sha256=" prefix is accepted.
func VerifySignature(payload []byte, secret, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// RequireSignature rejects requests whose body does not carry a valid signature
// in header. An empty secret disables the check (development only; config
// validation refuses it in production). The body is restored for the handler.
func RequireSignature(header, secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}
			req := c.Request()
			body, err := io.ReadAll(io.LimitReader(req.Body, maxSignedBody))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
			}
			req.Body.Close()
			if !VerifySignature(body, secret, req.Header.Get(header)) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			return next(c)
		}
	}
}
