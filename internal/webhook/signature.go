// Package webhook handles inbound completion notifications from the external
// processor: payload types and HMAC signature verification.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	// ErrInvalidSignature is returned when no candidate signature matches the
	// expected value for the delivery.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMissingHeaders is returned in strict mode when the delivery lacks
	// the id, timestamp or signature header.
	ErrMissingHeaders = errors.New("missing webhook signature headers")

	// ErrNoSecret is returned in strict mode when no shared secret is
	// configured, so no delivery can ever be verified.
	ErrNoSecret = errors.New("webhook secret not configured")
)

// Verifier checks that a notification genuinely originated from the
// processor. The expected signature is an HMAC-SHA256 over
// "deliveryID.timestamp.body", base64-encoded with the shared secret as key.
//
// In strict mode (the default) unverifiable deliveries are rejected. The
// permissive mode reproduces the accept-and-log posture some deployments use
// during development: deliveries without a configured secret or without
// signature headers pass through unverified.
type Verifier struct {
	secret []byte
	strict bool
}

// NewVerifier creates a Verifier with the given shared secret.
// strict controls whether unverifiable deliveries are rejected.
func NewVerifier(secret string, strict bool) *Verifier {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Verifier{secret: key, strict: strict}
}

// Strict reports whether the verifier rejects unverifiable deliveries.
func (v *Verifier) Strict() bool {
	return v.strict
}

// Verify checks the delivery's signature header against the expected value.
//
// The signature header may carry multiple space-delimited candidates, each
// optionally prefixed with a scheme and a comma (e.g. "v1,MEYC..."). The
// delivery is authentic if any candidate matches under constant-time
// comparison.
func (v *Verifier) Verify(body []byte, deliveryID, timestamp, signatureHeader string) error {
	if len(v.secret) == 0 {
		if v.strict {
			return ErrNoSecret
		}
		// No secret configured: nothing to verify against. Unsafe, and only
		// permitted because strict mode is off.
		return nil
	}

	if deliveryID == "" || timestamp == "" || signatureHeader == "" {
		if v.strict {
			return ErrMissingHeaders
		}
		return nil
	}

	expected := v.expectedSignature(body, deliveryID, timestamp)

	for _, candidate := range strings.Fields(signatureHeader) {
		// Strip an optional "scheme," prefix from each candidate.
		if idx := strings.IndexByte(candidate, ','); idx >= 0 {
			candidate = candidate[idx+1:]
		}
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// expectedSignature computes the base64 HMAC-SHA256 of "id.timestamp.body".
func (v *Verifier) expectedSignature(body []byte, deliveryID, timestamp string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(deliveryID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
