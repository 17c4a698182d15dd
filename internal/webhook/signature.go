package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the header the Cloud API signs request bodies with.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// SignatureValidator checks that an inbound payload genuinely originated from
// the upstream sender by verifying its HMAC-SHA256 over the exact raw body.
type SignatureValidator struct {
	secret []byte
}

// NewSignatureValidator creates a validator for the given shared secret. An
// empty secret disables validation entirely; callers warn about that at
// startup.
func NewSignatureValidator(secret string) *SignatureValidator {
	return &SignatureValidator{secret: []byte(secret)}
}

// Bypassed reports whether validation is disabled (no secret configured).
func (v *SignatureValidator) Bypassed() bool {
	return len(v.secret) == 0
}

// Validate verifies the hex-encoded, "sha256="-prefixed signature against the
// raw body using a constant-time comparison. A missing or malformed header is
// a rejection whenever a secret is configured.
func (v *SignatureValidator) Validate(rawBody []byte, header string) bool {
	if v.Bypassed() {
		return true
	}

	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	return hmac.Equal(provided, mac.Sum(nil))
}

// Sign computes the signature header value for a body. Used by the tester
// binary and by tests.
func (v *SignatureValidator) Sign(rawBody []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySubscribe answers the setup-time GET handshake: when mode is
// "subscribe" and the token matches the configured value, the challenge must
// be echoed back verbatim.
func VerifySubscribe(mode, token, challenge, configuredToken string) (string, bool) {
	if mode == "subscribe" && configuredToken != "" && token == configuredToken {
		return challenge, true
	}
	return "", false
}
