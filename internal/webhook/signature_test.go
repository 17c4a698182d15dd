package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestSignatureValidator_ValidSignature(t *testing.T) {
	v := NewSignatureValidator("top-secret")
	body := []byte(`{"object":"whatsapp_business_account"}`)

	assert.True(t, v.Validate(body, signBody("top-secret", body)))
}

func TestSignatureValidator_SingleByteMutationRejected(t *testing.T) {
	v := NewSignatureValidator("top-secret")
	body := []byte(`{"object":"whatsapp_business_account"}`)
	header := signBody("top-secret", body)

	// Flip one hex digit of the signature.
	raw := []byte(header)
	last := len(raw) - 1
	if raw[last] == 'a' {
		raw[last] = 'b'
	} else {
		raw[last] = 'a'
	}

	assert.False(t, v.Validate(body, string(raw)))
}

func TestSignatureValidator_WrongSecretRejected(t *testing.T) {
	v := NewSignatureValidator("top-secret")
	body := []byte(`{"entry":[]}`)

	assert.False(t, v.Validate(body, signBody("other-secret", body)))
}

func TestSignatureValidator_MissingHeaderRejected(t *testing.T) {
	v := NewSignatureValidator("top-secret")

	assert.False(t, v.Validate([]byte(`{}`), ""))
}

func TestSignatureValidator_MalformedHeaderRejected(t *testing.T) {
	v := NewSignatureValidator("top-secret")
	body := []byte(`{}`)

	assert.False(t, v.Validate(body, "sha256=not-hex-at-all"))
	assert.False(t, v.Validate(body, "md5=abcdef"))
}

func TestSignatureValidator_NoSecretAcceptsEverything(t *testing.T) {
	v := NewSignatureValidator("")

	assert.True(t, v.Bypassed())
	assert.True(t, v.Validate([]byte(`{}`), ""))
	assert.True(t, v.Validate([]byte(`{}`), "sha256=garbage"))
}

func TestSignatureValidator_SignRoundTrip(t *testing.T) {
	v := NewSignatureValidator("top-secret")
	body := []byte(`{"entry":[{"id":"1"}]}`)

	assert.True(t, v.Validate(body, v.Sign(body)))
}

func TestVerifySubscribe(t *testing.T) {
	testCases := []struct {
		name       string
		mode       string
		token      string
		configured string
		expectOK   bool
	}{
		{"Matching token", "subscribe", "tok-123", "tok-123", true},
		{"Wrong token", "subscribe", "tok-bad", "tok-123", false},
		{"Wrong mode", "unsubscribe", "tok-123", "tok-123", false},
		{"No configured token", "subscribe", "", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			echo, ok := VerifySubscribe(tc.mode, tc.token, "challenge-42", tc.configured)
			assert.Equal(t, tc.expectOK, ok)
			if tc.expectOK {
				assert.Equal(t, "challenge-42", echo)
			} else {
				assert.Empty(t, echo)
			}
		})
	}
}
