// Package webhook verifies the authenticity of inbound provider
// callbacks. Validators operate on the exact raw body, before any
// deserialisation, and compare signatures in constant time.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// ValidateHMAC checks an HMAC-SHA256 shared-secret signature over the raw
// body. The header value may be hex or base64, with an optional
// "sha256=" prefix (Calendly and most generic providers).
func ValidateHMAC(signatureHeader string, rawBody []byte, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	if decoded, err := hex.DecodeString(sig); err == nil {
		return hmac.Equal(decoded, expected)
	}
	if decoded, err := base64.StdEncoding.DecodeString(sig); err == nil {
		return hmac.Equal(decoded, expected)
	}
	return false
}

// ValidateTwilio checks the X-Twilio-Signature scheme: HMAC-SHA1 over the
// full callback URL concatenated with the form parameters sorted by key,
// base64-encoded.
func ValidateTwilio(signatureHeader, callbackURL string, form url.Values, authToken string) bool {
	if signatureHeader == "" || authToken == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(callbackURL)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signatureHeader), []byte(expected))
}
