package trigger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rendis/autoforge/pkg/schema"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

const signaturePrefix = "sha256="

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against body in constant time. A
// "sha256=" prefix is accepted. Returns SIGNATURE_ERROR on any mismatch.
func VerifySignature(secret string, body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return schema.NewError(schema.ErrCodeSignature, "missing webhook signature")
	}
	signature = strings.TrimPrefix(signature, signaturePrefix)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return schema.NewError(schema.ErrCodeSignature, "invalid webhook signature")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return schema.NewError(schema.ErrCodeSignature, "invalid webhook signature")
	}
	return nil
}
