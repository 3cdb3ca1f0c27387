package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Signature verification errors.
var (
	ErrNoSecret         = errors.New("mercadopago: webhook secret not configured")
	ErrMissingSignature = errors.New("mercadopago: signature header missing")
	ErrMalformed        = errors.New("mercadopago: malformed signature")
)

// Verifier checks the HMAC-SHA256 of webhook bodies against the shared secret.
type Verifier struct {
	Secret string
	// AllowUnsigned accepts every delivery when no secret is configured.
	// Config only allows it outside production.
	AllowUnsigned bool
}

// Verify reports whether body carries a valid signature. Empty bodies pass
// (query-parameter deliveries carry nothing to sign). The header may be the
// bare hex digest or the "ts=...,v1=<hex>" form. Any error means rejection.
func (v Verifier) Verify(body []byte, signature string) (bool, error) {
	if v.Secret == "" {
		if v.AllowUnsigned {
			return true, nil
		}
		return false, ErrNoSecret
	}
	if len(body) == 0 {
		return true, nil
	}

	digest := extractDigest(signature)
	if digest == "" {
		return false, ErrMissingSignature
	}
	got, err := hex.DecodeString(strings.ToLower(digest))
	if err != nil {
		return false, ErrMalformed
	}

	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got), nil
}

// Sign returns the hex HMAC-SHA256 of body. Used by tests and local tooling.
func (v Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func extractDigest(header string) string {
	header = strings.TrimSpace(header)
	if !strings.Contains(header, "=") {
		return header
	}
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.TrimSpace(k) == "v1" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
