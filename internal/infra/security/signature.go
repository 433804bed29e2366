// File: internal/infra/security/signature.go
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"trulyinvoice/internal/domain/ports/adapter"
)

var _ adapter.SignatureVerifier = (*CheckoutSigner)(nil)

// CheckoutSigner computes and checks checkout callback signatures:
// hex(HMAC-SHA256(secret, order_id + "|" + payment_id)).
type CheckoutSigner struct {
	secret []byte
}

func NewCheckoutSigner(secret string) *CheckoutSigner {
	return &CheckoutSigner{secret: []byte(secret)}
}

func (s *CheckoutSigner) Sign(orderID, paymentID string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify compares in constant time. Hex case is normalised first; any
// malformed signature fails.
func (s *CheckoutSigner) Verify(orderID, paymentID, signature string) bool {
	if len(s.secret) == 0 || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.Sign(orderID, paymentID))
	return hmac.Equal(want, got)
}
