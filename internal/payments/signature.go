package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSignatureMismatch indicates the supplied signature does not match the expected digest.
var ErrSignatureMismatch = errors.New("payments: signature mismatch")

// SignatureVerifier validates gateway callback signatures. The signed message
// is the gateway order identifier and the payment identifier joined by a pipe,
// digested with HMAC-SHA256 and hex encoded.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier constructs a verifier over the shared gateway secret.
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: signature secret is required")
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Sign produces the expected signature for the given identifiers.
func (v *SignatureVerifier) Sign(gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the supplied signature against the expected digest in
// constant time.
func (v *SignatureVerifier) Verify(gatewayOrderID, paymentID, signature string) error {
	if v == nil {
		return errors.New("payments: verifier is nil")
	}
	expected := v.Sign(gatewayOrderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}
