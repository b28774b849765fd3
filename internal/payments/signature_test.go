package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func TestNewSignatureVerifierRequiresSecret(t *testing.T) {
	if _, err := NewSignatureVerifier("  "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestSignatureVerifierSignMatchesHMACSHA256(t *testing.T) {
	verifier, err := NewSignatureVerifier("callback-secret")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("callback-secret"))
	mac.Write([]byte("pi_123|pay_42"))
	expected := hex.EncodeToString(mac.Sum(nil))

	if got := verifier.Sign("pi_123", "pay_42"); got != expected {
		t.Fatalf("expected %s, got %s", expected, got)
	}
}

func TestSignatureVerifierVerifyRoundTrip(t *testing.T) {
	verifier, err := NewSignatureVerifier("callback-secret")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}

	signature := verifier.Sign("pi_123", "pay_42")
	if err := verifier.Verify("pi_123", "pay_42", signature); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := verifier.Verify("pi_123", "pay_42", "  "+signature+"  "); err != nil {
		t.Fatalf("expected whitespace tolerated, got %v", err)
	}
}

func TestSignatureVerifierRejectsTamperedInput(t *testing.T) {
	verifier, err := NewSignatureVerifier("callback-secret")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}
	signature := verifier.Sign("pi_123", "pay_42")

	cases := map[string]struct {
		gatewayOrderID string
		paymentID      string
		signature      string
	}{
		"wrong gateway order": {"pi_999", "pay_42", signature},
		"wrong payment":       {"pi_123", "pay_99", signature},
		"corrupt signature":   {"pi_123", "pay_42", signature[:len(signature)-1] + "0"},
		"empty signature":     {"pi_123", "pay_42", ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := verifier.Verify(tc.gatewayOrderID, tc.paymentID, tc.signature)
			if !errors.Is(err, ErrSignatureMismatch) {
				t.Fatalf("expected ErrSignatureMismatch, got %v", err)
			}
		})
	}
}

func TestSignatureVerifierDifferentSecretsDisagree(t *testing.T) {
	a, err := NewSignatureVerifier("secret-a")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}
	b, err := NewSignatureVerifier("secret-b")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}

	signature := a.Sign("pi_123", "pay_42")
	if err := b.Verify("pi_123", "pay_42", signature); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected mismatch across secrets, got %v", err)
	}
}
