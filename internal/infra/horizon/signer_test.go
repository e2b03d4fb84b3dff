package horizon

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"ledger_go/internal/domain"
)

const testSeed = "0000000000000000000000000000000000000000000000000000000000000001"

func TestKeySigner_SignVerifies(t *testing.T) {
	signer, err := NewKeySigner(testSeed)
	if err != nil {
		t.Fatalf("NewKeySigner failed: %v", err)
	}

	payload := []byte(`{"account_id":"GAACCOUNT","sequence":42}`)
	sig := signer.Sign(payload)
	if sig == "" {
		t.Fatal("signature is empty")
	}

	sigBytes, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}
	pubBytes, err := hex.DecodeString(signer.PublicKey())
	if err != nil {
		t.Fatalf("public key is not hex: %v", err)
	}

	digest := sha256.Sum256(payload)
	if !ed25519.Verify(ed25519.PublicKey(pubBytes), digest[:], sigBytes) {
		t.Error("signature does not verify against the public key")
	}
}

func TestKeySigner_Deterministic(t *testing.T) {
	a, _ := NewKeySigner(testSeed)
	b, _ := NewKeySigner(testSeed)

	if a.PublicKey() != b.PublicKey() {
		t.Error("same seed must yield the same public key")
	}

	payload := []byte("payload")
	if a.Sign(payload) != b.Sign(payload) {
		t.Error("same seed must yield the same signature")
	}
}

func TestNewKeySigner_RejectsBadSeeds(t *testing.T) {
	cases := []struct {
		name string
		seed string
	}{
		{"not hex", "zz" + strings.Repeat("00", 31)},
		{"too short", "abcd"},
		{"too long", strings.Repeat("00", 40)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewKeySigner(tc.seed); err == nil {
				t.Errorf("expected error for seed %q", tc.seed)
			}
		})
	}
}

func TestSigningFromConfig(t *testing.T) {
	provider, err := SigningFromConfig("")
	if err != nil {
		t.Fatalf("empty seed should not error: %v", err)
	}
	if _, err := provider.Signer(); !errors.Is(err, domain.ErrSignerUnavailable) {
		t.Errorf("expected ErrSignerUnavailable, got %v", err)
	}

	provider, err = SigningFromConfig(testSeed)
	if err != nil {
		t.Fatalf("valid seed failed: %v", err)
	}
	signer, err := provider.Signer()
	if err != nil {
		t.Fatalf("configured provider must yield a signer: %v", err)
	}
	if signer.PublicKey() == "" {
		t.Error("signer public key is empty")
	}
}
