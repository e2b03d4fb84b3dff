package horizon

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"ledger_go/internal/domain"
)

// TxSigner signs transaction envelope digests.
type TxSigner interface {
	Sign(payload []byte) string
	PublicKey() string
}

// SigningProvider yields the signing capability or a typed unavailable
// result. Credentials are never fabricated: a missing key surfaces
// domain.ErrSignerUnavailable instead of a mock signer.
type SigningProvider interface {
	Signer() (TxSigner, error)
}

// KeySigner signs with an ed25519 key derived from a hex seed.
type KeySigner struct {
	priv ed25519.PrivateKey
	pub  string
}

// NewKeySigner derives the keypair from a 32-byte hex seed.
func NewKeySigner(hexSeed string) (*KeySigner, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("invalid signing seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &KeySigner{
		priv: priv,
		pub:  hex.EncodeToString(pub),
	}, nil
}

// Sign hashes the payload and returns the base64 signature.
func (s *KeySigner) Sign(payload []byte) string {
	digest := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, digest[:]))
}

// PublicKey returns the hex-encoded public key.
func (s *KeySigner) PublicKey() string {
	return s.pub
}

// Signer satisfies SigningProvider so a configured key is its own
// provider.
func (s *KeySigner) Signer() (TxSigner, error) {
	return s, nil
}

// NoSigner is the explicit absent capability.
type NoSigner struct{}

func (NoSigner) Signer() (TxSigner, error) {
	return nil, domain.ErrSignerUnavailable
}

// SigningFromConfig returns a KeySigner when a seed is configured and
// the explicit NoSigner otherwise.
func SigningFromConfig(hexSeed string) (SigningProvider, error) {
	if hexSeed == "" {
		return NoSigner{}, nil
	}
	return NewKeySigner(hexSeed)
}
