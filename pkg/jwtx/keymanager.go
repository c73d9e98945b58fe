package jwtx

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
)

var ErrNoSigner = errors.New("jwtx: no active signing key")

// KeyManager owns the core's signing keys. Every key stays in KeySet for
// verification; only active keys sign, picked at random per token.
type KeyManager struct {
	KeySet    *KeySet
	algorithm string

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures an ephemeral KeyManager.
type KeyManagerOptions struct {
	// Algorithm is one of RS256, ES256, EdDSA. Defaults to EdDSA.
	Algorithm string

	// RSABits is the RS256 key size. Defaults to 4096, minimum 2048.
	RSABits int

	// NumKeys is clamped to [1, 10] and defaults to 3.
	NumKeys int
}

func clampNumKeys(n int) int {
	switch {
	case n <= 0:
		return 3
	case n > 10:
		return 10
	default:
		return n
	}
}

// NewEphemeralKeyManager generates keys in memory only. Tokens signed by it
// stop verifying once the process restarts.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmEdDSA
	}

	km := &KeyManager{KeySet: NewKeySet(), algorithm: opts.Algorithm}
	for i := range clampNumKeys(opts.NumKeys) {
		_, signer, err := GenerateKey(opts.Algorithm, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate signer %d: %w", i+1, err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}
	return km, nil
}

// GenerateKey creates a fresh key pair under a random kid and returns its PEM
// alongside the signer.
func GenerateKey(algorithm string, rsaBits int) ([]byte, Signer, error) {
	var (
		pemData []byte
		err     error
	)

	switch algorithm {
	case AlgorithmRS256:
		if rsaBits == 0 {
			rsaBits = 4096
		}
		pemData, err = cryptox.GenerateRSAKey(rsaBits)
	case AlgorithmES256:
		pemData, err = cryptox.GenerateES256Key()
	case AlgorithmEdDSA:
		pemData, err = cryptox.GenerateEd25519Key()
	default:
		return nil, nil, fmt.Errorf("unsupported algorithm %q (supported: RS256, ES256, EdDSA)", algorithm)
	}
	if err != nil {
		return nil, nil, err
	}

	kid, err := generateRandomKeyID()
	if err != nil {
		return nil, nil, err
	}

	signer, err := NewSigner(algorithm, kid, pemData)
	if err != nil {
		return nil, nil, err
	}
	return pemData, signer, nil
}

// Algorithm returns the algorithm new keys are generated with.
func (km *KeyManager) Algorithm() string { return km.algorithm }

// IsReady reports whether at least one verification key is loaded.
func (km *KeyManager) IsReady() bool { return km.KeySet.IsReady() }

// GetSigner returns a random active signer, or nil when there are none.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))]
	}
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// GetSigners returns a copy of the active signers.
func (km *KeyManager) GetSigners() []Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return append([]Signer(nil), km.signers...)
}

// AddSigner makes signer active and publishes its public key.
func (km *KeyManager) AddSigner(signer Signer) error {
	if signer == nil {
		return errors.New("jwtx: signer cannot be nil")
	}
	if err := signer.Validate(); err != nil {
		return err
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if err := km.KeySet.AddSigner(signer); err != nil {
		return fmt.Errorf("jwtx: add signer to keyset: %w", err)
	}
	km.signers = append(km.signers, signer)
	return nil
}

// RetireSignerByKid stops kid from signing. It stays in KeySet so tokens it
// already signed keep verifying. The last active key cannot be retired.
func (km *KeyManager) RetireSignerByKid(kid string) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if len(km.signers) <= 1 {
		return errors.New("jwtx: cannot retire the last signing key")
	}

	kept := make([]Signer, 0, len(km.signers)-1)
	for _, s := range km.signers {
		if s.KID() != kid {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(km.signers) {
		return fmt.Errorf("jwtx: signer with kid %q not found", kid)
	}
	km.signers = kept
	return nil
}

// SignAccessToken signs p with a randomly chosen active key.
func (km *KeyManager) SignAccessToken(p *AccessTokenPayload) (string, error) {
	s := km.GetSigner()
	if s == nil {
		return "", ErrNoSigner
	}
	return Sign(p, s)
}

// Key implements KeyLookup.
func (km *KeyManager) Key(ctx context.Context, kid string) (any, error) {
	return km.KeySet.Key(ctx, kid)
}

// generateRandomKeyID returns "st-{random}" with 128 bits of entropy.
func generateRandomKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: generate key id: %w", err)
	}
	return "st-" + token, nil
}
