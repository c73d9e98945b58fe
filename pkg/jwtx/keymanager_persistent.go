package jwtx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/idx"
)

// SigningKeyRecord is a signing key as stored by the core. The private key is
// sealed with the core's master Sealer.
type SigningKeyRecord struct {
	ID               string
	Kid              string
	Algorithm        string
	PrivateKeySealed []byte
	CreatedAt        time.Time
	RetiredAt        *time.Time
	ExpiresAt        time.Time
}

// Active reports whether the key may still sign at now.
func (r SigningKeyRecord) Active(now time.Time) bool {
	return r.RetiredAt == nil && now.Before(r.ExpiresAt)
}

// KeyStore is the slice of the core store the key manager needs.
type KeyStore interface {
	// ListSigningKeys returns every key that is not yet expired, retired or not.
	ListSigningKeys(ctx context.Context, now time.Time) ([]SigningKeyRecord, error)
	CreateSigningKey(ctx context.Context, key SigningKeyRecord) error
}

// PersistentKeyManagerOptions configures a KeyManager backed by a KeyStore.
type PersistentKeyManagerOptions struct {
	Store  KeyStore
	Sealer *cryptox.Sealer

	// Algorithm, RSABits and NumKeys apply to keys generated to top up the
	// active set. Loaded keys keep their stored algorithm.
	Algorithm string
	RSABits   int
	NumKeys   int

	// Lifetime bounds how long a key is kept for verification. Defaults to
	// 30 days.
	Lifetime time.Duration
}

// sealAAD binds sealed key material to its purpose.
var sealAAD = []byte("tabsession/signing-key")

// SealPrivateKey seals a PEM private key for storage as
// SigningKeyRecord.PrivateKeySealed.
func SealPrivateKey(s *cryptox.Sealer, pemData []byte) ([]byte, error) {
	return s.Seal(pemData, sealAAD)
}

// NewPersistentKeyManager loads every unexpired key for verification, signs
// with the active ones, and generates and stores new keys until NumKeys are
// active.
func NewPersistentKeyManager(ctx context.Context, opts PersistentKeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil || opts.Sealer == nil {
		return nil, errors.New("jwtx: persistent key manager needs a store and a sealer")
	}
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmEdDSA
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = 30 * 24 * time.Hour
	}
	numKeys := clampNumKeys(opts.NumKeys)
	now := time.Now().UTC()

	records, err := opts.Store.ListSigningKeys(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("jwtx: load signing keys: %w", err)
	}

	km := &KeyManager{KeySet: NewKeySet(), algorithm: opts.Algorithm}
	for _, rec := range records {
		pemData, err := opts.Sealer.Open(rec.PrivateKeySealed, sealAAD)
		if err != nil {
			return nil, fmt.Errorf("jwtx: unseal key %s: %w", rec.Kid, err)
		}
		signer, err := NewSigner(rec.Algorithm, rec.Kid, pemData)
		if err != nil {
			return nil, fmt.Errorf("jwtx: load key %s: %w", rec.Kid, err)
		}

		if rec.Active(now) {
			if err := km.AddSigner(signer); err != nil {
				return nil, err
			}
			continue
		}
		if err := km.KeySet.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: add key %s to keyset: %w", rec.Kid, err)
		}
	}

	for km.NumSigners() < numKeys {
		pemData, signer, err := GenerateKey(opts.Algorithm, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key: %w", err)
		}

		sealed, err := SealPrivateKey(opts.Sealer, pemData)
		if err != nil {
			return nil, fmt.Errorf("jwtx: seal new key: %w", err)
		}

		rec := SigningKeyRecord{
			ID:               idx.New().String(),
			Kid:              signer.KID(),
			Algorithm:        opts.Algorithm,
			PrivateKeySealed: sealed,
			CreatedAt:        now,
			ExpiresAt:        now.Add(opts.Lifetime),
		}
		if err := opts.Store.CreateSigningKey(ctx, rec); err != nil {
			return nil, fmt.Errorf("jwtx: store new key: %w", err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}

	return km, nil
}
