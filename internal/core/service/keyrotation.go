package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/idx"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
)

var ErrKeyAlreadyRetired = errors.New("signing key already retired")

// KeyRotationService rotates access token signing keys at runtime.
//
// With a Store (persistent mode) new keys are sealed and saved and
// retirements are recorded, so they survive restarts. Without one the
// changes live in the KeyManager only.
type KeyRotationService struct {
	Store       store.Store // nil for ephemeral mode
	Sealer      *cryptox.Sealer
	KeyManager  *jwtx.KeyManager
	Algorithm   string
	RSABits     int
	GracePeriod time.Duration
}

type RotateKeyRequest struct {
	// RetireExisting stops every current key from signing. They keep
	// verifying until they expire.
	RetireExisting bool
}

type RotateKeyResponse struct {
	NewKey      domain.SigningKey
	RetiredKeys []domain.SigningKey
	ActiveKeys  int
}

// RotateKey generates a new signing key and optionally retires the others.
func (s *KeyRotationService) RotateKey(ctx context.Context, req RotateKeyRequest) (*RotateKeyResponse, error) {
	if s.KeyManager == nil {
		return nil, fmt.Errorf("KeyManager is required")
	}

	algorithm := s.Algorithm
	if algorithm == "" {
		algorithm = s.KeyManager.Algorithm()
	}
	pemData, signer, err := jwtx.GenerateKey(algorithm, s.RSABits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	now := time.Now().UTC()
	gracePeriod := s.GracePeriod
	if gracePeriod <= 0 {
		gracePeriod = 30 * 24 * time.Hour
	}

	newKey := domain.SigningKey{
		ID:        idx.New().String(),
		Kid:       signer.KID(),
		Algorithm: algorithm,
		CreatedAt: now,
		ExpiresAt: now.Add(gracePeriod),
	}
	previous := s.KeyManager.GetSigners()

	var retired []domain.SigningKey
	if s.Store != nil {
		sealed, err := jwtx.SealPrivateKey(s.Sealer, pemData)
		if err != nil {
			return nil, fmt.Errorf("failed to seal private key: %w", err)
		}
		newKey.PrivateKeySealed = sealed

		err = s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.SigningKeys().CreateSigningKey(ctx, newKey); err != nil {
				return fmt.Errorf("failed to create new signing key: %w", err)
			}
			if !req.RetireExisting {
				return nil
			}
			for _, p := range previous {
				if err := tx.SigningKeys().RetireSigningKey(ctx, p.KID(), now); err != nil && !errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("failed to retire key %s: %w", p.KID(), err)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	// The new key must be active before the old ones are retired.
	if err := s.KeyManager.AddSigner(signer); err != nil {
		return nil, fmt.Errorf("failed to add signer to key manager: %w", err)
	}
	if req.RetireExisting {
		for _, p := range previous {
			if err := s.KeyManager.RetireSignerByKid(p.KID()); err != nil {
				return nil, fmt.Errorf("failed to retire key %s: %w", p.KID(), err)
			}
			retired = append(retired, domain.SigningKey{Kid: p.KID(), Algorithm: p.Alg(), RetiredAt: &now})
		}
	}

	return &RotateKeyResponse{
		NewKey:      newKey,
		RetiredKeys: retired,
		ActiveKeys:  s.KeyManager.NumSigners(),
	}, nil
}

// ListSigningKeys returns stored keys in persistent mode and the active
// signers otherwise.
func (s *KeyRotationService) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	if s.Store != nil {
		return s.Store.SigningKeys().ListSigningKeys(ctx, time.Now())
	}
	if s.KeyManager == nil {
		return nil, fmt.Errorf("KeyManager is required")
	}

	signers := s.KeyManager.GetSigners()
	keys := make([]domain.SigningKey, len(signers))
	for i, signer := range signers {
		keys[i] = domain.SigningKey{Kid: signer.KID(), Algorithm: signer.Alg()}
	}
	return keys, nil
}

// RetireKey stops kid from signing. It keeps verifying until it expires.
func (s *KeyRotationService) RetireKey(ctx context.Context, kid string) error {
	if s.KeyManager == nil {
		return fmt.Errorf("KeyManager is required")
	}

	if s.Store != nil {
		key, err := s.Store.SigningKeys().GetSigningKeyByKid(ctx, kid)
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}
		if key.RetiredAt != nil {
			return ErrKeyAlreadyRetired
		}
		// Retire in memory first; it refuses to retire the last key.
		if err := s.KeyManager.RetireSignerByKid(kid); err != nil {
			return fmt.Errorf("failed to retire key: %w", err)
		}
		return s.Store.SigningKeys().RetireSigningKey(ctx, kid, time.Now())
	}

	if err := s.KeyManager.RetireSignerByKid(kid); err != nil {
		return fmt.Errorf("failed to retire key: %w", err)
	}
	return nil
}
