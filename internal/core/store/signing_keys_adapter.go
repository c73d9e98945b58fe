package store

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
)

// KeyStoreAdapter lets jwtx load and create signing keys without depending
// on the domain package.
type KeyStoreAdapter struct {
	store Store
}

// NewKeyStoreAdapter creates a new adapter that implements jwtx.KeyStore using a store.Store.
func NewKeyStoreAdapter(store Store) *KeyStoreAdapter {
	return &KeyStoreAdapter{store: store}
}

// ListSigningKeys returns every unexpired key, retired or not.
func (a *KeyStoreAdapter) ListSigningKeys(ctx context.Context, now time.Time) ([]jwtx.SigningKeyRecord, error) {
	keys, err := a.store.SigningKeys().ListSigningKeys(ctx, now)
	if err != nil {
		return nil, err
	}

	records := make([]jwtx.SigningKeyRecord, len(keys))
	for i, key := range keys {
		records[i] = jwtx.SigningKeyRecord{
			ID:               key.ID,
			Kid:              key.Kid,
			Algorithm:        key.Algorithm,
			PrivateKeySealed: key.PrivateKeySealed,
			CreatedAt:        key.CreatedAt,
			RetiredAt:        key.RetiredAt,
			ExpiresAt:        key.ExpiresAt,
		}
	}
	return records, nil
}

// CreateSigningKey stores a key generated by the key manager.
func (a *KeyStoreAdapter) CreateSigningKey(ctx context.Context, key jwtx.SigningKeyRecord) error {
	return a.store.SigningKeys().CreateSigningKey(ctx, domain.SigningKey{
		ID:               key.ID,
		Kid:              key.Kid,
		Algorithm:        key.Algorithm,
		PrivateKeySealed: key.PrivateKeySealed,
		CreatedAt:        key.CreatedAt,
		RetiredAt:        key.RetiredAt,
		ExpiresAt:        key.ExpiresAt,
	})
}
