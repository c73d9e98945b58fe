package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/tabsession/internal/core/store"
	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
)

// InitSigningKeys builds the access token KeyManager.
//
// Storage modes:
//   - "ephemeral": keys are generated on startup and kept in memory. Every
//     access token becomes unverifiable when the core restarts.
//   - "persistent": keys are sealed into the database and survive restarts.
//     Retired keys keep verifying for the grace period.
func InitSigningKeys(ctx context.Context, cfg Config, db store.Store, sealer *cryptox.Sealer, logger *slog.Logger) (*jwtx.KeyManager, error) {
	var keyManager *jwtx.KeyManager
	var err error

	switch cfg.KeyStorageMode {
	case "persistent":
		logger.Info("initializing persistent key manager",
			"algorithm", cfg.Algorithm,
			"num_keys", cfg.NumKeys,
			"grace_period", cfg.KeyGracePeriod,
		)

		keyManager, err = jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
			Store:     store.NewKeyStoreAdapter(db),
			Sealer:    sealer,
			Algorithm: cfg.Algorithm,
			RSABits:   cfg.RSABits,
			NumKeys:   cfg.NumKeys,
			Lifetime:  cfg.KeyGracePeriod,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize persistent key manager: %w", err)
		}

		logger.Info("persistent signing keys loaded",
			"algorithm", keyManager.Algorithm(),
			"num_keys", keyManager.NumSigners(),
		)

	case "ephemeral", "":
		keyManager, err = jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
			Algorithm: cfg.Algorithm,
			RSABits:   cfg.RSABits,
			NumKeys:   cfg.NumKeys,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}

		logger.Info("generated ephemeral signing keys",
			"algorithm", keyManager.Algorithm(),
			"num_keys", keyManager.NumSigners(),
		)
		logger.Warn("access tokens issued before this start can no longer be verified")

	default:
		return nil, fmt.Errorf("unknown key storage mode %q", cfg.KeyStorageMode)
	}

	return keyManager, nil
}

// InitSealer builds the sealer from the configured key. Without one a random
// key is used, which only ephemeral key storage tolerates.
func InitSealer(cfg Config, logger *slog.Logger) (*cryptox.Sealer, error) {
	if cfg.SealKey == "" {
		if cfg.KeyStorageMode == "persistent" {
			return nil, fmt.Errorf("CORE_SEAL_KEY is required for persistent key storage")
		}
		logger.Warn("no seal key configured, refresh tokens will not survive a restart")
		return cryptox.NewRandomSealer(), nil
	}

	key, err := cryptox.ParseSealKey(cfg.SealKey)
	if err != nil {
		return nil, fmt.Errorf("invalid seal key: %w", err)
	}
	return cryptox.NewSealer(key)
}
