package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quokkaworks/identity/internal/identity/directory"
	"github.com/quokkaworks/identity/pkg/cryptox"
	"github.com/quokkaworks/identity/pkg/jwtx"
)

// InitSigningKeys creates a KeyManager with the configured algorithm and
// storage mode.
//
// Storage modes:
//   - "ephemeral": keys are generated on startup and live only in memory,
//     so every outstanding token dies with a restart.
//   - "persistent": keys are stored in the directory database encrypted
//     with the master key; tokens survive restarts and rotation keeps a
//     verification grace period for retired keys.
func InitSigningKeys(ctx context.Context, cfg Config, db directory.Store, logger *slog.Logger) (*jwtx.KeyManager, error) {
	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
		logger.Info("master key path configured", "path", cfg.MasterKeyPath)
	}

	switch cfg.KeyStorageMode {
	case "persistent":
		logger.Info("initializing persistent key manager",
			"algorithm", cfg.Algorithm,
			"num_keys", cfg.NumKeys,
			"grace_period", cfg.KeyGracePeriod,
		)

		keyManager, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
			Store:       directory.NewKeyStoreAdapter(db),
			Algorithm:   cfg.Algorithm,
			Issuer:      cfg.Issuer,
			RSABits:     cfg.RSABits,
			NumKeys:     cfg.NumKeys,
			GracePeriod: cfg.KeyGracePeriod,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize persistent key manager: %w", err)
		}

		logger.Info("persistent signing keys loaded",
			"algorithm", keyManager.Algorithm(),
			"num_keys", keyManager.NumSigners(),
			"issuer", cfg.Issuer,
		)
		return keyManager, nil

	default:
		logger.Info("initializing ephemeral key manager",
			"algorithm", cfg.Algorithm,
			"num_keys", cfg.NumKeys,
		)

		keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
			Algorithm: cfg.Algorithm,
			Issuer:    cfg.Issuer,
			RSABits:   cfg.RSABits,
			NumKeys:   cfg.NumKeys,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}

		logger.Info("generated ephemeral signing keys",
			"algorithm", keyManager.Algorithm(),
			"num_keys", keyManager.NumSigners(),
			"issuer", cfg.Issuer,
		)
		logger.Warn("all previously issued tokens are now invalid")
		return keyManager, nil
	}
}
