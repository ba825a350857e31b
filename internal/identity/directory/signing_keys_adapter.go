package directory

import (
	"context"

	"github.com/quokkaworks/identity/internal/identity/domain"
	"github.com/quokkaworks/identity/pkg/jwtx"
)

// KeyStoreAdapter adapts Store to the jwtx.KeyStore interface so the
// jwtx package never has to import the domain package.
type KeyStoreAdapter struct {
	store Store
}

func NewKeyStoreAdapter(store Store) *KeyStoreAdapter {
	return &KeyStoreAdapter{store: store}
}

func (a *KeyStoreAdapter) ListAllSigningKeys(ctx context.Context) ([]jwtx.SigningKeyRecord, error) {
	keys, err := a.store.SigningKeys().ListAllSigningKeys(ctx)
	if err != nil {
		return nil, err
	}
	return toRecords(keys), nil
}

func (a *KeyStoreAdapter) ListActiveSigningKeys(ctx context.Context) ([]jwtx.SigningKeyRecord, error) {
	keys, err := a.store.SigningKeys().ListActiveSigningKeys(ctx)
	if err != nil {
		return nil, err
	}
	return toRecords(keys), nil
}

func (a *KeyStoreAdapter) CreateSigningKey(ctx context.Context, key jwtx.SigningKeyRecord) error {
	return a.store.SigningKeys().CreateSigningKey(ctx, domain.SigningKey{
		ID:                  key.ID,
		Kid:                 key.Kid,
		Algorithm:           key.Algorithm,
		PrivateKeyEncrypted: key.PrivateKeyEncrypted,
		CreatedAt:           key.CreatedAt,
		RetiredAt:           key.RetiredAt,
		ExpiresAt:           key.ExpiresAt,
	})
}

func toRecords(keys []domain.SigningKey) []jwtx.SigningKeyRecord {
	records := make([]jwtx.SigningKeyRecord, len(keys))
	for i, key := range keys {
		records[i] = jwtx.SigningKeyRecord{
			ID:                  key.ID,
			Kid:                 key.Kid,
			Algorithm:           key.Algorithm,
			PrivateKeyEncrypted: key.PrivateKeyEncrypted,
			CreatedAt:           key.CreatedAt,
			RetiredAt:           key.RetiredAt,
			ExpiresAt:           key.ExpiresAt,
		}
	}
	return records
}
