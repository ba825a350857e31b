package sqlite

import (
	"context"
	"database/sql"

	"github.com/quokkaworks/identity/internal/identity/domain"
)

type signingKeysRepo struct {
	db *sql.DB
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signing_keys (id, kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)`,
		key.ID, key.Kid, key.Algorithm, key.PrivateKeyEncrypted, key.CreatedAt, key.ExpiresAt,
	)
	return mapConflict(err)
}

func (r *signingKeysRepo) GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at
		FROM signing_keys WHERE kid = ?`, kid,
	)
	return scanSigningKey(row)
}

func (r *signingKeysRepo) ListActiveSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx, `
		SELECT id, kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at
		FROM signing_keys
		WHERE retired_at IS NULL AND expires_at > CURRENT_TIMESTAMP
		ORDER BY created_at DESC`)
}

func (r *signingKeysRepo) ListAllSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx, `
		SELECT id, kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at
		FROM signing_keys
		WHERE expires_at > CURRENT_TIMESTAMP
		ORDER BY created_at DESC`)
}

func (r *signingKeysRepo) RetireSigningKey(ctx context.Context, kid string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE signing_keys SET retired_at = CURRENT_TIMESTAMP
		WHERE kid = ? AND retired_at IS NULL`, kid,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM signing_keys WHERE expires_at <= CURRENT_TIMESTAMP`)
	return err
}

func (r *signingKeysRepo) list(ctx context.Context, query string) ([]domain.SigningKey, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.SigningKey
	for rows.Next() {
		key, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func scanSigningKey(row rowScanner) (domain.SigningKey, error) {
	var (
		key       domain.SigningKey
		retiredAt sql.NullTime
	)
	if err := row.Scan(&key.ID, &key.Kid, &key.Algorithm, &key.PrivateKeyEncrypted,
		&key.CreatedAt, &retiredAt, &key.ExpiresAt); err != nil {
		return domain.SigningKey{}, mapNotFound(err)
	}
	key.RetiredAt = mapNullTimePtr(retiredAt)
	return key, nil
}
