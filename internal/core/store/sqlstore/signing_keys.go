package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
)

const signingKeyColumns = `id, kid, algorithm, private_key_sealed, created_at, retired_at, expires_at`

type signingKeysRepo struct {
	q *queries
}

func scanSigningKey(row scanner) (domain.SigningKey, error) {
	var (
		k                domain.SigningKey
		created, expires int64
		retired          sql.NullInt64
	)
	if err := row.Scan(&k.ID, &k.Kid, &k.Algorithm, &k.PrivateKeySealed, &created, &retired, &expires); err != nil {
		return domain.SigningKey{}, mapNotFound(err)
	}
	k.CreatedAt = fromMillis(created)
	k.RetiredAt = mapNullMillisPtr(retired)
	k.ExpiresAt = fromMillis(expires)
	return k, nil
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	res, err := r.q.exec(ctx, `INSERT INTO signing_keys (`+signingKeyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kid) DO NOTHING`,
		key.ID, key.Kid, key.Algorithm, key.PrivateKeySealed,
		toMillis(key.CreatedAt), mapOptionalMillis(key.RetiredAt), toMillis(key.ExpiresAt),
	)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrAlreadyExists)
}

func (r *signingKeysRepo) GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error) {
	return scanSigningKey(r.q.queryRow(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys WHERE kid = ?`, kid))
}

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error) {
	rows, err := r.q.query(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys WHERE expires_at > ? ORDER BY created_at DESC`,
		toMillis(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.SigningKey
	for rows.Next() {
		k, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *signingKeysRepo) RetireSigningKey(ctx context.Context, kid string, at time.Time) error {
	res, err := r.q.exec(ctx,
		`UPDATE signing_keys SET retired_at = ? WHERE kid = ? AND retired_at IS NULL`,
		toMillis(at), kid)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.exec(ctx, `DELETE FROM signing_keys WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
