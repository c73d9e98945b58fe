package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
)

const totpDeviceColumns = `user_id, device_name, secret_sealed, period, skew, verified, created_at`

type totpRepo struct {
	q *queries
}

func scanTOTPDevice(row scanner) (domain.TOTPDevice, error) {
	var (
		d        domain.TOTPDevice
		verified int
		created  int64
	)
	if err := row.Scan(&d.UserID, &d.Name, &d.SecretSealed, &d.Period, &d.Skew, &verified, &created); err != nil {
		return domain.TOTPDevice{}, mapNotFound(err)
	}
	d.Verified = verified != 0
	d.CreatedAt = fromMillis(created)
	return d, nil
}

func (r *totpRepo) CreateDevice(ctx context.Context, d domain.TOTPDevice) error {
	res, err := r.q.exec(ctx, `INSERT INTO totp_devices (`+totpDeviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, device_name) DO NOTHING`,
		d.UserID, d.Name, d.SecretSealed, d.Period, d.Skew, boolToInt(d.Verified), toMillis(d.CreatedAt),
	)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrAlreadyExists)
}

func (r *totpRepo) GetDevice(ctx context.Context, userID, name string) (domain.TOTPDevice, error) {
	return scanTOTPDevice(r.q.queryRow(ctx,
		`SELECT `+totpDeviceColumns+` FROM totp_devices WHERE user_id = ? AND device_name = ?`,
		userID, name))
}

func (r *totpRepo) ListDevices(ctx context.Context, userID string) ([]domain.TOTPDevice, error) {
	rows, err := r.q.query(ctx,
		`SELECT `+totpDeviceColumns+` FROM totp_devices WHERE user_id = ? ORDER BY created_at, device_name`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []domain.TOTPDevice{}
	for rows.Next() {
		d, err := scanTOTPDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *totpRepo) MarkDeviceVerified(ctx context.Context, userID, name string) error {
	res, err := r.q.exec(ctx,
		`UPDATE totp_devices SET verified = 1 WHERE user_id = ? AND device_name = ?`, userID, name)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *totpRepo) RenameDevice(ctx context.Context, userID, oldName, newName string) error {
	if _, err := r.GetDevice(ctx, userID, oldName); err != nil {
		return err
	}
	if _, err := r.GetDevice(ctx, userID, newName); err == nil {
		return store.ErrAlreadyExists
	}
	res, err := r.q.exec(ctx,
		`UPDATE totp_devices SET device_name = ? WHERE user_id = ? AND device_name = ?`,
		newName, userID, oldName)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *totpRepo) DeleteDevice(ctx context.Context, userID, name string) error {
	res, err := r.q.exec(ctx,
		`DELETE FROM totp_devices WHERE user_id = ? AND device_name = ?`, userID, name)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *totpRepo) RecordAttempt(ctx context.Context, a domain.TOTPAttempt) error {
	_, err := r.q.exec(ctx, `INSERT INTO totp_attempts
		(id, tenant_id, user_id, code, is_valid, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.UserID, a.Code, boolToInt(a.Valid), toMillis(a.ExpiresAt), toMillis(a.CreatedAt),
	)
	return err
}

func (r *totpRepo) ListAttempts(ctx context.Context, tenantID, userID string, now time.Time) ([]domain.TOTPAttempt, error) {
	rows, err := r.q.query(ctx, `SELECT id, tenant_id, user_id, code, is_valid, expires_at, created_at
		FROM totp_attempts
		WHERE tenant_id = ? AND user_id = ? AND expires_at > ?
		ORDER BY created_at DESC, id DESC`,
		tenantID, userID, toMillis(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []domain.TOTPAttempt
	for rows.Next() {
		var (
			a                domain.TOTPAttempt
			valid            int
			expires, created int64
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.UserID, &a.Code, &valid, &expires, &created); err != nil {
			return nil, err
		}
		a.Valid = valid != 0
		a.ExpiresAt = fromMillis(expires)
		a.CreatedAt = fromMillis(created)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (r *totpRepo) DeleteExpiredAttempts(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.exec(ctx, `DELETE FROM totp_attempts WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
