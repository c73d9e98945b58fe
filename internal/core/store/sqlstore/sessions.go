package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
)

const sessionColumns = `session_handle, user_id, recipe_user_id, tenant_id, refresh_token_hash2,
	user_data_in_jwt, user_data_in_db, expires_at, created_at, updated_at`

type sessionsRepo struct {
	q *queries
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (domain.Session, error) {
	var (
		s                domain.Session
		jwtData, dbData  string
		expires, created int64
		updated          int64
	)
	err := row.Scan(&s.Handle, &s.UserID, &s.RecipeUserID, &s.TenantID, &s.RefreshTokenHash2,
		&jwtData, &dbData, &expires, &created, &updated)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}

	if s.UserDataInJWT, err = decodeJSON(jwtData); err != nil {
		return domain.Session{}, fmt.Errorf("decode user_data_in_jwt: %w", err)
	}
	if s.UserDataInDatabase, err = decodeJSON(dbData); err != nil {
		return domain.Session{}, fmt.Errorf("decode user_data_in_db: %w", err)
	}
	s.ExpiresAt = fromMillis(expires)
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(updated)
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	jwtData, err := encodeJSON(s.UserDataInJWT)
	if err != nil {
		return err
	}
	dbData, err := encodeJSON(s.UserDataInDatabase)
	if err != nil {
		return err
	}

	res, err := r.q.exec(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_handle) DO NOTHING`,
		s.Handle, s.UserID, s.RecipeUserID, s.TenantID, s.RefreshTokenHash2,
		jwtData, dbData, toMillis(s.ExpiresAt), toMillis(s.CreatedAt), toMillis(s.UpdatedAt),
	)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrAlreadyExists)
}

func (r *sessionsRepo) GetSession(ctx context.Context, handle string) (domain.Session, error) {
	return scanSession(r.q.queryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_handle = ?`, handle))
}

func (r *sessionsRepo) GetSessionForUpdate(ctx context.Context, handle string) (domain.Session, error) {
	return scanSession(r.q.queryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_handle = ?`+r.q.dialect.forUpdate(), handle))
}

func (r *sessionsRepo) UpdateRefreshTokenHash2(ctx context.Context, handle, hash2 string, expiresAt time.Time) error {
	res, err := r.q.exec(ctx,
		`UPDATE sessions SET refresh_token_hash2 = ?, expires_at = ?, updated_at = ? WHERE session_handle = ?`,
		hash2, toMillis(expiresAt), toMillis(time.Now()), handle,
	)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *sessionsRepo) UpdateUserDataInJWT(ctx context.Context, handle string, data map[string]any) error {
	return r.updateData(ctx, "user_data_in_jwt", handle, data)
}

func (r *sessionsRepo) UpdateUserDataInDatabase(ctx context.Context, handle string, data map[string]any) error {
	return r.updateData(ctx, "user_data_in_db", handle, data)
}

// updateData writes one of the two JSON columns. column is never user input.
func (r *sessionsRepo) updateData(ctx context.Context, column, handle string, data map[string]any) error {
	encoded, err := encodeJSON(data)
	if err != nil {
		return err
	}
	res, err := r.q.exec(ctx,
		`UPDATE sessions SET `+column+` = ?, updated_at = ? WHERE session_handle = ?`,
		encoded, toMillis(time.Now()), handle,
	)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *sessionsRepo) ListSessionHandlesForUser(ctx context.Context, tenantID, userID string, now time.Time) ([]string, error) {
	if tenantID == "" {
		return r.q.strings(ctx,
			`SELECT session_handle FROM sessions
			WHERE (user_id = ? OR recipe_user_id = ?) AND expires_at > ?
			ORDER BY created_at, session_handle`,
			userID, userID, toMillis(now))
	}
	return r.q.strings(ctx,
		`SELECT session_handle FROM sessions
		WHERE tenant_id = ? AND (user_id = ? OR recipe_user_id = ?) AND expires_at > ?
		ORDER BY created_at, session_handle`,
		tenantID, userID, userID, toMillis(now))
}

func (r *sessionsRepo) DeleteSessions(ctx context.Context, handles []string) ([]string, error) {
	if len(handles) == 0 {
		return []string{}, nil
	}

	args := stringArgs(nil, handles)
	existing, err := r.q.strings(ctx,
		`SELECT session_handle FROM sessions WHERE session_handle IN (`+placeholders(len(handles))+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return existing, nil
	}

	_, err = r.q.exec(ctx,
		`DELETE FROM sessions WHERE session_handle IN (`+placeholders(len(existing))+`)`,
		stringArgs(nil, existing)...)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
