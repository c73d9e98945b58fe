package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
)

type emailVerificationRepo struct {
	q *queries
}

func (r *emailVerificationRepo) CreateToken(ctx context.Context, t domain.EmailVerificationToken) error {
	_, err := r.q.exec(ctx, `INSERT INTO email_verification_tokens
		(token_hash, tenant_id, user_id, email, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.TokenHash, t.TenantID, t.UserID, t.Email, toMillis(t.ExpiresAt), toMillis(t.CreatedAt),
	)
	return err
}

func (r *emailVerificationRepo) GetToken(ctx context.Context, tenantID, tokenHash string, now time.Time) (domain.EmailVerificationToken, error) {
	var (
		t                domain.EmailVerificationToken
		expires, created int64
	)
	err := r.q.queryRow(ctx, `SELECT token_hash, tenant_id, user_id, email, expires_at, created_at
		FROM email_verification_tokens
		WHERE tenant_id = ? AND token_hash = ? AND expires_at > ?`,
		tenantID, tokenHash, toMillis(now),
	).Scan(&t.TokenHash, &t.TenantID, &t.UserID, &t.Email, &expires, &created)
	if err != nil {
		return domain.EmailVerificationToken{}, mapNotFound(err)
	}
	t.ExpiresAt = fromMillis(expires)
	t.CreatedAt = fromMillis(created)
	return t, nil
}

func (r *emailVerificationRepo) DeleteTokensForUser(ctx context.Context, tenantID, userID, email string) error {
	_, err := r.q.exec(ctx,
		`DELETE FROM email_verification_tokens WHERE tenant_id = ? AND user_id = ? AND email = ?`,
		tenantID, userID, email)
	return err
}

func (r *emailVerificationRepo) MarkVerified(ctx context.Context, userID, email string, at time.Time) error {
	_, err := r.q.exec(ctx, `INSERT INTO verified_emails (user_id, email, verified_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, email) DO NOTHING`,
		userID, email, toMillis(at))
	return err
}

func (r *emailVerificationRepo) IsVerified(ctx context.Context, userID, email string) (bool, error) {
	var n int
	err := r.q.queryRow(ctx,
		`SELECT COUNT(*) FROM verified_emails WHERE user_id = ? AND email = ?`,
		userID, email).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *emailVerificationRepo) Unverify(ctx context.Context, userID, email string) error {
	_, err := r.q.exec(ctx, `DELETE FROM verified_emails WHERE user_id = ? AND email = ?`, userID, email)
	return err
}

func (r *emailVerificationRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.exec(ctx, `DELETE FROM email_verification_tokens WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
