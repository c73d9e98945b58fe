package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

const DefaultEmailVerificationTTL = 24 * time.Hour

var (
	ErrEmailAlreadyVerified = errors.New("email already verified")
	ErrInvalidEmailToken    = errors.New("invalid email verification token")
)

// EmailVerificationService issues and redeems email verification tokens.
// Tokens are stored as fingerprints so a database leak cannot verify emails.
type EmailVerificationService struct {
	Store    store.Store
	TokenTTL time.Duration
	Now      func() time.Time
}

func (s *EmailVerificationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateToken mints a token for (userID, email) in tenantID.
func (s *EmailVerificationService) CreateToken(ctx context.Context, tenantID, userID, email string) (string, error) {
	email = normaliseEmail(email)
	if userID == "" || email == "" {
		return "", fmt.Errorf("%w: userId and email are required", ErrBadRequest)
	}

	verified, err := s.Store.EmailVerification().IsVerified(ctx, userID, email)
	if err != nil {
		return "", err
	}
	if verified {
		return "", ErrEmailAlreadyVerified
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = DefaultEmailVerificationTTL
	}
	now := s.now()
	err = s.Store.EmailVerification().CreateToken(ctx, domain.EmailVerificationToken{
		TokenHash: cryptox.FingerprintToken(token),
		TenantID:  tenantID,
		UserID:    userID,
		Email:     email,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("store verification token: %w", err)
	}
	return token, nil
}

// VerifyToken redeems a token, marks the email verified and drops every
// other pending token of the pair.
func (s *EmailVerificationService) VerifyToken(ctx context.Context, tenantID, token string) (userID, email string, err error) {
	now := s.now()
	hash := cryptox.FingerprintToken(token)

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		t, err := tx.EmailVerification().GetToken(ctx, tenantID, hash, now)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidEmailToken
			}
			return err
		}
		if err := tx.EmailVerification().MarkVerified(ctx, t.UserID, t.Email, now); err != nil {
			return err
		}
		if err := tx.EmailVerification().DeleteTokensForUser(ctx, tenantID, t.UserID, t.Email); err != nil {
			return err
		}
		userID, email = t.UserID, t.Email
		return nil
	})
	if err != nil {
		return "", "", err
	}

	slogx.FromContext(ctx).Info("email verified", slog.String("user_id", userID))
	return userID, email, nil
}

func (s *EmailVerificationService) IsVerified(ctx context.Context, userID, email string) (bool, error) {
	return s.Store.EmailVerification().IsVerified(ctx, userID, normaliseEmail(email))
}

func (s *EmailVerificationService) Unverify(ctx context.Context, userID, email string) error {
	return s.Store.EmailVerification().Unverify(ctx, userID, normaliseEmail(email))
}

// RevokeTokens drops pending tokens of (userID, email) in tenantID.
func (s *EmailVerificationService) RevokeTokens(ctx context.Context, tenantID, userID, email string) error {
	return s.Store.EmailVerification().DeleteTokensForUser(ctx, tenantID, userID, normaliseEmail(email))
}
