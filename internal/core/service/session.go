package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/idx"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 100 * 24 * time.Hour
)

var (
	// ErrUnauthorised means the session is gone or the token can never be
	// valid again. Clients must log in.
	ErrUnauthorised = errors.New("unauthorised")

	// ErrTryRefreshToken means the access token is expired or unverifiable
	// and the client should refresh.
	ErrTryRefreshToken = errors.New("try refresh token")
)

// TheftError reports a refresh token from a superseded generation. The
// session is left in place; the SDK decides whether to revoke it.
type TheftError struct {
	Session domain.Session
}

func (e *TheftError) Error() string {
	return fmt.Sprintf("refresh token reuse detected for session %s", e.Session.Handle)
}

// Token is an issued access or refresh token.
type Token struct {
	Token     string
	Expiry    time.Time
	CreatedAt time.Time
}

// Issued is the outcome of a session operation. AccessToken and
// RefreshToken are nil when nothing new was minted.
type Issued struct {
	Session       domain.Session
	AccessToken   *Token
	RefreshToken  *Token
	AntiCsrfToken string
}

// SessionService implements session creation, verification and refresh
// token rotation.
//
// The store holds hash2 of the committed refresh token. A refresh mints a
// child token whose parent is that hash2 without touching the store, so a
// client that never receives the response can retry with the old token. The
// child is committed on first use, either by refreshing with it or by
// presenting an access token that names the committed generation as parent.
// Anything older is reuse of a superseded token.
type SessionService struct {
	Store      store.Store
	KeyManager *jwtx.KeyManager
	Sealer     *cryptox.Sealer
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SessionService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return DefaultAccessTokenTTL
}

func (s *SessionService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return DefaultRefreshTokenTTL
}

type CreateSessionRequest struct {
	TenantID           string
	UserID             string
	RecipeUserID       string
	UserDataInJWT      map[string]any
	UserDataInDatabase map[string]any
	EnableAntiCsrf     bool
}

// CreateSession starts a new session and issues its first token pair.
func (s *SessionService) CreateSession(ctx context.Context, req CreateSessionRequest) (*Issued, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrBadRequest)
	}
	if req.RecipeUserID == "" {
		req.RecipeUserID = req.UserID
	}

	// 1. Mint the handle and the optional anti-csrf token
	handle := idx.NewSessionHandle()
	var antiCsrf string
	if req.EnableAntiCsrf {
		antiCsrf = uuid.NewString()
	}

	// 2. The first refresh token generation has no parent
	refresh, err := sealRefreshToken(s.Sealer, refreshTokenClaims{
		SessionHandle: handle,
		UserID:        req.UserID,
		AntiCsrfToken: antiCsrf,
	})
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	sess := domain.Session{
		Handle:             handle,
		UserID:             req.UserID,
		RecipeUserID:       req.RecipeUserID,
		TenantID:           req.TenantID,
		RefreshTokenHash2:  cryptox.RefreshTokenHash2(refresh),
		UserDataInJWT:      nonNil(req.UserDataInJWT),
		UserDataInDatabase: nonNil(req.UserDataInDatabase),
		ExpiresAt:          now.Add(s.refreshTTL()),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// 3. Persist
	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	// 4. Sign the access token
	access, err := s.issueAccessToken(sess, cryptox.RefreshTokenHash1(refresh), "", antiCsrf, now, now.Add(s.accessTTL()))
	if err != nil {
		return nil, err
	}

	l.Debug("session created", slog.String("session_handle", handle), slog.String("user_id", req.UserID))

	return &Issued{
		Session:       sess,
		AccessToken:   access,
		RefreshToken:  &Token{Token: refresh, Expiry: sess.ExpiresAt, CreatedAt: now},
		AntiCsrfToken: antiCsrf,
	}, nil
}

type VerifySessionRequest struct {
	AccessToken   string
	CheckDatabase bool
}

// VerifySession checks an access token. A token minted by a refresh that is
// not yet committed commits it and is replaced by one without a parent.
func (s *SessionService) VerifySession(ctx context.Context, req VerifySessionRequest) (*Issued, error) {
	now := s.now()

	payload, err := jwtx.ParseAndVerify(ctx, req.AccessToken, s.KeyManager)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTryRefreshToken, err)
	}
	if err := payload.CheckExpiry(now); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTryRefreshToken, err)
	}

	if payload.ParentRefreshTokenHash1 == "" && !req.CheckDatabase {
		return &Issued{Session: sessionFromPayload(payload)}, nil
	}

	var out *Issued
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		sess, err := tx.Sessions().GetSessionForUpdate(ctx, payload.SessionHandle)
		if err != nil {
			return sessionLookupError(err)
		}
		if sess.IsExpired(now) {
			return fmt.Errorf("%w: session expired", ErrUnauthorised)
		}

		if payload.ParentRefreshTokenHash1 == "" {
			out = &Issued{Session: sess}
			return nil
		}

		current := cryptox.Hash1ToHash2(payload.RefreshTokenHash1)
		switch sess.RefreshTokenHash2 {
		case cryptox.Hash1ToHash2(payload.ParentRefreshTokenHash1):
			if err := tx.Sessions().UpdateRefreshTokenHash2(ctx, sess.Handle, current, sess.ExpiresAt); err != nil {
				return err
			}
			sess.RefreshTokenHash2 = current
		case current:
			// Already committed by an earlier request.
		default:
			return fmt.Errorf("%w: refresh token generation superseded", ErrUnauthorised)
		}

		access, err := s.issueAccessToken(sess, payload.RefreshTokenHash1, "", payload.AntiCsrfToken,
			now, time.UnixMilli(payload.ExpiryTime))
		if err != nil {
			return err
		}
		out = &Issued{Session: sess, AccessToken: access}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type RefreshSessionRequest struct {
	RefreshToken   string
	AntiCsrfToken  string
	EnableAntiCsrf bool
}

// RefreshSession rotates a refresh token. It returns a *TheftError when the
// token belongs to a superseded generation.
func (s *SessionService) RefreshSession(ctx context.Context, req RefreshSessionRequest) (*Issued, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	// 1. Unseal
	rt, err := openRefreshToken(s.Sealer, req.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorised, err)
	}

	// 2. Anti-CSRF applies only to tokens issued with one
	if req.EnableAntiCsrf && rt.AntiCsrfToken != "" && rt.AntiCsrfToken != req.AntiCsrfToken {
		return nil, fmt.Errorf("%w: anti-csrf check failed", ErrUnauthorised)
	}

	var out *Issued
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// 3. Load the session under lock
		sess, err := tx.Sessions().GetSessionForUpdate(ctx, rt.SessionHandle)
		if err != nil {
			return sessionLookupError(err)
		}
		if sess.UserID != rt.UserID {
			return fmt.Errorf("%w: refresh token does not match session", ErrUnauthorised)
		}
		if sess.IsExpired(now) {
			return fmt.Errorf("%w: session expired", ErrUnauthorised)
		}

		// 4. Classify the presented generation
		hash2 := cryptox.RefreshTokenHash2(req.RefreshToken)
		switch {
		case sess.RefreshTokenHash2 == hash2:
		case rt.ParentRefreshTokenHash2 != "" && rt.ParentRefreshTokenHash2 == sess.RefreshTokenHash2:
			// First use of a child generation commits it.
		default:
			return &TheftError{Session: sess}
		}

		// 5. Commit and slide the expiry
		expires := now.Add(s.refreshTTL())
		if err := tx.Sessions().UpdateRefreshTokenHash2(ctx, sess.Handle, hash2, expires); err != nil {
			return err
		}
		sess.RefreshTokenHash2 = hash2
		sess.ExpiresAt = expires
		sess.UpdatedAt = now

		// 6. Mint the child generation
		child, err := sealRefreshToken(s.Sealer, refreshTokenClaims{
			SessionHandle:           sess.Handle,
			UserID:                  sess.UserID,
			ParentRefreshTokenHash2: hash2,
			AntiCsrfToken:           rt.AntiCsrfToken,
		})
		if err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}

		access, err := s.issueAccessToken(sess,
			cryptox.RefreshTokenHash1(child), cryptox.RefreshTokenHash1(req.RefreshToken),
			rt.AntiCsrfToken, now, now.Add(s.accessTTL()))
		if err != nil {
			return err
		}

		out = &Issued{
			Session:       sess,
			AccessToken:   access,
			RefreshToken:  &Token{Token: child, Expiry: expires, CreatedAt: now},
			AntiCsrfToken: rt.AntiCsrfToken,
		}
		return nil
	})

	var theft *TheftError
	if errors.As(err, &theft) {
		l.Warn("refresh token reuse detected",
			slog.String("session_handle", theft.Session.Handle),
			slog.String("user_id", theft.Session.UserID),
		)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RegenerateAccessToken replaces the session's user payload and reissues the
// presented access token with it. The new token keeps the old expiry and
// refresh hashes. An expired token yields no new access token.
func (s *SessionService) RegenerateAccessToken(ctx context.Context, accessToken string, userDataInJWT map[string]any) (*Issued, error) {
	now := s.now()

	payload, err := jwtx.ParseAndVerify(ctx, accessToken, s.KeyManager)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorised, err)
	}

	var out *Issued
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		sess, err := tx.Sessions().GetSessionForUpdate(ctx, payload.SessionHandle)
		if err != nil {
			return sessionLookupError(err)
		}
		if sess.IsExpired(now) {
			return fmt.Errorf("%w: session expired", ErrUnauthorised)
		}

		sess.UserDataInJWT = nonNil(userDataInJWT)
		if err := tx.Sessions().UpdateUserDataInJWT(ctx, sess.Handle, sess.UserDataInJWT); err != nil {
			return err
		}

		out = &Issued{Session: sess}
		if payload.CheckExpiry(now) != nil {
			return nil
		}
		access, err := s.issueAccessToken(sess, payload.RefreshTokenHash1, payload.ParentRefreshTokenHash1,
			payload.AntiCsrfToken, now, time.UnixMilli(payload.ExpiryTime))
		if err != nil {
			return err
		}
		out.AccessToken = access
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession returns a live session by handle.
func (s *SessionService) GetSession(ctx context.Context, handle string) (domain.Session, error) {
	if _, err := idx.Parse(handle); err != nil {
		return domain.Session{}, fmt.Errorf("%w: malformed session handle", ErrUnauthorised)
	}
	sess, err := s.Store.Sessions().GetSession(ctx, handle)
	if err != nil {
		return domain.Session{}, sessionLookupError(err)
	}
	if sess.IsExpired(s.now()) {
		return domain.Session{}, fmt.Errorf("%w: session expired", ErrUnauthorised)
	}
	return sess, nil
}

// UpdateUserDataInDatabase replaces the server-side session data.
func (s *SessionService) UpdateUserDataInDatabase(ctx context.Context, handle string, data map[string]any) error {
	if _, err := s.GetSession(ctx, handle); err != nil {
		return err
	}
	return sessionLookupError(s.Store.Sessions().UpdateUserDataInDatabase(ctx, handle, nonNil(data)))
}

// UpdateUserDataInJWT replaces the payload used for access tokens minted
// from now on. Tokens already issued are unchanged.
func (s *SessionService) UpdateUserDataInJWT(ctx context.Context, handle string, data map[string]any) error {
	if _, err := s.GetSession(ctx, handle); err != nil {
		return err
	}
	return sessionLookupError(s.Store.Sessions().UpdateUserDataInJWT(ctx, handle, nonNil(data)))
}

// RevokeSessions deletes the given sessions and returns those that existed,
// oldest first. Malformed handles cannot exist and are skipped.
func (s *SessionService) RevokeSessions(ctx context.Context, handles []string) ([]string, error) {
	valid := make([]string, 0, len(handles))
	for _, h := range handles {
		if id, err := idx.Parse(h); err == nil {
			valid = append(valid, id.String())
		}
	}
	if len(valid) == 0 {
		return []string{}, nil
	}

	revoked, err := s.Store.Sessions().DeleteSessions(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions: %w", err)
	}
	slices.SortFunc(revoked, func(a, b string) int { return idx.Compare(idx.ID(a), idx.ID(b)) })
	if len(revoked) > 0 {
		slogx.FromContext(ctx).Info("sessions revoked", slog.Int("count", len(revoked)))
	}
	return revoked, nil
}

// SessionHandlesForUser lists live sessions of a user in tenantID, or in
// every tenant when acrossTenants is set.
func (s *SessionService) SessionHandlesForUser(ctx context.Context, tenantID, userID string, acrossTenants bool) ([]string, error) {
	if acrossTenants {
		tenantID = ""
	}
	return s.Store.Sessions().ListSessionHandlesForUser(ctx, tenantID, userID, s.now())
}

// RevokeAllForUser deletes every live session of a user.
func (s *SessionService) RevokeAllForUser(ctx context.Context, tenantID, userID string, acrossTenants bool) ([]string, error) {
	handles, err := s.SessionHandlesForUser(ctx, tenantID, userID, acrossTenants)
	if err != nil {
		return nil, err
	}
	return s.RevokeSessions(ctx, handles)
}

func (s *SessionService) issueAccessToken(
	sess domain.Session,
	hash1, parentHash1, antiCsrf string,
	now, expiry time.Time,
) (*Token, error) {
	payload := &jwtx.AccessTokenPayload{
		SessionHandle:           sess.Handle,
		UserID:                  sess.UserID,
		RecipeUserID:            sess.RecipeUserID,
		TenantID:                sess.TenantID,
		RefreshTokenHash1:       hash1,
		ParentRefreshTokenHash1: parentHash1,
		AntiCsrfToken:           antiCsrf,
		ExpiryTime:              expiry.UnixMilli(),
		TimeCreated:             now.UnixMilli(),
		UserPayload:             nonNil(sess.UserDataInJWT),
	}
	token, err := s.KeyManager.SignAccessToken(payload)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &Token{Token: token, Expiry: expiry, CreatedAt: now}, nil
}

func sessionFromPayload(p *jwtx.AccessTokenPayload) domain.Session {
	return domain.Session{
		Handle:        p.SessionHandle,
		UserID:        p.UserID,
		RecipeUserID:  p.RecipeUserID,
		TenantID:      p.TenantID,
		UserDataInJWT: nonNil(p.UserPayload),
	}
}

func sessionLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: session not found", ErrUnauthorised)
	}
	return err
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
