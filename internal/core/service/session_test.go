package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/store/drivers/sqlite"
	"github.com/aussiebroadwan/tabsession/internal/core/store/sqlstore"
	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	db, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "core.db")))
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testClock is a settable time source shared by a service and its test.
type testClock struct{ now time.Time }

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newSessionService(t *testing.T) (*SessionService, *testClock) {
	t.Helper()

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA, NumKeys: 1})
	require.NoError(t, err)

	clock := newTestClock()
	return &SessionService{
		Store:      newTestStore(t),
		KeyManager: km,
		Sealer:     cryptox.NewRandomSealer(),
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		Now:        clock.Now,
	}, clock
}

func TestSessionService_CreateAndVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock := newSessionService(t)

	issued, err := svc.CreateSession(ctx, CreateSessionRequest{
		TenantID:           "public",
		UserID:             "user-1",
		UserDataInJWT:      map[string]any{"role": "admin"},
		UserDataInDatabase: map[string]any{"theme": "dark"},
	})
	require.NoError(t, err)
	require.Equal(t, "user-1", issued.Session.RecipeUserID)
	require.Equal(t, clock.Now().Add(24*time.Hour), issued.RefreshToken.Expiry)
	require.Empty(t, issued.AntiCsrfToken)

	payload, err := jwtx.ParseAndVerify(ctx, issued.AccessToken.Token, svc.KeyManager)
	require.NoError(t, err)
	require.Equal(t, issued.Session.Handle, payload.SessionHandle)
	require.Equal(t, "admin", payload.UserPayload["role"])
	require.Empty(t, payload.ParentRefreshTokenHash1)

	t.Run("local verify returns the payload session", func(t *testing.T) {
		got, err := svc.VerifySession(ctx, VerifySessionRequest{AccessToken: issued.AccessToken.Token})
		require.NoError(t, err)
		require.Nil(t, got.AccessToken)
		require.Equal(t, "user-1", got.Session.UserID)
		require.Nil(t, got.Session.UserDataInDatabase)
	})

	t.Run("database verify loads the stored session", func(t *testing.T) {
		got, err := svc.VerifySession(ctx, VerifySessionRequest{AccessToken: issued.AccessToken.Token, CheckDatabase: true})
		require.NoError(t, err)
		require.Equal(t, "dark", got.Session.UserDataInDatabase["theme"])
	})

	t.Run("missing user is a bad request", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, CreateSessionRequest{})
		require.ErrorIs(t, err, ErrBadRequest)
	})
}

func TestSessionService_VerifyExpiredAccessToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock := newSessionService(t)

	issued, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "user-1"})
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)
	_, err = svc.VerifySession(ctx, VerifySessionRequest{AccessToken: issued.AccessToken.Token})
	require.ErrorIs(t, err, ErrTryRefreshToken)

	_, err = svc.VerifySession(ctx, VerifySessionRequest{AccessToken: "not-a-jwt"})
	require.ErrorIs(t, err, ErrTryRefreshToken)
}

func TestSessionService_RefreshRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("child commits on first use and the parent becomes theft", func(t *testing.T) {
		svc, _ := newSessionService(t)
		issued, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "user-1"})
		require.NoError(t, err)
		first := issued.RefreshToken.Token

		child, err := svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: first})
		require.NoError(t, err)
		require.NotEqual(t, first, child.RefreshToken.Token)

		// The parent is still committed until the child is used.
		again, err := svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: first})
		require.NoError(t, err)
		require.NotEqual(t, child.RefreshToken.Token, again.RefreshToken.Token)

		grandchild, err := svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: child.RefreshToken.Token})
		require.NoError(t, err)

		stored, err := svc.GetSession(ctx, issued.Session.Handle)
		require.NoError(t, err)
		require.Equal(t, cryptox.RefreshTokenHash2(child.RefreshToken.Token), stored.RefreshTokenHash2)

		_, err = svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: first})
		var theft *TheftError
		require.ErrorAs(t, err, &theft)
		require.Equal(t, issued.Session.Handle, theft.Session.Handle)
		require.Equal(t, "user-1", theft.Session.UserID)

		// The sibling minted from the stale parent is stale too.
		_, err = svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: again.RefreshToken.Token})
		require.ErrorAs(t, err, &theft)

		_, err = svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: grandchild.RefreshToken.Token})
		require.NoError(t, err)
	})

	t.Run("verifying a child access token commits the child", func(t *testing.T) {
		svc, _ := newSessionService(t)
		issued, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "user-1"})
		require.NoError(t, err)

		child, err := svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: issued.RefreshToken.Token})
		require.NoError(t, err)

		payload, err := jwtx.ParseAndVerify(ctx, child.AccessToken.Token, svc.KeyManager)
		require.NoError(t, err)
		require.Equal(t, cryptox.RefreshTokenHash1(issued.RefreshToken.Token), payload.ParentRefreshTokenHash1)

		verified, err := svc.VerifySession(ctx, VerifySessionRequest{AccessToken: child.AccessToken.Token})
		require.NoError(t, err)
		require.NotNil(t, verified.AccessToken)

		replaced, err := jwtx.ParseAndVerify(ctx, verified.AccessToken.Token, svc.KeyManager)
		require.NoError(t, err)
		require.Empty(t, replaced.ParentRefreshTokenHash1)
		require.Equal(t, payload.ExpiryTime, replaced.ExpiryTime)

		// Verifying the same child token again is fine.
		_, err = svc.VerifySession(ctx, VerifySessionRequest{AccessToken: child.AccessToken.Token})
		require.NoError(t, err)

		_, err = svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: issued.RefreshToken.Token})
		var theft *TheftError
		require.ErrorAs(t, err, &theft)
	})

	t.Run("refresh slides the session expiry", func(t *testing.T) {
		svc, clock := newSessionService(t)
		issued, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "user-1"})
		require.NoError(t, err)

		clock.Advance(20 * time.Hour)
		child, err := svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: issued.RefreshToken.Token})
		require.NoError(t, err)
		require.Equal(t, clock.Now().Add(24*time.Hour), child.Session.ExpiresAt)

		clock.Advance(20 * time.Hour)
		_, err = svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: child.RefreshToken.Token})
		require.NoError(t, err)
	})

	t.Run("expired session cannot refresh", func(t *testing.T) {
		svc, clock := newSessionService(t)
		issued, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "user-1"})
		require.NoError(t, err)

		clock.Advance(24 * time.Hour)
		_, err = svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: issued.RefreshToken.Token})
		require.ErrorIs(t, err, ErrUnauthorised)
	})

	t.Run("garbage and revoked tokens are unauthorised", func(t *testing.T) {
		svc, _ := newSessionService(t)
		issued, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "user-1"})
		require.NoError(t, err)

		_, err = svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: "garbage"})
		require.ErrorIs(t, err, ErrUnauthorised)

		revoked, err := svc.RevokeSessions(ctx, []string{issued.Session.Handle, "missing"})
		require.NoError(t, err)
		require.Equal(t, []string{issued.Session.Handle}, revoked)

		_, err = svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: issued.RefreshToken.Token})
		require.ErrorIs(t, err, ErrUnauthorised)
	})
}

func TestSessionService_AntiCsrf(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newSessionService(t)

	issued, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "user-1", EnableAntiCsrf: true})
	require.NoError(t, err)
	require.NotEmpty(t, issued.AntiCsrfToken)

	_, err = svc.RefreshSession(ctx, RefreshSessionRequest{
		RefreshToken:   issued.RefreshToken.Token,
		AntiCsrfToken:  "wrong",
		EnableAntiCsrf: true,
	})
	require.ErrorIs(t, err, ErrUnauthorised)

	child, err := svc.RefreshSession(ctx, RefreshSessionRequest{
		RefreshToken:   issued.RefreshToken.Token,
		AntiCsrfToken:  issued.AntiCsrfToken,
		EnableAntiCsrf: true,
	})
	require.NoError(t, err)
	require.Equal(t, issued.AntiCsrfToken, child.AntiCsrfToken)

	// Header based clients skip the check.
	_, err = svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: child.RefreshToken.Token})
	require.NoError(t, err)
}

func TestSessionService_RegenerateAccessToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock := newSessionService(t)

	issued, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "user-1", UserDataInJWT: map[string]any{"a": 1}})
	require.NoError(t, err)

	regen, err := svc.RegenerateAccessToken(ctx, issued.AccessToken.Token, map[string]any{"b": "two"})
	require.NoError(t, err)
	require.NotNil(t, regen.AccessToken)

	payload, err := jwtx.ParseAndVerify(ctx, regen.AccessToken.Token, svc.KeyManager)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"b": "two"}, payload.UserPayload)
	require.Equal(t, issued.AccessToken.Expiry.UnixMilli(), payload.ExpiryTime)

	// New tokens from a refresh carry the replaced payload.
	child, err := svc.RefreshSession(ctx, RefreshSessionRequest{RefreshToken: issued.RefreshToken.Token})
	require.NoError(t, err)
	payload, err = jwtx.ParseAndVerify(ctx, child.AccessToken.Token, svc.KeyManager)
	require.NoError(t, err)
	require.Equal(t, "two", payload.UserPayload["b"])

	clock.Advance(2 * time.Hour)
	regen, err = svc.RegenerateAccessToken(ctx, issued.AccessToken.Token, nil)
	require.NoError(t, err)
	require.Nil(t, regen.AccessToken)
	require.Empty(t, regen.Session.UserDataInJWT)
}

func TestSessionService_UserSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock := newSessionService(t)

	var handles []string
	for _, tenant := range []string{"public", "public", "acme"} {
		issued, err := svc.CreateSession(ctx, CreateSessionRequest{TenantID: tenant, UserID: "user-1"})
		require.NoError(t, err)
		handles = append(handles, issued.Session.Handle)
		clock.Advance(time.Millisecond)
	}
	_, err := svc.CreateSession(ctx, CreateSessionRequest{TenantID: "public", UserID: "user-2"})
	require.NoError(t, err)

	got, err := svc.SessionHandlesForUser(ctx, "public", "user-1", false)
	require.NoError(t, err)
	require.Equal(t, handles[:2], got)

	got, err = svc.SessionHandlesForUser(ctx, "public", "user-1", true)
	require.NoError(t, err)
	require.Equal(t, handles, got)

	require.NoError(t, svc.UpdateUserDataInDatabase(ctx, handles[0], map[string]any{"k": "v"}))
	sess, err := svc.GetSession(ctx, handles[0])
	require.NoError(t, err)
	require.Equal(t, "v", sess.UserDataInDatabase["k"])

	revoked, err := svc.RevokeAllForUser(ctx, "acme", "user-1", false)
	require.NoError(t, err)
	require.Equal(t, handles[2:], revoked)

	revoked, err = svc.RevokeAllForUser(ctx, "", "user-1", true)
	require.NoError(t, err)
	require.ElementsMatch(t, handles[:2], revoked)

	_, err = svc.GetSession(ctx, handles[0])
	require.ErrorIs(t, err, ErrUnauthorised)
	require.ErrorIs(t, svc.UpdateUserDataInJWT(ctx, handles[0], nil), ErrUnauthorised)
}

func TestSessionService_Handles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newSessionService(t)

	var handles []string
	for range 3 {
		issued, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "user-1"})
		require.NoError(t, err)
		handles = append(handles, issued.Session.Handle)
	}

	for _, bad := range []string{"", "not-a-handle", handles[0] + "x"} {
		_, err := svc.GetSession(ctx, bad)
		require.ErrorIs(t, err, ErrUnauthorised, "handle %q", bad)
	}

	revoked, err := svc.RevokeSessions(ctx, []string{"garbage"})
	require.NoError(t, err)
	require.Empty(t, revoked)

	// Revoked handles come back oldest first whatever the request order.
	revoked, err = svc.RevokeSessions(ctx, []string{handles[2], "garbage", handles[0], handles[1]})
	require.NoError(t, err)
	require.Equal(t, handles, revoked)
}

func TestHousekeepingService_Cleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock := newSessionService(t)

	// Sessions created in the past have already expired by wall clock.
	clock.now = time.Now().Add(-48 * time.Hour)
	_, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "old"})
	require.NoError(t, err)

	clock.now = time.Now()
	live, err := svc.CreateSession(ctx, CreateSessionRequest{UserID: "new"})
	require.NoError(t, err)

	hk := NewHousekeepingService(svc.Store, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	require.Equal(t, time.Hour, hk.Interval)
	require.EqualValues(t, 1, hk.Cleanup(ctx))

	_, err = svc.GetSession(ctx, live.Session.Handle)
	require.NoError(t, err)
}
