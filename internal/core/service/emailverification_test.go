package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmailVerificationService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newService := func(t *testing.T) (*EmailVerificationService, *testClock) {
		clock := newTestClock()
		return &EmailVerificationService{Store: newTestStore(t), TokenTTL: time.Hour, Now: clock.Now}, clock
	}

	t.Run("verify marks the pair verified", func(t *testing.T) {
		svc, _ := newService(t)

		token, err := svc.CreateToken(ctx, "public", "user-1", " Alice@Example.com ")
		require.NoError(t, err)
		other, err := svc.CreateToken(ctx, "public", "user-1", "alice@example.com")
		require.NoError(t, err)

		userID, email, err := svc.VerifyToken(ctx, "public", token)
		require.NoError(t, err)
		require.Equal(t, "user-1", userID)
		require.Equal(t, "alice@example.com", email)

		verified, err := svc.IsVerified(ctx, "user-1", "ALICE@example.com")
		require.NoError(t, err)
		require.True(t, verified)

		// Redeeming consumed every pending token of the pair.
		_, _, err = svc.VerifyToken(ctx, "public", other)
		require.ErrorIs(t, err, ErrInvalidEmailToken)

		_, err = svc.CreateToken(ctx, "public", "user-1", "alice@example.com")
		require.ErrorIs(t, err, ErrEmailAlreadyVerified)

		require.NoError(t, svc.Unverify(ctx, "user-1", "alice@example.com"))
		verified, err = svc.IsVerified(ctx, "user-1", "alice@example.com")
		require.NoError(t, err)
		require.False(t, verified)
	})

	t.Run("tokens are scoped to their tenant", func(t *testing.T) {
		svc, _ := newService(t)

		token, err := svc.CreateToken(ctx, "acme", "user-1", "a@example.com")
		require.NoError(t, err)

		_, _, err = svc.VerifyToken(ctx, "public", token)
		require.ErrorIs(t, err, ErrInvalidEmailToken)

		_, _, err = svc.VerifyToken(ctx, "acme", token)
		require.NoError(t, err)
	})

	t.Run("expired and revoked tokens are invalid", func(t *testing.T) {
		svc, clock := newService(t)

		expired, err := svc.CreateToken(ctx, "public", "user-1", "a@example.com")
		require.NoError(t, err)
		clock.Advance(time.Hour)
		_, _, err = svc.VerifyToken(ctx, "public", expired)
		require.ErrorIs(t, err, ErrInvalidEmailToken)

		revoked, err := svc.CreateToken(ctx, "public", "user-1", "a@example.com")
		require.NoError(t, err)
		require.NoError(t, svc.RevokeTokens(ctx, "public", "user-1", "A@example.com"))
		_, _, err = svc.VerifyToken(ctx, "public", revoked)
		require.ErrorIs(t, err, ErrInvalidEmailToken)
	})

	t.Run("missing fields are a bad request", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateToken(ctx, "public", "user-1", "  ")
		require.ErrorIs(t, err, ErrBadRequest)
	})
}
