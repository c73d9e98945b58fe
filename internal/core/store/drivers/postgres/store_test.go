package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
	"github.com/aussiebroadwan/tabsession/internal/core/store/drivers/postgres"
	"github.com/aussiebroadwan/tabsession/pkg/idx"
)

func newPostgresStore(t *testing.T) store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres store tests need docker")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "core",
				"POSTGRES_PASSWORD": "core",
				"POSTGRES_DB":       "core",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	s, err := postgres.NewStore(fmt.Sprintf("postgres://core:core@%s:%s/core?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	// Applying twice is a no-op.
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestPostgresStore(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("sessions", func(t *testing.T) {
		sess := domain.Session{
			Handle:             idx.New().String(),
			UserID:             "user-1",
			RecipeUserID:       "user-1",
			TenantID:           "public",
			RefreshTokenHash2:  "h2-a",
			UserDataInJWT:      map[string]any{"plan": "pro"},
			UserDataInDatabase: map[string]any{"seen": float64(3)},
			ExpiresAt:          now.Add(time.Hour),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		require.NoError(t, s.Sessions().CreateSession(ctx, sess))

		got, err := s.Sessions().GetSession(ctx, sess.Handle)
		require.NoError(t, err)
		require.Equal(t, "pro", got.UserDataInJWT["plan"])
		require.Equal(t, float64(3), got.UserDataInDatabase["seen"])
		require.True(t, got.ExpiresAt.Equal(sess.ExpiresAt))

		err = s.WithTx(ctx, func(tx store.Tx) error {
			locked, err := tx.Sessions().GetSessionForUpdate(ctx, sess.Handle)
			if err != nil {
				return err
			}
			return tx.Sessions().UpdateRefreshTokenHash2(ctx, locked.Handle, "h2-b", now.Add(2*time.Hour))
		})
		require.NoError(t, err)

		got, err = s.Sessions().GetSession(ctx, sess.Handle)
		require.NoError(t, err)
		require.Equal(t, "h2-b", got.RefreshTokenHash2)

		handles, err := s.Sessions().ListSessionHandlesForUser(ctx, "", "user-1", now)
		require.NoError(t, err)
		require.Equal(t, []string{sess.Handle}, handles)

		deleted, err := s.Sessions().DeleteSessions(ctx, []string{sess.Handle, "missing"})
		require.NoError(t, err)
		require.Equal(t, []string{sess.Handle}, deleted)

		_, err = s.Sessions().GetSession(ctx, sess.Handle)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("roles", func(t *testing.T) {
		require.NoError(t, s.Roles().CreateRole(ctx, "admin", now))
		require.ErrorIs(t, s.Roles().CreateRole(ctx, "admin", now), store.ErrAlreadyExists)

		require.NoError(t, s.Roles().AddPermissions(ctx, "admin", []string{"write", "read"}))
		perms, err := s.Roles().ListPermissions(ctx, "admin")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"read", "write"}, perms)

		require.NoError(t, s.Roles().AddUserRole(ctx, "public", "user-1", "admin"))
		require.ErrorIs(t, s.Roles().AddUserRole(ctx, "public", "user-1", "admin"), store.ErrAlreadyExists)

		require.NoError(t, s.Roles().DeleteRole(ctx, "admin"))
		roles, err := s.Roles().ListUserRoles(ctx, "public", "user-1")
		require.NoError(t, err)
		require.Empty(t, roles)
	})
}
