package core_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSessionLifecycle drives a header based client through an SDK backend
// against the containerised core.
func TestSessionLifecycle(t *testing.T) {
	baseURL := setupCoreContainer(t, relaxedLimits)
	b := newBackend(t, baseURL)

	tk := b.CreateSession(t, "user-1", map[string]any{"plan": "pro"})

	resp := b.Call(t, http.MethodGet, "/me", tk, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "user-1", resp.Body["userId"])

	oldRefresh := tk.Refresh
	resp = b.Refresh(t, tk)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotEqual(t, oldRefresh, tk.Refresh)

	// Using the new access token commits the rotation.
	resp = b.Call(t, http.MethodGet, "/me", tk, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = b.Do(t, http.MethodPost, "/auth/session/refresh", nil,
		http.Header{"Authorization": {"Bearer " + oldRefresh}})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "token theft detected", resp.Body["message"])

	// Theft revokes the session; the victim's unexpired access token stops working.
	resp = b.Call(t, http.MethodGet, "/me", tk, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = b.Refresh(t, tk)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestSignOut(t *testing.T) {
	baseURL := setupCoreContainer(t, relaxedLimits)
	b := newBackend(t, baseURL)

	tk := b.CreateSession(t, "user-1", nil)

	resp := b.Call(t, http.MethodPost, "/auth/signout", tk, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = b.Refresh(t, tk)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}
