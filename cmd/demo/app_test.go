package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabsession/internal/coretest"
	"github.com/aussiebroadwan/tabsession/pkg/recipe/userroles"
)

func send(t *testing.T, method, url, access string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("st-auth-mode", "header")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestDemo(t *testing.T) {
	t.Parallel()
	core := coretest.Start(t)

	users := newDirectory()
	app, err := newApp(config{APIDomain: "http://localhost", WebsiteDomain: "http://localhost:3000"}, core.QuerierConfig(), users)
	require.NoError(t, err)

	srv := httptest.NewServer(routes(app, users))
	t.Cleanup(srv.Close)

	roles := app.Recipe(userroles.RecipeID).(*userroles.Recipe).Functions()
	ctx := context.Background()
	_, err = roles.CreateNewRoleOrAddPermissions(ctx, "admin", []string{"ping"})
	require.NoError(t, err)
	_, err = roles.AddRoleToUser(ctx, "public", "alice", "admin")
	require.NoError(t, err)

	login := func(userID, email string) string {
		resp, body := send(t, http.MethodPost, srv.URL+"/login", "", map[string]string{"userId": userID, "email": email})
		require.Equal(t, http.StatusOK, resp.StatusCode, "login: %v", body)
		access := resp.Header.Get("st-access-token")
		require.NotEmpty(t, access)
		return access
	}

	alice := login("alice", "alice@example.com")
	bob := login("bob", "")

	t.Run("session info", func(t *testing.T) {
		resp, body := send(t, http.MethodGet, srv.URL+"/sessioninfo", alice, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "alice", body["userId"])

		payload := body["accessTokenPayload"].(map[string]any)
		require.Contains(t, payload, "st-ev")
		require.Contains(t, payload, "st-role")
	})

	t.Run("no session", func(t *testing.T) {
		resp, body := send(t, http.MethodGet, srv.URL+"/sessioninfo", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "unauthorised", body["message"])
	})

	t.Run("admin route checks the role claim", func(t *testing.T) {
		resp, _ := send(t, http.MethodPost, srv.URL+"/admin/ping", alice, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := send(t, http.MethodPost, srv.URL+"/admin/ping", bob, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Equal(t, "invalid claim", body["message"])
	})

	t.Run("recipe routes are served", func(t *testing.T) {
		resp, body := send(t, http.MethodGet, srv.URL+"/auth/user/email/verify", alice, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, false, body["isVerified"])
	})
}
