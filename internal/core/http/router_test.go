package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabsession/internal/coretest"
)

// call sends a JSON request to the core and decodes the JSON answer.
func call(t *testing.T, core *coretest.Core, method, path, apiKey string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, core.Server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("api-key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func token(t *testing.T, out map[string]any, field string) string {
	t.Helper()
	tok, ok := out[field].(map[string]any)
	require.True(t, ok, "missing %s in %v", field, out)
	return tok["token"].(string)
}

func TestRouter_APIKey(t *testing.T) {
	t.Parallel()
	core := coretest.Start(t)

	code, out := call(t, core, http.MethodGet, "/recipe/roles", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "Invalid API key", out["message"])

	code, _ = call(t, core, http.MethodGet, "/recipe/roles", "wrong", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, out = call(t, core, http.MethodGet, "/recipe/roles", coretest.APIKey, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK", out["status"])

	// System routes are public.
	code, out = call(t, core, http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, out["keys"], 2)

	code, out = call(t, core, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", out["status"])
}

func TestRouter_BadInput(t *testing.T) {
	t.Parallel()
	core := coretest.Start(t)

	code, out := call(t, core, http.MethodPost, "/public/recipe/session", coretest.APIKey,
		map[string]any{"userId": "user-1", "unexpected": true})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, out["message"], "unexpected")

	code, out = call(t, core, http.MethodPost, "/public/recipe/session", coretest.APIKey, map[string]any{})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, out["message"], "userId is required")
}

func TestRouter_SessionProtocol(t *testing.T) {
	t.Parallel()
	core := coretest.Start(t, coretest.WithAccessTokenTTL(time.Minute))

	code, created := call(t, core, http.MethodPost, "/acme/recipe/session", coretest.APIKey, map[string]any{
		"userId":         "user-1",
		"userDataInJWT":  map[string]any{"plan": "pro"},
		"enableAntiCsrf": true,
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK", created["status"])
	require.NotEmpty(t, created["antiCsrfToken"])

	sess := created["session"].(map[string]any)
	require.Equal(t, "acme", sess["tenantId"])
	require.Equal(t, "user-1", sess["recipeUserId"])
	handle := sess["handle"].(string)

	access := token(t, created, "accessToken")
	refresh := token(t, created, "refreshToken")

	t.Run("verify", func(t *testing.T) {
		_, out := call(t, core, http.MethodPost, "/recipe/session/verify", coretest.APIKey,
			map[string]any{"accessToken": access, "checkDatabase": true})
		require.Equal(t, "OK", out["status"])
		require.Equal(t, "pro", out["session"].(map[string]any)["userDataInJWT"].(map[string]any)["plan"])
	})

	t.Run("expired access token asks for a refresh", func(t *testing.T) {
		core.Clock.Advance(2 * time.Minute)
		_, out := call(t, core, http.MethodPost, "/recipe/session/verify", coretest.APIKey,
			map[string]any{"accessToken": access})
		require.Equal(t, "TRY_REFRESH_TOKEN", out["status"])
	})

	t.Run("refresh with the wrong anti-csrf token", func(t *testing.T) {
		_, out := call(t, core, http.MethodPost, "/recipe/session/refresh", coretest.APIKey,
			map[string]any{"refreshToken": refresh, "antiCsrfToken": "nope", "enableAntiCsrf": true})
		require.Equal(t, "UNAUTHORISED", out["status"])
	})

	var child string
	t.Run("refresh rotates", func(t *testing.T) {
		_, out := call(t, core, http.MethodPost, "/recipe/session/refresh", coretest.APIKey,
			map[string]any{"refreshToken": refresh, "antiCsrfToken": created["antiCsrfToken"], "enableAntiCsrf": true})
		require.Equal(t, "OK", out["status"])
		child = token(t, out, "refreshToken")
		require.NotEqual(t, refresh, child)
	})

	t.Run("reusing the parent after the child is theft", func(t *testing.T) {
		_, out := call(t, core, http.MethodPost, "/recipe/session/refresh", coretest.APIKey,
			map[string]any{"refreshToken": child})
		require.Equal(t, "OK", out["status"])

		_, out = call(t, core, http.MethodPost, "/recipe/session/refresh", coretest.APIKey,
			map[string]any{"refreshToken": refresh})
		require.Equal(t, "TOKEN_THEFT_DETECTED", out["status"])
		theft := out["session"].(map[string]any)
		require.Equal(t, handle, theft["handle"])
		require.Equal(t, "user-1", theft["userId"])
		require.Equal(t, "user-1", theft["recipeUserId"])
	})

	t.Run("list and revoke for user", func(t *testing.T) {
		_, out := call(t, core, http.MethodGet, "/acme/recipe/session/user?userId=user-1", coretest.APIKey, nil)
		require.Equal(t, []any{handle}, out["sessionHandles"])

		_, out = call(t, core, http.MethodPost, "/acme/recipe/session/remove", coretest.APIKey,
			map[string]any{"userId": "user-1"})
		require.Equal(t, []any{handle}, out["sessionHandlesRevoked"])

		_, out = call(t, core, http.MethodPost, "/recipe/session/remove", coretest.APIKey,
			map[string]any{"sessionHandles": []string{handle}})
		require.Equal(t, []any{}, out["sessionHandlesRevoked"])

		_, out = call(t, core, http.MethodPost, "/recipe/session/refresh", coretest.APIKey,
			map[string]any{"refreshToken": child})
		require.Equal(t, "UNAUTHORISED", out["status"])
	})
}
