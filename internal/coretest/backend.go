package coretest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/plugin"
	"github.com/aussiebroadwan/tabsession/pkg/querier"
	"github.com/aussiebroadwan/tabsession/pkg/sdk"
	"github.com/aussiebroadwan/tabsession/pkg/session"
)

// Backend is an application protected by the SDK, talking to a test core.
//
// Routes besides the recipes' own:
//
//	POST /create    {"userId", "payload"} starts a session
//	GET  /me        requires a session
//	POST /me        requires a session (anti-csrf applies)
//	GET  /optional  session optional
type Backend struct {
	App    *sdk.App
	Server *httptest.Server
	Core   *Core
}

// NewBackend initialises an App with the session recipe first, then
// recipes, and serves it.
func NewBackend(t testing.TB, core *Core, cfg session.Config, recipes ...sdk.RecipeInitFunc) *Backend {
	t.Helper()

	if cfg.Now == nil {
		cfg.Now = core.Clock.Now
	}
	b := NewRemoteBackend(t, core.QuerierConfig(), cfg, recipes...)
	b.Core = core
	return b
}

// NewRemoteBackend is NewBackend for a core running elsewhere, such as in a
// container. Core is nil on the returned Backend.
func NewRemoteBackend(t testing.TB, qcfg querier.Config, cfg session.Config, recipes ...sdk.RecipeInitFunc) *Backend {
	t.Helper()

	app, err := sdk.Init(sdk.Config{
		AppInfo: plugin.AppInfo{
			AppName:       "coretest",
			APIDomain:     "http://localhost",
			WebsiteDomain: "http://localhost:3000",
		},
		Core:       qcfg,
		RecipeList: append([]sdk.RecipeInitFunc{sdk.SessionRecipe(cfg)}, recipes...),
	})
	require.NoError(t, err)

	b := &Backend{App: app}
	b.Server = httptest.NewServer(app.Middleware(b.routes()))
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /create", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID  string         `json:"userId"`
			Payload claims.Payload `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		req, res := framework.NewRequest(r), framework.NewResponse(w)
		s, err := b.App.Session().CreateNewSession(req, res, "", body.UserID, body.Payload, nil)
		if err != nil {
			b.App.ErrorHandler(err, w, r)
			return
		}
		_ = res.SendJSONResponse(map[string]string{"status": "OK", "handle": s.GetHandle()})
	})

	me := b.App.VerifySession(session.VerifySessionOptions{})(http.HandlerFunc(writeSession))
	mux.Handle("GET /me", me)
	mux.Handle("POST /me", me)

	optional := false
	mux.Handle("GET /optional", b.App.VerifySession(session.VerifySessionOptions{SessionRequired: &optional})(http.HandlerFunc(writeSession)))

	return mux
}

func writeSession(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if s == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"userId": ""})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"userId":  s.GetUserID(),
		"handle":  s.GetHandle(),
		"payload": s.GetAccessTokenPayload(),
	})
}

// Tokens are what a header based client keeps between requests.
type Tokens struct {
	Access   string
	Refresh  string
	AntiCsrf string
	Front    string
}

func (tk *Tokens) update(h http.Header) {
	if v := h.Get("st-access-token"); v != "" {
		tk.Access = v
	}
	if v := h.Get("st-refresh-token"); v != "" {
		tk.Refresh = v
	}
	if v := h.Get("anti-csrf"); v != "" {
		tk.AntiCsrf = v
	}
	if v := h.Get("front-token"); v != "" {
		tk.Front = v
	}
}

// Response is a decoded backend response.
type Response struct {
	Code    int
	Header  http.Header
	Cookies []*http.Cookie
	Body    map[string]any
}

// Do sends a request to the backend. A nil body sends none.
func (b *Backend) Do(t testing.TB, method, path string, body any, header http.Header, cookies ...*http.Cookie) Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, b.Server.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := Response{Code: resp.StatusCode, Header: resp.Header, Cookies: resp.Cookies()}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(bytes.TrimSpace(raw)) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.Body), "body: %s", raw)
	}
	return out
}

// CreateSession starts a header based session for userID.
func (b *Backend) CreateSession(t testing.TB, userID string, payload claims.Payload) *Tokens {
	t.Helper()
	resp := b.Do(t, http.MethodPost, "/create", map[string]any{"userId": userID, "payload": payload},
		http.Header{"st-auth-mode": {"header"}})
	require.Equal(t, http.StatusOK, resp.Code, "create session: %v", resp.Body)

	tk := &Tokens{}
	tk.update(resp.Header)
	require.NotEmpty(t, tk.Access)
	require.NotEmpty(t, tk.Refresh)
	return tk
}

// Call sends an authenticated request and keeps any tokens the backend
// hands back.
func (b *Backend) Call(t testing.TB, method, path string, tk *Tokens, body any) Response {
	t.Helper()
	resp := b.Do(t, method, path, body, http.Header{"Authorization": {"Bearer " + tk.Access}})
	tk.update(resp.Header)
	return resp
}

// Refresh rotates tk's refresh token.
func (b *Backend) Refresh(t testing.TB, tk *Tokens) Response {
	t.Helper()
	resp := b.Do(t, http.MethodPost, b.App.AppInfo().APIBasePath+"/session/refresh", nil,
		http.Header{"Authorization": {"Bearer " + tk.Refresh}})
	if resp.Code == http.StatusOK {
		tk.update(resp.Header)
	}
	return resp
}
