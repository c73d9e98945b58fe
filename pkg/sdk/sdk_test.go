package sdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/plugin"
	"github.com/aussiebroadwan/tabsession/pkg/sdk"
	"github.com/aussiebroadwan/tabsession/pkg/session"
)

// offlineQuerier fails every call; these tests never reach the core.
type offlineQuerier struct{}

var errOffline = errors.New("offline")

func (offlineQuerier) SendGetRequest(context.Context, string, url.Values, any) error {
	return errOffline
}
func (offlineQuerier) SendPostRequest(context.Context, string, any, any) error { return errOffline }
func (offlineQuerier) SendPutRequest(context.Context, string, any, any) error  { return errOffline }
func (offlineQuerier) SendDeleteRequest(context.Context, string, url.Values, any) error {
	return errOffline
}

var appInfo = plugin.AppInfo{AppName: "test", APIDomain: "http://localhost"}

type stubRecipe struct {
	id     string
	routes []plugin.RouteHandler
}

func (s stubRecipe) ID() string                    { return s.id }
func (s stubRecipe) Routes() []plugin.RouteHandler { return s.routes }

// recording returns a recipe that queues a post-init callback appending id
// to log.
func recording(id string, log *[]string) sdk.RecipeInitFunc {
	return func(app *sdk.App) (sdk.Recipe, error) {
		*log = append(*log, "construct "+id)
		err := app.AddPostInitCallback(func() error {
			*log = append(*log, "post-init "+id)
			return nil
		})
		return stubRecipe{id: id}, err
	}
}

func TestAppInfoValidation(t *testing.T) {
	t.Parallel()

	var cfgErr *plugin.ConfigError

	_, err := sdk.Init(sdk.Config{AppInfo: plugin.AppInfo{APIDomain: "http://localhost"}, Querier: offlineQuerier{}})
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, err.Error(), "appName")

	_, err = sdk.Init(sdk.Config{AppInfo: plugin.AppInfo{AppName: "x"}, Querier: offlineQuerier{}})
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, err.Error(), "apiDomain")

	tests := map[string]string{
		"":       "/auth",
		"/":      "/auth",
		"api/":   "/api",
		"/v1/id": "/v1/id",
	}
	for in, want := range tests {
		info := appInfo
		info.APIBasePath = in
		app, err := sdk.Init(sdk.Config{AppInfo: info, Querier: offlineQuerier{}})
		require.NoError(t, err)
		require.Equal(t, want, app.AppInfo().APIBasePath, "base path %q", in)
	}
}

func TestPostInitRunsAfterEveryRecipe(t *testing.T) {
	t.Parallel()

	var log []string
	app, err := sdk.Init(sdk.Config{
		AppInfo:    appInfo,
		Querier:    offlineQuerier{},
		RecipeList: []sdk.RecipeInitFunc{recording("a", &log), recording("b", &log)},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"construct a", "construct b", "post-init a", "post-init b"}, log)

	err = app.AddPostInitCallback(func() error { return nil })
	require.ErrorIs(t, err, sdk.ErrPostInitClosed)

	app.ResetPostInitForTests()
	require.NoError(t, app.AddPostInitCallback(func() error { return nil }))
}

func TestPostInitErrorAbortsInit(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var ran bool
	_, err := sdk.Init(sdk.Config{
		AppInfo: appInfo,
		Querier: offlineQuerier{},
		RecipeList: []sdk.RecipeInitFunc{
			func(app *sdk.App) (sdk.Recipe, error) {
				return stubRecipe{id: "a"}, app.AddPostInitCallback(func() error { return boom })
			},
			func(app *sdk.App) (sdk.Recipe, error) {
				return stubRecipe{id: "b"}, app.AddPostInitCallback(func() error { ran = true; return nil })
			},
		},
	})
	require.ErrorIs(t, err, boom)
	require.False(t, ran)
}

func TestDuplicateRecipe(t *testing.T) {
	t.Parallel()

	var log []string
	_, err := sdk.Init(sdk.Config{
		AppInfo:    appInfo,
		Querier:    offlineQuerier{},
		RecipeList: []sdk.RecipeInitFunc{recording("a", &log), recording("a", &log)},
	})
	var cfgErr *plugin.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestAppsAreIndependent(t *testing.T) {
	t.Parallel()

	var logA, logB []string
	a, err := sdk.Init(sdk.Config{AppInfo: appInfo, Querier: offlineQuerier{}, RecipeList: []sdk.RecipeInitFunc{recording("a", &logA)}})
	require.NoError(t, err)
	b, err := sdk.Init(sdk.Config{AppInfo: appInfo, Querier: offlineQuerier{}, RecipeList: []sdk.RecipeInitFunc{recording("b", &logB)}})
	require.NoError(t, err)

	require.NotNil(t, a.Recipe("a"))
	require.Nil(t, a.Recipe("b"))
	require.NotNil(t, b.Recipe("b"))
	require.Equal(t, []string{"construct a", "post-init a"}, logA)
}

func TestPluginOrdering(t *testing.T) {
	t.Parallel()

	var log []string
	initFn := func(id string) func(sdk.Config, plugin.AppInfo, string) error {
		return func(_ sdk.Config, _ plugin.AppInfo, version string) error {
			require.Equal(t, sdk.Version, version)
			log = append(log, "init "+id)
			return nil
		}
	}

	base := &plugin.Plugin[sdk.Config]{ID: "base", Init: initFn("base")}
	extra := &plugin.Plugin[sdk.Config]{
		ID: "extra",
		Dependencies: func(sdk.Config, plugin.AppInfo, string) ([]*plugin.Plugin[sdk.Config], error) {
			return []*plugin.Plugin[sdk.Config]{base}, nil
		},
		// Config transforms may add recipes.
		Config: func(cfg sdk.Config) sdk.Config {
			cfg.RecipeList = append(cfg.RecipeList, recording("from-plugin", &log))
			return cfg
		},
		Init: initFn("extra"),
	}

	app, err := sdk.Init(sdk.Config{
		AppInfo: appInfo,
		Querier: offlineQuerier{},
		Plugins: []*plugin.Plugin[sdk.Config]{extra},
	})
	require.NoError(t, err)
	require.NotNil(t, app.Recipe("from-plugin"))
	require.Equal(t, []string{"construct from-plugin", "init base", "init extra", "post-init from-plugin"}, log)
}

func TestPluginVersionMismatch(t *testing.T) {
	t.Parallel()

	_, err := sdk.Init(sdk.Config{
		AppInfo: appInfo,
		Querier: offlineQuerier{},
		Plugins: []*plugin.Plugin[sdk.Config]{{ID: "future", CompatibleSDKVersions: []string{">=2.0.0"}}},
	})
	var cfgErr *plugin.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func serve(t *testing.T, app *sdk.App) *httptest.Server {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httptest.NewServer(app.Middleware(next))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, method, url string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(""))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var general []error
	pl := &plugin.Plugin[sdk.Config]{
		ID: "routes",
		RouteHandlers: []plugin.RouteHandler{
			{Method: http.MethodGet, Path: "/ping", Handler: func(req framework.Request, res framework.Response) error {
				return res.SendJSONResponse(map[string]string{"status": "OK"})
			}},
			{Method: http.MethodPost, Path: "bad", Handler: func(framework.Request, framework.Response) error {
				return sdk.NewBadInputError("field %q is required", "name")
			}},
			{Method: http.MethodPost, Path: "/fail", Handler: func(framework.Request, framework.Response) error {
				return errors.New("database on fire")
			}},
			{Method: http.MethodPost, Path: "/late", Handler: func(req framework.Request, res framework.Response) error {
				res.SetStatusCode(http.StatusAccepted)
				if err := res.SendJSONResponse(map[string]string{"status": "OK"}); err != nil {
					return err
				}
				return errors.New("failed after responding")
			}},
		},
	}
	app, err := sdk.Init(sdk.Config{
		AppInfo: appInfo,
		Querier: offlineQuerier{},
		Plugins: []*plugin.Plugin[sdk.Config]{pl},
		OnGeneralError: func(err error, w http.ResponseWriter, r *http.Request) {
			general = append(general, err)
			w.WriteHeader(http.StatusBadGateway)
		},
	})
	require.NoError(t, err)
	srv := serve(t, app)

	code, body := call(t, http.MethodGet, srv.URL+"/auth/ping")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK", body["status"])

	code, _ = call(t, http.MethodPost, srv.URL+"/auth/ping")
	require.Equal(t, http.StatusTeapot, code, "method mismatch falls through")

	code, _ = call(t, http.MethodGet, srv.URL+"/other")
	require.Equal(t, http.StatusTeapot, code)

	code, body = call(t, http.MethodPost, srv.URL+"/auth/bad")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, `field "name" is required`, body["message"])

	code, _ = call(t, http.MethodPost, srv.URL+"/auth/fail")
	require.Equal(t, http.StatusBadGateway, code)
	require.Len(t, general, 1)

	code, _ = call(t, http.MethodPost, srv.URL+"/auth/late")
	require.Equal(t, http.StatusAccepted, code)
	require.Len(t, general, 1, "errors after the response went out are only logged")
}

func TestDefaultGeneralError(t *testing.T) {
	t.Parallel()

	app, err := sdk.Init(sdk.Config{
		AppInfo: appInfo,
		Querier: offlineQuerier{},
		Plugins: []*plugin.Plugin[sdk.Config]{{
			ID: "fail",
			RouteHandlers: []plugin.RouteHandler{{Method: http.MethodGet, Path: "/fail", Handler: func(framework.Request, framework.Response) error {
				return errors.New("secret detail")
			}}},
		}},
	})
	require.NoError(t, err)

	code, body := call(t, http.MethodGet, serve(t, app).URL+"/auth/fail")
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "internal error", body["message"])
}

func TestPluginOverridesReachRecipes(t *testing.T) {
	t.Parallel()

	noSignOut := &plugin.Plugin[sdk.Config]{
		ID: "no-signout",
		OverrideMap: map[string]any{
			session.RecipeID: session.Overrides{
				APIs: func(original session.APIInterface) session.APIInterface {
					original.SignOutPOST = nil
					return original
				},
			},
		},
	}
	app, err := sdk.Init(sdk.Config{
		AppInfo:    appInfo,
		Querier:    offlineQuerier{},
		RecipeList: []sdk.RecipeInitFunc{sdk.SessionRecipe(session.Config{})},
		Plugins:    []*plugin.Plugin[sdk.Config]{noSignOut},
	})
	require.NoError(t, err)
	require.NotNil(t, app.Session())

	srv := serve(t, app)
	code, _ := call(t, http.MethodPost, srv.URL+"/auth/signout")
	require.Equal(t, http.StatusTeapot, code)

	// Without a refresh token the refresh route answers 401 itself.
	code, body := call(t, http.MethodPost, srv.URL+"/auth/session/refresh")
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "unauthorised", body["message"])
}

func TestVerifySessionMiddleware(t *testing.T) {
	t.Parallel()

	app, err := sdk.Init(sdk.Config{
		AppInfo:    appInfo,
		Querier:    offlineQuerier{},
		RecipeList: []sdk.RecipeInitFunc{sdk.SessionRecipe(session.Config{})},
	})
	require.NoError(t, err)

	var reached bool
	h := app.VerifySession(session.VerifySessionOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	code, body := call(t, http.MethodGet, srv.URL)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "unauthorised", body["message"])
	require.False(t, reached)

	optional := false
	h = app.VerifySession(session.VerifySessionOptions{SessionRequired: &optional})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = session.FromContext(r.Context()) == nil
	}))
	srv2 := httptest.NewServer(h)
	t.Cleanup(srv2.Close)

	code, _ = call(t, http.MethodGet, srv2.URL)
	require.Equal(t, http.StatusOK, code)
	require.True(t, reached)
}
