// Package sdk is the application context: it resolves plugins, constructs
// recipes, runs the post-init wiring phase and serves recipe routes.
//
// Startup has two phases. Recipes are constructed first and may register
// post-init callbacks through App.AddPostInitCallback; the callbacks then
// run once, in registration order, with the session recipe accepting claim
// and validator registrations. Several App values may coexist.
package sdk

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/plugin"
	"github.com/aussiebroadwan/tabsession/pkg/querier"
	"github.com/aussiebroadwan/tabsession/pkg/session"
)

// Version is the SDK version plugins check their compatible ranges against.
const Version = "0.1.0"

// Recipe is a constructed recipe.
type Recipe interface {
	ID() string
	// Routes lists the recipe's enabled HTTP routes with full paths.
	Routes() []plugin.RouteHandler
}

// ErrorHandler is implemented by recipes that render their own errors.
type ErrorHandler interface {
	HandleError(err error, req framework.Request, res framework.Response) (bool, error)
}

// RecipeInitFunc constructs a recipe for app.
type RecipeInitFunc func(app *App) (Recipe, error)

// Config configures an App.
type Config struct {
	AppInfo plugin.AppInfo

	// Core locates the authentication core. Ignored when Querier is set.
	Core    querier.Config
	Querier querier.Querier

	RecipeList []RecipeInitFunc
	Plugins    []*plugin.Plugin[Config]

	// OnGeneralError renders errors no recipe claimed. Defaults to a 500
	// with {"message":"internal error"}.
	OnGeneralError func(err error, w http.ResponseWriter, r *http.Request)

	// Debug logs startup at Info instead of Debug.
	Debug bool
}

// App is one initialised application.
type App struct {
	cfg     Config
	querier querier.Querier
	applied *plugin.Applied[Config]
	logger  *slog.Logger

	recipes  []Recipe
	session  *session.Recipe
	routes   []plugin.RouteHandler
	postInit postInitList
}

// Init resolves plugins, constructs every recipe and runs the post-init
// phase. Misconfiguration is reported as a *plugin.ConfigError.
func Init(cfg Config) (*App, error) {
	if err := validateAppInfo(&cfg.AppInfo); err != nil {
		return nil, err
	}

	resolved, err := plugin.Resolve(cfg.Plugins, cfg, cfg.AppInfo, Version)
	if err != nil {
		return nil, err
	}
	applied := plugin.Apply(resolved, cfg)

	app := &App{
		cfg:     applied.Config,
		applied: applied,
		logger:  slog.Default(),
	}

	app.querier = app.cfg.Querier
	if app.querier == nil {
		q, err := querier.NewHTTPQuerier(app.cfg.Core)
		if err != nil {
			return nil, &plugin.ConfigError{Message: "core connection", Err: err}
		}
		app.querier = q
	}

	seen := make(map[string]bool)
	for _, initFn := range app.cfg.RecipeList {
		r, err := initFn(app)
		if err != nil {
			return nil, err
		}
		if seen[r.ID()] {
			return nil, plugin.NewConfigError("recipe %q initialised twice", r.ID())
		}
		seen[r.ID()] = true
		if s, ok := r.(*session.Recipe); ok {
			app.session = s
		}
		app.recipes = append(app.recipes, r)
	}

	for _, p := range resolved {
		if p.Init == nil {
			continue
		}
		if err := p.Init(app.cfg, app.cfg.AppInfo, Version); err != nil {
			return nil, &plugin.ConfigError{Message: fmt.Sprintf("plugin %q init", p.ID), Err: err}
		}
	}

	if err := app.runPostInit(); err != nil {
		return nil, err
	}

	for _, r := range app.recipes {
		app.routes = append(app.routes, r.Routes()...)
	}
	for _, h := range applied.RouteHandlers {
		h.Path = app.cfg.AppInfo.APIBasePath + "/" + strings.TrimPrefix(h.Path, "/")
		app.routes = append(app.routes, h)
	}

	app.log("sdk initialised",
		"app", app.cfg.AppInfo.AppName,
		"recipes", len(app.recipes),
		"plugins", len(resolved),
		"routes", len(app.routes),
	)
	return app, nil
}

// runPostInit drains the callback list with the session recipe's claim
// registration open.
func (a *App) runPostInit() error {
	if a.session != nil {
		closeFn := a.session.OpenClaimRegistration()
		defer closeFn()
	}
	a.log("running post-init callbacks", "count", a.postInit.len())
	return a.postInit.drain()
}

func (a *App) log(msg string, args ...any) {
	if a.cfg.Debug {
		a.logger.Info(msg, args...)
		return
	}
	a.logger.Debug(msg, args...)
}

// validateAppInfo fills the base path default and requires a name and API
// domain.
func validateAppInfo(info *plugin.AppInfo) error {
	if info.AppName == "" {
		return plugin.NewConfigError("appInfo.appName is required")
	}
	if info.APIDomain == "" {
		return plugin.NewConfigError("appInfo.apiDomain is required")
	}
	base := "/" + strings.Trim(info.APIBasePath, "/")
	if base == "/" {
		base = "/auth"
	}
	info.APIBasePath = base
	return nil
}

// AddPostInitCallback queues fn for the post-init phase. After the phase
// ran it returns ErrPostInitClosed.
func (a *App) AddPostInitCallback(fn func() error) error {
	return a.postInit.add(fn)
}

// AppInfo returns the normalised application info.
func (a *App) AppInfo() plugin.AppInfo { return a.cfg.AppInfo }

// Querier is the client recipes use to reach the core.
func (a *App) Querier() querier.Querier { return a.querier }

// PluginOverrides returns the override layers plugins contributed for
// recipeID, in resolution order.
func (a *App) PluginOverrides(recipeID string) []any {
	return a.applied.Overrides(recipeID)
}

// Session returns the session recipe. During construction it is only set
// once the session recipe's init func has run; post-init callbacks always
// see it.
func (a *App) Session() *session.Recipe { return a.session }

// Recipe returns the recipe with id, or nil.
func (a *App) Recipe(id string) Recipe {
	for _, r := range a.recipes {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

// SessionRecipe returns the init func of the session recipe. Base path and
// API domain default to the application's.
func SessionRecipe(cfg session.Config) RecipeInitFunc {
	return func(app *App) (Recipe, error) {
		info := app.AppInfo()
		if cfg.APIBasePath == "" {
			cfg.APIBasePath = info.APIBasePath
		}
		if cfg.APIDomain == "" {
			cfg.APIDomain = info.APIDomain
		}
		return session.New(app.Querier(), cfg, app.PluginOverrides(session.RecipeID)...)
	}
}
