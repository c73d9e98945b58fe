package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/plugin"
	"github.com/aussiebroadwan/tabsession/pkg/querier"
	"github.com/aussiebroadwan/tabsession/pkg/recipe/emailverification"
	"github.com/aussiebroadwan/tabsession/pkg/recipe/totp"
	"github.com/aussiebroadwan/tabsession/pkg/recipe/userroles"
	"github.com/aussiebroadwan/tabsession/pkg/sdk"
	"github.com/aussiebroadwan/tabsession/pkg/session"
)

// directory is the demo's user store: user id to email.
type directory struct {
	mu     sync.RWMutex
	emails map[string]string
}

func newDirectory() *directory {
	return &directory{emails: map[string]string{}}
}

func (d *directory) set(userID, email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails[userID] = email
}

func (d *directory) email(_ context.Context, userID, _ string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	email, ok := d.emails[userID]
	return email, ok && email != "", nil
}

func newApp(cfg config, core querier.Config, users *directory) (*sdk.App, error) {
	return sdk.Init(sdk.Config{
		AppInfo: plugin.AppInfo{
			AppName:       "demo",
			APIDomain:     cfg.APIDomain,
			WebsiteDomain: cfg.WebsiteDomain,
		},
		Core: core,
		RecipeList: []sdk.RecipeInitFunc{
			sdk.SessionRecipe(session.Config{}),
			emailverification.Init(emailverification.Config{
				Mode:              emailverification.ModeOptional,
				GetEmailForUserID: users.email,
			}),
			userroles.Init(userroles.Config{}),
			totp.Init(totp.Config{}),
		},
	})
}

// routes mounts the app's own endpoints behind the SDK middleware.
//
//	POST /login        {"userId", "email"} starts a session
//	GET  /sessioninfo  the current session
//	POST /admin/ping   requires the admin role
func routes(app *sdk.App, users *directory) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(app.Middleware)

	r.Post("/login", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			UserID string `json:"userId"`
			Email  string `json:"email"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.UserID == "" {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "userId is required"})
			return
		}
		users.set(body.UserID, body.Email)

		s, err := app.Session().CreateNewSession(framework.NewRequest(req), framework.NewResponse(w), "", body.UserID, nil, nil)
		if err != nil {
			app.ErrorHandler(err, w, req)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK", "userId": s.GetUserID()})
	})

	r.With(app.VerifySession(session.VerifySessionOptions{})).Get("/sessioninfo", func(w http.ResponseWriter, req *http.Request) {
		s := session.FromContext(req.Context())
		data, err := s.GetSessionDataFromDatabase(req.Context())
		if err != nil {
			app.ErrorHandler(err, w, req)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"sessionHandle":      s.GetHandle(),
			"userId":             s.GetUserID(),
			"tenantId":           s.GetTenantID(),
			"accessTokenPayload": s.GetAccessTokenPayload(),
			"sessionData":        data,
		})
	})

	roles, _ := app.Recipe(userroles.RecipeID).(*userroles.Recipe)
	requireAdmin := session.VerifySessionOptions{
		OverrideGlobalClaimValidators: func(_ context.Context, global []*claims.Validator, _ session.SessionContainer) ([]*claims.Validator, error) {
			if roles == nil {
				return nil, errors.New("userroles recipe is not initialised")
			}
			return append(global, roles.RoleClaim().Includes("admin")), nil
		},
	}
	r.With(app.VerifySession(requireAdmin)).Post("/admin/ping", func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	})

	return r
}
