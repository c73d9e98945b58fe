package sdk

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/session"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// Middleware serves recipe and plugin routes and passes everything else to
// next.
func (a *App) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, route := range a.routes {
			if route.Method != r.Method || route.Path != r.URL.Path {
				continue
			}
			req, res := framework.NewRequest(r), framework.NewResponse(w)
			if err := route.Handler(req, res); err != nil {
				a.handleError(err, w, r, req, res)
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler renders err. Recipes get the first chance; bad input is a
// 400 and anything else goes to Config.OnGeneralError.
func (a *App) ErrorHandler(err error, w http.ResponseWriter, r *http.Request) {
	a.handleError(err, w, r, framework.NewRequest(r), framework.NewResponse(w))
}

// handleError renders err through the req and res a route already used, so
// recipes see whether a response went out.
func (a *App) handleError(err error, w http.ResponseWriter, r *http.Request, req framework.Request, res framework.Response) {
	for _, rec := range a.recipes {
		h, ok := rec.(ErrorHandler)
		if !ok {
			continue
		}
		handled, herr := h.HandleError(err, req, res)
		if !handled {
			continue
		}
		if herr != nil {
			a.generalError(herr, w, r)
		}
		return
	}

	if res.ResponseSent() {
		slogx.FromContext(r.Context()).Error("sdk error after response was sent", "error", err)
		return
	}
	var bad *BadInputError
	if errors.As(err, &bad) {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": bad.Message})
		return
	}
	a.generalError(err, w, r)
}

func (a *App) generalError(err error, w http.ResponseWriter, r *http.Request) {
	if a.cfg.OnGeneralError != nil {
		a.cfg.OnGeneralError(err, w, r)
		return
	}
	slogx.FromContext(r.Context()).Error("sdk request failed", "error", err)
	httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
}

// VerifySession returns middleware that requires a session, runs the claim
// validators and exposes the container through session.FromContext.
// Failures are rendered by ErrorHandler.
func (a *App) VerifySession(opts session.VerifySessionOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.session == nil {
				a.generalError(errors.New("sdk: session recipe not initialised"), w, r)
				return
			}
			req, res := framework.NewRequest(r), framework.NewResponse(w)
			s, err := a.session.APIs().VerifySession(req, res, opts)
			if err != nil {
				a.handleError(err, w, r, req, res)
				return
			}
			ctx := r.Context()
			if s != nil {
				ctx = session.WithContext(ctx, s)
				ctx = slogx.WithSession(ctx, s.GetHandle(), s.GetUserID())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
