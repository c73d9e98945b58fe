package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/internal/core/service"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/querier"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// Response statuses. Protocol outcomes are 200 with a status; only
// malformed requests and server faults use HTTP error codes.
const (
	StatusOK                 = "OK"
	StatusUnauthorised       = "UNAUTHORISED"
	StatusTryRefreshToken    = "TRY_REFRESH_TOKEN"
	StatusTokenTheftDetected = "TOKEN_THEFT_DETECTED"
)

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type sessionJSON struct {
	Handle        string         `json:"handle"`
	UserID        string         `json:"userId"`
	RecipeUserID  string         `json:"recipeUserId"`
	TenantID      string         `json:"tenantId,omitempty"`
	UserDataInJWT map[string]any `json:"userDataInJWT,omitempty"`
}

type tokenJSON struct {
	Token       string `json:"token"`
	Expiry      int64  `json:"expiry"`
	CreatedTime int64  `json:"createdTime"`
}

type sessionResponse struct {
	Status        string       `json:"status"`
	Message       string       `json:"message,omitempty"`
	Session       *sessionJSON `json:"session,omitempty"`
	AccessToken   *tokenJSON   `json:"accessToken,omitempty"`
	RefreshToken  *tokenJSON   `json:"refreshToken,omitempty"`
	AntiCsrfToken string       `json:"antiCsrfToken,omitempty"`
}

func toSessionJSON(s domain.Session) *sessionJSON {
	data := s.UserDataInJWT
	if data == nil {
		data = map[string]any{}
	}
	return &sessionJSON{
		Handle:        s.Handle,
		UserID:        s.UserID,
		RecipeUserID:  s.RecipeUserID,
		TenantID:      s.TenantID,
		UserDataInJWT: data,
	}
}

func toTokenJSON(t *service.Token) *tokenJSON {
	if t == nil {
		return nil
	}
	return &tokenJSON{
		Token:       t.Token,
		Expiry:      t.Expiry.UnixMilli(),
		CreatedTime: t.CreatedAt.UnixMilli(),
	}
}

func toSessionResponse(out *service.Issued) sessionResponse {
	return sessionResponse{
		Status:        StatusOK,
		Session:       toSessionJSON(out.Session),
		AccessToken:   toTokenJSON(out.AccessToken),
		RefreshToken:  toTokenJSON(out.RefreshToken),
		AntiCsrfToken: out.AntiCsrfToken,
	}
}

func writeOK(w http.ResponseWriter, v any) {
	httpx.WriteJSON(w, http.StatusOK, v)
}

// writeError maps service errors onto the protocol. Errors it does not know
// are logged and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var theft *service.TheftError
	switch {
	case errors.As(err, &theft):
		writeOK(w, sessionResponse{
			Status: StatusTokenTheftDetected,
			Session: &sessionJSON{
				Handle:       theft.Session.Handle,
				UserID:       theft.Session.UserID,
				RecipeUserID: theft.Session.RecipeUserID,
			},
		})
	case errors.Is(err, service.ErrUnauthorised):
		writeOK(w, statusResponse{Status: StatusUnauthorised, Message: err.Error()})
	case errors.Is(err, service.ErrTryRefreshToken):
		writeOK(w, statusResponse{Status: StatusTryRefreshToken, Message: err.Error()})
	case errors.Is(err, service.ErrBadRequest), errors.Is(err, httpx.ErrBadJSON):
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
	default:
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

// decode reads a JSON body, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(r, v); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

// tenantID returns the {tenant} path segment, or public for routes without one.
func tenantID(r *http.Request) string {
	if t := r.PathValue("tenant"); t != "" {
		return t
	}
	return querier.DefaultTenantID
}
