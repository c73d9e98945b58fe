package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/tabsession/internal/core/service"
)

// SessionHandler serves the /recipe/session family.
type SessionHandler struct {
	SessionService *service.SessionService
}

type createSessionRequest struct {
	UserID             string         `json:"userId"`
	RecipeUserID       string         `json:"recipeUserId"`
	UserDataInJWT      map[string]any `json:"userDataInJWT"`
	UserDataInDatabase map[string]any `json:"userDataInDatabase"`
	EnableAntiCsrf     bool           `json:"enableAntiCsrf"`
}

// HandleCreate handles POST /{tenant}/recipe/session.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.SessionService.CreateSession(r.Context(), service.CreateSessionRequest{
		TenantID:           tenantID(r),
		UserID:             req.UserID,
		RecipeUserID:       req.RecipeUserID,
		UserDataInJWT:      req.UserDataInJWT,
		UserDataInDatabase: req.UserDataInDatabase,
		EnableAntiCsrf:     req.EnableAntiCsrf,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, toSessionResponse(out))
}

type verifySessionRequest struct {
	AccessToken     string `json:"accessToken"`
	DoAntiCsrfCheck bool   `json:"doAntiCsrfCheck"`
	EnableAntiCsrf  bool   `json:"enableAntiCsrf"`
	CheckDatabase   bool   `json:"checkDatabase"`
}

// HandleVerify handles POST /recipe/session/verify. Anti-CSRF is checked by
// the SDK, which holds the request.
func (h *SessionHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifySessionRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.SessionService.VerifySession(r.Context(), service.VerifySessionRequest{
		AccessToken:   req.AccessToken,
		CheckDatabase: req.CheckDatabase,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, toSessionResponse(out))
}

type refreshSessionRequest struct {
	RefreshToken   string `json:"refreshToken"`
	AntiCsrfToken  string `json:"antiCsrfToken"`
	EnableAntiCsrf bool   `json:"enableAntiCsrf"`
}

// HandleRefresh handles POST /recipe/session/refresh.
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshSessionRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.SessionService.RefreshSession(r.Context(), service.RefreshSessionRequest{
		RefreshToken:   req.RefreshToken,
		AntiCsrfToken:  req.AntiCsrfToken,
		EnableAntiCsrf: req.EnableAntiCsrf,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, toSessionResponse(out))
}

type revokeRequest struct {
	SessionHandles         []string `json:"sessionHandles"`
	UserID                 string   `json:"userId"`
	RevokeAcrossAllTenants bool     `json:"revokeAcrossAllTenants"`
}

type revokeResponse struct {
	Status                string   `json:"status"`
	SessionHandlesRevoked []string `json:"sessionHandlesRevoked"`
}

// HandleRevoke handles POST /recipe/session/remove (by handles) and
// POST /{tenant}/recipe/session/remove (by user).
func (h *SessionHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		revoked []string
		err     error
	)
	switch {
	case req.UserID != "":
		revoked, err = h.SessionService.RevokeAllForUser(r.Context(), tenantID(r), req.UserID, req.RevokeAcrossAllTenants)
	default:
		revoked, err = h.SessionService.RevokeSessions(r.Context(), req.SessionHandles)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if revoked == nil {
		revoked = []string{}
	}
	writeOK(w, revokeResponse{Status: StatusOK, SessionHandlesRevoked: revoked})
}

// HandleListForUser handles GET /{tenant}/recipe/session/user.
func (h *SessionHandler) HandleListForUser(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	across, _ := strconv.ParseBool(q.Get("fetchAcrossAllTenants"))

	handles, err := h.SessionService.SessionHandlesForUser(r.Context(), tenantID(r), q.Get("userId"), across)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status         string   `json:"status"`
		SessionHandles []string `json:"sessionHandles"`
	}{StatusOK, handles})
}

type sessionInfoResponse struct {
	Status             string         `json:"status"`
	SessionHandle      string         `json:"sessionHandle"`
	UserID             string         `json:"userId"`
	RecipeUserID       string         `json:"recipeUserId"`
	TenantID           string         `json:"tenantId"`
	UserDataInDatabase map[string]any `json:"userDataInDatabase"`
	UserDataInJWT      map[string]any `json:"userDataInJWT"`
	Expiry             int64          `json:"expiry"`
	TimeCreated        int64          `json:"timeCreated"`
}

// HandleGet handles GET /recipe/session?sessionHandle=.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.SessionService.GetSession(r.Context(), r.URL.Query().Get("sessionHandle"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, sessionInfoResponse{
		Status:             StatusOK,
		SessionHandle:      sess.Handle,
		UserID:             sess.UserID,
		RecipeUserID:       sess.RecipeUserID,
		TenantID:           sess.TenantID,
		UserDataInDatabase: sess.UserDataInDatabase,
		UserDataInJWT:      sess.UserDataInJWT,
		Expiry:             sess.ExpiresAt.UnixMilli(),
		TimeCreated:        sess.CreatedAt.UnixMilli(),
	})
}

type updateDataRequest struct {
	SessionHandle      string         `json:"sessionHandle"`
	UserDataInDatabase map[string]any `json:"userDataInDatabase"`
	UserDataInJWT      map[string]any `json:"userDataInJWT"`
}

// HandleUpdateData handles PUT /recipe/session/data.
func (h *SessionHandler) HandleUpdateData(w http.ResponseWriter, r *http.Request) {
	var req updateDataRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.SessionService.UpdateUserDataInDatabase(r.Context(), req.SessionHandle, req.UserDataInDatabase); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, statusResponse{Status: StatusOK})
}

// HandleUpdateJWTData handles PUT /recipe/jwt/data.
func (h *SessionHandler) HandleUpdateJWTData(w http.ResponseWriter, r *http.Request) {
	var req updateDataRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.SessionService.UpdateUserDataInJWT(r.Context(), req.SessionHandle, req.UserDataInJWT); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, statusResponse{Status: StatusOK})
}

type regenerateRequest struct {
	AccessToken   string         `json:"accessToken"`
	UserDataInJWT map[string]any `json:"userDataInJWT"`
}

// HandleRegenerate handles POST /recipe/session/regenerate.
func (h *SessionHandler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.SessionService.RegenerateAccessToken(r.Context(), req.AccessToken, req.UserDataInJWT)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, toSessionResponse(out))
}
