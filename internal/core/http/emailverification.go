package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tabsession/internal/core/service"
)

const (
	statusEmailAlreadyVerified = "EMAIL_ALREADY_VERIFIED_ERROR"
	statusInvalidEmailToken    = "EMAIL_VERIFICATION_INVALID_TOKEN_ERROR"
)

type EmailVerificationHandler struct {
	EmailVerificationService *service.EmailVerificationService
}

type emailUserRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// HandleCreateToken handles POST /{tenant}/recipe/user/email/verify/token.
func (h *EmailVerificationHandler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req emailUserRequest
	if !decode(w, r, &req) {
		return
	}

	token, err := h.EmailVerificationService.CreateToken(r.Context(), tenantID(r), req.UserID, req.Email)
	switch {
	case errors.Is(err, service.ErrEmailAlreadyVerified):
		writeOK(w, statusResponse{Status: statusEmailAlreadyVerified})
	case err != nil:
		writeError(w, r, err)
	default:
		writeOK(w, struct {
			Status string `json:"status"`
			Token  string `json:"token"`
		}{StatusOK, token})
	}
}

type verifyEmailRequest struct {
	Method string `json:"method"`
	Token  string `json:"token"`
}

// HandleVerify handles POST /{tenant}/recipe/user/email/verify.
func (h *EmailVerificationHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Method != "" && req.Method != "token" {
		writeError(w, r, service.ErrBadRequest)
		return
	}

	userID, email, err := h.EmailVerificationService.VerifyToken(r.Context(), tenantID(r), req.Token)
	switch {
	case errors.Is(err, service.ErrInvalidEmailToken):
		writeOK(w, statusResponse{Status: statusInvalidEmailToken})
	case err != nil:
		writeError(w, r, err)
	default:
		writeOK(w, struct {
			Status string `json:"status"`
			UserID string `json:"userId"`
			Email  string `json:"email"`
		}{StatusOK, userID, email})
	}
}

// HandleIsVerified handles GET /recipe/user/email/verify?userId=&email=.
func (h *EmailVerificationHandler) HandleIsVerified(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	verified, err := h.EmailVerificationService.IsVerified(r.Context(), q.Get("userId"), q.Get("email"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status     string `json:"status"`
		IsVerified bool   `json:"isVerified"`
	}{StatusOK, verified})
}

// HandleUnverify handles POST /recipe/user/email/verify/remove.
func (h *EmailVerificationHandler) HandleUnverify(w http.ResponseWriter, r *http.Request) {
	var req emailUserRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.EmailVerificationService.Unverify(r.Context(), req.UserID, req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, statusResponse{Status: StatusOK})
}

// HandleRevokeTokens handles POST /{tenant}/recipe/user/email/verify/token/remove.
func (h *EmailVerificationHandler) HandleRevokeTokens(w http.ResponseWriter, r *http.Request) {
	var req emailUserRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.EmailVerificationService.RevokeTokens(r.Context(), tenantID(r), req.UserID, req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, statusResponse{Status: StatusOK})
}
