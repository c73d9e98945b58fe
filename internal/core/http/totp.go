package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tabsession/internal/core/service"
)

const (
	statusDeviceAlreadyExists = "DEVICE_ALREADY_EXISTS_ERROR"
	statusUnknownDevice       = "UNKNOWN_DEVICE_ERROR"
	statusUnknownUserID       = "UNKNOWN_USER_ID_ERROR"
	statusInvalidTOTP         = "INVALID_TOTP_ERROR"
	statusLimitReached        = "LIMIT_REACHED_ERROR"
)

type TOTPHandler struct {
	TOTPService *service.TOTPService
}

type invalidTOTPResponse struct {
	Status                        string `json:"status"`
	CurrentNumberOfFailedAttempts int    `json:"currentNumberOfFailedAttempts"`
	MaxNumberOfFailedAttempts     int    `json:"maxNumberOfFailedAttempts"`
}

type limitReachedResponse struct {
	Status       string `json:"status"`
	RetryAfterMs int64  `json:"retryAfterMs"`
}

// writeTOTPError maps TOTP outcomes onto statuses before falling back to
// writeError.
func writeTOTPError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *service.InvalidTOTPError
	var limited *service.LimitReachedError
	switch {
	case errors.As(err, &invalid):
		writeOK(w, invalidTOTPResponse{
			Status:                        statusInvalidTOTP,
			CurrentNumberOfFailedAttempts: invalid.FailedAttempts,
			MaxNumberOfFailedAttempts:     invalid.MaxAttempts,
		})
	case errors.As(err, &limited):
		writeOK(w, limitReachedResponse{Status: statusLimitReached, RetryAfterMs: limited.RetryAfter.Milliseconds()})
	case errors.Is(err, service.ErrDeviceAlreadyExists):
		writeOK(w, statusResponse{Status: statusDeviceAlreadyExists})
	case errors.Is(err, service.ErrUnknownDevice):
		writeOK(w, statusResponse{Status: statusUnknownDevice})
	case errors.Is(err, service.ErrUnknownTOTPUser):
		writeOK(w, statusResponse{Status: statusUnknownUserID})
	default:
		writeError(w, r, err)
	}
}

type createDeviceRequest struct {
	UserID     string `json:"userId"`
	DeviceName string `json:"deviceName"`
	Skew       int    `json:"skew"`
	Period     int    `json:"period"`
}

// HandleCreateDevice handles POST /recipe/totp/device.
func (h *TOTPHandler) HandleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if !decode(w, r, &req) {
		return
	}
	created, err := h.TOTPService.CreateDevice(r.Context(), req.UserID, req.DeviceName, req.Period, req.Skew)
	if err != nil {
		writeTOTPError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status       string `json:"status"`
		DeviceName   string `json:"deviceName"`
		Secret       string `json:"secret"`
		QRCodeString string `json:"qrCodeString"`
	}{StatusOK, created.Device.Name, created.Secret, created.URL})
}

type verifyDeviceRequest struct {
	UserID     string `json:"userId"`
	DeviceName string `json:"deviceName"`
	TOTP       string `json:"totp"`
}

// HandleVerifyDevice handles POST /{tenant}/recipe/totp/device/verify.
func (h *TOTPHandler) HandleVerifyDevice(w http.ResponseWriter, r *http.Request) {
	var req verifyDeviceRequest
	if !decode(w, r, &req) {
		return
	}
	already, err := h.TOTPService.VerifyDevice(r.Context(), tenantID(r), req.UserID, req.DeviceName, req.TOTP)
	if err != nil {
		writeTOTPError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status             string `json:"status"`
		WasAlreadyVerified bool   `json:"wasAlreadyVerified"`
	}{StatusOK, already})
}

type verifyCodeRequest struct {
	UserID string `json:"userId"`
	TOTP   string `json:"totp"`
}

// HandleVerifyCode handles POST /{tenant}/recipe/totp/verify.
func (h *TOTPHandler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.TOTPService.VerifyCode(r.Context(), tenantID(r), req.UserID, req.TOTP); err != nil {
		writeTOTPError(w, r, err)
		return
	}
	writeOK(w, statusResponse{Status: StatusOK})
}

type deviceJSON struct {
	Name     string `json:"name"`
	Period   int    `json:"period"`
	Skew     int    `json:"skew"`
	Verified bool   `json:"verified"`
}

// HandleListDevices handles GET /recipe/totp/device/list?userId=.
func (h *TOTPHandler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.TOTPService.ListDevices(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]deviceJSON, len(devices))
	for i, d := range devices {
		out[i] = deviceJSON{Name: d.Name, Period: d.Period, Skew: d.Skew, Verified: d.Verified}
	}
	writeOK(w, struct {
		Status  string       `json:"status"`
		Devices []deviceJSON `json:"devices"`
	}{StatusOK, out})
}

type removeDeviceRequest struct {
	UserID     string `json:"userId"`
	DeviceName string `json:"deviceName"`
}

// HandleRemoveDevice handles POST /recipe/totp/device/remove.
func (h *TOTPHandler) HandleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	var req removeDeviceRequest
	if !decode(w, r, &req) {
		return
	}
	existed, err := h.TOTPService.RemoveDevice(r.Context(), req.UserID, req.DeviceName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status         string `json:"status"`
		DidDeviceExist bool   `json:"didDeviceExist"`
	}{StatusOK, existed})
}

type renameDeviceRequest struct {
	UserID             string `json:"userId"`
	ExistingDeviceName string `json:"existingDeviceName"`
	NewDeviceName      string `json:"newDeviceName"`
}

// HandleRenameDevice handles PUT /recipe/totp/device.
func (h *TOTPHandler) HandleRenameDevice(w http.ResponseWriter, r *http.Request) {
	var req renameDeviceRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.TOTPService.RenameDevice(r.Context(), req.UserID, req.ExistingDeviceName, req.NewDeviceName); err != nil {
		writeTOTPError(w, r, err)
		return
	}
	writeOK(w, statusResponse{Status: StatusOK})
}
