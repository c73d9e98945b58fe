package session

import (
	"errors"

	"github.com/aussiebroadwan/tabsession/pkg/framework"
)

// ErrorHandlers render session errors. Each may be replaced; nil fields
// take the defaults, which respond with the configured status codes.
type ErrorHandlers struct {
	OnUnauthorised       func(message string, req framework.Request, res framework.Response) error
	OnTryRefreshToken    func(message string, req framework.Request, res framework.Response) error
	OnTokenTheftDetected func(theft TheftPayload, req framework.Request, res framework.Response) error
	OnInvalidClaim       func(errs []ClaimValidationError, req framework.Request, res framework.Response) error
}

func sendMessage(res framework.Response, status int, message string) error {
	res.SetStatusCode(status)
	return res.SendJSONResponse(map[string]string{"message": message})
}

// HandleError renders err if it is a session error and reports whether it
// did. TOKEN_THEFT_DETECTED revokes the session before responding.
func (r *Recipe) HandleError(err error, req framework.Request, res framework.Response) (bool, error) {
	var se *Error
	if !errors.As(err, &se) {
		return false, nil
	}
	if res.ResponseSent() {
		return true, nil
	}

	h := r.cfg.errorHandlers
	expired := r.cfg.sessionExpiredStatusCode

	switch se.Type {
	case Unauthorised:
		if se.ClearTokens {
			r.cfg.clearTokens(res, r.cfg.getTokenTransferMethod(req, false))
		}
		if h.OnUnauthorised != nil {
			return true, h.OnUnauthorised(se.Message, req, res)
		}
		return true, sendMessage(res, expired, "unauthorised")

	case TryRefreshToken:
		if h.OnTryRefreshToken != nil {
			return true, h.OnTryRefreshToken(se.Message, req, res)
		}
		return true, sendMessage(res, expired, "try refresh token")

	case TokenTheftDetected:
		r.cfg.clearTokens(res, r.cfg.getTokenTransferMethod(req, false))
		var theft TheftPayload
		if se.Theft != nil {
			theft = *se.Theft
			if _, err := r.impl.RevokeSession(req.Context(), theft.SessionHandle); err != nil {
				return true, err
			}
		}
		if h.OnTokenTheftDetected != nil {
			return true, h.OnTokenTheftDetected(theft, req, res)
		}
		return true, sendMessage(res, expired, "token theft detected")

	case InvalidClaims:
		if h.OnInvalidClaim != nil {
			return true, h.OnInvalidClaim(se.ClaimValidationErrors, req, res)
		}
		res.SetStatusCode(r.cfg.invalidClaimStatusCode)
		return true, res.SendJSONResponse(map[string]any{
			"message":               "invalid claim",
			"claimValidationErrors": se.ClaimValidationErrors,
		})
	}
	return false, nil
}
