package totp

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/sdk"
	"github.com/aussiebroadwan/tabsession/pkg/session"
)

// withoutTOTP drops st-totp validators so a user can complete the check the
// validators demand.
func withoutTOTP(_ context.Context, global []*claims.Validator, _ session.SessionContainer) ([]*claims.Validator, error) {
	out := make([]*claims.Validator, 0, len(global))
	for _, v := range global {
		if v.ID != ClaimKey {
			out = append(out, v)
		}
	}
	return out, nil
}

// writeResult sends the status for err, or returns err when it is not a
// TOTP outcome the client can act on.
func writeResult(res framework.Response, err error, ok map[string]any) error {
	var invalid *InvalidTOTPError
	var limit *LimitReachedError
	switch {
	case err == nil:
		ok["status"] = "OK"
		return res.SendJSONResponse(ok)
	case errors.As(err, &invalid):
		return res.SendJSONResponse(map[string]any{
			"status":                        "INVALID_TOTP_ERROR",
			"currentNumberOfFailedAttempts": invalid.CurrentNumberOfFailedAttempts,
			"maxNumberOfFailedAttempts":     invalid.MaxNumberOfFailedAttempts,
		})
	case errors.As(err, &limit):
		return res.SendJSONResponse(map[string]any{"status": "LIMIT_REACHED_ERROR", "retryAfterMs": limit.RetryAfterMs})
	case errors.Is(err, ErrDeviceAlreadyExists):
		return res.SendJSONResponse(map[string]any{"status": "DEVICE_ALREADY_EXISTS_ERROR"})
	case errors.Is(err, ErrUnknownDevice):
		return res.SendJSONResponse(map[string]any{"status": "UNKNOWN_DEVICE_ERROR"})
	case errors.Is(err, ErrUnknownUser):
		return res.SendJSONResponse(map[string]any{"status": "UNKNOWN_USER_ID_ERROR"})
	default:
		return err
	}
}

func stringField(body map[string]any, key string) (string, error) {
	v, _ := body[key].(string)
	if v == "" {
		return "", sdk.NewBadInputError("%s is required", key)
	}
	return v, nil
}

func makeAPIImplementation(r *Recipe) func(self *APIInterface) APIInterface {
	return func(self *APIInterface) APIInterface {
		required := true
		getSession := func(req framework.Request, res framework.Response) (session.SessionContainer, error) {
			return r.app.Session().APIs().VerifySession(req, res, session.VerifySessionOptions{
				SessionRequired:               &required,
				OverrideGlobalClaimValidators: withoutTOTP,
			})
		}

		// markVerified stamps the session after a successful check.
		markVerified := func(ctx context.Context, s session.SessionContainer) error {
			return s.SetClaimValue(ctx, r.claim, r.cfg.Now().UnixMilli())
		}

		return APIInterface{
			CreateDevicePOST: func(req framework.Request, res framework.Response) error {
				s, err := getSession(req, res)
				if err != nil {
					return err
				}
				body, err := req.GetJSONBody()
				if err != nil {
					return sdk.NewBadInputError("invalid JSON body")
				}
				name, _ := body["deviceName"].(string)
				if name == "" {
					name = "TOTP Device"
				}
				d, err := r.impl.CreateDevice(req.Context(), s.GetUserID(), name, r.cfg.DefaultSkew, r.cfg.DefaultPeriod)
				if err != nil {
					return writeResult(res, err, nil)
				}
				return writeResult(res, nil, map[string]any{
					"deviceName":   d.DeviceName,
					"secret":       d.Secret,
					"qrCodeString": d.QRCodeString,
				})
			},

			ListDevicesGET: func(req framework.Request, res framework.Response) error {
				s, err := getSession(req, res)
				if err != nil {
					return err
				}
				devices, err := r.impl.ListDevices(req.Context(), s.GetUserID())
				if err != nil {
					return err
				}
				out := make([]map[string]any, len(devices))
				for i, d := range devices {
					out[i] = map[string]any{"name": d.Name, "period": d.Period, "skew": d.Skew, "verified": d.Verified}
				}
				return writeResult(res, nil, map[string]any{"devices": out})
			},

			RemoveDevicePOST: func(req framework.Request, res framework.Response) error {
				s, err := getSession(req, res)
				if err != nil {
					return err
				}
				body, err := req.GetJSONBody()
				if err != nil {
					return sdk.NewBadInputError("invalid JSON body")
				}
				name, err := stringField(body, "deviceName")
				if err != nil {
					return err
				}
				existed, err := r.impl.RemoveDevice(req.Context(), s.GetUserID(), name)
				if err != nil {
					return err
				}
				return writeResult(res, nil, map[string]any{"didDeviceExist": existed})
			},

			VerifyDevicePOST: func(req framework.Request, res framework.Response) error {
				ctx := req.Context()
				s, err := getSession(req, res)
				if err != nil {
					return err
				}
				body, err := req.GetJSONBody()
				if err != nil {
					return sdk.NewBadInputError("invalid JSON body")
				}
				name, err := stringField(body, "deviceName")
				if err != nil {
					return err
				}
				code, err := stringField(body, "totp")
				if err != nil {
					return err
				}
				already, err := r.impl.VerifyDevice(ctx, s.GetTenantID(), s.GetUserID(), name, code)
				if err != nil {
					return writeResult(res, err, nil)
				}
				if err := markVerified(ctx, s); err != nil {
					return err
				}
				return writeResult(res, nil, map[string]any{"wasAlreadyVerified": already})
			},

			VerifyTOTPPOST: func(req framework.Request, res framework.Response) error {
				ctx := req.Context()
				s, err := getSession(req, res)
				if err != nil {
					return err
				}
				body, err := req.GetJSONBody()
				if err != nil {
					return sdk.NewBadInputError("invalid JSON body")
				}
				code, err := stringField(body, "totp")
				if err != nil {
					return err
				}
				if err := r.impl.VerifyTOTP(ctx, s.GetTenantID(), s.GetUserID(), code); err != nil {
					return writeResult(res, err, nil)
				}
				if err := markVerified(ctx, s); err != nil {
					return err
				}
				return writeResult(res, nil, map[string]any{})
			},
		}
	}
}
