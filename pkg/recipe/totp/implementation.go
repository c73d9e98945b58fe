package totp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aussiebroadwan/tabsession/pkg/querier"
)

type coreResponse struct {
	Status                        string `json:"status"`
	CurrentNumberOfFailedAttempts int    `json:"currentNumberOfFailedAttempts"`
	MaxNumberOfFailedAttempts     int    `json:"maxNumberOfFailedAttempts"`
	RetryAfterMs                  int64  `json:"retryAfterMs"`
}

// check maps a core status to an error.
func (c coreResponse) check(op string) error {
	switch c.Status {
	case "OK":
		return nil
	case "INVALID_TOTP_ERROR":
		return &InvalidTOTPError{
			CurrentNumberOfFailedAttempts: c.CurrentNumberOfFailedAttempts,
			MaxNumberOfFailedAttempts:     c.MaxNumberOfFailedAttempts,
		}
	case "LIMIT_REACHED_ERROR":
		return &LimitReachedError{RetryAfterMs: c.RetryAfterMs}
	case "DEVICE_ALREADY_EXISTS_ERROR":
		return ErrDeviceAlreadyExists
	case "UNKNOWN_DEVICE_ERROR":
		return ErrUnknownDevice
	case "UNKNOWN_USER_ID_ERROR":
		return ErrUnknownUser
	default:
		return fmt.Errorf("totp: %s: unexpected status %q", op, c.Status)
	}
}

func makeRecipeImplementation(q querier.Querier) func(self *RecipeInterface) RecipeInterface {
	return func(self *RecipeInterface) RecipeInterface {
		return RecipeInterface{
			CreateDevice: func(ctx context.Context, userID, deviceName string, skew, period int) (*CreatedDevice, error) {
				var resp struct {
					coreResponse
					DeviceName   string `json:"deviceName"`
					Secret       string `json:"secret"`
					QRCodeString string `json:"qrCodeString"`
				}
				err := q.SendPostRequest(ctx, "/recipe/totp/device", map[string]any{
					"userId":     userID,
					"deviceName": deviceName,
					"skew":       skew,
					"period":     period,
				}, &resp)
				if err != nil {
					return nil, err
				}
				if err := resp.check("create device"); err != nil {
					return nil, err
				}
				return &CreatedDevice{DeviceName: resp.DeviceName, Secret: resp.Secret, QRCodeString: resp.QRCodeString}, nil
			},

			VerifyDevice: func(ctx context.Context, tenantID, userID, deviceName, code string) (bool, error) {
				var resp struct {
					coreResponse
					WasAlreadyVerified bool `json:"wasAlreadyVerified"`
				}
				err := q.SendPostRequest(ctx, querier.TenantPath(tenantID, "/recipe/totp/device/verify"), map[string]any{
					"userId":     userID,
					"deviceName": deviceName,
					"totp":       code,
				}, &resp)
				if err != nil {
					return false, err
				}
				return resp.WasAlreadyVerified, resp.check("verify device")
			},

			VerifyTOTP: func(ctx context.Context, tenantID, userID, code string) error {
				var resp coreResponse
				err := q.SendPostRequest(ctx, querier.TenantPath(tenantID, "/recipe/totp/verify"), map[string]any{
					"userId": userID,
					"totp":   code,
				}, &resp)
				if err != nil {
					return err
				}
				return resp.check("verify totp")
			},

			ListDevices: func(ctx context.Context, userID string) ([]Device, error) {
				var resp struct {
					coreResponse
					Devices []struct {
						Name     string `json:"name"`
						Period   int    `json:"period"`
						Skew     int    `json:"skew"`
						Verified bool   `json:"verified"`
					} `json:"devices"`
				}
				if err := q.SendGetRequest(ctx, "/recipe/totp/device/list", url.Values{"userId": {userID}}, &resp); err != nil {
					return nil, err
				}
				if err := resp.check("list devices"); err != nil {
					return nil, err
				}
				out := make([]Device, len(resp.Devices))
				for i, d := range resp.Devices {
					out[i] = Device{Name: d.Name, Period: d.Period, Skew: d.Skew, Verified: d.Verified}
				}
				return out, nil
			},

			RemoveDevice: func(ctx context.Context, userID, deviceName string) (bool, error) {
				var resp struct {
					coreResponse
					DidDeviceExist bool `json:"didDeviceExist"`
				}
				err := q.SendPostRequest(ctx, "/recipe/totp/device/remove", map[string]any{
					"userId":     userID,
					"deviceName": deviceName,
				}, &resp)
				if err != nil {
					return false, err
				}
				return resp.DidDeviceExist, resp.check("remove device")
			},

			UpdateDevice: func(ctx context.Context, userID, existingDeviceName, newDeviceName string) error {
				var resp coreResponse
				err := q.SendPutRequest(ctx, "/recipe/totp/device", map[string]any{
					"userId":             userID,
					"existingDeviceName": existingDeviceName,
					"newDeviceName":      newDeviceName,
				}, &resp)
				if err != nil {
					return err
				}
				return resp.check("update device")
			},
		}
	}
}
