// Package totp manages time-based one-time password devices at the core and
// records successful verification in the session as the st-totp claim.
package totp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/override"
	"github.com/aussiebroadwan/tabsession/pkg/plugin"
	"github.com/aussiebroadwan/tabsession/pkg/sdk"
)

// RecipeID is the id plugins key TOTP overrides under.
const RecipeID = "totp"

var (
	ErrDeviceAlreadyExists = errors.New("totp: device already exists")
	ErrUnknownDevice       = errors.New("totp: unknown device")
	ErrUnknownUser         = errors.New("totp: user has no devices")
)

// InvalidTOTPError is a wrong or replayed code.
type InvalidTOTPError struct {
	CurrentNumberOfFailedAttempts int
	MaxNumberOfFailedAttempts     int
}

func (e *InvalidTOTPError) Error() string {
	return fmt.Sprintf("totp: invalid code (%d/%d failed attempts)", e.CurrentNumberOfFailedAttempts, e.MaxNumberOfFailedAttempts)
}

// LimitReachedError means the user must wait before trying another code.
type LimitReachedError struct {
	RetryAfterMs int64
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("totp: too many attempts, retry after %dms", e.RetryAfterMs)
}

// Device is a registered authenticator.
type Device struct {
	Name     string
	Period   int
	Skew     int
	Verified bool
}

// CreatedDevice is returned once, when the secret is still visible.
type CreatedDevice struct {
	DeviceName   string
	Secret       string
	QRCodeString string
}

// Overrides are the user's layers, applied after every plugin layer.
type Overrides struct {
	Functions override.Layer[RecipeInterface]
	APIs      override.Layer[APIInterface]
}

// Config configures the recipe.
type Config struct {
	// DefaultSkew and DefaultPeriod apply to devices created without them.
	DefaultSkew   int
	DefaultPeriod int
	// RequireVerifiedWithinSeconds, when set, makes every session require a
	// TOTP check within that many seconds.
	RequireVerifiedWithinSeconds int64

	Override Overrides
	Now      claims.Clock
}

// RecipeInterface is the recipe's overridable implementation.
type RecipeInterface struct {
	CreateDevice func(ctx context.Context, userID, deviceName string, skew, period int) (*CreatedDevice, error)
	// VerifyDevice checks a code against an unverified device and marks it
	// verified.
	VerifyDevice func(ctx context.Context, tenantID, userID, deviceName, code string) (wasAlreadyVerified bool, err error)
	// VerifyTOTP checks a code against every verified device of the user.
	VerifyTOTP   func(ctx context.Context, tenantID, userID, code string) error
	ListDevices  func(ctx context.Context, userID string) ([]Device, error)
	RemoveDevice func(ctx context.Context, userID, deviceName string) (existed bool, err error)
	UpdateDevice func(ctx context.Context, userID, existingDeviceName, newDeviceName string) error
}

// APIInterface holds the recipe's HTTP APIs. A nil field disables its route.
type APIInterface struct {
	CreateDevicePOST framework.Handler
	ListDevicesGET   framework.Handler
	RemoveDevicePOST framework.Handler
	VerifyDevicePOST framework.Handler
	VerifyTOTPPOST   framework.Handler
}

// Recipe is the TOTP recipe of one application.
type Recipe struct {
	app   *sdk.App
	cfg   Config
	impl  *RecipeInterface
	api   *APIInterface
	claim *Claim
}

// Init returns the recipe's init func.
func Init(cfg Config) sdk.RecipeInitFunc {
	return func(app *sdk.App) (sdk.Recipe, error) {
		return New(app, cfg)
	}
}

// New builds the recipe. The st-totp claim is only written by successful
// verification, so nothing is added to new sessions.
func New(app *sdk.App, cfg Config) (*Recipe, error) {
	if cfg.DefaultSkew < 0 || cfg.RequireVerifiedWithinSeconds < 0 {
		return nil, plugin.NewConfigError("totp: DefaultSkew and RequireVerifiedWithinSeconds must not be negative")
	}
	if cfg.DefaultSkew == 0 {
		cfg.DefaultSkew = 1
	}
	if cfg.DefaultPeriod == 0 {
		cfg.DefaultPeriod = 30
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := &Recipe{app: app, cfg: cfg, claim: newClaim(cfg.Now)}

	fb := override.New(makeRecipeImplementation(app.Querier()))
	ab := override.New(makeAPIImplementation(r))
	for _, l := range append(plugin.LayersOf[Overrides](app.PluginOverrides(RecipeID)), cfg.Override) {
		fb.Override(l.Functions)
		ab.Override(l.APIs)
	}
	r.impl = fb.Build()
	r.api = ab.Build()

	err := app.AddPostInitCallback(func() error {
		s := app.Session()
		if s == nil {
			return plugin.NewConfigError("totp: the session recipe is required")
		}
		if cfg.RequireVerifiedWithinSeconds > 0 {
			return s.AddClaimValidatorFromOtherRecipe(r.claim.VerifiedWithin(cfg.RequireVerifiedWithinSeconds))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recipe) ID() string { return RecipeID }

// Functions returns the composed RecipeInterface.
func (r *Recipe) Functions() *RecipeInterface { return r.impl }

// Claim returns the st-totp claim.
func (r *Recipe) Claim() *Claim { return r.claim }

// Routes lists the enabled HTTP routes.
func (r *Recipe) Routes() []plugin.RouteHandler {
	base := r.app.AppInfo().APIBasePath
	candidates := []plugin.RouteHandler{
		{Method: http.MethodPost, Path: base + "/totp/device", Handler: r.api.CreateDevicePOST},
		{Method: http.MethodGet, Path: base + "/totp/device/list", Handler: r.api.ListDevicesGET},
		{Method: http.MethodPost, Path: base + "/totp/device/remove", Handler: r.api.RemoveDevicePOST},
		{Method: http.MethodPost, Path: base + "/totp/device/verify", Handler: r.api.VerifyDevicePOST},
		{Method: http.MethodPost, Path: base + "/totp/verify", Handler: r.api.VerifyTOTPPOST},
	}
	var routes []plugin.RouteHandler
	for _, c := range candidates {
		if c.Handler != nil {
			routes = append(routes, c)
		}
	}
	return routes
}
