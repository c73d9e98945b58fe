// Package emailverification tracks whether a user's email is verified and
// exposes it to sessions as the st-ev claim.
package emailverification

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/override"
	"github.com/aussiebroadwan/tabsession/pkg/plugin"
	"github.com/aussiebroadwan/tabsession/pkg/querier"
	"github.com/aussiebroadwan/tabsession/pkg/sdk"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// RecipeID is the id plugins key email verification overrides under.
const RecipeID = "emailverification"

// Modes.
const (
	// ModeRequired makes every session require a verified email.
	ModeRequired = "REQUIRED"
	// ModeOptional only keeps the claim in the payload.
	ModeOptional = "OPTIONAL"
)

var (
	ErrEmailAlreadyVerified = errors.New("emailverification: email already verified")
	ErrInvalidToken         = errors.New("emailverification: invalid or expired token")
)

// EmailInput is handed to SendEmail.
type EmailInput struct {
	TenantID   string
	UserID     string
	Email      string
	VerifyLink string
}

// Overrides are the user's layers, applied after every plugin layer.
type Overrides struct {
	Functions override.Layer[RecipeInterface]
	APIs      override.Layer[APIInterface]
}

// Config configures the recipe.
type Config struct {
	// Mode is REQUIRED or OPTIONAL.
	Mode string
	// GetEmailForUserID looks up the email to verify. ok=false means the
	// user has no email, which counts as verified.
	GetEmailForUserID func(ctx context.Context, userID, tenantID string) (email string, ok bool, err error)
	// SendEmail delivers the verification link. Defaults to logging it at
	// debug level.
	SendEmail func(ctx context.Context, in EmailInput) error
	// WebsiteBasePath prefixes the verify page in links. Defaults to /auth.
	WebsiteBasePath string

	Override Overrides
	Now      claims.Clock
}

// RecipeInterface is the recipe's overridable implementation.
type RecipeInterface struct {
	// CreateEmailVerificationToken returns ErrEmailAlreadyVerified when
	// there is nothing to verify.
	CreateEmailVerificationToken func(ctx context.Context, tenantID, userID, email string) (string, error)
	// VerifyEmailUsingToken returns ErrInvalidToken for unknown, used or
	// expired tokens.
	VerifyEmailUsingToken         func(ctx context.Context, tenantID, token string) (userID, email string, err error)
	IsEmailVerified               func(ctx context.Context, userID, email string) (bool, error)
	RevokeEmailVerificationTokens func(ctx context.Context, tenantID, userID, email string) error
	UnverifyEmail                 func(ctx context.Context, userID, email string) error
}

// APIInterface holds the recipe's HTTP APIs. A nil field disables its route.
type APIInterface struct {
	GenerateEmailVerifyTokenPOST framework.Handler
	VerifyEmailPOST              framework.Handler
	IsEmailVerifiedGET           framework.Handler
}

// Recipe is the email verification recipe of one application.
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

// New builds the recipe and queues its claim registration for post-init.
func New(app *sdk.App, cfg Config) (*Recipe, error) {
	switch cfg.Mode {
	case ModeRequired, ModeOptional:
	default:
		return nil, plugin.NewConfigError("emailverification: mode must be %s or %s", ModeRequired, ModeOptional)
	}
	if cfg.GetEmailForUserID == nil {
		return nil, plugin.NewConfigError("emailverification: GetEmailForUserID is required")
	}
	if cfg.SendEmail == nil {
		cfg.SendEmail = logEmail
	}
	if cfg.WebsiteBasePath == "" {
		cfg.WebsiteBasePath = "/auth"
	}

	r := &Recipe{app: app, cfg: cfg}

	layers := append(plugin.LayersOf[Overrides](app.PluginOverrides(RecipeID)), cfg.Override)
	fb := override.New(makeRecipeImplementation(app.Querier()))
	ab := override.New(makeAPIImplementation(r))
	for _, l := range layers {
		fb.Override(l.Functions)
		ab.Override(l.APIs)
	}
	r.impl = fb.Build()
	r.api = ab.Build()
	r.claim = newClaim(fetchVerified(&r.cfg, r.impl), cfg.Now)

	err := app.AddPostInitCallback(func() error {
		s := app.Session()
		if s == nil {
			return plugin.NewConfigError("emailverification: the session recipe is required")
		}
		if err := s.AddClaimFromOtherRecipe(r.claim); err != nil {
			return err
		}
		if cfg.Mode == ModeRequired {
			return s.AddClaimValidatorFromOtherRecipe(r.claim.IsVerified(DefaultRefetchOnFalseSeconds))
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

// Claim returns the recipe's st-ev claim.
func (r *Recipe) Claim() *Claim { return r.claim }

// Routes lists the enabled HTTP routes.
func (r *Recipe) Routes() []plugin.RouteHandler {
	base := r.app.AppInfo().APIBasePath
	var routes []plugin.RouteHandler
	if r.api.GenerateEmailVerifyTokenPOST != nil {
		routes = append(routes, plugin.RouteHandler{Method: http.MethodPost, Path: base + "/user/email/verify/token", Handler: r.api.GenerateEmailVerifyTokenPOST})
	}
	if r.api.VerifyEmailPOST != nil {
		routes = append(routes, plugin.RouteHandler{Method: http.MethodPost, Path: base + "/user/email/verify", Handler: r.api.VerifyEmailPOST})
	}
	if r.api.IsEmailVerifiedGET != nil {
		routes = append(routes, plugin.RouteHandler{Method: http.MethodGet, Path: base + "/user/email/verify", Handler: r.api.IsEmailVerifiedGET})
	}
	return routes
}

// verifyLink builds the link sent to the user.
func (r *Recipe) verifyLink(tenantID, token string) string {
	q := url.Values{"token": {token}, "tenantId": {tenantID}}
	return r.app.AppInfo().WebsiteDomain + r.cfg.WebsiteBasePath + "/verify-email?" + q.Encode()
}

// SendVerificationEmail creates a token for the user's email and delivers
// the link. It returns ErrEmailAlreadyVerified when there is nothing to do.
func (r *Recipe) SendVerificationEmail(ctx context.Context, tenantID, userID string) error {
	if tenantID == "" {
		tenantID = querier.DefaultTenantID
	}
	email, ok, err := r.cfg.GetEmailForUserID(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEmailAlreadyVerified
	}
	token, err := r.impl.CreateEmailVerificationToken(ctx, tenantID, userID, email)
	if err != nil {
		return err
	}
	return r.cfg.SendEmail(ctx, EmailInput{
		TenantID:   tenantID,
		UserID:     userID,
		Email:      email,
		VerifyLink: r.verifyLink(tenantID, token),
	})
}

func logEmail(ctx context.Context, in EmailInput) error {
	slogx.FromContext(ctx).Debug("email verification link", "user_id", in.UserID, "email", in.Email, "link", in.VerifyLink)
	return nil
}
