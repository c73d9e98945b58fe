package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/override"
	"github.com/aussiebroadwan/tabsession/pkg/plugin"
)

// RecipeID is the id plugins key session overrides under.
const RecipeID = "session"

// TransferMethod is how tokens travel between client and API.
type TransferMethod string

const (
	TransferHeader TransferMethod = "header"
	TransferCookie TransferMethod = "cookie"
	// TransferAny lets the request decide: header when it carries an
	// Authorization bearer token or asks for header auth, cookie otherwise.
	TransferAny TransferMethod = "any"
)

// AntiCsrf modes.
const (
	AntiCsrfViaToken        = "VIA_TOKEN"
	AntiCsrfViaCustomHeader = "VIA_CUSTOM_HEADER"
	AntiCsrfNone            = "NONE"
)

// Overrides are the user's layers, applied after every plugin layer.
type Overrides struct {
	Functions override.Layer[RecipeInterface]
	APIs      override.Layer[APIInterface]
}

// Config configures the session recipe. Zero values take defaults.
type Config struct {
	// APIBasePath prefixes the recipe routes. Defaults to /auth.
	APIBasePath string
	// APIDomain is used to decide whether cookies must be Secure.
	APIDomain string

	CookieDomain string
	// CookieSameSite is lax, strict or none. Defaults to lax.
	CookieSameSite string
	// CookieSecure defaults to true when APIDomain is https.
	CookieSecure *bool

	// SessionExpiredStatusCode defaults to 401.
	SessionExpiredStatusCode int
	// InvalidClaimStatusCode defaults to 403.
	InvalidClaimStatusCode int

	// AntiCsrf defaults to VIA_CUSTOM_HEADER for SameSite=none cookies and
	// NONE otherwise.
	AntiCsrf string

	// GetTokenTransferMethod picks the transfer method per request.
	// Defaults to TransferAny.
	GetTokenTransferMethod func(req framework.Request, forCreateNewSession bool) TransferMethod

	// ExposeAccessTokenToFrontendInCookieBasedAuth also sends the access
	// token in a response header when cookies carry it.
	ExposeAccessTokenToFrontendInCookieBasedAuth bool

	// JWKSMinRefreshInterval throttles refetches of the core's keys.
	JWKSMinRefreshInterval time.Duration

	// CheckDatabase makes every GetSession ask the core whether the session
	// still exists, so revoked sessions fail before their access token
	// expires. Defaults to true; false verifies tokens locally unless a
	// call sets VerifySessionOptions.CheckDatabase.
	CheckDatabase *bool

	ErrorHandlers ErrorHandlers
	Override      Overrides

	// Now is the clock used for token expiry. Defaults to time.Now.
	Now func() time.Time
}

type normalisedConfig struct {
	refreshTokenPath string
	signOutPath      string

	cookieDomain   string
	cookieSameSite http.SameSite
	cookieSecure   bool

	sessionExpiredStatusCode int
	invalidClaimStatusCode   int

	antiCsrf string

	getTokenTransferMethod                       func(req framework.Request, forCreateNewSession bool) TransferMethod
	exposeAccessTokenToFrontendInCookieBasedAuth bool
	jwksMinRefreshInterval                       time.Duration
	checkDatabase                                bool

	errorHandlers ErrorHandlers
	override      Overrides
	now           func() time.Time
}

// validateAndNormalise fills defaults and rejects contradictory settings.
func validateAndNormalise(cfg Config) (*normalisedConfig, error) {
	basePath := "/" + strings.Trim(cfg.APIBasePath, "/")
	if cfg.APIBasePath == "" {
		basePath = "/auth"
	}
	basePath = strings.TrimRight(basePath, "/")

	n := &normalisedConfig{
		refreshTokenPath:         basePath + "/session/refresh",
		signOutPath:              basePath + "/signout",
		cookieDomain:             normaliseCookieDomain(cfg.CookieDomain),
		sessionExpiredStatusCode: cfg.SessionExpiredStatusCode,
		invalidClaimStatusCode:   cfg.InvalidClaimStatusCode,
		getTokenTransferMethod:   cfg.GetTokenTransferMethod,
		exposeAccessTokenToFrontendInCookieBasedAuth: cfg.ExposeAccessTokenToFrontendInCookieBasedAuth,
		jwksMinRefreshInterval:                       cfg.JWKSMinRefreshInterval,
		errorHandlers:                                cfg.ErrorHandlers,
		override:                                     cfg.Override,
		now:                                          cfg.Now,
	}

	switch strings.ToLower(cfg.CookieSameSite) {
	case "", "lax":
		n.cookieSameSite = http.SameSiteLaxMode
	case "strict":
		n.cookieSameSite = http.SameSiteStrictMode
	case "none":
		n.cookieSameSite = http.SameSiteNoneMode
	default:
		return nil, plugin.NewConfigError("session: cookieSameSite must be lax, strict or none, got %q", cfg.CookieSameSite)
	}

	n.cookieSecure = strings.HasPrefix(strings.ToLower(cfg.APIDomain), "https://")
	if cfg.CookieSecure != nil {
		n.cookieSecure = *cfg.CookieSecure
	}
	if n.cookieSameSite == http.SameSiteNoneMode && !n.cookieSecure {
		return nil, plugin.NewConfigError("session: cookieSameSite none requires secure cookies")
	}

	switch cfg.AntiCsrf {
	case "":
		n.antiCsrf = AntiCsrfNone
		if n.cookieSameSite == http.SameSiteNoneMode {
			n.antiCsrf = AntiCsrfViaCustomHeader
		}
	case AntiCsrfViaToken, AntiCsrfViaCustomHeader, AntiCsrfNone:
		n.antiCsrf = cfg.AntiCsrf
	default:
		return nil, plugin.NewConfigError("session: antiCsrf must be VIA_TOKEN, VIA_CUSTOM_HEADER or NONE, got %q", cfg.AntiCsrf)
	}

	if n.sessionExpiredStatusCode == 0 {
		n.sessionExpiredStatusCode = http.StatusUnauthorized
	}
	if n.invalidClaimStatusCode == 0 {
		n.invalidClaimStatusCode = http.StatusForbidden
	}
	if n.sessionExpiredStatusCode == n.invalidClaimStatusCode {
		return nil, plugin.NewConfigError("session: sessionExpiredStatusCode and invalidClaimStatusCode must differ")
	}

	if n.getTokenTransferMethod == nil {
		n.getTokenTransferMethod = func(framework.Request, bool) TransferMethod { return TransferAny }
	}
	if n.jwksMinRefreshInterval <= 0 {
		n.jwksMinRefreshInterval = 30 * time.Second
	}
	if n.now == nil {
		n.now = time.Now
	}
	n.checkDatabase = cfg.CheckDatabase == nil || *cfg.CheckDatabase
	return n, nil
}

func normaliseCookieDomain(d string) string {
	d = strings.TrimSpace(strings.ToLower(d))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if host, _, ok := strings.Cut(d, "/"); ok {
		d = host
	}
	return d
}
