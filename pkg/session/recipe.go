// Package session issues, verifies, refreshes and revokes sessions against
// the authentication core, and runs claim validation for every verified
// session.
//
// Access tokens are verified locally with the core's published keys. The
// core is consulted when a token still carries its parent refresh hash,
// when a caller asks for a database check, and for every mutation.
package session

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/override"
	"github.com/aussiebroadwan/tabsession/pkg/plugin"
	"github.com/aussiebroadwan/tabsession/pkg/querier"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// JWKSPath is where the core publishes its verification keys.
const JWKSPath = "/.well-known/jwks.json"

// Recipe is the session recipe of one application.
type Recipe struct {
	cfg      *normalisedConfig
	impl     *RecipeInterface
	api      *APIInterface
	keys     *jwtx.RemoteKeySet
	registry *claimRegistry
}

// New builds the recipe. pluginLayers are the values plugins contributed
// under RecipeID; values of type Overrides are applied in order, then the
// user's own cfg.Override.
func New(q querier.Querier, cfg Config, pluginLayers ...any) (*Recipe, error) {
	n, err := validateAndNormalise(cfg)
	if err != nil {
		return nil, err
	}

	keys := jwtx.NewRemoteKeySet(func(ctx context.Context) (jwtx.JWKS, error) {
		var jwks jwtx.JWKS
		err := q.SendGetRequest(ctx, JWKSPath, nil, &jwks)
		return jwks, err
	}, jwtx.RemoteKeySetOptions{MinRefreshInterval: n.jwksMinRefreshInterval})

	r := &Recipe{cfg: n, keys: keys, registry: &claimRegistry{}}

	layers := append(plugin.LayersOf[Overrides](pluginLayers), n.override)

	fb := override.New(makeRecipeImplementation(q, n, keys))
	ab := override.New(makeAPIImplementation(r))
	for _, l := range layers {
		fb.Override(l.Functions)
		ab.Override(l.APIs)
	}
	r.impl = fb.Build()
	r.api = ab.Build()
	return r, nil
}

// ID implements the application's recipe contract.
func (r *Recipe) ID() string { return RecipeID }

// Functions returns the composed RecipeInterface.
func (r *Recipe) Functions() *RecipeInterface { return r.impl }

// APIs returns the composed APIInterface.
func (r *Recipe) APIs() *APIInterface { return r.api }

// Routes lists the enabled HTTP routes.
func (r *Recipe) Routes() []plugin.RouteHandler {
	var routes []plugin.RouteHandler
	if r.api.RefreshPOST != nil {
		routes = append(routes, plugin.RouteHandler{Method: http.MethodPost, Path: r.cfg.refreshTokenPath, Handler: r.api.RefreshPOST})
	}
	if r.api.SignOutPOST != nil {
		routes = append(routes, plugin.RouteHandler{Method: http.MethodPost, Path: r.cfg.signOutPath, Handler: r.api.SignOutPOST})
	}
	return routes
}

// CreateNewSession starts a session for userID, adds every registered
// claim to payload and writes the tokens to res.
func (r *Recipe) CreateNewSession(req framework.Request, res framework.Response, tenantID, userID string, payload claims.Payload, data map[string]any) (SessionContainer, error) {
	ctx := req.Context()
	transfer := r.cfg.transferForCreate(req)

	s, err := r.createNewSession(ctx, tenantID, userID, payload, data, transfer == TransferHeader)
	if err != nil {
		return nil, err
	}

	// Tokens left over from the other transfer method would shadow the new
	// ones on the next request.
	other := TransferHeader
	if transfer == TransferHeader {
		other = TransferCookie
	}
	if tok, _ := readToken(req, other, accessTokenCookieName); tok != "" {
		r.cfg.clearTokens(res, other)
	}

	if c, ok := s.(*container); ok {
		c.attach(res, transfer)
		c.writeTokens()
	}
	return s, nil
}

// CreateNewSessionWithoutRequestResponse is CreateNewSession for callers
// that deliver the tokens themselves.
func (r *Recipe) CreateNewSessionWithoutRequestResponse(ctx context.Context, tenantID, userID string, payload claims.Payload, data map[string]any, disableAntiCsrf bool) (SessionContainer, error) {
	return r.createNewSession(ctx, tenantID, userID, payload, data, disableAntiCsrf)
}

func (r *Recipe) createNewSession(ctx context.Context, tenantID, userID string, payload claims.Payload, data map[string]any, disableAntiCsrf bool) (SessionContainer, error) {
	if tenantID == "" {
		tenantID = querier.DefaultTenantID
	}
	full, err := r.fetchClaimsForNewSession(ctx, userID, userID, tenantID, payload)
	if err != nil {
		return nil, err
	}
	s, err := r.impl.CreateNewSession(ctx, CreateSessionInput{
		UserID:                userID,
		RecipeUserID:          userID,
		TenantID:              tenantID,
		AccessTokenPayload:    full,
		SessionDataInDatabase: data,
		DisableAntiCsrf:       disableAntiCsrf,
	})
	if err != nil {
		return nil, err
	}
	slogx.FromContext(ctx).Debug("session created", "session_handle", s.GetHandle(), "user_id", userID)
	return s, nil
}

// GetSession verifies the request's access token, runs the required claim
// validators and returns the session. With SessionRequired=false a missing
// or unusable session yields nil, nil.
func (r *Recipe) GetSession(req framework.Request, res framework.Response, opts VerifySessionOptions) (SessionContainer, error) {
	ctx := req.Context()
	allowed := r.cfg.getTokenTransferMethod(req, false)
	token, from := readToken(req, allowed, accessTokenCookieName)

	if token == "" {
		if !opts.sessionRequired() {
			return nil, nil
		}
		return nil, unauthorised(false, "session does not exist")
	}

	doCsrf := req.GetMethod() != http.MethodGet
	if opts.AntiCsrfCheck != nil {
		doCsrf = *opts.AntiCsrfCheck
	}
	// Tokens sent in a header cannot be attached by a forged cross-site
	// request, so only cookies need the check.
	doCsrf = doCsrf && from == TransferCookie

	if doCsrf && r.cfg.antiCsrf == AntiCsrfViaCustomHeader && req.GetHeaderValue(ridHeaderName) == "" {
		return r.softFail(opts, tryRefresh("anti-csrf check failed, send a rid header"))
	}

	s, err := r.impl.GetSession(ctx, GetSessionInput{
		AccessToken:   token,
		AntiCsrfToken: req.GetHeaderValue(antiCsrfHeaderName),
		AntiCsrfCheck: doCsrf && r.cfg.antiCsrf == AntiCsrfViaToken,
		CheckDatabase: opts.CheckDatabase || r.cfg.checkDatabase,
	})
	if err != nil {
		return r.softFail(opts, err)
	}

	if c, ok := s.(*container); ok {
		c.attach(res, from)
		if c.tokenUpdated {
			c.writeTokens()
		}
	}

	validators, err := r.GetRequiredClaimValidators(ctx, s, opts.OverrideGlobalClaimValidators)
	if err != nil {
		return nil, err
	}
	if err := s.AssertClaims(ctx, validators); err != nil {
		return nil, err
	}
	return s, nil
}

// softFail drops session errors that a caller with SessionRequired=false
// asked not to see.
func (r *Recipe) softFail(opts VerifySessionOptions, err error) (SessionContainer, error) {
	if !opts.sessionRequired() && (errorsIsType(err, TryRefreshToken) || errorsIsType(err, Unauthorised)) {
		return nil, nil
	}
	return nil, err
}

// GetSessionWithoutRequestResponse verifies accessToken and runs the required
// claim validators.
func (r *Recipe) GetSessionWithoutRequestResponse(ctx context.Context, accessToken, antiCsrfToken string, opts VerifySessionOptions) (SessionContainer, error) {
	if accessToken == "" {
		if !opts.sessionRequired() {
			return nil, nil
		}
		return nil, unauthorised(false, "session does not exist")
	}
	doCsrf := opts.AntiCsrfCheck != nil && *opts.AntiCsrfCheck

	s, err := r.impl.GetSession(ctx, GetSessionInput{
		AccessToken:   accessToken,
		AntiCsrfToken: antiCsrfToken,
		AntiCsrfCheck: doCsrf && r.cfg.antiCsrf == AntiCsrfViaToken,
		CheckDatabase: opts.CheckDatabase || r.cfg.checkDatabase,
	})
	if err != nil {
		return r.softFail(opts, err)
	}

	validators, err := r.GetRequiredClaimValidators(ctx, s, opts.OverrideGlobalClaimValidators)
	if err != nil {
		return nil, err
	}
	if err := s.AssertClaims(ctx, validators); err != nil {
		return nil, err
	}
	return s, nil
}

// RefreshSession rotates the request's refresh token and writes the new
// tokens to res. UNAUTHORISED and TOKEN_THEFT_DETECTED errors ask the
// error handler to clear the client's tokens.
func (r *Recipe) RefreshSession(req framework.Request, res framework.Response) (SessionContainer, error) {
	allowed := r.cfg.getTokenTransferMethod(req, false)
	token, from := readToken(req, allowed, refreshTokenCookieName)
	if token == "" {
		return nil, unauthorised(false, "refresh token not found, are you sending it to the right path?")
	}

	if from == TransferCookie && r.cfg.antiCsrf == AntiCsrfViaCustomHeader && req.GetHeaderValue(ridHeaderName) == "" {
		return nil, unauthorised(false, "anti-csrf check failed, send a rid header")
	}

	var csrf string
	if from == TransferCookie && r.cfg.antiCsrf == AntiCsrfViaToken {
		csrf = req.GetHeaderValue(antiCsrfHeaderName)
	}

	s, err := r.impl.RefreshSession(req.Context(), RefreshSessionInput{
		RefreshToken:    token,
		AntiCsrfToken:   csrf,
		DisableAntiCsrf: from == TransferHeader,
	})
	if err != nil {
		return nil, err
	}

	if c, ok := s.(*container); ok {
		c.attach(res, from)
		c.writeTokens()
	}
	return s, nil
}

// RefreshSessionWithoutRequestResponse rotates refreshToken.
func (r *Recipe) RefreshSessionWithoutRequestResponse(ctx context.Context, refreshToken, antiCsrfToken string, disableAntiCsrf bool) (SessionContainer, error) {
	return r.impl.RefreshSession(ctx, RefreshSessionInput{
		RefreshToken:    refreshToken,
		AntiCsrfToken:   antiCsrfToken,
		DisableAntiCsrf: disableAntiCsrf,
	})
}

// Keys is the core key set the recipe verifies against.
func (r *Recipe) Keys() jwtx.KeyLookup { return r.keys }
