package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/service"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
	"github.com/aussiebroadwan/tabsession/pkg/httpx"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// APIKeyHeader carries the shared secret the SDK sends with every call.
const APIKeyHeader = "api-key"

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	apiKeys      []string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	SessionService           *service.SessionService
	EmailVerificationService *service.EmailVerificationService
	RolesService             *service.RolesService
	TOTPService              *service.TOTPService
	KeyRotationService       *service.KeyRotationService
}

// NewRouter builds a router. With no apiKeys the recipe routes are open.
func NewRouter(keys *jwtx.KeySet, apiKeys []string, buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		apiKeys:      apiKeys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}
	return r
}

// ApplyRoutes registers every route whose service is set.
func (r *Router) ApplyRoutes() {
	r.registerSessions()
	if r.EmailVerificationService != nil {
		r.registerEmailVerification()
	}
	if r.RolesService != nil {
		r.registerRoles()
	}
	if r.TOTPService != nil {
		r.registerTOTP()
	}
	if r.KeyRotationService != nil {
		r.registerKeyRotation()
	}
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// recipe protects a recipe route with the API key and a limit keyed by
// client IP and API key.
func (r *Router) recipe(h http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		httpx.RequireAPIKey(r.apiKeys...),
		httpx.RateLimitMiddleware(limit, httpx.CompositeKeyExtractor(":",
			httpx.IPKeyExtractor,
			httpx.HeaderKeyExtractor(APIKeyHeader),
		)),
	)
}

func (r *Router) registerSessions() {
	h := &SessionHandler{SessionService: r.SessionService}

	r.Mux.Handle("POST /{tenant}/recipe/session", r.recipe(h.HandleCreate, httpx.ModerateLimit))
	r.Mux.Handle("POST /recipe/session/verify", r.recipe(h.HandleVerify, httpx.LenientLimit))
	// Refresh is where stolen tokens get replayed.
	r.Mux.Handle("POST /recipe/session/refresh", r.recipe(h.HandleRefresh, httpx.StrictLimit))
	r.Mux.Handle("POST /recipe/session/remove", r.recipe(h.HandleRevoke, httpx.ModerateLimit))
	r.Mux.Handle("POST /{tenant}/recipe/session/remove", r.recipe(h.HandleRevoke, httpx.ModerateLimit))
	r.Mux.Handle("GET /{tenant}/recipe/session/user", r.recipe(h.HandleListForUser, httpx.LenientLimit))
	r.Mux.Handle("GET /recipe/session", r.recipe(h.HandleGet, httpx.LenientLimit))
	r.Mux.Handle("PUT /recipe/session/data", r.recipe(h.HandleUpdateData, httpx.ModerateLimit))
	r.Mux.Handle("PUT /recipe/jwt/data", r.recipe(h.HandleUpdateJWTData, httpx.ModerateLimit))
	r.Mux.Handle("POST /recipe/session/regenerate", r.recipe(h.HandleRegenerate, httpx.ModerateLimit))
}

func (r *Router) registerEmailVerification() {
	h := &EmailVerificationHandler{EmailVerificationService: r.EmailVerificationService}

	r.Mux.Handle("POST /{tenant}/recipe/user/email/verify/token", r.recipe(h.HandleCreateToken, httpx.ModerateLimit))
	r.Mux.Handle("POST /{tenant}/recipe/user/email/verify", r.recipe(h.HandleVerify, httpx.StrictLimit))
	r.Mux.Handle("GET /recipe/user/email/verify", r.recipe(h.HandleIsVerified, httpx.LenientLimit))
	r.Mux.Handle("POST /recipe/user/email/verify/remove", r.recipe(h.HandleUnverify, httpx.ModerateLimit))
	r.Mux.Handle("POST /{tenant}/recipe/user/email/verify/token/remove", r.recipe(h.HandleRevokeTokens, httpx.ModerateLimit))
}

func (r *Router) registerRoles() {
	h := &RolesHandler{RolesService: r.RolesService}

	r.Mux.Handle("PUT /recipe/role", r.recipe(h.HandleCreateOrUpdate, httpx.ModerateLimit))
	r.Mux.Handle("POST /recipe/role/remove", r.recipe(h.HandleDelete, httpx.ModerateLimit))
	r.Mux.Handle("GET /recipe/roles", r.recipe(h.HandleList, httpx.LenientLimit))
	r.Mux.Handle("GET /recipe/role/permissions", r.recipe(h.HandleGetPermissions, httpx.LenientLimit))
	r.Mux.Handle("POST /recipe/role/permissions/remove", r.recipe(h.HandleRemovePermissions, httpx.ModerateLimit))
	r.Mux.Handle("GET /recipe/permission/roles", r.recipe(h.HandleRolesWithPermission, httpx.LenientLimit))
	r.Mux.Handle("PUT /{tenant}/recipe/user/role", r.recipe(h.HandleAddUserRole, httpx.ModerateLimit))
	r.Mux.Handle("POST /{tenant}/recipe/user/role/remove", r.recipe(h.HandleRemoveUserRole, httpx.ModerateLimit))
	r.Mux.Handle("GET /{tenant}/recipe/user/roles", r.recipe(h.HandleUserRoles, httpx.LenientLimit))
	r.Mux.Handle("GET /{tenant}/recipe/role/users", r.recipe(h.HandleUsersWithRole, httpx.LenientLimit))
}

func (r *Router) registerTOTP() {
	h := &TOTPHandler{TOTPService: r.TOTPService}

	r.Mux.Handle("POST /recipe/totp/device", r.recipe(h.HandleCreateDevice, httpx.ModerateLimit))
	r.Mux.Handle("PUT /recipe/totp/device", r.recipe(h.HandleRenameDevice, httpx.ModerateLimit))
	r.Mux.Handle("GET /recipe/totp/device/list", r.recipe(h.HandleListDevices, httpx.LenientLimit))
	r.Mux.Handle("POST /recipe/totp/device/remove", r.recipe(h.HandleRemoveDevice, httpx.ModerateLimit))
	// Code checks are brute-forceable; keep them strict.
	r.Mux.Handle("POST /{tenant}/recipe/totp/device/verify", r.recipe(h.HandleVerifyDevice, httpx.StrictLimit))
	r.Mux.Handle("POST /{tenant}/recipe/totp/verify", r.recipe(h.HandleVerifyCode, httpx.StrictLimit))
}

func (r *Router) registerKeyRotation() {
	h := &KeyRotationHandler{KeyRotationService: r.KeyRotationService}

	r.Mux.Handle("POST /recipe/jwt/keys/rotate", r.recipe(h.HandleRotate, httpx.ModerateLimit))
	r.Mux.Handle("GET /recipe/jwt/keys", r.recipe(h.HandleListKeys, httpx.ModerateLimit))
	r.Mux.Handle("POST /recipe/jwt/keys/{kid}/retire", r.recipe(h.HandleRetireKey, httpx.ModerateLimit))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys), httpx.RateLimitByIP(httpx.PublicLimit)))
	r.Mux.Handle("GET /hello",
		httpx.Chain(HelloHandler(), httpx.RateLimitByIP(httpx.PublicLimit)))
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion), httpx.RateLimitByIP(httpx.LenientLimit)))
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys), httpx.RateLimitByIP(httpx.LenientLimit)))
}
