package session

import (
	"context"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
)

// SessionInformation is the core's stored record for a handle.
type SessionInformation struct {
	SessionHandle                    string         `json:"sessionHandle"`
	UserID                           string         `json:"userId"`
	RecipeUserID                     string         `json:"recipeUserId"`
	TenantID                         string         `json:"tenantId"`
	SessionDataInDatabase            map[string]any `json:"userDataInDatabase"`
	CustomClaimsInAccessTokenPayload claims.Payload `json:"userDataInJWT"`
	Expiry                           int64          `json:"expiry"`
	TimeCreated                      int64          `json:"timeCreated"`
}

// CreateSessionInput is passed to RecipeInterface.CreateNewSession. The
// payload already carries the values of every registered claim.
type CreateSessionInput struct {
	UserID                string
	RecipeUserID          string
	TenantID              string
	AccessTokenPayload    claims.Payload
	SessionDataInDatabase map[string]any
	DisableAntiCsrf       bool
}

// GetSessionInput is passed to RecipeInterface.GetSession.
type GetSessionInput struct {
	AccessToken   string
	AntiCsrfToken string
	// AntiCsrfCheck compares AntiCsrfToken with the token's own value.
	AntiCsrfCheck bool
	CheckDatabase bool
}

// RefreshSessionInput is passed to RecipeInterface.RefreshSession.
type RefreshSessionInput struct {
	RefreshToken    string
	AntiCsrfToken   string
	DisableAntiCsrf bool
}

// RegenerateResult is returned by RegenerateAccessToken. AccessToken is
// empty when the core kept the current token.
type RegenerateResult struct {
	Session     SessionInformation
	AccessToken *TokenInfo
}

// TokenInfo is a token as returned by the core.
type TokenInfo struct {
	Token       string `json:"token"`
	Expiry      int64  `json:"expiry"`
	CreatedTime int64  `json:"createdTime"`
}

// GlobalValidatorsInput is passed to RecipeInterface.GetGlobalClaimValidators.
type GlobalValidatorsInput struct {
	UserID                             string
	RecipeUserID                       string
	TenantID                           string
	ClaimValidatorsAddedByOtherRecipes []*claims.Validator
}

// ValidateClaimsInput is passed to RecipeInterface.ValidateClaims.
type ValidateClaimsInput struct {
	UserID             string
	RecipeUserID       string
	TenantID           string
	AccessTokenPayload claims.Payload
	Validators         []*claims.Validator
	// Merge stores a refetched claim value at the core before validation
	// continues. Nil leaves the update in the result only.
	Merge func(ctx context.Context, update claims.Payload) error
}

// ValidateClaimsResult lists failed validators in validator order.
type ValidateClaimsResult struct {
	InvalidClaims            []ClaimValidationError
	AccessTokenPayloadUpdate claims.Payload
}

// OverrideValidatorsFunc adjusts the global validators for one call.
type OverrideValidatorsFunc func(ctx context.Context, global []*claims.Validator, s SessionContainer) ([]*claims.Validator, error)

// VerifySessionOptions tunes GetSession.
type VerifySessionOptions struct {
	// SessionRequired defaults to true. When false, a missing or unusable
	// session yields a nil container instead of an error.
	SessionRequired *bool
	// AntiCsrfCheck defaults to true for every method except GET.
	AntiCsrfCheck *bool
	// CheckDatabase asks the core whether the session still exists even
	// when session.Config.CheckDatabase is false.
	CheckDatabase                 bool
	OverrideGlobalClaimValidators OverrideValidatorsFunc
}

func (o VerifySessionOptions) sessionRequired() bool {
	return o.SessionRequired == nil || *o.SessionRequired
}

// RecipeInterface is the session recipe's overridable implementation. Every
// field may be replaced by an override layer. Handle based operations read
// and write the core's copy of the session; concurrent writers on the same
// handle race.
type RecipeInterface struct {
	CreateNewSession func(ctx context.Context, in CreateSessionInput) (SessionContainer, error)
	GetSession       func(ctx context.Context, in GetSessionInput) (SessionContainer, error)
	RefreshSession   func(ctx context.Context, in RefreshSessionInput) (SessionContainer, error)

	// RevokeSession reports whether a session was removed.
	RevokeSession func(ctx context.Context, sessionHandle string) (bool, error)
	// RevokeAllSessionsForUser returns the revoked handles.
	RevokeAllSessionsForUser func(ctx context.Context, userID, tenantID string, acrossAllTenants bool) ([]string, error)
	// RevokeMultipleSessions returns the handles that existed and were revoked.
	RevokeMultipleSessions      func(ctx context.Context, sessionHandles []string) ([]string, error)
	GetAllSessionHandlesForUser func(ctx context.Context, userID, tenantID string, acrossAllTenants bool) ([]string, error)

	// GetSessionInformation returns nil for an unknown handle.
	GetSessionInformation       func(ctx context.Context, sessionHandle string) (*SessionInformation, error)
	UpdateSessionDataInDatabase func(ctx context.Context, sessionHandle string, data map[string]any) (bool, error)
	MergeIntoAccessTokenPayload func(ctx context.Context, sessionHandle string, update claims.Payload) (bool, error)
	// RegenerateAccessToken returns nil when the session no longer exists.
	RegenerateAccessToken func(ctx context.Context, accessToken string, newPayload claims.Payload) (*RegenerateResult, error)

	FetchAndSetClaim func(ctx context.Context, sessionHandle string, claim claims.SessionClaim) (bool, error)
	SetClaimValue    func(ctx context.Context, sessionHandle string, claim claims.SessionClaim, value any) (bool, error)
	// GetClaimValue returns ErrSessionNotFound for an unknown handle.
	GetClaimValue func(ctx context.Context, sessionHandle string, claim claims.SessionClaim) (any, bool, error)
	RemoveClaim   func(ctx context.Context, sessionHandle string, claim claims.SessionClaim) (bool, error)

	GetGlobalClaimValidators func(ctx context.Context, in GlobalValidatorsInput) ([]*claims.Validator, error)
	ValidateClaims           func(ctx context.Context, in ValidateClaimsInput) (*ValidateClaimsResult, error)
}

// APIInterface holds the recipe's HTTP APIs. A nil field disables its route.
type APIInterface struct {
	RefreshPOST   func(req framework.Request, res framework.Response) error
	SignOutPOST   func(req framework.Request, res framework.Response) error
	VerifySession func(req framework.Request, res framework.Response, opts VerifySessionOptions) (SessionContainer, error)
}
