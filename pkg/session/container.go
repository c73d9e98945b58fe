package session

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
)

// SessionContainer is a verified session bound to one handle. Mutations go
// through the composed RecipeInterface and, when the container came from a
// request, refreshed tokens are written to that request's response.
type SessionContainer interface {
	GetHandle() string
	GetUserID() string
	GetRecipeUserID() string
	GetTenantID() string

	// GetAccessTokenPayload returns a copy of the custom claims payload.
	GetAccessTokenPayload() claims.Payload
	GetAccessToken() string
	GetAllSessionTokens() Tokens
	GetTimeCreated() time.Time
	GetExpiry() time.Time

	RevokeSession(ctx context.Context) error
	GetSessionDataFromDatabase(ctx context.Context) (map[string]any, error)
	UpdateSessionDataInDatabase(ctx context.Context, data map[string]any) error
	// MergeIntoAccessTokenPayload merges update into the payload; nil values
	// delete their key. A new access token is issued.
	MergeIntoAccessTokenPayload(ctx context.Context, update claims.Payload) error

	// AssertClaims runs validators, refetching stale claims first, and
	// returns an INVALID_CLAIMS error if any fail.
	AssertClaims(ctx context.Context, validators []*claims.Validator) error
	FetchAndSetClaim(ctx context.Context, claim claims.SessionClaim) error
	SetClaimValue(ctx context.Context, claim claims.SessionClaim, value any) error
	GetClaimValue(claim claims.SessionClaim) (any, bool)
	RemoveClaim(ctx context.Context, claim claims.SessionClaim) error
}

// Tokens is every token the container knows about. RefreshToken and
// AntiCsrfToken are only set right after create or refresh.
type Tokens struct {
	AccessToken                string
	RefreshToken               string
	AntiCsrfToken              string
	FrontToken                 string
	AccessAndFrontTokenUpdated bool
}

type container struct {
	recipe *RecipeInterface
	cfg    *normalisedConfig
	keys   jwtx.KeyLookup

	mu            sync.RWMutex
	accessToken   string
	payload       *jwtx.AccessTokenPayload
	refreshToken  *TokenInfo
	antiCsrfToken string
	tokenUpdated  bool

	res      framework.Response
	transfer TransferMethod
}

func newContainer(recipe *RecipeInterface, cfg *normalisedConfig, keys jwtx.KeyLookup, accessToken string, payload *jwtx.AccessTokenPayload) *container {
	if payload.UserPayload == nil {
		payload.UserPayload = claims.Payload{}
	}
	return &container{recipe: recipe, cfg: cfg, keys: keys, accessToken: accessToken, payload: payload}
}

// attach binds the container to a response so token changes reach the
// client.
func (s *container) attach(res framework.Response, transfer TransferMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.res = res
	s.transfer = transfer
}

// writeTokens sends the access and front tokens, plus refresh and anti-CSRF
// tokens when the container has them.
func (s *container) writeTokens() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.res == nil {
		return
	}
	s.cfg.setFrontToken(s.res, s.payload.UserID, s.payload.ExpiryTime, s.payload.UserPayload)
	s.cfg.setAccessToken(s.res, s.transfer, s.accessToken)
	s.cfg.setRefreshToken(s.res, s.transfer, s.refreshToken)
	if s.transfer == TransferCookie {
		s.cfg.setAntiCsrf(s.res, s.antiCsrfToken)
	}
}

func (s *container) current() *jwtx.AccessTokenPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payload
}

func (s *container) GetHandle() string       { return s.current().SessionHandle }
func (s *container) GetUserID() string       { return s.current().UserID }
func (s *container) GetRecipeUserID() string { return s.current().RecipeUserID }
func (s *container) GetTenantID() string     { return s.current().TenantID }

func (s *container) GetAccessTokenPayload() claims.Payload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.payload.UserPayload)
}

func (s *container) GetAccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *container) GetAllSessionTokens() Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := Tokens{
		AccessToken:                s.accessToken,
		AntiCsrfToken:              s.antiCsrfToken,
		FrontToken:                 frontToken(s.payload.UserID, s.payload.ExpiryTime, s.payload.UserPayload),
		AccessAndFrontTokenUpdated: s.tokenUpdated,
	}
	if s.refreshToken != nil {
		t.RefreshToken = s.refreshToken.Token
	}
	return t
}

func (s *container) GetTimeCreated() time.Time {
	return time.UnixMilli(s.current().TimeCreated)
}

func (s *container) GetExpiry() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payload.Expiry()
}

func (s *container) RevokeSession(ctx context.Context) error {
	if _, err := s.recipe.RevokeSession(ctx, s.GetHandle()); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.res != nil {
		s.cfg.clearTokens(s.res, s.transfer)
	}
	return nil
}

func (s *container) GetSessionDataFromDatabase(ctx context.Context) (map[string]any, error) {
	info, err := s.recipe.GetSessionInformation(ctx, s.GetHandle())
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, unauthorised(true, "session does not exist anymore")
	}
	return info.SessionDataInDatabase, nil
}

func (s *container) UpdateSessionDataInDatabase(ctx context.Context, data map[string]any) error {
	ok, err := s.recipe.UpdateSessionDataInDatabase(ctx, s.GetHandle(), data)
	if err != nil {
		return err
	}
	if !ok {
		return unauthorised(true, "session does not exist anymore")
	}
	return nil
}

func (s *container) MergeIntoAccessTokenPayload(ctx context.Context, update claims.Payload) error {
	merged := mergePayload(s.GetAccessTokenPayload(), update)

	res, err := s.recipe.RegenerateAccessToken(ctx, s.GetAccessToken(), merged)
	if err != nil {
		return err
	}
	if res == nil {
		return unauthorised(true, "session does not exist anymore")
	}

	var fresh *jwtx.AccessTokenPayload
	if res.AccessToken != nil {
		fresh, err = jwtx.ParseAndVerify(ctx, res.AccessToken.Token, s.keys)
		if err != nil {
			return fmt.Errorf("session: regenerated access token: %w", err)
		}
	}

	s.mu.Lock()
	if fresh != nil {
		if fresh.UserPayload == nil {
			fresh.UserPayload = claims.Payload{}
		}
		s.accessToken = res.AccessToken.Token
		s.payload = fresh
		s.tokenUpdated = true
	} else {
		s.payload.UserPayload = merged
	}
	s.mu.Unlock()

	if res.AccessToken != nil {
		s.writeTokens()
	}
	return nil
}

func (s *container) AssertClaims(ctx context.Context, validators []*claims.Validator) error {
	res, err := s.recipe.ValidateClaims(ctx, ValidateClaimsInput{
		UserID:             s.GetUserID(),
		RecipeUserID:       s.GetRecipeUserID(),
		TenantID:           s.GetTenantID(),
		AccessTokenPayload: s.GetAccessTokenPayload(),
		Validators:         validators,
		Merge:              s.MergeIntoAccessTokenPayload,
	})
	if err != nil {
		return err
	}
	if len(res.InvalidClaims) > 0 {
		return invalidClaims(res.InvalidClaims)
	}
	return nil
}

func (s *container) FetchAndSetClaim(ctx context.Context, claim claims.SessionClaim) error {
	v, ok, err := claim.FetchValue(ctx, s.GetUserID(), s.GetRecipeUserID(), s.GetTenantID(), s.GetAccessTokenPayload())
	if err != nil || !ok {
		return err
	}
	return s.MergeIntoAccessTokenPayload(ctx, claim.AddToPayload(nil, v))
}

func (s *container) SetClaimValue(ctx context.Context, claim claims.SessionClaim, value any) error {
	return s.MergeIntoAccessTokenPayload(ctx, claim.AddToPayload(nil, value))
}

func (s *container) GetClaimValue(claim claims.SessionClaim) (any, bool) {
	return claim.GetValueFromPayload(s.GetAccessTokenPayload())
}

func (s *container) RemoveClaim(ctx context.Context, claim claims.SessionClaim) error {
	return s.MergeIntoAccessTokenPayload(ctx, claim.RemoveFromPayloadByMerge(nil))
}

// mergePayload returns base with update applied; nil values delete.
func mergePayload(base, update claims.Payload) claims.Payload {
	out := make(claims.Payload, len(base)+len(update))
	maps.Copy(out, base)
	for k, v := range update {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
