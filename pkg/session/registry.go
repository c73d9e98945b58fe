package session

import (
	"context"
	"slices"
	"sync"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/plugin"
)

// claimRegistry holds the claims and validators other recipes contribute.
// It only accepts registrations while open, which is the post-init phase of
// application startup.
type claimRegistry struct {
	mu         sync.RWMutex
	open       bool
	claims     []claims.SessionClaim
	validators []*claims.Validator
}

func (r *claimRegistry) setOpen(open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = open
}

func (r *claimRegistry) addClaim(c claims.SessionClaim) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return plugin.NewConfigError("session: claim %q registered outside of post-init", c.Key())
	}
	r.claims = append(r.claims, c)
	return nil
}

func (r *claimRegistry) addValidator(v *claims.Validator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return plugin.NewConfigError("session: validator %q registered outside of post-init", v.ID)
	}
	r.validators = append(r.validators, v)
	return nil
}

func (r *claimRegistry) allClaims() []claims.SessionClaim {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.claims)
}

func (r *claimRegistry) allValidators() []*claims.Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.validators)
}

// OpenClaimRegistration allows AddClaimFromOtherRecipe and
// AddClaimValidatorFromOtherRecipe until the returned func is called. The
// application opens it around its post-init phase.
func (r *Recipe) OpenClaimRegistration() (closeFn func()) {
	r.registry.setOpen(true)
	return func() { r.registry.setOpen(false) }
}

// AddClaimFromOtherRecipe registers a claim whose value is added to every new
// session. Keys are not checked: a later claim with the same key overwrites
// the earlier one's value in the payload.
func (r *Recipe) AddClaimFromOtherRecipe(c claims.SessionClaim) error {
	return r.registry.addClaim(c)
}

// AddClaimValidatorFromOtherRecipe registers a validator that every
// GetSession runs unless the call overrides the global set.
func (r *Recipe) AddClaimValidatorFromOtherRecipe(v *claims.Validator) error {
	return r.registry.addValidator(v)
}

// GetClaimsAddedByOtherRecipes lists registered claims in registration order.
func (r *Recipe) GetClaimsAddedByOtherRecipes() []claims.SessionClaim {
	return r.registry.allClaims()
}

// GetRequiredClaimValidators returns the global validators for s, adjusted
// by override when set. Order is preserved; it decides which failure a
// client sees first.
func (r *Recipe) GetRequiredClaimValidators(ctx context.Context, s SessionContainer, override OverrideValidatorsFunc) ([]*claims.Validator, error) {
	global, err := r.impl.GetGlobalClaimValidators(ctx, GlobalValidatorsInput{
		UserID:                             s.GetUserID(),
		RecipeUserID:                       s.GetRecipeUserID(),
		TenantID:                           s.GetTenantID(),
		ClaimValidatorsAddedByOtherRecipes: r.registry.allValidators(),
	})
	if err != nil {
		return nil, err
	}
	if override == nil {
		return global, nil
	}
	return override(ctx, global, s)
}

// fetchClaimsForNewSession adds the value of every registered claim to
// payload. Later claims overwrite earlier ones on a key collision.
func (r *Recipe) fetchClaimsForNewSession(ctx context.Context, userID, recipeUserID, tenantID string, payload claims.Payload) (claims.Payload, error) {
	out := mergePayload(payload, nil)
	for _, c := range r.registry.allClaims() {
		v, ok, err := c.FetchValue(ctx, userID, recipeUserID, tenantID, out)
		if err != nil {
			return nil, err
		}
		if ok {
			out = c.AddToPayload(out, v)
		}
	}
	return out, nil
}

// ValidateClaimsForSessionHandle runs the global validators, adjusted by
// override, against the core's stored payload for handle. Refetched values
// are merged by handle. It returns ErrSessionNotFound for an unknown handle.
func (r *Recipe) ValidateClaimsForSessionHandle(ctx context.Context, handle string, override func(global []*claims.Validator, info *SessionInformation) []*claims.Validator) ([]ClaimValidationError, error) {
	info, err := r.impl.GetSessionInformation(ctx, handle)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrSessionNotFound
	}

	validators, err := r.impl.GetGlobalClaimValidators(ctx, GlobalValidatorsInput{
		UserID:                             info.UserID,
		RecipeUserID:                       info.RecipeUserID,
		TenantID:                           info.TenantID,
		ClaimValidatorsAddedByOtherRecipes: r.registry.allValidators(),
	})
	if err != nil {
		return nil, err
	}
	if override != nil {
		validators = override(validators, info)
	}

	res, err := r.impl.ValidateClaims(ctx, ValidateClaimsInput{
		UserID:             info.UserID,
		RecipeUserID:       info.RecipeUserID,
		TenantID:           info.TenantID,
		AccessTokenPayload: info.CustomClaimsInAccessTokenPayload,
		Validators:         validators,
		Merge: func(ctx context.Context, update claims.Payload) error {
			ok, err := r.impl.MergeIntoAccessTokenPayload(ctx, handle, update)
			if err == nil && !ok {
				err = ErrSessionNotFound
			}
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return res.InvalidClaims, nil
}
