package emailverification

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
)

// ClaimKey is the access token payload key of the email verified claim.
const ClaimKey = "st-ev"

// DefaultRefetchOnFalseSeconds is how long a false value is trusted before
// IsVerified asks the core again.
const DefaultRefetchOnFalseSeconds = 10

// Claim is the boolean email verified claim.
type Claim struct {
	*claims.BooleanClaim
	now claims.Clock
}

func newClaim(fetch claims.FetchFunc[bool], now claims.Clock) *Claim {
	if now == nil {
		now = time.Now
	}
	return &Claim{
		BooleanClaim: claims.NewBooleanClaim(claims.PrimitiveConfig[bool]{
			Key:   ClaimKey,
			Fetch: fetch,
			Now:   now,
		}),
		now: now,
	}
}

// IsVerified requires a verified email. A false value is refetched once it
// is refetchOnFalseSeconds old, so a user who just clicked the link gets
// through without signing in again. opts may set a max age for true values.
func (c *Claim) IsVerified(refetchOnFalseSeconds int64, opts ...claims.ValidatorOption) *claims.Validator {
	base := c.IsTrue(opts...)
	maxAgeCheck := base.ShouldRefetch
	return &claims.Validator{
		ID:    base.ID,
		Claim: c,
		ShouldRefetch: func(p claims.Payload) bool {
			v, ok := c.Value(p)
			if !ok || maxAgeCheck(p) {
				return true
			}
			if v {
				return false
			}
			t, ok := c.GetLastRefetchTime(p)
			return !ok || c.now().UnixMilli()-t > refetchOnFalseSeconds*1000
		},
		Validate: base.Validate,
	}
}

// fetchVerified builds the claim's fetch function on top of impl.
func fetchVerified(cfg *Config, impl *RecipeInterface) claims.FetchFunc[bool] {
	return func(ctx context.Context, userID, _, tenantID string, _ claims.Payload) (bool, bool, error) {
		email, ok, err := cfg.GetEmailForUserID(ctx, userID, tenantID)
		if err != nil {
			return false, false, err
		}
		if !ok {
			// Nothing to verify.
			return true, true, nil
		}
		verified, err := impl.IsEmailVerified(ctx, userID, email)
		if err != nil {
			return false, false, err
		}
		return verified, true, nil
	}
}
