package totp

import (
	"github.com/aussiebroadwan/tabsession/pkg/claims"
)

// ClaimKey is the access token payload key of the TOTP claim.
const ClaimKey = "st-totp"

// Claim stores when the user last completed a TOTP check, in epoch ms.
type Claim struct {
	*claims.PrimitiveClaim[int64]
	now claims.Clock
}

func newClaim(now claims.Clock) *Claim {
	return &Claim{
		PrimitiveClaim: claims.NewPrimitiveClaim(claims.PrimitiveConfig[int64]{
			Key: ClaimKey,
			Now: now,
		}),
		now: now,
	}
}

// VerifiedWithin requires a TOTP check in the last seconds. The value is
// never refetched: only a new check can renew it.
func (c *Claim) VerifiedWithin(seconds int64) *claims.Validator {
	maxAge := seconds
	return claims.Custom(ClaimKey, func(p claims.Payload) claims.Result {
		at, ok := c.Value(p)
		if !ok {
			return claims.Result{Reason: &claims.Reason{Message: claims.MessageNotExist}}
		}
		age := (c.now().UnixMilli() - at) / 1000
		if age > seconds {
			return claims.Result{Reason: &claims.Reason{
				Message:         claims.MessageExpired,
				AgeInSeconds:    &age,
				MaxAgeInSeconds: &maxAge,
			}}
		}
		return claims.Valid
	})
}
