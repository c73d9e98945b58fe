package emailverification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
)

func TestIsVerifiedRefetch(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_700_000_000_000)
	c := newClaim(nil, func() time.Time { return now })
	v := c.IsVerified(DefaultRefetchOnFalseSeconds)

	t.Run("missing value is fetched", func(t *testing.T) {
		require.True(t, v.ShouldRefetch(claims.Payload{}))
	})

	t.Run("true is trusted", func(t *testing.T) {
		p := c.Set(nil, true)
		require.False(t, v.ShouldRefetch(p))
		require.True(t, v.Validate(p).IsValid)
	})

	t.Run("false is refetched once old enough", func(t *testing.T) {
		p := c.Set(nil, false)
		require.False(t, v.ShouldRefetch(p))
		require.False(t, v.Validate(p).IsValid)

		later := newClaim(nil, func() time.Time { return now.Add(11 * time.Second) })
		require.True(t, later.IsVerified(DefaultRefetchOnFalseSeconds).ShouldRefetch(p))
	})

	t.Run("max age applies to true", func(t *testing.T) {
		p := c.Set(nil, true)
		later := newClaim(nil, func() time.Time { return now.Add(2 * time.Minute) })
		require.True(t, later.IsVerified(DefaultRefetchOnFalseSeconds, claims.WithMaxAge(60)).ShouldRefetch(p))
		require.False(t, later.IsVerified(DefaultRefetchOnFalseSeconds).ShouldRefetch(p))
	})
}
