package claims_test

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/stretchr/testify/require"
)

func newRoles() *claims.PrimitiveArrayClaim[string] {
	return claims.NewPrimitiveArrayClaim(claims.ArrayConfig[string]{Key: "st-role"})
}

func TestArrayValidators(t *testing.T) {
	c := newRoles()
	p := roundTrip(t, c.Set(nil, []string{"admin", "editor", "admin"}))

	tests := []struct {
		name  string
		v     *claims.Validator
		valid bool
	}{
		{"includes present", c.Includes("admin"), true},
		{"includes absent", c.Includes("owner"), false},
		{"excludes absent", c.Excludes("owner"), true},
		{"excludes present", c.Excludes("editor"), false},
		{"includesAll subset", c.IncludesAll([]string{"editor", "admin", "editor"}), true},
		{"includesAll missing one", c.IncludesAll([]string{"editor", "owner"}), false},
		{"includesAll empty", c.IncludesAll(nil), true},
		{"includesAny one hit", c.IncludesAny([]string{"owner", "editor"}), true},
		{"includesAny none", c.IncludesAny([]string{"owner", "viewer"}), false},
		{"excludesAll none present", c.ExcludesAll([]string{"owner", "viewer"}), true},
		{"excludesAll one present", c.ExcludesAll([]string{"owner", "admin"}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.v.Validate(p)
			require.Equal(t, tt.valid, res.IsValid)
			if !tt.valid {
				require.Equal(t, claims.MessageWrongValue, res.Reason.Message)
				require.Equal(t, []string{"admin", "editor", "admin"}, res.Reason.ActualValue)
			}
		})
	}
}

func TestArrayValidatorMissingValue(t *testing.T) {
	c := newRoles()
	v := c.IncludesAll([]string{"admin", "admin"})

	require.True(t, v.ShouldRefetch(claims.Payload{}))
	res := v.Validate(claims.Payload{})
	require.False(t, res.IsValid)
	require.Equal(t, claims.MessageNotExist, res.Reason.Message)
	require.Equal(t, []string{"admin"}, res.Reason.ExpectedToInclude)
	require.Nil(t, res.Reason.ActualValue)
}

// includesAll(A) holds exactly when every element of A is in the claim value,
// whatever the order or duplication on either side.
func TestIncludesAllMatchesSubsetRelation(t *testing.T) {
	universe := []string{"a", "b", "c", "d", "e"}
	rng := rand.New(rand.NewPCG(1, 2))
	pick := func() []string {
		out := make([]string, rng.IntN(7))
		for i := range out {
			out[i] = universe[rng.IntN(len(universe))]
		}
		return out
	}

	c := newRoles()
	for range 500 {
		have, want := pick(), pick()
		expected := true
		for _, w := range want {
			if !slices.Contains(have, w) {
				expected = false
			}
		}

		p := roundTrip(t, c.Set(nil, have))
		require.Equal(t, expected, c.IncludesAll(want).Validate(p).IsValid, "have=%v want=%v", have, want)
	}
}

func TestArrayIntValues(t *testing.T) {
	c := claims.NewPrimitiveArrayClaim(claims.ArrayConfig[int]{Key: "levels"})
	p := roundTrip(t, c.Set(nil, []int{1, 2, 3}))

	got, ok := c.Value(p)
	require.True(t, ok)
	require.Equal(t, []int{1, 2, 3}, got)
	require.True(t, c.Includes(2).Validate(p).IsValid)
}
