package claims_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
func newClock() *fakeClock                   { return &fakeClock{now: time.UnixMilli(1_700_000_000_000)} }

func roundTrip(t *testing.T, p claims.Payload) claims.Payload {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	var out claims.Payload
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestEnvelopeFormat(t *testing.T) {
	clock := newClock()
	c := claims.NewPrimitiveClaim(claims.PrimitiveConfig[string]{Key: "st-plan", Now: clock.Now})

	p := c.Set(claims.Payload{"other": 1}, "gold")
	require.Equal(t, claims.Payload{
		"other":   1,
		"st-plan": map[string]any{"v": "gold", "t": clock.now.UnixMilli()},
	}, p)

	got, ok := c.Value(roundTrip(t, p))
	require.True(t, ok)
	require.Equal(t, "gold", got)

	ts, ok := c.GetLastRefetchTime(roundTrip(t, p))
	require.True(t, ok)
	require.Equal(t, clock.now.UnixMilli(), ts)
}

func TestAddDoesNotMutateInput(t *testing.T) {
	c := claims.NewPrimitiveClaim(claims.PrimitiveConfig[int64]{Key: "n"})
	in := claims.Payload{"a": "b"}

	_ = c.Set(in, 5)
	_ = c.RemoveFromPayloadByMerge(in)
	require.Equal(t, claims.Payload{"a": "b"}, in)
}

func TestRemove(t *testing.T) {
	c := claims.NewPrimitiveClaim(claims.PrimitiveConfig[int64]{Key: "n"})
	p := c.Set(claims.Payload{}, 5)

	require.NotContains(t, c.RemoveFromPayload(p), "n")

	merged := c.RemoveFromPayloadByMerge(p)
	require.Contains(t, merged, "n")
	require.Nil(t, merged["n"])
	_, ok := c.GetValueFromPayload(merged)
	require.False(t, ok)
}

func TestFetchValue(t *testing.T) {
	boom := errors.New("boom")
	c := claims.NewPrimitiveClaim(claims.PrimitiveConfig[string]{
		Key: "k",
		Fetch: func(_ context.Context, userID, _, tenantID string, _ claims.Payload) (string, bool, error) {
			switch userID {
			case "missing":
				return "", false, nil
			case "broken":
				return "", false, boom
			}
			return userID + "@" + tenantID, true, nil
		},
	})

	v, ok, err := c.FetchValue(context.Background(), "u", "u", "public", nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u@public", v)

	_, ok, err = c.FetchValue(context.Background(), "missing", "missing", "public", nil)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = c.FetchValue(context.Background(), "broken", "broken", "public", nil)
	require.ErrorIs(t, err, boom)
}
