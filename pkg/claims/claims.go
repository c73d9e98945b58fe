// Package claims embeds typed, lazily fetched facts about a user in a session
// payload and validates them with a refetch and max-age policy.
//
// Every claim variant uses the same envelope under its key:
//
//	{"<key>": {"v": <value>, "t": <last fetch, epoch ms>}}
package claims

import (
	"context"
	"encoding/json"
	"maps"
	"math"
	"time"
)

// Payload is the user payload object carried in an access token.
type Payload = map[string]any

const (
	valueField = "v"
	timeField  = "t"
)

// SessionClaim is the untyped view of a claim that the session recipe and
// the validation orchestrator work with.
type SessionClaim interface {
	Key() string

	// FetchValue resolves the current value. ok=false means there is nothing
	// to add to the payload.
	FetchValue(ctx context.Context, userID, recipeUserID, tenantID string, current Payload) (value any, ok bool, err error)

	// AddToPayload returns a copy of p with value stored under Key.
	AddToPayload(p Payload, value any) Payload
	// RemoveFromPayload returns a copy of p without Key.
	RemoveFromPayload(p Payload) Payload
	// RemoveFromPayloadByMerge returns a copy of p with Key set to nil, so
	// merging it into a stored payload deletes the claim.
	RemoveFromPayloadByMerge(p Payload) Payload

	GetValueFromPayload(p Payload) (any, bool)
	GetLastRefetchTime(p Payload) (int64, bool)
}

// FetchFunc resolves a typed claim value.
type FetchFunc[T any] func(ctx context.Context, userID, recipeUserID, tenantID string, current Payload) (T, bool, error)

// Clock returns the current time. Claims take one so tests can pin it.
type Clock func() time.Time

// envelope is the shared storage logic for every variant.
type envelope struct {
	key string
	now Clock
}

func newEnvelope(key string, now Clock) envelope {
	if now == nil {
		now = time.Now
	}
	return envelope{key: key, now: now}
}

func (e envelope) Key() string { return e.key }

func (e envelope) nowMillis() int64 { return e.now().UnixMilli() }

func (e envelope) add(p Payload, value any) Payload {
	out := clonePayload(p)
	out[e.key] = map[string]any{valueField: value, timeField: e.nowMillis()}
	return out
}

func (e envelope) RemoveFromPayload(p Payload) Payload {
	out := clonePayload(p)
	delete(out, e.key)
	return out
}

func (e envelope) RemoveFromPayloadByMerge(p Payload) Payload {
	out := clonePayload(p)
	out[e.key] = nil
	return out
}

func (e envelope) entry(p Payload) (map[string]any, bool) {
	raw, ok := p[e.key]
	if !ok || raw == nil {
		return nil, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	return m, true
}

func (e envelope) rawValue(p Payload) (any, bool) {
	m, ok := e.entry(p)
	if !ok {
		return nil, false
	}
	v, ok := m[valueField]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (e envelope) GetLastRefetchTime(p Payload) (int64, bool) {
	m, ok := e.entry(p)
	if !ok {
		return 0, false
	}
	return toMillis(m[timeField])
}

// stale reports whether the stored value is older than maxAge. A zero maxAge
// disables the check.
func (e envelope) stale(p Payload, maxAge int64) (age int64, expired bool) {
	if maxAge <= 0 {
		return 0, false
	}
	t, ok := e.GetLastRefetchTime(p)
	if !ok {
		return 0, true
	}
	ageMillis := e.nowMillis() - t
	return ageMillis / 1000, ageMillis > maxAge*1000
}

func clonePayload(p Payload) Payload {
	out := make(Payload, len(p)+1)
	maps.Copy(out, p)
	return out
}

func toMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// coerce converts a payload value to T. Values put there in-process are
// already T; values decoded from a token are generic JSON and go through a
// JSON round trip.
func coerce[T any](v any) (T, bool) {
	if t, ok := v.(T); ok {
		return t, true
	}
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, false
	}
	return out, true
}
