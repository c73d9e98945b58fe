package claims

import "context"

// ArrayConfig configures an array claim.
type ArrayConfig[T comparable] struct {
	Key                    string
	Fetch                  FetchFunc[[]T]
	DefaultMaxAgeInSeconds int64
	Now                    Clock
}

// PrimitiveArrayClaim holds a list of comparable values. Validators treat the
// list as a set: order and duplicates are ignored on both sides.
type PrimitiveArrayClaim[T comparable] struct {
	envelope
	fetch         FetchFunc[[]T]
	defaultMaxAge int64
}

// NewPrimitiveArrayClaim returns an array claim.
func NewPrimitiveArrayClaim[T comparable](cfg ArrayConfig[T]) *PrimitiveArrayClaim[T] {
	return &PrimitiveArrayClaim[T]{
		envelope:      newEnvelope(cfg.Key, cfg.Now),
		fetch:         cfg.Fetch,
		defaultMaxAge: cfg.DefaultMaxAgeInSeconds,
	}
}

func (c *PrimitiveArrayClaim[T]) FetchValue(ctx context.Context, userID, recipeUserID, tenantID string, current Payload) (any, bool, error) {
	if c.fetch == nil {
		return nil, false, nil
	}
	v, ok, err := c.fetch(ctx, userID, recipeUserID, tenantID, current)
	if err != nil || !ok {
		return nil, false, err
	}
	return v, true, nil
}

func (c *PrimitiveArrayClaim[T]) AddToPayload(p Payload, value any) Payload {
	return c.add(p, value)
}

func (c *PrimitiveArrayClaim[T]) GetValueFromPayload(p Payload) (any, bool) {
	v, ok := c.Value(p)
	if !ok {
		return nil, false
	}
	return v, true
}

// Value is the typed form of GetValueFromPayload.
func (c *PrimitiveArrayClaim[T]) Value(p Payload) ([]T, bool) {
	raw, ok := c.rawValue(p)
	if !ok {
		return nil, false
	}
	return coerce[[]T](raw)
}

// Set is the typed form of AddToPayload.
func (c *PrimitiveArrayClaim[T]) Set(p Payload, value []T) Payload {
	return c.add(p, value)
}

type setCheck[T comparable] func(have map[T]struct{}) bool

// validator builds the shared refetch and validate steps; check decides the
// outcome once the value is known to exist and be fresh.
func (c *PrimitiveArrayClaim[T]) validator(opts []ValidatorOption, check setCheck[T], reason func(actual []T) Reason) *Validator {
	o := applyOptions(c.key, c.defaultMaxAge, opts)
	return &Validator{
		ID:    o.id,
		Claim: c,
		ShouldRefetch: func(p Payload) bool {
			if _, ok := c.Value(p); !ok {
				return true
			}
			_, expired := c.stale(p, o.maxAge)
			return expired
		},
		Validate: func(p Payload) Result {
			got, ok := c.Value(p)
			if !ok {
				r := reason(nil)
				r.Message = MessageNotExist
				return invalid(r)
			}
			if age, expired := c.stale(p, o.maxAge); expired {
				return expiredReason(age, o.maxAge)
			}
			if !check(toSet(got)) {
				r := reason(got)
				r.Message = MessageWrongValue
				return invalid(r)
			}
			return Valid
		},
	}
}

// Includes requires v to be present.
func (c *PrimitiveArrayClaim[T]) Includes(v T, opts ...ValidatorOption) *Validator {
	return c.validator(opts,
		func(have map[T]struct{}) bool { _, ok := have[v]; return ok },
		func(actual []T) Reason { return Reason{ExpectedToInclude: v, ActualValue: nilIfEmpty(actual)} })
}

// Excludes requires v to be absent.
func (c *PrimitiveArrayClaim[T]) Excludes(v T, opts ...ValidatorOption) *Validator {
	return c.validator(opts,
		func(have map[T]struct{}) bool { _, ok := have[v]; return !ok },
		func(actual []T) Reason { return Reason{ExpectedToNotInclude: v, ActualValue: nilIfEmpty(actual)} })
}

// IncludesAll requires every element of vs to be present.
func (c *PrimitiveArrayClaim[T]) IncludesAll(vs []T, opts ...ValidatorOption) *Validator {
	want := dedupe(vs)
	return c.validator(opts,
		func(have map[T]struct{}) bool {
			for _, v := range want {
				if _, ok := have[v]; !ok {
					return false
				}
			}
			return true
		},
		func(actual []T) Reason { return Reason{ExpectedToInclude: want, ActualValue: nilIfEmpty(actual)} })
}

// IncludesAny requires at least one element of vs to be present.
func (c *PrimitiveArrayClaim[T]) IncludesAny(vs []T, opts ...ValidatorOption) *Validator {
	want := dedupe(vs)
	return c.validator(opts,
		func(have map[T]struct{}) bool {
			for _, v := range want {
				if _, ok := have[v]; ok {
					return true
				}
			}
			return false
		},
		func(actual []T) Reason { return Reason{ExpectedToIncludeAny: want, ActualValue: nilIfEmpty(actual)} })
}

// ExcludesAll requires no element of vs to be present.
func (c *PrimitiveArrayClaim[T]) ExcludesAll(vs []T, opts ...ValidatorOption) *Validator {
	want := dedupe(vs)
	return c.validator(opts,
		func(have map[T]struct{}) bool {
			for _, v := range want {
				if _, ok := have[v]; ok {
					return false
				}
			}
			return true
		},
		func(actual []T) Reason { return Reason{ExpectedToNotInclude: want, ActualValue: nilIfEmpty(actual)} })
}

func toSet[T comparable](vs []T) map[T]struct{} {
	set := make(map[T]struct{}, len(vs))
	for _, v := range vs {
		set[v] = struct{}{}
	}
	return set
}

// dedupe keeps first occurrences in order.
func dedupe[T comparable](vs []T) []T {
	seen := make(map[T]struct{}, len(vs))
	out := make([]T, 0, len(vs))
	for _, v := range vs {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func nilIfEmpty[T any](vs []T) any {
	if vs == nil {
		return nil
	}
	return vs
}
