package claims

import "context"

// PrimitiveConfig configures a scalar claim.
type PrimitiveConfig[T comparable] struct {
	Key   string
	Fetch FetchFunc[T]
	// DefaultMaxAgeInSeconds applies to validators built without WithMaxAge.
	// Zero means values never go stale.
	DefaultMaxAgeInSeconds int64
	Now                    Clock
}

// PrimitiveClaim holds a single comparable value.
type PrimitiveClaim[T comparable] struct {
	envelope
	fetch         FetchFunc[T]
	defaultMaxAge int64
}

// NewPrimitiveClaim returns a scalar claim.
func NewPrimitiveClaim[T comparable](cfg PrimitiveConfig[T]) *PrimitiveClaim[T] {
	return &PrimitiveClaim[T]{
		envelope:      newEnvelope(cfg.Key, cfg.Now),
		fetch:         cfg.Fetch,
		defaultMaxAge: cfg.DefaultMaxAgeInSeconds,
	}
}

func (c *PrimitiveClaim[T]) FetchValue(ctx context.Context, userID, recipeUserID, tenantID string, current Payload) (any, bool, error) {
	if c.fetch == nil {
		return nil, false, nil
	}
	v, ok, err := c.fetch(ctx, userID, recipeUserID, tenantID, current)
	if err != nil || !ok {
		return nil, false, err
	}
	return v, true, nil
}

func (c *PrimitiveClaim[T]) AddToPayload(p Payload, value any) Payload {
	return c.add(p, value)
}

func (c *PrimitiveClaim[T]) GetValueFromPayload(p Payload) (any, bool) {
	v, ok := c.Value(p)
	if !ok {
		return nil, false
	}
	return v, true
}

// Value is the typed form of GetValueFromPayload.
func (c *PrimitiveClaim[T]) Value(p Payload) (T, bool) {
	raw, ok := c.rawValue(p)
	if !ok {
		var zero T
		return zero, false
	}
	return coerce[T](raw)
}

// Set is the typed form of AddToPayload.
func (c *PrimitiveClaim[T]) Set(p Payload, value T) Payload {
	return c.add(p, value)
}

func (c *PrimitiveClaim[T]) shouldRefetch(maxAge int64) func(Payload) bool {
	return func(p Payload) bool {
		if _, ok := c.Value(p); !ok {
			return true
		}
		_, expired := c.stale(p, maxAge)
		return expired
	}
}

// HasValue requires the claim to equal want and, when a max age applies, to
// have been fetched recently enough.
func (c *PrimitiveClaim[T]) HasValue(want T, opts ...ValidatorOption) *Validator {
	o := applyOptions(c.key, c.defaultMaxAge, opts)
	return &Validator{
		ID:            o.id,
		Claim:         c,
		ShouldRefetch: c.shouldRefetch(o.maxAge),
		Validate: func(p Payload) Result {
			got, ok := c.Value(p)
			if !ok {
				return invalid(Reason{Message: MessageNotExist, ExpectedValue: want})
			}
			if age, expired := c.stale(p, o.maxAge); expired {
				return expiredReason(age, o.maxAge)
			}
			if got != want {
				return invalid(Reason{Message: MessageWrongValue, ExpectedValue: want, ActualValue: got})
			}
			return Valid
		},
	}
}
