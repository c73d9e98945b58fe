package claims

// Validator checks one claim in a payload. ShouldRefetch must be a pure,
// cheap function of the payload and the clock; it runs on every request.
type Validator struct {
	ID string
	// Claim is refetched when ShouldRefetch reports true. Nil for validators
	// that never refetch.
	Claim         SessionClaim
	ShouldRefetch func(p Payload) bool
	Validate      func(p Payload) Result
}

// Result is the outcome of Validate. Reason is set whenever IsValid is false.
type Result struct {
	IsValid bool
	Reason  *Reason
}

// Reason explains a failed validation in a form clients can act on.
type Reason struct {
	Message              string `json:"message"`
	ExpectedValue        any    `json:"expectedValue,omitempty"`
	ActualValue          any    `json:"actualValue,omitempty"`
	ExpectedToInclude    any    `json:"expectedToInclude,omitempty"`
	ExpectedToNotInclude any    `json:"expectedToNotInclude,omitempty"`
	ExpectedToIncludeAny any    `json:"expectedToIncludeAny,omitempty"`
	MaxAgeInSeconds      *int64 `json:"maxAgeInSeconds,omitempty"`
	AgeInSeconds         *int64 `json:"ageInSeconds,omitempty"`
}

// Reason messages.
const (
	MessageNotExist   = "value does not exist"
	MessageExpired    = "expired"
	MessageWrongValue = "wrong value"
)

// Valid is the passing Result.
var Valid = Result{IsValid: true}

func invalid(r Reason) Result {
	return Result{Reason: &r}
}

func expiredReason(age, maxAge int64) Result {
	return invalid(Reason{Message: MessageExpired, AgeInSeconds: &age, MaxAgeInSeconds: &maxAge})
}

// ValidatorOption adjusts a built-in validator.
type ValidatorOption func(*validatorOptions)

type validatorOptions struct {
	id     string
	maxAge int64
}

// WithMaxAge overrides the claim's default max age. Zero disables the check.
func WithMaxAge(seconds int64) ValidatorOption {
	return func(o *validatorOptions) { o.maxAge = seconds }
}

// WithID overrides the validator id, which defaults to the claim key.
func WithID(id string) ValidatorOption {
	return func(o *validatorOptions) { o.id = id }
}

func applyOptions(key string, defaultMaxAge int64, opts []ValidatorOption) validatorOptions {
	o := validatorOptions{id: key, maxAge: defaultMaxAge}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Custom builds a validator that never refetches.
func Custom(id string, validate func(p Payload) Result) *Validator {
	return &Validator{
		ID:            id,
		ShouldRefetch: func(Payload) bool { return false },
		Validate:      validate,
	}
}
