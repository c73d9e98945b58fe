package claims

// BooleanClaim is a PrimitiveClaim[bool] with IsTrue and IsFalse shorthands.
type BooleanClaim struct {
	*PrimitiveClaim[bool]
}

// NewBooleanClaim returns a boolean claim.
func NewBooleanClaim(cfg PrimitiveConfig[bool]) *BooleanClaim {
	return &BooleanClaim{PrimitiveClaim: NewPrimitiveClaim(cfg)}
}

// IsTrue is HasValue(true).
func (c *BooleanClaim) IsTrue(opts ...ValidatorOption) *Validator {
	return c.HasValue(true, opts...)
}

// IsFalse is HasValue(false).
func (c *BooleanClaim) IsFalse(opts ...ValidatorOption) *Validator {
	return c.HasValue(false, opts...)
}
