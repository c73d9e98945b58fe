package domain

import "time"

// TOTPDevice is an authenticator registered to a user. The shared secret is
// sealed at rest.
type TOTPDevice struct {
	UserID       string
	Name         string
	SecretSealed []byte
	Period       int // seconds
	Skew         int // periods accepted either side of now
	Verified     bool
	CreatedAt    time.Time
}

// TOTPAttempt records one code submission. Valid attempts block replay of
// the same code; invalid ones count towards the lockout.
type TOTPAttempt struct {
	ID        string // ULID
	TenantID  string
	UserID    string
	Code      string
	Valid     bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
