package domain

import "time"

// EmailVerificationToken is a pending verification for one (user, email)
// pair. Only the fingerprint of the token is stored.
type EmailVerificationToken struct {
	TokenHash string
	TenantID  string
	UserID    string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
