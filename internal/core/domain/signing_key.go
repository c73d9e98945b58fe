package domain

import "time"

// SigningKey is an access token signing key. The private key is sealed at
// rest and retired keys keep verifying until ExpiresAt.
type SigningKey struct {
	ID               string     // ULID
	Kid              string     // Key identifier in JWKS (e.g., "st-abc123")
	Algorithm        string     // RS256, ES256, or EdDSA
	PrivateKeySealed []byte     // XChaCha20-Poly1305 sealed private key PEM
	CreatedAt        time.Time  // When the key was created
	RetiredAt        *time.Time // When key was retired from active signing (nil = active)
	ExpiresAt        time.Time  // Hard deletion after this (for cleanup)
}

// IsActive returns true if the key is not retired and not expired.
func (k *SigningKey) IsActive(now time.Time) bool {
	return k.RetiredAt == nil && now.Before(k.ExpiresAt)
}
