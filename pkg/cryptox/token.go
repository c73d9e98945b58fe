package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically secure random token of the
// specified byte length, base64url-encoded without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MustGenerateToken is like GenerateToken but panics on error.
func MustGenerateToken(size int) string {
	token, err := GenerateToken(size)
	if err != nil {
		panic(fmt.Sprintf("cryptox: failed to generate token: %v", err))
	}
	return token
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token,
// base64url-encoded (43 chars). Used for email verification tokens which are
// stored hashed.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RefreshTokenHash1 is the first-generation hash of a refresh token. It is
// what access tokens carry in refreshTokenHash1 / parentRefreshTokenHash1.
func RefreshTokenHash1(refreshToken string) string {
	return sha256Hex(refreshToken)
}

// RefreshTokenHash2 is the hash the core persists for the live refresh token
// generation. hash2 = sha256(hash1), so a hash1 taken from an access token can
// be promoted without knowing the refresh token itself.
func RefreshTokenHash2(refreshToken string) string {
	return sha256Hex(RefreshTokenHash1(refreshToken))
}

// Hash1ToHash2 promotes a hash1 value to the persisted hash2 form.
func Hash1ToHash2(hash1 string) string {
	return sha256Hex(hash1)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
