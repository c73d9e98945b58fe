package domain

import "time"

// Session is the core's record of one login. RefreshTokenHash2 identifies the
// committed refresh token generation; a child generation is promoted when it
// is first used.
type Session struct {
	Handle             string // ULID
	UserID             string
	RecipeUserID       string
	TenantID           string
	RefreshTokenHash2  string
	UserDataInJWT      map[string]any
	UserDataInDatabase map[string]any
	ExpiresAt          time.Time // Sliding; pushed out on every refresh
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsExpired reports whether the session can no longer be refreshed.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
