package session

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
)

// ErrorType classifies a session Error.
type ErrorType string

const (
	// Unauthorised means there is no session to recover; clients sign in
	// again.
	Unauthorised ErrorType = "UNAUTHORISED"
	// TryRefreshToken means the access token is unusable but the refresh
	// token may still be good.
	TryRefreshToken ErrorType = "TRY_REFRESH_TOKEN"
	// TokenTheftDetected means a refresh token was replayed outside its
	// generation. The session is revoked.
	TokenTheftDetected ErrorType = "TOKEN_THEFT_DETECTED"
	// InvalidClaims means the session is valid but at least one claim
	// validator failed.
	InvalidClaims ErrorType = "INVALID_CLAIMS"
)

// Sentinels matched by errors.Is against an *Error of the same type.
var (
	ErrUnauthorised       = &Error{Type: Unauthorised}
	ErrTryRefreshToken    = &Error{Type: TryRefreshToken}
	ErrTokenTheftDetected = &Error{Type: TokenTheftDetected}
	ErrInvalidClaims      = &Error{Type: InvalidClaims}
)

// ErrSessionNotFound is returned by handle based accessors when the core no
// longer knows the session.
var ErrSessionNotFound = errors.New("session: session does not exist")

// ClaimValidationError is one failed validator.
type ClaimValidationError struct {
	ID     string         `json:"id"`
	Reason *claims.Reason `json:"reason,omitempty"`
}

// TheftPayload identifies the session a replayed refresh token belonged to.
type TheftPayload struct {
	SessionHandle string
	UserID        string
	RecipeUserID  string
}

// Error is the session recipe's error. Type decides how the error handler
// responds.
type Error struct {
	Type    ErrorType
	Message string

	// ClearTokens asks the error handler to remove the client's tokens.
	ClearTokens bool

	ClaimValidationErrors []ClaimValidationError
	Theft                 *TheftPayload

	Err error
}

func (e *Error) Error() string {
	msg := string(e.Type)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

func unauthorised(clearTokens bool, format string, args ...any) *Error {
	return &Error{Type: Unauthorised, Message: fmt.Sprintf(format, args...), ClearTokens: clearTokens}
}

func tryRefresh(format string, args ...any) *Error {
	return &Error{Type: TryRefreshToken, Message: fmt.Sprintf(format, args...)}
}

// tokenError collapses every codec failure into TRY_REFRESH_TOKEN. Callers
// only need to know that a refresh may help.
func tokenError(err error) *Error {
	msg := "access token invalid"
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		msg = "access token expired"
	case errors.Is(err, jwtx.ErrStructure):
		msg = "access token payload malformed"
	case errors.Is(err, jwtx.ErrInvalidSig), errors.Is(err, jwtx.ErrUnknownKID):
		msg = "access token signature invalid"
	}
	return &Error{Type: TryRefreshToken, Message: msg, Err: err}
}

func invalidClaims(errs []ClaimValidationError) *Error {
	return &Error{Type: InvalidClaims, Message: "invalid claim", ClaimValidationErrors: errs}
}

// IsSessionError reports whether err carries an *Error.
func IsSessionError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

func errorsIsType(err error, t ErrorType) bool {
	var se *Error
	return errors.As(err, &se) && se.Type == t
}
