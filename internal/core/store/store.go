package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Sub-repositories hang off it so a Tx-scoped Store can hand
// out the same repos without allowing transactions within transactions.
type Store interface {
	Sessions() Sessions
	SigningKeys() SigningKeys
	EmailVerification() EmailVerification
	Roles() Roles
	TOTP() TOTP

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSession returns ErrNotFound for unknown handles, expired or not.
	GetSession(ctx context.Context, handle string) (domain.Session, error)

	// GetSessionForUpdate is GetSession inside a Tx; postgres locks the row.
	GetSessionForUpdate(ctx context.Context, handle string) (domain.Session, error)

	// UpdateRefreshTokenHash2 commits a refresh token generation and slides
	// the expiry.
	UpdateRefreshTokenHash2(ctx context.Context, handle, hash2 string, expiresAt time.Time) error

	UpdateUserDataInJWT(ctx context.Context, handle string, data map[string]any) error
	UpdateUserDataInDatabase(ctx context.Context, handle string, data map[string]any) error

	// ListSessionHandlesForUser returns live handles, oldest first. An empty
	// tenantID means every tenant.
	ListSessionHandlesForUser(ctx context.Context, tenantID, userID string, now time.Time) ([]string, error)

	// DeleteSessions removes the given handles and returns the ones that existed.
	DeleteSessions(ctx context.Context, handles []string) ([]string, error)

	// DeleteExpiredSessions is housekeeping.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type SigningKeys interface {
	// CreateSigningKey stores a new signing key with sealed private key material.
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// GetSigningKeyByKid fetches a signing key by its key identifier.
	GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error)

	// ListSigningKeys returns every key not yet past expires_at, newest first.
	ListSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error)

	// RetireSigningKey marks a key as retired. Retired keys still verify.
	RetireSigningKey(ctx context.Context, kid string, at time.Time) error

	// DeleteExpiredSigningKeys is housekeeping.
	DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error)
}

type EmailVerification interface {
	CreateToken(ctx context.Context, t domain.EmailVerificationToken) error

	// GetToken returns ErrNotFound for unknown or expired tokens.
	GetToken(ctx context.Context, tenantID, tokenHash string, now time.Time) (domain.EmailVerificationToken, error)

	// DeleteTokensForUser removes pending tokens of one (user, email) pair.
	DeleteTokensForUser(ctx context.Context, tenantID, userID, email string) error

	// MarkVerified is idempotent.
	MarkVerified(ctx context.Context, userID, email string, at time.Time) error
	IsVerified(ctx context.Context, userID, email string) (bool, error)
	Unverify(ctx context.Context, userID, email string) error

	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

type Roles interface {
	// CreateRole returns ErrAlreadyExists when the role is already defined.
	CreateRole(ctx context.Context, role string, at time.Time) error
	RoleExists(ctx context.Context, role string) (bool, error)

	// DeleteRole cascades to permissions and user assignments and returns
	// ErrNotFound for unknown roles.
	DeleteRole(ctx context.Context, role string) error
	ListRoles(ctx context.Context) ([]string, error)

	AddPermissions(ctx context.Context, role string, permissions []string) error
	RemovePermissions(ctx context.Context, role string, permissions []string) error
	ListPermissions(ctx context.Context, role string) ([]string, error)
	ListRolesWithPermission(ctx context.Context, permission string) ([]string, error)

	// AddUserRole returns ErrAlreadyExists when the user already has it.
	AddUserRole(ctx context.Context, tenantID, userID, role string) error

	// RemoveUserRole returns ErrNotFound when the user did not have it.
	RemoveUserRole(ctx context.Context, tenantID, userID, role string) error
	ListUserRoles(ctx context.Context, tenantID, userID string) ([]string, error)
	ListUsersWithRole(ctx context.Context, tenantID, role string) ([]string, error)
}

type TOTP interface {
	// CreateDevice returns ErrAlreadyExists for a duplicate (user, name).
	CreateDevice(ctx context.Context, d domain.TOTPDevice) error
	GetDevice(ctx context.Context, userID, name string) (domain.TOTPDevice, error)
	ListDevices(ctx context.Context, userID string) ([]domain.TOTPDevice, error)
	MarkDeviceVerified(ctx context.Context, userID, name string) error

	// RenameDevice returns ErrNotFound or ErrAlreadyExists.
	RenameDevice(ctx context.Context, userID, oldName, newName string) error

	// DeleteDevice returns ErrNotFound when no such device existed.
	DeleteDevice(ctx context.Context, userID, name string) error

	RecordAttempt(ctx context.Context, a domain.TOTPAttempt) error

	// ListAttempts returns unexpired attempts of a user, newest first.
	ListAttempts(ctx context.Context, tenantID, userID string, now time.Time) ([]domain.TOTPAttempt, error)
	DeleteExpiredAttempts(ctx context.Context, now time.Time) (int64, error)
}
