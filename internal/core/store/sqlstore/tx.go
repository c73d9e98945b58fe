package sqlstore

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/tabsession/internal/core/store"
)

type txStore struct {
	tx *sql.Tx
	q  *queries
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // the outer DB stays open

// Ping is a no-op; the connection is held by the transaction.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Sessions() store.Sessions                   { return &sessionsRepo{q: t.q} }
func (t *txStore) SigningKeys() store.SigningKeys             { return &signingKeysRepo{q: t.q} }
func (t *txStore) EmailVerification() store.EmailVerification { return &emailVerificationRepo{q: t.q} }
func (t *txStore) Roles() store.Roles                         { return &rolesRepo{q: t.q} }
func (t *txStore) TOTP() store.TOTP                           { return &totpRepo{q: t.q} }

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx
