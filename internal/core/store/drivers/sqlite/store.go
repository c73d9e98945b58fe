// Package sqlite opens the core store on a modernc sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aussiebroadwan/tabsession/internal/core/store/sqlstore"

	_ "modernc.org/sqlite"
)

// DSN builds a connection string for a database file. Every pooled
// connection gets the pragmas, and transactions take the write lock up front
// so concurrent refreshes queue instead of failing to upgrade.
func DSN(file string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		file,
	)
}

func NewStore(dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sqlstore.New(db, sqlstore.SQLite, ApplyMigrations), nil
}
