// Package postgres opens the core store on postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/store/sqlstore"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewStore opens dsn (a postgres:// URL or key=value string) and checks the
// connection.
func NewStore(dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return sqlstore.New(db, sqlstore.Postgres, ApplyMigrations), nil
}
