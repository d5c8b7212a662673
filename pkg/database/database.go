// Package database opens the SQL connection selected by DATABASE_URL.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Driver names registered by the imported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrInMemory is returned for the "memory" URL; callers fall back to in-process stores.
var ErrInMemory = errors.New("in-memory storage selected")

// ParseURL maps a DATABASE_URL to a driver name and DSN.
//
//	postgres://... or postgresql://...  -> lib/pq
//	sqlite://path, file:path, *.db      -> modernc sqlite
//	memory or ""                        -> ErrInMemory
func ParseURL(url string) (driver, dsn string, err error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "" || url == "memory":
		return "", "", ErrInMemory
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(url, "sqlite://"), nil
	case strings.HasPrefix(url, "file:"), strings.HasSuffix(url, ".db"), url == ":memory:":
		return DriverSQLite, url, nil
	}
	return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %q", url)
}

// Open opens and pings the database described by url.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	driver, dsn, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s: %w", driver, err)
	}
	return db, nil
}
