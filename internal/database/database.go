// Package database opens the relational store used as SQL source and sink.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnsupportedDriver is returned for drivers other than sqlite and postgres.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Dialect renders the driver-specific parts of a statement.
type Dialect string

// DialectFor returns the dialect of driver.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
		return Dialect(driver), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}

	return "?"
}

// Quote quotes an identifier. Both dialects accept double-quoted names.
func (d Dialect) Quote(name string) string {
	return pq.QuoteIdentifier(name)
}

// Open connects to dsn with driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if _, err := DialectFor(driver); err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// An in-memory sqlite database exists per connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	return db, nil
}
