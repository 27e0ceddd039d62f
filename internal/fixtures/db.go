// Package fixtures looks up test data the portal scenarios need in the
// portals' own databases.
package fixtures

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/testforge/portalsuite/internal/config"
)

// DB wraps sqlx.DB
type DB struct {
	*sqlx.DB
	name string
}

// driverName maps the configured driver onto the registered sql driver
func driverName(driver string) (string, error) {
	switch driver {
	case "", "sqlserver", "mssql":
		return "sqlserver", nil
	case "postgres", "postgresql":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects to one fixture database and verifies the connection
func Open(ctx context.Context, name string, cfg config.DatabaseConfig, opts config.DatabaseOptions) (*DB, error) {
	drv, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	cfg.Driver = drv

	db, err := sqlx.Open(drv, cfg.DSN(opts))
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", name, err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", name, err)
	}

	return &DB{DB: db, name: name}, nil
}

// NewFromDSN wraps an already configured connection
func NewFromDSN(driver, dsn, name string) (*DB, error) {
	drv, err := driverName(driver)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Connect(drv, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s database: %w", name, err)
	}
	return &DB{DB: db, name: name}, nil
}

// Name identifies the database in logs
func (db *DB) Name() string {
	return db.name
}

// Health checks database connectivity
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}
