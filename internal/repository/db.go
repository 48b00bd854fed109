package repository

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// dialect holds the few SQL fragments that differ between Postgres and SQLite.
type dialect struct {
	// jsonParam is the placeholder used for JSON-typed parameters.
	jsonParam string
	// mergeJSON renders an expression merging incoming keys over current ones.
	mergeJSON func(current, incoming string) string
	schema    []string
}

var postgres = dialect{
	jsonParam: "CAST(? AS jsonb)",
	mergeJSON: func(current, incoming string) string {
		return current + " || " + incoming
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS donations (
			id BIGSERIAL PRIMARY KEY,
			transaction_id TEXT UNIQUE,
			tx_ref TEXT UNIQUE,
			amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'USD',
			status TEXT NOT NULL CHECK (status IN ('processing','succeeded','failed','cancelled')),
			payment_provider TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL DEFAULT '',
			donor_name TEXT NOT NULL DEFAULT 'Anonymous',
			donor_email TEXT NOT NULL DEFAULT '',
			donor_phone TEXT NOT NULL DEFAULT '',
			campaign_id TEXT REFERENCES campaigns(id),
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			revision INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_status ON donations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_created_at ON donations(created_at)`,
		`CREATE TABLE IF NOT EXISTS payment_webhooks (
			id BIGSERIAL PRIMARY KEY,
			provider TEXT NOT NULL,
			event_type TEXT NOT NULL DEFAULT '',
			event_id TEXT NOT NULL,
			delivery_id TEXT UNIQUE NOT NULL,
			payload JSONB NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT false,
			processing_error TEXT NOT NULL DEFAULT '',
			donation_id BIGINT,
			received_at TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_webhooks_event ON payment_webhooks(provider, event_id)`,
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	},
}

var sqlite = dialect{
	jsonParam: "?",
	mergeJSON: func(current, incoming string) string {
		return "json_patch(" + current + ", " + incoming + ")"
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS donations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id TEXT UNIQUE,
			tx_ref TEXT UNIQUE,
			amount TEXT NOT NULL DEFAULT '0',
			currency TEXT NOT NULL DEFAULT 'USD',
			status TEXT NOT NULL CHECK (status IN ('processing','succeeded','failed','cancelled')),
			payment_provider TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL DEFAULT '',
			donor_name TEXT NOT NULL DEFAULT 'Anonymous',
			donor_email TEXT NOT NULL DEFAULT '',
			donor_phone TEXT NOT NULL DEFAULT '',
			campaign_id TEXT REFERENCES campaigns(id),
			metadata TEXT NOT NULL DEFAULT '{}',
			revision INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_status ON donations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_created_at ON donations(created_at)`,
		`CREATE TABLE IF NOT EXISTS payment_webhooks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider TEXT NOT NULL,
			event_type TEXT NOT NULL DEFAULT '',
			event_id TEXT NOT NULL,
			delivery_id TEXT UNIQUE NOT NULL,
			payload TEXT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT 0,
			processing_error TEXT NOT NULL DEFAULT '',
			donation_id INTEGER,
			received_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_webhooks_event ON payment_webhooks(provider, event_id)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
}

func dialectFor(db *sqlx.DB) dialect {
	if db.DriverName() == DriverSQLite {
		return sqlite
	}
	return postgres
}

// InitDB connects with the given driver ("pgx" or "sqlite") and makes sure
// every table exists. Pass driver "sqlite" and dsn ":memory:" for tests.
func InitDB(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if driver == DriverSQLite {
		// An in-memory database lives and dies with its connection.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("exec %s: %w", pragma, err)
			}
		}
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sqlx.DB) error {
	for _, stmt := range dialectFor(db).schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// isUniqueViolation matches the unique-constraint errors of both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
