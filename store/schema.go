package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect names double as database/sql driver names
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// CreateSchema creates the tables and indexes. Safe to call repeatedly.
func CreateSchema(ctx context.Context, db *sql.DB, dialect string) error {
	ddl := schema
	if dialect == DialectPostgres {
		ddl = strings.NewReplacer(
			"TIMESTAMP", "TIMESTAMPTZ",
			"REAL", "DOUBLE PRECISION",
		).Replace(ddl)
	}
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    password TEXT NOT NULL,
    roles TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS service_requests (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    description TEXT NOT NULL,
    address TEXT NOT NULL,
    neighborhood TEXT,
    latitude REAL,
    longitude REAL,
    status TEXT NOT NULL CHECK (status IN ('Open', 'InProgress', 'Closed')),
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    submitted_by_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_service_requests_status ON service_requests(status, created_at);
CREATE INDEX IF NOT EXISTS idx_service_requests_submitted_by ON service_requests(submitted_by_id);

CREATE TABLE IF NOT EXISTS upvotes (
    id TEXT PRIMARY KEY,
    service_request_id TEXT NOT NULL REFERENCES service_requests(id) ON DELETE CASCADE,
    user_id TEXT,
    ip_address TEXT,
    created_at TIMESTAMP NOT NULL,
    CHECK ((user_id IS NULL) <> (ip_address IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_upvotes_request_user
    ON upvotes(service_request_id, user_id) WHERE user_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS uniq_upvotes_request_ip
    ON upvotes(service_request_id, ip_address) WHERE user_id IS NULL;
`
