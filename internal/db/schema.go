package db

import (
	"context"
	"database/sql"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS location (
		id          BIGSERIAL PRIMARY KEY,
		site_name   TEXT NOT NULL,
		room_number TEXT NOT NULL,
		room_name   TEXT NOT NULL,
		room_type   TEXT NOT NULL,
		floor       TEXT,
		building    TEXT,
		description TEXT,
		status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT location_site_room_key UNIQUE (site_name, room_number)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		id                  BIGSERIAL PRIMARY KEY,
		asset_tag           TEXT NOT NULL,
		asset_type          TEXT NOT NULL,
		manufacturer        TEXT,
		model               TEXT,
		serial_number       TEXT,
		status              TEXT NOT NULL DEFAULT 'active'
			CHECK (status IN ('active', 'in_repair', 'decommissioned', 'lost')),
		assigned_to         TEXT,
		date_assigned       TIMESTAMPTZ,
		date_decommissioned TIMESTAMPTZ,
		location_id         BIGINT REFERENCES location(id),
		is_loaner           BOOLEAN NOT NULL DEFAULT FALSE,
		current_checkout_id BIGINT,
		purchase_date       DATE,
		warranty_expiry     DATE,
		notes               TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT inventory_asset_tag_key UNIQUE (asset_tag),
		CONSTRAINT inventory_serial_number_key UNIQUE (serial_number),
		CONSTRAINT inventory_checkout_requires_loaner CHECK (current_checkout_id IS NULL OR is_loaner)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_location ON inventory(location_id)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_status ON inventory(status)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id          BIGSERIAL PRIMARY KEY,
		asset_tag   TEXT,
		location_id BIGINT,
		action_type TEXT NOT NULL CHECK (action_type IN ('CREATE', 'UPDATE', 'DELETE')),
		field_name  TEXT NOT NULL,
		old_value   TEXT,
		new_value   TEXT,
		changed_by  TEXT NOT NULL,
		changed_at  TIMESTAMPTZ NOT NULL,
		ip_address  TEXT,
		user_agent  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT audit_log_one_subject CHECK ((asset_tag IS NULL) <> (location_id IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_asset_tag ON audit_log(asset_tag)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_location_id ON audit_log(location_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_changed_by ON audit_log(changed_by)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_changed_at ON audit_log(changed_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS location (
		id          INTEGER PRIMARY KEY,
		site_name   TEXT NOT NULL,
		room_number TEXT NOT NULL,
		room_name   TEXT NOT NULL,
		room_type   TEXT NOT NULL,
		floor       TEXT,
		building    TEXT,
		description TEXT,
		status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
		created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (site_name, room_number)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		id                  INTEGER PRIMARY KEY,
		asset_tag           TEXT NOT NULL UNIQUE,
		asset_type          TEXT NOT NULL,
		manufacturer        TEXT,
		model               TEXT,
		serial_number       TEXT UNIQUE,
		status              TEXT NOT NULL DEFAULT 'active'
			CHECK (status IN ('active', 'in_repair', 'decommissioned', 'lost')),
		assigned_to         TEXT,
		date_assigned       TIMESTAMP,
		date_decommissioned TIMESTAMP,
		location_id         INTEGER REFERENCES location(id),
		is_loaner           BOOLEAN NOT NULL DEFAULT 0,
		current_checkout_id INTEGER,
		purchase_date       DATE,
		warranty_expiry     DATE,
		notes               TEXT,
		created_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (current_checkout_id IS NULL OR is_loaner)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_location ON inventory(location_id)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_status ON inventory(status)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id          INTEGER PRIMARY KEY,
		asset_tag   TEXT,
		location_id INTEGER,
		action_type TEXT NOT NULL CHECK (action_type IN ('CREATE', 'UPDATE', 'DELETE')),
		field_name  TEXT NOT NULL,
		old_value   TEXT,
		new_value   TEXT,
		changed_by  TEXT NOT NULL,
		changed_at  TIMESTAMP NOT NULL,
		ip_address  TEXT,
		user_agent  TEXT,
		created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK ((asset_tag IS NULL) <> (location_id IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_asset_tag ON audit_log(asset_tag)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_location_id ON audit_log(location_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_changed_by ON audit_log(changed_by)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_changed_at ON audit_log(changed_at)`,
}

// Tables lists the application tables in creation order.
var Tables = []string{"location", "inventory", "audit_log"}

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts := postgresSchema
	if dialect == SQLite {
		stmts = sqliteSchema
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema (statement %d): %w", i+1, err)
		}
	}
	return nil
}

// TableCounts returns the row count of every application table.
func TableCounts(ctx context.Context, db *sql.DB) (map[string]int, error) {
	counts := make(map[string]int, len(Tables))
	for _, table := range Tables {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
