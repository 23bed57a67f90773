package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/miradorstack/mirador-correlator/internal/utils"
)

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, utils.StoreErr("postgres.open", "dsn is required", nil)
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, utils.StoreErr("postgres.open", "open database", err)
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, utils.StoreErr("postgres.open", "ping database", err)
	}
	return db, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS service_nodes (
		tenant_id         TEXT NOT NULL,
		name              TEXT NOT NULL,
		resource_type     TEXT NOT NULL DEFAULT 'unknown',
		provider          TEXT NOT NULL DEFAULT '',
		vpc_id            TEXT NOT NULL DEFAULT '',
		cloud_resource_id TEXT NOT NULL DEFAULT '',
		endpoint          TEXT NOT NULL DEFAULT '',
		labels            JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS dependency_edges (
		tenant_id       TEXT NOT NULL,
		from_service    TEXT NOT NULL,
		to_service      TEXT NOT NULL,
		dependency_type TEXT NOT NULL,
		confidence      DOUBLE PRECISION NOT NULL,
		discovered_from TEXT[] NOT NULL DEFAULT '{}',
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, from_service, to_service)
	)`,
	`CREATE INDEX IF NOT EXISTS dependency_edges_reverse_idx ON dependency_edges (tenant_id, to_service)`,
	`CREATE TABLE IF NOT EXISTS incidents (
		tenant_id  TEXT NOT NULL,
		id         TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		services   TEXT[] NOT NULL DEFAULT '{}',
		status     TEXT NOT NULL DEFAULT 'open',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS incidents_open_idx ON incidents (tenant_id, status, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS correlation_decisions (
		id            TEXT PRIMARY KEY,
		tenant_id     TEXT NOT NULL,
		alert_id      TEXT NOT NULL DEFAULT '',
		alert_service TEXT NOT NULL DEFAULT '',
		alert_title   TEXT NOT NULL DEFAULT '',
		outcome       TEXT NOT NULL,
		incident_id   TEXT NOT NULL DEFAULT '',
		score         DOUBLE PRECISION NOT NULL,
		threshold     DOUBLE PRECISION NOT NULL,
		scores        JSONB NOT NULL DEFAULT '[]'::jsonb,
		decided_at    TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the tables used by the graph and incident stores.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return utils.StoreErr("postgres.schema", fmt.Sprintf("statement %d", i), err)
		}
	}
	return nil
}
