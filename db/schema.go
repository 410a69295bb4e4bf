// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sqlx.DB, d Dialect) error {
	_, err := db.Exec(d.schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const postgresSchema = `
-- Catalog entries
CREATE TABLE IF NOT EXISTS entry (
    id TEXT PRIMARY KEY,
    rank_value DOUBLE PRECISION NOT NULL DEFAULT 0,
    attributes JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_entry_rank_value ON entry(rank_value);

-- Demand records
CREATE TABLE IF NOT EXISTS demand (
    id TEXT PRIMARY KEY,
    entry_id TEXT NOT NULL,
    property TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (state IN ('ACTIVE', 'COMPLETED')),
    requesters JSONB NOT NULL DEFAULT '[]'::jsonb,
    request_count INTEGER NOT NULL DEFAULT 0 CHECK (request_count >= 0),
    notified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_demand_active ON demand(entry_id, property) WHERE state = 'ACTIVE';
CREATE INDEX IF NOT EXISTS idx_demand_state ON demand(property, state, request_count);
CREATE INDEX IF NOT EXISTS idx_demand_requesters ON demand USING GIN (requesters);

-- Workflow links
CREATE TABLE IF NOT EXISTS workflow_link (
    entry_id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL,
    priority DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_workflow_link_job_id ON workflow_link(job_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entry (
    id TEXT PRIMARY KEY,
    rank_value REAL NOT NULL DEFAULT 0,
    attributes TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_entry_rank_value ON entry(rank_value);

CREATE TABLE IF NOT EXISTS demand (
    id TEXT PRIMARY KEY,
    entry_id TEXT NOT NULL,
    property TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (state IN ('ACTIVE', 'COMPLETED')),
    requesters TEXT NOT NULL DEFAULT '[]',
    request_count INTEGER NOT NULL DEFAULT 0 CHECK (request_count >= 0),
    notified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_demand_active ON demand(entry_id, property) WHERE state = 'ACTIVE';
CREATE INDEX IF NOT EXISTS idx_demand_state ON demand(property, state, request_count);

CREATE TABLE IF NOT EXISTS workflow_link (
    entry_id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL,
    priority REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_workflow_link_job_id ON workflow_link(job_id);
`
