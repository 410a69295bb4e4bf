// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db is the SQL record store, for PostgreSQL (lib/pq) and SQLite
(modernc.org/sqlite), built on sqlx.

# Opening

	s, err := db.Open(ctx, "postgres", url, "elasticity")
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

Open pings the server and runs CreateSchema, which is safe to call
multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - entry: catalog entries; filter attributes as JSONB (TEXT on SQLite)
  - demand: demand records; requesters as a JSON array
  - workflow_link: entry id to external job id, with job priority

# Invariants

A unique partial index on demand(entry_id, property) WHERE state = 'ACTIVE'
keeps at most one active record per entry. Upvotes are a single
INSERT .. ON CONFLICT DO UPDATE whose WHERE clause rejects existing
members; downvotes are a single UPDATE guarded by membership and
request_count > 0. Either way the requester list and request_count move
together in one statement.

# Filters

store.Filter conditions become SQL over the attribute column. Values are
bound as parameters; field paths are checked with store.ValidateField and
inlined. Attribute equality is type-aware: a JSON number never equals a
string, and ne/nin also match entries where the attribute is missing.
*/
package db
