// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"fmt"
	"strings"
)

// Dialect holds the SQL that differs between PostgreSQL and SQLite. The
// attribute column is JSONB on PostgreSQL and JSON text on SQLite.
type Dialect struct {
	Name string

	// JSONParam wraps a placeholder that carries JSON text.
	JSONParam string

	// value extracts an attribute as SQL text/number; raw keeps JSON.
	value  func(path []string) string
	raw    func(path []string) string
	kind   func(path []string) string
	member string
	// kinds reported by kind() for JSON numbers and strings.
	numberKinds string
	stringKind  string

	upvote   string
	downvote string
	schema   string
}

var Postgres = Dialect{
	Name:      "postgres",
	JSONParam: "?::jsonb",
	value: func(path []string) string {
		return fmt.Sprintf("(attributes #>> '{%s}')", strings.Join(path, ","))
	},
	raw: func(path []string) string {
		return fmt.Sprintf("(attributes #> '{%s}')", strings.Join(path, ","))
	},
	kind: func(path []string) string {
		return fmt.Sprintf("jsonb_typeof(attributes #> '{%s}')", strings.Join(path, ","))
	},
	member:      "requesters @> jsonb_build_array(?::text)",
	numberKinds: "('number')",
	stringKind:  "'string'",
	upvote: `
		INSERT INTO demand (id, entry_id, property, state, requesters, request_count, notified, created_at, updated_at)
		VALUES (?, ?, ?, 'ACTIVE', jsonb_build_array(?::text), 1, FALSE, ?, ?)
		ON CONFLICT (entry_id, property) WHERE state = 'ACTIVE'
		DO UPDATE SET
			requesters = demand.requesters || jsonb_build_array(?::text),
			request_count = demand.request_count + 1,
			updated_at = EXCLUDED.updated_at
		WHERE NOT demand.requesters @> jsonb_build_array(?::text)`,
	downvote: `
		UPDATE demand SET
			requesters = requesters - ?::text,
			request_count = request_count - 1,
			updated_at = ?
		WHERE entry_id = ? AND property = ? AND state = 'ACTIVE'
			AND request_count > 0
			AND requesters @> jsonb_build_array(?::text)`,
	schema: postgresSchema,
}

var SQLite = Dialect{
	Name:      "sqlite",
	JSONParam: "?",
	value: func(path []string) string {
		return fmt.Sprintf("json_extract(attributes, '%s')", sqlitePath(path))
	},
	raw: func(path []string) string {
		return fmt.Sprintf("json_extract(attributes, '%s')", sqlitePath(path))
	},
	kind: func(path []string) string {
		return fmt.Sprintf("json_type(attributes, '%s')", sqlitePath(path))
	},
	member:      "EXISTS (SELECT 1 FROM json_each(demand.requesters) WHERE value = ?)",
	numberKinds: "('integer', 'real')",
	stringKind:  "'text'",
	upvote: `
		INSERT INTO demand (id, entry_id, property, state, requesters, request_count, notified, created_at, updated_at)
		VALUES (?, ?, ?, 'ACTIVE', json_array(?), 1, FALSE, ?, ?)
		ON CONFLICT (entry_id, property) WHERE state = 'ACTIVE'
		DO UPDATE SET
			requesters = json_insert(demand.requesters, '$[#]', ?),
			request_count = demand.request_count + 1,
			updated_at = excluded.updated_at
		WHERE NOT EXISTS (SELECT 1 FROM json_each(demand.requesters) WHERE value = ?)`,
	downvote: `
		UPDATE demand SET
			requesters = (SELECT json_group_array(value) FROM json_each(demand.requesters) WHERE value <> ?),
			request_count = request_count - 1,
			updated_at = ?
		WHERE entry_id = ? AND property = ? AND state = 'ACTIVE'
			AND request_count > 0
			AND EXISTS (SELECT 1 FROM json_each(demand.requesters) WHERE value = ?)`,
	schema: sqliteSchema,
}

// DialectFor maps a driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return Postgres, nil
	case "sqlite":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported SQL driver %q", driver)
}

// sqlitePath quotes every key so names with dashes stay addressable.
func sqlitePath(path []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, p := range path {
		b.WriteString(`."`)
		b.WriteString(p)
		b.WriteString(`"`)
	}
	return b.String()
}

func (d Dialect) exists(path []string) string {
	if d.Name == "postgres" {
		return d.raw(path) + " IS NOT NULL"
	}
	return d.kind(path) + " IS NOT NULL"
}
