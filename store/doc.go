// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package store defines the record store contracts shared by every backend.

# Collections

Three logical collections, each an interface:

  - Entries: catalog items, queried by Filter with sort/skip/limit
  - Demands: demand records, queried by DemandQuery, mutated atomically
  - Workflows: entry id to external job id links

Store bundles all three for one backend. Implementations:

  - memstore: in-process maps, for tests and local runs
  - db: SQL (PostgreSQL via lib/pq, SQLite via modernc.org/sqlite)
  - mongostore: MongoDB

# Filters

A Filter is a conjunction of Conditions:

	f := store.Filter{store.Eq("chemsys", "Fe-O")}.
		And(store.NotIn(store.FieldID, activeIDs), store.Missing("elasticity"))

Field "id" and "rank_value" address entry columns; any other field is a
dotted path into filter_attributes. Fields must match ValidateField.

# Atomic Updates

AddRequester and RemoveRequester change the requester set and
request_count in one update. The guard (membership test) is part of the
same update, so concurrent voters never lose increments and a requester
never appears twice.
*/
package store
