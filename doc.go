// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the propjockey command.

propjockey tracks user demand for computing a property on catalog entries.
Signed-in users upvote entries they want computed; the feed blends entries
with active demand, entries still missing the property and entries that
already have it into one paginated list; a sweeper marks demand completed
once the property appears and mails the requesters.

# Commands

	propjockey serve       # HTTP API (GET /rows, POST /vote)
	propjockey sweep       # one completion and notification pass
	propjockey prioritize  # push demand counts to linked workflow jobs
	propjockey schema      # create tables or indexes
	propjockey config      # print the effective configuration

# Configuration

Settings come from flags, PROPJOCKEY_* environment variables (a .env file
is loaded first), ./propjockey.yaml or --config, then defaults:

	PROPJOCKEY_STORE_DRIVER=postgres PROPJOCKEY_STORE_URL=postgres://... \
	PROPJOCKEY_AUTH_SECRET=... propjockey serve -p 3318

serve requires auth.secret. Setting sweep.schedule (a cron expression such as
"@every 10m") runs the sweep and prioritizer inside serve.

# Architecture

  - ranking: tiered feed engine with cross-tier pagination
  - voting: upvote/downvote state machine with per-user limits
  - sweeper: completion and throttled, idempotent notification
  - store, memstore, db, mongostore: record store contract and backends
  - catalog: entry and demand views over a store
  - filter: filter expression compiler
  - notify, workflow, auth: delivery, job links and sessions
  - handlers, router, middleware: HTTP surface
  - cliparse, logger, metrics: configuration, zerolog, Prometheus

See package documentation for each component.
*/
package main
