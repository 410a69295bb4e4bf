// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Domain Types

Data shared by every store backend and engine:

  - Entry: catalog item (id, rank_value, filter_attributes, computed has_property)
  - DemandRecord: per-entry vote ledger (requesters, request_count, state, notified)
  - WorkflowLink: entry id to external job id, with job priority

# Request Types

  - VoteRequest: entry_id, direction ("up" or "down")

# Response Types

  - Row: one feed line (id, description, rank_value, tier-dependent fields)
  - RowsResponse: rows, nomore
  - VoteResponse: status, entry_id, message
  - ErrorResponse: error, code, message

# Constants

Demand states:

	StateActive    = "ACTIVE"
	StateCompleted = "COMPLETED"

Feed tiers (priority order):

	TierActive          = "active"
	TierInactiveMissing = "inactive_missing"
	TierInactiveHas     = "inactive_has"

Response codes:

	AUTH_REQUIRED, ALREADY_VOTED, NOT_VOTED, VOTE_LIMIT_REACHED, BAD_FILTER
*/
package models
