// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains the HTTP request handlers for the propjockey API.

# Handler Types

  - FeedHandler: the ranked, paginated entry feed
  - VotingHandler: upvotes and downvotes on entries

Handlers take their engine and an Identity that resolves the caller:

	feed := handlers.NewFeedHandler(engine, sessions, cfg, log)

# Feed

	GET /rows?filter=Fe-O&which=active,inactive_missing&psize=20&pnum=1

Parameters: filter, which, psort and ssort (incr or decr), useronly,
psize (capped at MaxPageSize), pnum and format (json or html). Malformed
filters return 400 with code BAD_FILTER.

# Voting

	POST /vote {"entry_id": "mp-149", "direction": "up"}

Form values work too. Status codes:

  - 401 AUTH_REQUIRED without a session
  - 409 ALREADY_VOTED or NOT_VOTED on a repeated vote
  - 200 VOTE_LIMIT_REACHED when the caller holds too many active requests
  - 400 BAD_REQUEST for a missing entry_id or unknown direction
*/
package handlers
