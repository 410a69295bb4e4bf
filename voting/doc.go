// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package voting applies upvotes and downvotes to demand records.

# Per-user state

For one user and entry the state is either absent or requested:

	absent --upvote--> requested --downvote--> absent

Repeating a vote hits a guard (ErrAlreadyVoted, ErrNotVoted). Callers that
retry a request should treat those as success.

# Limits

Config.MaxActivePerUser caps how many active records a user may belong to.
At the cap an upvote returns an Outcome with status VOTE_LIMIT_REACHED and
a nil error; nothing is written.

# Atomicity

The membership checks read first for a precise error, but the write
itself is one guarded store update. If a concurrent request wins the race
the store rejects the update and the engine reports the guard error.

With a cap configured, one Engine serialises the upvotes of each user, so
the count and the write cannot interleave with that user's other upvotes.
Engines in separate processes over one store do not share these locks;
there two simultaneous upvotes at the cap can both land, leaving the user
one record over the limit until a downvote.
*/
package voting
