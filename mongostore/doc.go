// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package mongostore is the MongoDB record store.

Entries keep their filter attributes as a subdocument, so the filter field
"chemsys" queries "attributes.chemsys". Demand records carry requesters as
an array; upvotes are one UpdateOne with $push and $inc, guarded by
{requesters: {$ne: user}} and backed by a partial unique index on
(entry_id, property) for ACTIVE records.
*/
package mongostore
