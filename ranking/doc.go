// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ranking builds the paginated entry feed.

The feed is the concatenation of three tiers, always in this order:

  - active: entries with an active demand record, by request_count and
    then rank_value
  - inactive_missing: entries without the property, by rank_value
  - inactive_has: entries that already have the property, by rank_value

Ties inside a tier fall back to the entry id, so a page is a stable
window into the concatenation. Requests without a filter get the active
tier only.

A page is fetched with one extra row. When that row exists the page is
trimmed and NoMore is false.
*/
package ranking
