// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package sweeper moves satisfied demand to COMPLETED and tells the
requesters.

A run has three phases. Each active record whose entry now has the
property is completed. Each completed record that is not yet notified has
its requesters mailed one at a time, paced by Config.Throttle, and is
marked notified only after every send succeeded. When at least one record
was notified the staff list gets a summary.

The notified flag is the only state, so a run can be cancelled or crash at
any point. The next run resends to the requesters of unmarked records.
Records without requesters are marked without sending.
*/
package sweeper
