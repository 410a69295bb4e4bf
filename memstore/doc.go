// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package memstore is an in-process store.Store. Filter attributes are
// evaluated with gjson paths, so dotted fields behave the same as in the
// SQL and Mongo backends. Used by tests and by the "memory" driver.
package memstore
