// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package filter compiles feed filter expressions into store filters.
// Every malformed expression fails with an error wrapping ErrBadFilter.
package filter
