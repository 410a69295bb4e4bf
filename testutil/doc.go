// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package testutil builds wired components, seeded stores and signed
// requests for handler and router tests.
package testutil
