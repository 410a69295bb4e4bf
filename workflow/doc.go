// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package workflow connects entries to jobs in an external workflow
// system. A Linker resolves job ids for feed rows and the Prioritizer
// raises the priority of jobs whose entries are in demand.
package workflow
