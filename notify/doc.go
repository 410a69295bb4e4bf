// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package notify delivers completion mail. The delivery mechanism is a
// Mailer chosen once at startup (log, null or mailgun); message text comes
// from text/template sources in the configuration.
package notify
