// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line flags and configuration.

# Sources

Load fills a typed Config from, highest priority first:

 1. Flags bound with BindFlags
 2. Environment variables (PROPJOCKEY_*), including a .env file
 3. The config file (--config, default ./propjockey.yaml)
 4. Defaults from SetDefaults

Nested keys map to variables with underscores:

	store.url       → PROPJOCKEY_STORE_URL
	auth.secret     → PROPJOCKEY_AUTH_SECRET
	notify.throttle → PROPJOCKEY_NOTIFY_THROTTLE

# CLI Flags

	-p, --port       Server port
	-t, --driver     Store driver (memory, postgres, sqlite, mongo)
	-d, --store-url  Store URL
	--log-level      Log level
	--pretty         Human readable logs

# Validation

Validate checks driver, mailer and linker names and their required
settings. ValidateServe also requires auth.secret.

# Example

	v := viper.New()
	cliparse.BindFlags(v, cmd.Flags())
	cfg, err := cliparse.Load(v, configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
*/
package cliparse
