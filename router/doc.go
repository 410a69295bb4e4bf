// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the propjockey API.

# Route Registration

NewRouter creates a gorilla/mux router with all endpoints:

	r := router.NewRouter(feedHandler, votingHandler, cfg)

# Endpoints

	GET  /health  - Liveness check, returns "OK"
	GET  /rows    - Tiered feed page (JSON or HTML)
	POST /vote    - Upvote or downvote an entry (session required)
	GET  /metrics - Prometheus metrics
	GET  /        - Banner

# Middleware

Every matched route passes through, outermost first:

  - middleware.Metrics: request count and latency per route template
  - middleware.Logging: zerolog request log
  - middleware.CORS: origins from server.cors_origins, every origin when empty
*/
package router
