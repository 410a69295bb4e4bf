// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	r.HandleFunc("/health", middleware.WithLogging(handler))

or install Logging on a router. Completion lines carry method, path,
status and duration_ms and go to the zerolog global logger.

# Metrics

Metrics counts requests and observes latency per gorilla/mux path
template, so /rows?pnum=3 and /rows?pnum=4 share a series.

# CORS Middleware

	r.Use(middleware.CORS("https://example.org"))

Without arguments every origin is reflected. Allows GET, POST and OPTIONS
with headers Content-Type and Authorization.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")
	middleware.CodedErrorResponse(w, http.StatusConflict, models.CodeAlreadyVoted, "message")

# Client IP Extraction

	ip := middleware.GetClientIP(r)

Handles X-Forwarded-For and X-Real-IP.
*/
package middleware
