// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/danielhkuo/propjockey/cliparse"
	"github.com/danielhkuo/propjockey/handlers"
	"github.com/danielhkuo/propjockey/metrics"
	"github.com/danielhkuo/propjockey/middleware"
)

func NewRouter(feed *handlers.FeedHandler, votes *handlers.VotingHandler, cfg cliparse.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics, middleware.Logging, middleware.CORS(cfg.Server.CORSOrigins...))

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	// Feed and votes. OPTIONS is routed so CORS can answer preflights.
	r.HandleFunc("/rows", feed.Rows).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/vote", votes.Vote).Methods(http.MethodPost, http.MethodOptions)

	// Metrics
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Root endpoint
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("propjockey API v1"))
	}).Methods(http.MethodGet)

	return r
}
