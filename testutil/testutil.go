// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/danielhkuo/propjockey/auth"
	"github.com/danielhkuo/propjockey/catalog"
	"github.com/danielhkuo/propjockey/cliparse"
	"github.com/danielhkuo/propjockey/db"
	"github.com/danielhkuo/propjockey/filter"
	"github.com/danielhkuo/propjockey/memstore"
	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/ranking"
	"github.com/danielhkuo/propjockey/store"
	"github.com/danielhkuo/propjockey/voting"
	"github.com/danielhkuo/propjockey/workflow"
)

// TestSecret signs session tokens in tests
const TestSecret = "test-session-secret"

// GetTestConfig returns the default configuration with a test secret
func GetTestConfig() cliparse.Config {
	v := viper.New()
	cliparse.SetDefaults(v)
	var cfg cliparse.Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	cfg.Auth.Secret = TestSecret
	cfg.Entries.DescriptionFields = []string{"formula", "symbol"}
	cfg.Entries.EntryURL = "https://example.org/materials/{id}"
	cfg.Entries.PropertyURL = "https://example.org/materials/{id}#elasticity"
	cfg.Workflows.URL = "https://example.org/jobs/{id}"
	return cfg
}

// SetupTestDB opens an in-memory SQLite store with the full schema
func SetupTestDB(t *testing.T) *db.Store {
	t.Helper()

	st, err := db.Open(context.Background(), "sqlite", ":memory:", "elasticity")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// App is a fully wired set of components over one store
type App struct {
	Config   cliparse.Config
	Store    store.Store
	Entries  *catalog.EntryView
	Demands  *catalog.DemandView
	Feed     *ranking.Engine
	Votes    *voting.Engine
	Sessions *auth.Sessions
}

// NewTestApp wires every component over a fresh memory store
func NewTestApp(t *testing.T, cfg cliparse.Config) *App {
	t.Helper()
	return NewTestAppWithStore(t, cfg, memstore.New(cfg.Entries.Property))
}

// NewTestAppWithStore wires every component over st
func NewTestAppWithStore(t *testing.T, cfg cliparse.Config, st store.Store) *App {
	t.Helper()

	entries := catalog.NewEntryView(st, catalog.Config{
		Property:          cfg.Entries.Property,
		DescriptionFields: cfg.Entries.DescriptionFields,
		EntryURL:          cfg.Entries.EntryURL,
		PropertyURL:       cfg.Entries.PropertyURL,
		WorkflowURL:       cfg.Workflows.URL,
	}, nil)
	demands := catalog.NewDemandView(st, cfg.Entries.Property)
	links := workflow.NewStoreLinker(st)
	log := zerolog.Nop()

	return &App{
		Config:   cfg,
		Store:    st,
		Entries:  entries,
		Demands:  demands,
		Feed:     ranking.NewEngine(entries, demands, links, filter.Criteria{DefaultField: cfg.Entries.DefaultFilterField}, log),
		Votes:    voting.NewEngine(demands, voting.Config{MaxActivePerUser: cfg.Votes.MaxActivePerUser}, log),
		Sessions: auth.NewSessions(cfg.Auth.Secret, cfg.Auth.CookieName),
	}
}

// AddTestEntry inserts an entry. attrs become its filter attributes.
func AddTestEntry(t *testing.T, st store.Entries, id string, rank float64, attrs map[string]any) {
	t.Helper()

	raw, err := json.Marshal(attrs)
	if err != nil {
		t.Fatalf("Failed to encode attributes: %v", err)
	}
	if err := st.UpsertEntry(context.Background(), models.Entry{ID: id, RankValue: rank, Attributes: raw}); err != nil {
		t.Fatalf("Failed to create test entry: %v", err)
	}
}

// AddTestVote upvotes entryID as user
func AddTestVote(t *testing.T, app *App, entryID, user string) {
	t.Helper()

	out, err := app.Votes.Upvote(context.Background(), user, entryID)
	if err != nil || out.Status != models.StatusSuccess {
		t.Fatalf("Failed to create test vote: %v %+v", err, out)
	}
}

// CreateTestSession returns a bearer token for user
func CreateTestSession(t *testing.T, app *App, user string) string {
	t.Helper()

	token, err := app.Sessions.Issue(user, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}
	return token
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body any, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// Bearer returns the Authorization header for token
func Bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
