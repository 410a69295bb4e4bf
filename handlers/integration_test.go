// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/notify"
	"github.com/danielhkuo/propjockey/sweeper"
	"github.com/danielhkuo/propjockey/testutil"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return http.StatusOK, nil
}

func getRows(t *testing.T, handler *FeedHandler, path, token string) models.RowsResponse {
	t.Helper()
	var headers map[string]string
	if token != "" {
		headers = testutil.Bearer(token)
	}
	w := httptest.NewRecorder()
	handler.Rows(w, testutil.MakeRequest("GET", path, nil, headers))
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.RowsResponse
	testutil.AssertJSON(t, w, &resp)
	return resp
}

func rowIDs(rows []models.Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID + ":" + string(r.Tier)
	}
	return ids
}

// TestFullDemandWorkflow tests the complete end-to-end workflow:
// 1. Browse a filtered feed with no demand
// 2. Request an entry
// 3. See it in the active tier
// 4. The property is computed for the entry
// 5. A sweep completes the record and notifies the requester
// 6. The requester's own feed lists it as done
func TestFullDemandWorkflow(t *testing.T) {
	cfg := testutil.GetTestConfig()
	app := testutil.NewTestAppWithStore(t, cfg, testutil.SetupTestDB(t))
	feed := NewFeedHandler(app.Feed, app.Sessions, FeedConfig{}, zerolog.Nop())
	votes := NewVotingHandler(app.Votes, app.Sessions, zerolog.Nop())

	testutil.AddTestEntry(t, app.Store, "mp-1", 0.1, map[string]any{"chemsys": "Li-O", "formula": "Li2O"})
	testutil.AddTestEntry(t, app.Store, "mp-2", 0.2, map[string]any{"chemsys": "Li-O", "formula": "Li2O2", "elasticity": map[string]any{"k_vrh": 80}})
	testutil.AddTestEntry(t, app.Store, "mp-3", 0.0, map[string]any{"chemsys": "Fe-O", "formula": "FeO"})
	alice := testutil.CreateTestSession(t, app, "alice@example.org")

	// Step 1: nothing is requested yet
	resp := getRows(t, feed, "/rows?filter=Li-O", "")
	if got := strings.Join(rowIDs(resp.Rows), " "); got != "mp-1:inactive_missing mp-2:inactive_has" {
		t.Fatalf("Step 1 - unexpected rows: %s", got)
	}
	if !resp.NoMore {
		t.Error("Step 1 - expected nomore")
	}
	if resp.Rows[1].PropertyLink != "https://example.org/materials/mp-2#elasticity" {
		t.Errorf("Step 1 - unexpected property link %q", resp.Rows[1].PropertyLink)
	}
	if len(getRows(t, feed, "/rows", "").Rows) != 0 {
		t.Error("Step 1 - unfiltered feed should be empty without demand")
	}

	// Step 2: alice requests mp-1
	w := postVote(votes, alice, "mp-1", "up")
	testutil.AssertStatus(t, w, http.StatusOK)

	// Step 3: mp-1 moves to the active tier
	resp = getRows(t, feed, "/rows?filter=Li-O", alice)
	if got := strings.Join(rowIDs(resp.Rows), " "); got != "mp-1:active mp-2:inactive_has" {
		t.Fatalf("Step 3 - unexpected rows: %s", got)
	}
	active := resp.Rows[0]
	if active.RequestCount == nil || *active.RequestCount != 1 {
		t.Errorf("Step 3 - expected request_count 1, got %v", active.RequestCount)
	}
	if active.VotedByCaller == nil || !*active.VotedByCaller {
		t.Error("Step 3 - expected voted_by_caller")
	}
	anon := getRows(t, feed, "/rows", "")
	if len(anon.Rows) != 1 || anon.Rows[0].VotedByCaller == nil || *anon.Rows[0].VotedByCaller {
		t.Errorf("Step 3 - anonymous feed should show mp-1 unvoted, got %+v", anon.Rows)
	}

	// Step 4: the property is computed
	testutil.AddTestEntry(t, app.Store, "mp-1", 0.1, map[string]any{"chemsys": "Li-O", "formula": "Li2O", "elasticity": map[string]any{"k_vrh": 54}})

	// Step 5: sweep
	mailer := &recordingMailer{}
	templates, err := notify.ParseTemplates(notify.TemplateConfig{})
	if err != nil {
		t.Fatalf("Failed to parse templates: %v", err)
	}
	sw := sweeper.New(app.Entries, app.Demands, mailer, templates, sweeper.Config{
		From:    "propjockey <noreply@example.org>",
		StaffTo: []string{"staff@example.org"},
	}, zerolog.Nop())
	rep, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("Step 5 - sweep failed: %v", err)
	}
	if rep.Completed != 1 || rep.Notified != 1 || !rep.SummarySent {
		t.Errorf("Step 5 - unexpected report %+v", rep)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("Step 5 - expected 2 messages, got %d", len(mailer.sent))
	}
	if mailer.sent[0].To[0] != "alice@example.org" || !strings.Contains(mailer.sent[0].Text, "https://example.org/materials/mp-1#elasticity") {
		t.Errorf("Step 5 - unexpected requester message %+v", mailer.sent[0])
	}

	// A second sweep sends nothing
	rep, err = sw.Run(context.Background())
	if err != nil || rep.Completed != 0 || rep.Notified != 0 || len(mailer.sent) != 2 {
		t.Errorf("Step 5 - second sweep should be a no-op: %+v %v", rep, err)
	}

	// Step 6: the caller's own feed
	resp = getRows(t, feed, "/rows?useronly=true", alice)
	if got := strings.Join(rowIDs(resp.Rows), " "); got != "mp-1:inactive_has" {
		t.Errorf("Step 6 - unexpected rows: %s", got)
	}
	resp = getRows(t, feed, "/rows?filter=Li-O", alice)
	if got := strings.Join(rowIDs(resp.Rows), " "); got != "mp-1:inactive_has mp-2:inactive_has" {
		t.Errorf("Step 6 - unexpected filtered rows: %s", got)
	}
}

// TestVoteAfterCompletionStartsNewRecord verifies that a completed entry
// can be requested again
func TestVoteAfterCompletionStartsNewRecord(t *testing.T) {
	app := testutil.NewTestApp(t, testutil.GetTestConfig())
	votes := NewVotingHandler(app.Votes, app.Sessions, zerolog.Nop())
	ctx := context.Background()

	testutil.AddTestVote(t, app, "mp-1", "alice@example.org")
	rec, err := app.Demands.ActiveFor(ctx, "mp-1")
	if err != nil || rec == nil {
		t.Fatalf("Expected an active record: %v", err)
	}
	if ok, err := app.Demands.Complete(ctx, rec.ID); err != nil || !ok {
		t.Fatalf("Failed to complete record: %v", err)
	}

	w := postVote(votes, testutil.CreateTestSession(t, app, "alice@example.org"), "mp-1", "up")
	testutil.AssertStatus(t, w, http.StatusOK)

	next, err := app.Demands.ActiveFor(ctx, "mp-1")
	if err != nil || next == nil {
		t.Fatalf("Expected a new active record: %v", err)
	}
	if next.ID == rec.ID {
		t.Error("Expected a fresh record after completion")
	}
	if next.RequestCount != 1 {
		t.Errorf("Expected request_count 1, got %d", next.RequestCount)
	}
}

// TestDownvoteKeepsRecord verifies that the last requester leaving keeps the
// record at zero and out of the active tier
func TestDownvoteKeepsRecord(t *testing.T) {
	app := testutil.NewTestApp(t, testutil.GetTestConfig())
	feed := NewFeedHandler(app.Feed, app.Sessions, FeedConfig{}, zerolog.Nop())
	votes := NewVotingHandler(app.Votes, app.Sessions, zerolog.Nop())
	testutil.AddTestEntry(t, app.Store, "mp-1", 0.1, map[string]any{"chemsys": "Li-O"})
	token := testutil.CreateTestSession(t, app, "alice@example.org")

	testutil.AssertStatus(t, postVote(votes, token, "mp-1", "up"), http.StatusOK)
	testutil.AssertStatus(t, postVote(votes, token, "mp-1", "down"), http.StatusOK)

	rec, err := app.Demands.ActiveFor(context.Background(), "mp-1")
	if err != nil || rec == nil {
		t.Fatalf("Expected the record to be kept: %v", err)
	}
	if rec.RequestCount != 0 || len(rec.Requesters) != 0 {
		t.Errorf("Expected an empty record, got %+v", rec)
	}
	if rows := getRows(t, feed, "/rows", "").Rows; len(rows) != 0 {
		t.Errorf("Expected no active rows, got %v", rowIDs(rows))
	}
}
