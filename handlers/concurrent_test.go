// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/testutil"
)

func postVote(handler *VotingHandler, token, entryID, direction string) *httptest.ResponseRecorder {
	req := testutil.MakeRequest("POST", "/vote", models.VoteRequest{EntryID: entryID, Direction: direction}, testutil.Bearer(token))
	w := httptest.NewRecorder()
	handler.Vote(w, req)
	return w
}

// TestConcurrentUpvotes verifies that simultaneous upvotes from different
// users on one entry all land in a single active record
func TestConcurrentUpvotes(t *testing.T) {
	app := testutil.NewTestAppWithStore(t, testutil.GetTestConfig(), testutil.SetupTestDB(t))
	handler := NewVotingHandler(app.Votes, app.Sessions, zerolog.Nop())

	numVoters := 10
	tokens := make([]string, numVoters)
	for i := range tokens {
		tokens[i] = testutil.CreateTestSession(t, app, fmt.Sprintf("voter%d@example.org", i))
	}

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < numVoters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if w := postVote(handler, tokens[i], "mp-1", "up"); w.Code == http.StatusOK {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if int(successCount.Load()) != numVoters {
		t.Errorf("Expected %d successful votes, got %d", numVoters, successCount.Load())
	}

	recs, err := app.Demands.AllActive(context.Background())
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected exactly one active record, got %d", len(recs))
	}
	if recs[0].RequestCount != numVoters || len(recs[0].Requesters) != numVoters {
		t.Errorf("Expected %d requesters, got count=%d requesters=%v", numVoters, recs[0].RequestCount, recs[0].Requesters)
	}
}

// TestConcurrentRepeatUpvotes verifies that one user racing the same upvote
// is counted once and every other attempt is rejected
func TestConcurrentRepeatUpvotes(t *testing.T) {
	app := testutil.NewTestAppWithStore(t, testutil.GetTestConfig(), testutil.SetupTestDB(t))
	handler := NewVotingHandler(app.Votes, app.Sessions, zerolog.Nop())
	token := testutil.CreateTestSession(t, app, "alice@example.org")

	attempts := 8
	var ok, conflict atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch postVote(handler, token, "mp-1", "up").Code {
			case http.StatusOK:
				ok.Add(1)
			case http.StatusConflict:
				conflict.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 {
		t.Errorf("Expected exactly 1 successful upvote, got %d", ok.Load())
	}
	if int(conflict.Load()) != attempts-1 {
		t.Errorf("Expected %d conflicts, got %d", attempts-1, conflict.Load())
	}

	rec, err := app.Demands.ActiveFor(context.Background(), "mp-1")
	if err != nil || rec == nil {
		t.Fatalf("Expected an active record, got %v %v", rec, err)
	}
	if rec.RequestCount != 1 {
		t.Errorf("Expected request_count 1, got %d", rec.RequestCount)
	}
}

// TestConcurrentUpAndDown verifies that interleaved upvotes and downvotes
// leave request_count equal to the size of the requester set
func TestConcurrentUpAndDown(t *testing.T) {
	app := testutil.NewTestApp(t, testutil.GetTestConfig())
	handler := NewVotingHandler(app.Votes, app.Sessions, zerolog.Nop())

	numUsers := 12
	tokens := make([]string, numUsers)
	for i := range tokens {
		user := fmt.Sprintf("user%d@example.org", i)
		tokens[i] = testutil.CreateTestSession(t, app, user)
		if i%2 == 0 {
			testutil.AddTestVote(t, app, "mp-1", user)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < numUsers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := "up"
			if i%2 == 0 {
				dir = "down"
			}
			if w := postVote(handler, tokens[i], "mp-1", dir); w.Code != http.StatusOK {
				t.Errorf("user %d %s: status %d %s", i, dir, w.Code, w.Body.String())
			}
		}(i)
	}
	wg.Wait()

	rec, err := app.Demands.ActiveFor(context.Background(), "mp-1")
	if err != nil || rec == nil {
		t.Fatalf("Expected an active record, got %v %v", rec, err)
	}
	if rec.RequestCount != len(rec.Requesters) {
		t.Errorf("request_count %d does not match %d requesters", rec.RequestCount, len(rec.Requesters))
	}
	if rec.RequestCount != numUsers/2 {
		t.Errorf("Expected %d requesters, got %d", numUsers/2, rec.RequestCount)
	}
	for _, u := range rec.Requesters {
		var n int
		fmt.Sscanf(u, "user%d@", &n)
		if n%2 == 0 {
			t.Errorf("%s withdrew but is still a requester", u)
		}
	}
}

// TestParallelEntries verifies that votes on different entries don't
// interfere
func TestParallelEntries(t *testing.T) {
	app := testutil.NewTestAppWithStore(t, testutil.GetTestConfig(), testutil.SetupTestDB(t))
	handler := NewVotingHandler(app.Votes, app.Sessions, zerolog.Nop())

	numEntries := 5
	votersPerEntry := 3
	var wg sync.WaitGroup
	for e := 0; e < numEntries; e++ {
		for v := 0; v < votersPerEntry; v++ {
			token := testutil.CreateTestSession(t, app, fmt.Sprintf("voter%d@example.org", v))
			wg.Add(1)
			go func(entryID, token string) {
				defer wg.Done()
				if w := postVote(handler, token, entryID, "up"); w.Code != http.StatusOK {
					t.Errorf("vote on %s: status %d", entryID, w.Code)
				}
			}(fmt.Sprintf("mp-%d", e), token)
		}
	}
	wg.Wait()

	recs, err := app.Demands.AllActive(context.Background())
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(recs) != numEntries {
		t.Fatalf("Expected %d active records, got %d", numEntries, len(recs))
	}
	for _, r := range recs {
		if r.RequestCount != votersPerEntry {
			t.Errorf("%s: expected %d requests, got %d", r.EntryID, votersPerEntry, r.RequestCount)
		}
	}
}
