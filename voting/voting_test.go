// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/propjockey/catalog"
	"github.com/danielhkuo/propjockey/memstore"
	"github.com/danielhkuo/propjockey/models"
)

func newEngine(t *testing.T, max int) (*Engine, *catalog.DemandView) {
	t.Helper()
	demands := catalog.NewDemandView(memstore.New("elasticity"), "elasticity")
	return NewEngine(demands, Config{MaxActivePerUser: max}, zerolog.Nop()), demands
}

func TestVote(t *testing.T) {
	tests := []struct {
		name       string
		setup      []models.VoteRequest
		user       string
		req        models.VoteRequest
		wantErr    error
		wantStatus string
	}{
		{
			name:    "no user",
			req:     models.VoteRequest{EntryID: "mp-1", Direction: models.DirectionUp},
			wantErr: ErrAuthRequired,
		},
		{
			name:    "no user downvote",
			req:     models.VoteRequest{EntryID: "mp-1", Direction: models.DirectionDown},
			wantErr: ErrAuthRequired,
		},
		{
			name:       "first upvote",
			user:       "alice",
			req:        models.VoteRequest{EntryID: "mp-1", Direction: models.DirectionUp},
			wantStatus: models.StatusSuccess,
		},
		{
			name:    "repeat upvote",
			user:    "alice",
			setup:   []models.VoteRequest{{EntryID: "mp-1", Direction: models.DirectionUp}},
			req:     models.VoteRequest{EntryID: "mp-1", Direction: models.DirectionUp},
			wantErr: ErrAlreadyVoted,
		},
		{
			name:    "downvote without record",
			user:    "alice",
			req:     models.VoteRequest{EntryID: "mp-1", Direction: models.DirectionDown},
			wantErr: ErrNotVoted,
		},
		{
			name:       "downvote after upvote",
			user:       "alice",
			setup:      []models.VoteRequest{{EntryID: "mp-1", Direction: models.DirectionUp}},
			req:        models.VoteRequest{EntryID: "mp-1", Direction: models.DirectionDown},
			wantStatus: models.StatusSuccess,
		},
		{
			name: "repeat downvote",
			user: "alice",
			setup: []models.VoteRequest{
				{EntryID: "mp-1", Direction: models.DirectionUp},
				{EntryID: "mp-1", Direction: models.DirectionDown},
			},
			req:     models.VoteRequest{EntryID: "mp-1", Direction: models.DirectionDown},
			wantErr: ErrNotVoted,
		},
		{
			name:    "missing entry",
			user:    "alice",
			req:     models.VoteRequest{Direction: models.DirectionUp},
			wantErr: ErrMissingEntry,
		},
		{
			name:    "bad direction",
			user:    "alice",
			req:     models.VoteRequest{EntryID: "mp-1", Direction: "sideways"},
			wantErr: ErrInvalidDirection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine(t, 0)
			ctx := context.Background()
			for _, s := range tt.setup {
				_, err := e.Vote(ctx, tt.user, s)
				require.NoError(t, err)
			}

			out, err := e.Vote(ctx, tt.user, tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.req.EntryID, out.EntryID)
		})
	}
}

func TestVoteRoundTripRestoresRecord(t *testing.T) {
	ctx := context.Background()
	e, demands := newEngine(t, 0)

	_, err := e.Upvote(ctx, "bob", "mp-1")
	require.NoError(t, err)
	before, err := demands.ActiveFor(ctx, "mp-1")
	require.NoError(t, err)

	_, err = e.Upvote(ctx, "alice", "mp-1")
	require.NoError(t, err)
	_, err = e.Downvote(ctx, "alice", "mp-1")
	require.NoError(t, err)

	after, err := demands.ActiveFor(ctx, "mp-1")
	require.NoError(t, err)
	assert.Equal(t, before.Requesters, after.Requesters)
	assert.Equal(t, before.RequestCount, after.RequestCount)
}

func TestUpvoteMessage(t *testing.T) {
	e, _ := newEngine(t, 0)
	out, err := e.Upvote(context.Background(), "alice", "mp-7")
	require.NoError(t, err)
	assert.Equal(t, "success: upvoted mp-7", out.Message)
}

func TestVoteLimit(t *testing.T) {
	ctx := context.Background()
	e, demands := newEngine(t, 2)

	for _, id := range []string{"mp-1", "mp-2"} {
		out, err := e.Upvote(ctx, "alice", id)
		require.NoError(t, err)
		require.Equal(t, models.StatusSuccess, out.Status)
	}

	out, err := e.Upvote(ctx, "alice", "mp-3")
	require.NoError(t, err, "the limit is a soft rejection")
	assert.Equal(t, models.CodeVoteLimitReached, out.Status)
	assert.NotEmpty(t, out.Message)

	rec, err := demands.ActiveFor(ctx, "mp-3")
	require.NoError(t, err)
	assert.Nil(t, rec, "no record is written past the limit")

	// Other users are unaffected.
	out, err = e.Upvote(ctx, "bob", "mp-3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, out.Status)

	// Freeing a slot lets the user vote again.
	_, err = e.Downvote(ctx, "alice", "mp-1")
	require.NoError(t, err)
	out, err = e.Upvote(ctx, "alice", "mp-3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, out.Status)
}

func TestConcurrentUpvotes(t *testing.T) {
	ctx := context.Background()
	e, demands := newEngine(t, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := e.Upvote(ctx, fmt.Sprintf("user-%d", i%20), "mp-1")
			if err == nil && out.Status == models.StatusSuccess {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if err != nil && !errors.Is(err, ErrAlreadyVoted) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	rec, err := demands.ActiveFor(ctx, "mp-1")
	require.NoError(t, err)
	assert.Equal(t, 20, successes)
	assert.Equal(t, 20, rec.RequestCount)
	assert.Len(t, rec.Requesters, 20)
}

// slowCount widens the gap between counting and writing.
type slowCount struct {
	*catalog.DemandView
}

func (s slowCount) ActiveCount(ctx context.Context, user string) (int, error) {
	n, err := s.DemandView.ActiveCount(ctx, user)
	time.Sleep(20 * time.Millisecond)
	return n, err
}

func TestConcurrentUpvotesRespectLimit(t *testing.T) {
	ctx := context.Background()
	demands := catalog.NewDemandView(memstore.New("elasticity"), "elasticity")
	e := NewEngine(slowCount{demands}, Config{MaxActivePerUser: 3}, zerolog.Nop())

	for _, id := range []string{"mp-1", "mp-2"} {
		out, err := e.Upvote(ctx, "alice", id)
		require.NoError(t, err)
		require.Equal(t, models.StatusSuccess, out.Status)
	}

	var wg sync.WaitGroup
	var accepted, limited atomic.Int32
	for _, id := range []string{"mp-3", "mp-4", "mp-5", "mp-6"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			out, err := e.Upvote(ctx, "alice", id)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			switch out.Status {
			case models.StatusSuccess:
				accepted.Add(1)
			case models.CodeVoteLimitReached:
				limited.Add(1)
			}
		}(id)
	}
	// Another user is not held up by alice's lock.
	out, err := e.Upvote(ctx, "bob", "mp-3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, out.Status)
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(3), limited.Load())
	n, err := demands.ActiveCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, e.users.locks, "locks are released once idle")
}

type failingDemands struct{ err error }

func (f failingDemands) ActiveFor(context.Context, string) (*models.DemandRecord, error) {
	return nil, f.err
}
func (f failingDemands) ActiveCount(context.Context, string) (int, error)     { return 0, f.err }
func (f failingDemands) Upvote(context.Context, string, string) (bool, error)   { return false, f.err }
func (f failingDemands) Downvote(context.Context, string, string) (bool, error) { return false, f.err }

func TestStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	e := NewEngine(failingDemands{err: boom}, Config{}, zerolog.Nop())

	_, err := e.Upvote(context.Background(), "alice", "mp-1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, models.CodeServiceUnavailable, Code(err))
}

func TestCode(t *testing.T) {
	assert.Equal(t, models.CodeAuthRequired, Code(ErrAuthRequired))
	assert.Equal(t, models.CodeAlreadyVoted, Code(fmt.Errorf("wrapped: %w", ErrAlreadyVoted)))
	assert.Equal(t, models.CodeNotVoted, Code(ErrNotVoted))
	assert.Equal(t, models.CodeBadRequest, Code(ErrInvalidDirection))
}
