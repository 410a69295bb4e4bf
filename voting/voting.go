// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/danielhkuo/propjockey/metrics"
	"github.com/danielhkuo/propjockey/models"
)

var (
	ErrAuthRequired     = errors.New("authentication required")
	ErrAlreadyVoted     = errors.New("already voted")
	ErrNotVoted         = errors.New("not voted")
	ErrMissingEntry     = errors.New("entry_id required")
	ErrInvalidDirection = errors.New("direction must be up or down")
)

// Demands is the slice of the demand view the engine needs.
type Demands interface {
	ActiveFor(ctx context.Context, entryID string) (*models.DemandRecord, error)
	ActiveCount(ctx context.Context, user string) (int, error)
	Upvote(ctx context.Context, entryID, user string) (bool, error)
	Downvote(ctx context.Context, entryID, user string) (bool, error)
}

// Config holds the vote limits. MaxActivePerUser <= 0 disables the cap.
type Config struct {
	MaxActivePerUser int
}

// Outcome is the result of an applied or softly rejected vote.
type Outcome struct {
	Status    string
	EntryID   string
	Direction string
	Message   string
}

type Engine struct {
	demands Demands
	cfg     Config
	log     zerolog.Logger
	users   userLocks
}

// userLocks serialises the capped upvotes of one user so the count and
// the write are not interleaved with another upvote by the same user.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(user string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*userLock{}
	}
	ul := l.locks[user]
	if ul == nil {
		ul = &userLock{}
		l.locks[user] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		if ul.refs--; ul.refs == 0 {
			delete(l.locks, user)
		}
		l.mu.Unlock()
	}
}

func NewEngine(demands Demands, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		demands: demands,
		cfg:     cfg,
		log:     log.With().Str("component", "voting").Logger(),
	}
}

// Vote dispatches on direction and counts the outcome.
func (e *Engine) Vote(ctx context.Context, user string, req models.VoteRequest) (Outcome, error) {
	out, err := e.vote(ctx, user, req)
	code := out.Status
	if err != nil {
		code = Code(err)
	}
	dir := req.Direction
	if dir != models.DirectionUp && dir != models.DirectionDown {
		dir = "invalid"
	}
	metrics.Votes.WithLabelValues(dir, code).Inc()
	return out, err
}

func (e *Engine) vote(ctx context.Context, user string, req models.VoteRequest) (Outcome, error) {
	if user == "" {
		return Outcome{}, ErrAuthRequired
	}
	if req.EntryID == "" {
		return Outcome{}, ErrMissingEntry
	}
	switch req.Direction {
	case models.DirectionUp:
		return e.Upvote(ctx, user, req.EntryID)
	case models.DirectionDown:
		return e.Downvote(ctx, user, req.EntryID)
	}
	return Outcome{}, ErrInvalidDirection
}

// Upvote adds user to the entry's active record, creating it if needed.
// Reaching the per-user cap is not an error: the outcome carries
// VOTE_LIMIT_REACHED and nothing is written.
func (e *Engine) Upvote(ctx context.Context, user, entryID string) (Outcome, error) {
	if user == "" {
		return Outcome{}, ErrAuthRequired
	}

	rec, err := e.demands.ActiveFor(ctx, entryID)
	if err != nil {
		return Outcome{}, fmt.Errorf("look up demand for %s: %w", entryID, err)
	}
	if rec != nil && rec.HasRequester(user) {
		return Outcome{}, ErrAlreadyVoted
	}

	if e.cfg.MaxActivePerUser > 0 {
		unlock := e.users.lock(user)
		defer unlock()
		n, err := e.demands.ActiveCount(ctx, user)
		if err != nil {
			return Outcome{}, fmt.Errorf("count active votes: %w", err)
		}
		if n >= e.cfg.MaxActivePerUser {
			e.log.Info().Str("entry_id", entryID).Int("active", n).Msg("vote limit reached")
			return Outcome{
				Status:    models.CodeVoteLimitReached,
				EntryID:   entryID,
				Direction: models.DirectionUp,
				Message: fmt.Sprintf("You have %d active requests, the maximum allowed. "+
					"Withdraw one before requesting another.", n),
			}, nil
		}
	}

	ok, err := e.demands.Upvote(ctx, entryID, user)
	if err != nil {
		return Outcome{}, fmt.Errorf("upvote %s: %w", entryID, err)
	}
	if !ok {
		// A concurrent request from the same user won.
		return Outcome{}, ErrAlreadyVoted
	}
	e.log.Debug().Str("entry_id", entryID).Msg("upvoted")
	return Outcome{
		Status:    models.StatusSuccess,
		EntryID:   entryID,
		Direction: models.DirectionUp,
		Message:   "success: upvoted " + entryID,
	}, nil
}

// Downvote removes user from the entry's active record. The record is kept
// when its last requester leaves.
func (e *Engine) Downvote(ctx context.Context, user, entryID string) (Outcome, error) {
	if user == "" {
		return Outcome{}, ErrAuthRequired
	}

	rec, err := e.demands.ActiveFor(ctx, entryID)
	if err != nil {
		return Outcome{}, fmt.Errorf("look up demand for %s: %w", entryID, err)
	}
	if rec == nil || !rec.HasRequester(user) {
		return Outcome{}, ErrNotVoted
	}

	ok, err := e.demands.Downvote(ctx, entryID, user)
	if err != nil {
		return Outcome{}, fmt.Errorf("downvote %s: %w", entryID, err)
	}
	if !ok {
		return Outcome{}, ErrNotVoted
	}
	e.log.Debug().Str("entry_id", entryID).Msg("downvoted")
	return Outcome{
		Status:    models.StatusSuccess,
		EntryID:   entryID,
		Direction: models.DirectionDown,
		Message:   "success: downvoted " + entryID,
	}, nil
}

// Code maps an engine error to its response code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthRequired):
		return models.CodeAuthRequired
	case errors.Is(err, ErrAlreadyVoted):
		return models.CodeAlreadyVoted
	case errors.Is(err, ErrNotVoted):
		return models.CodeNotVoted
	case errors.Is(err, ErrMissingEntry), errors.Is(err, ErrInvalidDirection):
		return models.CodeBadRequest
	}
	return models.CodeServiceUnavailable
}
