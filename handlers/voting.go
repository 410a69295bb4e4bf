// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/danielhkuo/propjockey/middleware"
	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/voting"
)

// Voter applies votes.
type Voter interface {
	Vote(ctx context.Context, user string, req models.VoteRequest) (voting.Outcome, error)
}

type VotingHandler struct {
	votes Voter
	ids   Identity
	log   zerolog.Logger
}

func NewVotingHandler(votes Voter, ids Identity, log zerolog.Logger) *VotingHandler {
	return &VotingHandler{votes: votes, ids: ids, log: log.With().Str("component", "vote").Logger()}
}

// Vote handles POST /vote with a JSON body or form values
func (h *VotingHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req models.VoteRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := middleware.ParseJSONBody(r, &req); err != nil {
			middleware.CodedErrorResponse(w, http.StatusBadRequest, models.CodeBadRequest, "Invalid JSON")
			return
		}
	} else {
		req.EntryID = r.FormValue("entry_id")
		req.Direction = r.FormValue("direction")
	}

	out, err := h.votes.Vote(r.Context(), h.ids.Caller(r), req)
	if err != nil {
		status, message := voteStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("entry_id", req.EntryID).Msg("failed to apply vote")
		}
		middleware.CodedErrorResponse(w, status, voting.Code(err), message)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.VoteResponse{
		Status:  out.Status,
		EntryID: out.EntryID,
		Message: out.Message,
	})
}

// voteStatus maps a vote error to its HTTP status and user message.
func voteStatus(err error) (int, string) {
	switch {
	case errors.Is(err, voting.ErrAuthRequired):
		return http.StatusUnauthorized, "Sign in to request data"
	case errors.Is(err, voting.ErrAlreadyVoted):
		return http.StatusConflict, "You have already requested this entry"
	case errors.Is(err, voting.ErrNotVoted):
		return http.StatusConflict, "You have not requested this entry"
	case errors.Is(err, voting.ErrMissingEntry), errors.Is(err, voting.ErrInvalidDirection):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "Database error"
}
