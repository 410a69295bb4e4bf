// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"encoding/json"
	"slices"
	"time"
)

// DemandState is the lifecycle state of a demand record
type DemandState string

// Demand record states
const (
	StateActive    DemandState = "ACTIVE"
	StateCompleted DemandState = "COMPLETED"
)

// Vote directions
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Tier identifies one of the prioritized feed sources
type Tier string

// Feed tiers, in priority order
const (
	TierActive          Tier = "active"
	TierInactiveMissing Tier = "inactive_missing"
	TierInactiveHas     Tier = "inactive_has"
)

// AllTiers lists every tier in the order the feed consumes them.
var AllTiers = []Tier{TierActive, TierInactiveMissing, TierInactiveHas}

// Response status codes
const (
	StatusSuccess          = "SUCCESS"
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeAlreadyVoted       = "ALREADY_VOTED"
	CodeNotVoted           = "NOT_VOTED"
	CodeVoteLimitReached   = "VOTE_LIMIT_REACHED"
	CodeBadFilter          = "BAD_FILTER"
	CodeBadRequest         = "BAD_REQUEST"
	CodeServiceUnavailable = "SERVICE_ERROR"
)

// Domain types

// Entry is a catalog item. HasProperty is computed per query from the
// presence of the configured property field in Attributes.
type Entry struct {
	ID          string          `json:"id"`
	RankValue   float64         `json:"rank_value"`
	Attributes  json.RawMessage `json:"filter_attributes,omitempty"`
	HasProperty bool            `json:"has_property"`
}

type DemandRecord struct {
	ID           string      `json:"id"`
	EntryID      string      `json:"entry_id"`
	Property     string      `json:"property"`
	Requesters   []string    `json:"requesters"`
	RequestCount int         `json:"request_count"`
	State        DemandState `json:"state"`
	Notified     bool        `json:"notified"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// HasRequester reports whether user is in the record's requester set
func (d DemandRecord) HasRequester(user string) bool {
	return slices.Contains(d.Requesters, user)
}

type WorkflowLink struct {
	EntryID  string  `json:"entry_id"`
	JobID    string  `json:"job_id"`
	Priority float64 `json:"priority"`
}

// Request types

type VoteRequest struct {
	EntryID   string `json:"entry_id"`
	Direction string `json:"direction"`
}

// Response types

// Row is one feed line. Vote fields are only set on active rows,
// PropertyLink only on inactive rows that already have the property.
type Row struct {
	ID            string  `json:"id"`
	Description   string  `json:"description"`
	RankValue     float64 `json:"rank_value"`
	Tier          Tier    `json:"tier"`
	RequestCount  *int    `json:"request_count,omitempty"`
	VotedByCaller *bool   `json:"voted_by_caller,omitempty"`
	PropertyLink  string  `json:"property_link,omitempty"`
	EntryLink     string  `json:"entry_link,omitempty"`
	WorkflowID    string  `json:"workflow_id,omitempty"`
	WorkflowLink  string  `json:"workflow_link,omitempty"`
}

type RowsResponse struct {
	Rows   []Row `json:"rows"`
	NoMore bool  `json:"nomore"`
}

type VoteResponse struct {
	Status  string `json:"status"`
	EntryID string `json:"entry_id"`
	Message string `json:"message"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
