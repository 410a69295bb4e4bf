// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/danielhkuo/propjockey/models"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidField = errors.New("invalid field")
	ErrUnsupported  = errors.New("unsupported query")
)

// Fields that address entry columns rather than filter attributes.
const (
	FieldID        = "id"
	FieldRankValue = "rank_value"
)

// Op is a comparison operator in a filter condition
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpIn      Op = "in"
	OpNin     Op = "nin"
	OpExists  Op = "exists"
	OpMissing Op = "missing"
)

// Condition compares one field against a value. Field is FieldID,
// FieldRankValue, or a dotted path into the entry's filter attributes.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Filter is a conjunction of conditions. The empty filter matches everything.
type Filter []Condition

// And returns a new filter holding f's conditions followed by cs.
func (f Filter) And(cs ...Condition) Filter {
	out := make(Filter, 0, len(f)+len(cs))
	out = append(out, f...)
	return append(out, cs...)
}

func Eq(field string, v any) Condition { return Condition{Field: field, Op: OpEq, Value: v} }

func In(field string, values []string) Condition {
	return Condition{Field: field, Op: OpIn, Value: values}
}

func NotIn(field string, values []string) Condition {
	return Condition{Field: field, Op: OpNin, Value: values}
}

func Exists(field string) Condition  { return Condition{Field: field, Op: OpExists} }
func Missing(field string) Condition { return Condition{Field: field, Op: OpMissing} }

type SortKey struct {
	Field string
	Desc  bool
}

// Query selects entries. Limit <= 0 means unbounded.
type Query struct {
	Filter Filter
	Sort   []SortKey
	Skip   int
	Limit  int
}

// DemandQuery selects demand records of a single property. Zero values
// match anything. Results are ordered by request_count, then entry id.
type DemandQuery struct {
	Property  string
	State     models.DemandState
	Requester string
	EntryID   string
	MinCount  int
	Notified  *bool
	OrderDesc bool
	Limit     int
}

// Entries is the catalog collection.
type Entries interface {
	FindEntries(ctx context.Context, q Query) ([]models.Entry, error)
	CountEntries(ctx context.Context, f Filter) (int, error)
	UpsertEntry(ctx context.Context, e models.Entry) error
}

// Demands is the demand record collection. AddRequester and RemoveRequester
// are single atomic updates; they return false when their guard rejects
// the change (already a member / not a member).
type Demands interface {
	FindDemands(ctx context.Context, q DemandQuery) ([]models.DemandRecord, error)
	CountDemands(ctx context.Context, q DemandQuery) (int, error)
	AddRequester(ctx context.Context, property, entryID, user string) (bool, error)
	RemoveRequester(ctx context.Context, property, entryID, user string) (bool, error)
	MarkCompleted(ctx context.Context, id string) (bool, error)
	MarkNotified(ctx context.Context, id string) (bool, error)
}

// Workflows is the external job link collection.
type Workflows interface {
	FindWorkflowIDs(ctx context.Context, entryIDs []string) (map[string]string, error)
	SetPriority(ctx context.Context, jobID string, priority float64) error
	UpsertLink(ctx context.Context, link models.WorkflowLink) error
}

// Store bundles the three collections of one backend.
type Store interface {
	Entries
	Demands
	Workflows
	Close() error
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+)*$`)

// ValidateField rejects field paths that cannot be addressed safely by
// every backend.
func ValidateField(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return nil
}

// Validate checks every field in the filter
func (f Filter) Validate() error {
	for _, c := range f {
		if err := ValidateField(c.Field); err != nil {
			return err
		}
	}
	return nil
}
