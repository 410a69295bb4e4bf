// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/store"
)

type activeKey struct {
	property string
	entryID  string
}

// Store keeps all three collections in process memory. Every method holds
// the store lock for its whole duration, so each mutation is atomic.
type Store struct {
	mu        sync.RWMutex
	property  string
	entries   map[string]models.Entry
	demands   map[string]*models.DemandRecord
	active    map[activeKey]string
	workflows map[string]models.WorkflowLink
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty store. property is the attribute path whose
// presence makes an entry's has_property true.
func New(property string) *Store {
	return &Store{
		property:  property,
		entries:   make(map[string]models.Entry),
		demands:   make(map[string]*models.DemandRecord),
		active:    make(map[activeKey]string),
		workflows: make(map[string]models.WorkflowLink),
		now:       time.Now,
	}
}

func (s *Store) Close() error { return nil }

// ========== Entries ==========

func (s *Store) FindEntries(ctx context.Context, q store.Query) ([]models.Entry, error) {
	if err := q.Filter.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Entry
	for _, e := range s.entries {
		ok, err := matches(e, q.Filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s.project(e))
		}
	}

	sortEntries(out, q.Sort)

	if q.Skip > 0 {
		if q.Skip >= len(out) {
			return nil, nil
		}
		out = out[q.Skip:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) CountEntries(ctx context.Context, f store.Filter) (int, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		ok, err := matches(e, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpsertEntry(ctx context.Context, e models.Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	if len(e.Attributes) == 0 {
		e.Attributes = json.RawMessage(`{}`)
	} else if !gjson.ValidBytes(e.Attributes) {
		return fmt.Errorf("entry %s: attributes are not valid JSON", e.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Attributes = slices.Clone(e.Attributes)
	e.HasProperty = false
	s.entries[e.ID] = e
	return nil
}

// project copies an entry and evaluates has_property.
func (s *Store) project(e models.Entry) models.Entry {
	e.Attributes = slices.Clone(e.Attributes)
	e.HasProperty = lookup(e, s.property).Exists()
	return e
}

func sortEntries(es []models.Entry, keys []store.SortKey) {
	if len(keys) == 0 {
		keys = []store.SortKey{{Field: store.FieldID}}
	}
	sort.SliceStable(es, func(i, j int) bool {
		for _, k := range keys {
			a, b := lookup(es[i], k.Field), lookup(es[j], k.Field)
			if a.Less(b, true) {
				return !k.Desc
			}
			if b.Less(a, true) {
				return k.Desc
			}
		}
		return false
	})
}

// ========== Demands ==========

func (s *Store) FindDemands(ctx context.Context, q store.DemandQuery) ([]models.DemandRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.selectDemands(q)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) CountDemands(ctx context.Context, q store.DemandQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selectDemands(q)), nil
}

func (s *Store) selectDemands(q store.DemandQuery) []models.DemandRecord {
	var out []models.DemandRecord
	for _, d := range s.demands {
		if !demandMatches(d, q) {
			continue
		}
		c := *d
		c.Requesters = slices.Clone(d.Requesters)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestCount != out[j].RequestCount {
			if q.OrderDesc {
				return out[i].RequestCount > out[j].RequestCount
			}
			return out[i].RequestCount < out[j].RequestCount
		}
		if out[i].EntryID != out[j].EntryID {
			return out[i].EntryID < out[j].EntryID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func demandMatches(d *models.DemandRecord, q store.DemandQuery) bool {
	switch {
	case q.Property != "" && d.Property != q.Property:
		return false
	case q.State != "" && d.State != q.State:
		return false
	case q.EntryID != "" && d.EntryID != q.EntryID:
		return false
	case q.Requester != "" && !d.HasRequester(q.Requester):
		return false
	case d.RequestCount < q.MinCount:
		return false
	case q.Notified != nil && d.Notified != *q.Notified:
		return false
	}
	return true
}

func (s *Store) AddRequester(ctx context.Context, property, entryID, user string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activeKey{property: property, entryID: entryID}
	now := s.now()
	if id, ok := s.active[key]; ok {
		d := s.demands[id]
		if d.HasRequester(user) {
			return false, nil
		}
		d.Requesters = append(d.Requesters, user)
		d.RequestCount++
		d.UpdatedAt = now
		return true, nil
	}

	d := &models.DemandRecord{
		ID:           uuid.NewString(),
		EntryID:      entryID,
		Property:     property,
		Requesters:   []string{user},
		RequestCount: 1,
		State:        models.StateActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.demands[d.ID] = d
	s.active[key] = d.ID
	return true, nil
}

func (s *Store) RemoveRequester(ctx context.Context, property, entryID, user string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[activeKey{property: property, entryID: entryID}]
	if !ok {
		return false, nil
	}
	d := s.demands[id]
	i := slices.Index(d.Requesters, user)
	if i < 0 || d.RequestCount <= 0 {
		return false, nil
	}
	d.Requesters = slices.Delete(d.Requesters, i, i+1)
	d.RequestCount--
	d.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) MarkCompleted(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.demands[id]
	if !ok || d.State != models.StateActive {
		return false, nil
	}
	d.State = models.StateCompleted
	d.UpdatedAt = s.now()
	delete(s.active, activeKey{property: d.Property, entryID: d.EntryID})
	return true, nil
}

func (s *Store) MarkNotified(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.demands[id]
	if !ok || d.State != models.StateCompleted || d.Notified {
		return false, nil
	}
	d.Notified = true
	d.UpdatedAt = s.now()
	return true, nil
}

// ========== Workflows ==========

func (s *Store) FindWorkflowIDs(ctx context.Context, entryIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for _, id := range entryIDs {
		if l, ok := s.workflows[id]; ok {
			out[id] = l.JobID
		}
	}
	return out, nil
}

func (s *Store) SetPriority(ctx context.Context, jobID string, priority float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range s.workflows {
		if l.JobID == jobID {
			l.Priority = priority
			s.workflows[id] = l
			return nil
		}
	}
	return fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
}

func (s *Store) UpsertLink(ctx context.Context, link models.WorkflowLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[link.EntryID] = link
	return nil
}

// Link returns the stored link for an entry, for inspection in tests.
func (s *Store) Link(entryID string) (models.WorkflowLink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.workflows[entryID]
	return l, ok
}
