// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ranking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/rs/zerolog"

	"github.com/danielhkuo/propjockey/filter"
	"github.com/danielhkuo/propjockey/metrics"
	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/store"
)

var ErrBadPage = errors.New("page size must be positive and page number non-negative and in range")

// Entries is the catalog view the engine reads from.
type Entries interface {
	Property() string
	Find(ctx context.Context, f store.Filter, rankDesc bool, skip, limit int) ([]models.Entry, error)
	FindIDs(ctx context.Context, ids []string, f store.Filter) ([]models.Entry, error)
	Count(ctx context.Context, f store.Filter) (int, error)
	Describe(e models.Entry) string
	EntryLink(id string) string
	PropertyLink(id string) string
	WorkflowLink(jobID string) string
}

// Demands is the demand view the engine reads from.
type Demands interface {
	Active(ctx context.Context, countDesc bool, user string) ([]models.DemandRecord, error)
	CompletedEntryIDs(ctx context.Context, user string) ([]string, error)
}

// Linker resolves external job ids. Entries without a job are absent
// from the result.
type Linker interface {
	WorkflowIDs(ctx context.Context, entryIDs []string) (map[string]string, error)
}

// Params describes one feed request. Filter is the raw expression; the
// empty string means no filter.
type Params struct {
	Filter    string
	Tiers     []models.Tier
	CountDesc bool
	RankDesc  bool
	UserOnly  bool
	Caller    string
	PageSize  int
	PageNum   int
}

// Page is one slice of the feed. NoMore is true when no row follows it.
type Page struct {
	Rows   []models.Row
	NoMore bool
}

type Engine struct {
	entries  Entries
	demands  Demands
	links    Linker
	compiler filter.Compiler
	log      zerolog.Logger
}

// NewEngine builds a feed engine. links may be nil when no workflow system
// is configured.
func NewEngine(entries Entries, demands Demands, links Linker, compiler filter.Compiler, log zerolog.Logger) *Engine {
	return &Engine{
		entries:  entries,
		demands:  demands,
		links:    links,
		compiler: compiler,
		log:      log.With().Str("component", "ranking").Logger(),
	}
}

// candidate is an entry on its way to becoming a row.
type candidate struct {
	entry  models.Entry
	tier   models.Tier
	record *models.DemandRecord
}

// cursor carries pagination across tiers: skip rows still to be skipped,
// want rows still to be collected (page size plus the sentinel).
type cursor struct {
	skip int
	want int
	rows []candidate
}

func (c *cursor) full() bool { return len(c.rows) >= c.want }

// take appends the part of tier that falls inside the window.
func (c *cursor) take(tier []candidate) {
	if c.skip >= len(tier) {
		c.skip -= len(tier)
		return
	}
	tier = tier[c.skip:]
	c.skip = 0
	if need := c.want - len(c.rows); len(tier) > need {
		tier = tier[:need]
	}
	c.rows = append(c.rows, tier...)
}

// Rows computes one page of the feed.
func (e *Engine) Rows(ctx context.Context, p Params) (Page, error) {
	// The window end, skip plus page size plus the sentinel, must fit in an int.
	if p.PageSize <= 0 || p.PageNum < 0 || p.PageNum > (math.MaxInt-1)/p.PageSize-1 {
		return Page{}, ErrBadPage
	}
	f, err := e.compiler.Compile(p.Filter)
	if err != nil {
		return Page{}, err
	}
	if err := f.Validate(); err != nil {
		return Page{}, fmt.Errorf("%w: %v", filter.ErrBadFilter, err)
	}

	cur := &cursor{skip: p.PageNum * p.PageSize, want: p.PageSize + 1}
	if p.UserOnly && p.Caller != "" {
		err = e.personal(ctx, p, f, cur)
	} else {
		err = e.browse(ctx, p, f, cur)
	}
	if err != nil {
		return Page{}, err
	}

	page := Page{NoMore: true}
	if len(cur.rows) > p.PageSize {
		cur.rows = cur.rows[:p.PageSize]
		page.NoMore = false
	}
	page.Rows, err = e.render(ctx, cur.rows, p.Caller)
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// browse walks the selected tiers in priority order. Without a filter only
// the active tier is consulted.
func (e *Engine) browse(ctx context.Context, p Params, f store.Filter, cur *cursor) error {
	recs, err := e.demands.Active(ctx, p.CountDesc, "")
	if err != nil {
		return fmt.Errorf("find active demand: %w", err)
	}
	activeIDs := entryIDs(recs)

	if selected(p.Tiers, models.TierActive) {
		tier, err := e.activeTier(ctx, recs, f, p)
		if err != nil {
			return err
		}
		cur.take(tier)
	}
	if len(f) == 0 {
		return nil
	}

	rest := f.And(store.NotIn(store.FieldID, activeIDs))
	property := e.entries.Property()
	for _, t := range []struct {
		tier models.Tier
		cond store.Condition
	}{
		{models.TierInactiveMissing, store.Missing(property)},
		{models.TierInactiveHas, store.Exists(property)},
	} {
		if cur.full() {
			return nil
		}
		if !selected(p.Tiers, t.tier) {
			continue
		}
		if err := e.inactiveTier(ctx, rest.And(t.cond), t.tier, p.RankDesc, cur); err != nil {
			return err
		}
	}
	return nil
}

// personal serves the caller's own records: active ones first, then the
// entries of completed ones. The tier selection does not apply.
func (e *Engine) personal(ctx context.Context, p Params, f store.Filter, cur *cursor) error {
	recs, err := e.demands.Active(ctx, p.CountDesc, p.Caller)
	if err != nil {
		return fmt.Errorf("find active demand: %w", err)
	}
	tier, err := e.activeTier(ctx, recs, f, p)
	if err != nil {
		return err
	}
	cur.take(tier)
	if cur.full() {
		return nil
	}

	completed, err := e.demands.CompletedEntryIDs(ctx, p.Caller)
	if err != nil {
		return fmt.Errorf("find completed demand: %w", err)
	}
	active := make(map[string]bool, len(recs))
	for _, r := range recs {
		active[r.EntryID] = true
	}
	ids := slices.DeleteFunc(completed, func(id string) bool { return active[id] })
	if len(ids) == 0 {
		return nil
	}
	return e.inactiveTier(ctx, f.And(store.In(store.FieldID, ids)), models.TierInactiveHas, p.RankDesc, cur)
}

// activeTier joins active records with the entries that pass the filter
// and orders them by request_count, then rank_value.
func (e *Engine) activeTier(ctx context.Context, recs []models.DemandRecord, f store.Filter, p Params) ([]candidate, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	ids := entryIDs(recs)
	found, err := e.entries.FindIDs(ctx, ids, f)
	if err != nil {
		return nil, fmt.Errorf("find active entries: %w", err)
	}

	byID := make(map[string]int, len(recs))
	for i := range recs {
		byID[recs[i].EntryID] = i
	}
	tier := make([]candidate, 0, len(found))
	for _, en := range orderByIDs(found, ids) {
		tier = append(tier, candidate{entry: en, tier: models.TierActive, record: &recs[byID[en.ID]]})
	}

	// Two stable passes: rank_value first, then request_count, so count
	// wins and rank breaks ties.
	slices.SortStableFunc(tier, func(a, b candidate) int {
		return direction(cmp.Compare(a.entry.RankValue, b.entry.RankValue), p.RankDesc)
	})
	slices.SortStableFunc(tier, func(a, b candidate) int {
		return direction(cmp.Compare(a.record.RequestCount, b.record.RequestCount), p.CountDesc)
	})
	return tier, nil
}

// inactiveTier fetches the window of one rank-sorted tier. When the
// remaining skip covers the whole tier it is counted, not fetched.
func (e *Engine) inactiveTier(ctx context.Context, f store.Filter, tier models.Tier, rankDesc bool, cur *cursor) error {
	if cur.skip > 0 {
		n, err := e.entries.Count(ctx, f)
		if err != nil {
			return fmt.Errorf("count %s entries: %w", tier, err)
		}
		if n <= cur.skip {
			cur.skip -= n
			return nil
		}
	}
	es, err := e.entries.Find(ctx, f, rankDesc, cur.skip, cur.want-len(cur.rows))
	if err != nil {
		return fmt.Errorf("find %s entries: %w", tier, err)
	}
	cur.skip = 0
	for _, en := range es {
		cur.rows = append(cur.rows, candidate{entry: en, tier: tier})
	}
	return nil
}

func (e *Engine) render(ctx context.Context, cands []candidate, caller string) ([]models.Row, error) {
	rows := make([]models.Row, len(cands))
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.entry.ID
		row := models.Row{
			ID:          c.entry.ID,
			Description: e.entries.Describe(c.entry),
			RankValue:   c.entry.RankValue,
			Tier:        c.tier,
			EntryLink:   e.entries.EntryLink(c.entry.ID),
		}
		switch c.tier {
		case models.TierActive:
			count := c.record.RequestCount
			voted := caller != "" && c.record.HasRequester(caller)
			row.RequestCount = &count
			row.VotedByCaller = &voted
		case models.TierInactiveHas:
			row.PropertyLink = e.entries.PropertyLink(c.entry.ID)
		}
		rows[i] = row
		metrics.FeedRows.WithLabelValues(string(c.tier)).Inc()
	}

	if e.links == nil || len(ids) == 0 {
		return rows, nil
	}
	jobs, err := e.links.WorkflowIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find workflow links: %w", err)
	}
	for i := range rows {
		if job, ok := jobs[rows[i].ID]; ok {
			rows[i].WorkflowID = job
			rows[i].WorkflowLink = e.entries.WorkflowLink(job)
		}
	}
	return rows, nil
}

// orderByIDs returns the entries in the order of ids, dropping ids that
// were not fetched.
func orderByIDs(entries []models.Entry, ids []string) []models.Entry {
	byID := make(map[string]models.Entry, len(entries))
	for _, en := range entries {
		byID[en.ID] = en
	}
	out := make([]models.Entry, 0, len(entries))
	for _, id := range ids {
		if en, ok := byID[id]; ok {
			out = append(out, en)
			delete(byID, id)
		}
	}
	return out
}

func entryIDs(recs []models.DemandRecord) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.EntryID
	}
	return ids
}

func selected(tiers []models.Tier, t models.Tier) bool {
	return len(tiers) == 0 || slices.Contains(tiers, t)
}

func direction(c int, desc bool) int {
	if desc {
		return -c
	}
	return c
}
