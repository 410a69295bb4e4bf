// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package catalog

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/store"
)

// Config is the typed entry configuration. URL templates substitute
// "{id}" with the path-escaped entry or job id.
type Config struct {
	Property          string
	DescriptionFields []string
	EntryURL          string
	PropertyURL       string
	WorkflowURL       string
}

// Describer turns an entry into its one-line description.
type Describer interface {
	Describe(e models.Entry) string
}

// FieldDescriber joins the values at Fields (gjson paths into the filter
// attributes) with single spaces. Missing fields are skipped; an entry
// with none of them is described by its id.
type FieldDescriber struct {
	Fields []string
}

func (d FieldDescriber) Describe(e models.Entry) string {
	parts := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		if v := gjson.GetBytes(e.Attributes, f); v.Exists() && v.String() != "" {
			parts = append(parts, v.String())
		}
	}
	if len(parts) == 0 {
		return e.ID
	}
	return strings.Join(parts, " ")
}

// EntryView is the read-only projection of the catalog used by ranking
// and the sweeper.
type EntryView struct {
	entries  store.Entries
	cfg      Config
	describe Describer
}

func NewEntryView(entries store.Entries, cfg Config, describe Describer) *EntryView {
	if describe == nil {
		describe = FieldDescriber{Fields: cfg.DescriptionFields}
	}
	return &EntryView{entries: entries, cfg: cfg, describe: describe}
}

// Property is the attribute whose presence marks an entry as computed.
func (v *EntryView) Property() string { return v.cfg.Property }

// Find returns matching entries sorted by rank_value, then id.
func (v *EntryView) Find(ctx context.Context, f store.Filter, rankDesc bool, skip, limit int) ([]models.Entry, error) {
	return v.entries.FindEntries(ctx, store.Query{
		Filter: f,
		Sort: []store.SortKey{
			{Field: store.FieldRankValue, Desc: rankDesc},
			{Field: store.FieldID},
		},
		Skip:  skip,
		Limit: limit,
	})
}

// FindIDs returns the entries in ids that also satisfy f, in no
// particular order.
func (v *EntryView) FindIDs(ctx context.Context, ids []string, f store.Filter) ([]models.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return v.entries.FindEntries(ctx, store.Query{Filter: f.And(store.In(store.FieldID, ids))})
}

func (v *EntryView) Count(ctx context.Context, f store.Filter) (int, error) {
	return v.entries.CountEntries(ctx, f)
}

// WithProperty returns the subset of ids whose entry now has the property.
func (v *EntryView) WithProperty(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(ids) == 0 {
		return out, nil
	}
	es, err := v.entries.FindEntries(ctx, store.Query{
		Filter: store.Filter{store.In(store.FieldID, ids), store.Exists(v.cfg.Property)},
	})
	if err != nil {
		return nil, err
	}
	for _, e := range es {
		out[e.ID] = true
	}
	return out, nil
}

func (v *EntryView) Describe(e models.Entry) string { return v.describe.Describe(e) }

func (v *EntryView) EntryLink(id string) string    { return expand(v.cfg.EntryURL, id) }
func (v *EntryView) PropertyLink(id string) string { return expand(v.cfg.PropertyURL, id) }
func (v *EntryView) WorkflowLink(job string) string {
	return expand(v.cfg.WorkflowURL, job)
}

func expand(tmpl, id string) string {
	if tmpl == "" {
		return ""
	}
	return strings.ReplaceAll(tmpl, "{id}", url.PathEscape(id))
}
