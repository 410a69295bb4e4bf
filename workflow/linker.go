// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/danielhkuo/propjockey/models"
)

var ErrUnknownLinker = errors.New("unknown linker")

// Linker maps entry ids to job ids. Entries without a job are absent from
// the result.
type Linker interface {
	WorkflowIDs(ctx context.Context, entryIDs []string) (map[string]string, error)
}

// Lookup is the store side of a link lookup.
type Lookup interface {
	FindWorkflowIDs(ctx context.Context, entryIDs []string) (map[string]string, error)
}

// StoreLinker reads links from the record store.
type StoreLinker struct {
	lookup Lookup
}

func NewStoreLinker(lookup Lookup) *StoreLinker {
	return &StoreLinker{lookup: lookup}
}

func (l *StoreLinker) WorkflowIDs(ctx context.Context, entryIDs []string) (map[string]string, error) {
	if len(entryIDs) == 0 {
		return map[string]string{}, nil
	}
	ids, err := l.lookup.FindWorkflowIDs(ctx, entryIDs)
	if err != nil {
		return nil, fmt.Errorf("find workflow ids: %w", err)
	}
	return ids, nil
}

// NoLinks is used when no workflow system is configured.
type NoLinks struct{}

func (NoLinks) WorkflowIDs(context.Context, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

// CachedLinker remembers lookups for a while, including entries that have
// no job.
type CachedLinker struct {
	next  Linker
	cache *cache.Cache
}

func NewCachedLinker(next Linker, ttl time.Duration) *CachedLinker {
	return &CachedLinker{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedLinker) WorkflowIDs(ctx context.Context, entryIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(entryIDs))
	var misses []string
	for _, id := range entryIDs {
		v, ok := c.cache.Get(id)
		if !ok {
			misses = append(misses, id)
			continue
		}
		if job := v.(string); job != "" {
			out[id] = job
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	found, err := c.next.WorkflowIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, id := range misses {
		job := found[id]
		c.cache.SetDefault(id, job)
		if job != "" {
			out[id] = job
		}
	}
	return out, nil
}

// Forget drops the cached lookups of entryIDs, or every cached lookup
// when none are given.
func (c *CachedLinker) Forget(entryIDs ...string) {
	if len(entryIDs) == 0 {
		c.cache.Flush()
		return
	}
	for _, id := range entryIDs {
		c.cache.Delete(id)
	}
}

// forgetter is implemented by linkers that cache lookups.
type forgetter interface {
	Forget(entryIDs ...string)
}

// Writer stores links.
type Writer interface {
	UpsertLink(ctx context.Context, link models.WorkflowLink) error
}

// SaveLink stores link and drops any cached lookup for its entry.
func SaveLink(ctx context.Context, w Writer, links Linker, link models.WorkflowLink) error {
	if link.EntryID == "" || link.JobID == "" {
		return errors.New("link needs an entry id and a job id")
	}
	if err := w.UpsertLink(ctx, link); err != nil {
		return fmt.Errorf("save link: %w", err)
	}
	if f, ok := links.(forgetter); ok {
		f.Forget(link.EntryID)
	}
	return nil
}

// New selects a linker by name: store or none. A positive ttl caches store
// lookups.
func New(name string, lookup Lookup, ttl time.Duration) (Linker, error) {
	switch name {
	case "none", "":
		return NoLinks{}, nil
	case "store":
		var l Linker = NewStoreLinker(lookup)
		if ttl > 0 {
			l = NewCachedLinker(l, ttl)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLinker, name)
	}
}
