// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package catalog

import (
	"context"

	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/store"
)

// DemandView scopes the demand collection to one property.
type DemandView struct {
	demands  store.Demands
	property string
}

func NewDemandView(demands store.Demands, property string) *DemandView {
	return &DemandView{demands: demands, property: property}
}

func (v *DemandView) Property() string { return v.property }

// ActiveFor returns the active record for an entry, or nil.
func (v *DemandView) ActiveFor(ctx context.Context, entryID string) (*models.DemandRecord, error) {
	ds, err := v.demands.FindDemands(ctx, store.DemandQuery{
		Property: v.property,
		State:    models.StateActive,
		EntryID:  entryID,
		Limit:    1,
	})
	if err != nil || len(ds) == 0 {
		return nil, err
	}
	return &ds[0], nil
}

// ActiveCount is the number of active records user belongs to.
func (v *DemandView) ActiveCount(ctx context.Context, user string) (int, error) {
	return v.demands.CountDemands(ctx, store.DemandQuery{
		Property:  v.property,
		State:     models.StateActive,
		Requester: user,
	})
}

// Active lists active records with at least one requester, ordered by
// request_count. A non-empty user limits the list to that user's records.
func (v *DemandView) Active(ctx context.Context, countDesc bool, user string) ([]models.DemandRecord, error) {
	return v.demands.FindDemands(ctx, store.DemandQuery{
		Property:  v.property,
		State:     models.StateActive,
		Requester: user,
		MinCount:  1,
		OrderDesc: countDesc,
	})
}

// AllActive lists every active record, including empty ones.
func (v *DemandView) AllActive(ctx context.Context) ([]models.DemandRecord, error) {
	return v.demands.FindDemands(ctx, store.DemandQuery{
		Property: v.property,
		State:    models.StateActive,
	})
}

// CompletedEntryIDs lists the entries of user's completed records.
func (v *DemandView) CompletedEntryIDs(ctx context.Context, user string) ([]string, error) {
	ds, err := v.demands.FindDemands(ctx, store.DemandQuery{
		Property:  v.property,
		State:     models.StateCompleted,
		Requester: user,
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(ds))
	ids := make([]string, 0, len(ds))
	for _, d := range ds {
		if !seen[d.EntryID] {
			seen[d.EntryID] = true
			ids = append(ids, d.EntryID)
		}
	}
	return ids, nil
}

// Pending lists completed records whose requesters are not yet notified.
func (v *DemandView) Pending(ctx context.Context) ([]models.DemandRecord, error) {
	notified := false
	return v.demands.FindDemands(ctx, store.DemandQuery{
		Property: v.property,
		State:    models.StateCompleted,
		Notified: &notified,
	})
}

func (v *DemandView) Upvote(ctx context.Context, entryID, user string) (bool, error) {
	return v.demands.AddRequester(ctx, v.property, entryID, user)
}

func (v *DemandView) Downvote(ctx context.Context, entryID, user string) (bool, error) {
	return v.demands.RemoveRequester(ctx, v.property, entryID, user)
}

func (v *DemandView) Complete(ctx context.Context, id string) (bool, error) {
	return v.demands.MarkCompleted(ctx, id)
}

func (v *DemandView) MarkNotified(ctx context.Context, id string) (bool, error) {
	return v.demands.MarkNotified(ctx, id)
}
