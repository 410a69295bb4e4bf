// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/danielhkuo/propjockey/metrics"
	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/store"
)

type Demands interface {
	AllActive(ctx context.Context) ([]models.DemandRecord, error)
}

type Setter interface {
	SetPriority(ctx context.Context, jobID string, priority float64) error
}

// PriorityConfig sets priority = Base + Weight * request_count.
type PriorityConfig struct {
	Base   float64
	Weight float64
}

type PriorityReport struct {
	Updated int
	Skipped int
	Failed  int
}

// Prioritizer pushes demand counts to the workflow system as job
// priorities.
type Prioritizer struct {
	demands Demands
	links   Linker
	jobs    Setter
	cfg     PriorityConfig
	log     zerolog.Logger
}

func NewPrioritizer(demands Demands, links Linker, jobs Setter, cfg PriorityConfig, log zerolog.Logger) *Prioritizer {
	return &Prioritizer{
		demands: demands,
		links:   links,
		jobs:    jobs,
		cfg:     cfg,
		log:     log.With().Str("component", "prioritizer").Logger(),
	}
}

// Priority is the job priority for a request count.
func (p *Prioritizer) Priority(count int) float64 {
	return p.cfg.Base + p.cfg.Weight*float64(count)
}

// Run updates the job of every active record. Records without a job are
// skipped; a failed update is logged and counted.
func (p *Prioritizer) Run(ctx context.Context) (PriorityReport, error) {
	var rep PriorityReport
	recs, err := p.demands.AllActive(ctx)
	if err != nil {
		return rep, fmt.Errorf("list active demand: %w", err)
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.EntryID
	}
	jobs, err := p.links.WorkflowIDs(ctx, ids)
	if err != nil {
		return rep, err
	}

	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		job, ok := jobs[r.EntryID]
		if !ok {
			rep.Skipped++
			metrics.PriorityUpdates.WithLabelValues("skipped").Inc()
			continue
		}
		priority := p.Priority(r.RequestCount)
		if err := p.jobs.SetPriority(ctx, job, priority); err != nil {
			rep.Failed++
			metrics.PriorityUpdates.WithLabelValues("failed").Inc()
			lvl := p.log.Warn()
			if errors.Is(err, store.ErrNotFound) {
				// The job is gone; look the link up again next run.
				lvl = p.log.Info()
				if f, ok := p.links.(forgetter); ok {
					f.Forget(r.EntryID)
				}
			}
			lvl.Err(err).Str("entry_id", r.EntryID).Str("job_id", job).Msg("Failed to set priority")
			continue
		}
		rep.Updated++
		metrics.PriorityUpdates.WithLabelValues("updated").Inc()
		p.log.Debug().Str("entry_id", r.EntryID).Str("job_id", job).Float64("priority", priority).Msg("Priority set")
	}

	p.log.Info().Int("updated", rep.Updated).Int("skipped", rep.Skipped).Int("failed", rep.Failed).Msg("Priorities updated")
	return rep, nil
}
