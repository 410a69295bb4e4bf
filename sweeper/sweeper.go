// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/danielhkuo/propjockey/metrics"
	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/notify"
)

type Entries interface {
	WithProperty(ctx context.Context, ids []string) (map[string]bool, error)
	PropertyLink(id string) string
}

type Demands interface {
	AllActive(ctx context.Context) ([]models.DemandRecord, error)
	Complete(ctx context.Context, id string) (bool, error)
	Pending(ctx context.Context) ([]models.DemandRecord, error)
	MarkNotified(ctx context.Context, id string) (bool, error)
}

// Config controls addressing and pacing. Throttle is the minimum gap
// between two sends; zero disables pacing.
type Config struct {
	From     string
	BCC      []string
	StaffTo  []string
	Throttle time.Duration
}

// Report counts what one run did.
type Report struct {
	Completed   int
	Notified    int
	Failed      int
	Requesters  int
	SummarySent bool
}

type Sweeper struct {
	entries   Entries
	demands   Demands
	mailer    notify.Mailer
	templates *notify.Templates
	cfg       Config
	log       zerolog.Logger
}

func New(entries Entries, demands Demands, mailer notify.Mailer, templates *notify.Templates, cfg Config, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		entries:   entries,
		demands:   demands,
		mailer:    mailer,
		templates: templates,
		cfg:       cfg,
		log:       log.With().Str("component", "sweeper").Logger(),
	}
}

// Run completes records whose entry now has the property, notifies the
// requesters of completed records and mails a staff summary. Failures on
// one record are logged and left for the next run. The returned error
// joins phase-level failures and cancellation.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	var rep Report
	limit := rate.NewLimiter(rate.Inf, 1)
	if s.cfg.Throttle > 0 {
		limit = rate.NewLimiter(rate.Every(s.cfg.Throttle), 1)
	}

	errComplete := s.complete(ctx, &rep)
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	notices, errNotify := s.notify(ctx, limit, &rep)
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if rep.Notified > 0 {
		s.summarize(ctx, limit, notices, &rep)
	}

	metrics.SweepRuns.Inc()
	s.log.Info().
		Int("completed", rep.Completed).
		Int("notified", rep.Notified).
		Int("failed", rep.Failed).
		Int("requesters", rep.Requesters).
		Bool("summary_sent", rep.SummarySent).
		Msg("Sweep finished")
	return rep, errors.Join(errComplete, errNotify)
}

func (s *Sweeper) complete(ctx context.Context, rep *Report) error {
	active, err := s.demands.AllActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list active demand")
		return fmt.Errorf("list active demand: %w", err)
	}
	if len(active) == 0 {
		return nil
	}
	ids := make([]string, len(active))
	for i, r := range active {
		ids[i] = r.EntryID
	}
	has, err := s.entries.WithProperty(ctx, ids)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to look up entries")
		return fmt.Errorf("look up entries: %w", err)
	}

	for _, r := range active {
		if ctx.Err() != nil {
			return nil
		}
		if !has[r.EntryID] {
			continue
		}
		ok, err := s.demands.Complete(ctx, r.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("demand_id", r.ID).Msg("Failed to complete demand")
			continue
		}
		if ok {
			rep.Completed++
			metrics.SweepCompleted.Inc()
			s.log.Info().Str("entry_id", r.EntryID).Int("requesters", r.RequestCount).Msg("Demand completed")
		}
	}
	return nil
}

func (s *Sweeper) notify(ctx context.Context, limit *rate.Limiter, rep *Report) ([]notify.Notice, error) {
	pending, err := s.demands.Pending(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list pending notifications")
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}

	var notices []notify.Notice
	users := map[string]struct{}{}
	for _, r := range pending {
		if ctx.Err() != nil {
			break
		}
		n := notify.Notice{EntryID: r.EntryID, Link: s.entries.PropertyLink(r.EntryID), Requesters: len(r.Requesters)}
		if !s.deliver(ctx, limit, r, n) {
			rep.Failed++
			continue
		}
		ok, err := s.demands.MarkNotified(ctx, r.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("demand_id", r.ID).Msg("Failed to mark demand notified")
			rep.Failed++
			continue
		}
		if !ok || len(r.Requesters) == 0 {
			continue
		}
		rep.Notified++
		notices = append(notices, n)
		for _, u := range r.Requesters {
			users[u] = struct{}{}
		}
		s.log.Info().Str("entry_id", r.EntryID).Int("requesters", len(r.Requesters)).Msg("Sent notification")
	}
	rep.Requesters = len(users)
	return notices, nil
}

// deliver sends one message per requester and stops at the first failure.
func (s *Sweeper) deliver(ctx context.Context, limit *rate.Limiter, r models.DemandRecord, n notify.Notice) bool {
	if len(r.Requesters) == 0 {
		return true
	}
	subject, text, err := s.templates.User(n)
	if err != nil {
		s.log.Error().Err(err).Str("entry_id", r.EntryID).Msg("Failed to render notification")
		return false
	}
	for _, user := range r.Requesters {
		if err := limit.Wait(ctx); err != nil {
			return false
		}
		status, err := s.mailer.Send(ctx, notify.Message{
			From:    s.cfg.From,
			To:      []string{user},
			BCC:     s.cfg.BCC,
			Subject: subject,
			Text:    text,
		})
		if !notify.Delivered(status, err) {
			metrics.Notifications.WithLabelValues("failed").Inc()
			s.log.Warn().Err(err).Int("status", status).Str("entry_id", r.EntryID).Msg("Delivery failed")
			return false
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
	}
	return true
}

func (s *Sweeper) summarize(ctx context.Context, limit *rate.Limiter, notices []notify.Notice, rep *Report) {
	if len(s.cfg.StaffTo) == 0 {
		return
	}
	subject, text, err := s.templates.Staff(notify.Summary{Entries: rep.Notified, Users: rep.Requesters}, notices)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to render staff summary")
		return
	}
	if err := limit.Wait(ctx); err != nil {
		return
	}
	status, err := s.mailer.Send(ctx, notify.Message{
		From:    s.cfg.From,
		To:      s.cfg.StaffTo,
		Subject: subject,
		Text:    text,
	})
	if !notify.Delivered(status, err) {
		s.log.Warn().Err(err).Int("status", status).Msg("Staff summary failed")
		return
	}
	rep.SummarySent = true
	s.log.Info().Int("entries", rep.Notified).Msg("Sent summary to staff")
}
