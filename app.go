package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danielhkuo/propjockey/auth"
	"github.com/danielhkuo/propjockey/catalog"
	"github.com/danielhkuo/propjockey/cliparse"
	"github.com/danielhkuo/propjockey/db"
	"github.com/danielhkuo/propjockey/filter"
	"github.com/danielhkuo/propjockey/handlers"
	"github.com/danielhkuo/propjockey/memstore"
	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/mongostore"
	"github.com/danielhkuo/propjockey/notify"
	"github.com/danielhkuo/propjockey/ranking"
	"github.com/danielhkuo/propjockey/store"
	"github.com/danielhkuo/propjockey/sweeper"
	"github.com/danielhkuo/propjockey/voting"
	"github.com/danielhkuo/propjockey/workflow"
)

const mailgunTimeout = 30 * time.Second

// application holds every component wired over one store.
type application struct {
	store         store.Store
	links         workflow.Linker
	sweep         *sweeper.Sweeper
	prioritizer   *workflow.Prioritizer
	feedHandler   *handlers.FeedHandler
	votingHandler *handlers.VotingHandler
}

func (a *application) Close() error { return a.store.Close() }

// link records the workflow job computing entryID's property.
func (a *application) link(ctx context.Context, entryID, jobID string) error {
	return workflow.SaveLink(ctx, a.store, a.links, models.WorkflowLink{EntryID: entryID, JobID: jobID})
}

// issueSession signs a session for user that lives for auth.session_ttl.
func issueSession(cfg cliparse.Config, user string) (string, *http.Cookie, error) {
	if cfg.Auth.Secret == "" {
		return "", nil, errors.New("auth.secret required (PROPJOCKEY_AUTH_SECRET)")
	}
	sessions := auth.NewSessions(cfg.Auth.Secret, cfg.Auth.CookieName)
	token, err := sessions.Issue(user, cfg.Auth.SessionTTL)
	if err != nil {
		return "", nil, err
	}
	return token, sessions.Cookie(token, cfg.Auth.SessionTTL), nil
}

// setup loads and validates the configuration for a batch command.
func setup(ctx context.Context) (*application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return build(ctx, cfg)
}

func openStore(ctx context.Context, cfg cliparse.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warn().Msg("Using the in-memory store; data is lost on exit")
		return memstore.New(cfg.Entries.Property), nil
	case "postgres", "sqlite":
		return db.Open(ctx, cfg.Store.Driver, cfg.Store.URL, cfg.Entries.Property)
	case "mongo":
		return mongostore.Open(ctx, cfg.Store.URL, cfg.Store.Database, cfg.Entries.Property)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func build(ctx context.Context, cfg cliparse.Config) (*application, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app, err := wire(st, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	return app, nil
}

func wire(st store.Store, cfg cliparse.Config) (*application, error) {
	lg := log.Logger

	entries := catalog.NewEntryView(st, catalog.Config{
		Property:          cfg.Entries.Property,
		DescriptionFields: cfg.Entries.DescriptionFields,
		EntryURL:          cfg.Entries.EntryURL,
		PropertyURL:       cfg.Entries.PropertyURL,
		WorkflowURL:       cfg.Workflows.URL,
	}, nil)
	demands := catalog.NewDemandView(st, cfg.Entries.Property)

	links, err := workflow.New(cfg.Workflows.Linker, st, cfg.Workflows.CacheTTL)
	if err != nil {
		return nil, err
	}
	mailer, err := notify.New(cfg.Notify.Mailer, notify.MailgunConfig{
		APIKey:  cfg.Mailgun.APIKey,
		BaseURL: cfg.Mailgun.BaseURL,
		Timeout: mailgunTimeout,
	}, lg)
	if err != nil {
		return nil, err
	}
	templates, err := notify.ParseTemplates(notify.TemplateConfig{
		UserSubject:  cfg.Notify.UserSubject,
		UserText:     cfg.Notify.UserText,
		StaffSubject: cfg.Notify.StaffSubject,
		StaffText:    cfg.Notify.StaffText,
	})
	if err != nil {
		return nil, err
	}

	feed := ranking.NewEngine(entries, demands, links, filter.Criteria{DefaultField: cfg.Entries.DefaultFilterField}, lg)
	votes := voting.NewEngine(demands, voting.Config{MaxActivePerUser: cfg.Votes.MaxActivePerUser}, lg)
	sessions := auth.NewSessions(cfg.Auth.Secret, cfg.Auth.CookieName)

	return &application{
		store: st,
		links: links,
		sweep: sweeper.New(entries, demands, mailer, templates, sweeper.Config{
			From:     cfg.Notify.From,
			BCC:      cfg.Notify.BCC,
			StaffTo:  cfg.Notify.StaffTo,
			Throttle: cfg.Notify.Throttle,
		}, lg),
		prioritizer: workflow.NewPrioritizer(demands, links, st, workflow.PriorityConfig{
			Base:   cfg.Workflows.BasePriority,
			Weight: cfg.Workflows.VoteWeight,
		}, lg),
		feedHandler: handlers.NewFeedHandler(feed, sessions, handlers.FeedConfig{
			DefaultPageSize: cfg.Entries.RowsPerPage,
			MaxPageSize:     cliparse.MaxPageSize,
			RankLabel:       cfg.Entries.RankLabel,
			PropertyLabel:   cfg.Entries.Property,
		}, lg),
		votingHandler: handlers.NewVotingHandler(votes, sessions, lg),
	}, nil
}
