// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

var ErrUnknownMailer = errors.New("unknown mailer")

// Message is one outgoing mail. BCC recipients are hidden from To.
type Message struct {
	From    string
	To      []string
	BCC     []string
	Subject string
	Text    string
}

// Mailer delivers a message and reports the provider's status code.
// Only http.StatusOK counts as delivered.
type Mailer interface {
	Send(ctx context.Context, m Message) (int, error)
}

// Delivered reports whether a Send result is a confirmed delivery.
func Delivered(status int, err error) bool {
	return err == nil && status == http.StatusOK
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "mailer").Logger()}
}

func (l *LogMailer) Send(_ context.Context, m Message) (int, error) {
	l.log.Info().
		Str("from", m.From).
		Str("to", strings.Join(m.To, ",")).
		Int("bcc", len(m.BCC)).
		Str("subject", m.Subject).
		Msg("Deliver")
	return http.StatusOK, nil
}

// NullMailer accepts every message and does nothing.
type NullMailer struct{}

func (NullMailer) Send(context.Context, Message) (int, error) { return http.StatusOK, nil }

// New selects a mailer by name: log, null or mailgun.
func New(name string, cfg MailgunConfig, log zerolog.Logger) (Mailer, error) {
	switch name {
	case "log", "":
		return NewLogMailer(log), nil
	case "null":
		return NullMailer{}, nil
	case "mailgun":
		return NewMailgun(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMailer, name)
	}
}
