// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

// Default message templates.
const (
	DefaultUserSubject  = "Data for {{.EntryID}} is now available"
	DefaultUserText     = "Hello,\n\nYou asked to be notified when {{.EntryID}} was done. The data is online at {{.Link}}\n"
	DefaultStaffSubject = "Sent notifications about {{comma .Entries}} entries to {{comma .Users}} users"
	DefaultStaffText    = "Sent notification about {{.EntryID}} to {{plural .Requesters \"requester\" \"\"}}. Data online at {{.Link}}"
)

// TemplateConfig holds the raw text/template sources. Empty fields use
// the defaults.
type TemplateConfig struct {
	UserSubject  string
	UserText     string
	StaffSubject string
	StaffText    string
}

// Notice is the data of one requester message and one staff summary line.
type Notice struct {
	EntryID    string
	Link       string
	Requesters int
}

// Summary is the data of the staff subject line.
type Summary struct {
	Entries int
	Users   int
}

type Templates struct {
	userSubject, userText   *template.Template
	staffSubject, staffText *template.Template
}

var funcs = template.FuncMap{
	"plural": func(n int, singular, plural string) string { return english.Plural(n, singular, plural) },
	"comma":  func(n int) string { return humanize.Comma(int64(n)) },
}

func ParseTemplates(cfg TemplateConfig) (*Templates, error) {
	parse := func(name, src, def string) (*template.Template, error) {
		if src == "" {
			src = def
		}
		t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		return t, nil
	}

	var t Templates
	var err error
	if t.userSubject, err = parse("user_subject", cfg.UserSubject, DefaultUserSubject); err != nil {
		return nil, err
	}
	if t.userText, err = parse("user_text", cfg.UserText, DefaultUserText); err != nil {
		return nil, err
	}
	if t.staffSubject, err = parse("staff_subject", cfg.StaffSubject, DefaultStaffSubject); err != nil {
		return nil, err
	}
	if t.staffText, err = parse("staff_text", cfg.StaffText, DefaultStaffText); err != nil {
		return nil, err
	}
	return &t, nil
}

// User renders the subject and body sent to each requester.
func (t *Templates) User(n Notice) (subject, text string, err error) {
	if subject, err = render(t.userSubject, n); err != nil {
		return "", "", err
	}
	if text, err = render(t.userText, n); err != nil {
		return "", "", err
	}
	return subject, text, nil
}

// Staff renders the summary subject and one body line per notice.
func (t *Templates) Staff(s Summary, notices []Notice) (subject, text string, err error) {
	if subject, err = render(t.staffSubject, s); err != nil {
		return "", "", err
	}
	lines := make([]string, 0, len(notices))
	for _, n := range notices {
		line, err := render(t.staffText, n)
		if err != nil {
			return "", "", err
		}
		lines = append(lines, line)
	}
	return subject, strings.Join(lines, "\n"), nil
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return b.String(), nil
}
