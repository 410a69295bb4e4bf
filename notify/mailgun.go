// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MailgunConfig holds the credentials of a Mailgun domain. BaseURL is the
// domain's API root, e.g. https://api.mailgun.net/v3/mg.example.org.
type MailgunConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Mailgun struct {
	key      string
	endpoint string
	client   *http.Client
}

func NewMailgun(cfg MailgunConfig) (*Mailgun, error) {
	if cfg.APIKey == "" || cfg.BaseURL == "" {
		return nil, errors.New("mailgun requires an API key and base URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Mailgun{
		key:      cfg.APIKey,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/messages",
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Send posts the message as a form. The status code is returned even when
// it is not 200 so callers can log it.
func (m *Mailgun) Send(ctx context.Context, msg Message) (int, error) {
	form := url.Values{}
	form.Set("from", msg.From)
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Text)
	for _, to := range msg.To {
		form.Add("to", to)
	}
	for _, bcc := range msg.BCC {
		form.Add("bcc", bcc)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("build mailgun request: %w", err)
	}
	req.SetBasicAuth("api", m.key)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mailgun send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
