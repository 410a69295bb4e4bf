// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/danielhkuo/propjockey/filter"
	"github.com/danielhkuo/propjockey/middleware"
	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/ranking"
)

// Feed computes feed pages.
type Feed interface {
	Rows(ctx context.Context, p ranking.Params) (ranking.Page, error)
}

// Identity resolves the caller of a request; "" is anonymous.
type Identity interface {
	Caller(r *http.Request) string
}

// FeedConfig controls paging defaults and HTML labels.
type FeedConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	RankLabel       string
	PropertyLabel   string
}

type FeedHandler struct {
	feed Feed
	ids  Identity
	cfg  FeedConfig
	log  zerolog.Logger
}

func NewFeedHandler(feed Feed, ids Identity, cfg FeedConfig, log zerolog.Logger) *FeedHandler {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 10
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	return &FeedHandler{feed: feed, ids: ids, cfg: cfg, log: log.With().Str("component", "feed").Logger()}
}

// Rows handles GET /rows
func (h *FeedHandler) Rows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := h.params(q)
	if err != nil {
		middleware.CodedErrorResponse(w, http.StatusBadRequest, models.CodeBadRequest, err.Error())
		return
	}
	p.Caller = h.ids.Caller(r)

	format := q.Get("format")
	if format != "" && format != "json" && format != "html" {
		middleware.CodedErrorResponse(w, http.StatusBadRequest, models.CodeBadRequest, "format must be json or html")
		return
	}

	page, err := h.feed.Rows(r.Context(), p)
	switch {
	case errors.Is(err, filter.ErrBadFilter):
		middleware.CodedErrorResponse(w, http.StatusBadRequest, models.CodeBadFilter, err.Error())
		return
	case errors.Is(err, ranking.ErrBadPage):
		middleware.CodedErrorResponse(w, http.StatusBadRequest, models.CodeBadRequest, err.Error())
		return
	case err != nil:
		h.log.Error().Err(err).Msg("failed to compute feed")
		middleware.CodedErrorResponse(w, http.StatusInternalServerError, models.CodeServiceUnavailable, "Database error")
		return
	}

	if format == "html" {
		h.renderHTML(w, r, p, page)
		return
	}
	if page.Rows == nil {
		page.Rows = []models.Row{}
	}
	middleware.JSONResponse(w, http.StatusOK, models.RowsResponse{Rows: page.Rows, NoMore: page.NoMore})
}

func (h *FeedHandler) params(q url.Values) (ranking.Params, error) {
	p := ranking.Params{
		Filter:    q.Get("filter"),
		CountDesc: true,
		PageSize:  h.cfg.DefaultPageSize,
	}

	for _, raw := range q["which"] {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			tier := models.Tier(name)
			if !slices.Contains(models.AllTiers, tier) {
				return p, fmt.Errorf("unknown tier %q", name)
			}
			p.Tiers = append(p.Tiers, tier)
		}
	}

	var err error
	if p.CountDesc, err = direction(q.Get("psort"), true); err != nil {
		return p, fmt.Errorf("psort: %w", err)
	}
	if p.RankDesc, err = direction(q.Get("ssort"), false); err != nil {
		return p, fmt.Errorf("ssort: %w", err)
	}

	if raw := q.Get("useronly"); raw != "" {
		if p.UserOnly, err = strconv.ParseBool(raw); err != nil {
			return p, errors.New("useronly must be a boolean")
		}
	}

	if raw := q.Get("psize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return p, errors.New("psize must be a positive integer")
		}
		p.PageSize = min(n, h.cfg.MaxPageSize)
	}
	if raw := q.Get("pnum"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, errors.New("pnum must be a non-negative integer")
		}
		if n > (math.MaxInt-1)/p.PageSize {
			return p, errors.New("pnum is too large")
		}
		p.PageNum = n
	}
	return p, nil
}

// direction parses incr/decr into "descending".
func direction(raw string, def bool) (bool, error) {
	switch raw {
	case "":
		return def, nil
	case "decr":
		return true, nil
	case "incr":
		return false, nil
	}
	return false, fmt.Errorf("must be incr or decr, got %q", raw)
}
