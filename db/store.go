// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/store"
)

// Store is the SQL implementation of store.Store.
type Store struct {
	db       *sqlx.DB
	dialect  Dialect
	property string
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to driver ("postgres" or "sqlite"), verifies the
// connection and creates the schema.
func Open(ctx context.Context, driver, url, property string) (*Store, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	conn, err := sqlx.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if d.Name == "sqlite" {
		// SQLite allows one writer; serialise through a single connection.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if err := CreateSchema(conn, d); err != nil {
		conn.Close()
		return nil, err
	}
	return New(conn, d, property)
}

// New wraps an open connection without touching the schema.
func New(conn *sqlx.DB, d Dialect, property string) (*Store, error) {
	if err := store.ValidateField(property); err != nil {
		return nil, fmt.Errorf("property: %w", err)
	}
	return &Store{db: conn, dialect: d, property: property, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the connection for schema tooling.
func (s *Store) DB() *sqlx.DB { return s.db }

type entryRow struct {
	ID          string         `db:"id"`
	RankValue   float64        `db:"rank_value"`
	Attributes  types.JSONText `db:"attributes"`
	HasProperty bool           `db:"has_property"`
}

type demandRow struct {
	ID           string         `db:"id"`
	EntryID      string         `db:"entry_id"`
	Property     string         `db:"property"`
	State        string         `db:"state"`
	Requesters   types.JSONText `db:"requesters"`
	RequestCount int            `db:"request_count"`
	Notified     bool           `db:"notified"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r demandRow) record() (models.DemandRecord, error) {
	d := models.DemandRecord{
		ID:           r.ID,
		EntryID:      r.EntryID,
		Property:     r.Property,
		RequestCount: r.RequestCount,
		State:        models.DemandState(r.State),
		Notified:     r.Notified,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.Requesters) > 0 {
		if err := json.Unmarshal(r.Requesters, &d.Requesters); err != nil {
			return d, fmt.Errorf("demand %s: decode requesters: %w", r.ID, err)
		}
	}
	return d, nil
}

// ========== Entries ==========

func (s *Store) FindEntries(ctx context.Context, q store.Query) ([]models.Entry, error) {
	query, args, err := s.dialect.entryQuery(s.property, q)
	if err != nil {
		return nil, err
	}
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	out := make([]models.Entry, len(rows))
	for i, r := range rows {
		out[i] = models.Entry{
			ID:          r.ID,
			RankValue:   r.RankValue,
			Attributes:  json.RawMessage(r.Attributes),
			HasProperty: r.HasProperty,
		}
	}
	return out, nil
}

func (s *Store) CountEntries(ctx context.Context, f store.Filter) (int, error) {
	where, args, err := s.dialect.where(f)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM entry"+where), args...); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (s *Store) UpsertEntry(ctx context.Context, e models.Entry) error {
	attrs := string(e.Attributes)
	if attrs == "" {
		attrs = "{}"
	}
	if !json.Valid([]byte(attrs)) {
		return fmt.Errorf("entry %s: attributes are not valid JSON", e.ID)
	}
	query := fmt.Sprintf(`
		INSERT INTO entry (id, rank_value, attributes) VALUES (?, ?, %[1]s)
		ON CONFLICT (id) DO UPDATE SET rank_value = excluded.rank_value, attributes = excluded.attributes`,
		s.dialect.JSONParam)
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), e.ID, e.RankValue, attrs); err != nil {
		return fmt.Errorf("failed to upsert entry %s: %w", e.ID, err)
	}
	return nil
}

// ========== Demands ==========

const demandColumns = "id, entry_id, property, state, requesters, request_count, notified, created_at, updated_at"

func (s *Store) FindDemands(ctx context.Context, q store.DemandQuery) ([]models.DemandRecord, error) {
	where, args := s.dialect.demandWhere(q)
	dir := "ASC"
	if q.OrderDesc {
		dir = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM demand%s ORDER BY request_count %s, entry_id, id", demandColumns, where, dir)
	query += s.dialect.page(0, q.Limit)

	var rows []demandRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query demands: %w", err)
	}
	out := make([]models.DemandRecord, 0, len(rows))
	for _, r := range rows {
		d, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) CountDemands(ctx context.Context, q store.DemandQuery) (int, error) {
	where, args := s.dialect.demandWhere(q)
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM demand"+where), args...); err != nil {
		return 0, fmt.Errorf("failed to count demands: %w", err)
	}
	return n, nil
}

// AddRequester is one INSERT .. ON CONFLICT against the active-record
// index. The DO UPDATE guard skips the row when user is already present,
// which reports zero rows affected.
func (s *Store) AddRequester(ctx context.Context, property, entryID, user string) (bool, error) {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, s.db.Rebind(s.dialect.upvote),
		uuid.NewString(), entryID, property, user, now, now, user, user)
	if err != nil {
		return false, fmt.Errorf("failed to add requester: %w", err)
	}
	return affected(res)
}

func (s *Store) RemoveRequester(ctx context.Context, property, entryID, user string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(s.dialect.downvote),
		user, s.now().UTC(), entryID, property, user)
	if err != nil {
		return false, fmt.Errorf("failed to remove requester: %w", err)
	}
	return affected(res)
}

func (s *Store) MarkCompleted(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"UPDATE demand SET state = 'COMPLETED', updated_at = ? WHERE id = ? AND state = 'ACTIVE'"),
		s.now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to complete demand %s: %w", id, err)
	}
	return affected(res)
}

func (s *Store) MarkNotified(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"UPDATE demand SET notified = TRUE, updated_at = ? WHERE id = ? AND state = 'COMPLETED' AND notified = FALSE"),
		s.now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark demand %s notified: %w", id, err)
	}
	return affected(res)
}

// ========== Workflows ==========

func (s *Store) FindWorkflowIDs(ctx context.Context, entryIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(entryIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In("SELECT entry_id, job_id FROM workflow_link WHERE entry_id IN (?)", entryIDs)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		EntryID string `db:"entry_id"`
		JobID   string `db:"job_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query workflow links: %w", err)
	}
	for _, r := range rows {
		out[r.EntryID] = r.JobID
	}
	return out, nil
}

func (s *Store) SetPriority(ctx context.Context, jobID string, priority float64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE workflow_link SET priority = ? WHERE job_id = ?"), priority, jobID)
	if err != nil {
		return fmt.Errorf("failed to set priority for job %s: %w", jobID, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpsertLink(ctx context.Context, link models.WorkflowLink) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO workflow_link (entry_id, job_id, priority) VALUES (?, ?, ?)
		ON CONFLICT (entry_id) DO UPDATE SET job_id = excluded.job_id, priority = excluded.priority`),
		link.EntryID, link.JobID, link.Priority)
	if err != nil {
		return fmt.Errorf("failed to upsert workflow link %s: %w", link.EntryID, err)
	}
	return nil
}

type result interface{ RowsAffected() (int64, error) }

func affected(res result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
