// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mongostore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/store"
)

// Collection names.
const (
	EntriesCollection   = "entries"
	DemandsCollection   = "demands"
	WorkflowsCollection = "workflow_links"
)

type entryDoc struct {
	ID         string   `bson:"_id"`
	RankValue  float64  `bson:"rank_value"`
	Attributes bson.Raw `bson:"attributes,omitempty"`
}

type demandDoc struct {
	ID           string    `bson:"_id"`
	EntryID      string    `bson:"entry_id"`
	Property     string    `bson:"property"`
	State        string    `bson:"state"`
	Requesters   []string  `bson:"requesters"`
	RequestCount int       `bson:"request_count"`
	Notified     bool      `bson:"notified"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type linkDoc struct {
	EntryID  string  `bson:"_id"`
	JobID    string  `bson:"job_id"`
	Priority float64 `bson:"priority"`
}

// Store is the MongoDB implementation of store.Store.
type Store struct {
	client    *mongo.Client
	entries   *mongo.Collection
	demands   *mongo.Collection
	workflows *mongo.Collection
	property  []string
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to url, pings the primary and ensures indexes on database.
func Open(ctx context.Context, url, database, property string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("mongo connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}
	s, err := New(client.Database(database), property)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New uses an existing database handle. Close does not disconnect it.
func New(db *mongo.Database, property string) (*Store, error) {
	if err := store.ValidateField(property); err != nil {
		return nil, fmt.Errorf("property: %w", err)
	}
	return &Store{
		entries:   db.Collection(EntriesCollection),
		demands:   db.Collection(DemandsCollection),
		workflows: db.Collection(WorkflowsCollection),
		property:  strings.Split(property, "."),
		now:       time.Now,
	}, nil
}

// EnsureIndexes creates the partial unique index that keeps one active
// demand record per entry, plus the lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.demands.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "entry_id", Value: 1}, {Key: "property", Value: 1}},
			Options: options.Index().
				SetName("demand_active").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "state", Value: string(models.StateActive)}}),
		},
		{Keys: bson.D{{Key: "property", Value: 1}, {Key: "state", Value: 1}, {Key: "request_count", Value: -1}}},
		{Keys: bson.D{{Key: "requesters", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create demand indexes: %w", err)
	}
	_, err = s.workflows.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "job_id", Value: 1}}})
	if err != nil {
		return fmt.Errorf("failed to create workflow indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ========== Entries ==========

func (s *Store) FindEntries(ctx context.Context, q store.Query) ([]models.Entry, error) {
	filter, err := translate(q.Filter)
	if err != nil {
		return nil, err
	}
	sort, err := sortDoc(q.Sort)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(sort)
	if q.Skip > 0 {
		opts.SetSkip(int64(q.Skip))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.entries.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}

	out := make([]models.Entry, 0, len(docs))
	for _, d := range docs {
		e, err := s.entry(d)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) entry(d entryDoc) (models.Entry, error) {
	e := models.Entry{ID: d.ID, RankValue: d.RankValue, Attributes: json.RawMessage(`{}`)}
	if len(d.Attributes) == 0 {
		return e, nil
	}
	attrs, err := bson.MarshalExtJSON(d.Attributes, false, false)
	if err != nil {
		return e, fmt.Errorf("entry %s: encode attributes: %w", d.ID, err)
	}
	e.Attributes = attrs
	_, err = d.Attributes.LookupErr(s.property...)
	e.HasProperty = err == nil
	return e, nil
}

func (s *Store) CountEntries(ctx context.Context, f store.Filter) (int, error) {
	filter, err := translate(f)
	if err != nil {
		return 0, err
	}
	n, err := s.entries.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return int(n), nil
}

func (s *Store) UpsertEntry(ctx context.Context, e models.Entry) error {
	doc := entryDoc{ID: e.ID, RankValue: e.RankValue}
	if len(e.Attributes) > 0 {
		var attrs bson.D
		if err := bson.UnmarshalExtJSON(e.Attributes, false, &attrs); err != nil {
			return fmt.Errorf("entry %s: attributes: %w", e.ID, err)
		}
		raw, err := bson.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("entry %s: attributes: %w", e.ID, err)
		}
		doc.Attributes = raw
	}
	_, err := s.entries.ReplaceOne(ctx, bson.D{{Key: "_id", Value: e.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert entry %s: %w", e.ID, err)
	}
	return nil
}

// ========== Demands ==========

func (s *Store) FindDemands(ctx context.Context, q store.DemandQuery) ([]models.DemandRecord, error) {
	dir := 1
	if q.OrderDesc {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "request_count", Value: dir},
		{Key: "entry_id", Value: 1},
		{Key: "_id", Value: 1},
	})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.demands.Find(ctx, demandFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query demands: %w", err)
	}
	var docs []demandDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode demands: %w", err)
	}
	out := make([]models.DemandRecord, len(docs))
	for i, d := range docs {
		out[i] = models.DemandRecord{
			ID:           d.ID,
			EntryID:      d.EntryID,
			Property:     d.Property,
			Requesters:   d.Requesters,
			RequestCount: d.RequestCount,
			State:        models.DemandState(d.State),
			Notified:     d.Notified,
			CreatedAt:    d.CreatedAt,
			UpdatedAt:    d.UpdatedAt,
		}
	}
	return out, nil
}

func (s *Store) CountDemands(ctx context.Context, q store.DemandQuery) (int, error) {
	n, err := s.demands.CountDocuments(ctx, demandFilter(q))
	if err != nil {
		return 0, fmt.Errorf("failed to count demands: %w", err)
	}
	return int(n), nil
}

// AddRequester upserts against the active record. When user is already a
// member the filter misses, the upsert collides with the partial unique
// index, and the duplicate key error is reported as a rejected guard.
func (s *Store) AddRequester(ctx context.Context, property, entryID, user string) (bool, error) {
	now := s.now().UTC()
	filter := append(activeFilter(property, entryID), bson.E{Key: "requesters", Value: bson.D{{Key: "$ne", Value: user}}})
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "requesters", Value: user}}},
		{Key: "$inc", Value: bson.D{{Key: "request_count", Value: 1}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: now}}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "_id", Value: uuid.NewString()},
			{Key: "notified", Value: false},
			{Key: "created_at", Value: now},
		}},
	}
	res, err := s.demands.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to add requester: %w", err)
	}
	return res.ModifiedCount > 0 || res.UpsertedCount > 0, nil
}

func (s *Store) RemoveRequester(ctx context.Context, property, entryID, user string) (bool, error) {
	filter := append(activeFilter(property, entryID),
		bson.E{Key: "requesters", Value: user},
		bson.E{Key: "request_count", Value: bson.D{{Key: "$gt", Value: 0}}},
	)
	update := bson.D{
		{Key: "$pull", Value: bson.D{{Key: "requesters", Value: user}}},
		{Key: "$inc", Value: bson.D{{Key: "request_count", Value: -1}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: s.now().UTC()}}},
	}
	res, err := s.demands.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to remove requester: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) MarkCompleted(ctx context.Context, id string) (bool, error) {
	res, err := s.demands.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "state", Value: string(models.StateActive)}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "state", Value: string(models.StateCompleted)},
			{Key: "updated_at", Value: s.now().UTC()},
		}}})
	if err != nil {
		return false, fmt.Errorf("failed to complete demand %s: %w", id, err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) MarkNotified(ctx context.Context, id string) (bool, error) {
	res, err := s.demands.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "state", Value: string(models.StateCompleted)},
			{Key: "notified", Value: false},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "notified", Value: true},
			{Key: "updated_at", Value: s.now().UTC()},
		}}})
	if err != nil {
		return false, fmt.Errorf("failed to mark demand %s notified: %w", id, err)
	}
	return res.ModifiedCount > 0, nil
}

// ========== Workflows ==========

func (s *Store) FindWorkflowIDs(ctx context.Context, entryIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(entryIDs) == 0 {
		return out, nil
	}
	cur, err := s.workflows.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: entryIDs}}}})
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow links: %w", err)
	}
	var docs []linkDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode workflow links: %w", err)
	}
	for _, d := range docs {
		out[d.EntryID] = d.JobID
	}
	return out, nil
}

func (s *Store) SetPriority(ctx context.Context, jobID string, priority float64) error {
	res, err := s.workflows.UpdateMany(ctx,
		bson.D{{Key: "job_id", Value: jobID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "priority", Value: priority}}}})
	if err != nil {
		return fmt.Errorf("failed to set priority for job %s: %w", jobID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpsertLink(ctx context.Context, link models.WorkflowLink) error {
	doc := linkDoc{EntryID: link.EntryID, JobID: link.JobID, Priority: link.Priority}
	_, err := s.workflows.ReplaceOne(ctx, bson.D{{Key: "_id", Value: link.EntryID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert workflow link %s: %w", link.EntryID, err)
	}
	return nil
}

