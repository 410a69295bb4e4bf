// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mongostore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/store"
)

// docPath maps a filter field to its document path.
func docPath(field string) string {
	switch field {
	case store.FieldID:
		return "_id"
	case store.FieldRankValue:
		return "rank_value"
	}
	return "attributes." + field
}

var operators = map[store.Op]string{
	store.OpEq:  "$eq",
	store.OpNe:  "$ne",
	store.OpLt:  "$lt",
	store.OpLte: "$lte",
	store.OpGt:  "$gt",
	store.OpGte: "$gte",
	store.OpIn:  "$in",
	store.OpNin: "$nin",
}

// translate turns a filter into a query document. Each condition becomes
// its own clause under $and so repeated fields never collide.
func translate(f store.Filter) (bson.D, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if len(f) == 0 {
		return bson.D{}, nil
	}
	clauses := make(bson.A, 0, len(f))
	for _, c := range f {
		path := docPath(c.Field)
		var expr bson.D
		switch c.Op {
		case store.OpExists:
			expr = bson.D{{Key: "$exists", Value: true}}
		case store.OpMissing:
			expr = bson.D{{Key: "$exists", Value: false}}
		case store.OpIn, store.OpNin:
			values, err := store.List(c.Value)
			if err != nil {
				return nil, err
			}
			expr = bson.D{{Key: operators[c.Op], Value: normalizeAll(values)}}
		default:
			op, ok := operators[c.Op]
			if !ok {
				return nil, fmt.Errorf("%w: op %q", store.ErrUnsupported, c.Op)
			}
			expr = bson.D{{Key: op, Value: normalize(c.Value)}}
		}
		clauses = append(clauses, bson.D{{Key: path, Value: expr}})
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

// normalize converts numeric values to float64 so ints and floats compare
// the same way on every backend.
func normalize(v any) any {
	if n, ok := store.Number(v); ok {
		return n
	}
	return v
}

func normalizeAll(values []any) bson.A {
	out := make(bson.A, len(values))
	for i, v := range values {
		out[i] = normalize(v)
	}
	return out
}

func sortDoc(keys []store.SortKey) (bson.D, error) {
	out := bson.D{}
	hasID := false
	for _, k := range keys {
		if err := store.ValidateField(k.Field); err != nil {
			return nil, err
		}
		dir := 1
		if k.Desc {
			dir = -1
		}
		if k.Field == store.FieldID {
			hasID = true
		}
		out = append(out, bson.E{Key: docPath(k.Field), Value: dir})
	}
	if !hasID {
		out = append(out, bson.E{Key: "_id", Value: 1})
	}
	return out, nil
}

func demandFilter(q store.DemandQuery) bson.D {
	f := bson.D{}
	if q.Property != "" {
		f = append(f, bson.E{Key: "property", Value: q.Property})
	}
	if q.State != "" {
		f = append(f, bson.E{Key: "state", Value: string(q.State)})
	}
	if q.EntryID != "" {
		f = append(f, bson.E{Key: "entry_id", Value: q.EntryID})
	}
	if q.Requester != "" {
		f = append(f, bson.E{Key: "requesters", Value: q.Requester})
	}
	if q.MinCount > 0 {
		f = append(f, bson.E{Key: "request_count", Value: bson.D{{Key: "$gte", Value: q.MinCount}}})
	}
	if q.Notified != nil {
		f = append(f, bson.E{Key: "notified", Value: *q.Notified})
	}
	return f
}

func activeFilter(property, entryID string) bson.D {
	return bson.D{
		{Key: "entry_id", Value: entryID},
		{Key: "property", Value: property},
		{Key: "state", Value: string(models.StateActive)},
	}
}
