// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"fmt"
	"strings"

	"github.com/danielhkuo/propjockey/store"
)

// Field paths are validated against store.ValidateField before they reach
// this file, so they are safe to inline as SQL literals. Values are always
// bound as parameters.

func (d Dialect) where(f store.Filter) (string, []any, error) {
	if err := f.Validate(); err != nil {
		return "", nil, err
	}
	if len(f) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(f))
	var args []any
	for _, c := range f {
		sql, a, err := d.condition(c)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, a...)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (d Dialect) condition(c store.Condition) (string, []any, error) {
	if c.Field == store.FieldID || c.Field == store.FieldRankValue {
		return columnCondition(c)
	}
	path := strings.Split(c.Field, ".")

	switch c.Op {
	case store.OpExists:
		return d.exists(path), nil, nil
	case store.OpMissing:
		return "NOT (" + d.exists(path) + ")", nil, nil
	case store.OpEq:
		return d.equal(path, c.Value)
	case store.OpNe:
		sql, args, err := d.equal(path, c.Value)
		return "NOT COALESCE(" + sql + ", FALSE)", args, err
	case store.OpIn, store.OpNin:
		values, err := store.List(c.Value)
		if err != nil {
			return "", nil, err
		}
		if len(values) == 0 {
			if c.Op == store.OpIn {
				return "1 = 0", nil, nil
			}
			return "1 = 1", nil, nil
		}
		ors := make([]string, 0, len(values))
		var args []any
		for _, v := range values {
			sql, a, err := d.equal(path, v)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, sql)
			args = append(args, a...)
		}
		sql := "COALESCE(" + strings.Join(ors, " OR ") + ", FALSE)"
		if c.Op == store.OpNin {
			sql = "NOT " + sql
		}
		return sql, args, nil
	case store.OpLt, store.OpLte, store.OpGt, store.OpGte:
		op := comparators[c.Op]
		if n, ok := store.Number(c.Value); ok {
			return d.numeric(path) + " " + op + " ?", []any{n}, nil
		}
		if s, ok := c.Value.(string); ok {
			return d.text(path) + " " + op + " ?", []any{s}, nil
		}
		return "", nil, fmt.Errorf("%w: %s on %T", store.ErrUnsupported, c.Op, c.Value)
	}
	return "", nil, fmt.Errorf("%w: op %q", store.ErrUnsupported, c.Op)
}

var comparators = map[store.Op]string{
	store.OpEq:  "=",
	store.OpNe:  "<>",
	store.OpLt:  "<",
	store.OpLte: "<=",
	store.OpGt:  ">",
	store.OpGte: ">=",
}

func columnCondition(c store.Condition) (string, []any, error) {
	col := c.Field
	switch c.Op {
	case store.OpExists:
		return "1 = 1", nil, nil
	case store.OpMissing:
		return "1 = 0", nil, nil
	case store.OpIn, store.OpNin:
		values, err := store.List(c.Value)
		if err != nil {
			return "", nil, err
		}
		if len(values) == 0 {
			if c.Op == store.OpIn {
				return "1 = 0", nil, nil
			}
			return "1 = 1", nil, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		not := ""
		if c.Op == store.OpNin {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sIN (%s)", col, not, marks), values, nil
	}
	op, ok := comparators[c.Op]
	if !ok {
		return "", nil, fmt.Errorf("%w: op %q", store.ErrUnsupported, c.Op)
	}
	return col + " " + op + " ?", []any{c.Value}, nil
}

// equal matches an attribute against a JSON scalar of the same type.
func (d Dialect) equal(path []string, v any) (string, []any, error) {
	switch want := v.(type) {
	case string:
		return d.text(path) + " = ?", []any{want}, nil
	case bool:
		lit := "false"
		if want {
			lit = "true"
		}
		if d.Name == "postgres" {
			return fmt.Sprintf("(%s = 'boolean' AND %s = '%s')", d.kind(path), d.value(path), lit), nil, nil
		}
		return fmt.Sprintf("%s = '%s'", d.kind(path), lit), nil, nil
	case nil:
		return d.kind(path) + " = 'null'", nil, nil
	}
	if n, ok := store.Number(v); ok {
		return d.numeric(path) + " = ?", []any{n}, nil
	}
	return "", nil, fmt.Errorf("%w: value of type %T", store.ErrUnsupported, v)
}

// numeric yields the attribute as a number, or NULL when it is not one.
func (d Dialect) numeric(path []string) string {
	num := d.value(path)
	if d.Name == "postgres" {
		num += "::numeric"
	}
	return fmt.Sprintf("(CASE WHEN %s IN %s THEN %s END)", d.kind(path), d.numberKinds, num)
}

// text yields the attribute as a string, or NULL when it is not one.
func (d Dialect) text(path []string) string {
	return fmt.Sprintf("(CASE WHEN %s = %s THEN %s END)", d.kind(path), d.stringKind, d.value(path))
}

func (d Dialect) orderBy(keys []store.SortKey) (string, error) {
	parts := make([]string, 0, len(keys)+1)
	hasID := false
	for _, k := range keys {
		if err := store.ValidateField(k.Field); err != nil {
			return "", err
		}
		expr := k.Field
		switch k.Field {
		case store.FieldID:
			hasID = true
		case store.FieldRankValue:
		default:
			expr = d.raw(strings.Split(k.Field, "."))
		}
		if k.Desc {
			expr += " DESC"
		}
		parts = append(parts, expr)
	}
	if !hasID {
		parts = append(parts, "id")
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func (d Dialect) page(skip, limit int) string {
	switch {
	case limit > 0 && skip > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, skip)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case skip > 0 && d.Name == "sqlite":
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", skip)
	case skip > 0:
		return fmt.Sprintf(" OFFSET %d", skip)
	}
	return ""
}

// entryQuery builds the SELECT for FindEntries. property is the attribute
// whose presence sets has_property.
func (d Dialect) entryQuery(property string, q store.Query) (string, []any, error) {
	where, args, err := d.where(q.Filter)
	if err != nil {
		return "", nil, err
	}
	order, err := d.orderBy(q.Sort)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT id, rank_value, attributes, (%s) AS has_property FROM entry",
		d.exists(strings.Split(property, ".")))
	return sql + where + order + d.page(q.Skip, q.Limit), args, nil
}

func (d Dialect) demandWhere(q store.DemandQuery) (string, []any) {
	var parts []string
	var args []any
	if q.Property != "" {
		parts = append(parts, "property = ?")
		args = append(args, q.Property)
	}
	if q.State != "" {
		parts = append(parts, "state = ?")
		args = append(args, string(q.State))
	}
	if q.EntryID != "" {
		parts = append(parts, "entry_id = ?")
		args = append(args, q.EntryID)
	}
	if q.Requester != "" {
		parts = append(parts, d.member)
		args = append(args, q.Requester)
	}
	if q.MinCount > 0 {
		parts = append(parts, "request_count >= ?")
		args = append(args, q.MinCount)
	}
	if q.Notified != nil {
		parts = append(parts, "notified = ?")
		args = append(args, *q.Notified)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}
