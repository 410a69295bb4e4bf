// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/danielhkuo/propjockey/store"
)

var ErrBadFilter = errors.New("bad filter")

// Compiler turns a user filter expression into a store filter. The empty
// expression compiles to a nil filter.
type Compiler interface {
	Compile(expr string) (store.Filter, error)
}

// Criteria is the default compiler. It accepts either a JSON object of
// field conditions or a space-separated list of terms:
//
//	chemsys=Fe-O nelements>=2 "pretty_formula=Li CoO2"
//	{"chemsys": "Fe-O", "nelements": {"$gte": 2}}
//
// A bare term with no operator compares DefaultField for equality.
type Criteria struct {
	DefaultField string
}

var _ Compiler = Criteria{}

func (c Criteria) Compile(expr string) (store.Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	var f store.Filter
	var err error
	if strings.HasPrefix(expr, "{") {
		f, err = compileJSON(expr)
	} else {
		f, err = c.compileTerms(expr)
	}
	if err != nil {
		return nil, err
	}
	for _, cond := range f {
		if err := checkColumn(cond); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// checkColumn requires a number for rank_value and a string for id, so
// every backend compares like with like.
func checkColumn(c store.Condition) error {
	var want string
	var ok func(any) bool
	switch c.Field {
	case store.FieldRankValue:
		want, ok = "a number", func(v any) bool { _, is := v.(float64); return is }
	case store.FieldID:
		want, ok = "a string", func(v any) bool { _, is := v.(string); return is }
	default:
		return nil
	}
	switch c.Op {
	case store.OpExists, store.OpMissing:
		return nil
	case store.OpIn, store.OpNin:
		list, _ := c.Value.([]any)
		for _, v := range list {
			if !ok(v) {
				return bad("field %q: %v is not %s", c.Field, v, want)
			}
		}
		return nil
	}
	if !ok(c.Value) {
		return bad("field %q: %v is not %s", c.Field, c.Value, want)
	}
	return nil
}

func bad(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadFilter, fmt.Sprintf(format, args...))
}

func checkField(field string) error {
	if err := store.ValidateField(field); err != nil {
		return bad("field %q", field)
	}
	return nil
}

// ========== JSON ==========

var jsonOps = map[string]store.Op{
	"$eq":  store.OpEq,
	"$ne":  store.OpNe,
	"$lt":  store.OpLt,
	"$lte": store.OpLte,
	"$gt":  store.OpGt,
	"$gte": store.OpGte,
	"$in":  store.OpIn,
	"$nin": store.OpNin,
}

func compileJSON(expr string) (store.Filter, error) {
	if !gjson.Valid(expr) {
		return nil, bad("invalid JSON")
	}
	root := gjson.Parse(expr)
	if !root.IsObject() {
		return nil, bad("expected a JSON object")
	}

	var out store.Filter
	var err error
	root.ForEach(func(key, value gjson.Result) bool {
		field := key.String()
		if err = checkField(field); err != nil {
			return false
		}
		switch {
		case value.IsObject():
			err = compileOps(field, value, &out)
		case value.IsArray():
			err = bad("field %q: bare arrays are not supported, use $in", field)
		case value.Type == gjson.Null:
			out = append(out, store.Missing(field))
		default:
			out = append(out, store.Eq(field, scalar(value)))
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func compileOps(field string, ops gjson.Result, out *store.Filter) error {
	var err error
	ops.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == "$exists" {
			if value.Type != gjson.True && value.Type != gjson.False {
				err = bad("field %q: $exists takes a boolean", field)
				return false
			}
			if value.Bool() {
				*out = append(*out, store.Exists(field))
			} else {
				*out = append(*out, store.Missing(field))
			}
			return true
		}
		op, ok := jsonOps[name]
		if !ok {
			err = bad("field %q: unknown operator %q", field, name)
			return false
		}
		if op == store.OpIn || op == store.OpNin {
			if !value.IsArray() {
				err = bad("field %q: %s takes an array", field, name)
				return false
			}
			var list []any
			for _, v := range value.Array() {
				if v.IsObject() || v.IsArray() {
					err = bad("field %q: %s takes scalars", field, name)
					return false
				}
				list = append(list, scalar(v))
			}
			*out = append(*out, store.Condition{Field: field, Op: op, Value: list})
			return true
		}
		if value.IsObject() || value.IsArray() {
			err = bad("field %q: %s takes a scalar", field, name)
			return false
		}
		*out = append(*out, store.Condition{Field: field, Op: op, Value: scalar(value)})
		return true
	})
	return err
}

func scalar(v gjson.Result) any {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Num
	case gjson.True:
		return true
	case gjson.False:
		return false
	}
	return nil
}

// ========== Terms ==========

// Longest operators first so ">=" is not read as ">".
var termOps = []struct {
	token string
	op    store.Op
}{
	{"!=", store.OpNe},
	{">=", store.OpGte},
	{"<=", store.OpLte},
	{"=", store.OpEq},
	{">", store.OpGt},
	{"<", store.OpLt},
}

func (c Criteria) compileTerms(expr string) (store.Filter, error) {
	terms, err := splitTerms(expr)
	if err != nil {
		return nil, err
	}
	var out store.Filter
	for _, term := range terms {
		cond, err := c.term(term)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func (c Criteria) term(term string) (store.Condition, error) {
	for _, t := range termOps {
		i := strings.Index(term, t.token)
		if i < 0 {
			continue
		}
		field, raw := term[:i], term[i+len(t.token):]
		if field == "" || raw == "" {
			return store.Condition{}, bad("term %q", term)
		}
		if err := checkField(field); err != nil {
			return store.Condition{}, err
		}
		if field == store.FieldID {
			return store.Condition{Field: field, Op: t.op, Value: raw}, nil
		}
		return store.Condition{Field: field, Op: t.op, Value: parseValue(raw)}, nil
	}
	if c.DefaultField == "" {
		return store.Condition{}, bad("term %q has no operator", term)
	}
	return store.Eq(c.DefaultField, term), nil
}

func parseValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

// splitTerms splits on whitespace outside double quotes and strips the quotes.
func splitTerms(expr string) ([]string, error) {
	var terms []string
	var cur strings.Builder
	quoted := false
	for _, r := range expr {
		switch {
		case r == '"':
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t' || r == '\n'):
			if cur.Len() > 0 {
				terms = append(terms, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if quoted {
		return nil, bad("unterminated quote")
	}
	if cur.Len() > 0 {
		terms = append(terms, cur.String())
	}
	return terms, nil
}
