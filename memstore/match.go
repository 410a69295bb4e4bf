// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package memstore

import (
	"github.com/tidwall/gjson"

	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/store"
)

// lookup resolves a filter field on an entry. Column fields are wrapped in
// a gjson.Result so every comparison goes through one code path.
func lookup(e models.Entry, field string) gjson.Result {
	switch field {
	case store.FieldID:
		return gjson.Result{Type: gjson.String, Str: e.ID}
	case store.FieldRankValue:
		return gjson.Result{Type: gjson.Number, Num: e.RankValue}
	}
	if len(e.Attributes) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(e.Attributes, field)
}

func matches(e models.Entry, f store.Filter) (bool, error) {
	for _, c := range f {
		ok, err := matchCondition(lookup(e, c.Field), c)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchCondition(res gjson.Result, c store.Condition) (bool, error) {
	switch c.Op {
	case store.OpExists:
		return res.Exists(), nil
	case store.OpMissing:
		return !res.Exists(), nil
	case store.OpEq:
		return equal(res, c.Value), nil
	case store.OpNe:
		return !equal(res, c.Value), nil
	case store.OpIn, store.OpNin:
		values, err := store.List(c.Value)
		if err != nil {
			return false, err
		}
		found := false
		for _, v := range values {
			if equal(res, v) {
				found = true
				break
			}
		}
		return found == (c.Op == store.OpIn), nil
	case store.OpLt, store.OpLte, store.OpGt, store.OpGte:
		cmp, ok := compare(res, c.Value)
		if !ok {
			return false, nil
		}
		switch c.Op {
		case store.OpLt:
			return cmp < 0, nil
		case store.OpLte:
			return cmp <= 0, nil
		case store.OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	}
	return false, store.ErrUnsupported
}

func equal(res gjson.Result, v any) bool {
	if !res.Exists() {
		return false
	}
	switch want := v.(type) {
	case string:
		return res.Type == gjson.String && res.Str == want
	case bool:
		return (res.Type == gjson.True && want) || (res.Type == gjson.False && !want)
	case nil:
		return res.Type == gjson.Null
	}
	if n, ok := store.Number(v); ok {
		return res.Type == gjson.Number && res.Num == n
	}
	return false
}

// compare orders res against v when both are numbers or both are strings.
func compare(res gjson.Result, v any) (int, bool) {
	if n, ok := store.Number(v); ok {
		if res.Type != gjson.Number {
			return 0, false
		}
		switch {
		case res.Num < n:
			return -1, true
		case res.Num > n:
			return 1, true
		}
		return 0, true
	}
	if s, ok := v.(string); ok && res.Type == gjson.String {
		switch {
		case res.Str < s:
			return -1, true
		case res.Str > s:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
