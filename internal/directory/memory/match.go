package memory

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/domain/isotime"
)

type hit struct {
	seq int
	rec directory.Record
}

func matchAll(rec directory.Record, filters []directory.Filter) bool {
	for _, f := range filters {
		if !match(rec, f) {
			return false
		}
	}
	return true
}

func match(rec directory.Record, f directory.Filter) bool {
	v, present := rec[f.Field]
	if !present {
		return f.Op == directory.OpNe
	}

	c, comparable := compareValues(v, f.Value)

	switch f.Op {
	case directory.OpEq:
		return comparable && c == 0
	case directory.OpNe:
		return !comparable || c != 0
	case directory.OpLt:
		return comparable && c < 0
	case directory.OpLte:
		return comparable && c <= 0
	case directory.OpGt:
		return comparable && c > 0
	case directory.OpGte:
		return comparable && c >= 0
	default:
		return false
	}
}

// compareValues orders numbers numerically, dates chronologically and strings
// lexically. Mixed kinds are not comparable.
func compareValues(a, b any) (int, bool) {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return cmp.Compare(x, y), true
		}
		return 0, false
	}

	if x, ok := a.(bool); ok {
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}

	x, okA := toText(a)
	y, okB := toText(b)
	if !okA || !okB {
		return 0, false
	}
	return cmp.Compare(x, y), true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case fmt.Stringer:
		if _, isTime := v.(time.Time); !isTime {
			return x.String(), true
		}
	}

	if ts, ok := isotime.Normalize(v); ok {
		return string(ts), true
	}
	return "", false
}

func sortHits(hits []hit, orders []directory.Order) {
	slices.SortStableFunc(hits, func(a, b hit) int {
		for _, o := range orders {
			c, ok := compareValues(a.rec[o.Field], b.rec[o.Field])
			if !ok {
				c = missingLast(a.rec[o.Field], b.rec[o.Field])
			}
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

func missingLast(a, b any) int {
	switch {
	case a == nil && b != nil:
		return 1
	case a != nil && b == nil:
		return -1
	default:
		return 0
	}
}
