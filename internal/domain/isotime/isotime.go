// Package isotime holds the one textual date form that crosses the state and
// storage boundary. Everything date-like coming back from a document store is
// normalized here so containers only ever hold ISO-8601 strings.
package isotime

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Layout is fixed width in UTC, so lexical order matches chronological order.
const Layout = "2006-01-02T15:04:05.000Z07:00"

type Timestamp string

func From(t time.Time) Timestamp {
	return Timestamp(t.UTC().Format(Layout))
}

func Now() Timestamp {
	return From(time.Now())
}

func (ts Timestamp) String() string { return string(ts) }

func (ts Timestamp) IsZero() bool { return ts == "" }

// Time parses the stored text. Any RFC 3339 form is accepted.
func (ts Timestamp) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, string(ts))
}

// Normalize converts a date-like value into a Timestamp. Strings pass through
// untouched, which makes the conversion idempotent.
func Normalize(v any) (Timestamp, bool) {
	switch x := v.(type) {
	case Timestamp:
		return x, x != ""
	case string:
		return Timestamp(x), x != ""
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return From(x), true
	case *time.Time:
		if x == nil || x.IsZero() {
			return "", false
		}
		return From(*x), true
	case int64:
		return From(time.UnixMilli(x)), true
	case int:
		return From(time.UnixMilli(int64(x))), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		return From(time.UnixMilli(int64(x))), true
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil {
				return "", false
			}
			ms = int64(f)
		}
		return From(time.UnixMilli(ms)), true
	case map[string]any:
		return fromSecondsObject(x)
	default:
		return "", false
	}
}

// Document stores commonly return {seconds, nanoseconds}; admin SDKs prefix
// the keys with an underscore.
func fromSecondsObject(m map[string]any) (Timestamp, bool) {
	secs, ok := number(m["seconds"])
	if !ok {
		secs, ok = number(m["_seconds"])
	}
	if !ok {
		return "", false
	}

	nanos, ok := number(m["nanoseconds"])
	if !ok {
		nanos, _ = number(m["_nanoseconds"])
	}

	return From(time.Unix(int64(secs), int64(nanos))), true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*ts = ""
		return nil
	}

	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	v, ok := Normalize(raw)
	if !ok {
		if s, isString := raw.(string); isString && s == "" {
			*ts = ""
			return nil
		}
		return fmt.Errorf("isotime: cannot convert %s to timestamp", string(b))
	}

	*ts = v
	return nil
}
