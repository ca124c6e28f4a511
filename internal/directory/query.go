package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/expertjobs/internal/domain/isotime"
)

// EncodeQuery renders filters and orders as the where/orderBy parameters
// the HTTP service understands. Values are sent as JSON literals so the server can
// tell "1" from 1; times are sent as ISO-8601 text.
func EncodeQuery(filters []Filter, orders []Order) (url.Values, error) {
	q := url.Values{}

	for _, f := range filters {
		if err := ValidateField(f.Field); err != nil {
			return nil, err
		}
		if !f.Op.Valid() {
			return nil, fmt.Errorf("invalid operator %q", f.Op)
		}

		v := f.Value
		switch v.(type) {
		case time.Time, *time.Time:
			ts, _ := isotime.Normalize(v)
			v = ts.String()
		}

		lit, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s value: %w", f.Field, err)
		}
		q.Add("where", f.Field+","+string(f.Op)+","+string(lit))
	}

	for _, o := range orders {
		if err := ValidateField(o.Field); err != nil {
			return nil, err
		}
		val := o.Field
		if o.Desc {
			val += ",desc"
		}
		q.Add("orderBy", val)
	}

	return q, nil
}

// ParamError names the query parameter, and for repeated parameters the
// position, that DecodeQuery or ParseLimit refused.
type ParamError struct {
	Param string
	Index int
	Value string
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Param, e.Value, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

// Path is the parameter as the caller wrote it, e.g. where[1].
func (e *ParamError) Path() string {
	if e.Index < 0 {
		return e.Param
	}
	return fmt.Sprintf("%s[%d]", e.Param, e.Index)
}

// DecodeQuery is the inverse of EncodeQuery. A value that is not valid JSON
// is taken as a bare string.
func DecodeQuery(q url.Values) ([]Filter, []Order, error) {
	filters := make([]Filter, 0, len(q["where"]))
	for i, raw := range q["where"] {
		bad := func(err error) ([]Filter, []Order, error) {
			return nil, nil, &ParamError{Param: "where", Index: i, Value: raw, Err: err}
		}

		parts := strings.SplitN(raw, ",", 3)
		if len(parts) != 3 {
			return bad(errors.New("want field,op,value"))
		}
		field, op := parts[0], Op(parts[1])
		if err := ValidateField(field); err != nil {
			return bad(err)
		}
		if !op.Valid() {
			return bad(fmt.Errorf("invalid operator %q", op))
		}

		var v any
		if err := json.Unmarshal([]byte(parts[2]), &v); err != nil {
			v = parts[2]
		}
		filters = append(filters, Where(field, op, v))
	}

	orders := make([]Order, 0, len(q["orderBy"]))
	for i, raw := range q["orderBy"] {
		field, dir, _ := strings.Cut(raw, ",")
		if err := ValidateField(field); err != nil {
			return nil, nil, &ParamError{Param: "orderBy", Index: i, Value: raw, Err: err}
		}
		switch dir {
		case "", "asc":
			orders = append(orders, OrderBy(field, false))
		case "desc":
			orders = append(orders, OrderBy(field, true))
		default:
			return nil, nil, &ParamError{Param: "orderBy", Index: i, Value: raw, Err: errors.New("direction must be asc or desc")}
		}
	}

	return filters, orders, nil
}

// ParseLimit reads the optional limit parameter; zero means unbounded.
func ParseLimit(q url.Values, max int) (int, error) {
	raw := q.Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &ParamError{Param: "limit", Index: -1, Value: raw, Err: errors.New("must be a non-negative integer")}
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}
