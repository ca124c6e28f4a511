package utils

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/geocoder89/expertjobs/internal/directory"
)

// BuildQueryCacheKey renders a document query into a stable cache key. The
// collection version is part of the key so a bump invalidates old entries.
func BuildQueryCacheKey(collection string, version int64, filters []directory.Filter, orders []directory.Order, limit int) (string, error) {
	var b strings.Builder
	b.WriteString("docs:")
	b.WriteString(collection)
	b.WriteString(":v")
	b.WriteString(strconv.FormatInt(version, 10))

	for _, f := range filters {
		v, err := json.Marshal(f.Value)
		if err != nil {
			return "", err
		}
		b.WriteString(":where=")
		b.WriteString(f.Field)
		b.WriteByte(',')
		b.WriteString(string(f.Op))
		b.WriteByte(',')
		b.Write(v)
	}

	for _, o := range orders {
		b.WriteString(":order=")
		b.WriteString(o.Field)
		if o.Desc {
			b.WriteString(",desc")
		}
	}

	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(limit))
	return b.String(), nil
}
