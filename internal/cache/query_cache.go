package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/utils"
)

type Observer interface {
	ObserveCacheLookup(collection, result string)
}

// QueryCache caches QueryDocuments results per collection. Every write to a
// collection bumps its version, which orphans all earlier entries.
type QueryCache struct {
	store Store
	ttl   time.Duration
	obs   Observer
	log   *slog.Logger
}

func NewQueryCache(store Store, ttl time.Duration, obs Observer, log *slog.Logger) *QueryCache {
	if log == nil {
		log = slog.Default()
	}
	return &QueryCache{store: store, ttl: ttl, obs: obs, log: log}
}

type Query struct {
	Collection string
	Filters    []directory.Filter
	Orders     []directory.Order
	Limit      int
}

func versionKey(collection string) string {
	return "docs:" + collection + ":version"
}

func (c *QueryCache) observe(collection, result string) {
	if c.obs != nil {
		c.obs.ObserveCacheLookup(collection, result)
	}
}

func (c *QueryCache) key(ctx context.Context, q Query) (string, error) {
	v, err := c.store.Counter(ctx, versionKey(q.Collection))
	if err != nil {
		return "", err
	}
	return utils.BuildQueryCacheKey(q.Collection, v, q.Filters, q.Orders, q.Limit)
}

// Get returns the cached records for q. Backend failures count as misses.
func (c *QueryCache) Get(ctx context.Context, q Query) ([]directory.Record, bool) {
	key, err := c.key(ctx, q)
	if err != nil {
		c.log.WarnContext(ctx, "query cache key failed", "collection", q.Collection, "err", err)
		c.observe(q.Collection, "error")
		return nil, false
	}

	b, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.WarnContext(ctx, "query cache get failed", "collection", q.Collection, "err", err)
		c.observe(q.Collection, "error")
		return nil, false
	}
	if !found {
		c.observe(q.Collection, "miss")
		return nil, false
	}

	recs, err := decodeRecords(b)
	if err != nil {
		c.observe(q.Collection, "error")
		return nil, false
	}

	c.observe(q.Collection, "hit")
	return recs, true
}

func (c *QueryCache) Set(ctx context.Context, q Query, recs []directory.Record) {
	key, err := c.key(ctx, q)
	if err != nil {
		return
	}

	b, err := json.Marshal(recs)
	if err != nil {
		return
	}

	if err := c.store.Set(ctx, key, b, c.ttl); err != nil {
		c.log.WarnContext(ctx, "query cache set failed", "collection", q.Collection, "err", err)
	}
}

// Invalidate drops every cached query of collection.
func (c *QueryCache) Invalidate(ctx context.Context, collection string) {
	if _, err := c.store.Incr(ctx, versionKey(collection)); err != nil {
		c.log.WarnContext(ctx, "query cache invalidate failed", "collection", collection, "err", err)
	}
}

func decodeRecords(b []byte) ([]directory.Record, error) {
	var recs []directory.Record
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}
