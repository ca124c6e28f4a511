package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/expertjobs/internal/directory"
)

type lookups struct {
	mu   sync.Mutex
	seen []string
}

func (l *lookups) ObserveCacheLookup(collection, result string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, collection+":"+result)
}

func newTestCache(store Store, obs Observer) *QueryCache {
	return NewQueryCache(store, time.Minute, obs, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestQueryCacheHitMissAndInvalidate(t *testing.T) {
	ctx := context.Background()
	obs := &lookups{}
	c := newTestCache(NewLocalStore(time.Minute), obs)

	q := Query{
		Collection: "jobs",
		Orders:     []directory.Order{directory.OrderBy("createdAt", true)},
	}

	if _, ok := c.Get(ctx, q); ok {
		t.Fatalf("expected miss on empty cache")
	}

	c.Set(ctx, q, []directory.Record{{"id": "j1", "title": "Go dev", "salary": 100}})

	recs, ok := c.Get(ctx, q)
	if !ok {
		t.Fatalf("expected hit after Set")
	}
	if len(recs) != 1 || recs[0]["id"] != "j1" {
		t.Fatalf("recs = %v", recs)
	}

	other := q
	other.Limit = 5
	if _, ok := c.Get(ctx, other); ok {
		t.Fatalf("different limit must not share an entry")
	}

	c.Invalidate(ctx, "jobs")
	if _, ok := c.Get(ctx, q); ok {
		t.Fatalf("expected miss after invalidate")
	}

	want := []string{"jobs:miss", "jobs:hit", "jobs:miss", "jobs:miss"}
	if len(obs.seen) != len(want) {
		t.Fatalf("lookups = %v", obs.seen)
	}
	for i := range want {
		if obs.seen[i] != want[i] {
			t.Fatalf("lookup %d = %s, want %s", i, obs.seen[i], want[i])
		}
	}
}

func TestQueryCacheInvalidateIsPerCollection(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(NewLocalStore(time.Minute), nil)

	jobs := Query{Collection: "jobs"}
	apps := Query{Collection: "applications"}
	c.Set(ctx, jobs, []directory.Record{{"id": "j1"}})
	c.Set(ctx, apps, []directory.Record{{"id": "a1"}})

	c.Invalidate(ctx, "applications")

	if _, ok := c.Get(ctx, jobs); !ok {
		t.Fatalf("jobs entry should survive an applications write")
	}
	if _, ok := c.Get(ctx, apps); ok {
		t.Fatalf("applications entry should be gone")
	}
}

type brokenStore struct{ *LocalStore }

func (brokenStore) Counter(context.Context, string) (int64, error) {
	return 0, errors.New("redis down")
}

func TestQueryCacheBackendErrorIsMiss(t *testing.T) {
	obs := &lookups{}
	c := newTestCache(brokenStore{NewLocalStore(time.Minute)}, obs)

	if _, ok := c.Get(context.Background(), Query{Collection: "jobs"}); ok {
		t.Fatalf("expected miss")
	}
	if len(obs.seen) != 1 || obs.seen[0] != "jobs:error" {
		t.Fatalf("lookups = %v", obs.seen)
	}
}

func TestLocalStoreCounter(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(time.Minute)

	if n, _ := s.Counter(ctx, "v"); n != 0 {
		t.Fatalf("missing counter = %d", n)
	}
	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "v")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != i {
			t.Fatalf("incr = %d, want %d", n, i)
		}
	}
	if n, _ := s.Counter(ctx, "v"); n != 3 {
		t.Fatalf("counter = %d", n)
	}
}
