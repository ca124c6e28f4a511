package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

func TestNewLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "prod")

	log.InfoContext(context.Background(), "hello", "k", "v")
	log.Debug("hidden in prod")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected exactly one json line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "hello" || line["k"] != "v" {
		t.Fatalf("unexpected log line %v", line)
	}
	if _, ok := line["trace_id"]; ok {
		t.Fatalf("did not expect trace_id without an active span")
	}
}

func TestClassifyDBErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unique", &pgconn.PgError{Code: "23505"}, "unique_violation"},
		{"other pg", &pgconn.PgError{Code: "42P01"}, "pg_42P01"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"connection", errors.New("connection refused"), "connection"},
		{"unknown", errors.New("boom"), "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyDBErr(tc.err); got != tc.want {
				t.Fatalf("classifyDBErr() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestProm_ObserveDBAndSubmission(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm(reg)

	err := p.ObserveDB("documents.put", func() error { return &pgconn.PgError{Code: "23505"} })
	if err == nil {
		t.Fatalf("expected ObserveDB to return the wrapped error")
	}
	p.ObserveSubmission("employee", "persisted")
	p.ObserveSubmission("employee", "persisted")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	values := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[f.GetName()] += c.GetValue()
			}
		}
	}

	if values["expertjobs_db_errors_total"] != 1 {
		t.Fatalf("expected 1 db error, got %v", values["expertjobs_db_errors_total"])
	}
	if values["expertjobs_submissions_results_total"] != 2 {
		t.Fatalf("expected 2 submissions, got %v", values["expertjobs_submissions_results_total"])
	}
}

func TestTaskMetrics_Snapshot(t *testing.T) {
	m := NewTaskMetrics()
	m.IncClaimed()
	m.IncDone()
	m.ObserveDuration(10 * time.Millisecond)
	m.ObserveDuration(30 * time.Millisecond)

	s := m.Snapshot()
	if s.Claimed != 1 || s.Done != 1 {
		t.Fatalf("unexpected counters %+v", s)
	}
	if s.AverageDuration != 20*time.Millisecond {
		t.Fatalf("expected avg 20ms, got %s", s.AverageDuration)
	}
	if s.MaxDuration != 30*time.Millisecond {
		t.Fatalf("expected max 30ms, got %s", s.MaxDuration)
	}
}
