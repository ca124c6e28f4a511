package state

import (
	"slices"
	"sync"

	"github.com/geocoder89/expertjobs/internal/domain/application"
	"github.com/geocoder89/expertjobs/internal/domain/isotime"
	"github.com/geocoder89/expertjobs/internal/domain/job"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// LocalIDPrefix marks application ids assigned before the store answered.
const LocalIDPrefix = "local-"

// FilterAll selects every application in FilterApplications.
const FilterAll = "all"

type CatalogSnapshot struct {
	Jobs         []job.Job                 `json:"jobs"`
	TopJobs      []job.Job                 `json:"topJobs"`
	Applications []application.Application `json:"applications"`
	IsLoading    bool                      `json:"isLoading"`
}

type Catalog struct {
	mu sync.RWMutex
	c  CatalogSnapshot
	// now is swapped in tests
	now func() isotime.Timestamp
}

func NewCatalog() *Catalog {
	return &Catalog{
		c: CatalogSnapshot{
			Jobs:         []job.Job{},
			TopJobs:      []job.Job{},
			Applications: []application.Application{},
		},
		now: isotime.Now,
	}
}

func (c *Catalog) SetJobs(jobs []job.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c.Jobs = cloneOrEmpty(jobs)
}

func (c *Catalog) SetFeaturedJobs(jobs []job.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c.TopJobs = cloneOrEmpty(jobs)
}

// SetApplications replaces the list. Callers holding raw store documents go
// through SetApplicationRecords so dates are normalized first.
func (c *Catalog) SetApplications(apps []application.Application) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c.Applications = cloneOrEmpty(apps)
}

func (c *Catalog) SetApplicationRecords(recs []application.Record) error {
	apps, err := application.FromRecords(recs)
	if err != nil {
		return err
	}
	c.SetApplications(apps)
	return nil
}

func (c *Catalog) SetLoading(loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c.IsLoading = loading
}

func (c *Catalog) AddJob(j job.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c.Jobs = slices.Insert(c.c.Jobs, 0, j)
}

// RemoveJob drops id from the job list and the featured list.
func (c *Catalog) RemoveJob(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.c.Jobs)
	match := func(j job.Job) bool { return j.ID == id }
	c.c.Jobs = slices.DeleteFunc(c.c.Jobs, match)
	c.c.TopJobs = slices.DeleteFunc(c.c.TopJobs, match)
	return len(c.c.Jobs) != n
}

// AddApplication prepends a, assigning a local id and appliedAt when missing,
// and returns what was stored.
func (c *Catalog) AddApplication(a application.Application) application.Application {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a.ID == "" {
		a.ID = LocalIDPrefix + uuid.NewString()
	}
	if a.AppliedAt.IsZero() {
		a.AppliedAt = c.now()
	}

	c.c.Applications = slices.Insert(c.c.Applications, 0, a)
	return a
}

// Application returns the first application with id.
func (c *Catalog) Application(id string) (application.Application, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return lo.Find(c.c.Applications, func(a application.Application) bool {
		return a.ID == id
	})
}

// UpdateApplication merges patch into the first application with id. Unknown
// ids are ignored; the return reports whether anything changed.
func (c *Catalog) UpdateApplication(id string, patch application.Patch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, idx, found := lo.FindIndexOf(c.c.Applications, func(a application.Application) bool {
		return a.ID == id
	})
	if !found {
		return false
	}

	c.c.Applications[idx] = patch.ApplyTo(c.c.Applications[idx])
	return true
}

func (c *Catalog) ApproveApplication(id string) bool {
	return c.UpdateApplication(id, application.ApprovePatch())
}

func (c *Catalog) RejectApplication(id string) bool {
	return c.UpdateApplication(id, application.RejectPatch())
}

// ReconcileApplicationID swaps an optimistic local id for the one the store assigned.
func (c *Catalog) ReconcileApplicationID(localID, remoteID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, idx, found := lo.FindIndexOf(c.c.Applications, func(a application.Application) bool {
		return a.ID == localID
	})
	if !found {
		return false
	}

	c.c.Applications[idx].ID = remoteID
	return true
}

func (c *Catalog) Snapshot() CatalogSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CatalogSnapshot{
		Jobs:         cloneOrEmpty(c.c.Jobs),
		TopJobs:      cloneOrEmpty(c.c.TopJobs),
		Applications: cloneOrEmpty(c.c.Applications),
		IsLoading:    c.c.IsLoading,
	}
}

// FilterApplications returns the applications with the given status, or all
// of them for FilterAll / "".
func (c *Catalog) FilterApplications(status string) []application.Application {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if status == "" || status == FilterAll {
		return cloneOrEmpty(c.c.Applications)
	}

	return lo.Filter(c.c.Applications, func(a application.Application, _ int) bool {
		return string(a.Status) == status
	})
}

// cloneOrEmpty never returns nil so snapshots serialize as [] rather than null.
func cloneOrEmpty[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return slices.Clone(in)
}
