package state

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/expertjobs/internal/domain/application"
	"github.com/geocoder89/expertjobs/internal/domain/isotime"
	"github.com/geocoder89/expertjobs/internal/domain/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobs(ids ...string) []job.Job {
	out := make([]job.Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, job.Job{ID: id, Title: "Title " + id})
	}
	return out
}

func TestCatalog_SetAndAddJobsPreserveOrder(t *testing.T) {
	c := NewCatalog()
	c.SetJobs(jobs("a", "b", "c"))
	c.SetFeaturedJobs(jobs("a", "b"))
	c.AddJob(job.Job{ID: "z"})

	snap := c.Snapshot()
	ids := make([]string, 0)
	for _, j := range snap.Jobs {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []string{"z", "a", "b", "c"}, ids)
	assert.Len(t, snap.TopJobs, 2)
}

func TestCatalog_RemoveJob(t *testing.T) {
	c := NewCatalog()
	c.SetJobs(jobs("a", "b", "c"))
	c.SetFeaturedJobs(jobs("a", "b"))

	assert.True(t, c.RemoveJob("a"))
	assert.False(t, c.RemoveJob("missing"))

	snap := c.Snapshot()
	assert.Equal(t, jobs("b", "c"), snap.Jobs)
	assert.Equal(t, jobs("b"), snap.TopJobs)
}

func TestCatalog_ApplicationLookup(t *testing.T) {
	c := NewCatalog()
	c.SetApplications([]application.Application{{ID: "a1", Phone: "1"}, {ID: "a2"}})

	got, ok := c.Application("a1")
	require.True(t, ok)
	assert.Equal(t, "1", got.Phone)

	_, ok = c.Application("missing")
	assert.False(t, ok)
}

func TestCatalog_AddApplicationAssignsIDAndDate(t *testing.T) {
	c := NewCatalog()
	c.now = func() isotime.Timestamp { return "2024-02-02T00:00:00.000Z" }

	first := c.AddApplication(application.Application{JobID: "j1"})
	second := c.AddApplication(application.Application{ID: "remote-1", JobID: "j2", AppliedAt: "2023-01-01T00:00:00.000Z"})

	assert.True(t, strings.HasPrefix(first.ID, LocalIDPrefix))
	assert.Equal(t, isotime.Timestamp("2024-02-02T00:00:00.000Z"), first.AppliedAt)
	assert.Equal(t, "remote-1", second.ID)
	assert.Equal(t, isotime.Timestamp("2023-01-01T00:00:00.000Z"), second.AppliedAt)

	apps := c.Snapshot().Applications
	require.Len(t, apps, 2)
	assert.Equal(t, "remote-1", apps[0].ID)
	assert.Equal(t, first.ID, apps[1].ID)
}

func TestCatalog_UpdateApplication(t *testing.T) {
	c := NewCatalog()
	c.SetApplications([]application.Application{
		{ID: "a1", Status: application.StatusPending, Phone: "1"},
		{ID: "a2", Status: application.StatusPending},
	})

	phone := "2"
	assert.True(t, c.UpdateApplication("a1", application.Patch{Phone: &phone}))
	assert.False(t, c.UpdateApplication("missing", application.Patch{Phone: &phone}))

	apps := c.Snapshot().Applications
	assert.Equal(t, "2", apps[0].Phone)
	assert.Equal(t, application.StatusPending, apps[0].Status)
	assert.Equal(t, "", apps[1].Phone)
}

func TestCatalog_ApproveReject(t *testing.T) {
	c := NewCatalog()
	c.SetApplications([]application.Application{
		{ID: "a1", Status: application.StatusPending},
		{ID: "a2", Status: application.StatusPending},
	})

	assert.True(t, c.ApproveApplication("a1"))
	assert.True(t, c.RejectApplication("a2"))
	assert.False(t, c.ApproveApplication("nope"))

	apps := c.Snapshot().Applications
	assert.Equal(t, application.StatusApproved, apps[0].Status)
	assert.Equal(t, application.FeedbackApproved, apps[0].Feedback)
	assert.Equal(t, application.StatusRejected, apps[1].Status)
	assert.Equal(t, application.FeedbackRejected, apps[1].Feedback)
}

func TestCatalog_ApproveUnknownIDLeavesStateUntouched(t *testing.T) {
	c := NewCatalog()
	c.SetApplications([]application.Application{{ID: "a1", Status: application.StatusPending}})
	before := c.Snapshot()

	c.ApproveApplication("a9")

	assert.Equal(t, before, c.Snapshot())
}

func TestCatalog_SetApplicationRecordsNormalizesDates(t *testing.T) {
	c := NewCatalog()
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	err := c.SetApplicationRecords([]application.Record{
		{"id": "a1", "status": "pending", "appliedAt": at},
		{"id": "a2", "status": "approved", "appliedAt": "2024-06-02T08:00:00.000Z"},
	})
	require.NoError(t, err)

	apps := c.Snapshot().Applications
	assert.Equal(t, isotime.Timestamp("2024-06-01T08:00:00.000Z"), apps[0].AppliedAt)
	assert.Equal(t, isotime.Timestamp("2024-06-02T08:00:00.000Z"), apps[1].AppliedAt)
}

func TestCatalog_ReconcileApplicationID(t *testing.T) {
	c := NewCatalog()
	local := c.AddApplication(application.Application{JobID: "j1"})

	assert.True(t, c.ReconcileApplicationID(local.ID, "remote-9"))
	assert.False(t, c.ReconcileApplicationID(local.ID, "remote-10"))
	assert.Equal(t, "remote-9", c.Snapshot().Applications[0].ID)
}

func TestCatalog_FilterApplications(t *testing.T) {
	c := NewCatalog()
	c.SetApplications([]application.Application{
		{ID: "a1", Status: application.StatusPending},
		{ID: "a2", Status: application.StatusApproved},
		{ID: "a3", Status: application.StatusPending},
	})

	assert.Len(t, c.FilterApplications(FilterAll), 3)
	assert.Len(t, c.FilterApplications("pending"), 2)
	assert.Len(t, c.FilterApplications("rejected"), 0)
	assert.NotNil(t, c.FilterApplications("rejected"))
}

func TestCatalog_EmptySnapshotSerializesAsArrays(t *testing.T) {
	c := NewCatalog()
	c.SetJobs(nil)

	snap := c.Snapshot()
	assert.NotNil(t, snap.Jobs)
	assert.NotNil(t, snap.Applications)
}

func TestCatalog_ConcurrentAdds(t *testing.T) {
	c := NewCatalog()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddApplication(application.Application{JobID: "j"})
		}()
	}
	wg.Wait()

	apps := c.Snapshot().Applications
	require.Len(t, apps, 50)

	seen := map[string]bool{}
	for _, a := range apps {
		assert.False(t, seen[a.ID], "duplicate id %s", a.ID)
		seen[a.ID] = true
	}
}
