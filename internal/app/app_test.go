package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/directory/memory"
	"github.com/geocoder89/expertjobs/internal/domain/application"
	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/geocoder89/expertjobs/internal/domain/job"
	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/geocoder89/expertjobs/internal/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, *memory.Directory) {
	t.Helper()
	dir := memory.New()
	a := New(dir, Options{Logger: observability.NopLogger(), RedirectDelay: 10 * time.Millisecond})
	t.Cleanup(a.Close)
	return a, dir
}

func register(t *testing.T, a *App, email string, role identity.Role) *identity.Identity {
	t.Helper()
	id, err := a.Register(context.Background(), RegisterInput{
		FullName: "Ann", Email: email, Password: "secret1", ConfirmPassword: "secret1", Role: role,
	})
	require.NoError(t, err)
	return id
}

func TestRegister_FormChecks(t *testing.T) {
	a, dir := newTestApp(t)

	tests := []struct {
		name string
		in   RegisterInput
		msg  string
	}{
		{"missing field", RegisterInput{Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1"}, MessageFillAllFields},
		{"mismatch", RegisterInput{FullName: "A", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret2"}, MessagePasswordMismatch},
		{"too short", RegisterInput{FullName: "A", Email: "a@x.com", Password: "abc", ConfirmPassword: "abc"}, MessagePasswordTooShort},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.Register(context.Background(), tc.in)

			var fe *FormError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.msg, fe.Message)
			assert.True(t, IsFormError(err))
		})
	}

	assert.Equal(t, 0, dir.Writes())
	assert.False(t, a.Session.Snapshot().IsAuthenticated)
}

func TestRegister_WritesProfileAndSignsIn(t *testing.T) {
	a, dir := newTestApp(t)

	id := register(t, a, "boss@acme.test", identity.RoleEmployer)

	snap := a.Session.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	require.NotNil(t, snap.UserType)
	assert.Equal(t, identity.RoleEmployer, *snap.UserType)
	assert.Equal(t, id.UID, snap.UserData.UID)
	assert.False(t, snap.IsLoading)

	doc, ok := dir.Document("users", id.UID)
	require.True(t, ok)
	assert.Equal(t, "employer", doc["userType"])
	assert.Equal(t, "Ann", doc["fullName"])
	assert.Equal(t, false, doc["isVerified"])
}

func TestRegister_SurfacesAuthError(t *testing.T) {
	a, _ := newTestApp(t)
	register(t, a, "ann@example.com", identity.RoleEmployee)

	_, err := a.Register(context.Background(), RegisterInput{
		FullName: "Ann", Email: "ann@example.com", Password: "secret1", ConfirmPassword: "secret1",
	})

	var authErr *directory.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, directory.CodeEmailInUse, authErr.Code)
}

func TestSignIn_ProfileRoleWins(t *testing.T) {
	a, _ := newTestApp(t)
	register(t, a, "boss@acme.test", identity.RoleEmployer)
	require.NoError(t, a.SignOut(context.Background()))

	_, err := a.SignIn(context.Background(), "boss@acme.test", "secret1", identity.RoleEmployee)
	var authErr *directory.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, directory.CodeRoleMismatch, authErr.Code)
	assert.False(t, a.Session.Snapshot().IsAuthenticated)

	_, err = a.SignIn(context.Background(), "boss@acme.test", "secret1", identity.RoleEmployer)
	require.NoError(t, err)
	role, ok := a.Session.Role()
	assert.True(t, ok)
	assert.Equal(t, identity.RoleEmployer, role)
}

func TestSignIn_WithoutProfileKeepsSelectedRole(t *testing.T) {
	a, dir := newTestApp(t)
	_, err := dir.SignUp(context.Background(), "legacy@example.com", "secret1")
	require.NoError(t, err)

	_, err = a.SignIn(context.Background(), "legacy@example.com", "secret1", identity.RoleEmployer)
	require.NoError(t, err)

	role, _ := a.Session.Role()
	assert.Equal(t, identity.RoleEmployer, role)
}

func TestSignIn_WritesMissingProfile(t *testing.T) {
	a, dir := newTestApp(t)
	ctx := context.Background()

	dir.FailWrites(errors.New("unavailable"))
	_, err := a.Register(ctx, RegisterInput{
		FullName: "Boss", Email: "boss@acme.test", Password: "secret1", ConfirmPassword: "secret1", Role: identity.RoleEmployer,
	})
	var storeErr *directory.StoreError
	require.ErrorAs(t, err, &storeErr)
	dir.FailWrites(nil)

	_, err = a.SignIn(ctx, "boss@acme.test", "secret1", identity.RoleEmployer)
	require.NoError(t, err)

	uid := dir.Current().UID
	doc, ok := dir.Document("users", uid)
	require.True(t, ok, "profile not written")
	assert.Equal(t, "employer", doc["userType"])

	// the stored role now decides
	require.NoError(t, a.SignOut(ctx))
	_, err = a.SignIn(ctx, "boss@acme.test", "secret1", identity.RoleEmployee)
	var authErr *directory.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, directory.CodeRoleMismatch, authErr.Code)
}

func TestSignIn_EmptyFields(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := a.SignIn(context.Background(), " ", "", identity.RoleEmployee)
	assert.True(t, IsFormError(err))
}

func TestResetPassword(t *testing.T) {
	a, dir := newTestApp(t)
	register(t, a, "ann@example.com", identity.RoleEmployee)

	msg, err := a.ResetPassword(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, MessageResetSent, msg)
	assert.Equal(t, []string{"ann@example.com"}, dir.PasswordResets())

	_, err = a.ResetPassword(context.Background(), "")
	assert.True(t, IsFormError(err))
}

func TestSignOut_KeepsCatalog(t *testing.T) {
	a, _ := newTestApp(t)
	register(t, a, "ann@example.com", identity.RoleEmployee)
	a.Catalog.SetJobs([]job.Job{{ID: "j1"}})

	require.NoError(t, a.SignOut(context.Background()))

	snap := a.Session.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.Nil(t, snap.UserData)
	assert.Nil(t, snap.UserType)
	assert.Len(t, a.Catalog.Snapshot().Jobs, 1)
}

func TestPostJobAndLoadJobs(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	_, err := a.PostJob(ctx, job.CreateJobRequest{Title: "x", Company: "y", Location: "z"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	register(t, a, "ann@example.com", identity.RoleEmployee)
	_, err = a.PostJob(ctx, job.CreateJobRequest{Title: "x", Company: "y", Location: "z"})
	assert.ErrorIs(t, err, ErrRoleNotPermitted)
	require.NoError(t, a.SignOut(ctx))

	boss := register(t, a, "boss@acme.test", identity.RoleEmployer)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		a.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		j, err := a.PostJob(ctx, job.CreateJobRequest{Title: title, Company: "Acme", Location: "Remote"})
		require.NoError(t, err)
		assert.NotEmpty(t, j.ID)
		assert.Equal(t, boss.UID, j.EmployerID)
	}

	snap := a.Catalog.Snapshot()
	require.Len(t, snap.Jobs, 3)
	assert.Equal(t, "third", snap.Jobs[0].Title)

	a.Catalog.SetJobs(nil)
	require.NoError(t, a.LoadJobs(ctx))

	snap = a.Catalog.Snapshot()
	require.Len(t, snap.Jobs, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{snap.Jobs[0].Title, snap.Jobs[1].Title, snap.Jobs[2].Title})
	require.Len(t, snap.TopJobs, FeaturedCount)
	assert.Equal(t, "third", snap.TopJobs[0].Title)
	assert.Equal(t, "2024-01-01T02:00:00.000Z", snap.Jobs[0].CreatedAt.String())
}

func TestCloseJob(t *testing.T) {
	a, dir := newTestApp(t)
	ctx := context.Background()

	register(t, a, "boss@acme.test", identity.RoleEmployer)
	open, err := a.PostJob(ctx, job.CreateJobRequest{Title: "open", Company: "Acme", Location: "Remote"})
	require.NoError(t, err)
	closing, err := a.PostJob(ctx, job.CreateJobRequest{Title: "closing", Company: "Acme", Location: "Remote"})
	require.NoError(t, err)
	assert.Equal(t, job.StatusActive, closing.Status)

	require.NoError(t, a.CloseJob(ctx, closing.ID))
	doc, _ := dir.Document(JobsCollection, closing.ID)
	assert.Equal(t, "closed", doc["status"])

	require.NoError(t, a.LoadJobs(ctx))
	snap := a.Catalog.Snapshot()
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, open.ID, snap.Jobs[0].ID)

	assert.ErrorIs(t, a.CloseJob(ctx, "missing"), directory.ErrNotFound)
}

func TestPostJob_RejectsInvalidRequest(t *testing.T) {
	a, dir := newTestApp(t)
	register(t, a, "boss@acme.test", identity.RoleEmployer)
	before := dir.Writes()

	for _, req := range []job.CreateJobRequest{
		{Title: "Go dev", Company: "Acme"},
		{Title: "Go dev", Company: "Acme", Location: "Remote", Type: "Gig"},
		{Title: "Go dev", Company: "Acme", Location: "Remote", CompanyLogo: "not a url"},
	} {
		_, err := a.PostJob(context.Background(), req)
		assert.ErrorIs(t, err, job.ErrInvalidInput)
	}
	assert.Equal(t, before, dir.Writes())
}

func TestLoadJobs_StoreFailure(t *testing.T) {
	a, dir := newTestApp(t)
	a.Catalog.SetJobs([]job.Job{{ID: "kept"}})
	dir.FailReads(errors.New("offline"))

	err := a.LoadJobs(context.Background())

	var storeErr *directory.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "kept", a.Catalog.Snapshot().Jobs[0].ID)
	assert.False(t, a.Catalog.Snapshot().IsLoading)
}

func TestSubmitLoadAndReview(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	boss := register(t, a, "boss@acme.test", identity.RoleEmployer)
	posted, err := a.PostJob(ctx, job.CreateJobRequest{Title: "Go dev", Company: "Acme", Location: "Remote"})
	require.NoError(t, err)
	require.NoError(t, a.SignOut(ctx))

	seeker := register(t, a, "ann@example.com", identity.RoleEmployee)

	_, err = a.Submit(ctx, a.NewAttempt(), submission.Form{Phone: "1"}, posted)
	var vErr *submission.ValidationError
	require.ErrorAs(t, err, &vErr)

	at := a.NewAttempt()
	sub, err := a.Submit(ctx, at, submission.Form{ApplicantName: "Ann", ApplicantEmail: "ann@example.com", Phone: "1"}, posted)
	require.NoError(t, err)
	assert.Equal(t, seeker.UID, sub.ApplicantID)
	assert.Equal(t, boss.UID, sub.EmployerID)
	assert.True(t, at.IsSubmitted())

	require.NoError(t, a.LoadApplications(ctx))
	apps := a.Catalog.Snapshot().Applications
	require.Len(t, apps, 1)
	assert.Equal(t, sub.ID, apps[0].ID)

	err = a.ReviewApplication(ctx, sub.ID, DecisionApprove)
	assert.ErrorIs(t, err, ErrRoleNotPermitted)
	require.NoError(t, a.SignOut(ctx))

	_, err = a.SignIn(ctx, "boss@acme.test", "secret1", identity.RoleEmployer)
	require.NoError(t, err)
	require.NoError(t, a.LoadApplications(ctx))
	require.Len(t, a.Catalog.Snapshot().Applications, 1)

	require.NoError(t, a.ReviewApplication(ctx, sub.ID, DecisionReject))
	got := a.Catalog.Snapshot().Applications[0]
	assert.Equal(t, application.StatusRejected, got.Status)
	assert.Equal(t, application.FeedbackRejected, got.Feedback)

	assert.ErrorIs(t, a.ReviewApplication(ctx, sub.ID, "maybe"), ErrUnknownDecision)

	before := a.Catalog.Snapshot().Applications
	err = a.ReviewApplication(ctx, "missing", DecisionApprove)
	assert.ErrorIs(t, err, directory.ErrNotFound)
	assert.Equal(t, before, a.Catalog.Snapshot().Applications)
}

func TestSubmit_RequiresSession(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := a.Submit(context.Background(), a.NewAttempt(), submission.Form{}, job.Job{ID: "1"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
