package integration_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/geocoder89/expertjobs/internal/notifications"
	"github.com/geocoder89/expertjobs/internal/queue/worker"
	"github.com/geocoder89/expertjobs/internal/repo/postgres"
)

type listResponse struct {
	Items []map[string]any `json:"items"`
	Count int              `json:"count"`
}

type idResponse struct {
	ID string `json:"id"`
}

func TestDocumentsIntegration_ApplyAndNotify(t *testing.T) {
	router, pool := setupRouter(t)

	boss, _ := signUp(t, router, "boss@acme.test")
	seeker, _ := signUp(t, router, "ann@example.com")

	w, _ := doRequest(router, http.MethodPut, "/v1/collections/users/documents/"+boss.Identity.UID,
		`{"fields":{"fullName":"Boss","email":"boss@acme.test","userType":"employer","isVerified":false}}`, boss.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("employer profile got status %d, body=%s", w.Code, w.Body.String())
	}
	w, _ = doRequest(router, http.MethodPut, "/v1/collections/users/documents/"+seeker.Identity.UID,
		`{"fields":{"fullName":"Ann","email":"ann@example.com","userType":"employee","isVerified":false}}`, seeker.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("employee profile got status %d, body=%s", w.Code, w.Body.String())
	}

	// employees cannot post jobs
	w, _ = doRequest(router, http.MethodPost, "/v1/collections/jobs/documents",
		`{"fields":{"title":"Go dev","company":"Acme","location":"Remote"}}`, seeker.AccessToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("employee post got status %d", w.Code)
	}

	w, _ = doRequest(router, http.MethodPost, "/v1/collections/jobs/documents",
		`{"fields":{"title":"Go dev","company":"Acme","location":"Remote"}}`, boss.AccessToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("post job got status %d, body=%s", w.Code, w.Body.String())
	}
	var job idResponse
	mustReadJSON(t, w, &job)

	// jobs are public
	w, _ = doRequest(router, http.MethodGet, "/v1/collections/jobs/documents?orderBy=createdAt,desc", "", "")
	var jobs listResponse
	mustReadJSON(t, w, &jobs)
	if jobs.Count != 1 || jobs.Items[0]["employerId"] != boss.Identity.UID {
		t.Fatalf("unexpected job list: %+v", jobs)
	}

	body := `{"fields":{"jobId":"` + job.ID + `","applicantType":"employee","applicantName":"Ann","applicantEmail":"ann@example.com","phone":"1","idempotencyKey":"attempt-1"}}`
	w, _ = doRequest(router, http.MethodPost, "/v1/collections/applications/documents", body, seeker.AccessToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("apply got status %d, body=%s", w.Code, w.Body.String())
	}
	var app idResponse
	mustReadJSON(t, w, &app)

	// replay returns the same document
	w, _ = doRequest(router, http.MethodPost, "/v1/collections/applications/documents", body, seeker.AccessToken)
	var replay idResponse
	mustReadJSON(t, w, &replay)
	if replay.ID != app.ID {
		t.Fatalf("replay created a second application: %s vs %s", replay.ID, app.ID)
	}

	q := url.Values{}
	q.Add("where", `employerId,==,"`+boss.Identity.UID+`"`)
	w, _ = doRequest(router, http.MethodGet, "/v1/collections/applications/documents?"+q.Encode(), "", boss.AccessToken)
	var apps listResponse
	mustReadJSON(t, w, &apps)
	if apps.Count != 1 || apps.Items[0]["status"] != "pending" {
		t.Fatalf("unexpected applications: %+v", apps)
	}

	// the applicant cannot review their own application
	w, _ = doRequest(router, http.MethodPut, "/v1/collections/applications/documents/"+app.ID,
		`{"fields":{"status":"approved"}}`, seeker.AccessToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("self review got status %d", w.Code)
	}

	w, _ = doRequest(router, http.MethodPut, "/v1/collections/applications/documents/"+app.ID,
		`{"fields":{"status":"approved","feedback":"Congratulations! Your application has been approved."}}`, boss.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("review got status %d, body=%s", w.Code, w.Body.String())
	}

	// one application_received task, drained by the worker
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w2 := worker.New(worker.Config{WorkerID: "it"}, worker.Deps{
		Repo:     postgres.NewTasksRepo(pool, nil),
		Notifier: notifications.NewLogNotifier(discardLogger()),
		Ledger:   postgres.NewNotificationDeliveriesRepo(pool, nil),
		Users:    postgres.NewUsersRepo(pool, nil),
		Logger:   discardLogger(),
	})

	processed, err := w2.ProcessOne(ctx)
	if err != nil || !processed {
		t.Fatalf("process: processed=%v err=%v", processed, err)
	}

	var status string
	if err := pool.QueryRow(ctx, `SELECT status FROM notification_deliveries WHERE kind = 'application_received' AND ref_id = $1`, app.ID).Scan(&status); err != nil {
		t.Fatalf("delivery row: %v", err)
	}
	if status != "sent" {
		t.Fatalf("delivery status = %q", status)
	}

	if processed, _ := w2.ProcessOne(ctx); processed {
		t.Fatalf("expected the queue to be empty")
	}
}
