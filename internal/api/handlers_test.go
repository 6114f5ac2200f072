package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kdells/postflight/internal/model"
	"github.com/kdells/postflight/internal/store"
	"github.com/kdells/postflight/internal/tasks"
)

func seedTask(t *testing.T, s store.Store, requestID, name, status string) *model.Task {
	t.Helper()
	rec := &model.Task{
		ID:        model.NewID(),
		RequestID: requestID,
		Name:      name,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if status == model.StatusCompleted || status == model.StatusFailed {
		now := time.Now().UTC()
		dur := 5
		rec.StartedAt = &now
		rec.FinishedAt = &now
		rec.DurationMS = &dur
	}
	if err := s.CreateTask(context.Background(), rec); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return rec
}

func TestListTasksPaginated(t *testing.T) {
	srv, s := newTestServer(t)
	for i := 0; i < 5; i++ {
		seedTask(t, s, "req-1", "send_email", model.StatusCompleted)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/tasks?limit=2&offset=0")
	if err != nil {
		t.Fatalf("GET /v1/tasks: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body listTasksResponse
	decodeJSON(t, resp, &body)
	if body.Total != 5 {
		t.Errorf("total = %d, want 5", body.Total)
	}
	if len(body.Tasks) != 2 {
		t.Errorf("got %d tasks, want 2", len(body.Tasks))
	}
	if body.Limit != 2 || body.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want 2/0", body.Limit, body.Offset)
	}
}

func TestListTasksClampsBadParams(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/tasks?limit=-1&offset=-5")
	if err != nil {
		t.Fatalf("GET /v1/tasks: %v", err)
	}

	var body listTasksResponse
	decodeJSON(t, resp, &body)
	if body.Limit != defaultListLimit {
		t.Errorf("limit = %d, want default %d", body.Limit, defaultListLimit)
	}
	if body.Offset != 0 {
		t.Errorf("offset = %d, want 0", body.Offset)
	}
	if body.Tasks == nil {
		t.Error("tasks is null, want empty array")
	}
}

func TestGetTaskByID(t *testing.T) {
	srv, s := newTestServer(t)
	rec := seedTask(t, s, "req-1", "warm_cache", model.StatusFailed)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/tasks/" + rec.ID)
	if err != nil {
		t.Fatalf("GET /v1/tasks/{id}: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got model.Task
	decodeJSON(t, resp, &got)
	if got.ID != rec.ID || got.Name != "warm_cache" || got.Status != model.StatusFailed {
		t.Errorf("got %+v, want seeded record", got)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/tasks/" + model.NewID())
	if err != nil {
		t.Fatalf("GET /v1/tasks/{id}: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListRequestTasks(t *testing.T) {
	srv, s := newTestServer(t)
	seedTask(t, s, "req-1", "send_email", model.StatusCompleted)
	seedTask(t, s, "req-1", "log_analytics", model.StatusCompleted)
	seedTask(t, s, "req-2", "warm_cache", model.StatusCompleted)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/requests/req-1/tasks")
	if err != nil {
		t.Fatalf("GET /v1/requests/{id}/tasks: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body requestTasksResponse
	decodeJSON(t, resp, &body)
	if body.RequestID != "req-1" {
		t.Errorf("request_id = %q, want req-1", body.RequestID)
	}
	if len(body.Tasks) != 2 {
		t.Errorf("got %d tasks, want 2", len(body.Tasks))
	}
}

func TestListRequestTasksNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/requests/unknown/tasks")
	if err != nil {
		t.Fatalf("GET /v1/requests/{id}/tasks: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	srv, s := newTestServer(t)
	seedTask(t, s, "req-1", "send_email", model.StatusCompleted)
	seedTask(t, s, "req-1", "send_email", model.StatusFailed)
	seedTask(t, s, "req-2", "warm_cache", model.StatusCompleted)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET /v1/stats: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body statsResponse
	decodeJSON(t, resp, &body)
	if body.Total != 3 {
		t.Errorf("total = %d, want 3", body.Total)
	}
	if body.ByStatus[model.StatusCompleted] != 2 || body.ByStatus[model.StatusFailed] != 1 {
		t.Errorf("by_status = %v, want 2 completed / 1 failed", body.ByStatus)
	}
	if body.ByTask["send_email"] != 2 {
		t.Errorf("by_task[send_email] = %d, want 2", body.ByTask["send_email"])
	}
	if body.AvgDurationMS != 5 {
		t.Errorf("avg_duration_ms = %v, want 5", body.AvgDurationMS)
	}
}

func TestStreamEventsAllFinished(t *testing.T) {
	srv, s := newTestServer(t)
	seedTask(t, s, "req-1", "send_email", model.StatusCompleted)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/requests/req-1/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "event: done") {
		t.Errorf("body = %q, want immediate done event", body)
	}
}

func TestStreamEventsUnknownRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/requests/unknown/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStreamEventsLive(t *testing.T) {
	srv, s := newTestServer(t)
	seedTask(t, s, "req-1", "send_email", model.StatusPending)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	broker := srv.dispatcher.Broker()
	go func() {
		// Give the handler time to subscribe before the task set drains.
		time.Sleep(100 * time.Millisecond)
		broker.Publish("req-1", tasks.Event{
			TaskID: "t1",
			Name:   "send_email",
			Status: model.StatusCompleted,
		})
		broker.Close("req-1")
	}()

	resp, err := http.Get(ts.URL + "/v1/requests/req-1/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	out := string(body)
	if !strings.Contains(out, `"task_id":"t1"`) {
		t.Errorf("body = %q, want completion event for t1", out)
	}
	if !strings.Contains(out, "event: done") {
		t.Errorf("body = %q, want trailing done event", out)
	}
}
