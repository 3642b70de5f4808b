package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"curator/internal/api"
	"curator/internal/queue"
	"curator/internal/testsupport"
)

type noopProcessor struct{}

func (noopProcessor) Process(context.Context, *queue.Entry) error { return nil }

func newTestHandler(t *testing.T, token string) (http.Handler, queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d, err := New(cfg, store, noopProcessor{}, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if d.api == nil {
		t.Fatal("expected api server for non-empty bind")
	}
	return d.api.routes(token), store
}

func serve(h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAPIServerHandleQueue(t *testing.T) {
	h, store := newTestHandler(t, "")
	ctx := context.Background()
	for _, item := range []int64{1, 2} {
		if _, _, err := store.Enqueue(ctx, item, int(item)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	w := serve(h, http.MethodGet, "/api/queue?status=pending&limit=1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].ItemID != 2 {
		t.Fatalf("unexpected entries: %+v", resp.Entries)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestAPIServerRejectsBadQueries(t *testing.T) {
	h, _ := newTestHandler(t, "")

	cases := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodGet, "/api/queue?status=stuck", "", http.StatusBadRequest},
		{http.MethodGet, "/api/queue?limit=-1", "", http.StatusBadRequest},
		{http.MethodGet, "/api/queue/abc", "", http.StatusBadRequest},
		{http.MethodGet, "/api/queue/99", "", http.StatusNotFound},
		{http.MethodPost, "/api/queue", `{"itemId":0}`, http.StatusBadRequest},
		{http.MethodPost, "/api/queue", `{"item":1}`, http.StatusBadRequest},
		{http.MethodPost, "/api/queue/5/retry", "", http.StatusConflict},
		{http.MethodDelete, "/api/queue", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		w := serve(h, tc.method, tc.target, tc.body, nil)
		if w.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d (%s)", tc.method, tc.target, tc.want, w.Code, w.Body.String())
		}
	}
}

func TestAPIServerEnqueueAndRetry(t *testing.T) {
	h, store := newTestHandler(t, "")

	w := serve(h, http.MethodPost, "/api/queue", `{"itemId":42,"priority":5}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = serve(h, http.MethodPost, "/api/queue", `{"itemId":42}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", w.Code)
	}
	var dup api.EnqueueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &dup); err != nil || dup.Queued {
		t.Fatalf("expected queued=false for duplicate, got %+v %v", dup, err)
	}

	w = serve(h, http.MethodPost, "/api/queue/7/retry", `{"enqueue":true,"priority":1}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected retry with enqueue to succeed, got %d: %s", w.Code, w.Body.String())
	}
	entry, err := store.GetByItemID(context.Background(), 7)
	if err != nil || entry == nil || entry.Status != queue.StatusPending {
		t.Fatalf("expected pending entry for item 7, got %+v %v", entry, err)
	}

	w = serve(h, http.MethodGet, "/api/queue/42", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var described api.QueueEntry
	if err := json.Unmarshal(w.Body.Bytes(), &described); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if described.Priority != 5 || described.Status != "pending" {
		t.Fatalf("unexpected entry: %+v", described)
	}
}

func TestAPIServerStatus(t *testing.T) {
	h, _ := newTestHandler(t, "")
	w := serve(h, http.MethodGet, "/api/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Running || status.Backend != "sqlite" || status.PID == 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestAuthMiddleware(t *testing.T) {
	h, _ := newTestHandler(t, "token")

	if w := serve(h, http.MethodGet, "/api/status", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer nope"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Basic token"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong scheme, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer token"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func TestWorkerIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Worker.ID = "host-a"
	cfg.Worker.Count = 1
	if got := workerIDs(cfg); len(got) != 1 || got[0] != "host-a" {
		t.Fatalf("unexpected ids: %v", got)
	}
	cfg.Worker.Count = 3
	got := workerIDs(cfg)
	if strings.Join(got, ",") != "host-a-1,host-a-2,host-a-3" {
		t.Fatalf("unexpected ids: %v", got)
	}
	cfg.Worker.ID = ""
	got = workerIDs(cfg)
	if len(got) != 3 || got[0] == got[1] || !strings.HasPrefix(got[0], "worker-") {
		t.Fatalf("expected distinct generated ids, got %v", got)
	}
}
