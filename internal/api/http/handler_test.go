package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"batch-disburser/internal/domain"
	"batch-disburser/internal/infra/memory"
	"batch-disburser/internal/jobrunner"
	"batch-disburser/internal/usecase"
)

type fakeDispatcher struct {
	dispatched []*domain.BatchRequest
}

func (f *fakeDispatcher) DispatchBatch(ctx context.Context, req *domain.BatchRequest) error {
	f.dispatched = append(f.dispatched, req)
	return nil
}

type fakeRecords struct {
	results []*domain.BatchResult
}

func (f *fakeRecords) Save(ctx context.Context, result *domain.BatchResult) error {
	f.results = append(f.results, result)
	return nil
}

func (f *fakeRecords) ListByName(ctx context.Context, name string, page, pageSize int) ([]*domain.BatchResult, error) {
	return f.results, nil
}

// idleExecService keeps every run in the processing state.
type idleExecService struct{}

func (idleExecService) Submit(ctx context.Context, input domain.JobInput) error { return nil }
func (idleExecService) RecentRuns(ctx context.Context, limit int) ([]domain.RunRef, error) {
	return []domain.RunRef{{ID: "run-1"}}, nil
}
func (idleExecService) Artifacts(ctx context.Context, runID string) ([]domain.ArtifactRef, error) {
	return nil, nil
}
func (idleExecService) Fetch(ctx context.Context, downloadRef string) ([]byte, error) {
	return nil, nil
}
func (idleExecService) Delete(ctx context.Context, artifactID string) error { return nil }

type zeroClock struct{}

func (zeroClock) Now() time.Time { return time.Time{} }
func (zeroClock) Sleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newTestMux(t *testing.T) (*http.ServeMux, *fakeDispatcher, *fakeRecords) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	runner := jobrunner.New(idleExecService{}, zeroClock{}, time.Second, logger)
	asks := usecase.NewAskService(runner, memory.NewRateLimitStore(), 5, logger)

	dispatcher := &fakeDispatcher{}
	records := &fakeRecords{}
	batches := usecase.NewBatchService(dispatcher, records, logger)

	auth := usecase.NewAuthService(memory.NewSessionStore(), time.Minute, logger)

	mux := http.NewServeMux()
	NewHandler(asks, batches, auth, logger).RegisterRoutes(mux)
	return mux, dispatcher, records
}

func TestHandleAskValidation(t *testing.T) {
	mux, _, _ := newTestMux(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing question", `{"emails":["a@example.com"]}`},
		{"invalid email", `{"question":"q","emails":["not-an-email"]}`},
		{"empty emails", `{"question":"q","emails":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleAskAccepted(t *testing.T) {
	mux, _, _ := newTestMux(t)

	body := `{"question":"what changed?","emails":["a@example.com"]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["run_id"] != "run-1" {
		t.Errorf("run_id = %q, want run-1", resp["run_id"])
	}
}

func TestHandleResultProcessing(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/results/run-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "processing" {
		t.Errorf("status field = %q, want processing", resp["status"])
	}
}

func TestHandleSubmitBatch(t *testing.T) {
	mux, dispatcher, _ := newTestMux(t)

	body := `{"name":"payroll","operation_kind":"transfer","recipients":[{"address":"0xabc","amount":"1.5"}]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	if len(dispatcher.dispatched) != 1 {
		t.Fatalf("dispatched %d batches, want 1", len(dispatcher.dispatched))
	}
	if dispatcher.dispatched[0].Name != "payroll" {
		t.Errorf("dispatched batch name = %q", dispatcher.dispatched[0].Name)
	}
}

func TestHandleSubmitBatchValidation(t *testing.T) {
	mux, dispatcher, _ := newTestMux(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", `{"name":"p","operation_kind":"mint","recipients":[{"address":"a"}]}`},
		{"no recipients", `{"name":"p","operation_kind":"transfer","recipients":[]}`},
		{"bad amount", `{"name":"p","operation_kind":"transfer","recipients":[{"address":"a","amount":"one"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
	if len(dispatcher.dispatched) != 0 {
		t.Errorf("dispatched %d invalid batches, want 0", len(dispatcher.dispatched))
	}
}

func TestHandleBatchHistory(t *testing.T) {
	mux, _, records := newTestMux(t)
	records.results = []*domain.BatchResult{{BatchID: "b-1", Name: "payroll", Overall: domain.BatchSuccess}}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/batches/payroll/history", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp []*domain.BatchResult
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp) != 1 || resp[0].BatchID != "b-1" {
		t.Errorf("history = %+v", resp)
	}
}

func TestHandleAuthFlow(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/begin", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("begin status = %d, want 200", rec.Code)
	}
	var begin map[string]string
	json.Unmarshal(rec.Body.Bytes(), &begin)
	if begin["state"] == "" {
		t.Fatal("begin response has no state")
	}
	if _, leaked := begin["verifier"]; leaked {
		t.Fatal("begin response must not expose the verifier")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?state="+begin["state"], nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d, want 200", rec.Code)
	}
	var cb map[string]string
	json.Unmarshal(rec.Body.Bytes(), &cb)
	if cb["verifier"] == "" {
		t.Error("callback response has no verifier")
	}

	// The state is single-use.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?state="+begin["state"], nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("replayed callback status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing state status = %d, want 400", rec.Code)
	}
}
