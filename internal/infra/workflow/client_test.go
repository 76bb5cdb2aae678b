package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"batch-disburser/internal/domain"
)

func TestSubmitDispatchesRun(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody dispatchRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", "main")
	err := c.Submit(context.Background(), domain.JobInput{"question": "ping"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if gotPath != "POST /dispatches" {
		t.Errorf("request = %q, want POST /dispatches", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody.Ref != "main" || gotBody.Inputs["question"] != "ping" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSubmitSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", "")
	if err := c.Submit(context.Background(), domain.JobInput{}); err == nil {
		t.Fatal("expected an error for a 401 response")
	}
}

func TestRecentRunsParsesIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runs" || r.URL.Query().Get("per_page") != "2" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"workflow_runs":[{"id":17296105112},{"id":17296009841}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", "")
	runs, err := c.RecentRuns(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentRuns returned error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	// IDs larger than 2^53 must survive the decode intact.
	if runs[0].ID != "17296105112" {
		t.Errorf("first run id = %q, want 17296105112", runs[0].ID)
	}
}

func TestArtifactsListsDownloadRefs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runs/42/artifacts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"artifacts":[{"id":901,"archive_download_url":"https://example.com/zip/901"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", "")
	refs, err := c.Artifacts(context.Background(), "42")
	if err != nil {
		t.Fatalf("Artifacts returned error: %v", err)
	}
	if len(refs) != 1 || refs[0].ID != "901" || refs[0].DownloadRef != "https://example.com/zip/901" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestArtifactsEmptyWhileProcessing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"artifacts":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", "")
	refs, err := c.Artifacts(context.Background(), "42")
	if err != nil {
		t.Fatalf("Artifacts returned error: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("got %d refs for a still-running job, want 0", len(refs))
	}
}

func TestDeleteArtifact(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", "")
	if err := c.Delete(context.Background(), "901"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if gotPath != "DELETE /artifacts/901" {
		t.Errorf("request = %q, want DELETE /artifacts/901", gotPath)
	}
}
