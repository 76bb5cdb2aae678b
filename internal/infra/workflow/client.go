// Package workflow is the HTTP adapter for the asynchronous execution
// service: dispatch a run, list recent runs, list and download run
// artifacts, delete an artifact.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"batch-disburser/internal/domain"
)

const (
	requestTimeout = 30 * time.Second

	// maxArtifactSize caps artifact downloads; result documents are
	// small JSON files inside a ZIP.
	maxArtifactSize = 32 << 20
)

// Client talks to one workflow endpoint of the execution service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	ref        string
}

// NewClient creates an execution service client. baseURL addresses one
// workflow (e.g. ".../actions/workflows/answer.yml" minus the
// operation suffix); ref names the branch runs are dispatched on.
func NewClient(baseURL, token, ref string) *Client {
	if ref == "" {
		ref = "main"
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		token:      token,
		ref:        ref,
	}
}

var _ domain.ExecutionService = (*Client)(nil)

type dispatchRequest struct {
	Ref    string          `json:"ref"`
	Inputs domain.JobInput `json:"inputs"`
}

// Submit dispatches a new run. The service registers the run
// asynchronously and returns no run id.
func (c *Client) Submit(ctx context.Context, input domain.JobInput) error {
	body, err := json.Marshal(dispatchRequest{Ref: c.ref, Inputs: input})
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/dispatches", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return httpError("dispatch", resp)
	}
	return nil
}

type runsResponse struct {
	WorkflowRuns []struct {
		ID        json.Number `json:"id"`
		CreatedAt time.Time   `json:"created_at"`
	} `json:"workflow_runs"`
}

// RecentRuns lists the most recently registered runs, newest first.
func (c *Client) RecentRuns(ctx context.Context, limit int) ([]domain.RunRef, error) {
	if limit <= 0 {
		limit = 1
	}
	url := fmt.Sprintf("%s/runs?per_page=%d", c.baseURL, limit)

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, httpError("list runs", resp)
	}

	var parsed runsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode runs response: %w", err)
	}

	runs := make([]domain.RunRef, 0, len(parsed.WorkflowRuns))
	for _, r := range parsed.WorkflowRuns {
		runs = append(runs, domain.RunRef{ID: r.ID.String(), CreatedAt: r.CreatedAt})
	}
	return runs, nil
}

type artifactsResponse struct {
	Artifacts []struct {
		ID                 json.Number `json:"id"`
		ArchiveDownloadURL string      `json:"archive_download_url"`
	} `json:"artifacts"`
}

// Artifacts lists the artifacts of a run. An empty list means the run
// has not produced its result yet.
func (c *Client) Artifacts(ctx context.Context, runID string) ([]domain.ArtifactRef, error) {
	url := fmt.Sprintf("%s/runs/%s/artifacts", c.baseURL, runID)

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, httpError("list artifacts", resp)
	}

	var parsed artifactsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode artifacts response: %w", err)
	}

	refs := make([]domain.ArtifactRef, 0, len(parsed.Artifacts))
	for _, a := range parsed.Artifacts {
		refs = append(refs, domain.ArtifactRef{ID: a.ID.String(), DownloadRef: a.ArchiveDownloadURL})
	}
	return refs, nil
}

// Fetch downloads the artifact archive behind downloadRef.
func (c *Client) Fetch(ctx context.Context, downloadRef string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, downloadRef, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, httpError("fetch artifact", resp)
	}

	archive, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact archive: %w", err)
	}
	return archive, nil
}

// Delete removes an artifact on the remote service.
func (c *Client) Delete(ctx context.Context, artifactID string) error {
	url := fmt.Sprintf("%s/artifacts/%s", c.baseURL, artifactID)

	resp, err := c.do(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return httpError("delete artifact", resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	return resp, nil
}

func httpError(op string, resp *http.Response) error {
	// Read a small portion of the body for error context.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s returned %s: %s", op, resp.Status, string(snippet))
}
