// ABOUTME: HTTP collaborator client for starting pipeline phases and fetching
// ABOUTME: reconciliation state (run status, run history) after missed events.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenFunc supplies the current bearer token for requests.
type TokenFunc func() string

// Client talks to the dashboard backend's request/response API. Streaming
// lives on the websocket channels; this client only starts work and polls
// state.
type Client struct {
	baseURL    string
	token      TokenFunc
	httpClient *http.Client
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string, token TokenFunc) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ConnectRequest describes the upstream system to connect to before
// extraction can run.
type ConnectRequest struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// ConnectResponse reports the upstream connection status.
type ConnectResponse struct {
	Status string `json:"status"`
}

// StartedRun is the asynchronous "started" response for a pipeline phase.
// The run identifier arrives immediately; completion arrives later on the
// pipeline channel.
type StartedRun struct {
	ID string `json:"id"`
}

// RunStatus is the polled state of one run, used to reconcile after a
// missed terminal event.
type RunStatus struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// ConnectUpstream establishes the backend's connection to the system under
// test.
func (c *Client) ConnectUpstream(ctx context.Context, req ConnectRequest) (*ConnectResponse, error) {
	var resp ConnectResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/connect", req, &resp); err != nil {
		return nil, fmt.Errorf("connect upstream: %w", err)
	}
	return &resp, nil
}

// StartExtraction kicks off a data extraction run.
func (c *Client) StartExtraction(ctx context.Context) (*StartedRun, error) {
	var run StartedRun
	if err := c.doJSON(ctx, http.MethodPost, "/api/extractions", nil, &run); err != nil {
		return nil, fmt.Errorf("start extraction: %w", err)
	}
	return &run, nil
}

// StartAnalysis kicks off an analysis run over a finished or in-flight
// extraction.
func (c *Client) StartAnalysis(ctx context.Context, extractionID string) (*StartedRun, error) {
	body := map[string]string{"extraction_id": extractionID}
	var run StartedRun
	if err := c.doJSON(ctx, http.MethodPost, "/api/analyses", body, &run); err != nil {
		return nil, fmt.Errorf("start analysis: %w", err)
	}
	return &run, nil
}

// StartGeneration kicks off document generation from an analysis.
func (c *Client) StartGeneration(ctx context.Context, analysisID string) (*StartedRun, error) {
	body := map[string]string{"analysis_id": analysisID}
	var run StartedRun
	if err := c.doJSON(ctx, http.MethodPost, "/api/generations", body, &run); err != nil {
		return nil, fmt.Errorf("start generation: %w", err)
	}
	return &run, nil
}

// CancelRun requests cancellation of a run. Fire-and-forget at call sites:
// the terminal progress event, not this response, updates client state.
func (c *Client) CancelRun(ctx context.Context, runID string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/runs/"+runID+"/cancel", nil, nil); err != nil {
		return fmt.Errorf("cancel run %s: %w", runID, err)
	}
	return nil
}

// GetRunStatus polls the current state of a run.
func (c *Client) GetRunStatus(ctx context.Context, runID string) (*RunStatus, error) {
	var status RunStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/runs/"+runID, nil, &status); err != nil {
		return nil, fmt.Errorf("run status %s: %w", runID, err)
	}
	return &status, nil
}

// ListRuns fetches run history.
func (c *Client) ListRuns(ctx context.Context) ([]RunStatus, error) {
	var runs []RunStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/runs", nil, &runs); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// doJSON performs one JSON request/response round-trip.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
