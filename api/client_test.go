// ABOUTME: Tests for the HTTP collaborator client using httptest servers.
// ABOUTME: Covers auth headers, phase-start round-trips, and error status handling.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStartExtractionCarriesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/extractions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"id": "run-1"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, func() string { return "tok-9" })
	run, err := client.StartExtraction(context.Background())
	if err != nil {
		t.Fatalf("start extraction: %v", err)
	}
	if run.ID != "run-1" {
		t.Errorf("run id = %q", run.ID)
	}
	if gotAuth != "Bearer tok-9" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestStartAnalysisSendsExtractionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["extraction_id"] != "run-1" {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "an-1"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	run, err := client.StartAnalysis(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	if run.ID != "an-1" {
		t.Errorf("run id = %q", run.ID)
	}
}

func TestErrorStatusSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no upstream connection", http.StatusConflict)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.StartExtraction(context.Background())
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
	if !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "no upstream connection") {
		t.Errorf("error = %v", err)
	}
}

func TestGetRunStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runs/run-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(RunStatus{ID: "run-1", Kind: "extraction", Status: "done"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	status, err := client.GetRunStatus(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("run status: %v", err)
	}
	if status.Status != "done" || status.Kind != "extraction" {
		t.Errorf("status = %+v", status)
	}
}

func TestCancelRunHitsCancelEndpoint(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/runs/run-1/cancel" {
			hit = true
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	if err := client.CancelRun(context.Background(), "run-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !hit {
		t.Error("cancel endpoint not hit")
	}
}

func TestListRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]RunStatus{
			{ID: "run-1", Kind: "extraction", Status: "done"},
			{ID: "an-1", Kind: "analysis", Status: "running"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	runs, err := client.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[1].Status != "running" {
		t.Errorf("runs = %+v", runs)
	}
}
