package tradesys

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	c := NewClient(baseURL)

	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.baseURL != baseURL {
		t.Errorf("expected baseURL %q, got %q", baseURL, c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestClientListRuns(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runs" {
			t.Errorf("path = %s, want /api/runs", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"runs": []Run{{ID: 1, Label: "baseline", Capital: 100000, FinalNAV: 112000}},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	runs, err := c.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].Label != "baseline" || runs[0].FinalNAV != 112000 {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestClientGetRun(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runs/7" {
			t.Errorf("path = %s, want /api/runs/7", r.URL.Path)
		}
		json.NewEncoder(w).Encode(RunDetail{
			Run:     Run{ID: 7, Label: "x"},
			Summary: Summary{TotalTrades: 42, WinRate: 0.5},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	detail, err := c.GetRun(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if detail.Run.ID != 7 || detail.Summary.TotalTrades != 42 {
		t.Errorf("detail = %+v", detail)
	}
}

func TestClientGetPositionsDateParam(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("date"); got != "2023-06-02" {
			t.Errorf("date param = %q, want 2023-06-02", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"positions": []Position{{Symbol: "sh.600000", Shares: 5000}},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	positions, err := c.GetPositions(context.Background(), 1, "2023-06-02")
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 1 || positions[0].Shares != 5000 {
		t.Errorf("positions = %+v", positions)
	}
}

func TestClientNotFoundNotRetried(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "run not found", http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	if _, err := c.GetRun(context.Background(), 99); err == nil {
		t.Fatal("expected error for 404")
	}
	if calls != 1 {
		t.Errorf("server called %d times, want 1 (4xx must not retry)", calls)
	}
}

func TestClientServerErrorRetried(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			http.Error(w, "temporary", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"runs": []Run{}})
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	c.baseDelay = 0
	if _, err := c.ListRuns(context.Background()); err != nil {
		t.Fatalf("ListRuns after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("server called %d times, want 2", calls)
	}
}
