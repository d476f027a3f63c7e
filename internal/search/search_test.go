package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/inkpilot/internal/gateway"
)

func testClient(baseURL string) *Client {
	c := NewClient("test-key", 5)
	c.baseURL = baseURL
	c.retry = &gateway.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	return c
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "test-key" {
			t.Error("missing API key header")
		}
		if r.URL.Query().Get("q") != "golang testing" {
			t.Errorf("unexpected query: %s", r.URL.Query().Get("q"))
		}
		if r.URL.Query().Get("count") != "2" {
			t.Errorf("unexpected count: %s", r.URL.Query().Get("count"))
		}
		json.NewEncoder(w).Encode(braveResponse{
			Web: braveWeb{
				Results: []braveResult{
					{Title: "Go Testing", URL: "https://go.dev/testing", Description: "How to test in Go"},
					{Title: "Go Docs", URL: "https://go.dev/doc", Description: "Go documentation"},
				},
			},
		})
	}))
	defer server.Close()

	items, err := testClient(server.URL).Search(context.Background(), "golang testing", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Title != "Go Testing" || items[0].Snippet != "How to test in Go" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestSearchRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(braveResponse{})
	}))
	defer server.Close()

	items, err := testClient(server.URL).Search(context.Background(), "anything", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 || calls.Load() != 2 {
		t.Errorf("expected one retry and no items, got calls=%d items=%v", calls.Load(), items)
	}
}

func TestSearchDoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Search(context.Background(), "q", 3); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", calls.Load())
	}
}

func TestSearchRequiresQueryAndKey(t *testing.T) {
	if _, err := NewClient("k", 5).Search(context.Background(), "  ", 1); err == nil {
		t.Error("expected error for empty query")
	}
	if _, err := NewClient("", 5).Search(context.Background(), "q", 1); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestAnswerReadsTopResult(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Hello World</h1><p>This is a test.</p></body></html>`))
	}))
	defer page.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(braveResponse{Web: braveWeb{Results: []braveResult{
			{Title: "Top", URL: page.URL, Description: "snippet"},
		}}})
	}))
	defer api.Close()

	ans, err := testClient(api.URL).Answer(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ans.Answer, "Hello World") || !strings.Contains(ans.Answer, "This is a test") {
		t.Errorf("unexpected answer %q", ans.Answer)
	}
	if len(ans.Citations) != 1 || ans.Citations[0].URL != page.URL {
		t.Errorf("unexpected citations %+v", ans.Citations)
	}
}

func TestAnswerTruncatesLongPages(t *testing.T) {
	long := strings.Repeat("x", 10000)
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>" + long + "</p></body></html>"))
	}))
	defer page.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(braveResponse{Web: braveWeb{Results: []braveResult{{Title: "T", URL: page.URL}}}})
	}))
	defer api.Close()

	ans, err := testClient(api.URL).Answer(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(ans.Answer) > answerExcerpt+100 {
		t.Errorf("expected truncation, got length %d", len(ans.Answer))
	}
}

func TestFormat(t *testing.T) {
	out := Format("go", []ResultItem{{Title: "Go", URL: "https://go.dev", Snippet: "lang"}})
	if !strings.HasPrefix(out, ResultsMarker) {
		t.Errorf("expected marker prefix, got %q", out)
	}
	if !strings.Contains(out, "https://go.dev") {
		t.Errorf("expected url in output, got %q", out)
	}
	if !strings.Contains(Format("x", nil), "No results found.") {
		t.Error("expected empty notice")
	}
}
