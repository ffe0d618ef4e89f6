package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/connexus-ai/ragcore/internal/engine"
)

type mockDB struct{ err error }

func (m *mockDB) Ping(ctx context.Context) error { return m.err }

type mockSearcher struct {
	result *engine.Result
	err    error
}

func (m *mockSearcher) Search(_ context.Context, _ string, _ engine.Options) (*engine.Result, error) {
	return m.result, m.err
}

func TestRouter_Health(t *testing.T) {
	r := New(&Dependencies{DB: &mockDB{}, Version: "test"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_Search(t *testing.T) {
	r := New(&Dependencies{DB: &mockDB{}, Searcher: &mockSearcher{result: &engine.Result{Content: "hello"}}})

	body, _ := json.Marshal(map[string]any{"query": "test"})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_CORSDisabledWithoutFrontendURL(t *testing.T) {
	r := New(&Dependencies{DB: &mockDB{}, Searcher: &mockSearcher{result: &engine.Result{Content: "hello"}}})

	body, _ := json.Marshal(map[string]any{"query": "test"})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty when FrontendURL is unset", got)
	}
}

func TestRouter_CORSAppliedWhenFrontendURLConfigured(t *testing.T) {
	r := New(&Dependencies{DB: &mockDB{}, Searcher: &mockSearcher{result: &engine.Result{Content: "hello"}}, FrontendURL: "https://example.com"})

	body, _ := json.Marshal(map[string]any{"query": "test"})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Allow-Origin = %q, want %q", got, "https://example.com")
	}
}

func TestRouter_NotFound(t *testing.T) {
	r := New(&Dependencies{DB: &mockDB{}})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
