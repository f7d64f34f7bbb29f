package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cadabra-cache/cadabra/internal/cache"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()

	c, err := cache.New(context.Background(), cache.Options{})
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("closing cache: %v", err)
		}
	})
	opts.Cache = c
	return New(opts)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func register(t *testing.T, s *Server, sql string, result []byte) string {
	t.Helper()

	rec := do(t, s, http.MethodPost, "/register", registerRequest{SQL: sql, Result: result})
	if rec.Code != http.StatusOK {
		t.Fatalf("register %q: status %d, body %s", sql, rec.Code, rec.Body.String())
	}
	var resp registerResponse
	decodeInto(t, rec, &resp)
	if !resp.Success || resp.Fingerprint == "" {
		t.Fatalf("register %q: response %+v", sql, resp)
	}
	return resp.Fingerprint
}

func TestAnalyzeRoute(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/analyze", map[string]any{
		"sql":    "SELECT * FROM users WHERE id = ?",
		"params": []any{10},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp analyzeResponse
	decodeInto(t, rec, &resp)
	if resp.Fingerprint != "users:id=10:row-lookup" {
		t.Errorf("fingerprint = %q, want users:id=10:row-lookup", resp.Fingerprint)
	}
	if string(resp.Classification) != "row-lookup" {
		t.Errorf("classification = %q, want row-lookup", resp.Classification)
	}
	if len(resp.Tables) != 1 || resp.Tables[0].Table != "users" {
		t.Errorf("tables = %+v, want single users access", resp.Tables)
	}
	if resp.NormalizedSQL == "" {
		t.Error("normalized_sql is empty")
	}
}

func TestAnalyzeRouteErrors(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{"malformed json", `{"sql":`, http.StatusBadRequest, ""},
		{"missing sql", `{}`, http.StatusBadRequest, ""},
		{"unparseable sql", `{"sql":"SELECT * FROM"}`, http.StatusBadRequest, "parse_failed"},
		{"write statement", `{"sql":"DELETE FROM users"}`, http.StatusUnprocessableEntity, "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var resp errorResponse
			decodeInto(t, rec, &resp)
			if resp.Error == "" {
				t.Error("error message is empty")
			}
			if resp.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", resp.Kind, tt.wantKind)
			}
		})
	}
}

func TestRegisterAndGet(t *testing.T) {
	s := newTestServer(t, Options{})
	payload := []byte(`[{"id":10,"name":"Ada"}]`)

	fp := register(t, s, "SELECT * FROM users WHERE id = 10", payload)
	if fp != "users:id=10:row-lookup" {
		t.Fatalf("fingerprint = %q, want users:id=10:row-lookup", fp)
	}

	rec := do(t, s, http.MethodGet, "/cache/"+fp, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp getResponse
	decodeInto(t, rec, &resp)
	if !bytes.Equal(resp.Result, payload) {
		t.Errorf("result = %q, want %q", resp.Result, payload)
	}
}

func TestGetMissReturnsNotFound(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodGet, "/cache/absent", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp map[string]any
	decodeInto(t, rec, &resp)
	if v, ok := resp["result"]; !ok || v != nil {
		t.Errorf("body = %v, want result null", resp)
	}
}

func TestRegisterRejectsWrite(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/register", registerRequest{
		SQL:    "UPDATE users SET name = 'x' WHERE id = 1",
		Result: []byte("[]"),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterIgnoresTTL(t *testing.T) {
	s := newTestServer(t, Options{})
	ttl := 60

	rec := do(t, s, http.MethodPost, "/register", registerRequest{
		SQL:    "SELECT * FROM users WHERE id = 3",
		Result: []byte("[]"),
		TTL:    &ttl,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestInvalidateRoute(t *testing.T) {
	s := newTestServer(t, Options{})
	fp := register(t, s, "SELECT * FROM users WHERE id = 10", []byte(`[]`))

	rec := do(t, s, http.MethodPost, "/invalidate", map[string]any{
		"sql": "UPDATE users SET name = 'Z' WHERE id = 10",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp invalidateResponse
	decodeInto(t, rec, &resp)
	if !resp.Success || resp.Count != 1 {
		t.Fatalf("response = %+v, want success with count 1", resp)
	}
	if resp.Invalidated == nil || resp.Invalidated.Table != "users" || string(resp.Invalidated.Operation) != "UPDATE" {
		t.Errorf("invalidated = %+v, want users UPDATE", resp.Invalidated)
	}

	if rec := do(t, s, http.MethodGet, "/cache/"+fp, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after invalidate: status = %d, want 404", rec.Code)
	}
}

func TestInvalidateSparesDisjointRows(t *testing.T) {
	s := newTestServer(t, Options{})
	fp := register(t, s, "SELECT * FROM users WHERE id = 10", []byte(`[]`))

	rec := do(t, s, http.MethodPost, "/invalidate", map[string]any{
		"sql": "UPDATE users SET name = 'Z' WHERE id = 99",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp invalidateResponse
	decodeInto(t, rec, &resp)
	if resp.Count != 0 {
		t.Fatalf("count = %d, want 0", resp.Count)
	}

	if rec := do(t, s, http.MethodGet, "/cache/"+fp, nil); rec.Code != http.StatusOK {
		t.Errorf("entry gone after disjoint write: status = %d", rec.Code)
	}
}

func TestShouldInvalidateRoute(t *testing.T) {
	s := newTestServer(t, Options{})
	fp := register(t, s, "SELECT * FROM users WHERE id = 10", []byte(`[]`))

	rec := do(t, s, http.MethodPost, "/should-invalidate", map[string]any{
		"sql": "DELETE FROM users WHERE id = 10",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp shouldInvalidateResponse
	decodeInto(t, rec, &resp)
	if !resp.ShouldInvalidate {
		t.Error("should_invalidate = false, want true")
	}

	// Dry run: the entry must survive.
	if rec := do(t, s, http.MethodGet, "/cache/"+fp, nil); rec.Code != http.StatusOK {
		t.Errorf("entry gone after dry run: status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/should-invalidate", map[string]any{
		"sql": "DELETE FROM orders WHERE id = 1",
	})
	decodeInto(t, rec, &resp)
	if resp.ShouldInvalidate {
		t.Error("should_invalidate = true for an unrelated table")
	}
}

func TestClearTableRoute(t *testing.T) {
	s := newTestServer(t, Options{})
	register(t, s, "SELECT * FROM users WHERE id = 1", []byte(`[]`))
	register(t, s, "SELECT * FROM users WHERE id = 2", []byte(`[]`))
	orderFP := register(t, s, "SELECT * FROM orders WHERE id = 1", []byte(`[]`))

	rec := do(t, s, http.MethodDelete, "/table/users", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp clearTableResponse
	decodeInto(t, rec, &resp)
	if !resp.Success || resp.Table != "users" || resp.Count != 2 {
		t.Fatalf("response = %+v, want users cleared with count 2", resp)
	}

	rec = do(t, s, http.MethodDelete, "/table/users", nil)
	decodeInto(t, rec, &resp)
	if resp.Count != 0 {
		t.Errorf("second clear count = %d, want 0", resp.Count)
	}

	if rec := do(t, s, http.MethodGet, "/cache/"+orderFP, nil); rec.Code != http.StatusOK {
		t.Errorf("orders entry gone after clearing users: status = %d", rec.Code)
	}
}

func TestHealthRoute(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp healthResponse
	decodeInto(t, rec, &resp)
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.UptimeSeconds < 0 {
		t.Errorf("uptime_seconds = %d, want non-negative", resp.UptimeSeconds)
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp %q does not parse: %v", resp.Timestamp, err)
	}
}

func TestStatsRoute(t *testing.T) {
	s := newTestServer(t, Options{})
	fp := register(t, s, "SELECT * FROM users WHERE id = 1", []byte(`[]`))
	do(t, s, http.MethodGet, "/cache/"+fp, nil)
	do(t, s, http.MethodGet, "/cache/absent", nil)

	rec := do(t, s, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		TotalEntries  int            `json:"total_entries"`
		ByTable       map[string]int `json:"by_table"`
		Requests      int64          `json:"requests"`
		Hits          int64          `json:"hits"`
		Misses        int64          `json:"misses"`
		Invalidations int64          `json:"invalidations"`
	}
	decodeInto(t, rec, &resp)
	if resp.TotalEntries != 1 {
		t.Errorf("total_entries = %d, want 1", resp.TotalEntries)
	}
	if resp.ByTable["users"] != 1 {
		t.Errorf("by_table = %v, want users 1", resp.ByTable)
	}
	if resp.Hits != 1 || resp.Misses != 1 {
		t.Errorf("hits = %d misses = %d, want 1 and 1", resp.Hits, resp.Misses)
	}
	if resp.Requests < 3 {
		t.Errorf("requests = %d, want at least 3", resp.Requests)
	}
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, Options{})
	do(t, s, http.MethodGet, "/health", nil)

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, metric := range []string{
		"cadabra_requests_total",
		"cadabra_hits_total",
		"cadabra_misses_total",
		"cadabra_invalidations_total",
		"cadabra_request_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("exposition missing %s", metric)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodGet, "/analyze", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, Options{CORSEnabled: true})

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
