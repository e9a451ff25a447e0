package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/ademuri/last-fm-dashboard/internal/snapshot"
	"github.com/ademuri/last-fm-dashboard/internal/syncer"
)

var generated = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	cache      *snapshot.Cache
	ensureErr  error
	refresh    syncer.Result
	refreshErr error
	ensures    int
}

func (f *fakeSource) Ensure(ctx context.Context) (snapshot.Entry, error) {
	f.ensures++
	if f.ensureErr != nil {
		return snapshot.Entry{}, f.ensureErr
	}
	if entry, err := f.cache.Get(); err == nil {
		return entry, nil
	}
	entry := snapshot.Entry{Data: []byte(`{"meta":{"total_scrobbles":3}}`), GeneratedAt: generated, Events: 3}
	return entry, f.cache.Replace(entry)
}

func (f *fakeSource) Refresh(ctx context.Context) (syncer.Result, error) {
	return f.refresh, f.refreshErr
}

func newTestServer(t *testing.T, cfg Config) (*fakeSource, http.Handler) {
	t.Helper()
	cache := snapshot.NewMemory()
	src := &fakeSource{cache: cache}
	return src, New(src, cache, cfg).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDashboard(t *testing.T) {
	src, h := newTestServer(t, Config{})

	rec := do(t, h, http.MethodGet, "/api/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/dashboard = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if lm := rec.Header().Get("Last-Modified"); lm != generated.Format(http.TimeFormat) {
		t.Errorf("Last-Modified = %q, want %q", lm, generated.Format(http.TimeFormat))
	}
	if !strings.Contains(rec.Body.String(), `"total_scrobbles":3`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if src.ensures != 1 {
		t.Errorf("Ensure called %d times, want 1", src.ensures)
	}
}

func TestDashboardNotModified(t *testing.T) {
	_, h := newTestServer(t, Config{})

	header := http.Header{"If-Modified-Since": {generated.Format(http.TimeFormat)}}
	rec := do(t, h, http.MethodGet, "/api/dashboard", header)
	if rec.Code != http.StatusNotModified {
		t.Errorf("conditional GET = %d, want 304", rec.Code)
	}

	header = http.Header{"If-Modified-Since": {generated.Add(-time.Hour).Format(http.TimeFormat)}}
	rec = do(t, h, http.MethodGet, "/api/dashboard", header)
	if rec.Code != http.StatusOK {
		t.Errorf("stale conditional GET = %d, want 200", rec.Code)
	}
}

func TestDashboardUnavailable(t *testing.T) {
	src, h := newTestServer(t, Config{})
	src.ensureErr = errors.New("database locked")

	rec := do(t, h, http.MethodGet, "/api/dashboard", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /api/dashboard = %d, want 503", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, Config{})

	var resp struct {
		Status      string     `json:"status"`
		Cached      bool       `json:"cached"`
		GeneratedAt *time.Time `json:"generated_at"`
	}

	rec := do(t, h, http.MethodGet, "/api/health", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Status != "ok" || resp.Cached || resp.GeneratedAt != nil {
		t.Errorf("cold health = %d %+v", rec.Code, resp)
	}

	do(t, h, http.MethodGet, "/api/dashboard", nil)
	rec = do(t, h, http.MethodGet, "/api/health", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if !resp.Cached || resp.GeneratedAt == nil || !resp.GeneratedAt.Equal(generated) {
		t.Errorf("warm health = %+v", resp)
	}
}

func TestRefresh(t *testing.T) {
	src, h := newTestServer(t, Config{})
	src.refresh = syncer.Result{CycleID: "abc", Added: 4, Regenerated: true}

	rec := do(t, h, http.MethodPost, "/api/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/refresh = %d, want 200", rec.Code)
	}
	var res syncer.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding refresh: %v", err)
	}
	if res.CycleID != "abc" || res.Added != 4 || !res.Regenerated {
		t.Errorf("refresh = %+v", res)
	}

	if rec := do(t, h, http.MethodGet, "/api/refresh", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/refresh = %d, want 405", rec.Code)
	}
}

func TestRefreshErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{syncer.ErrBusy, http.StatusConflict},
		{errors.New("last.fm down"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		src, h := newTestServer(t, Config{})
		src.refreshErr = tt.err
		if rec := do(t, h, http.MethodPost, "/api/refresh", nil); rec.Code != tt.want {
			t.Errorf("refresh with %v = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	_, h := newTestServer(t, Config{RateLimit: 2})

	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodGet, "/api/health", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodGet, "/api/health", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	_, h := newTestServer(t, Config{CORSOrigins: []string{"https://example.com"}})

	header := http.Header{"Origin": {"https://example.com"}}
	rec := do(t, h, http.MethodGet, "/api/health", header)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMetrics(t *testing.T) {
	_, h := newTestServer(t, Config{})

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("GET /metrics = %d", rec.Code)
	}
}
