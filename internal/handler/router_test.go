package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedkit/internal/metrics"
	"github.com/hitoshi/feedkit/internal/middleware"
	"github.com/hitoshi/feedkit/internal/repository"
	"github.com/hitoshi/feedkit/internal/security"
	"github.com/hitoshi/feedkit/internal/store"
)

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func newTestRouter(t *testing.T, rl *middleware.RateLimiter, pinger Pinger) (http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := store.NewFeedStore(repository.NewMemoryRowStore(), security.NewContentSanitizer())
	router := NewRouter(&RouterDeps{
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RateLimiter:        rl,
		Documents:          &stubFetcher{err: errors.New("offline")},
		MaxBodySize:        1024 * 1024,
		Sanitizer:          security.NewContentSanitizer(),
		Recorder:           metrics.NewCollector(reg),
		Discoverer:         &mockDiscoverer{},
		Subscriber:         &mockSubscriber{},
		Feeds:              s,
		Subscriptions:      s,
		HealthChecker:      pinger,
		MetricsHandler:     metrics.Handler(reg),
	})
	return router, reg
}

func TestRouter_Routes(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	tests := []struct {
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodPost, "/api/parse/feed", sampleRSS, http.StatusOK},
		{http.MethodPost, "/api/parse/opml", sampleOPML, http.StatusOK},
		{http.MethodPost, "/api/parse/html", sampleHTML, http.StatusOK},
		{http.MethodPost, "/api/parse/feed?url=https://example.com/feed", "", http.StatusBadGateway},
		{http.MethodPost, "/api/opml/import", sampleOPML, http.StatusOK},
		{http.MethodGet, "/api/subscriptions", "", http.StatusOK},
		{http.MethodDelete, "/api/subscriptions?url=https://go.dev/blog/feed.atom", "", http.StatusNoContent},
		{http.MethodPost, "/api/subscriptions/resume?url=https://nothing.example/", "", http.StatusNotFound},
		{http.MethodGet, "/api/feeds/articles?url=https://nothing.example/", "", http.StatusNotFound},
		{http.MethodGet, "/api/parse/feed", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body)))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRouter_MiddlewareHeaders(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/parse/feed", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestRouter_FetchRateLimitOnlyForURLRequests(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    100,
		FetchRate:       0.001,
		FetchBurst:      1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()
	router, _ := newTestRouter(t, rl, nil)

	send := func(target, body string) int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
		return w.Code
	}

	if code := send("/api/parse/feed?url=https://example.com/feed", ""); code == http.StatusTooManyRequests {
		t.Fatal("最初の外部取得は制限されない")
	}
	if code := send("/api/parse/feed?url=https://example.com/feed", ""); code != http.StatusTooManyRequests {
		t.Errorf("2回目の外部取得: status = %d, want 429", code)
	}
	if code := send("/api/discover", `{"url":"https://example.com"}`); code != http.StatusTooManyRequests {
		t.Errorf("discover: status = %d, want 429", code)
	}
	for range 3 {
		if code := send("/api/parse/feed", sampleRSS); code != http.StatusOK {
			t.Errorf("ボディ解析は外部取得の制限を受けない: status = %d", code)
		}
	}
}

func TestRouter_MetricsExposeParseCounts(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/parse/feed", strings.NewReader(sampleRSS)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out, _ := io.ReadAll(w.Body)
	for _, want := range []string{
		`feedkit_parse_total{kind="feed",result="success"} 1`,
		`feedkit_articles_parsed_total 2`,
	} {
		if !strings.Contains(string(out), want) {
			t.Errorf("metrics に %q がない", want)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		pinger     Pinger
		wantStatus int
		wantState  string
	}{
		{"no database", nil, http.StatusOK, "ok"},
		{"database up", stubPinger{}, http.StatusOK, "ok"},
		{"database down", stubPinger{err: errors.New("refused")}, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.pinger).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var got healthResponse
			decodeJSON(t, w, &got)
			if got.Status != tt.wantState {
				t.Errorf("status = %q, want %q", got.Status, tt.wantState)
			}
		})
	}
}
