package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/security"
)

// mockGuard はループバックへの接続を許可する URLGuard のテスト用モック。
type mockGuard struct {
	validateErr error
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockGuard) ValidateURL(string) error {
	return m.validateErr
}

// mockStore は FeedStore のテスト用モック。
type mockStore struct {
	mu         sync.Mutex
	saved      []*model.ParsedFeed
	saveErr    error
	states     []model.Subscription
	stateCalls int
}

func (m *mockStore) SaveFeed(_ context.Context, f *model.ParsedFeed) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return 0, 0, m.saveErr
	}
	m.saved = append(m.saved, f)
	return len(f.Articles), 0, nil
}

func (m *mockStore) UpdateSubscriptionState(_ context.Context, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCalls++
	m.states = append(m.states, *sub)
	return nil
}

// countingRecorder は metrics.Recorder のテスト用実装。
type countingRecorder struct {
	mu          sync.Mutex
	fetches     []int
	parses      int
	parseErrors int
	parsed      int
	stored      int
}

func (r *countingRecorder) RecordParse(_ string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parses++
	if err != nil {
		r.parseErrors++
	}
}

func (r *countingRecorder) RecordArticlesParsed(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsed += n
}

func (r *countingRecorder) RecordFetch(status int, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches = append(r.fetches, status)
}

func (r *countingRecorder) RecordArticlesStored(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored += n
}

const testRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com/</link>
    <item>
      <title>Article 1</title>
      <link>https://example.com/article1</link>
      <guid>guid-1</guid>
      <description>Summary 1</description>
    </item>
  </channel>
</rss>`

func newTestFetcher(t *testing.T, guard *mockGuard, store *mockStore, rec *countingRecorder, maxSize int64) (*Fetcher, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	client := NewClient(guard, 5*time.Second, maxSize)
	return NewFetcher(client, store, rec, newTestLogger(&buf), time.Hour), &buf
}

func TestFetcher_Fetch_Success200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Last-Modified", "Wed, 01 Jan 2025 00:00:00 GMT")
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	store := &mockStore{}
	rec := &countingRecorder{}
	f, _ := newTestFetcher(t, &mockGuard{}, store, rec, 1<<20)

	sub := &model.Subscription{FeedURL: server.URL, FetchStatus: model.FetchStatusActive, ConsecutiveErrors: 2}
	if err := f.Fetch(context.Background(), sub); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if sub.ETag != `"abc123"` || sub.LastModified != "Wed, 01 Jan 2025 00:00:00 GMT" {
		t.Errorf("検証子が保存されていない: etag=%q last-modified=%q", sub.ETag, sub.LastModified)
	}
	if sub.Title != "Test Feed" || sub.HomePageURL != "https://example.com/" {
		t.Errorf("タイトル/ホームページが更新されていない: %+v", sub)
	}
	if sub.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", sub.ConsecutiveErrors)
	}
	if len(store.saved) != 1 || len(store.saved[0].Articles) != 1 {
		t.Fatalf("SaveFeed に渡されたフィードが不正: %+v", store.saved)
	}
	if got := store.saved[0].Articles[0].ArticleID; got != "guid-1" {
		t.Errorf("ArticleID = %q, want guid-1", got)
	}
	if store.stateCalls != 1 {
		t.Errorf("UpdateSubscriptionState 呼び出し回数 = %d, want 1", store.stateCalls)
	}
	if rec.parses != 1 || rec.parsed != 1 || rec.stored != 1 || len(rec.fetches) != 1 || rec.fetches[0] != 200 {
		t.Errorf("メトリクスが記録されていない: %+v", rec)
	}
}

func TestFetcher_Fetch_ConditionalGET(t *testing.T) {
	var gotETag, gotSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		gotSince = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	store := &mockStore{}
	f, _ := newTestFetcher(t, &mockGuard{}, store, &countingRecorder{}, 1<<20)
	start := time.Now()

	sub := &model.Subscription{
		FeedURL:      server.URL,
		ETag:         `"abc123"`,
		LastModified: "Wed, 01 Jan 2025 00:00:00 GMT",
		FetchStatus:  model.FetchStatusActive,
	}
	if err := f.Fetch(context.Background(), sub); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if gotETag != `"abc123"` || gotSince != "Wed, 01 Jan 2025 00:00:00 GMT" {
		t.Errorf("条件付きヘッダーが送られていない: If-None-Match=%q If-Modified-Since=%q", gotETag, gotSince)
	}
	if len(store.saved) != 0 {
		t.Error("304 では SaveFeed を呼んではならない")
	}
	if !sub.NextFetchAt.After(start.Add(59 * time.Minute)) {
		t.Errorf("NextFetchAt は約1時間後であるべき: %v", sub.NextFetchAt)
	}
}

func TestFetcher_Fetch_StatusHandling(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus model.FetchStatus
		wantErrors int
	}{
		{"404は停止", http.StatusNotFound, model.FetchStatusStopped, 0},
		{"410は停止", http.StatusGone, model.FetchStatusStopped, 0},
		{"429はバックオフ", http.StatusTooManyRequests, model.FetchStatusActive, 1},
		{"500はバックオフ", http.StatusInternalServerError, model.FetchStatusActive, 1},
		{"未知のステータスはバックオフ", http.StatusTeapot, model.FetchStatusActive, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			store := &mockStore{}
			f, _ := newTestFetcher(t, &mockGuard{}, store, &countingRecorder{}, 1<<20)
			sub := &model.Subscription{FeedURL: server.URL, FetchStatus: model.FetchStatusActive}

			if err := f.Fetch(context.Background(), sub); err != nil {
				t.Fatalf("Fetch() がエラーを返した: %v", err)
			}
			if sub.FetchStatus != tt.wantStatus {
				t.Errorf("FetchStatus = %q, want %q", sub.FetchStatus, tt.wantStatus)
			}
			if sub.ConsecutiveErrors != tt.wantErrors {
				t.Errorf("ConsecutiveErrors = %d, want %d", sub.ConsecutiveErrors, tt.wantErrors)
			}
			if sub.ErrorMessage == "" {
				t.Error("ErrorMessage は設定されるべき")
			}
			if store.stateCalls != 1 {
				t.Errorf("UpdateSubscriptionState 呼び出し回数 = %d, want 1", store.stateCalls)
			}
		})
	}
}

func TestFetcher_Fetch_ParseFailureIncrements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>not a feed</body></html>")
	}))
	defer server.Close()

	store := &mockStore{}
	rec := &countingRecorder{}
	f, buf := newTestFetcher(t, &mockGuard{}, store, rec, 1<<20)
	sub := &model.Subscription{FeedURL: server.URL, FetchStatus: model.FetchStatusActive}

	if err := f.Fetch(context.Background(), sub); err != nil {
		t.Fatalf("パース失敗はエラーとしない: %v", err)
	}
	if sub.ConsecutiveErrors != 1 || sub.FetchStatus != model.FetchStatusActive {
		t.Errorf("パース失敗の記録が不正: %+v", sub)
	}
	if !strings.Contains(sub.ErrorMessage, "パース失敗") {
		t.Errorf("ErrorMessage = %q", sub.ErrorMessage)
	}
	if rec.parseErrors != 1 {
		t.Errorf("parseErrors = %d, want 1", rec.parseErrors)
	}
	if !strings.Contains(buf.String(), "フィードのパースに失敗しました") {
		t.Errorf("パース失敗のログがない: %s", buf.String())
	}
}

func TestFetcher_Fetch_ParseFailureStopsAtThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<rss><channel><title>truncated")
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, &mockGuard{}, &mockStore{}, &countingRecorder{}, 1<<20)
	sub := &model.Subscription{FeedURL: server.URL, FetchStatus: model.FetchStatusActive, ConsecutiveErrors: 9}

	if err := f.Fetch(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	if sub.FetchStatus != model.FetchStatusStopped {
		t.Errorf("10回連続のパース失敗で停止されるべき: %+v", sub)
	}
}

func TestFetcher_Fetch_GuardRejectionStops(t *testing.T) {
	store := &mockStore{}
	guard := &mockGuard{validateErr: fmt.Errorf("%w: host localhost", security.ErrBlockedURL)}
	f, _ := newTestFetcher(t, guard, store, &countingRecorder{}, 1<<20)
	sub := &model.Subscription{FeedURL: "http://localhost/feed", FetchStatus: model.FetchStatusActive}

	err := f.Fetch(context.Background(), sub)
	if !errors.Is(err, security.ErrBlockedURL) {
		t.Fatalf("err = %v, want ErrBlockedURL", err)
	}
	if sub.FetchStatus != model.FetchStatusStopped {
		t.Errorf("拒否されたURLは停止されるべき: %+v", sub)
	}
	if store.stateCalls != 1 {
		t.Errorf("UpdateSubscriptionState 呼び出し回数 = %d, want 1", store.stateCalls)
	}
}

func TestFetcher_Fetch_BodyTooLargeStops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, &mockGuard{}, &mockStore{}, &countingRecorder{}, 16)
	sub := &model.Subscription{FeedURL: server.URL, FetchStatus: model.FetchStatusActive}

	if err := f.Fetch(context.Background(), sub); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("err = %v, want ErrBodyTooLarge", err)
	}
	if sub.FetchStatus != model.FetchStatusStopped {
		t.Errorf("上限超過は停止されるべき: %+v", sub)
	}
}

func TestFetcher_Fetch_SaveErrorBacksOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	store := &mockStore{saveErr: errors.New("db down")}
	f, _ := newTestFetcher(t, &mockGuard{}, store, &countingRecorder{}, 1<<20)
	sub := &model.Subscription{FeedURL: server.URL, FetchStatus: model.FetchStatusActive}

	if err := f.Fetch(context.Background(), sub); err == nil {
		t.Fatal("保存エラーは返されるべき")
	}
	if sub.ConsecutiveErrors != 1 || sub.FetchStatus != model.FetchStatusActive {
		t.Errorf("保存エラーはバックオフされるべき: %+v", sub)
	}
}

func TestClient_Get_SendsUserAgentAndAccept(t *testing.T) {
	var ua, accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html></html>")
	}))
	defer server.Close()

	c := NewClient(&mockGuard{}, time.Second, 1024)
	resp, err := c.Get(context.Background(), server.URL, Conditional{}, "text/html")
	if err != nil {
		t.Fatal(err)
	}
	if ua != userAgent || accept != "text/html" {
		t.Errorf("User-Agent=%q Accept=%q", ua, accept)
	}
	if resp.StatusCode != 200 || resp.ContentType != "text/html; charset=utf-8" || string(resp.Body) != "<html></html>" {
		t.Errorf("Response = %+v", resp)
	}
}
