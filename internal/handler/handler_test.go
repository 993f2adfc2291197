package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/feedkit/internal/middleware"
	"github.com/hitoshi/feedkit/internal/worker/fetch"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Blog</title>
  <link>https://example.com/</link>
  <language>ja</language>
  <item>
    <title>First</title>
    <link>https://example.com/1</link>
    <guid>urn:1</guid>
    <description>&lt;p&gt;one&lt;/p&gt;&lt;script&gt;alert(1)&lt;/script&gt;</description>
    <pubDate>Mon, 03 Jun 2024 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Second</title>
    <link>https://example.com/2</link>
    <guid>urn:2</guid>
  </item>
</channel>
</rss>`

const sampleOPML = `<?xml version="1.0"?>
<opml version="2.0">
  <head><title>My Feeds</title></head>
  <body>
    <outline text="Tech">
      <outline text="Go Blog" type="rss" xmlUrl="https://go.dev/blog/feed.atom" htmlUrl="https://go.dev/blog"/>
    </outline>
    <outline text="News" xmlUrl="https://news.example/rss"/>
  </body>
</opml>`

const sampleHTML = `<!DOCTYPE html>
<html><head>
  <title>Example</title>
  <link rel="icon" type="image/png" href="/icon.png">
  <link rel="alternate" type="application/atom+xml" title="Atom" href="/atom.xml">
  <meta property="og:image" content="/og.png">
</head><body>
  <a href="/about">About</a>
  <a href="/feed" title="RSS">Feed</a>
</body></html>`

// stubFetcher は DocumentFetcher のテスト用実装。
type stubFetcher struct {
	resp   *fetch.Response
	err    error
	gotURL string
}

func (s *stubFetcher) Get(_ context.Context, rawURL string, _ fetch.Conditional, _ string) (*fetch.Response, error) {
	s.gotURL = rawURL
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

// decodeJSON はレスポンスボディを v にデコードする。
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
}

// assertAPIError はステータスとエラーコードを検証する。
func assertAPIError(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, wantStatus, w.Body.String())
	}
	var body middleware.ErrorResponseBody
	decodeJSON(t, w, &body)
	if body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}

func body(s string) *strings.Reader {
	return strings.NewReader(s)
}
