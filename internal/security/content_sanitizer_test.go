package security

import (
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/feedkit/internal/model"
)

func TestSanitize_AllowedMarkup(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{"段落", "<p>テスト段落</p>", []string{"<p>テスト段落</p>"}},
		{"見出し", "<h2>見出し</h2>", []string{"<h2>見出し</h2>"}},
		{"リスト", "<ul><li>項目1</li></ul>", []string{"<ul>", "<li>項目1</li>"}},
		{"コード", "<pre><code>func main() {}</code></pre>", []string{"<pre><code>func main() {}</code></pre>"}},
		{"表", "<table><tr><td colspan=\"2\">x</td></tr></table>", []string{"<table>", `colspan="2"`}},
		{"リンク", `<a href="https://example.com">リンク</a>`, []string{`href="https://example.com"`, "noopener", `target="_blank"`}},
		{"画像", `<img src="https://example.com/image.png" alt="画像" width="100">`, []string{"<img", "https://example.com/image.png", `alt="画像"`, `width="100"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

func TestSanitize_RemovesDangerousMarkup(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
	}{
		{"script", `<p>テスト</p><script>alert('xss')</script>`, []string{"<script", "alert"}},
		{"iframe", `<iframe src="https://evil.com"></iframe>`, []string{"<iframe", "evil.com"}},
		{"style", `<style>body{display:none}</style>`, []string{"<style", "display:none"}},
		{"onclick", `<p onclick="alert('xss')">テスト</p>`, []string{"onclick"}},
		{"onerror", `<img src="https://example.com/a.png" onerror="alert(1)">`, []string{"onerror"}},
		{"javascript URL", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}},
		{"data URL", `<img src="data:image/png;base64,AAAA">`, []string{"data:"}},
		{"相対URL", `<a href="/relative">x</a>`, []string{"/relative"}},
		{"form", `<form action="https://evil.com"><input type="text"></form>`, []string{"<form", "<input"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()
	input := `<p>a <a href="https://example.com">b</a><script>x</script></p>`
	once := sanitizer.Sanitize(input)
	if twice := sanitizer.Sanitize(once); twice != once {
		t.Errorf("not idempotent:\n once  = %q\n twice = %q", once, twice)
	}
	if sanitizer.Sanitize("") != "" {
		t.Error("empty input should produce empty output")
	}
}

func TestSanitizeFeed_DoesNotModifyInput(t *testing.T) {
	published := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := &model.ParsedFeed{
		URL: "https://example.com/feed",
		Articles: []*model.ParsedArticle{{
			ArticleID:     "1",
			Body:          `<p>ok</p><script>bad()</script>`,
			Summary:       `<b onclick="x()">s</b>`,
			DatePublished: &published,
		}},
	}

	clean := SanitizeFeed(NewContentSanitizer(), feed)
	if strings.Contains(clean.Articles[0].Body, "script") {
		t.Errorf("Body = %q", clean.Articles[0].Body)
	}
	if strings.Contains(clean.Articles[0].Summary, "onclick") {
		t.Errorf("Summary = %q", clean.Articles[0].Summary)
	}
	if !strings.Contains(feed.Articles[0].Body, "script") {
		t.Error("元のフィードが変更された")
	}
	if clean.Articles[0].ArticleID != "1" || clean.Articles[0].DatePublished != &published {
		t.Errorf("その他のフィールドは保持されるべき: %+v", clean.Articles[0])
	}
	if SanitizeFeed(NewContentSanitizer(), nil) != nil {
		t.Error("nil feed should return nil")
	}
}
