// Package security は取り込んだ外部コンテンツと外部URLを安全に扱うための機能を提供する。
package security

import (
	"net/url"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer は記事本文のHTMLを許可リストで無害化する。
type ContentSanitizer interface {
	Sanitize(rawHTML string) string
}

// HTMLSanitizer はbluemondayのポリシーによる ContentSanitizer の実装。
// ポリシーは生成後に変更しないため複数goroutineから利用できる。
type HTMLSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はフィード記事向けのポリシーを構築する。
//   - 段落・見出し・リスト・引用・コード・強調・表・画像・リンクを許可
//   - script, iframe, style, on* 属性は許可リストにないため除去
//   - リンクと画像は http/https の絶対URLのみ
//   - リンクには target="_blank" と rel="noopener noreferrer" を付与
func NewContentSanitizer() *HTMLSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr", "ul", "ol", "li", "dl", "dt", "dd",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"blockquote", "pre", "code", "kbd", "samp",
		"strong", "em", "b", "i", "u", "s", "sub", "sup", "small", "mark",
		"figure", "figcaption",
		"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
	)

	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowAttrs("width", "height").Matching(bluemonday.Number).OnElements("img")
	p.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("td", "th")

	allowWeb := func(*url.URL) bool { return true }
	p.AllowURLSchemeWithCustomPolicy("https", allowWeb)
	p.AllowURLSchemeWithCustomPolicy("http", allowWeb)

	return &HTMLSanitizer{policy: p}
}

// Sanitize はHTMLを無害化する。同じ入力には常に同じ出力を返す。
func (s *HTMLSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}

// SanitizeArticle は本文と要約を無害化した記事のコピーを返す。元の記事は変更しない。
func SanitizeArticle(s ContentSanitizer, a *model.ParsedArticle) *model.ParsedArticle {
	if a == nil {
		return nil
	}
	clean := *a
	clean.Body = s.Sanitize(a.Body)
	clean.Summary = s.Sanitize(a.Summary)
	return &clean
}

// SanitizeFeed はすべての記事を無害化したフィードのコピーを返す。
func SanitizeFeed(s ContentSanitizer, f *model.ParsedFeed) *model.ParsedFeed {
	if f == nil {
		return nil
	}
	clean := *f
	clean.Articles = make([]*model.ParsedArticle, len(f.Articles))
	for i, a := range f.Articles {
		clean.Articles[i] = SanitizeArticle(s, a)
	}
	return &clean
}
