package model

import (
	"strings"
	"time"

	"github.com/hitoshi/feedkit/internal/textutil"
)

// ParsedArticle はフィードの item/entry 1件をパースした結果を表す。
// 構築後は変更しない。文字列フィールドは未設定なら空文字。
type ParsedArticle struct {
	FeedURL       string
	ArticleID     string // guid/id、なければ内容から導出したハッシュ
	GUID          string
	Title         string
	Body          string // 未サニタイズのHTML
	Summary       string // 本文とは別に description/summary がある場合のみ
	Markdown      string
	Link          string
	Permalink     string
	Language      string
	Authors       []ParsedAuthor
	Enclosures    []ParsedEnclosure
	DatePublished *time.Time
	DateModified  *time.Time
	DateParsed    time.Time // パースした時刻（文書由来ではない）
}

// ParsedAuthor は記事の著者を表す。値が等しければ同一著者とみなす。
type ParsedAuthor struct {
	Name         string
	URL          string
	EmailAddress string
}

// IsZero は全フィールドが空かどうかを返す。
func (a ParsedAuthor) IsZero() bool {
	return a == ParsedAuthor{}
}

// ParsedEnclosure は記事の添付ファイル（ポッドキャスト音声など）を表す。
type ParsedEnclosure struct {
	URL      string
	MimeType string
	Title    string
	Length   int64 // バイト数。不明なら0
}

// enclosureKey は添付ファイルの同一性判定キー。URLとMIMEタイプが同じなら同一とみなす。
type enclosureKey struct {
	url      string
	mimeType string
}

// ArticleBuilder はパース中の記事を組み立てる可変ビルダー。
// 終了タグの時点で Build を呼び、不変の ParsedArticle に変換する。
type ArticleBuilder struct {
	FeedURL       string
	GUID          string
	Title         string
	Body          string
	Summary       string
	Markdown      string
	Link          string
	Permalink     string
	Language      string
	DatePublished *time.Time
	DateModified  *time.Time

	authors      []ParsedAuthor
	authorSeen   map[ParsedAuthor]struct{}
	enclosures   []ParsedEnclosure
	enclosureIdx map[enclosureKey]int
}

// NewArticleBuilder はArticleBuilderの新しいインスタンスを生成する。
func NewArticleBuilder(feedURL string) *ArticleBuilder {
	return &ArticleBuilder{FeedURL: feedURL}
}

// AddAuthor は著者を追加する。空の著者と重複は無視する。
func (b *ArticleBuilder) AddAuthor(a ParsedAuthor) {
	a = ParsedAuthor{
		Name:         strings.TrimSpace(a.Name),
		URL:          strings.TrimSpace(a.URL),
		EmailAddress: strings.TrimSpace(a.EmailAddress),
	}
	if a.IsZero() {
		return
	}
	if b.authorSeen == nil {
		b.authorSeen = make(map[ParsedAuthor]struct{})
	}
	if _, ok := b.authorSeen[a]; ok {
		return
	}
	b.authorSeen[a] = struct{}{}
	b.authors = append(b.authors, a)
}

// AddEnclosure は添付ファイルを追加する。URLが空のものは無視する。
// 同じURLとMIMEタイプの添付は1件にまとめ、後から来た情報で欠けている長さとタイトルを補う。
func (b *ArticleBuilder) AddEnclosure(e ParsedEnclosure) {
	e.URL = strings.TrimSpace(e.URL)
	e.MimeType = strings.TrimSpace(e.MimeType)
	if e.URL == "" {
		return
	}
	if b.enclosureIdx == nil {
		b.enclosureIdx = make(map[enclosureKey]int)
	}
	key := enclosureKey{url: e.URL, mimeType: e.MimeType}
	if i, ok := b.enclosureIdx[key]; ok {
		existing := &b.enclosures[i]
		if existing.Length == 0 {
			existing.Length = e.Length
		}
		if existing.Title == "" {
			existing.Title = e.Title
		}
		return
	}
	b.enclosureIdx[key] = len(b.enclosures)
	b.enclosures = append(b.enclosures, e)
}

// ArticleID は記事IDを導出する。
// guidがあればそれを使い、なければ (フィードURL, タイトル, リンク, 公開日時) のハッシュを使う。
// タイトル・リンク・公開日時がすべて空の場合は本文（なければ要約）からハッシュを作る。
// 何も手がかりがなければ空文字を返す。
func (b *ArticleBuilder) ArticleID() string {
	if guid := strings.TrimSpace(b.GUID); guid != "" {
		return guid
	}

	var published string
	if b.DatePublished != nil {
		published = b.DatePublished.UTC().Format(time.RFC3339)
	}
	if strings.TrimSpace(b.Title) != "" || strings.TrimSpace(b.Link) != "" || published != "" {
		return textutil.ContentHash(b.FeedURL, b.Title, b.Link, published)
	}

	content := b.Body
	if strings.TrimSpace(content) == "" {
		content = b.Summary
	}
	if strings.TrimSpace(content) == "" {
		return ""
	}
	return textutil.ContentHash(b.FeedURL, content)
}

// Build は不変の ParsedArticle を生成する。
// 記事IDを導出できない場合はnilを返す。
func (b *ArticleBuilder) Build(parsedAt time.Time) *ParsedArticle {
	id := b.ArticleID()
	if id == "" {
		return nil
	}

	body, summary := b.Body, b.Summary
	if body == "" {
		body, summary = summary, ""
	}
	if summary == body {
		summary = ""
	}

	permalink := b.Permalink
	if permalink == "" {
		permalink = b.Link
	}

	return &ParsedArticle{
		FeedURL:       b.FeedURL,
		ArticleID:     id,
		GUID:          strings.TrimSpace(b.GUID),
		Title:         b.Title,
		Body:          body,
		Summary:       summary,
		Markdown:      b.Markdown,
		Link:          b.Link,
		Permalink:     permalink,
		Language:      b.Language,
		Authors:       append([]ParsedAuthor(nil), b.authors...),
		Enclosures:    append([]ParsedEnclosure(nil), b.enclosures...),
		DatePublished: copyTime(b.DatePublished),
		DateModified:  copyTime(b.DateModified),
		DateParsed:    parsedAt,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
