package feed

import (
	"bytes"
	"strings"

	jsonfeed "github.com/mmcdole/gofeed/json"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/textutil"
)

// jsonFeedVersionPrefix は JSON Feed の version の接頭辞。
const jsonFeedVersionPrefix = "https://jsonfeed.org/version/"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// looksLikeJSON は先頭の空白とBOMを除いた最初の文字が '{' かどうかを返す。
func looksLikeJSON(data []byte) bool {
	data = bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	return len(data) > 0 && data[0] == '{'
}

// sniffJSON は JSON 文書が JSON Feed かどうかを判定する。
// version は文書中の位置を問わないため、まず文字列として探す。
func sniffJSON(data []byte) (model.FeedType, error) {
	if bytes.Contains(data, []byte(strings.TrimSuffix(jsonFeedVersionPrefix, "/"))) {
		return model.FeedTypeJSON, nil
	}
	return "", &model.DataFormatError{Expected: documentKind, Root: "json"}
}

// ParseJSON は JSON Feed 文書として解析する。
// JSON Feed でなければ *model.DataFormatError、JSONとして壊れていれば *model.MalformedInputError を返す。
func ParseJSON(data []byte, feedURL string) (*model.ParsedFeed, error) {
	if !looksLikeJSON(data) {
		return nil, &model.DataFormatError{Expected: string(model.FeedTypeJSON), Root: "xml"}
	}
	return parseJSON(data, feedURL)
}

func parseJSON(data []byte, feedURL string) (*model.ParsedFeed, error) {
	if _, err := sniffJSON(data); err != nil {
		return nil, err
	}

	p := &jsonfeed.Parser{}
	doc, err := p.Parse(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	if err != nil {
		return nil, &model.MalformedInputError{Err: err}
	}
	if !strings.HasPrefix(doc.Version, jsonFeedVersionPrefix) {
		return nil, &model.DataFormatError{Expected: documentKind, Root: "json"}
	}

	parsedAt := now()
	b := model.NewFeedBuilder(feedURL, model.FeedTypeJSON)
	b.Title = cleanTitle(doc.Title)
	b.HomepageURL = textutil.ResolveURL(feedURL, doc.HomePageURL)
	b.Language = strings.TrimSpace(doc.Language)

	feedAuthors := jsonAuthors(doc.Author, doc.Authors)
	for _, item := range doc.Items {
		if item == nil {
			continue
		}
		b.AddArticle(jsonArticle(item, feedURL, b.HomepageURL, b.Language, feedAuthors).Build(parsedAt))
	}
	return b.Build(), nil
}

// jsonArticle は JSON Feed の item を記事ビルダーに写す。
// item に著者がなければフィードの著者を使う。
func jsonArticle(item *jsonfeed.Item, feedURL, homepage, language string, feedAuthors []model.ParsedAuthor) *model.ArticleBuilder {
	base := homepage
	if base == "" {
		base = feedURL
	}

	a := model.NewArticleBuilder(feedURL)
	a.GUID = item.ID
	a.Title = cleanTitle(item.Title)
	a.Body = item.ContentHTML
	if strings.TrimSpace(a.Body) == "" {
		a.Body = item.ContentText
	}
	a.Summary = item.Summary
	a.Permalink = textutil.ResolveURL(base, item.URL)
	a.Link = a.Permalink
	if external := textutil.ResolveURL(base, item.ExternalURL); external != "" {
		a.Link = external
	}
	a.Language = strings.TrimSpace(item.Language)
	if a.Language == "" {
		a.Language = language
	}
	a.DatePublished = textutil.ParseDate(item.DatePublished)
	a.DateModified = textutil.ParseDate(item.DateModified)

	authors := jsonAuthors(item.Author, item.Authors)
	if len(authors) == 0 {
		authors = feedAuthors
	}
	for _, au := range authors {
		a.AddAuthor(au)
	}

	if item.Attachments != nil {
		for _, att := range *item.Attachments {
			a.AddEnclosure(model.ParsedEnclosure{
				URL:      textutil.ResolveURL(base, att.URL),
				MimeType: strings.TrimSpace(att.MimeType),
				Title:    strings.TrimSpace(att.Title),
				Length:   att.SizeInBytes,
			})
		}
	}
	return a
}

// jsonAuthors は1.0の author と1.1の authors をまとめる。
func jsonAuthors(single *jsonfeed.Author, list []*jsonfeed.Author) []model.ParsedAuthor {
	var out []model.ParsedAuthor
	for _, au := range append([]*jsonfeed.Author{single}, list...) {
		if au == nil {
			continue
		}
		pa := model.ParsedAuthor{Name: strings.TrimSpace(au.Name), URL: strings.TrimSpace(au.URL)}
		if !pa.IsZero() {
			out = append(out, pa)
		}
	}
	return out
}
