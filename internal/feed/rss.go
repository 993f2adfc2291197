package feed

import (
	"strings"
	"time"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/textutil"
	"github.com/hitoshi/feedkit/internal/xmlscan"
)

// rssParser はRSS 0.9x/2.0およびRDF（RSS 1.0）を解析する状態機械。
// 要素パスのスタックと、item内にいる間の記事ビルダーを状態として持つ。
type rssParser struct {
	s       *xmlscan.Scanner
	feed    *model.FeedBuilder
	path    []string
	now     time.Time
	article *model.ArticleBuilder

	itemDepth       int
	guidIsPermalink bool
}

func newRSSParser(s *xmlscan.Scanner, feedURL string, now time.Time) *rssParser {
	return &rssParser{
		s:    s,
		feed: model.NewFeedBuilder(feedURL, model.FeedTypeRSS),
		now:  now,
	}
}

// run はルート要素の開始タグを受け取った状態から文書の終わりまでを処理する。
func (p *rssParser) run(root xmlscan.Event) (*model.ParsedFeed, error) {
	p.path = append(p.path, root.Name)
	if lang := root.AttrNS(xmlscan.NamespaceXML, "lang"); lang != "" {
		p.feed.Language = strings.TrimSpace(lang)
	}

	for {
		ev, err := p.s.Next()
		if err != nil {
			return nil, err
		}
		switch ev.Kind {
		case xmlscan.StartElement:
			p.startElement(ev)
			p.path = append(p.path, ev.Name)
		case xmlscan.EndElement:
			if len(p.path) > 0 {
				p.path = p.path[:len(p.path)-1]
			}
			p.endElement(ev)
		case xmlscan.EndOfDocument:
			return p.feed.Build(), nil
		}
	}
}

func (p *rssParser) parent() string {
	if len(p.path) == 0 {
		return ""
	}
	return p.path[len(p.path)-1]
}

func (p *rssParser) startElement(ev xmlscan.Event) {
	ns := rssNamespace(ev.Space)

	if p.article == nil {
		if ns == nsCore && ev.Name == "item" {
			p.startItem(ev)
			return
		}
		if p.parent() == "channel" && isChannelTextElement(ns, ev.Name) {
			p.s.BeginStoringCharacters()
		}
		return
	}

	switch {
	case ns == nsCore && ev.Name == "enclosure":
		p.article.AddEnclosure(model.ParsedEnclosure{
			URL:      p.resolve(ev.Attr("url")),
			MimeType: ev.Attr("type"),
			Length:   textutil.ParseInt64(ev.Attr("length")),
		})
		return
	case ns == nsMedia && ev.Name == "content":
		if u := ev.Attr("url"); u != "" {
			p.article.AddEnclosure(model.ParsedEnclosure{
				URL:      p.resolve(u),
				MimeType: ev.Attr("type"),
				Length:   textutil.ParseInt64(ev.Attr("fileSize")),
			})
		}
		return
	}

	if ev.Depth != p.itemDepth+1 {
		return
	}
	if ns == nsCore && ev.Name == "guid" {
		p.guidIsPermalink = !strings.EqualFold(strings.TrimSpace(ev.Attr("isPermaLink")), "false")
	}
	if isItemTextElement(ns, ev.Name) {
		p.s.BeginStoringCharacters()
	}
}

func (p *rssParser) startItem(ev xmlscan.Event) {
	p.article = model.NewArticleBuilder(p.feed.URL)
	p.itemDepth = ev.Depth
	p.guidIsPermalink = false
	if lang := ev.AttrNS(xmlscan.NamespaceXML, "lang"); lang != "" {
		p.article.Language = strings.TrimSpace(lang)
	}
	// RDFのitemは rdf:about にリンクを持つ
	if about := ev.Attr("about"); about != "" {
		p.article.Link = p.resolve(about)
	}
}

func (p *rssParser) endElement(ev xmlscan.Event) {
	ns := rssNamespace(ev.Space)

	if p.article == nil {
		if p.parent() == "channel" {
			p.channelField(ns, ev.Name, p.s.CurrentString())
		}
		return
	}

	if ns == nsCore && ev.Name == "item" && ev.Depth == p.itemDepth {
		p.finishItem()
		return
	}
	if ev.Depth == p.itemDepth+1 {
		p.itemField(ns, ev.Name, p.s.CurrentString())
	}
}

func (p *rssParser) channelField(ns namespace, name, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	switch {
	case ns == nsCore && name == "title":
		if p.feed.Title == "" {
			p.feed.Title = cleanTitle(text)
		}
	case ns == nsCore && name == "link":
		if p.feed.HomepageURL == "" {
			p.feed.HomepageURL = p.resolve(text)
		}
	case (ns == nsCore || ns == nsDC) && name == "language":
		if p.feed.Language == "" {
			p.feed.Language = text
		}
	}
}

func (p *rssParser) itemField(ns namespace, name, text string) {
	a := p.article
	trimmed := strings.TrimSpace(text)

	switch ns {
	case nsCore:
		switch name {
		case "title":
			a.Title = cleanTitle(trimmed)
		case "link":
			if trimmed != "" {
				a.Link = p.resolve(trimmed)
			}
		case "description":
			a.Summary = trimmed
		case "guid":
			a.GUID = trimmed
			if p.guidIsPermalink && looksLikeURL(trimmed) {
				a.Permalink = p.resolve(trimmed)
			}
		case "pubDate":
			if d := textutil.ParseDate(trimmed); d != nil {
				a.DatePublished = d
			}
		case "author":
			a.AddAuthor(parseRSSAuthor(trimmed))
		case "language":
			a.Language = trimmed
		}
	case nsContent:
		if name == "encoded" {
			a.Body = trimmed
		}
	case nsDC:
		switch name {
		case "creator":
			a.AddAuthor(model.ParsedAuthor{Name: trimmed})
		case "date":
			if a.DatePublished == nil {
				a.DatePublished = textutil.ParseDate(trimmed)
			}
		case "language":
			if a.Language == "" {
				a.Language = trimmed
			}
		}
	case nsDCTerms:
		if name == "modified" {
			a.DateModified = textutil.ParseDate(trimmed)
		}
	case nsAtom:
		if name == "updated" {
			a.DateModified = textutil.ParseDate(trimmed)
		}
	case nsITunes:
		if name == "author" {
			a.AddAuthor(model.ParsedAuthor{Name: trimmed})
		}
	case nsSource:
		if name == "markdown" {
			a.Markdown = trimmed
		}
	}
}

func (p *rssParser) finishItem() {
	a := p.article
	p.article = nil
	if a.Language == "" {
		a.Language = p.feed.Language
	}
	p.feed.AddArticle(a.Build(p.now))
}

// resolve は xml:base、チャンネルのリンク、フィードURLの順に相対URLを解決する。
// どれでも解決できなければ元の文字列を返す。
func (p *rssParser) resolve(ref string) string {
	return resolveLink(p.s, ref, p.feed.HomepageURL, p.feed.URL)
}

func isChannelTextElement(ns namespace, name string) bool {
	switch ns {
	case nsCore:
		return name == "title" || name == "link" || name == "language"
	case nsDC:
		return name == "language"
	}
	return false
}

func isItemTextElement(ns namespace, name string) bool {
	switch ns {
	case nsCore:
		switch name {
		case "title", "link", "description", "guid", "pubDate", "author", "language":
			return true
		}
	case nsContent:
		return name == "encoded"
	case nsDC:
		return name == "creator" || name == "date" || name == "language"
	case nsDCTerms:
		return name == "modified"
	case nsAtom:
		return name == "updated"
	case nsITunes:
		return name == "author"
	case nsSource:
		return name == "markdown"
	}
	return false
}

// parseRSSAuthor はRSSの author 要素（"email (Name)" 形式が多い）を解釈する。
func parseRSSAuthor(s string) model.ParsedAuthor {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.ParsedAuthor{}
	}
	if open := strings.IndexByte(s, '('); open > 0 && strings.HasSuffix(s, ")") {
		email := strings.TrimSpace(s[:open])
		name := strings.TrimSpace(s[open+1 : len(s)-1])
		if strings.Contains(email, "@") {
			return model.ParsedAuthor{Name: name, EmailAddress: email}
		}
	}
	if strings.Contains(s, "@") && !strings.ContainsAny(s, " \t") {
		return model.ParsedAuthor{EmailAddress: strings.TrimPrefix(s, "mailto:")}
	}
	return model.ParsedAuthor{Name: s}
}
