package feed

import (
	"strings"
	"time"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/textutil"
	"github.com/hitoshi/feedkit/internal/xmlscan"
)

// atomParser はAtom 0.3/1.0を解析する状態機械。
type atomParser struct {
	s       *xmlscan.Scanner
	feed    *model.FeedBuilder
	now     time.Time
	article *model.ArticleBuilder

	entryDepth  int
	author      *model.ParsedAuthor
	authorDepth int
	feedAuthors []model.ParsedAuthor
	hasAuthor   bool
}

func newAtomParser(s *xmlscan.Scanner, feedURL string, now time.Time) *atomParser {
	return &atomParser{
		s:    s,
		feed: model.NewFeedBuilder(feedURL, model.FeedTypeAtom),
		now:  now,
	}
}

func (p *atomParser) run(root xmlscan.Event) (*model.ParsedFeed, error) {
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
		case xmlscan.EndElement:
			p.endElement(ev)
		case xmlscan.EndOfDocument:
			return p.feed.Build(), nil
		}
	}
}

func (p *atomParser) startElement(ev xmlscan.Event) {
	ns := atomNamespace(ev.Space)

	// author は feed 直下と entry 直下のどちらにも現れる
	if p.author != nil {
		if ns == nsCore && ev.Depth == p.authorDepth+1 && isPersonField(ev.Name) {
			p.s.BeginStoringCharacters()
		}
		return
	}
	if ns == nsCore && ev.Name == "author" && (p.article == nil && ev.Depth == 2 || p.article != nil && ev.Depth == p.entryDepth+1) {
		p.author = &model.ParsedAuthor{}
		p.authorDepth = ev.Depth
		return
	}

	if p.article == nil {
		switch {
		case ns == nsCore && ev.Name == "entry" && ev.Depth == 2:
			p.startEntry(ev)
		case ns == nsCore && ev.Depth == 2 && ev.Name == "link":
			if p.feed.HomepageURL == "" && isAlternateLink(ev) {
				p.feed.HomepageURL = p.resolve(ev.Attr("href"))
			}
		case ns == nsCore && ev.Depth == 2 && ev.Name == "title":
			p.s.BeginStoringCharacters()
		}
		return
	}

	if ev.Depth != p.entryDepth+1 {
		return
	}
	switch {
	case ns == nsCore && ev.Name == "link":
		p.entryLink(ev)
	case ns == nsCore && isEntryTextElement(ev.Name):
		p.s.BeginStoringCharacters()
	case ns == nsMedia && ev.Name == "content":
		if u := ev.Attr("url"); u != "" {
			p.article.AddEnclosure(model.ParsedEnclosure{
				URL:      p.resolve(u),
				MimeType: ev.Attr("type"),
				Length:   textutil.ParseInt64(ev.Attr("fileSize")),
			})
		}
	}
}

func (p *atomParser) startEntry(ev xmlscan.Event) {
	p.article = model.NewArticleBuilder(p.feed.URL)
	p.entryDepth = ev.Depth
	p.hasAuthor = false
	if lang := ev.AttrNS(xmlscan.NamespaceXML, "lang"); lang != "" {
		p.article.Language = strings.TrimSpace(lang)
	}
}

// entryLink は rel 属性で link を振り分ける。rel がなければ alternate とみなす。
func (p *atomParser) entryLink(ev xmlscan.Event) {
	href := ev.Attr("href")
	if href == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(ev.Attr("rel"))) {
	case "", "alternate":
		if p.article.Link == "" {
			p.article.Link = p.resolve(href)
			p.article.Permalink = p.article.Link
		}
	case "enclosure":
		p.article.AddEnclosure(model.ParsedEnclosure{
			URL:      p.resolve(href),
			MimeType: ev.Attr("type"),
			Title:    ev.Attr("title"),
			Length:   textutil.ParseInt64(ev.Attr("length")),
		})
	}
}

func (p *atomParser) endElement(ev xmlscan.Event) {
	ns := atomNamespace(ev.Space)

	if p.author != nil {
		if ev.Depth == p.authorDepth {
			p.finishAuthor()
			return
		}
		if ns == nsCore && ev.Depth == p.authorDepth+1 {
			text := p.s.CurrentStringTrimmed()
			switch ev.Name {
			case "name":
				p.author.Name = textutil.DecodeEntities(text)
			case "email":
				p.author.EmailAddress = text
			case "uri", "url":
				p.author.URL = p.resolve(text)
			}
		}
		return
	}

	if p.article == nil {
		if ns == nsCore && ev.Depth == 2 && ev.Name == "title" && p.feed.Title == "" {
			p.feed.Title = cleanTitle(p.s.CurrentStringTrimmed())
		}
		return
	}

	if ns == nsCore && ev.Name == "entry" && ev.Depth == p.entryDepth {
		p.finishEntry()
		return
	}
	if ns != nsCore || ev.Depth != p.entryDepth+1 {
		return
	}

	a := p.article
	text := p.s.CurrentStringTrimmed()
	switch ev.Name {
	case "id":
		a.GUID = text
	case "title":
		a.Title = cleanTitle(text)
	case "content":
		a.Body = text
	case "summary":
		a.Summary = text
	case "published", "issued":
		a.DatePublished = textutil.ParseDate(text)
	case "updated", "modified":
		a.DateModified = textutil.ParseDate(text)
	}
}

func (p *atomParser) finishAuthor() {
	author := *p.author
	p.author = nil
	if author.IsZero() {
		return
	}
	if p.article == nil {
		p.feedAuthors = append(p.feedAuthors, author)
		return
	}
	p.article.AddAuthor(author)
	p.hasAuthor = true
}

func (p *atomParser) finishEntry() {
	a := p.article
	p.article = nil
	// entry に著者がなければ feed の著者を引き継ぐ
	if !p.hasAuthor {
		for _, author := range p.feedAuthors {
			a.AddAuthor(author)
		}
	}
	if a.Language == "" {
		a.Language = p.feed.Language
	}
	p.feed.AddArticle(a.Build(p.now))
}

func (p *atomParser) resolve(ref string) string {
	return resolveLink(p.s, ref, p.feed.HomepageURL, p.feed.URL)
}

func isPersonField(name string) bool {
	return name == "name" || name == "email" || name == "uri" || name == "url"
}

func isEntryTextElement(name string) bool {
	switch name {
	case "id", "title", "content", "summary", "published", "issued", "updated", "modified":
		return true
	}
	return false
}

// isAlternateLink はフィードのWebサイトを指す link かどうかを判定する。
func isAlternateLink(ev xmlscan.Event) bool {
	rel := strings.ToLower(strings.TrimSpace(ev.Attr("rel")))
	if rel != "" && rel != "alternate" {
		return false
	}
	typ := strings.ToLower(ev.Attr("type"))
	return typ == "" || strings.Contains(typ, "html")
}
