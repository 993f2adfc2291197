package htmlparse

import (
	"bytes"
	"strings"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/textutil"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseLinks は文書中の <a> を出現順に返す。
// href は baseURL を基準に解決し、解決できなければ空にする。
// 閉じられていない <a> は次の <a> の開始か文書の終わりで確定する。
func ParseLinks(data []byte, baseURL string) []model.HTMLLink {
	var (
		links []model.HTMLLink
		cur   *anchor
	)
	flush := func() {
		if cur == nil {
			return
		}
		if l := cur.link(); l != (model.HTMLLink{}) {
			links = append(links, l)
		}
		cur = nil
	}

	names := textutil.NewInterner()
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		switch z.Next() {
		case html.ErrorToken:
			flush()
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if atom.Lookup(name) != atom.A {
				continue
			}
			flush()
			attrs := tagAttributes(z, hasAttr, names)
			cur = &anchor{
				url:   textutil.ResolveURL(baseURL, attrs["href"]),
				title: strings.TrimSpace(attrs["title"]),
			}
		case html.TextToken:
			if cur != nil {
				cur.text.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.A {
				flush()
			}
		}
	}
}

type anchor struct {
	url   string
	title string
	text  bytes.Buffer
}

func (a *anchor) link() model.HTMLLink {
	return model.HTMLLink{
		URL:   a.url,
		Text:  textutil.CollapseWhitespace(a.text.String()),
		Title: a.title,
	}
}
