// Package htmlparse はHTMLから <link>/<meta>/<a> だけを拾う軽量なパーサーを提供する。
// DOMは構築せず、トークナイザで文書を一度だけ走査する。
package htmlparse

import (
	"bytes"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/textutil"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseTags は文書中のすべての <link> と <meta> を出現順に返す。
// 属性名はトークナイザが小文字に正規化したもの、値はエンティティを展開したもの。
func ParseTags(data []byte) []model.HTMLTag {
	var tags []model.HTMLTag
	names := textutil.NewInterner()
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			var typ model.HTMLTagType
			switch atom.Lookup(name) {
			case atom.Link:
				typ = model.HTMLTagLink
			case atom.Meta:
				typ = model.HTMLTagMeta
			default:
				continue
			}
			tags = append(tags, model.HTMLTag{Type: typ, Attributes: tagAttributes(z, hasAttr, names)})
		}
	}
}

// tagAttributes は現在のタグの属性を読む。同名の属性は最初のものを採用する。
// 属性名は文書中で何度も現れるのでnamesで集約する。
func tagAttributes(z *html.Tokenizer, hasAttr bool, names *textutil.Interner) map[string]string {
	attrs := make(map[string]string)
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if len(key) == 0 {
			continue
		}
		if _, dup := attrs[string(key)]; dup {
			continue
		}
		attrs[names.InternBytes(key)] = string(val)
	}
	return attrs
}
