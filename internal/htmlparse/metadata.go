package htmlparse

import (
	"strconv"
	"strings"

	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/textutil"
)

// feedMimeTypes は rel="alternate" のリンクをフィードとみなすMIMEタイプ。
var feedMimeTypes = map[string]struct{}{
	"application/rss+xml":   {},
	"application/atom+xml":  {},
	"application/rdf+xml":   {},
	"application/feed+json": {},
	"application/json":      {},
}

// ParseMetadata は文書のタグを収集してメタデータを組み立てる。
func ParseMetadata(data []byte, baseURL string) *model.HTMLMetadata {
	return BuildMetadata(baseURL, ParseTags(data))
}

// BuildMetadata はタグ一覧からメタデータを組み立てる。入力を変更しない。
// 相対URLは baseURL を基準に解決し、解決できなければ空にする。
func BuildMetadata(baseURL string, tags []model.HTMLTag) *model.HTMLMetadata {
	b := &metadataBuilder{
		meta: &model.HTMLMetadata{
			BaseURL: baseURL,
			Tags:    append([]model.HTMLTag(nil), tags...),
		},
	}
	for _, tag := range tags {
		switch tag.Type {
		case model.HTMLTagLink:
			b.link(tag)
		case model.HTMLTagMeta:
			b.metaTag(tag)
		}
	}
	return b.meta
}

type metadataBuilder struct {
	meta *model.HTMLMetadata
	// 付随プロパティを受け付ける og:image。images のインデックス。
	ogImage int
	hasOG   bool
}

func (b *metadataBuilder) resolve(ref string) string {
	return textutil.ResolveURL(b.meta.BaseURL, ref)
}

func (b *metadataBuilder) link(tag model.HTMLTag) {
	rels := relTokens(tag.Attr("rel"))
	if len(rels) == 0 {
		return
	}
	href := tag.Attr("href")

	if rels.has("icon") {
		b.meta.Favicons = append(b.meta.Favicons, model.HTMLFavicon{
			Type: tag.Attr("type"),
			URL:  b.resolve(href),
		})
	}
	for _, rel := range []string{"apple-touch-icon", "apple-touch-icon-precomposed"} {
		if !rels.has(rel) {
			continue
		}
		icon := model.HTMLAppleTouchIcon{
			Rel:   rel,
			Sizes: tag.Attr("sizes"),
			URL:   b.resolve(href),
		}
		icon.Width, icon.Height = parseSizes(icon.Sizes)
		b.meta.AppleTouchIcons = append(b.meta.AppleTouchIcons, icon)
		break
	}
	if rels.has("alternate") {
		typ := strings.ToLower(strings.TrimSpace(tag.Attr("type")))
		if _, ok := feedMimeTypes[typ]; ok {
			b.meta.FeedLinks = append(b.meta.FeedLinks, model.HTMLFeedLink{
				Title: strings.TrimSpace(tag.Attr("title")),
				Type:  typ,
				URL:   b.resolve(href),
			})
		}
	}
}

func (b *metadataBuilder) metaTag(tag model.HTMLTag) {
	property := strings.ToLower(strings.TrimSpace(tag.Attr("property")))
	if property == "" {
		property = strings.ToLower(strings.TrimSpace(tag.Attr("name")))
	}
	content := tag.Attr("content")

	switch {
	case strings.HasPrefix(property, "og:"):
		b.openGraph(property, content)
	case property == "twitter:image:src" || property == "twitter:image":
		if b.meta.Twitter.ImageURL == "" {
			b.meta.Twitter.ImageURL = b.resolve(content)
		}
	}
}

// openGraph は og:image で新しい画像を始め、後続の og:image:* でその画像を補う。
func (b *metadataBuilder) openGraph(property, content string) {
	og := &b.meta.OpenGraph
	switch property {
	case "og:image", "og:image:url":
		og.Images = append(og.Images, model.HTMLOpenGraphImage{URL: b.resolve(content)})
		b.ogImage = len(og.Images) - 1
		b.hasOG = true
		return
	}

	if !strings.HasPrefix(property, "og:image:") {
		return
	}
	if !b.hasOG {
		og.Images = append(og.Images, model.HTMLOpenGraphImage{})
		b.ogImage = len(og.Images) - 1
		b.hasOG = true
	}
	img := &og.Images[b.ogImage]
	switch strings.TrimPrefix(property, "og:image:") {
	case "secure_url":
		img.SecureURL = b.resolve(content)
	case "type":
		img.MimeType = strings.TrimSpace(content)
	case "width":
		img.Width = parseFloat(content)
	case "height":
		img.Height = parseFloat(content)
	case "alt":
		img.AltText = strings.TrimSpace(content)
	}
}

type relSet []string

func relTokens(rel string) relSet {
	return strings.Fields(strings.ToLower(rel))
}

func (r relSet) has(token string) bool {
	for _, t := range r {
		if t == token {
			return true
		}
	}
	return false
}

// parseSizes は "180x180" 形式の sizes を解釈する。複数指定や "any" は0を返す。
func parseSizes(sizes string) (int, int) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(sizes)), "x")
	if !ok {
		return 0, 0
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0
	}
	return width, height
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}
