package model

import "strings"

// HTMLTagType はHTMLTagの種類。
type HTMLTagType int

const (
	// HTMLTagLink は <link> 要素。
	HTMLTagLink HTMLTagType = iota + 1
	// HTMLTagMeta は <meta> 要素。
	HTMLTagMeta
)

// HTMLTag は収集した <link>/<meta> 要素。属性名は文書に書かれたまま保持する。
type HTMLTag struct {
	Type       HTMLTagType
	Attributes map[string]string
}

// Attr は属性値を大文字小文字を区別せずに取得する。
func (t HTMLTag) Attr(name string) string {
	if v, ok := t.Attributes[name]; ok {
		return v
	}
	for k, v := range t.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HTMLMetadata はHTMLのタグ一覧から組み立てたメタデータ。
// URLフィールドは解決できなかった場合に空文字となる。
type HTMLMetadata struct {
	BaseURL         string
	Tags            []HTMLTag
	Favicons        []HTMLFavicon
	AppleTouchIcons []HTMLAppleTouchIcon
	FeedLinks       []HTMLFeedLink
	OpenGraph       HTMLOpenGraphProperties
	Twitter         HTMLTwitterProperties
}

// HTMLFavicon は rel に icon を含む <link>。
type HTMLFavicon struct {
	Type string
	URL  string
}

// HTMLAppleTouchIcon は rel が apple-touch-icon(-precomposed) の <link>。
type HTMLAppleTouchIcon struct {
	Rel    string
	Sizes  string
	Width  int // sizes が "WxH" の場合のみ設定
	Height int
	URL    string
}

// HTMLFeedLink は rel="alternate" でフィードのMIMEタイプを持つ <link>。
type HTMLFeedLink struct {
	Title string
	Type  string
	URL   string
}

// HTMLOpenGraphProperties は og: で始まるメタデータ。
type HTMLOpenGraphProperties struct {
	Images []HTMLOpenGraphImage
}

// HTMLOpenGraphImage は og:image とその付随プロパティ。
// Width/Height は不明なら0。
type HTMLOpenGraphImage struct {
	URL       string
	SecureURL string
	MimeType  string
	Width     float64
	Height    float64
	AltText   string
}

// HTMLTwitterProperties は twitter: で始まるメタデータ。
type HTMLTwitterProperties struct {
	ImageURL string
}

// HTMLLink は <a> 要素。各フィールドは独立して省略されうる。
type HTMLLink struct {
	URL   string
	Text  string
	Title string
}
