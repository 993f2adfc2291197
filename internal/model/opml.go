package model

import "strings"

// Attribute はOPML outline要素の属性1件。名前は文書に書かれた大文字小文字のまま保持する。
type Attribute struct {
	Name  string
	Value string
}

// Attributes は属性の順序付きリスト。参照時のみ大文字小文字を区別しない。
type Attributes []Attribute

// Lookup は名前を大文字小文字を区別せずに検索する。最初に一致した値を返す。
func (a Attributes) Lookup(name string) (string, bool) {
	for _, attr := range a {
		if strings.EqualFold(attr.Name, name) {
			return attr.Value, true
		}
	}
	return "", false
}

// Get は Lookup の値のみを返す。存在しなければ空文字。
func (a Attributes) Get(name string) string {
	v, _ := a.Lookup(name)
	return v
}

// OPMLFeedSpecifier はOPMLのoutlineから導出した購読フィードの識別情報。
type OPMLFeedSpecifier struct {
	Title           string
	FeedDescription string
	HomePageURL     string
	FeedURL         string
	FolderName      string // 最も近い「フィードでない祖先」のタイトル
}

// OPMLItem はOPMLのoutlineノード。子は親が所有し、親への参照は持たない。
type OPMLItem struct {
	Attributes Attributes
	Children   []*OPMLItem

	folderName string
}

// NewOPMLItem はフォルダ名のヒントを持つOPMLItemを生成する。
// folderNameはパース時に祖先から受け渡される。
func NewOPMLItem(attrs Attributes, folderName string) *OPMLItem {
	return &OPMLItem{Attributes: attrs, folderName: folderName}
}

// TitleFromAttributes は title 属性、なければ text 属性を返す。
func (i *OPMLItem) TitleFromAttributes() string {
	if t := strings.TrimSpace(i.Attributes.Get("title")); t != "" {
		return t
	}
	return strings.TrimSpace(i.Attributes.Get("text"))
}

// FeedSpecifier は xmlUrl 属性を持つノードについて購読情報を導出する。
// フィードでなければnilを返す。
func (i *OPMLItem) FeedSpecifier() *OPMLFeedSpecifier {
	feedURL := strings.TrimSpace(i.Attributes.Get("xmlUrl"))
	if feedURL == "" {
		return nil
	}
	return &OPMLFeedSpecifier{
		Title:           i.TitleFromAttributes(),
		FeedDescription: strings.TrimSpace(i.Attributes.Get("description")),
		HomePageURL:     strings.TrimSpace(i.Attributes.Get("htmlUrl")),
		FeedURL:         feedURL,
		FolderName:      i.folderName,
	}
}

// IsFeed は購読フィードのノードかどうかを返す。
func (i *OPMLItem) IsFeed() bool {
	return strings.TrimSpace(i.Attributes.Get("xmlUrl")) != ""
}

// IsFolder は子を持ち、かつ自身がフィードでないノードかどうかを返す。
func (i *OPMLItem) IsFolder() bool {
	return len(i.Children) > 0 && !i.IsFeed()
}

// FeedSpecifiers は自身と子孫のフィード情報を文書順に列挙する。
func (i *OPMLItem) FeedSpecifiers() []*OPMLFeedSpecifier {
	var specs []*OPMLFeedSpecifier
	i.walk(func(item *OPMLItem) {
		if spec := item.FeedSpecifier(); spec != nil {
			specs = append(specs, spec)
		}
	})
	return specs
}

func (i *OPMLItem) walk(fn func(*OPMLItem)) {
	fn(i)
	for _, c := range i.Children {
		c.walk(fn)
	}
}

// OPMLDocument はOPML文書のルート。head内のタイトルと取得元URLを持つ。
type OPMLDocument struct {
	OPMLItem
	Title string
	URL   string
}
