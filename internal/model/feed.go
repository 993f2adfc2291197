package model

import "time"

// FeedType はフィードの種類（RSS/Atom/JSON Feed）を表す。
type FeedType string

const (
	// FeedTypeRSS はRSS 0.9x/2.0およびRDF（RSS 1.0）。
	FeedTypeRSS FeedType = "rss"
	// FeedTypeAtom はAtom 0.3/1.0。
	FeedTypeAtom FeedType = "atom"
	// FeedTypeJSON は JSON Feed 1.0/1.1。
	FeedTypeJSON FeedType = "json"
)

// ParsedFeed はフィード文書1件をパースした結果を表す。
// Articles は ArticleID で一意な集合で、文書内の出現順を保つ。
type ParsedFeed struct {
	URL         string
	Type        FeedType
	Title       string
	HomepageURL string
	Language    string
	Articles    []*ParsedArticle
}

// Article は指定IDの記事を返す。見つからなければnil。
func (f *ParsedFeed) Article(articleID string) *ParsedArticle {
	for _, a := range f.Articles {
		if a.ArticleID == articleID {
			return a
		}
	}
	return nil
}

// FeedBuilder はパース中のフィードを組み立てる可変ビルダー。
type FeedBuilder struct {
	URL         string
	Type        FeedType
	Title       string
	HomepageURL string
	Language    string

	articles []*ParsedArticle
	seen     map[string]struct{}
}

// NewFeedBuilder はFeedBuilderの新しいインスタンスを生成する。
func NewFeedBuilder(feedURL string, feedType FeedType) *FeedBuilder {
	return &FeedBuilder{
		URL:  feedURL,
		Type: feedType,
		seen: make(map[string]struct{}),
	}
}

// AddArticle は記事を追加する。nilおよび既出のIDは無視し、追加したかどうかを返す。
func (b *FeedBuilder) AddArticle(a *ParsedArticle) bool {
	if a == nil {
		return false
	}
	if _, dup := b.seen[a.ArticleID]; dup {
		return false
	}
	b.seen[a.ArticleID] = struct{}{}
	b.articles = append(b.articles, a)
	return true
}

// Build は不変の ParsedFeed を生成する。
func (b *FeedBuilder) Build() *ParsedFeed {
	return &ParsedFeed{
		URL:         b.URL,
		Type:        b.Type,
		Title:       b.Title,
		HomepageURL: b.HomepageURL,
		Language:    b.Language,
		Articles:    append([]*ParsedArticle(nil), b.articles...),
	}
}

// Subscription は定期取得の対象となる購読フィードを表す。
// OPMLインポートまたはAPIから登録される。
type Subscription struct {
	ID                string
	FeedURL           string
	Title             string
	HomePageURL       string
	FolderName        string
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FetchStatus は購読のフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
	// FetchStatusError はエラーによるフェッチ停止状態。
	FetchStatusError FetchStatus = "error"
)
