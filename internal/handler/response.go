// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/feedkit/internal/discovery"
	"github.com/hitoshi/feedkit/internal/htmlparse"
	"github.com/hitoshi/feedkit/internal/middleware"
	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/repository"
)

// feedResponse はフィードのAPIレスポンス。
type feedResponse struct {
	URL         string            `json:"url"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	HomepageURL string            `json:"homepage_url,omitempty"`
	Language    string            `json:"language,omitempty"`
	Articles    []articleResponse `json:"articles"`
}

// articleResponse は記事のAPIレスポンス。
type articleResponse struct {
	ArticleID     string              `json:"article_id"`
	GUID          string              `json:"guid,omitempty"`
	Title         string              `json:"title"`
	Body          string              `json:"body,omitempty"`
	Summary       string              `json:"summary,omitempty"`
	Markdown      string              `json:"markdown,omitempty"`
	Link          string              `json:"link,omitempty"`
	Permalink     string              `json:"permalink,omitempty"`
	Language      string              `json:"language,omitempty"`
	Authors       []authorResponse    `json:"authors,omitempty"`
	Enclosures    []enclosureResponse `json:"enclosures,omitempty"`
	DatePublished *time.Time          `json:"date_published,omitempty"`
	DateModified  *time.Time          `json:"date_modified,omitempty"`
	DateParsed    time.Time           `json:"date_parsed"`
}

type authorResponse struct {
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
	Email string `json:"email,omitempty"`
}

type enclosureResponse struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Title    string `json:"title,omitempty"`
	Length   int64  `json:"length,omitempty"`
}

// opmlResponse はOPML文書のAPIレスポンス。
type opmlResponse struct {
	Title    string                  `json:"title"`
	Items    []opmlItemResponse      `json:"items"`
	Feeds    []feedSpecifierResponse `json:"feeds"`
	Imported *int                    `json:"imported,omitempty"`
}

type opmlItemResponse struct {
	Attributes map[string]string  `json:"attributes"`
	Children   []opmlItemResponse `json:"children,omitempty"`
}

type feedSpecifierResponse struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	HomePageURL string `json:"homepage_url,omitempty"`
	FeedURL     string `json:"feed_url"`
	FolderName  string `json:"folder_name,omitempty"`
}

// htmlResponse はHTML解析のAPIレスポンス。
type htmlResponse struct {
	BaseURL         string              `json:"base_url,omitempty"`
	Favicons        []faviconResponse   `json:"favicons"`
	AppleTouchIcons []touchIconResponse `json:"apple_touch_icons"`
	FeedLinks       []feedLinkResponse  `json:"feed_links"`
	OpenGraphImages []ogImageResponse   `json:"open_graph_images"`
	TwitterImageURL string              `json:"twitter_image_url,omitempty"`
	Links           []linkResponse      `json:"links"`
	Candidates      []candidateResponse `json:"candidates"`
}

type faviconResponse struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url"`
}

type touchIconResponse struct {
	Rel    string `json:"rel"`
	Sizes  string `json:"sizes,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	URL    string `json:"url"`
}

type feedLinkResponse struct {
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
	URL   string `json:"url"`
}

type ogImageResponse struct {
	URL       string  `json:"url,omitempty"`
	SecureURL string  `json:"secure_url,omitempty"`
	MimeType  string  `json:"mime_type,omitempty"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
	AltText   string  `json:"alt,omitempty"`
}

type linkResponse struct {
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
}

type candidateResponse struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
	Score int    `json:"score"`
}

// discoverResponse はフィード検出のAPIレスポンス。
type discoverResponse struct {
	FeedURL    string              `json:"feed_url"`
	Direct     bool                `json:"direct"`
	Candidates []candidateResponse `json:"candidates"`
}

// subscriptionResponse は購読のAPIレスポンス。
type subscriptionResponse struct {
	FeedURL           string    `json:"feed_url"`
	Title             string    `json:"title"`
	HomePageURL       string    `json:"homepage_url,omitempty"`
	FolderName        string    `json:"folder_name,omitempty"`
	FetchStatus       string    `json:"fetch_status"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	NextFetchAt       time.Time `json:"next_fetch_at"`
}

func toFeedResponse(f *model.ParsedFeed) feedResponse {
	articles := make([]articleResponse, len(f.Articles))
	for i, a := range f.Articles {
		articles[i] = toArticleResponse(a)
	}
	return feedResponse{
		URL:         f.URL,
		Type:        string(f.Type),
		Title:       f.Title,
		HomepageURL: f.HomepageURL,
		Language:    f.Language,
		Articles:    articles,
	}
}

func toArticleResponse(a *model.ParsedArticle) articleResponse {
	resp := articleResponse{
		ArticleID:     a.ArticleID,
		GUID:          a.GUID,
		Title:         a.Title,
		Body:          a.Body,
		Summary:       a.Summary,
		Markdown:      a.Markdown,
		Link:          a.Link,
		Permalink:     a.Permalink,
		Language:      a.Language,
		DatePublished: a.DatePublished,
		DateModified:  a.DateModified,
		DateParsed:    a.DateParsed,
	}
	for _, au := range a.Authors {
		resp.Authors = append(resp.Authors, authorResponse{Name: au.Name, URL: au.URL, Email: au.EmailAddress})
	}
	for _, e := range a.Enclosures {
		resp.Enclosures = append(resp.Enclosures, enclosureResponse{URL: e.URL, MimeType: e.MimeType, Title: e.Title, Length: e.Length})
	}
	return resp
}

func toOPMLResponse(doc *model.OPMLDocument, feeds []*model.OPMLFeedSpecifier) opmlResponse {
	resp := opmlResponse{
		Title: doc.Title,
		Items: toOPMLItems(doc.Children),
		Feeds: make([]feedSpecifierResponse, len(feeds)),
	}
	for i, f := range feeds {
		resp.Feeds[i] = feedSpecifierResponse{
			Title:       f.Title,
			Description: f.FeedDescription,
			HomePageURL: f.HomePageURL,
			FeedURL:     f.FeedURL,
			FolderName:  f.FolderName,
		}
	}
	return resp
}

func toOPMLItems(items []*model.OPMLItem) []opmlItemResponse {
	out := make([]opmlItemResponse, len(items))
	for i, item := range items {
		attrs := make(map[string]string, len(item.Attributes))
		for _, a := range item.Attributes {
			attrs[a.Name] = a.Value
		}
		out[i] = opmlItemResponse{Attributes: attrs}
		if len(item.Children) > 0 {
			out[i].Children = toOPMLItems(item.Children)
		}
	}
	return out
}

func toHTMLResponse(meta *model.HTMLMetadata, links []model.HTMLLink, candidates []htmlparse.FeedSpecifier) htmlResponse {
	resp := htmlResponse{
		BaseURL:         meta.BaseURL,
		Favicons:        []faviconResponse{},
		AppleTouchIcons: []touchIconResponse{},
		FeedLinks:       []feedLinkResponse{},
		OpenGraphImages: []ogImageResponse{},
		TwitterImageURL: meta.Twitter.ImageURL,
		Links:           make([]linkResponse, len(links)),
		Candidates:      toCandidates(candidates),
	}
	for _, f := range meta.Favicons {
		resp.Favicons = append(resp.Favicons, faviconResponse{Type: f.Type, URL: f.URL})
	}
	for _, icon := range meta.AppleTouchIcons {
		resp.AppleTouchIcons = append(resp.AppleTouchIcons, touchIconResponse{
			Rel: icon.Rel, Sizes: icon.Sizes, Width: icon.Width, Height: icon.Height, URL: icon.URL,
		})
	}
	for _, l := range meta.FeedLinks {
		resp.FeedLinks = append(resp.FeedLinks, feedLinkResponse{Title: l.Title, Type: l.Type, URL: l.URL})
	}
	for _, img := range meta.OpenGraph.Images {
		resp.OpenGraphImages = append(resp.OpenGraphImages, ogImageResponse{
			URL: img.URL, SecureURL: img.SecureURL, MimeType: img.MimeType,
			Width: img.Width, Height: img.Height, AltText: img.AltText,
		})
	}
	for i, l := range links {
		resp.Links[i] = linkResponse{URL: l.URL, Text: l.Text, Title: l.Title}
	}
	return resp
}

func toCandidates(specs []htmlparse.FeedSpecifier) []candidateResponse {
	out := make([]candidateResponse, len(specs))
	for i, s := range specs {
		out[i] = candidateResponse{Title: s.Title, URL: s.URL, Score: s.Score()}
	}
	return out
}

func toDiscoverResponse(r *discovery.Result) discoverResponse {
	return discoverResponse{
		FeedURL:    r.FeedURL,
		Direct:     r.Direct,
		Candidates: toCandidates(r.Candidates),
	}
}

func toSubscriptionResponse(s model.Subscription) subscriptionResponse {
	return subscriptionResponse{
		FeedURL:           s.FeedURL,
		Title:             s.Title,
		HomePageURL:       s.HomePageURL,
		FolderName:        s.FolderName,
		FetchStatus:       string(s.FetchStatus),
		ConsecutiveErrors: s.ConsecutiveErrors,
		ErrorMessage:      s.ErrorMessage,
		NextFetchAt:       s.NextFetchAt,
	}
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを統一エラーレスポンスに変換する。
// *model.APIError 以外は内部エラーとしてログに記録する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// handleStoreError は保存先のエラーを変換する。行がなければ購読未検出として扱う。
func handleStoreError(w http.ResponseWriter, err error, feedURL string) {
	if errors.Is(err, repository.ErrNotFound) {
		middleware.WriteAPIError(w, model.NewSubscriptionNotFoundError(feedURL))
		return
	}
	handleServiceError(w, err)
}
