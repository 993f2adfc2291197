package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/feedkit/internal/discovery"
	"github.com/hitoshi/feedkit/internal/middleware"
	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/repository"
)

const (
	defaultArticleLimit = 50
	maxArticleLimit     = 200
)

// Discoverer はURLからフィードを検出する。*discovery.Detector が実装する。
type Discoverer interface {
	Discover(ctx context.Context, inputURL string) (*discovery.Result, error)
}

// Subscriber はURLからフィードを購読登録する。*discovery.Service が実装する。
type Subscriber interface {
	Subscribe(ctx context.Context, inputURL string) (*discovery.SubscribeResult, error)
}

// FeedReader は保存済みのフィードと記事を読み出す。*store.FeedStore が実装する。
type FeedReader interface {
	Feed(ctx context.Context, feedURL string) (*model.ParsedFeed, error)
	ListArticles(ctx context.Context, feedURL string, limit int) ([]*model.ParsedArticle, error)
}

// FeedHandler はフィード検出・登録・記事参照のHTTPハンドラー。
type FeedHandler struct {
	discoverer Discoverer
	subscriber Subscriber
	feeds      FeedReader
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(discoverer Discoverer, subscriber Subscriber, feeds FeedReader) *FeedHandler {
	return &FeedHandler{
		discoverer: discoverer,
		subscriber: subscriber,
		feeds:      feeds,
	}
}

// urlRequest は {url} 形式のリクエストボディ。
type urlRequest struct {
	URL string `json:"url"`
}

// registerFeedResponse はフィード登録のAPIレスポンス。
type registerFeedResponse struct {
	Feed       feedResponse `json:"feed"`
	Inserted   int          `json:"inserted"`
	Updated    int          `json:"updated"`
	Subscribed bool         `json:"subscribed"`
	FaviconURL string       `json:"favicon_data_url,omitempty"`
}

// decodeURLRequest はボディから {url} を読み出す。失敗時はエラーレスポンスを書き込む。
func decodeURLRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError())
		return "", false
	}
	u := strings.TrimSpace(req.URL)
	if u == "" {
		middleware.WriteAPIError(w, model.NewInvalidURLError("URLが空です"))
		return "", false
	}
	return u, true
}

// Discover はURLからフィードを検出する。保存はしない。
// POST /api/discover
func (h *FeedHandler) Discover(w http.ResponseWriter, r *http.Request) {
	inputURL, ok := decodeURLRequest(w, r)
	if !ok {
		return
	}

	result, err := h.discoverer.Discover(r.Context(), inputURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiscoverResponse(result))
}

// RegisterFeed はURLからフィードを検出・取得・解析し、記事と購読を保存する。
// POST /api/feeds
func (h *FeedHandler) RegisterFeed(w http.ResponseWriter, r *http.Request) {
	inputURL, ok := decodeURLRequest(w, r)
	if !ok {
		return
	}

	result, err := h.subscriber.Subscribe(r.Context(), inputURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := registerFeedResponse{
		Feed:       toFeedResponse(result.Feed),
		Inserted:   result.Inserted,
		Updated:    result.Updated,
		Subscribed: result.Added,
	}
	if result.Favicon != nil {
		resp.FaviconURL = result.Favicon.DataURL()
	}

	status := http.StatusOK
	if result.Added {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// ListArticles は保存済みフィードの記事を新しい順に返す。
// GET /api/feeds/articles?url=&limit=
func (h *FeedHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	feedURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if feedURL == "" {
		middleware.WriteAPIError(w, model.NewInvalidURLError("url パラメータが指定されていません"))
		return
	}

	limit := defaultArticleLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			middleware.WriteAPIError(w, model.NewInvalidLimitError(v))
			return
		}
		limit = min(n, maxArticleLimit)
	}

	f, err := h.feeds.Feed(r.Context(), feedURL)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			middleware.WriteAPIError(w, model.NewFeedNotFoundError(feedURL))
			return
		}
		handleServiceError(w, err)
		return
	}

	articles, err := h.feeds.ListArticles(r.Context(), feedURL, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	f.Articles = articles
	writeJSON(w, http.StatusOK, toFeedResponse(f))
}
