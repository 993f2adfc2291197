package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hitoshi/feedkit/internal/feed"
	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/worker/fetch"
)

// Store は購読登録で使う保存先のインターフェース。
type Store interface {
	SaveFeed(ctx context.Context, f *model.ParsedFeed) (inserted, updated int, err error)
	AddSubscription(ctx context.Context, spec model.OPMLFeedSpecifier) (bool, error)
}

// SubscribeResult は購読登録の結果。
type SubscribeResult struct {
	Feed     *model.ParsedFeed
	Inserted int
	Updated  int
	// Added は新しい購読が作られた場合 true。登録済みなら false。
	Added   bool
	Favicon *Favicon
}

// Service はURLからのフィード購読登録を統括する。
// 検出 → フィード取得・解析 → 記事保存 → 購読作成 → favicon取得の順に行う。
type Service struct {
	detector *Detector
	client   *fetch.Client
	store    Store
	favicons *FaviconFetcher
}

// NewService はServiceの新しいインスタンスを生成する。favicons は nil でもよい。
func NewService(detector *Detector, client *fetch.Client, store Store, favicons *FaviconFetcher) *Service {
	return &Service{
		detector: detector,
		client:   client,
		store:    store,
		favicons: favicons,
	}
}

// Subscribe はURLからフィードを検出して解析し、記事と購読を保存する。
func (s *Service) Subscribe(ctx context.Context, inputURL string) (*SubscribeResult, error) {
	found, err := s.detector.Discover(ctx, inputURL)
	if err != nil {
		return nil, err
	}

	body := found.Body
	if !found.Direct {
		resp, err := s.client.Get(ctx, found.FeedURL, fetch.Conditional{}, feedAccept)
		if err != nil {
			return nil, ClassifyFetchError(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
		}
		body = resp.Body
	}

	parsed, err := feed.Parse(body, found.FeedURL)
	if err != nil {
		slog.Warn("検出したフィードの解析に失敗しました",
			slog.String("feed_url", found.FeedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDocumentError(err)
	}

	inserted, updated, err := s.store.SaveFeed(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("フィードの保存に失敗しました: %w", err)
	}

	added, err := s.store.AddSubscription(ctx, model.OPMLFeedSpecifier{
		Title:       parsed.Title,
		HomePageURL: parsed.HomepageURL,
		FeedURL:     parsed.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("購読の作成に失敗しました: %w", err)
	}

	result := &SubscribeResult{Feed: parsed, Inserted: inserted, Updated: updated, Added: added}
	if s.favicons != nil {
		siteURL := parsed.HomepageURL
		if siteURL == "" {
			siteURL = extractSiteURL(parsed.URL)
		}
		result.Favicon = s.favicons.FetchFaviconForSite(ctx, siteURL, found.Metadata)
	}

	slog.Info("購読を登録しました",
		slog.String("feed_url", parsed.URL),
		slog.Bool("added", added),
		slog.Int("articles", len(parsed.Articles)),
	)
	return result, nil
}

const feedAccept = "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml, */*"

// extractSiteURL はフィードURLからスキームとホストだけのサイトURLを作る。
func extractSiteURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
