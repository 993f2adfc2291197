package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/feedkit/internal/feed"
	"github.com/hitoshi/feedkit/internal/metrics"
	"github.com/hitoshi/feedkit/internal/model"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/feed+json, application/rdf+xml, application/xml, text/xml, */*"

// FeedStore は Fetcher が使う保存先のインターフェース。
type FeedStore interface {
	SaveFeed(ctx context.Context, f *model.ParsedFeed) (inserted, updated int, err error)
	UpdateSubscriptionState(ctx context.Context, sub *model.Subscription) error
}

// Fetcher は購読1件のHTTPフェッチ、解析、保存を行い、結果に応じて購読状態を更新する。
type Fetcher struct {
	client   *Client
	store    FeedStore
	recorder metrics.Recorder
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。interval は成功後の次回フェッチまでの間隔。
func NewFetcher(client *Client, store FeedStore, recorder metrics.Recorder, logger *slog.Logger, interval time.Duration) *Fetcher {
	return &Fetcher{
		client:   client,
		store:    store,
		recorder: recorder,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Fetch は購読をフェッチし、購読状態を保存する。
// パース失敗はエラーとせず連続失敗回数として記録する。
func (f *Fetcher) Fetch(ctx context.Context, sub *model.Subscription) error {
	start := f.now()
	resp, err := f.client.Get(ctx, sub.FeedURL, Conditional{ETag: sub.ETag, LastModified: sub.LastModified}, feedAccept)
	duration := f.now().Sub(start)

	if err != nil {
		f.recorder.RecordFetch(0, duration, err)
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_url", sub.FeedURL),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, ErrBodyTooLarge) || isGuardError(err) {
			ApplyStop(sub, err.Error())
		} else {
			ApplyBackoff(sub, err.Error(), f.now())
		}
		f.saveState(ctx, sub)
		return err
	}

	f.recorder.RecordFetch(resp.StatusCode, duration, nil)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		f.logger.Info("フィードは未変更です（304）",
			slog.String("feed_url", sub.FeedURL),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		ApplySuccess(sub, f.interval, f.now())
		return f.store.UpdateSubscriptionState(ctx, sub)

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		f.logger.Warn("フィードフェッチを停止します",
			slog.String("feed_url", sub.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		ApplyStop(sub, reason)
		return f.store.UpdateSubscriptionState(ctx, sub)

	case FetchResultBackoff:
		f.logger.Warn("フィードフェッチにバックオフを適用します",
			slog.String("feed_url", sub.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", sub.ConsecutiveErrors+1),
		)
		ApplyBackoff(sub, fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode), f.now())
		return f.store.UpdateSubscriptionState(ctx, sub)

	case FetchResultOK:
	default:
		f.logger.Warn("予期しないHTTPステータスコード",
			slog.String("feed_url", sub.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		ApplyBackoff(sub, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode), f.now())
		return f.store.UpdateSubscriptionState(ctx, sub)
	}

	if resp.ETag != "" {
		sub.ETag = resp.ETag
	}
	if resp.LastModified != "" {
		sub.LastModified = resp.LastModified
	}

	parsed, err := f.parse(ctx, resp.Body, sub.FeedURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_url", sub.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyParseFailure(sub, err.Error(), f.now())
		f.saveState(ctx, sub)
		return nil
	}

	inserted, updated, err := f.store.SaveFeed(ctx, parsed)
	if err != nil {
		f.logger.Error("記事の保存に失敗しました",
			slog.String("feed_url", sub.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(sub, fmt.Sprintf("記事の保存に失敗: %s", err.Error()), f.now())
		f.saveState(ctx, sub)
		return err
	}
	f.recorder.RecordArticlesStored(inserted + updated)

	if parsed.Title != "" {
		sub.Title = parsed.Title
	}
	if parsed.HomepageURL != "" {
		sub.HomePageURL = parsed.HomepageURL
	}
	ApplySuccess(sub, f.interval, f.now())
	if err := f.store.UpdateSubscriptionState(ctx, sub); err != nil {
		f.logger.Error("購読状態の更新に失敗しました",
			slog.String("feed_url", sub.FeedURL),
			slog.String("error", err.Error()),
		)
		return err
	}

	f.logger.Info("フィードフェッチが完了しました",
		slog.String("feed_url", sub.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("articles_inserted", inserted),
		slog.Int("articles_updated", updated),
		slog.Int("articles_total", len(parsed.Articles)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// parse は feed.ParseAsync の結果を待つ。ctx が先に終われば ctx のエラーを返す。
func (f *Fetcher) parse(ctx context.Context, body []byte, feedURL string) (*model.ParsedFeed, error) {
	type result struct {
		feed *model.ParsedFeed
		err  error
	}
	done := make(chan result, 1)
	start := f.now()
	feed.ParseAsync(ctx, body, feedURL, func(parsed *model.ParsedFeed, err error) {
		done <- result{parsed, err}
	})

	select {
	case r := <-done:
		f.recorder.RecordParse("feed", f.now().Sub(start), r.err)
		if r.err == nil {
			f.recorder.RecordArticlesParsed(len(r.feed.Articles))
		}
		return r.feed, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fetcher) saveState(ctx context.Context, sub *model.Subscription) {
	if err := f.store.UpdateSubscriptionState(ctx, sub); err != nil {
		f.logger.Error("購読状態の更新に失敗しました",
			slog.String("feed_url", sub.FeedURL),
			slog.String("error", err.Error()),
		)
	}
}
