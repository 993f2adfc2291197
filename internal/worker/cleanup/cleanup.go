// Package cleanup は購読フィードごとの記事保持件数を超えた記事を削除するジョブを提供する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/feedkit/internal/model"
)

// Store は購読一覧の取得と記事の間引きを抽象化するインターフェース。
type Store interface {
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	PruneArticles(ctx context.Context, feedURL string, keep int) (int, error)
}

// Job は保持件数を超過した記事を削除する定期ジョブ。
// 何度実行しても結果は変わらない。
type Job struct {
	store       Store
	logger      *slog.Logger
	KeepPerFeed int // フィードごとに残す記事数（デフォルト: 500）
}

// NewJob は新しいJobを生成する。
func NewJob(store Store, logger *slog.Logger) *Job {
	return &Job{
		store:       store,
		logger:      logger,
		KeepPerFeed: 500,
	}
}

// Start は interval ごとに Run を実行する。interval が0以下なら24時間。
// コンテキストがキャンセルされるまで戻らない。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("記事クリーンアップジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Run はすべての購読フィードについて古い記事を削除する。
// 1フィードの失敗はログに記録して残りの処理を続け、最後の失敗をまとめて返す。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	subs, err := j.store.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("購読一覧の取得に失敗: %w", err)
	}

	var (
		deletedCount int
		failed       int
		lastErr      error
	)
	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := j.store.PruneArticles(ctx, sub.FeedURL, j.KeepPerFeed)
		if err != nil {
			failed++
			lastErr = err
			j.logger.Warn("フィードの記事削除に失敗しました",
				slog.String("feed_url", sub.FeedURL),
				slog.String("error", err.Error()),
			)
			continue
		}
		deletedCount += n
	}

	j.logger.Info("記事クリーンアップジョブが完了しました",
		slog.Int("feeds", len(subs)),
		slog.Int("deleted_count", deletedCount),
		slog.Int("keep_per_feed", j.KeepPerFeed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if lastErr != nil {
		return fmt.Errorf("%d件のフィードで記事削除に失敗: %w", failed, lastErr)
	}
	return nil
}
