package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/feedkit/internal/model"
)

// SubscriptionFetcher は購読1件のフェッチを実行するインターフェース。
type SubscriptionFetcher interface {
	Fetch(ctx context.Context, sub *model.Subscription) error
}

// DueSource はフェッチ予定を過ぎた購読を返す。
type DueSource interface {
	DueSubscriptions(ctx context.Context, now time.Time, limit int) ([]model.Subscription, error)
}

// batchLimit は1サイクルで処理する購読の上限。
const batchLimit = 500

// Scheduler はフェッチ対象の購読を定期的に取得し、並列数を制限してフェッチする。
type Scheduler struct {
	source         DueSource
	fetcher        SubscriptionFetcher
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(source DueSource, fetcher SubscriptionFetcher, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		source:         source,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は interval ごとに RunOnce を実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで戻らない。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("フェッチスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("フェッチスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("フェッチサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はフェッチ対象の購読を取得し、semaphoreで並列数を制御しながらフェッチする。
// 個々のフェッチの失敗はログに記録し、他の購読の処理は続ける。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	subs, err := s.source.DueSubscriptions(ctx, start, batchLimit)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		s.logger.Info("フェッチ対象の購読はありません")
		return nil
	}

	s.logger.Info("フェッチサイクルを開始します",
		slog.Int("subscription_count", len(subs)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

loop:
	for i := range subs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}

		wg.Add(1)
		go func(sub *model.Subscription) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.fetcher.Fetch(ctx, sub); err != nil {
				s.logger.Error("フィードフェッチに失敗しました",
					slog.String("feed_url", sub.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(&subs[i])
	}

	wg.Wait()

	s.logger.Info("フェッチサイクルが完了しました",
		slog.Int("subscription_count", len(subs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return ctx.Err()
}
