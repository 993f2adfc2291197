// Package app は設定の読み込みと依存関係のワイヤリングを行い、起動モードごとの処理を実行する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/feedkit/internal/config"
	"github.com/hitoshi/feedkit/internal/database"
	"github.com/hitoshi/feedkit/internal/discovery"
	"github.com/hitoshi/feedkit/internal/handler"
	"github.com/hitoshi/feedkit/internal/logger"
	"github.com/hitoshi/feedkit/internal/metrics"
	"github.com/hitoshi/feedkit/internal/middleware"
	"github.com/hitoshi/feedkit/internal/repository"
	"github.com/hitoshi/feedkit/internal/security"
	"github.com/hitoshi/feedkit/internal/store"
	"github.com/hitoshi/feedkit/internal/worker/cleanup"
	"github.com/hitoshi/feedkit/internal/worker/fetch"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, requireDB bool) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load(requireDB)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。serve と worker は ctx が終了するまで戻らない。
func Run(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// 軽量サブコマンドはフル初期化をスキップする
	if cmd.Standalone() {
		if cmd == CommandParse {
			return runParse(w, args[1:])
		}
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	}

	cfg, err := Init(w, cmd.RequiresDatabase())
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("database", cfg.DatabaseURL != ""),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// components はモード間で共有する依存関係。
type components struct {
	db        *sql.DB
	store     *store.FeedStore
	client    *fetch.Client
	registry  *prometheus.Registry
	collector *metrics.Collector
	sanitizer *security.HTMLSanitizer
}

// close はDB接続を閉じる。
func (c *components) close() {
	if c.db != nil {
		c.db.Close()
	}
}

// buildComponents は保存先、フェッチクライアント、メトリクスを構築する。
// DATABASE_URL が空ならプロセス内メモリを保存先にする。
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{
		client:    fetch.NewClient(security.NewSSRFGuard(), cfg.FetchTimeout, cfg.FetchMaxSize),
		registry:  prometheus.NewRegistry(),
		sanitizer: security.NewContentSanitizer(),
	}
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.collector = metrics.NewCollector(c.registry)

	var rows repository.RowStore
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL is not set; using in-memory store")
		rows = repository.NewMemoryRowStore()
	} else {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := database.Ping(ctx, db, 5*time.Second); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		c.db = db
		rows = repository.NewPostgresRowStore(db)
	}
	c.store = store.NewFeedStore(rows, c.sanitizer)
	return c, nil
}

func (c *components) newScheduler(cfg *config.Config) *fetch.Scheduler {
	fetcher := fetch.NewFetcher(c.client, c.store, c.collector, slog.Default(), cfg.FetchInterval)
	return fetch.NewScheduler(c.store, fetcher, slog.Default(), cfg.FetchMaxConcurrent)
}

// startCleanup は記事クリーンアップジョブをバックグラウンドで開始する。
func (c *components) startCleanup(ctx context.Context, cfg *config.Config) {
	job := cleanup.NewJob(c.store, slog.Default())
	job.KeepPerFeed = cfg.ArticleKeepPerFeed
	go job.Start(ctx, cfg.CleanupInterval)
}

// newRouter はAPIルーターを構築する。返す関数でレートリミッターを停止する。
func (c *components) newRouter(cfg *config.Config) (http.Handler, func()) {
	detector := discovery.NewDetector(c.client)
	service := discovery.NewService(detector, c.client, c.store, discovery.NewFaviconFetcher(c.client))
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))

	deps := &handler.RouterDeps{
		Logger:             slog.Default(),
		CORSAllowedOrigins: cfg.CORSOrigins(),
		RateLimiter:        rateLimiter,
		Documents:          c.client,
		MaxBodySize:        cfg.ParseMaxBodySize,
		Sanitizer:          c.sanitizer,
		Recorder:           c.collector,
		Discoverer:         detector,
		Subscriber:         service,
		Feeds:              c.store,
		Subscriptions:      c.store,
		MetricsHandler:     metrics.Handler(c.registry),
	}
	// nil の *sql.DB をインターフェースに入れないようにする
	if c.db != nil {
		deps.HealthChecker = c.db
	}
	return handler.NewRouter(deps), rateLimiter.Stop
}

// runServe はAPIサーバーモードで起動する。
// メモリ保存の場合は別プロセスのワーカーと共有できないため、スケジューラも同じプロセスで動かす。
// ctx が終了するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	router, stopLimiter := c.newRouter(cfg)
	defer stopLimiter()

	if c.db == nil {
		go c.newScheduler(cfg).Start(ctx, cfg.FetchInterval)
		c.startCleanup(ctx, cfg)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FetchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、ctx が終了するまでフェッチスケジューラと記事クリーンアップを実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	slog.Info("worker starting",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
	)

	c.startCleanup(ctx, cfg)
	c.newScheduler(cfg).Start(ctx, cfg.FetchInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	return checkHealth(ctx, fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(ctx context.Context, healthURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
