package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/feedkit/internal/metrics"
	"github.com/hitoshi/feedkit/internal/middleware"
	"github.com/hitoshi/feedkit/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter

	// 解析
	Documents   DocumentFetcher
	MaxBodySize int64
	Sanitizer   security.ContentSanitizer
	Recorder    metrics.Recorder

	// フィード・購読
	Discoverer    Discoverer
	Subscriber    Subscriber
	Feeds         FeedReader
	Subscriptions SubscriptionStore

	// 運用
	HealthChecker  Pinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders → CORS → RateLimit(General)
//
// 外部URLを取得するエンドポイントにはさらに RateLimit(Fetch) を適用する。
// /health と /metrics はレート制限の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins...))

	parseHandler := NewParseHandler(deps.Documents, deps.MaxBodySize, deps.Sanitizer, deps.Recorder)
	feedHandler := NewFeedHandler(deps.Discoverer, deps.Subscriber, deps.Feeds)
	subHandler := NewSubscriptionHandler(deps.Subscriptions, parseHandler)

	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		fetching := fetchLimited(deps.RateLimiter)

		// 文書解析（保存しない）。?url= の場合だけ外部取得のレート制限を受ける
		r.Route("/parse", func(r chi.Router) {
			r.Use(fetchLimitedWhenURL(deps.RateLimiter))
			r.Post("/feed", parseHandler.ParseFeed)
			r.Post("/opml", parseHandler.ParseOPML)
			r.Post("/html", parseHandler.ParseHTML)
		})

		r.With(fetching).Post("/discover", feedHandler.Discover)

		r.Route("/feeds", func(r chi.Router) {
			r.With(fetching).Post("/", feedHandler.RegisterFeed)
			r.Get("/articles", feedHandler.ListArticles)
		})

		r.With(fetchLimitedWhenURL(deps.RateLimiter)).Post("/opml/import", subHandler.ImportOPML)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", subHandler.ListSubscriptions)
			r.Delete("/", subHandler.DeleteSubscription)
			r.Post("/resume", subHandler.ResumeSubscription)
		})
	})

	return r
}

// fetchLimited は外部取得のレート制限ミドルウェアを返す。rl が nil なら何もしない。
func fetchLimited(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.FetchMiddleware()
}

// fetchLimitedWhenURL は ?url= 付きのリクエストにだけ外部取得のレート制限を適用する。
func fetchLimitedWhenURL(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	limited := fetchLimited(rl)
	return func(next http.Handler) http.Handler {
		withLimit := limited(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Has("url") {
				withLimit.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
