// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder は解析・取得処理から呼ばれるメトリクス記録のインターフェース。
type Recorder interface {
	RecordParse(kind string, duration time.Duration, err error)
	RecordArticlesParsed(count int)
	RecordFetch(statusCode int, duration time.Duration, err error)
	RecordArticlesStored(count int)
}

// Collector はPrometheusメトリクスを収集する Recorder の実装。
type Collector struct {
	parseTotal     *prometheus.CounterVec
	parseLatency   *prometheus.HistogramVec
	articlesParsed prometheus.Counter
	fetchTotal     *prometheus.CounterVec
	fetchStatus    *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	articlesStored prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		parseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedkit_parse_total",
			Help: "文書種別・結果別の解析数",
		}, []string{"kind", "result"}),
		parseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedkit_parse_duration_seconds",
			Help:    "文書の解析時間（秒）",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"kind"}),
		articlesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedkit_articles_parsed_total",
			Help: "解析した記事の合計数",
		}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedkit_fetch_total",
			Help: "結果別のフェッチ数",
		}, []string{"result"}),
		fetchStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedkit_fetch_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedkit_fetch_duration_seconds",
			Help:    "フェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		articlesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedkit_articles_stored_total",
			Help: "保存（追加・更新）した記事の合計数",
		}),
	}

	reg.MustRegister(
		c.parseTotal,
		c.parseLatency,
		c.articlesParsed,
		c.fetchTotal,
		c.fetchStatus,
		c.fetchLatency,
		c.articlesStored,
	)
	return c
}

// RecordParse は解析1回の結果と所要時間を記録する。kind は feed / opml / html。
func (c *Collector) RecordParse(kind string, duration time.Duration, err error) {
	c.parseTotal.WithLabelValues(kind, resultLabel(err)).Inc()
	c.parseLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordArticlesParsed は解析で得た記事数を加算する。
func (c *Collector) RecordArticlesParsed(count int) {
	c.articlesParsed.Add(float64(count))
}

// RecordFetch はフェッチ1回の結果を記録する。statusCode が0なら応答なし。
func (c *Collector) RecordFetch(statusCode int, duration time.Duration, err error) {
	c.fetchTotal.WithLabelValues(resultLabel(err)).Inc()
	if statusCode > 0 {
		c.fetchStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	}
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordArticlesStored は保存した記事数を加算する。
func (c *Collector) RecordArticlesStored(count int) {
	c.articlesStored.Add(float64(count))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しない Recorder。
type Nop struct{}

func (Nop) RecordParse(string, time.Duration, error) {}
func (Nop) RecordArticlesParsed(int) {}
func (Nop) RecordFetch(int, time.Duration, error) {}
func (Nop) RecordArticlesStored(int) {}
