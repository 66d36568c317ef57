// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordCrawlJobSuccess()
	RecordCrawlJobFailure(reason string)
	RecordCrawlCompleted(storeID string)
	RecordProviderStatus(statusCode int)
	RecordItemsUpserted(count int)
	RecordMatchSuccess()
	RecordMatchFailure(reason string)
	RecordMatchLatency(duration time.Duration)
	RecordReasoningFallback()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	crawlJobSuccess   prometheus.Counter
	crawlJobFail      *prometheus.CounterVec
	crawlCompleted    prometheus.Counter
	providerStatus    *prometheus.CounterVec
	itemsUpserted     prometheus.Counter
	matchSuccess      prometheus.Counter
	matchFail         *prometheus.CounterVec
	matchLatency      prometheus.Histogram
	reasoningFallback prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		crawlJobSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pantryman_crawl_job_success_total",
			Help: "クロールジョブ成功の合計数",
		}),
		crawlJobFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantryman_crawl_job_fail_total",
			Help: "クロールジョブ失敗の合計数（理由別）",
		}, []string{"reason"}),
		crawlCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pantryman_crawl_completed_total",
			Help: "完了したクロール実行の合計数",
		}),
		providerStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantryman_provider_status_total",
			Help: "カタログプロバイダのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		itemsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pantryman_items_upserted_total",
			Help: "アップサートされた在庫レコードの合計数",
		}),
		matchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pantryman_match_success_total",
			Help: "マッチング成功の合計数",
		}),
		matchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantryman_match_fail_total",
			Help: "マッチング失敗の合計数（理由別）",
		}, []string{"reason"}),
		matchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pantryman_match_latency_seconds",
			Help:    "マッチング処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		reasoningFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pantryman_reasoning_fallback_total",
			Help: "推論出力の解析失敗によるフォールバックの合計数",
		}),
	}

	reg.MustRegister(
		c.crawlJobSuccess,
		c.crawlJobFail,
		c.crawlCompleted,
		c.providerStatus,
		c.itemsUpserted,
		c.matchSuccess,
		c.matchFail,
		c.matchLatency,
		c.reasoningFallback,
	)

	return c
}

// RecordCrawlJobSuccess はクロールジョブの成功を記録する。
func (c *Collector) RecordCrawlJobSuccess() {
	c.crawlJobSuccess.Inc()
}

// RecordCrawlJobFailure はクロールジョブの失敗を記録する。
func (c *Collector) RecordCrawlJobFailure(reason string) {
	c.crawlJobFail.WithLabelValues(reason).Inc()
}

// RecordCrawlCompleted はクロール実行の完了を記録する。
func (c *Collector) RecordCrawlCompleted(storeID string) {
	c.crawlCompleted.Inc()
}

// RecordProviderStatus はプロバイダのHTTPステータスコードを記録する。
func (c *Collector) RecordProviderStatus(statusCode int) {
	c.providerStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordItemsUpserted はアップサートされた在庫レコード数を記録する。
func (c *Collector) RecordItemsUpserted(count int) {
	c.itemsUpserted.Add(float64(count))
}

// RecordMatchSuccess はマッチングの成功を記録する。
func (c *Collector) RecordMatchSuccess() {
	c.matchSuccess.Inc()
}

// RecordMatchFailure はマッチングの失敗を記録する。
func (c *Collector) RecordMatchFailure(reason string) {
	c.matchFail.WithLabelValues(reason).Inc()
}

// RecordMatchLatency はマッチング処理のレイテンシを記録する。
func (c *Collector) RecordMatchLatency(duration time.Duration) {
	c.matchLatency.Observe(duration.Seconds())
}

// RecordReasoningFallback は推論出力の解析失敗によるフォールバックを記録する。
func (c *Collector) RecordReasoningFallback() {
	c.reasoningFallback.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
