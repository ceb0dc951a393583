// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 再照合の結果ラベル
const (
	ReconcileExisting      = "existing"
	ReconcileCreated       = "created"
	ReconcileRecovered     = "recovered"
	ReconcileProviderError = "provider_error"
	ReconcileDuplicate     = "duplicate"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やミドルウェアから利用する。
type MetricsCollector interface {
	RecordReconcile(outcome string)
	RecordIdentityFetchLatency(duration time.Duration)
	RecordFollowToggle(state string)
	RecordNotificationFailure()
	RecordNotificationPublishFailure(publisher string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	reconciles           *prometheus.CounterVec
	identityFetchLatency prometheus.Histogram
	followToggles        *prometheus.CounterVec
	notificationFail     prometheus.Counter
	publishFail          *prometheus.CounterVec
	httpStatus           *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialgraph_reconcile_total",
			Help: "外部IDの再照合結果別の件数",
		}, []string{"outcome"}),
		identityFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialgraph_identity_fetch_latency_seconds",
			Help:    "認証プロバイダーからのユーザー情報取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		followToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialgraph_follow_toggle_total",
			Help: "フォロー切り替えの結果状態別の件数",
		}, []string{"state"}),
		notificationFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialgraph_notification_fail_total",
			Help: "フォロー成立後の通知作成に失敗した件数",
		}),
		publishFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialgraph_notification_publish_fail_total",
			Help: "通知イベントの配信に失敗した件数",
		}, []string{"publisher"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialgraph_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.reconciles,
		c.identityFetchLatency,
		c.followToggles,
		c.notificationFail,
		c.publishFail,
		c.httpStatus,
	)

	return c
}

// RecordReconcile は再照合の結果を記録する。
func (c *Collector) RecordReconcile(outcome string) {
	c.reconciles.WithLabelValues(outcome).Inc()
}

// RecordIdentityFetchLatency は認証プロバイダー呼び出しのレイテンシを記録する。
func (c *Collector) RecordIdentityFetchLatency(duration time.Duration) {
	c.identityFetchLatency.Observe(duration.Seconds())
}

// RecordFollowToggle はフォロー切り替え後の状態を記録する。
func (c *Collector) RecordFollowToggle(state string) {
	c.followToggles.WithLabelValues(state).Inc()
}

// RecordNotificationFailure は通知作成の失敗を記録する。
func (c *Collector) RecordNotificationFailure() {
	c.notificationFail.Inc()
}

// RecordNotificationPublishFailure は通知イベント配信の失敗を記録する。
func (c *Collector) RecordNotificationPublishFailure(publisher string) {
	c.publishFail.WithLabelValues(publisher).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
