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
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordLoginAttempt(provider string, outcome string)
	RecordSessionIssued(provider string)
	RecordMetricOperation(operation string)
	RecordClassification(classification string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginAttempts   *prometheus.CounterVec
	sessionsIssued  *prometheus.CounterVec
	recordOps       *prometheus.CounterVec
	classifications *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthlog_login_attempts_total",
			Help: "プロバイダー・結果別のログイン試行数",
		}, []string{"provider", "outcome"}),
		sessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthlog_sessions_issued_total",
			Help: "プロバイダー別の発行済みセッション数",
		}, []string{"provider"}),
		recordOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthlog_record_operations_total",
			Help: "操作種別ごとの測定レコード操作数",
		}, []string{"operation"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthlog_classifications_total",
			Help: "導出されたBMI分類の合計数",
		}, []string{"classification"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthlog_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthlog_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginAttempts,
		c.sessionsIssued,
		c.recordOps,
		c.classifications,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLoginAttempt はログイン試行をプロバイダーと結果別に記録する。
func (c *Collector) RecordLoginAttempt(provider string, outcome string) {
	c.loginAttempts.WithLabelValues(provider, outcome).Inc()
}

// RecordSessionIssued はセッション発行を記録する。
func (c *Collector) RecordSessionIssued(provider string) {
	c.sessionsIssued.WithLabelValues(provider).Inc()
}

// RecordMetricOperation は測定レコード操作を記録する。
func (c *Collector) RecordMetricOperation(operation string) {
	c.recordOps.WithLabelValues(operation).Inc()
}

// RecordClassification は導出されたBMI分類を記録する。
func (c *Collector) RecordClassification(classification string) {
	c.classifications.WithLabelValues(classification).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
