// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・Webhook突合・Airtableクライアントから利用する。
type MetricsCollector interface {
	RecordSubmission(result string)
	RecordAirtableStatus(statusCode int)
	RecordTokenRefresh()
	RecordWebhookRecord(outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	submissions    *prometheus.CounterVec
	airtableStatus *prometheus.CounterVec
	tokenRefresh   prometheus.Counter
	webhookRecords *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_submissions_total",
			Help: "回答受付の結果別の合計数",
		}, []string{"result"}),
		airtableStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_airtable_status_total",
			Help: "Airtable APIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		tokenRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formbridge_token_refresh_total",
			Help: "アクセストークンのリフレッシュ試行の合計数",
		}),
		webhookRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_webhook_records_total",
			Help: "Webhook突合のレコード単位の結果別の合計数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "formbridge_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.submissions,
		c.airtableStatus,
		c.tokenRefresh,
		c.webhookRecords,
		c.httpStatus,
	)

	return c
}

// RecordSubmission は回答受付の結果を記録する。
func (c *Collector) RecordSubmission(result string) {
	c.submissions.WithLabelValues(result).Inc()
}

// RecordAirtableStatus はAirtable APIのステータスコードを記録する。
func (c *Collector) RecordAirtableStatus(statusCode int) {
	c.airtableStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordTokenRefresh はトークンリフレッシュの試行を記録する。
func (c *Collector) RecordTokenRefresh() {
	c.tokenRefresh.Inc()
}

// RecordWebhookRecord はWebhook突合のレコード単位の結果を記録する。
func (c *Collector) RecordWebhookRecord(outcome string) {
	c.webhookRecords.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
