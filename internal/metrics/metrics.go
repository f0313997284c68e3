// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 公開アクセス操作の種別
const (
	OperationCheck  = "check"
	OperationVerify = "verify"
	OperationList   = "list"
	OperationFetch  = "fetch"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やミドルウェアから利用する。
type MetricsCollector interface {
	RecordAccessAttempt(operation, result string)
	RecordVerifyLatency(duration time.Duration)
	RecordLogin(success bool)
	RecordRateLimited(policy string)
	RecordAuditWriteFailure()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	accessAttempts    *prometheus.CounterVec
	verifyLatency     prometheus.Histogram
	logins            *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	auditWriteFailure prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		accessAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mp3transcriber_public_access_total",
			Help: "公開アクセス操作の結果別件数",
		}, []string{"operation", "result"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mp3transcriber_public_verify_latency_seconds",
			Help:    "パスワード検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mp3transcriber_login_total",
			Help: "ログイン試行の結果別件数",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mp3transcriber_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"policy"}),
		auditWriteFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mp3transcriber_audit_write_failures_total",
			Help: "監査ログの書き込み失敗数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mp3transcriber_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.accessAttempts,
		c.verifyLatency,
		c.logins,
		c.rateLimited,
		c.auditWriteFailure,
		c.httpStatus,
	)

	return c
}

// RecordAccessAttempt は公開アクセス操作の結果を記録する。
// resultは "success" または監査ログと同じ失敗理由。
func (c *Collector) RecordAccessAttempt(operation, result string) {
	c.accessAttempts.WithLabelValues(operation, result).Inc()
}

// RecordVerifyLatency はパスワード検証のレイテンシを記録する。
func (c *Collector) RecordVerifyLatency(duration time.Duration) {
	c.verifyLatency.Observe(duration.Seconds())
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(policy string) {
	c.rateLimited.WithLabelValues(policy).Inc()
}

// RecordAuditWriteFailure は監査ログの書き込み失敗を記録する。
func (c *Collector) RecordAuditWriteFailure() {
	c.auditWriteFailure.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordAccessAttempt(string, string) {}
func (Nop) RecordVerifyLatency(time.Duration)  {}
func (Nop) RecordLogin(bool)                   {}
func (Nop) RecordRateLimited(string)           {}
func (Nop) RecordAuditWriteFailure()           {}
func (Nop) RecordHTTPStatus(int)               {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
