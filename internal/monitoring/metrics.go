package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 账号指标
	SignupsTotal prometheus.Counter
	SigninsTotal *prometheus.CounterVec

	// 邮件指标
	MessagesCreated prometheus.Counter
	MessagesDeleted prometheus.Counter
	MessagesPurged  prometheus.Counter

	// 附件指标
	AttachmentDownloads *prometheus.CounterVec
	AttachmentSize      prometheus.Histogram

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 连接指标
	WebsocketClients prometheus.Gauge
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		SignupsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webmail_signups_total",
				Help: "Total number of user signups",
			},
		),

		SigninsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webmail_signins_total",
				Help: "Total number of signin attempts",
			},
			[]string{"result"},
		),

		MessagesCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webmail_messages_created_total",
				Help: "Total number of messages created",
			},
		),

		MessagesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webmail_messages_deleted_total",
				Help: "Total number of one-sided message deletions",
			},
		),

		MessagesPurged: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webmail_messages_purged_total",
				Help: "Total number of messages physically removed",
			},
		),

		AttachmentDownloads: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webmail_attachment_downloads_total",
				Help: "Total number of attachment download attempts",
			},
			[]string{"result"},
		),

		AttachmentSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webmail_attachment_size_bytes",
				Help:    "Uploaded attachment size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 16),
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webmail_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webmail_panics_total",
				Help: "Total number of panics",
			},
		),

		WebsocketClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webmail_websocket_clients",
				Help: "Number of connected websocket clients",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSignup 记录用户注册
func (m *Metrics) RecordSignup() {
	m.SignupsTotal.Inc()
}

// RecordSignin 记录登录尝试
func (m *Metrics) RecordSignin(result string) {
	m.SigninsTotal.WithLabelValues(result).Inc()
}

// RecordMessageCreated 记录邮件创建
func (m *Metrics) RecordMessageCreated() {
	m.MessagesCreated.Inc()
}

// RecordMessageDeleted 记录单方删除
func (m *Metrics) RecordMessageDeleted() {
	m.MessagesDeleted.Inc()
}

// RecordMessagePurged 记录物理删除
func (m *Metrics) RecordMessagePurged() {
	m.MessagesPurged.Inc()
}

// RecordAttachmentDownload 记录附件下载尝试
func (m *Metrics) RecordAttachmentDownload(result string) {
	m.AttachmentDownloads.WithLabelValues(result).Inc()
}

// RecordAttachmentSize 记录上传附件大小
func (m *Metrics) RecordAttachmentSize(size int64) {
	m.AttachmentSize.Observe(float64(size))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// WebsocketClientConnected 在线连接数加一
func (m *Metrics) WebsocketClientConnected() {
	m.WebsocketClients.Inc()
}

// WebsocketClientDisconnected 在线连接数减一
func (m *Metrics) WebsocketClientDisconnected() {
	m.WebsocketClients.Dec()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
