// Package metrics 提供 Prometheus 指标收集
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标收集器，nil 接收者上的记录方法为空操作
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	referralVisitsTotal   *prometheus.CounterVec
	attributionsTotal     *prometheus.CounterVec
	commissionAmountTotal prometheus.Counter
	withdrawalsTotal      *prometheus.CounterVec
	paymentsTotal         *prometheus.CounterVec
	webhookEventsTotal    *prometheus.CounterVec
	notificationsTotal    *prometheus.CounterVec
	schedulerRunsTotal    *prometheus.CounterVec
}

var defaultMetrics *Metrics

// Init 在默认注册表上初始化指标收集器
func Init(namespace string) *Metrics {
	defaultMetrics = New(namespace, prometheus.DefaultRegisterer)
	return defaultMetrics
}

// New 在指定注册表上创建指标收集器
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "school_portal"
	}
	f := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	return &Metrics{
		httpRequestsTotal: counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status"),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		}),
		referralVisitsTotal: counter("referral_visits_total", "Referral visit capture results", "result"),
		attributionsTotal:   counter("attributions_total", "Commission attribution outcomes", "outcome", "path"),
		commissionAmountTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_amount_total",
			Help:      "Sum of commission credited to affiliates",
		}),
		withdrawalsTotal:   counter("withdrawals_total", "Withdrawal workflow transitions", "status"),
		paymentsTotal:      counter("payments_total", "Payment verifications", "purpose", "status"),
		webhookEventsTotal: counter("webhook_events_total", "Payment gateway webhook events", "event", "result"),
		notificationsTotal: counter("notifications_total", "Outbound notifications", "channel", "result"),
		schedulerRunsTotal: counter("scheduler_runs_total", "Background task runs", "task", "result"),
	}
}

// GetMetrics 获取默认指标收集器
func GetMetrics() *Metrics {
	if defaultMetrics == nil {
		return Init("")
	}
	return defaultMetrics
}

// Middleware 返回 Gin 中间件
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()

		c.Next()

		m.httpRequestsInFlight.Dec()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 Prometheus HTTP 处理器
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordReferralVisit result: recorded, duplicate, invalid_code, rate_limited
func (m *Metrics) RecordReferralVisit(result string) {
	if m == nil {
		return
	}
	m.referralVisitsTotal.WithLabelValues(result).Inc()
}

// RecordAttribution 记录归因结果，committed 时累加佣金额
func (m *Metrics) RecordAttribution(outcome, path string, commission float64) {
	if m == nil {
		return
	}
	m.attributionsTotal.WithLabelValues(outcome, path).Inc()
	if commission > 0 {
		m.commissionAmountTotal.Add(commission)
	}
}

// RecordWithdrawal 记录提现状态流转
func (m *Metrics) RecordWithdrawal(status string) {
	if m == nil {
		return
	}
	m.withdrawalsTotal.WithLabelValues(status).Inc()
}

// RecordPayment 记录支付核验
func (m *Metrics) RecordPayment(purpose, status string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(purpose, status).Inc()
}

// RecordWebhook 记录网关回调
func (m *Metrics) RecordWebhook(event, result string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(event, result).Inc()
}

// RecordNotification 记录通知发送
func (m *Metrics) RecordNotification(channel, result string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(channel, result).Inc()
}

// RecordSchedulerRun 记录定时任务执行
func (m *Metrics) RecordSchedulerRun(task, result string) {
	if m == nil {
		return
	}
	m.schedulerRunsTotal.WithLabelValues(task, result).Inc()
}
