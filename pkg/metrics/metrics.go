// Package metrics 提供 Prometheus 指标定义与暴露
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/bankledger/pkg/logger"
)

const namespace = "ledger"

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// gRPC 请求计数
	GRPCRequestsTotal *prometheus.CounterVec
	// gRPC 请求耗时
	GRPCRequestDuration *prometheus.HistogramVec

	// 业务指标
	TransactionsTotal    *prometheus.CounterVec
	TransferDuration     prometheus.Histogram
	LockWaitDuration     prometheus.Histogram
	NotificationsDropped prometheus.Counter
	NotificationsFailed  prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "Total HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method", "path"}),

		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "grpc_requests_total",
			Help:        "Total gRPC requests",
			ConstLabels: labels,
		}, []string{"method", "code"}),
		GRPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "grpc_request_duration_seconds",
			Help:        "gRPC request duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method"}),

		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transactions_total",
			Help:        "Ledger transactions by type and outcome",
			ConstLabels: labels,
		}, []string{"type", "status"}),
		TransferDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "transfer_duration_seconds",
			Help:        "Time spent executing a posting, lock wait included",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
		LockWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "lock_wait_seconds",
			Help:        "Time spent waiting for account locks",
			Buckets:     []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 3},
			ConstLabels: labels,
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "notifications_dropped_total",
			Help:        "Notifications dropped because the dispatch queue was full",
			ConstLabels: labels,
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "notifications_failed_total",
			Help:        "Notifications the publisher failed to deliver",
			ConstLabels: labels,
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GRPCRequestsTotal,
		m.GRPCRequestDuration,
		m.TransactionsTotal,
		m.TransferDuration,
		m.LockWaitDuration,
		m.NotificationsDropped,
		m.NotificationsFailed,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// Handler 返回 Prometheus 抓取端点
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// 以下方法允许 nil 接收者，未启用指标时调用方无需判空

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordGRPCRequest 记录 gRPC 请求
func (m *Metrics) RecordGRPCRequest(method, code string, seconds float64) {
	if m == nil {
		return
	}
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(seconds)
}

// RecordTransaction 记录一笔交易的结果
func (m *Metrics) RecordTransaction(txType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(txType, status).Inc()
	m.TransferDuration.Observe(seconds)
}

// ObserveLockWait 记录锁等待时间
func (m *Metrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.LockWaitDuration.Observe(seconds)
}

// NotificationDropped 记录被丢弃的通知
func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

// NotificationFailed 记录发送失败的通知
func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.NotificationsFailed.Inc()
}
