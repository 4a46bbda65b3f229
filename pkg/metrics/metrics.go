// Package metrics 提供 Prometheus 指标集合，覆盖 HTTP、定价计算、隐含波动率求解、缓存与 outbox 投递
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gbsm"

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 定价类计算次数，按操作、期权类型与结果区分
	CalculationsTotal *prometheus.CounterVec
	// 定价类计算耗时
	CalculationDuration *prometheus.HistogramVec
	// 隐含波动率迭代次数分布
	ImpliedVolIterations prometheus.Histogram
	// 未收敛的隐含波动率求解次数
	ImpliedVolNotConverged prometheus.Counter

	// 缓存命中情况
	CacheRequestsTotal *prometheus.CounterVec

	// outbox 投递结果
	OutboxMessagesTotal *prometheus.CounterVec
	// 熔断器状态（0: Closed, 1: Half-Open, 2: Open）
	BreakerState *prometheus.GaugeVec
}

// New 创建并注册指标实例，使用独立 Registry
func New(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "Total HTTP requests",
			ConstLabels: constLabels,
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "path"}),
		CalculationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "calculations_total",
			Help:        "Total pricing calculations",
			ConstLabels: constLabels,
		}, []string{"operation", "option_type", "result"}),
		CalculationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "calculation_duration_seconds",
			Help:        "Pricing calculation duration in seconds",
			ConstLabels: constLabels,
			Buckets:     []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 0.1},
		}, []string{"operation"}),
		ImpliedVolIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "implied_vol_iterations",
			Help:        "Newton-Raphson iterations per implied volatility solve",
			ConstLabels: constLabels,
			Buckets:     []float64{1, 2, 3, 5, 8, 13, 21, 50, 100},
		}),
		ImpliedVolNotConverged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "implied_vol_not_converged_total",
			Help:        "Implied volatility solves that stopped before reaching tolerance",
			ConstLabels: constLabels,
		}),
		CacheRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "cache_requests_total",
			Help:        "Latest pricing result cache lookups",
			ConstLabels: constLabels,
		}, []string{"result"}),
		OutboxMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "outbox_messages_total",
			Help:        "Outbox relay results",
			ConstLabels: constLabels,
		}, []string{"result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "circuit_breaker_state",
			Help:        "Circuit breaker state (0: Closed, 1: Half-Open, 2: Open)",
			ConstLabels: constLabels,
		}, []string{"name"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CalculationsTotal,
		m.CalculationDuration,
		m.ImpliedVolIterations,
		m.ImpliedVolNotConverged,
		m.CacheRequestsTotal,
		m.OutboxMessagesTotal,
		m.BreakerState,
	)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCalculation 记录一次定价类计算
func (m *Metrics) RecordCalculation(operation, optionType string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.CalculationsTotal.WithLabelValues(operation, optionType, result).Inc()
	m.CalculationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordImpliedVol 记录隐含波动率求解的迭代次数与收敛情况
func (m *Metrics) RecordImpliedVol(iterations int, converged bool) {
	if m == nil {
		return
	}
	m.ImpliedVolIterations.Observe(float64(iterations))
	if !converged {
		m.ImpliedVolNotConverged.Inc()
	}
}

// RecordCache 记录缓存查询结果：hit, miss, error
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.CacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordOutbox 记录 outbox 投递结果：sent, retry, failed
func (m *Metrics) RecordOutbox(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutboxMessagesTotal.WithLabelValues(result).Add(float64(n))
}

// SetBreakerState 更新熔断器状态
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}
