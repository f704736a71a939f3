// Package metrics 提供基于Prometheus的指标收集
//
// # 指标类型回顾
//
//   - Counter: 只增不减的累计值（申请数、超时处理数、同步次数）
//   - Gauge: 可增可减的瞬时值（熔断器状态、处理中的请求数）
//   - Histogram: 观测值分布（扫描耗时、退款执行耗时）
//
// # 售后业务指标
//
//	aftersales_applied_total{type,result}          售后申请（按明细计数）
//	aftersales_transitions_total{action}            状态流转
//	aftersales_timeout_cases_total{result}          超时扫描结果 processed/skipped/error
//	aftersales_timeout_sweep_duration_seconds       单次扫描耗时
//	aftersales_oms_sync_total{operation,result}     OMS同步
//	aftersales_refund_executions_total{result}      退款执行
//
// # 使用示例
//
//	metrics.InitMetrics()
//	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
//
//	metrics.IncCounterVec(metrics.CaseTransitionsTotal, map[string]string{"action": "approve"})
//
// 标签只使用有限取值（类型、动作、结果），不要把售后单号作为标签。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// initialized 标记是否已初始化（防止重复注册）
	initialized bool

	// HTTP请求相关指标

	// HTTPRequestsTotal HTTP请求总数
	// 标签：method、path（路由模板）、status
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration HTTP请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsInProgress 正在处理的HTTP请求数
	HTTPRequestsInProgress prometheus.Gauge

	// 售后业务指标

	// CasesAppliedTotal 售后申请明细数
	// 标签：type（售后类型）、result（success/failure）
	CasesAppliedTotal *prometheus.CounterVec

	// CaseTransitionsTotal 售后单状态流转次数
	// 标签：action（approve/reject/timeout/override...）
	CaseTransitionsTotal *prometheus.CounterVec

	// TimeoutCasesTotal 超时扫描处理结果
	// 标签：result（processed/skipped/error）
	TimeoutCasesTotal *prometheus.CounterVec

	// TimeoutSweepDuration 单次超时扫描耗时
	TimeoutSweepDuration prometheus.Histogram

	// OmsSyncTotal OMS同步调用
	// 标签：operation（create/sync/update_info/update_status）、result（created/changed/unchanged/failure）
	OmsSyncTotal *prometheus.CounterVec

	// RefundExecutionsTotal 退款执行
	// 标签：result（success/failure）
	RefundExecutionsTotal *prometheus.CounterVec

	// RefundExecutionDuration 退款执行耗时（含网关调用）
	RefundExecutionDuration prometheus.Histogram

	// 熔断器指标

	// CircuitBreakerState 熔断器状态 0=CLOSED, 1=OPEN, 2=HALF_OPEN
	CircuitBreakerState *prometheus.GaugeVec

	// CircuitBreakerRequests 熔断器请求总数
	// 标签：name、result（success/failure/rejected）
	CircuitBreakerRequests *prometheus.CounterVec

	// SagaCompensationsTotal Saga补偿执行总数
	SagaCompensationsTotal prometheus.Counter

	// MessagesPublishedTotal 领域事件发布总数
	// 标签：routing_key、result（success/failure）
	MessagesPublishedTotal *prometheus.CounterVec
)

// InitMetrics 初始化所有Prometheus指标
//
// 必须在程序启动时调用一次，promauto会把指标注册到默认Registry。
// 未初始化时下面的辅助函数直接忽略，单元测试无需注册指标。
func InitMetrics() {
	if initialized {
		return
	}
	initialized = true

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP请求总数",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP请求耗时（秒）",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "正在处理的HTTP请求数",
		},
	)

	CasesAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aftersales_applied_total",
			Help: "售后申请明细数",
		},
		[]string{"type", "result"},
	)

	CaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aftersales_transitions_total",
			Help: "售后单状态流转次数",
		},
		[]string{"action"},
	)

	TimeoutCasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aftersales_timeout_cases_total",
			Help: "超时自动处理结果",
		},
		[]string{"result"},
	)

	TimeoutSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "aftersales_timeout_sweep_duration_seconds",
			Help: "超时扫描耗时（秒）",
			// 一次扫描可能跨多个批次
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
		},
	)

	OmsSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aftersales_oms_sync_total",
			Help: "OMS同步调用次数",
		},
		[]string{"operation", "result"},
	)

	RefundExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aftersales_refund_executions_total",
			Help: "退款执行次数",
		},
		[]string{"result"},
	)

	RefundExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aftersales_refund_execution_duration_seconds",
			Help:    "退款执行耗时（秒）",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "熔断器状态（0=CLOSED, 1=OPEN, 2=HALF_OPEN）",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "熔断器请求总数",
		},
		[]string{"name", "result"},
	)

	SagaCompensationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_compensations_total",
			Help: "Saga补偿执行总数",
		},
	)

	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_published_total",
			Help: "领域事件发布总数",
		},
		[]string{"routing_key", "result"},
	)
}

// IncCounter 递增Counter
func IncCounter(counter prometheus.Counter) {
	if counter == nil {
		return
	}
	counter.Inc()
}

// IncCounterVec 递增CounterVec（带标签）
func IncCounterVec(counter *prometheus.CounterVec, labels map[string]string) {
	if counter == nil {
		return
	}
	counter.With(labels).Inc()
}

// AddCounterVec 按增量累加CounterVec
func AddCounterVec(counter *prometheus.CounterVec, labels map[string]string, delta float64) {
	if counter == nil || delta <= 0 {
		return
	}
	counter.With(labels).Add(delta)
}

// IncGauge 递增Gauge
func IncGauge(gauge prometheus.Gauge) {
	if gauge == nil {
		return
	}
	gauge.Inc()
}

// DecGauge 递减Gauge
func DecGauge(gauge prometheus.Gauge) {
	if gauge == nil {
		return
	}
	gauge.Dec()
}

// SetGauge 设置Gauge值
func SetGauge(gauge prometheus.Gauge, value float64) {
	if gauge == nil {
		return
	}
	gauge.Set(value)
}

// SetGaugeVec 设置GaugeVec值（带标签）
func SetGaugeVec(gauge *prometheus.GaugeVec, labels map[string]string, value float64) {
	if gauge == nil {
		return
	}
	gauge.With(labels).Set(value)
}

// ObserveHistogram 记录Histogram观测值
func ObserveHistogram(histogram prometheus.Histogram, value float64) {
	if histogram == nil {
		return
	}
	histogram.Observe(value)
}

// ObserveHistogramVec 记录HistogramVec观测值（带标签）
func ObserveHistogramVec(histogram *prometheus.HistogramVec, labels map[string]string, value float64) {
	if histogram == nil {
		return
	}
	histogram.With(labels).Observe(value)
}
