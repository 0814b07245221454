package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 结果标签
const (
	resultSuccess      = "success"
	resultInsufficient = "insufficient"
	resultConflict     = "conflict"
	resultRejected     = "rejected"
	resultError        = "error"
)

// Metrics 库存核心指标
type Metrics struct {
	stockAdjustments *prometheus.CounterVec
	allocations      *prometheus.CounterVec
	releases         *prometheus.CounterVec
	releaseDuration  prometheus.Histogram
	lowStockEvents   prometheus.Counter
}

// NewMetrics 创建并注册指标，reg 为 nil 时返回不注册的实例
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stockAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimo_stock_adjustments_total",
			Help: "Stock ledger adjustments by movement type and result",
		}, []string{"movement_type", "result"}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimo_stock_allocations_total",
			Help: "Allocation batches by channel and result",
		}, []string{"channel", "result"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimo_stock_bom_releases_total",
			Help: "BOM release attempts by result",
		}, []string{"result"}),
		releaseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nimo_stock_bom_release_duration_seconds",
			Help:    "BOM release latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		lowStockEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimo_stock_low_stock_events_total",
			Help: "Adjustments that left a material at or below its minimum stock level",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.stockAdjustments, m.allocations, m.releases, m.releaseDuration, m.lowStockEvents)
	}
	return m
}

func (m *Metrics) adjustment(movementType, result string) {
	if m == nil {
		return
	}
	m.stockAdjustments.WithLabelValues(movementType, result).Inc()
}

func (m *Metrics) allocation(channel, result string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) release(result string, seconds float64) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(result).Inc()
	m.releaseDuration.Observe(seconds)
}

func (m *Metrics) lowStock() {
	if m == nil {
		return
	}
	m.lowStockEvents.Inc()
}
