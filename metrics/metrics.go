package metrics

import (
	"strconv"
	"time"

	"github.com/forever-free1/FlashKV/storage/logstore"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 收集存储引擎的运行指标
type Metrics struct {
	ops        *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	erases     *prometheus.CounterVec
	compacts   prometheus.Counter
	moved      prometheus.Counter
	pageStates *prometheus.GaugeVec
}

// New 创建指标并注册到 reg
// 参数：
//   - reg: 注册表，为 nil 时使用 prometheus.DefaultRegisterer
//
// 返回：
//   - *Metrics: 可以通过 logstore.WithRecorder 传给引擎
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flashkv",
			Name:      "operations_total",
			Help:      "存储操作次数",
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flashkv",
			Name:      "errors_total",
			Help:      "按错误分类统计的失败操作次数",
		}, []string{"op", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flashkv",
			Name:      "operation_duration_seconds",
			Help:      "存储操作耗时",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),
		erases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flashkv",
			Name:      "page_erases_total",
			Help:      "各页的擦除次数",
		}, []string{"page"}),
		compacts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flashkv",
			Name:      "compactions_total",
			Help:      "回收最旧页的次数",
		}),
		moved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flashkv",
			Name:      "compaction_moved_items_total",
			Help:      "回收时搬迁的记录数",
		}),
		pageStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flashkv",
			Name:      "pages",
			Help:      "各状态的页数量",
		}, []string{"state"}),
	}
	reg.MustRegister(m.ops, m.errors, m.latency, m.erases, m.compacts, m.moved, m.pageStates)
	return m
}

// ObserveOp 记录一次操作
func (m *Metrics) ObserveOp(op string, kind string, d time.Duration) {
	m.ops.WithLabelValues(op).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
	if kind != "" {
		m.errors.WithLabelValues(op, kind).Inc()
	}
}

// PageErased 记录一次页擦除
func (m *Metrics) PageErased(page int) {
	m.erases.WithLabelValues(strconv.Itoa(page)).Inc()
}

// Compacted 记录一次回收
func (m *Metrics) Compacted(moved int) {
	m.compacts.Inc()
	m.moved.Add(float64(moved))
}

// PageStates 更新各状态的页数量
func (m *Metrics) PageStates(empty, open, closed, dirty int) {
	m.pageStates.WithLabelValues("empty").Set(float64(empty))
	m.pageStates.WithLabelValues("open").Set(float64(open))
	m.pageStates.WithLabelValues("closed").Set(float64(closed))
	m.pageStates.WithLabelValues("dirty").Set(float64(dirty))
}

// 确保 Metrics 实现了 logstore.Recorder 接口
var _ logstore.Recorder = (*Metrics)(nil)
