package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-home/pkg/types"
)

const namespace = "home"

// ResultOK 成功结果标签
const ResultOK = "ok"

// Metrics 指标集合
type Metrics struct {
	reg *prometheus.Registry

	handshakes   *prometheus.CounterVec
	sessions     prometheus.Gauge
	pairings     prometheus.Gauge
	requests     *prometheus.CounterVec
	calls        *prometheus.CounterVec
	pendingCalls prometheus.Gauge
	callDuration prometheus.Histogram
}

// New 创建指标集合并注册到新的 Registry
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Session handshakes by result.",
		}, []string{"result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Active sessions attached to the registry.",
		}),
		pairings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pairings",
			Help:      "Valid pairing records.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Session requests by kind and result.",
		}, []string{"kind", "result"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "calls_total",
			Help:      "Relayed calls by outcome.",
		}, []string{"outcome"}),
		pendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "calls_pending",
			Help:      "Relayed calls waiting for the callee.",
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "call_duration_seconds",
			Help:      "Time from forwarding a call to its completion.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.reg.MustRegister(
		m.handshakes, m.sessions, m.pairings, m.requests,
		m.calls, m.pendingCalls, m.callDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler 返回 /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ============================================================================
//                              记录
// ============================================================================

// Handshake 记录一次握手
func (m *Metrics) Handshake(err error) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(ResultLabel(err)).Inc()
}

// SessionOpened 活跃会话加一
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SessionClosed 活跃会话减一
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

// SetPairings 设置配对记录数
func (m *Metrics) SetPairings(n int) {
	if m == nil {
		return
	}
	m.pairings.Set(float64(n))
}

// Request 记录一次会话请求
func (m *Metrics) Request(kind string, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, ResultLabel(err)).Inc()
}

// CallStarted 记录转发开始
func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.pendingCalls.Inc()
}

// CallFinished 记录已转发调用的结束
func (m *Metrics) CallFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.pendingCalls.Dec()
	m.calls.WithLabelValues(outcome).Inc()
	m.callDuration.Observe(d.Seconds())
}

// CallRejected 记录未转发即被拒绝的调用
func (m *Metrics) CallRejected(err error) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(ResultLabel(err)).Inc()
}

// ResultLabel 把错误映射为标签值：nil 为 ok，否则为首个错误码名称
func ResultLabel(err error) string {
	if err == nil {
		return ResultOK
	}
	return strings.ReplaceAll(types.CodesOf(err)[0].String(), " ", "_")
}
