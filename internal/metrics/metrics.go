// Package metrics 提供 chainnet 的 Prometheus 指标
//
// 所有方法在 nil *Metrics 上调用都是空操作，组件在未启用指标时无需判空。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainnet"

// 请求结果标签
const (
	OutcomeSuccess      = "success"
	OutcomeNotConnected = "not_connected"
	OutcomeRefused      = "refused"
	OutcomeCanceled     = "canceled"
	OutcomeUnknown      = "unknown_protocol"
)

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	inboundRequests  *prometheus.CounterVec
	inboundRejected  *prometheus.CounterVec
	staleIDs         *prometheus.CounterVec
	dhtQueries       *prometheus.CounterVec
	discoveryEvents  *prometheus.CounterVec
	pingRTT          prometheus.Histogram
	commands         *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	connectedPeers   prometheus.Gauge
	reputationBanned prometheus.Counter
}

// New 创建指标集合并注册到独立的 Registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reqresp",
			Name:      "requests_total",
			Help:      "Outbound requests by protocol and outcome.",
		}, []string{"protocol", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reqresp",
			Name:      "request_duration_seconds",
			Help:      "Time from request dispatch to response.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"protocol"}),
		inboundRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reqresp",
			Name:      "inbound_requests_total",
			Help:      "Inbound requests delivered to the application.",
		}, []string{"protocol"}),
		inboundRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reqresp",
			Name:      "inbound_rejected_total",
			Help:      "Inbound requests rejected by reason.",
		}, []string{"protocol", "reason"}),
		staleIDs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reqresp",
			Name:      "stale_ids_total",
			Help:      "Transport events referencing unknown request ids.",
		}, []string{"protocol"}),
		dhtQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dht",
			Name:      "queries_total",
			Help:      "DHT queries by kind and result.",
		}, []string{"kind", "result"}),
		discoveryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "events_total",
			Help:      "Discovery events emitted by kind.",
		}, []string{"kind"}),
		pingRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "ping_rtt_seconds",
			Help:      "Observed ping round-trip times.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "commands_total",
			Help:      "Commands processed by the backend worker.",
		}, []string{"command"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber was full.",
		}),
		connectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "connected_peers",
			Help:      "Currently connected peers.",
		}),
		reputationBanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peerstore",
			Name:      "banned_total",
			Help:      "Peers whose reputation fell below the ban threshold.",
		}),
	}

	reg.MustRegister(
		m.requests,
		m.requestDuration,
		m.inboundRequests,
		m.inboundRejected,
		m.staleIDs,
		m.dhtQueries,
		m.discoveryEvents,
		m.pingRTT,
		m.commands,
		m.eventsDropped,
		m.connectedPeers,
		m.reputationBanned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ============================================================================
//                              请求-响应
// ============================================================================

// RequestFinished 记录出站请求结果
func (m *Metrics) RequestFinished(protocol, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(protocol, outcome).Inc()
	if outcome == OutcomeSuccess {
		m.requestDuration.WithLabelValues(protocol).Observe(elapsed.Seconds())
	}
}

// InboundDelivered 记录投递给应用的入站请求
func (m *Metrics) InboundDelivered(protocol string) {
	if m == nil {
		return
	}
	m.inboundRequests.WithLabelValues(protocol).Inc()
}

// InboundRejected 记录被拒绝的入站请求
func (m *Metrics) InboundRejected(protocol, reason string) {
	if m == nil {
		return
	}
	m.inboundRejected.WithLabelValues(protocol, reason).Inc()
}

// StaleID 记录过期关联标识
func (m *Metrics) StaleID(protocol string) {
	if m == nil {
		return
	}
	m.staleIDs.WithLabelValues(protocol).Inc()
}

// ============================================================================
//                              发现
// ============================================================================

// DHTQuery 记录 DHT 查询结果
func (m *Metrics) DHTQuery(kind, result string) {
	if m == nil {
		return
	}
	m.dhtQueries.WithLabelValues(kind, result).Inc()
}

// DiscoveryEvent 记录发现事件
func (m *Metrics) DiscoveryEvent(kind string) {
	if m == nil {
		return
	}
	m.discoveryEvents.WithLabelValues(kind).Inc()
}

// PingRTT 记录 ping 往返时间
func (m *Metrics) PingRTT(rtt time.Duration) {
	if m == nil {
		return
	}
	m.pingRTT.Observe(rtt.Seconds())
}

// ============================================================================
//                              服务
// ============================================================================

// Command 记录处理的命令
func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}

// EventDropped 记录丢弃的事件
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// SetConnectedPeers 更新连接数
func (m *Metrics) SetConnectedPeers(n int) {
	if m == nil {
		return
	}
	m.connectedPeers.Set(float64(n))
}

// PeerBanned 记录封禁
func (m *Metrics) PeerBanned() {
	if m == nil {
		return
	}
	m.reputationBanned.Inc()
}
