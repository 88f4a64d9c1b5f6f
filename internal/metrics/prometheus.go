package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	wsUpgradesTotal   prometheus.Counter

	authAttemptsTotal *prometheus.CounterVec

	messageTypesTotal *prometheus.CounterVec

	messagesStoredTotal    *prometheus.CounterVec
	messagesDeliveredTotal *prometheus.CounterVec
	messagesDedupedTotal   prometheus.Counter
	messagesExpiredTotal   prometheus.Counter
	queueRejectionsTotal   *prometheus.CounterVec

	forwardAttemptsTotal *prometheus.CounterVec
	forwardQueueDepth    prometheus.Gauge

	aclDeniedTotal *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediator_connections_total",
			Help: "Total number of transport connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediator_connections_active",
			Help: "Number of currently active transport connections.",
		}),
		wsUpgradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediator_websocket_upgrades_total",
			Help: "Total number of WebSocket upgrades completed.",
		}),
		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediator_auth_attempts_total",
			Help: "Total number of authentication attempts by stage and result.",
		}, []string{"stage", "result"}),
		messageTypesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediator_message_types_total",
			Help: "Total number of DIDComm messages processed by type URI.",
		}, []string{"type"}),
		messagesStoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediator_messages_stored_total",
			Help: "Total number of messages stored in a mailbox, by direction.",
		}, []string{"direction"}),
		messagesDeliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediator_messages_delivered_total",
			Help: "Total number of messages delivered (live or pickup), by direction.",
		}, []string{"direction"}),
		messagesDedupedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediator_messages_deduped_total",
			Help: "Total number of inserts suppressed by content-hash dedupe.",
		}),
		messagesExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediator_messages_expired_total",
			Help: "Total number of messages removed by the expiry sweeper.",
		}),
		queueRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediator_queue_rejections_total",
			Help: "Total number of mailbox inserts rejected, by reason.",
		}, []string{"reason"}),
		forwardAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediator_forward_attempts_total",
			Help: "Total number of forwarding attempts, by result.",
		}, []string{"result"}),
		forwardQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediator_forward_queue_depth",
			Help: "Current depth of the forwarding work queue.",
		}),
		aclDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediator_acl_denied_total",
			Help: "Total number of ACL denials, by rule.",
		}, []string{"rule"}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.wsUpgradesTotal,
		c.authAttemptsTotal,
		c.messageTypesTotal,
		c.messagesStoredTotal,
		c.messagesDeliveredTotal,
		c.messagesDedupedTotal,
		c.messagesExpiredTotal,
		c.queueRejectionsTotal,
		c.forwardAttemptsTotal,
		c.forwardQueueDepth,
		c.aclDeniedTotal,
	)

	return c
}

func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

func (c *PrometheusCollector) WebSocketUpgraded() {
	c.wsUpgradesTotal.Inc()
}

func (c *PrometheusCollector) AuthAttempt(stage string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(stage, result).Inc()
}

func (c *PrometheusCollector) MessageTypeProcessed(typeURI string) {
	c.messageTypesTotal.WithLabelValues(typeURI).Inc()
}

func (c *PrometheusCollector) MessageStored(direction string) {
	c.messagesStoredTotal.WithLabelValues(direction).Inc()
}

func (c *PrometheusCollector) MessageDelivered(direction string) {
	c.messagesDeliveredTotal.WithLabelValues(direction).Inc()
}

func (c *PrometheusCollector) MessageDeduped() {
	c.messagesDedupedTotal.Inc()
}

func (c *PrometheusCollector) MessageExpired() {
	c.messagesExpiredTotal.Inc()
}

func (c *PrometheusCollector) QueueRejected(reason string) {
	c.queueRejectionsTotal.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) ForwardAttempt(result string) {
	c.forwardAttemptsTotal.WithLabelValues(result).Inc()
}

func (c *PrometheusCollector) ForwardQueueDepth(n int) {
	c.forwardQueueDepth.Set(float64(n))
}

func (c *PrometheusCollector) ACLDenied(rule string) {
	c.aclDeniedTotal.WithLabelValues(rule).Inc()
}
