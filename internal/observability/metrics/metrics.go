package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for the messaging core.
type Metrics struct {
	inboundTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	sendLatency     *prometheus.HistogramVec
	linkClicksTotal prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanctuary",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound SMS webhooks",
		}, []string{"intent", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanctuary",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound SMS sends",
		}, []string{"kind", "status"}),
		sendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sanctuary",
			Subsystem: "broadcast",
			Name:      "send_latency_seconds",
			Help:      "Latency of per-recipient broadcast sends",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		linkClicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sanctuary",
			Subsystem: "links",
			Name:      "clicks_total",
			Help:      "Total short link redirects served",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.sendLatency, m.linkClicksTotal)
	return m
}

func (m *Metrics) ObserveInbound(intent, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(intent, outcome).Inc()
}

func (m *Metrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveSendLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.sendLatency.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) ObserveLinkClick() {
	if m == nil {
		return
	}
	m.linkClicksTotal.Inc()
}
