package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsObserve(t *testing.T) {
	m := New(nil)
	m.ObserveInbound("opt_in", "replied")
	m.ObserveOutbound("broadcast", "SENT")
	m.ObserveSendLatency("SENT", 0.5)
	m.ObserveLinkClick()
}

func TestMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveOutbound("reply", "FAILED")
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveInbound("opt_out", "replied")
	m.ObserveOutbound("broadcast", "SENT")
	m.ObserveSendLatency("FAILED", 0.1)
	m.ObserveLinkClick()
}
