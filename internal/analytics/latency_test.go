package analytics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctuaryhq/sanctuary/internal/observability/metrics"
)

func TestSnapshotSendLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	for _, seconds := range []float64{0.05, 0.2, 0.2, 0.9, 3.0} {
		m.ObserveSendLatency("SENT", seconds)
	}
	// Failed sends must not skew the percentiles.
	m.ObserveSendLatency("FAILED", 30.0)

	snap := SnapshotSendLatency(reg)

	assert.Equal(t, int64(5), snap.Total)
	assert.InDelta(t, 3750.0, snap.P90Ms, 0.01)
	assert.InDelta(t, 4375.0, snap.P95Ms, 0.01)

	require.NotEmpty(t, snap.Buckets)
	var quarterSecond *LatencyBucket
	for i := range snap.Buckets {
		if snap.Buckets[i].LeSeconds == 0.25 {
			quarterSecond = &snap.Buckets[i]
		}
	}
	require.NotNil(t, quarterSecond)
	assert.Equal(t, int64(2), quarterSecond.Count)
}

func TestSnapshotSendLatencyOverflowBucket(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveSendLatency("SENT", 42.0)

	snap := SnapshotSendLatency(reg)

	require.Equal(t, int64(1), snap.Total)
	last := snap.Buckets[len(snap.Buckets)-1]
	assert.Equal(t, ">10s", last.Label)
	assert.Equal(t, int64(1), last.Count)
}

func TestSnapshotSendLatencyEmptyRegistry(t *testing.T) {
	snap := SnapshotSendLatency(prometheus.NewRegistry())

	assert.Zero(t, snap.Total)
	assert.Empty(t, snap.Buckets)
	assert.Zero(t, snap.P95Ms)
}

func TestSnapshotSendLatencyOnlyFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveSendLatency("FAILED", 1.5)

	snap := SnapshotSendLatency(reg)
	assert.Zero(t, snap.Total)
}
