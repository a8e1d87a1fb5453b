package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelay(reg)

	m.SetConnections(3)
	m.Frame(FrameBroadcast)
	m.Frame(FrameBroadcast)
	m.Frame(FrameMalformed)
	m.Dropped()
	m.Rejected()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConnectionsGauge()))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FrameCount(FrameBroadcast)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FrameCount(FrameMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedCount()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedCount()))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestNilRelayIsNoop(t *testing.T) {
	var m *Relay
	assert.NotPanics(t, func() {
		m.SetConnections(1)
		m.Frame(FrameIgnored)
		m.Dropped()
		m.Rejected()
	})
}
