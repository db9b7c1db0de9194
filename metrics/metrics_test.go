package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 5)
}

func TestGaugesStartAtZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	require.Equal(t, float64(0), gaugeValue(t, m.Sessions))
	require.Equal(t, float64(0), gaugeValue(t, m.Channels))
	require.Equal(t, float64(0), gaugeValue(t, m.ReverseConnects))
}

func TestObserveIterateRecordsSample(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveIterate(5 * time.Millisecond)

	out := &dto.Metric{}
	require.NoError(t, m.IterateWait.Write(out))
	require.Equal(t, uint64(1), out.GetHistogram().GetSampleCount())
}

func TestHousekeepingTickIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.HousekeepingTick.Inc()
	m.HousekeepingTick.Inc()

	out := &dto.Metric{}
	require.NoError(t, m.HousekeepingTick.Write(out))
	require.Equal(t, float64(2), out.GetCounter().GetValue())
}

func TestSettersPublishGaugeValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetSessions(3)
	m.SetChannels(2)
	m.SetReverseConnects(1)
	m.IncHousekeepingTick()

	require.Equal(t, float64(3), gaugeValue(t, m.Sessions))
	require.Equal(t, float64(2), gaugeValue(t, m.Channels))
	require.Equal(t, float64(1), gaugeValue(t, m.ReverseConnects))

	out := &dto.Metric{}
	require.NoError(t, m.HousekeepingTick.Write(out))
	require.Equal(t, float64(1), out.GetCounter().GetValue())
}

func TestDoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		require.NotNil(t, recover(), "MustRegister must panic on duplicate registration")
	}()
	New(reg)
}
