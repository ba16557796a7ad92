package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Received("bess/leituras/simulador")
	m.Received("bess/leituras/simulador")
	m.DecodeFailed(KindReading)
	m.Persisted("medicoes")
	m.Published(KindReading, nil)
	m.Published(KindAlarm, errors.New("broker down"))
	m.AlarmRaised("BESS001", "Sobretensão")
	m.SetRelayDepth(7)
	m.SetConnected(true)
	m.ObserveCycle(10*time.Millisecond, errors.New("disk full"))

	require.Equal(t, 2.0, testutil.ToFloat64(m.received.WithLabelValues("bess/leituras/simulador")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.decodeFailures.WithLabelValues(KindReading)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.persisted.WithLabelValues("medicoes")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues(KindReading)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.publishFailures.WithLabelValues(KindAlarm)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.alarmsRaised.WithLabelValues("BESS001", "Sobretensão")))
	require.Equal(t, 7.0, testutil.ToFloat64(m.relayDepth))
	require.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cycleFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Received("x")
	m.SetRelayDepth(1)
	m.ObserveCycle(time.Second, nil)
	m.Published(KindReading, nil)
	m.SetConnected(false)
}
