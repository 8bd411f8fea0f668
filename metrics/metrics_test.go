package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/kit-nsis/gosis/collab"
	"github.com/kit-nsis/gosis/dispatch"
)

func dispatchRule() dispatch.Rule {
	return dispatch.Rule{
		Action: dispatch.RuleAllow, SrcCIDR: "10.0.0.1/32", DstCIDR: "198.51.100.1/32",
		DstPortLo: 80, DstPortHi: 80, Protocol: 17,
	}
}

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	return testutil.ToFloat64(g)
}

func TestNewRegistersAllCollectors(t *testing.T) {
	r := New()
	r.EventsDispatched.WithLabelValues("message").Inc()
	r.SessionsCreated.WithLabelValues("qni").Inc()
	r.SessionsDestroyed.WithLabelValues("qni").Inc()
	r.Retransmissions.WithLabelValues("qni").Inc()
	r.HMACFailures.Inc()
	r.RulesInstalled.Set(1)
	r.NATReservationsHeld.Set(1)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "nsisd_events_dispatched_total")
	require.Contains(t, rec.Body.String(), "nsisd_nat_reservations_held")
}

func TestCountingRuleInstallerTracksGauge(t *testing.T) {
	reg := New()
	inner := collab.NewMemoryRuleInstaller()
	require.NoError(t, inner.Setup())
	counting := &CountingRuleInstaller{RuleInstaller: inner, Metrics: reg}

	handle, err := counting.Install(dispatchRule())
	require.NoError(t, err)
	require.Equal(t, float64(1), testGaugeValue(t, reg.RulesInstalled))

	require.NoError(t, counting.Remove(handle))
	require.Equal(t, float64(0), testGaugeValue(t, reg.RulesInstalled))
}

func TestCountingNatBrokerTracksGauge(t *testing.T) {
	reg := New()
	inner := collab.NewMemoryNatBroker([]string{"203.0.113.1"})
	counting := &CountingNatBroker{NatBroker: inner, Metrics: reg}

	public, err := counting.ReserveExternal("10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, float64(1), testGaugeValue(t, reg.NATReservationsHeld))

	require.NoError(t, counting.ReleaseExternal(public))
	require.Equal(t, float64(0), testGaugeValue(t, reg.NATReservationsHeld))
}
