// Package metrics exposes a prometheus.Registry and promhttp handler
// for nsisd, counting dispatched events, sessions created/destroyed,
// retransmissions and HMAC verification failures, in the shape of
// ptp/sptp/stats.PrometheusExporter -- adapted from that package's
// scrape-a-remote-process model to a direct in-process registry, since
// nsisd is itself the process whose counters need exporting.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Registry holds every counter/gauge nsisd exports, backed by its own
// prometheus.Registry rather than the global DefaultRegisterer, so
// multiple instances (e.g. one per test) never collide.
type Registry struct {
	reg *prometheus.Registry

	EventsDispatched    *prometheus.CounterVec
	SessionsCreated     *prometheus.CounterVec
	SessionsDestroyed   *prometheus.CounterVec
	Retransmissions     *prometheus.CounterVec
	HMACFailures        prometheus.Counter
	RulesInstalled      prometheus.Gauge
	NATReservationsHeld prometheus.Gauge
}

// New builds a Registry with every collector registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nsisd_events_dispatched_total",
			Help: "Events processed by the dispatcher, by event kind.",
		}, []string{"kind"}),
		SessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nsisd_sessions_created_total",
			Help: "Sessions opened, by role.",
		}, []string{"role"}),
		SessionsDestroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nsisd_sessions_destroyed_total",
			Help: "Sessions that reached Final and were removed, by role.",
		}, []string{"role"}),
		Retransmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nsisd_retransmissions_total",
			Help: "Retry-timer-driven retransmissions, by role.",
		}, []string{"role"}),
		HMACFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nsisd_hmac_verification_failures_total",
			Help: "Session-authorization HMAC verifications that failed.",
		}),
		RulesInstalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nsisd_rules_installed",
			Help: "Packet-filter/reservation rules currently installed.",
		}),
		NATReservationsHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nsisd_nat_reservations_held",
			Help: "NAT external-address reservations currently held.",
		}),
	}
	r.reg.MustRegister(
		r.EventsDispatched, r.SessionsCreated, r.SessionsDestroyed,
		r.Retransmissions, r.HMACFailures, r.RulesInstalled, r.NATReservationsHeld,
	)
	return r
}

// Handler returns the promhttp handler serving this registry's
// metrics in OpenMetrics-compatible text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ListenAndServe serves the registry's /metrics endpoint on port,
// blocking until the listener fails. It logs fatally on failure,
// matching ptp/sptp/stats.PrometheusExporter.Start's idiom: an
// exporter that silently stops counting is worse than one that
// crashes loudly. Callers that need to run this alongside other
// servers should invoke it in its own goroutine.
func (r *Registry) ListenAndServe(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	addr := fmt.Sprintf(":%d", port)
	log.Infof("metrics: serving /metrics on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}
