package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kit-nsis/gosis/collab"
	"github.com/kit-nsis/gosis/config"
	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/metrics"
	natfwfsm "github.com/kit-nsis/gosis/natfw/fsm"
	qosfsm "github.com/kit-nsis/gosis/qos/fsm"
	"github.com/kit-nsis/gosis/session"

	_ "net/http/pprof"
)

var (
	serveConfigFlag      string
	serveNATFWRoleFlag   string
	serveQoSRoleFlag     string
	serveMetricsPortFlag int
	servePprofAddrFlag   string
)

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfigFlag, "config", "", "path to the nsisd YAML config")
	serveCmd.Flags().StringVar(&serveNATFWRoleFlag, "natfw-role", "", "NATFW-NSLP role this node plays: initiator, forwarder, responder, ext-edge, ext-nonedge, or empty to disable")
	serveCmd.Flags().StringVar(&serveQoSRoleFlag, "qos-role", "", "QoS-NSLP role this node plays: initiator, forwarder, responder, or empty to disable")
	serveCmd.Flags().IntVar(&serveMetricsPortFlag, "metrics-port", 9090, "port to serve /metrics on")
	serveCmd.Flags().StringVar(&servePprofAddrFlag, "pprof", "", "host:port for the profiler to bind, disabled if empty")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "wire up and run the NATFW-NSLP / QoS-NSLP dispatcher",
	RunE: func(_ *cobra.Command, _ []string) error {
		configureVerbosity()
		return serve()
	},
}

// prepareStore reads cfgPath (if given) onto a fresh Store, then
// overrides the global realm's "pprof_addr" and each application
// realm's "role" from whichever of those CLI flags were set to a
// non-empty value, matching cmd/sptp's prepareConfig file-then-flag-
// override idiom. "metrics_port" is always overwritten with the
// --metrics-port value: that flag defaults to 9090, so a metrics_port
// from the config file never takes effect.
func prepareStore(cfgPath string) (*config.Store, error) {
	var (
		store *config.Store
		err   error
	)
	if cfgPath != "" {
		store, err = config.ReadFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("reading config from %q: %w", cfgPath, err)
		}
	} else {
		store = config.NewStore()
	}

	g := store.Realm(config.RealmGlobal)
	if serveMetricsPortFlag != 0 {
		g.Set("metrics_port", config.UintValue(uint64(serveMetricsPortFlag)))
	}
	if servePprofAddrFlag != "" {
		g.Set("pprof_addr", config.StringValue(servePprofAddrFlag))
	}
	if serveNATFWRoleFlag != "" {
		store.Realm(config.RealmNATFW).Set("role", config.StringValue(serveNATFWRoleFlag))
	}
	if serveQoSRoleFlag != "" {
		store.Realm(config.RealmQoS).Set("role", config.StringValue(serveQoSRoleFlag))
	}
	store.LogSummary()
	return store, nil
}

func parseNATFWRole(s string) (session.Role, error) {
	switch s {
	case "":
		return 0, nil
	case "initiator":
		return session.RoleNATFWInitiator, nil
	case "forwarder":
		return session.RoleNATFWForwarder, nil
	case "responder":
		return session.RoleNATFWResponder, nil
	case "ext-edge":
		return session.RoleNATFWExtEdge, nil
	case "ext-nonedge":
		return session.RoleNATFWExtNonEdge, nil
	default:
		return 0, fmt.Errorf("nsisd: unrecognized natfw role %q", s)
	}
}

func parseQoSRole(s string) (session.Role, error) {
	switch s {
	case "":
		return 0, nil
	case "initiator":
		return session.RoleQoSInitiator, nil
	case "forwarder":
		return session.RoleQoSForwarder, nil
	case "responder":
		return session.RoleQoSResponder, nil
	default:
		return 0, fmt.Errorf("nsisd: unrecognized qos role %q", s)
	}
}

// registerNATFWHandler attaches the Handler matching role to d, tuning
// its Policy.MaxLifetime from the natfw realm's "max_lifetime" key when
// present.
func registerNATFWHandler(d *dispatch.Dispatcher, role session.Role, natfwRealm *config.Realm) {
	maxLifetime := uint32(natfwRealm.Uint("max_lifetime", uint64(natfwfsm.DefaultPolicy.MaxLifetime)))
	switch role {
	case session.RoleNATFWInitiator:
		h := natfwfsm.NewInitiator()
		h.Policy.MaxLifetime = maxLifetime
		d.Register(role, h)
	case session.RoleNATFWForwarder:
		h := natfwfsm.NewForwarder()
		h.Policy.MaxLifetime = maxLifetime
		d.Register(role, h)
	case session.RoleNATFWResponder:
		h := natfwfsm.NewResponder()
		h.Policy.MaxLifetime = maxLifetime
		d.Register(role, h)
	case session.RoleNATFWExtEdge:
		h := natfwfsm.NewEdgeExt()
		h.Policy.MaxLifetime = maxLifetime
		d.Register(role, h)
	case session.RoleNATFWExtNonEdge:
		h := natfwfsm.NewNonEdgeExt()
		h.Policy.MaxLifetime = maxLifetime
		d.Register(role, h)
	}
}

func registerQoSHandler(d *dispatch.Dispatcher, role session.Role, qosRealm *config.Realm) {
	maxLifetime := uint32(qosRealm.Uint("max_lifetime", uint64(qosfsm.DefaultPolicy.MaxLifetime)))
	switch role {
	case session.RoleQoSInitiator:
		h := qosfsm.NewInitiator()
		h.Policy.MaxLifetime = maxLifetime
		d.Register(role, h)
	case session.RoleQoSForwarder:
		h := qosfsm.NewForwarder()
		h.Policy.MaxLifetime = maxLifetime
		d.Register(role, h)
	case session.RoleQoSResponder:
		h := qosfsm.NewResponder()
		h.Policy.MaxLifetime = maxLifetime
		d.Register(role, h)
	}
}

func serve() error {
	store, err := prepareStore(serveConfigFlag)
	if err != nil {
		return err
	}

	natfwRole, err := parseNATFWRole(store.Realm(config.RealmNATFW).String("role", ""))
	if err != nil {
		return err
	}
	qosRole, err := parseQoSRole(store.Realm(config.RealmQoS).String("role", ""))
	if err != nil {
		return err
	}
	if natfwRole == 0 && qosRole == 0 {
		return fmt.Errorf("nsisd: neither --natfw-role nor --qos-role is set, nothing to serve")
	}

	reg := metrics.New()

	rawRules := collab.NewMemoryRuleInstaller()
	if err := rawRules.Setup(); err != nil {
		return fmt.Errorf("nsisd: setting up rule installer: %w", err)
	}
	rules := &metrics.CountingRuleInstaller{RuleInstaller: rawRules, Metrics: reg}

	natPool, _ := store.Realm(config.RealmTransport).AddrList("nat_pool")
	pool := make([]string, len(natPool))
	for i, ip := range natPool {
		pool[i] = ip.String()
	}
	nat := &metrics.CountingNatBroker{NatBroker: collab.NewMemoryNatBroker(pool), Metrics: reg}

	transport := collab.NewLoggingTransport()

	var d *dispatch.Dispatcher
	timers := collab.NewRealTimerService(func(sid session.ID, slot session.TimerSlot, handle session.TimerHandle) {
		if err := d.Dispatch(&dispatch.TimerEvent{SID: sid, Slot: slot, Handle: handle}); err != nil {
			log.WithError(err).Warn("nsisd: timer-driven dispatch failed")
		}
	})

	resolver := &roleResolver{NATFWRole: natfwRole, QoSRole: qosRole}
	d = dispatch.NewDispatcher(session.NewManager(), resolver, transport, rules, nat, timers)
	d.OnEventDispatched = func(kind string) { reg.EventsDispatched.WithLabelValues(kind).Inc() }
	d.OnSessionCreated = func(role session.Role) { reg.SessionsCreated.WithLabelValues(role.String()).Inc() }
	d.OnSessionDestroyed = func(role session.Role) { reg.SessionsDestroyed.WithLabelValues(role.String()).Inc() }
	d.OnRetransmit = func(role session.Role) { reg.Retransmissions.WithLabelValues(role.String()).Inc() }

	if natfwRole != 0 {
		registerNATFWHandler(d, natfwRole, store.Realm(config.RealmNATFW))
		log.Infof("nsisd: serving NATFW-NSLP role %s", natfwRole)
	}
	if qosRole != 0 {
		registerQoSHandler(d, qosRole, store.Realm(config.RealmQoS))
		log.Infof("nsisd: serving QoS-NSLP role %s", qosRole)
	}

	pprofAddr := store.Realm(config.RealmGlobal).String("pprof_addr", "")
	if pprofAddr != "" {
		log.Warningf("nsisd: starting profiler on %s", pprofAddr)
		go func() {
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				log.Errorf("nsisd: pprof listener failed: %v", err)
			}
		}()
	}

	metricsPort := int(store.Realm(config.RealmGlobal).Uint("metrics_port", uint64(serveMetricsPortFlag)))
	go reg.ListenAndServe(metricsPort)

	log.Infof("nsisd: ready (dispatcher wired, waiting for an inbound transport to drive it)")
	waitForSignal()
	return nil
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Infof("nsisd: received %s, shutting down", sig)
}
