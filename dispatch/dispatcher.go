package dispatch

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kit-nsis/gosis/session"
)

// Handler processes one event against an already-locked session and
// returns the effects the dispatcher should apply, per spec.md §9.
// Implementations must not call back into the transport, rule
// installer, NAT broker or timer service directly -- only the
// dispatcher does that, after the session's lock is released.
type Handler interface {
	Handle(s *session.Session, ev Event) ([]Effect, error)
}

// RoleResolver decides, for an event that doesn't resolve to an
// existing session, whether it may legitimately open a new one and
// under which role, per spec.md §4.8 ("CREATE at NR/NF; EXT at NF;
// RESERVE at QNE" are openers; anything else is dropped and logged).
type RoleResolver interface {
	CanOpen(ev Event) (session.Role, bool)
}

// RoleResolverFunc adapts a plain function to RoleResolver.
type RoleResolverFunc func(ev Event) (session.Role, bool)

// CanOpen implements RoleResolver.
func (f RoleResolverFunc) CanOpen(ev Event) (session.Role, bool) { return f(ev) }

// Dispatcher is the single point spec.md §4.8 describes: it resolves
// each event to a session, runs the matching role's Handler under that
// session's lock, and then performs the returned effects against the
// collaborators with the lock released.
type Dispatcher struct {
	Sessions  *session.Manager
	Handlers  map[session.Role]Handler
	Resolver  RoleResolver
	Transport Transport
	Rules     RuleInstaller
	Nat       NatBroker
	Timers    TimerService
	Log       *log.Logger

	// Observability hooks, all optional. They let a caller (cmd/nsisd)
	// feed a metrics.Registry without this package importing metrics,
	// the same decorator-at-the-edge approach CountingRuleInstaller/
	// CountingNatBroker use for the collaborator interfaces.
	OnEventDispatched  func(kind string)
	OnSessionCreated   func(role session.Role)
	OnSessionDestroyed func(role session.Role)
	OnRetransmit       func(role session.Role)
}

// NewDispatcher builds a Dispatcher. Log defaults to logrus's standard
// logger when nil.
func NewDispatcher(sessions *session.Manager, resolver RoleResolver, transport Transport, rules RuleInstaller, nat NatBroker, timers TimerService) *Dispatcher {
	return &Dispatcher{
		Sessions:  sessions,
		Handlers:  make(map[session.Role]Handler),
		Resolver:  resolver,
		Transport: transport,
		Rules:     rules,
		Nat:       nat,
		Timers:    timers,
		Log:       log.StandardLogger(),
	}
}

// Register installs the Handler for a role.
func (d *Dispatcher) Register(role session.Role, h Handler) {
	d.Handlers[role] = h
}

// Dispatch resolves ev to a session (creating one in Idle when the
// event legitimately opens one), runs its role's handler under the
// session's lock, and applies the returned effects.
func (d *Dispatcher) Dispatch(ev Event) error {
	s, err := d.resolveSession(ev)
	if err != nil {
		return err
	}
	if s == nil {
		d.Log.WithField("event", fmt.Sprintf("%T", ev)).Warn("dispatch: dropping event, no session and not an opener")
		return nil
	}

	handler, ok := d.Handlers[s.Role]
	if !ok {
		return fmt.Errorf("dispatch: no handler registered for role %s", s.Role)
	}

	d.logReceive(s, ev)
	if d.OnEventDispatched != nil {
		d.OnEventDispatched(eventKind(ev))
	}

	s.Lock()
	effects, err := handler.Handle(s, ev)
	s.Unlock()
	if err != nil {
		return err
	}
	_, isRetry := ev.(*TimerEvent)
	return d.apply(s, effects, isRetry)
}

// eventKind names an event for the EventsDispatched counter, the way
// spec.md §4.8's three event kinds (message/api/timer) are already
// distinguished by Go's own type system.
func eventKind(ev Event) string {
	switch ev.(type) {
	case *MessageEvent:
		return "message"
	case *ApiEvent:
		return "api"
	case *TimerEvent:
		return "timer"
	default:
		return fmt.Sprintf("%T", ev)
	}
}

func (d *Dispatcher) resolveSession(ev Event) (*session.Session, error) {
	if sid := ev.SessionID(); sid != nil {
		if s, ok := d.Sessions.Lookup(*sid); ok {
			return s, nil
		}
		role, can := d.Resolver.CanOpen(ev)
		if !can {
			return nil, nil
		}
		s, err := d.Sessions.Create(*sid, role)
		d.noteSessionCreated(s, err)
		return s, err
	}

	role, can := d.Resolver.CanOpen(ev)
	if !can {
		return nil, nil
	}
	id, err := session.NewID()
	if err != nil {
		return nil, err
	}
	s, err := d.Sessions.Create(id, role)
	d.noteSessionCreated(s, err)
	return s, err
}

func (d *Dispatcher) noteSessionCreated(s *session.Session, err error) {
	if err == nil && s != nil && d.OnSessionCreated != nil {
		d.OnSessionCreated(s.Role)
	}
}

// apply performs every effect in order against the collaborators, with
// the session's lock released between calls (per spec.md §5, outbound
// sends and other blocking calls must not happen while holding the
// session mutex). Bookkeeping that belongs to the session's critical
// region (recording a new timer handle, the installed rule/NAT
// handle, the current state) is written back under a freshly acquired
// lock after each collaborator call returns.
func (d *Dispatcher) apply(s *session.Session, effects []Effect, isRetry bool) error {
	for _, eff := range effects {
		switch e := eff.(type) {
		case Send:
			if err := d.Transport.Send(s.ID, e.MRI, e.SDU, e.Attrs); err != nil {
				d.Log.WithError(err).WithField("session", s.ID).Warn("dispatch: transport send failed")
				continue
			}
			d.logSend(s, e)
			if isRetry && d.OnRetransmit != nil {
				d.OnRetransmit(s.Role)
			}

		case StartTimer:
			h := d.Timers.Start(s.ID, e.Slot, e.Duration)
			s.Lock()
			s.SetTimerHandle(e.Slot, h)
			s.Unlock()

		case CancelTimer:
			s.Lock()
			h, armed := s.TimerHandle(e.Slot)
			s.ClearTimerHandle(e.Slot)
			s.Unlock()
			if armed {
				d.Timers.Cancel(h)
			}

		case InstallRule:
			handle, err := d.Rules.Install(e.Rule)
			if err != nil {
				d.Log.WithError(err).WithField("session", s.ID).Warn("dispatch: rule install failed, session goes to Final")
				d.finalize(s)
				continue
			}
			s.Lock()
			s.RuleHandle = handle
			s.Unlock()

		case RemoveRule:
			s.Lock()
			handle := s.RuleHandle
			s.RuleHandle = ""
			s.Unlock()
			if handle != "" {
				if err := d.Rules.Remove(handle); err != nil {
					d.Log.WithError(err).WithField("session", s.ID).Warn("dispatch: rule removal failed")
				}
			}

		case ReserveNAT:
			public, err := d.Nat.ReserveExternal(e.PrivateAddr)
			if err != nil {
				d.Log.WithError(err).WithField("session", s.ID).Warn("dispatch: NAT reservation failed, session goes to Final")
				d.finalize(s)
				continue
			}
			s.Lock()
			s.NatHandle = public
			s.Unlock()

		case ReleaseNAT:
			s.Lock()
			handle := s.NatHandle
			s.NatHandle = ""
			s.Unlock()
			if handle != "" {
				if err := d.Nat.ReleaseExternal(handle); err != nil {
					d.Log.WithError(err).WithField("session", s.ID).Warn("dispatch: NAT release failed")
				}
			}

		case TransitionTo:
			s.SetState(e.State)
			if e.State == session.StateFinal {
				d.finalize(s)
			}
		}
	}
	return nil
}

// Run fans events out across workers concurrent goroutines, each
// calling Dispatch. Safe because Dispatch only ever holds a single
// session's lock -- events against different sessions never
// contend, and events against the same session simply serialize on
// that session's mutex rather than on Run's own bookkeeping. Run
// returns when events is closed and every worker has drained it, or
// the first worker error, whichever comes first; ctx cancellation
// stops workers from picking up further events but does not abort
// one already in Dispatch.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event, workers int) error {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if err := d.Dispatch(ev); err != nil {
						return err
					}
				}
			}
		})
	}
	return g.Wait()
}

// logReceive traces an inbound event against its session, mirroring
// sptp/client.Client.logReceive's colorized Debugf idiom.
func (d *Dispatcher) logReceive(s *session.Session, ev Event) {
	d.Log.Debug(color.BlueString("[%s] %s -> dispatcher (%T)", s.ID, s.Role, ev))
}

// logSend traces an outbound Send effect, mirroring
// sptp/client.Client.logSent's colorized Debugf idiom.
func (d *Dispatcher) logSend(s *session.Session, e Send) {
	d.Log.Debug(color.GreenString("[%s] %s -> mri=%x (%d bytes)", s.ID, s.Role, e.MRI, len(e.SDU)))
}

// finalize transitions s to Final, cancels every live timer, and
// removes s from the manager, per spec.md §5's "on transition to Final
// the session cancels all its timers before being removed from the
// session manager."
func (d *Dispatcher) finalize(s *session.Session) {
	s.SetState(session.StateFinal)
	for _, h := range s.DrainTimers() {
		d.Timers.Cancel(h)
	}
	d.Sessions.Remove(s.ID)
	if d.OnSessionDestroyed != nil {
		d.OnSessionDestroyed(s.Role)
	}
}
