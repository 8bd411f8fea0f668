package fsm

import (
	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/nslp"
	"github.com/kit-nsis/gosis/nslp/natfw"
	"github.com/kit-nsis/gosis/session"
)

// Responder implements the NR role's state machine, per spec.md
// §4.7.2: Idle -> Session -> Final, accepting a CREATE, tracking its
// MSN against replay/duplicates, and expiring the session if no
// refresh arrives before the state timer fires.
type Responder struct {
	Policy Policy
	// CheckAA authorizes an inbound CREATE, e.g. by verifying a
	// session-authorization object. Nil accepts every CREATE.
	CheckAA func(*natfw.Message) bool
}

// NewResponder builds a Responder under DefaultPolicy, accepting every
// CREATE.
func NewResponder() *Responder { return &Responder{Policy: DefaultPolicy} }

// Handle implements dispatch.Handler.
func (h *Responder) Handle(s *session.Session, ev dispatch.Event) ([]dispatch.Effect, error) {
	me, ok := ev.(*dispatch.MessageEvent)
	if !ok {
		if te, ok := ev.(*dispatch.TimerEvent); ok && te.Slot == session.StateTimer {
			return h.handleExpiry(s)
		}
		return nil, nil
	}
	m, ok := me.ParsedMessage.(*natfw.Message)
	if !ok || m.Type != natfw.MsgCreate {
		return nil, nil
	}
	s.MRI = me.MRI

	switch s.CurrentState() {
	case session.StateIdle:
		return h.handleInitialCreate(s, m)
	case session.StateSession:
		return h.handleRefreshCreate(s, m)
	}
	return nil, nil
}

func (h *Responder) authorized(m *natfw.Message) bool {
	return h.CheckAA == nil || h.CheckAA(m)
}

func (h *Responder) handleInitialCreate(s *session.Session, m *natfw.Message) ([]dispatch.Effect, error) {
	msn := msnOf(m)
	if !h.authorized(m) {
		sdu, err := encode(buildResponse(natfw.SeveritySignalingSessionFailure, 0, msn))
		if err != nil {
			return nil, err
		}
		return []dispatch.Effect{send(s.MRI, sdu), dispatch.TransitionTo{State: session.StateFinal}}, nil
	}

	lifetime := lifetimeOf(m)
	if lifetime == 0 || lifetime > h.Policy.MaxLifetime {
		sdu, err := encode(buildResponse(natfw.SeveritySignalingSessionFailure, 0, msn))
		if err != nil {
			return nil, err
		}
		return []dispatch.Effect{send(s.MRI, sdu), dispatch.TransitionTo{State: session.StateFinal}}, nil
	}

	s.MSN = msn
	sdu, err := encode(buildResponse(natfw.SeveritySuccess, 0, msn))
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.StateTimer, Duration: h.Policy.stateTimer(lifetime)},
		dispatch.TransitionTo{State: session.StateSession},
	}, nil
}

// handleRefreshCreate implements the Session state's rx_CREATE
// handling, per spec.md §4.7.2 and the §9 redesign flag: a CREATE
// advertising a too-large lifetime while a session is already
// established stays in Session (it does not fall back to Final the
// way the equivalent Idle-state rejection does), even though both
// cases send the same failure RESPONSE. A lifetime==0 teardown sends
// no response at all.
func (h *Responder) handleRefreshCreate(s *session.Session, m *natfw.Message) ([]dispatch.Effect, error) {
	msn := msnOf(m)
	if !nslp.Precedes(s.MSN, msn) {
		return nil, nil // stale or duplicate MSN, silently dropped
	}

	lifetime := lifetimeOf(m)
	if lifetime == 0 {
		s.MSN = msn
		return []dispatch.Effect{
			dispatch.CancelTimer{Slot: session.StateTimer},
			dispatch.TransitionTo{State: session.StateFinal},
		}, nil
	}

	if lifetime > h.Policy.MaxLifetime {
		s.MSN = msn
		sdu, err := encode(buildResponse(natfw.SeveritySignalingSessionFailure, 0, msn))
		if err != nil {
			return nil, err
		}
		return []dispatch.Effect{send(s.MRI, sdu)}, nil
	}

	s.MSN = msn
	sdu, err := encode(buildResponse(natfw.SeveritySuccess, 0, msn))
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.StateTimer, Duration: h.Policy.stateTimer(lifetime)},
	}, nil
}

func (h *Responder) handleExpiry(s *session.Session) ([]dispatch.Effect, error) {
	if s.CurrentState() != session.StateSession {
		return nil, nil
	}
	return []dispatch.Effect{dispatch.TransitionTo{State: session.StateFinal}}, nil
}
