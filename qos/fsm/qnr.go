package fsm

import (
	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/nslp"
	"github.com/kit-nsis/gosis/nslp/qos"
	"github.com/kit-nsis/gosis/session"
)

// Responder implements the QNR role's state machine: Idle -> Session ->
// Final, the direct analogue of natfw/fsm.Responder for RESERVE, per
// spec.md §4.7.5. On the state timer expiring without a refresh -- a
// lost upstream peer, rather than an explicit teardown -- it sends an
// unsolicited NOTIFY before reclaiming the reservation, instead of the
// silent drop a missing refresh gets at NATFW's NR.
type Responder struct {
	Policy Policy
	// CheckAA authorizes an inbound RESERVE. Nil accepts every RESERVE.
	CheckAA func(*qos.Message) bool
}

// NewResponder builds a Responder under DefaultPolicy.
func NewResponder() *Responder { return &Responder{Policy: DefaultPolicy} }

// Handle implements dispatch.Handler.
func (h *Responder) Handle(s *session.Session, ev dispatch.Event) ([]dispatch.Effect, error) {
	switch e := ev.(type) {
	case *dispatch.MessageEvent:
		s.MRI = e.MRI
		m, ok := e.ParsedMessage.(*qos.Message)
		if !ok || m.Type != qos.MsgReserve {
			return nil, nil
		}
		switch s.CurrentState() {
		case session.StateIdle:
			return h.handleInitialReserve(s, m)
		case session.StateSession:
			return h.handleRefreshReserve(s, m)
		}
		return nil, nil

	case *dispatch.TimerEvent:
		if e.Slot == session.StateTimer && s.CurrentState() == session.StateSession {
			return h.handleExpiry(s)
		}
	}
	return nil, nil
}

func (h *Responder) authorized(m *qos.Message) bool {
	return h.CheckAA == nil || h.CheckAA(m)
}

func (h *Responder) handleInitialReserve(s *session.Session, m *qos.Message) ([]dispatch.Effect, error) {
	rsn := rsnOf(m)
	lifetime := lifetimeOf(m)
	pc := classifierOf(m)
	if !h.authorized(m) || lifetime == 0 || lifetime > h.Policy.MaxLifetime {
		sdu, err := encode(buildResponse(rsn, nil))
		if err != nil {
			return nil, err
		}
		return []dispatch.Effect{send(s.MRI, sdu), dispatch.TransitionTo{State: session.StateFinal}}, nil
	}
	s.MSN = rsn
	s.LastSent = m.Message
	granted := qspecOf(m)
	sdu, err := encode(buildResponse(rsn, granted))
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		dispatch.InstallRule{Rule: ruleFromClassifier(pc)},
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.StateTimer, Duration: h.Policy.stateTimer(lifetime)},
		dispatch.TransitionTo{State: session.StateSession},
	}, nil
}

// handleRefreshReserve implements the Session state's rx_RESERVE
// handling, per the same §9 redesign flag natfw/fsm.Responder's
// handleRefreshCreate applies: an oversized lifetime while a
// reservation is already established sends a failure RESPONSE but
// stays in Session, unlike the Idle-state rejection that goes Final. A
// lifetime==0 teardown removes the reservation with no response.
func (h *Responder) handleRefreshReserve(s *session.Session, m *qos.Message) ([]dispatch.Effect, error) {
	rsn := rsnOf(m)
	if !nslp.Precedes(s.MSN, rsn) {
		return nil, nil
	}
	lifetime := lifetimeOf(m)
	if lifetime == 0 {
		s.MSN = rsn
		return []dispatch.Effect{
			dispatch.RemoveRule{},
			dispatch.CancelTimer{Slot: session.StateTimer},
			dispatch.TransitionTo{State: session.StateFinal},
		}, nil
	}
	if lifetime > h.Policy.MaxLifetime {
		s.MSN = rsn
		sdu, err := encode(buildResponse(rsn, nil))
		if err != nil {
			return nil, err
		}
		return []dispatch.Effect{send(s.MRI, sdu)}, nil
	}
	s.MSN = rsn
	s.LastSent = m.Message
	granted := qspecOf(m)
	sdu, err := encode(buildResponse(rsn, granted))
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.StateTimer, Duration: h.Policy.stateTimer(lifetime)},
	}, nil
}

func (h *Responder) handleExpiry(s *session.Session) ([]dispatch.Effect, error) {
	sdu, err := encode(buildNotify(s.MSN))
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		dispatch.RemoveRule{},
		send(s.MRI, sdu),
		dispatch.TransitionTo{State: session.StateFinal},
	}, nil
}
