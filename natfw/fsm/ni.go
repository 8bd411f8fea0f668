package fsm

import (
	"fmt"

	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/nslp/natfw"
	"github.com/kit-nsis/gosis/session"
)

// Initiator implements the NI role's state machine, per spec.md §4.7.1:
// Idle -> WaitResp -> Session -> Final, driving a CREATE handshake and
// its periodic refresh.
type Initiator struct {
	Policy Policy
}

// NewInitiator builds an Initiator under DefaultPolicy.
func NewInitiator() *Initiator { return &Initiator{Policy: DefaultPolicy} }

// Handle implements dispatch.Handler.
func (h *Initiator) Handle(s *session.Session, ev dispatch.Event) ([]dispatch.Effect, error) {
	switch e := ev.(type) {
	case *dispatch.ApiEvent:
		switch req := e.Payload.(type) {
		case CreateRequest:
			return h.handleCreateRequest(s, req)
		case TeardownRequest:
			return h.handleTeardown(s)
		}
		return nil, fmt.Errorf("fsm: initiator cannot handle api event kind %q", e.Kind)

	case *dispatch.MessageEvent:
		m, ok := e.ParsedMessage.(*natfw.Message)
		if !ok || m.Type != natfw.MsgResponse {
			return nil, nil
		}
		return h.handleResponse(s, m)

	case *dispatch.TimerEvent:
		switch e.Slot {
		case session.ResponseTimer:
			return h.handleResponseTimeout(s)
		case session.RefreshTimer:
			return h.handleRefresh(s)
		}
		return nil, nil
	}
	return nil, nil
}

func (h *Initiator) handleCreateRequest(s *session.Session, req CreateRequest) ([]dispatch.Effect, error) {
	if s.CurrentState() != session.StateIdle {
		return nil, fmt.Errorf("fsm: initiator create request while not idle")
	}
	s.MRI = req.MRI
	msg := buildCreate(s.MSN, req.Lifetime, req.Flow, req.ICMP)
	s.LastSent = msg.Message
	sdu, err := encode(msg)
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.ResponseWait},
		dispatch.TransitionTo{State: session.StateWaitResp},
	}, nil
}

func (h *Initiator) handleTeardown(s *session.Session) ([]dispatch.Effect, error) {
	if s.CurrentState() != session.StateWaitResp && s.CurrentState() != session.StateSession {
		return nil, nil
	}
	msg := buildCreate(s.MSN, 0, flowOf(&natfw.Message{Message: s.LastSent}), nil)
	sdu, err := encode(msg)
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.CancelTimer{Slot: session.ResponseTimer},
		dispatch.CancelTimer{Slot: session.RefreshTimer},
		dispatch.TransitionTo{State: session.StateFinal},
	}, nil
}

func (h *Initiator) handleResponse(s *session.Session, m *natfw.Message) ([]dispatch.Effect, error) {
	if !responseMSNMatches(m, s.MSN) {
		return nil, nil
	}
	switch s.CurrentState() {
	case session.StateWaitResp:
		if !isSuccess(m) {
			return []dispatch.Effect{dispatch.TransitionTo{State: session.StateFinal}}, nil
		}
		s.RetryCounter = 0
		lifetime := lifetimeOf(&natfw.Message{Message: s.LastSent})
		return []dispatch.Effect{
			dispatch.CancelTimer{Slot: session.ResponseTimer},
			dispatch.StartTimer{Slot: session.RefreshTimer, Duration: h.Policy.stateTimer(lifetime) * 2 / 3},
			dispatch.TransitionTo{State: session.StateSession},
		}, nil

	case session.StateSession:
		if !isSuccess(m) {
			return []dispatch.Effect{dispatch.TransitionTo{State: session.StateFinal}}, nil
		}
		s.RetryCounter = 0
		lifetime := lifetimeOf(&natfw.Message{Message: s.LastSent})
		return []dispatch.Effect{
			dispatch.CancelTimer{Slot: session.ResponseTimer},
			dispatch.StartTimer{Slot: session.RefreshTimer, Duration: h.Policy.stateTimer(lifetime) * 2 / 3},
		}, nil
	}
	return nil, nil
}

func (h *Initiator) handleRefresh(s *session.Session) ([]dispatch.Effect, error) {
	if s.CurrentState() != session.StateSession {
		return nil, nil
	}
	lifetime := lifetimeOf(&natfw.Message{Message: s.LastSent})
	flow := flowOf(&natfw.Message{Message: s.LastSent})
	s.MSN++
	s.RetryCounter = 0
	msg := buildCreate(s.MSN, lifetime, flow, nil)
	s.LastSent = msg.Message
	sdu, err := encode(msg)
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.ResponseWait},
	}, nil
}

func (h *Initiator) handleResponseTimeout(s *session.Session) ([]dispatch.Effect, error) {
	if s.CurrentState() != session.StateWaitResp && s.CurrentState() != session.StateSession {
		return nil, nil
	}
	if s.RetryCounter >= h.Policy.MaxRetries {
		return []dispatch.Effect{dispatch.TransitionTo{State: session.StateFinal}}, nil
	}
	s.RetryCounter++
	sdu, err := encode(&natfw.Message{Message: s.LastSent, Type: natfw.MsgCreate})
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.backoff(s.RetryCounter)},
	}, nil
}
