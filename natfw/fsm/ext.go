package fsm

import (
	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/nslp"
	"github.com/kit-nsis/gosis/nslp/natfw"
	"github.com/kit-nsis/gosis/session"
)

// EdgeExt implements the edge-EXT forwarder role, per spec.md §4.7.4:
// the last hop before a private endpoint, terminating an
// upstream-initiated EXT handshake directly (no further forwarding).
// States: Idle, Session, Final.
type EdgeExt struct {
	Policy Policy
	// CheckAA authorizes an inbound EXT. Nil accepts every EXT.
	CheckAA func(*natfw.Message) bool
	// PublicSide reports whether a MessageEvent arrived from the public
	// side of this edge, which an edge forwarder must refuse (an EXT
	// for a private endpoint can only come from upstream). Nil treats
	// every arrival as private-side.
	PublicSide func(*dispatch.MessageEvent) bool
}

// NewEdgeExt builds an EdgeExt under DefaultPolicy, accepting every EXT
// arriving from the private side.
func NewEdgeExt() *EdgeExt { return &EdgeExt{Policy: DefaultPolicy} }

// Handle implements dispatch.Handler.
func (h *EdgeExt) Handle(s *session.Session, ev dispatch.Event) ([]dispatch.Effect, error) {
	switch e := ev.(type) {
	case *dispatch.MessageEvent:
		m, ok := e.ParsedMessage.(*natfw.Message)
		if !ok || m.Type != natfw.MsgExt {
			return nil, nil
		}
		s.MRI = e.MRI
		if h.PublicSide != nil && h.PublicSide(e) {
			return nil, nil
		}
		switch s.CurrentState() {
		case session.StateIdle:
			return h.handleInitialExt(s, m)
		case session.StateSession:
			return h.handleRefreshExt(s, m)
		}
		return nil, nil

	case *dispatch.TimerEvent:
		if e.Slot == session.StateTimer && s.CurrentState() == session.StateSession {
			return []dispatch.Effect{dispatch.TransitionTo{State: session.StateFinal}}, nil
		}
	}
	return nil, nil
}

func (h *EdgeExt) authorized(m *natfw.Message) bool {
	return h.CheckAA == nil || h.CheckAA(m)
}

func (h *EdgeExt) handleInitialExt(s *session.Session, m *natfw.Message) ([]dispatch.Effect, error) {
	msn := msnOf(m)
	lifetime := lifetimeOf(m)
	if !h.authorized(m) || lifetime == 0 || lifetime > h.Policy.MaxLifetime {
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

func (h *EdgeExt) handleRefreshExt(s *session.Session, m *natfw.Message) ([]dispatch.Effect, error) {
	msn := msnOf(m)
	if !nslp.Precedes(s.MSN, msn) {
		return nil, nil
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

// NonEdgeExt implements a non-edge EXT forwarder, per spec.md §4.7.4:
// it runs NI-like retry logic for the forwarded EXT plus the usual
// forwarder session refresh, but -- unlike NF -- installs no firewall
// rule and reserves no NAT address; only the edge hop terminating at
// the private endpoint does that.
type NonEdgeExt struct {
	Policy Policy
}

// NewNonEdgeExt builds a NonEdgeExt under DefaultPolicy.
func NewNonEdgeExt() *NonEdgeExt { return &NonEdgeExt{Policy: DefaultPolicy} }

// Handle implements dispatch.Handler.
func (h *NonEdgeExt) Handle(s *session.Session, ev dispatch.Event) ([]dispatch.Effect, error) {
	switch e := ev.(type) {
	case *dispatch.MessageEvent:
		s.MRI = e.MRI
		m, ok := e.ParsedMessage.(*natfw.Message)
		if !ok {
			return nil, nil
		}
		switch m.Type {
		case natfw.MsgExt:
			return h.handleExt(s, m)
		case natfw.MsgResponse:
			return h.handleResponse(s, m)
		}
		return nil, nil

	case *dispatch.TimerEvent:
		switch e.Slot {
		case session.ResponseTimer:
			return h.handleResponseTimeout(s)
		case session.RefreshTimer:
			return h.handleRefresh(s)
		}
	}
	return nil, nil
}

func (h *NonEdgeExt) handleExt(s *session.Session, m *natfw.Message) ([]dispatch.Effect, error) {
	switch s.CurrentState() {
	case session.StateIdle:
		s.MSN = msnOf(m)
		s.LastSent = m.Message
		sdu, err := encode(m)
		if err != nil {
			return nil, err
		}
		return []dispatch.Effect{
			send(s.MRI, sdu),
			dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.ResponseWait},
			dispatch.TransitionTo{State: session.StateWaitResp},
		}, nil

	case session.StateSession:
		msn := msnOf(m)
		if !nslp.Precedes(s.MSN, msn) {
			return nil, nil
		}
		s.MSN = msn
		s.LastSent = m.Message
		sdu, err := encode(m)
		if err != nil {
			return nil, err
		}
		lifetime := lifetimeOf(m)
		if lifetime == 0 {
			return []dispatch.Effect{
				send(s.MRI, sdu),
				dispatch.CancelTimer{Slot: session.RefreshTimer},
				dispatch.TransitionTo{State: session.StateFinal},
			}, nil
		}
		return []dispatch.Effect{
			send(s.MRI, sdu),
			dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.ResponseWait},
		}, nil
	}
	return nil, nil
}

func (h *NonEdgeExt) handleResponse(s *session.Session, m *natfw.Message) ([]dispatch.Effect, error) {
	if s.CurrentState() != session.StateWaitResp && s.CurrentState() != session.StateSession {
		return nil, nil
	}
	if !responseMSNMatches(m, s.MSN) {
		return nil, nil
	}
	sdu, err := encode(m)
	if err != nil {
		return nil, err
	}
	if !isSuccess(m) {
		return []dispatch.Effect{send(s.MRI, sdu), dispatch.TransitionTo{State: session.StateFinal}}, nil
	}
	s.RetryCounter = 0
	wasWaiting := s.CurrentState() == session.StateWaitResp
	lifetime := lifetimeOf(&natfw.Message{Message: s.LastSent})
	effects := []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.CancelTimer{Slot: session.ResponseTimer},
		dispatch.StartTimer{Slot: session.RefreshTimer, Duration: h.Policy.stateTimer(lifetime) * 2 / 3},
	}
	if wasWaiting {
		effects = append(effects, dispatch.TransitionTo{State: session.StateSession})
	}
	return effects, nil
}

func (h *NonEdgeExt) handleRefresh(s *session.Session) ([]dispatch.Effect, error) {
	if s.CurrentState() != session.StateSession {
		return nil, nil
	}
	s.MSN++
	s.RetryCounter = 0
	msg := &natfw.Message{Message: s.LastSent, Type: natfw.MsgExt}
	msg.SetObject(uint16(natfw.ObjMessageSequenceNumber), &natfw.MessageSequenceNumber{MSN: s.MSN})
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

func (h *NonEdgeExt) handleResponseTimeout(s *session.Session) ([]dispatch.Effect, error) {
	if s.CurrentState() != session.StateWaitResp && s.CurrentState() != session.StateSession {
		return nil, nil
	}
	if s.RetryCounter >= h.Policy.MaxRetries {
		return []dispatch.Effect{dispatch.TransitionTo{State: session.StateFinal}}, nil
	}
	s.RetryCounter++
	sdu, err := encode(&natfw.Message{Message: s.LastSent, Type: natfw.MsgExt})
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.backoff(s.RetryCounter)},
	}, nil
}
