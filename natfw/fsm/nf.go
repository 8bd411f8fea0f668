package fsm

import (
	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/nslp"
	"github.com/kit-nsis/gosis/nslp/natfw"
	"github.com/kit-nsis/gosis/session"
)

// Forwarder implements the NF role's state machine, per spec.md
// §4.7.3: Idle -> WaitResp -> Session -> Final, installing a packet
// filter rule on the first CREATE and removing it on teardown or
// failure. NATEdge additionally reserves a NAT-allocated external
// address before forwarding, for the last hop before the public
// Internet.
type Forwarder struct {
	Policy  Policy
	NATEdge bool
}

// NewForwarder builds a non-edge Forwarder under DefaultPolicy.
func NewForwarder() *Forwarder { return &Forwarder{Policy: DefaultPolicy} }

// Handle implements dispatch.Handler.
func (h *Forwarder) Handle(s *session.Session, ev dispatch.Event) ([]dispatch.Effect, error) {
	switch e := ev.(type) {
	case *dispatch.MessageEvent:
		s.MRI = e.MRI
		switch m := e.ParsedMessage.(type) {
		case *natfw.Message:
			switch m.Type {
			case natfw.MsgCreate:
				return h.handleCreate(s, m)
			case natfw.MsgResponse:
				return h.handleResponse(s, m)
			}
		}
		return nil, nil

	case *dispatch.TimerEvent:
		if e.Slot == session.ResponseTimer {
			return h.handleResponseTimeout(s)
		}
	}
	return nil, nil
}

func ruleFromFlow(flow natfw.ExtendedFlowInfo) dispatch.Rule {
	return dispatch.Rule{
		Action:    dispatch.RuleAllow,
		SrcCIDR:   flow.SrcAddr.String(),
		DstCIDR:   flow.DstAddr.String(),
		DstPortLo: flow.DstPort, DstPortHi: flow.DstPort,
		SrcPortLo: flow.SrcPort, SrcPortHi: flow.SrcPort,
		Protocol: flow.Protocol,
	}
}

func (h *Forwarder) handleCreate(s *session.Session, m *natfw.Message) ([]dispatch.Effect, error) {
	switch s.CurrentState() {
	case session.StateIdle:
		lifetime := lifetimeOf(m)
		if lifetime == 0 || lifetime > h.Policy.MaxLifetime {
			sdu, err := encode(buildResponse(natfw.SeveritySignalingSessionFailure, 0, msnOf(m)))
			if err != nil {
				return nil, err
			}
			return []dispatch.Effect{send(s.MRI, sdu), dispatch.TransitionTo{State: session.StateFinal}}, nil
		}
		s.MSN = msnOf(m)
		s.LastSent = m.Message
		sdu, err := encode(m)
		if err != nil {
			return nil, err
		}
		effects := []dispatch.Effect{dispatch.InstallRule{Rule: ruleFromFlow(flowOf(m))}}
		if h.NATEdge {
			effects = append(effects, dispatch.ReserveNAT{PrivateAddr: flowOf(m).SrcAddr.String()})
		}
		effects = append(effects,
			send(s.MRI, sdu),
			dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.ResponseWait},
			dispatch.TransitionTo{State: session.StateWaitResp},
		)
		return effects, nil

	case session.StateSession:
		return h.handleRefresh(s, m)
	}
	return nil, nil
}

func (h *Forwarder) handleRefresh(s *session.Session, m *natfw.Message) ([]dispatch.Effect, error) {
	msn := msnOf(m)
	if !nslp.Precedes(s.MSN, msn) {
		return nil, nil
	}
	lifetime := lifetimeOf(m)
	s.MSN = msn
	s.LastSent = m.Message
	sdu, err := encode(m)
	if err != nil {
		return nil, err
	}
	if lifetime == 0 {
		effects := []dispatch.Effect{dispatch.RemoveRule{}}
		if h.NATEdge {
			effects = append(effects, dispatch.ReleaseNAT{})
		}
		effects = append(effects,
			send(s.MRI, sdu),
			dispatch.CancelTimer{Slot: session.RefreshTimer},
			dispatch.TransitionTo{State: session.StateFinal},
		)
		return effects, nil
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.ResponseWait},
	}, nil
}

func (h *Forwarder) handleResponse(s *session.Session, m *natfw.Message) ([]dispatch.Effect, error) {
	switch s.CurrentState() {
	case session.StateWaitResp:
		sdu, err := encode(m)
		if err != nil {
			return nil, err
		}
		if !isSuccess(m) {
			effects := []dispatch.Effect{dispatch.RemoveRule{}}
			if h.NATEdge {
				effects = append(effects, dispatch.ReleaseNAT{})
			}
			effects = append(effects, send(s.MRI, sdu), dispatch.TransitionTo{State: session.StateFinal})
			return effects, nil
		}
		s.RetryCounter = 0
		lifetime := lifetimeOf(&natfw.Message{Message: s.LastSent})
		return []dispatch.Effect{
			send(s.MRI, sdu),
			dispatch.CancelTimer{Slot: session.ResponseTimer},
			dispatch.StartTimer{Slot: session.RefreshTimer, Duration: h.Policy.stateTimer(lifetime) * 2 / 3},
			dispatch.TransitionTo{State: session.StateSession},
		}, nil

	case session.StateSession:
		sdu, err := encode(m)
		if err != nil {
			return nil, err
		}
		if !isSuccess(m) {
			effects := []dispatch.Effect{dispatch.RemoveRule{}}
			if h.NATEdge {
				effects = append(effects, dispatch.ReleaseNAT{})
			}
			effects = append(effects, send(s.MRI, sdu), dispatch.TransitionTo{State: session.StateFinal})
			return effects, nil
		}
		s.RetryCounter = 0
		return []dispatch.Effect{send(s.MRI, sdu), dispatch.CancelTimer{Slot: session.ResponseTimer}}, nil
	}
	return nil, nil
}

func (h *Forwarder) handleResponseTimeout(s *session.Session) ([]dispatch.Effect, error) {
	if s.CurrentState() != session.StateWaitResp && s.CurrentState() != session.StateSession {
		return nil, nil
	}
	if s.RetryCounter >= h.Policy.MaxRetries {
		effects := []dispatch.Effect{dispatch.RemoveRule{}}
		if h.NATEdge {
			effects = append(effects, dispatch.ReleaseNAT{})
		}
		effects = append(effects, dispatch.TransitionTo{State: session.StateFinal})
		return effects, nil
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
