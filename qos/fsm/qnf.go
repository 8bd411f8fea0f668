package fsm

import (
	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/nslp"
	"github.com/kit-nsis/gosis/nslp/qos"
	"github.com/kit-nsis/gosis/qspec"
	"github.com/kit-nsis/gosis/session"
)

// Forwarder implements the QNE forwarder role's state machine, per
// spec.md §4.7.5: Idle -> WaitResp -> Session -> Final, installing a
// reservation on the first RESERVE and removing it on teardown or
// failure, the QoS analogue of natfw/fsm.Forwarder. Before re-emitting
// a RESERVE or QUERY downstream it merges its own locally available
// QSPEC with the upstream request via qos.Aggregate -- the minimum of
// per-hop available rates and the sum of path-latencies, per spec.md
// §4.7.5.
type Forwarder struct {
	Policy Policy
	// Local reports this hop's own available QoS, aggregated into every
	// RESERVE/QUERY forwarded downstream. Nil means no local constraint.
	Local func() *qspec.PDU
}

// NewForwarder builds a Forwarder under DefaultPolicy with no local
// QSPEC constraint.
func NewForwarder() *Forwarder { return &Forwarder{Policy: DefaultPolicy} }

// Handle implements dispatch.Handler.
func (h *Forwarder) Handle(s *session.Session, ev dispatch.Event) ([]dispatch.Effect, error) {
	switch e := ev.(type) {
	case *dispatch.MessageEvent:
		s.MRI = e.MRI
		m, ok := e.ParsedMessage.(*qos.Message)
		if !ok {
			return nil, nil
		}
		switch m.Type {
		case qos.MsgReserve:
			return h.handleReserve(s, m)
		case qos.MsgResponse:
			return h.handleResponse(s, m)
		case qos.MsgQuery:
			return h.handleQuery(s, m)
		}
		return nil, nil

	case *dispatch.TimerEvent:
		if e.Slot == session.ResponseTimer {
			return h.handleResponseTimeout(s)
		}
	}
	return nil, nil
}

// aggregate merges m's carried QSPEC with this hop's local QSPEC, per
// qos.Aggregate. A Forwarder with no Local func forwards the request's
// QSPEC unchanged.
func (h *Forwarder) aggregate(m *qos.Message) (*qspec.PDU, error) {
	requested := qspecOf(m)
	if h.Local == nil || requested == nil {
		return requested, nil
	}
	local := h.Local()
	if local == nil {
		return requested, nil
	}
	return qos.Aggregate(local, requested)
}

func (h *Forwarder) handleReserve(s *session.Session, m *qos.Message) ([]dispatch.Effect, error) {
	switch s.CurrentState() {
	case session.StateIdle:
		lifetime := lifetimeOf(m)
		if lifetime == 0 || lifetime > h.Policy.MaxLifetime {
			sdu, err := encode(buildResponse(rsnOf(m), nil))
			if err != nil {
				return nil, err
			}
			return []dispatch.Effect{send(s.MRI, sdu), dispatch.TransitionTo{State: session.StateFinal}}, nil
		}
		merged, err := h.aggregate(m)
		if err != nil {
			return nil, err
		}
		s.MSN = rsnOf(m)
		out := buildReserve(rsnOf(m), lifetime, classifierOf(m), merged)
		s.LastSent = out.Message
		sdu, err := encode(out)
		if err != nil {
			return nil, err
		}
		return []dispatch.Effect{
			dispatch.InstallRule{Rule: ruleFromClassifier(classifierOf(m))},
			send(s.MRI, sdu),
			dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.ResponseWait},
			dispatch.TransitionTo{State: session.StateWaitResp},
		}, nil

	case session.StateSession:
		return h.handleRefresh(s, m)
	}
	return nil, nil
}

func (h *Forwarder) handleRefresh(s *session.Session, m *qos.Message) ([]dispatch.Effect, error) {
	rsn := rsnOf(m)
	if !nslp.Precedes(s.MSN, rsn) {
		return nil, nil
	}
	lifetime := lifetimeOf(m)
	s.MSN = rsn
	if lifetime == 0 {
		out := buildReserve(rsn, 0, classifierOf(m), qspecOf(m))
		s.LastSent = out.Message
		sdu, err := encode(out)
		if err != nil {
			return nil, err
		}
		return []dispatch.Effect{
			dispatch.RemoveRule{},
			send(s.MRI, sdu),
			dispatch.CancelTimer{Slot: session.RefreshTimer},
			dispatch.TransitionTo{State: session.StateFinal},
		}, nil
	}
	merged, err := h.aggregate(m)
	if err != nil {
		return nil, err
	}
	out := buildReserve(rsn, lifetime, classifierOf(m), merged)
	s.LastSent = out.Message
	sdu, err := encode(out)
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.ResponseWait},
	}, nil
}

func (h *Forwarder) handleResponse(s *session.Session, m *qos.Message) ([]dispatch.Effect, error) {
	sdu, err := encode(m)
	if err != nil {
		return nil, err
	}
	_, granted := responseGranted(m)
	switch s.CurrentState() {
	case session.StateWaitResp:
		if !granted {
			return []dispatch.Effect{dispatch.RemoveRule{}, send(s.MRI, sdu), dispatch.TransitionTo{State: session.StateFinal}}, nil
		}
		s.RetryCounter = 0
		lifetime := lifetimeOf(&qos.Message{Message: s.LastSent})
		return []dispatch.Effect{
			send(s.MRI, sdu),
			dispatch.CancelTimer{Slot: session.ResponseTimer},
			dispatch.StartTimer{Slot: session.RefreshTimer, Duration: h.Policy.stateTimer(lifetime) * 2 / 3},
			dispatch.TransitionTo{State: session.StateSession},
		}, nil

	case session.StateSession:
		if !granted {
			return []dispatch.Effect{dispatch.RemoveRule{}, send(s.MRI, sdu), dispatch.TransitionTo{State: session.StateFinal}}, nil
		}
		s.RetryCounter = 0
		return []dispatch.Effect{send(s.MRI, sdu), dispatch.CancelTimer{Slot: session.ResponseTimer}}, nil
	}
	return nil, nil
}

// handleQuery forwards a stateless QUERY probe downstream after
// aggregating its carried QSPEC, without installing a reservation or
// changing session state -- a QUERY surveys available resources along
// the path, per spec.md §4.7.5, rather than establishing one.
func (h *Forwarder) handleQuery(s *session.Session, m *qos.Message) ([]dispatch.Effect, error) {
	merged, err := h.aggregate(m)
	if err != nil {
		return nil, err
	}
	out := qos.NewMessage(qos.MsgQuery)
	for typ, obj := range m.Objects {
		out.SetObject(typ, obj)
	}
	out.SetObject(uint16(qos.ObjQSPEC), &qos.QSPECObject{PDU: merged})
	sdu, err := encode(out)
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{send(s.MRI, sdu)}, nil
}

func (h *Forwarder) handleResponseTimeout(s *session.Session) ([]dispatch.Effect, error) {
	if s.CurrentState() != session.StateWaitResp && s.CurrentState() != session.StateSession {
		return nil, nil
	}
	if s.RetryCounter >= h.Policy.MaxRetries {
		return []dispatch.Effect{dispatch.RemoveRule{}, dispatch.TransitionTo{State: session.StateFinal}}, nil
	}
	s.RetryCounter++
	sdu, err := encode(&qos.Message{Message: s.LastSent, Type: qos.MsgReserve})
	if err != nil {
		return nil, err
	}
	return []dispatch.Effect{
		send(s.MRI, sdu),
		dispatch.StartTimer{Slot: session.ResponseTimer, Duration: h.Policy.backoff(s.RetryCounter)},
	}, nil
}
