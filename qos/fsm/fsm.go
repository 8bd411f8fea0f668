// Package fsm implements the QoS-NSLP per-role session state machines
// (Initiator, Forwarder, Responder) as dispatch.Handler implementations,
// per spec.md §4.7.5's "analogous structure" to NATFW-NSLP, adapted for
// RESERVE/QUERY/RESPONSE/NOTIFY and the RII/RSN/PacketClassifier/QSPEC
// object family.
package fsm

import (
	"time"

	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
	"github.com/kit-nsis/gosis/nslp/qos"
	"github.com/kit-nsis/gosis/qspec"
)

// Policy bounds the state machines' retry and lifetime behaviour. A
// zero-value Policy is invalid; use DefaultPolicy.
type Policy struct {
	MaxLifetime    uint32
	MaxRetries     uint32
	ResponseWait   time.Duration
	BackoffCeiling time.Duration
	StateTimerCap  time.Duration
}

// DefaultPolicy mirrors natfw/fsm.DefaultPolicy's bounds; spec.md §4.7.5
// gives QoS-NSLP the same retry/backoff/lifetime discipline as NATFW-NSLP.
var DefaultPolicy = Policy{
	MaxLifetime:    3600,
	MaxRetries:     3,
	ResponseWait:   2 * time.Second,
	BackoffCeiling: 32 * time.Second,
	StateTimerCap:  2 * time.Hour,
}

func (p Policy) backoff(retry uint32) time.Duration {
	d := p.ResponseWait
	for i := uint32(0); i < retry; i++ {
		d *= 2
		if d >= p.BackoffCeiling {
			return p.BackoffCeiling
		}
	}
	return d
}

func (p Policy) stateTimer(lifetime uint32) time.Duration {
	d := time.Duration(lifetime) * time.Second * 3 / 2
	if d > p.StateTimerCap {
		return p.StateTimerCap
	}
	return d
}

// encode serializes m into bytes suitable for a dispatch.Send effect's
// SDU field.
func encode(m *qos.Message) ([]byte, error) {
	buf := netbuf.NewEmpty(64)
	if _, err := m.Serialize(buf, ie.DefaultCoding); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildReserve assembles a RESERVE (or, with lifetime 0, a teardown
// RESERVE) carrying the session's current RSN, flow classifier and
// requested QSPEC.
func buildReserve(rsn uint32, lifetime uint32, pc qos.PacketClassifier, pdu *qspec.PDU) *qos.Message {
	m := qos.NewMessage(qos.MsgReserve)
	m.SetObject(uint16(qos.ObjRSN), &qos.RSN{Value: rsn})
	m.SetObject(uint16(qos.ObjSessionLifetime), &qos.SessionLifetime{Seconds: lifetime})
	m.SetObject(uint16(qos.ObjPacketClassifier), &pc)
	m.SetObject(uint16(qos.ObjQSPEC), &qos.QSPECObject{PDU: pdu})
	return m
}

// buildResponse assembles a RESPONSE echoing rsn. A granted reservation
// carries the resulting QSPEC back to the requester; a rejection carries
// no QSPEC object at all -- RESPONSE's only required object is RSN (see
// nslp/qos.requiredObjects), leaving QSPEC free to double as the
// accept/reject signal, the QoS analogue of NATFW's InformationCode.
func buildResponse(rsn uint32, granted *qspec.PDU) *qos.Message {
	m := qos.NewMessage(qos.MsgResponse)
	m.SetObject(uint16(qos.ObjRSN), &qos.RSN{Value: rsn})
	if granted != nil {
		m.SetObject(uint16(qos.ObjQSPEC), &qos.QSPECObject{PDU: granted})
	}
	return m
}

// buildNotify assembles a NOTIFY: the unsolicited teardown signal a
// responder sends when its reservation's state timer expires without a
// refresh, per spec.md §4.7.5. Only the responder sends one; a forwarder
// neither sends nor relays NOTIFY.
func buildNotify(rsn uint32) *qos.Message {
	m := qos.NewMessage(qos.MsgNotify)
	m.SetObject(uint16(qos.ObjRSN), &qos.RSN{Value: rsn})
	return m
}

func responseGranted(m *qos.Message) (*qspec.PDU, bool) {
	o, ok := m.Objects[uint16(qos.ObjQSPEC)].(*qos.QSPECObject)
	if !ok {
		return nil, false
	}
	return o.PDU, true
}

func rsnOf(m *qos.Message) uint32 {
	if o, ok := m.Objects[uint16(qos.ObjRSN)].(*qos.RSN); ok {
		return o.Value
	}
	return 0
}

func lifetimeOf(m *qos.Message) uint32 {
	if o, ok := m.Objects[uint16(qos.ObjSessionLifetime)].(*qos.SessionLifetime); ok {
		return o.Seconds
	}
	return 0
}

func classifierOf(m *qos.Message) qos.PacketClassifier {
	if o, ok := m.Objects[uint16(qos.ObjPacketClassifier)].(*qos.PacketClassifier); ok {
		return *o
	}
	return qos.PacketClassifier{}
}

func qspecOf(m *qos.Message) *qspec.PDU {
	if o, ok := m.Objects[uint16(qos.ObjQSPEC)].(*qos.QSPECObject); ok {
		return o.PDU
	}
	return nil
}

// ReserveRequest is the payload of the api_reserve_event that opens a
// QoS Initiator session, per spec.md §6.
type ReserveRequest struct {
	MRI      []byte
	Flow     qos.PacketClassifier
	Lifetime uint32
	QSPEC    *qspec.PDU
}

// TeardownRequest is the payload of the api_teardown_event releasing a
// reservation. It carries no fields; the session it targets is named by
// the enclosing ApiEvent's SID.
type TeardownRequest struct{}

const (
	kindReserve  = "reserve"
	kindTeardown = "teardown"
)

func send(mri []byte, sdu []byte) dispatch.Effect {
	return dispatch.Send{MRI: mri, SDU: sdu}
}

// ruleFromClassifier maps a QoS packet classifier to the generic
// rule-installer description a QNE forwarder/responder installs the
// reservation through, per spec.md §4.7.5's "installed via the
// rule-installer interface" -- QoS reuses the same collaborator NATFW
// does, just to reserve bandwidth rather than to allow/deny.
func ruleFromClassifier(pc qos.PacketClassifier) dispatch.Rule {
	return dispatch.Rule{
		Action:    dispatch.RuleAllow,
		SrcCIDR:   pc.SrcAddr.String(),
		DstCIDR:   pc.DstAddr.String(),
		SrcPortLo: pc.SrcPort, SrcPortHi: pc.SrcPort,
		DstPortLo: pc.DstPort, DstPortHi: pc.DstPort,
		Protocol: pc.Protocol,
	}
}
