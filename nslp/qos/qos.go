// Package qos implements the QoS-NSLP message and object family:
// RESERVE/QUERY/RESPONSE/NOTIFY message types, their objects (RII, RSN,
// SessionLifetime, PacketClassifier, QSPEC, BoundSessionID, VLSP), and
// per-hop QSPEC aggregation.
package qos

import (
	"fmt"
	"net"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
	"github.com/kit-nsis/gosis/nslp"
	"github.com/kit-nsis/gosis/qspec"
)

// MsgType identifies a QoS-NSLP message type.
type MsgType uint8

// The four QoS-NSLP message types, per spec.md §4.7.5.
const (
	MsgReserve MsgType = iota + 1
	MsgQuery
	MsgResponse
	MsgNotify
)

func (m MsgType) String() string {
	switch m {
	case MsgReserve:
		return "reserve"
	case MsgQuery:
		return "query"
	case MsgResponse:
		return "response"
	case MsgNotify:
		return "notify"
	default:
		return fmt.Sprintf("msgtype(%d)", uint8(m))
	}
}

// ObjType identifies a QoS-NSLP object's 12-bit wire type code.
type ObjType uint16

// QoS-NSLP object type codes.
const (
	ObjRII ObjType = iota + 1
	ObjRSN
	ObjSessionLifetime
	ObjPacketClassifier
	ObjQSPEC
	ObjBoundSessionID
	ObjVLSP
)

var requiredObjects = map[MsgType][]ObjType{
	MsgReserve:  {ObjRSN, ObjSessionLifetime, ObjPacketClassifier, ObjQSPEC},
	MsgQuery:    {ObjRII, ObjPacketClassifier, ObjQSPEC},
	MsgResponse: {ObjRSN},
	MsgNotify:   {ObjRSN},
}

func decodeObject(typ uint16) (ie.IE, bool) {
	switch ObjType(typ) {
	case ObjRII:
		return &RII{}, true
	case ObjRSN:
		return &RSN{}, true
	case ObjSessionLifetime:
		return &SessionLifetime{}, true
	case ObjPacketClassifier:
		return &PacketClassifier{}, true
	case ObjQSPEC:
		return &QSPECObject{}, true
	case ObjBoundSessionID:
		return &BoundSessionID{}, true
	case ObjVLSP:
		return &VLSP{}, true
	default:
		return nil, false
	}
}

// Message is a QoS-NSLP message: the common NSLP header, the QoS
// message type, and its objects.
type Message struct {
	*nslp.Message
	Type MsgType
}

// NewMessage builds an empty QoS message of the given type.
func NewMessage(msgType MsgType) *Message {
	return &Message{Message: nslp.NewMessage(1, uint8(msgType)), Type: msgType}
}

// Check validates the required-object matrix for this message type.
func (m *Message) Check() error {
	required, ok := requiredObjects[m.Type]
	if !ok {
		return fmt.Errorf("qos: unknown message type %d", m.Type)
	}
	typed := make([]uint16, len(required))
	for i, t := range required {
		typed[i] = uint16(t)
	}
	return m.RequireObjects(typed...)
}

// Serialize validates and writes the message.
func (m *Message) Serialize(buf *netbuf.NetBuf, coding ie.CodingVersion) (int, error) {
	if err := m.Check(); err != nil {
		return 0, err
	}
	return m.Message.Serialize(buf, coding)
}

// Deserialize reads a QoS-NSLP message from buf.
func Deserialize(buf *netbuf.NetBuf, coding ie.CodingVersion) (*Message, error) {
	generic, err := nslp.DeserializeMessage(buf, coding, decodeObject)
	if err != nil {
		return nil, err
	}
	m := &Message{Message: generic, Type: MsgType(generic.Header.MsgType)}
	if err := m.Check(); err != nil {
		return nil, fmt.Errorf("qos: %w", err)
	}
	return m, nil
}

func addrBytes(addr net.IP) ([]byte, uint8, error) {
	if v4 := addr.To4(); v4 != nil {
		return v4, 4, nil
	}
	if v6 := addr.To16(); v6 != nil {
		return v6, 6, nil
	}
	return nil, 0, fmt.Errorf("qos: invalid IP address %v", addr)
}

// Aggregate computes the per-hop QSPEC aggregation a QNE forwarder
// applies before re-emitting a RESERVE/QUERY downstream, per spec.md
// §4.7.5: the minimum of per-hop available rates, and the sum of
// path-latencies. Only the QoS-Available object's TMOD rate and the
// path-latency parameter participate; other parameters pass through
// from upstream unchanged.
func Aggregate(local, upstream *qspec.PDU) (*qspec.PDU, error) {
	out := &qspec.PDU{Header: upstream.Header, Objects: make(map[qspec.ObjectKind]*qspec.Object)}
	for kind, obj := range upstream.Objects {
		out.Objects[kind] = obj
	}
	localAvail, hasLocal := local.Objects[qspec.ObjectQoSAvailable]
	upstreamAvail, hasUpstream := upstream.Objects[qspec.ObjectQoSAvailable]
	if !hasLocal || !hasUpstream {
		return out, nil
	}
	merged := mergeAvailable(localAvail, upstreamAvail)
	out.Objects[qspec.ObjectQoSAvailable] = merged
	return out, nil
}

func mergeAvailable(local, upstream *qspec.Object) *qspec.Object {
	merged := &qspec.Object{Parameters: make([]qspec.Parameter, 0, len(upstream.Parameters))}
	localLatency, upstreamLatency := findLatency(local), findLatency(upstream)
	localTMOD, upstreamTMOD := findTMOD(local), findTMOD(upstream)

	for _, p := range upstream.Parameters {
		switch v := p.(type) {
		case *qspec.TMOD:
			merged.Parameters = append(merged.Parameters, minTMOD(localTMOD, v))
		case *qspec.PathLatency:
			merged.Parameters = append(merged.Parameters, sumLatency(localLatency, v))
		default:
			merged.Parameters = append(merged.Parameters, v)
		}
	}
	if upstreamTMOD == nil && localTMOD != nil {
		merged.Parameters = append(merged.Parameters, localTMOD)
	}
	if upstreamLatency == nil && localLatency != nil {
		merged.Parameters = append(merged.Parameters, localLatency)
	}
	return merged
}

func findTMOD(o *qspec.Object) *qspec.TMOD {
	for _, p := range o.Parameters {
		if t, ok := p.(*qspec.TMOD); ok {
			return t
		}
	}
	return nil
}

func findLatency(o *qspec.Object) *qspec.PathLatency {
	for _, p := range o.Parameters {
		if l, ok := p.(*qspec.PathLatency); ok {
			return l
		}
	}
	return nil
}

func minTMOD(local *qspec.TMOD, upstream *qspec.TMOD) *qspec.TMOD {
	if local == nil {
		return upstream
	}
	out := *upstream
	if local.Rate < out.Rate {
		out.Rate = local.Rate
	}
	return &out
}

func sumLatency(local *qspec.PathLatency, upstream *qspec.PathLatency) *qspec.PathLatency {
	if local == nil {
		return upstream
	}
	return &qspec.PathLatency{Micros: local.Micros + upstream.Micros}
}
