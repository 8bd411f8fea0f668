// Package natfw implements the NATFW-NSLP message and object family: the
// CREATE/EXT/RESPONSE/NOTIFY message types, their objects, and the
// required-object matrix per message type.
package natfw

import (
	"fmt"
	"net"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
	"github.com/kit-nsis/gosis/nslp"
)

// MsgType identifies a NATFW-NSLP message type.
type MsgType uint8

// The four NATFW message types.
const (
	MsgCreate MsgType = iota + 1
	MsgExt
	MsgResponse
	MsgNotify
)

func (m MsgType) String() string {
	switch m {
	case MsgCreate:
		return "create"
	case MsgExt:
		return "ext"
	case MsgResponse:
		return "response"
	case MsgNotify:
		return "notify"
	default:
		return fmt.Sprintf("msgtype(%d)", uint8(m))
	}
}

// ObjType identifies a NATFW-NSLP object's 12-bit wire type code.
type ObjType uint16

// NATFW object type codes, per spec.md §3/§4.4.
const (
	ObjSessionLifetime ObjType = iota + 1
	ObjExternalAddress
	ObjExtendedFlowInfo
	ObjInformationCode
	ObjNonce
	ObjMessageSequenceNumber
	ObjDataTerminalInfo
	ObjICMPTypes
)

// requiredObjects is the required-object matrix per message type, per
// spec.md §4.4: "NATFW CREATE carries SessionLifetime + ExtendedFlowInfo
// + MSN and optionally Nonce + ICMPTypes; NATFW RESPONSE carries
// InformationCode and optional ExternalAddress."
var requiredObjects = map[MsgType][]ObjType{
	MsgCreate:   {ObjSessionLifetime, ObjExtendedFlowInfo, ObjMessageSequenceNumber},
	MsgExt:      {ObjSessionLifetime, ObjExtendedFlowInfo, ObjMessageSequenceNumber},
	MsgResponse: {ObjInformationCode},
	MsgNotify:   {ObjInformationCode},
}

// decodeObject builds a blank typed object for the given NATFW object
// type code, implementing nslp.ObjectDecoder.
func decodeObject(typ uint16) (ie.IE, bool) {
	switch ObjType(typ) {
	case ObjSessionLifetime:
		return &SessionLifetime{}, true
	case ObjExternalAddress:
		return &ExternalAddress{}, true
	case ObjExtendedFlowInfo:
		return &ExtendedFlowInfo{}, true
	case ObjInformationCode:
		return &InformationCode{}, true
	case ObjNonce:
		return &Nonce{}, true
	case ObjMessageSequenceNumber:
		return &MessageSequenceNumber{}, true
	case ObjDataTerminalInfo:
		return &DataTerminalInfo{}, true
	case ObjICMPTypes:
		return &ICMPTypes{}, true
	default:
		return nil, false
	}
}

// Message is a NATFW-NSLP message: the common NSLP header plus the
// NATFW message type and its objects.
type Message struct {
	*nslp.Message
	Type MsgType
}

// NewMessage builds an empty NATFW message of the given type.
func NewMessage(msgType MsgType) *Message {
	return &Message{Message: nslp.NewMessage(1, uint8(msgType)), Type: msgType}
}

// Check validates that every object required for this message type is
// present, per the required-object matrix.
func (m *Message) Check() error {
	required, ok := requiredObjects[m.Type]
	if !ok {
		return fmt.Errorf("natfw: unknown message type %d", m.Type)
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

// Deserialize reads a NATFW message from buf, deriving its type from the
// NSLP PDU header's message-type field.
func Deserialize(buf *netbuf.NetBuf, coding ie.CodingVersion) (*Message, error) {
	generic, err := nslp.DeserializeMessage(buf, coding, decodeObject)
	if err != nil {
		return nil, err
	}
	m := &Message{Message: generic, Type: MsgType(generic.Header.MsgType)}
	if err := m.Check(); err != nil {
		return nil, fmt.Errorf("natfw: %w", err)
	}
	return m, nil
}

// addrBytes returns addr's packed bytes and whether it is IPv4 or IPv6.
func addrBytes(addr net.IP) ([]byte, uint8, error) {
	if v4 := addr.To4(); v4 != nil {
		return v4, 4, nil
	}
	if v6 := addr.To16(); v6 != nil {
		return v6, 6, nil
	}
	return nil, 0, fmt.Errorf("natfw: invalid IP address %v", addr)
}
