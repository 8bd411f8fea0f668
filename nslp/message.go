package nslp

import (
	"fmt"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
)

// ObjectDecoder builds a blank, typed object for a given NSLP object type
// code, or reports it doesn't recognise the type. Concrete applications
// (natfw, qos) supply one of these so Message decoding can produce typed
// objects instead of always falling back to RawObject.
type ObjectDecoder func(objType uint16) (ie.IE, bool)

// Message is a generic NSLP PDU: the common header plus a set of objects
// keyed by type code. spec.md §4.4 requires uniqueness per object type,
// enforced here by Objects being a map.
type Message struct {
	Header  PDUHeader
	Objects map[uint16]ie.IE
	// order preserves insertion order for deterministic serialization.
	order []uint16
}

// NewMessage builds an empty message with the given message type.
func NewMessage(version, msgType uint8) *Message {
	return &Message{
		Header:  PDUHeader{Version: version, MsgType: msgType},
		Objects: make(map[uint16]ie.IE),
	}
}

// SetObject attaches (or replaces) an object under its own type code.
func (m *Message) SetObject(typ uint16, obj ie.IE) {
	if _, exists := m.Objects[typ]; !exists {
		m.order = append(m.order, typ)
	}
	m.Objects[typ] = obj
}

// RequireObjects checks that every type in required is present, returning
// an error naming the first missing one.
func (m *Message) RequireObjects(required ...uint16) error {
	for _, t := range required {
		if _, ok := m.Objects[t]; !ok {
			return fmt.Errorf("nslp: message type %d missing required object type %d", m.Header.MsgType, t)
		}
	}
	return nil
}

// Serialize writes the message to buf.
func (m *Message) Serialize(buf *netbuf.NetBuf, coding ie.CodingVersion) (int, error) {
	start := buf.Len()
	bodySize := 0
	for _, typ := range m.order {
		obj := m.Objects[typ]
		n := obj.SerializedSize(coding)
		bodySize += ObjectHeaderSize + n + netbuf.PadLen(n)
	}
	if bodySize%4 != 0 {
		return 0, fmt.Errorf("nslp: message body size %d not word-aligned", bodySize)
	}
	m.Header.LengthWords = uint8(bodySize / 4)
	if int(m.Header.LengthWords)*4 != bodySize {
		return 0, fmt.Errorf("nslp: message body size %d overflows 8-bit word length", bodySize)
	}
	m.Header.Marshal(buf)

	for _, typ := range m.order {
		obj := m.Objects[typ]
		action := actionForObject(obj)
		hdr := ObjectHeader{Action: action, Type: typ, LengthWords: uint16(obj.SerializedSize(coding) / 4)}
		hdr.Marshal(buf)
		objStart := buf.Len()
		if _, err := obj.Serialize(buf, coding); err != nil {
			return 0, fmt.Errorf("nslp: object type %d: %w", typ, err)
		}
		buf.WritePad(buf.Len() - objStart)
	}
	return buf.Len() - start, nil
}

// actionForObject reports the extensibility action this object should be
// tagged with on the wire. RawObject remembers its original action (set
// when it was decoded as an unknown type and must be forwarded
// verbatim); concrete typed objects default to Mandatory.
func actionForObject(obj ie.IE) Action {
	if r, ok := obj.(*RawObject); ok {
		return r.Header.Action
	}
	return ActionMandatory
}

// DeserializeMessage reads an NSLP message from buf using decode to build
// concrete object types, falling back to RawObject for anything decode
// doesn't recognise. A Mandatory object of unknown type fails the whole
// message; an Ignore object of unknown type is skipped and dropped;
// Forward/Refresh objects of unknown type are kept as RawObject and
// preserved on re-serialization.
func DeserializeMessage(buf *netbuf.NetBuf, coding ie.CodingVersion, decode ObjectDecoder) (*Message, error) {
	start := buf.Pos()
	h, err := UnmarshalPDUHeader(buf)
	if err != nil {
		return nil, err
	}
	end := start + PDUHeaderSize + h.BodyLen()
	m := &Message{Header: h, Objects: make(map[uint16]ie.IE)}

	for buf.Pos() < end {
		objStart := buf.Pos()
		oh, err := UnmarshalObjectHeader(buf)
		if err != nil {
			return nil, err
		}
		var obj ie.IE
		if decode != nil {
			if proto, ok := decode(oh.Type); ok {
				obj = proto
			}
		}
		if obj == nil {
			if oh.Action == ActionMandatory {
				return nil, &ErrMandatoryUnknownObject{Type: oh.Type}
			}
			obj = &RawObject{Header: oh}
		}
		errs := &ie.ErrorList{}
		if _, err := obj.Deserialize(buf, coding, errs, false); err != nil {
			return nil, fmt.Errorf("nslp: object type %d at offset %d: %w", oh.Type, objStart, err)
		}
		if err := buf.SkipPad(oh.BodyLen()); err != nil {
			return nil, err
		}
		if raw, ok := obj.(*RawObject); ok && raw.Header.Action == ActionIgnore {
			continue
		}
		m.SetObject(oh.Type, obj)
	}
	if buf.Pos() != end {
		return nil, fmt.Errorf("nslp: message boundary mismatch, at %d expected %d", buf.Pos(), end)
	}
	return m, nil
}
