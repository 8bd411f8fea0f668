// Package nslp implements the shared machinery both signaling
// applications (NATFW-NSLP and QoS-NSLP) build on: the common NSLP PDU
// header, the object header and its extensibility-action semantics, and
// a generic typed-object container every concrete message embeds.
package nslp

import (
	"fmt"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
)

// Precedes implements the RFC-1982 serial-number comparison both the
// NATFW MSN and the QoS RSN use for wrap-around-safe ordering, per
// spec.md §4.7.1: a ≺ b iff 0 < (b-a) mod 2^32 < 2^31.
func Precedes(a, b uint32) bool {
	d := b - a
	return d != 0 && d < 1<<31
}

// Action is the 2-bit extensibility-action field every NSLP object header
// carries, governing what a receiver does with an object type it doesn't
// recognise, per spec.md §4.4.
type Action uint8

// The four extensibility actions.
const (
	// ActionMandatory rejects the whole PDU with a protocol error.
	ActionMandatory Action = iota
	// ActionIgnore drops the object and continues.
	ActionIgnore
	// ActionForward keeps the object opaque and forwards it unchanged.
	ActionForward
	// ActionRefresh forwards the object and also includes it on refreshes.
	ActionRefresh
)

func (a Action) String() string {
	switch a {
	case ActionMandatory:
		return "mandatory"
	case ActionIgnore:
		return "ignore"
	case ActionForward:
		return "forward"
	case ActionRefresh:
		return "refresh"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// ObjectHeaderSize is the fixed 4-byte NSLP object header: 2-bit action,
// 12-bit type, 6-bit reserved, 12-bit length in 32-bit words.
const ObjectHeaderSize = 4

// ObjectHeader is the common header every NSLP object carries.
type ObjectHeader struct {
	Action Action
	Type   uint16 // 12 bits
	// LengthWords is the object body's length in 32-bit words, excluding
	// this header and excluding implicit tail padding, per spec.md §4.4.
	LengthWords uint16 // 12 bits
}

// Marshal writes the header to buf.
func (h ObjectHeader) Marshal(buf *netbuf.NetBuf) {
	var word uint32
	word |= uint32(h.Action&0x3) << 30
	word |= uint32(h.Type&0x0fff) << 18
	word |= uint32(h.LengthWords & 0x0fff)
	buf.WriteUint32(word)
}

// UnmarshalObjectHeader reads an NSLP object header from buf.
func UnmarshalObjectHeader(buf *netbuf.NetBuf) (ObjectHeader, error) {
	word, err := buf.ReadUint32()
	if err != nil {
		return ObjectHeader{}, err
	}
	return ObjectHeader{
		Action:      Action(word >> 30 & 0x3),
		Type:        uint16(word >> 18 & 0x0fff),
		LengthWords: uint16(word & 0x0fff),
	}, nil
}

// BodyLen reports the object body length in bytes.
func (h ObjectHeader) BodyLen() int { return int(h.LengthWords) * 4 }

// PDUHeaderSize is the fixed 4-byte NSLP PDU header.
const PDUHeaderSize = 4

// PDUHeader is the common NSLP PDU header packed into a single 32-bit
// word: 4-bit version, 8-bit message type, 8-bit hop counter, 4-bit
// flags, 8-bit length in 32-bit words, per spec.md §3. The 8-bit length
// field caps a PDU's object payload at 255 words (1020 bytes); NSLP
// messages in this suite stay well under that.
type PDUHeader struct {
	Version  uint8 // 4 bits
	MsgType  uint8 // 8 bits
	HopCount uint8 // 8 bits
	Flags    uint8 // 4 bits
	// LengthWords is the PDU's object payload length in 32-bit words,
	// excluding this 4-byte header.
	LengthWords uint8 // 8 bits
}

// Marshal writes the PDU header.
func (h PDUHeader) Marshal(buf *netbuf.NetBuf) {
	var word uint32
	word |= uint32(h.Version&0xf) << 28
	word |= uint32(h.MsgType) << 20
	word |= uint32(h.HopCount) << 12
	word |= uint32(h.Flags&0xf) << 8
	word |= uint32(h.LengthWords)
	buf.WriteUint32(word)
}

// UnmarshalPDUHeader reads the fixed 4-byte PDU header.
func UnmarshalPDUHeader(buf *netbuf.NetBuf) (PDUHeader, error) {
	word, err := buf.ReadUint32()
	if err != nil {
		return PDUHeader{}, err
	}
	return PDUHeader{
		Version:     uint8(word >> 28 & 0xf),
		MsgType:     uint8(word >> 20 & 0xff),
		HopCount:    uint8(word >> 12 & 0xff),
		Flags:       uint8(word >> 8 & 0xf),
		LengthWords: uint8(word & 0xff),
	}, nil
}

// BodyLen reports the PDU's object payload length in bytes.
func (h PDUHeader) BodyLen() int { return int(h.LengthWords) * 4 }

// ErrMandatoryUnknownObject is returned when an object carrying the
// Mandatory extensibility action has a type code the receiver doesn't
// recognise, per spec.md §4.4 -- the whole PDU is rejected.
type ErrMandatoryUnknownObject struct {
	Type uint16
}

func (e *ErrMandatoryUnknownObject) Error() string {
	return fmt.Sprintf("nslp: unknown mandatory object type %d", e.Type)
}

// RawObject preserves an object this application doesn't parse into a
// concrete type: used for Forward/Refresh actions on a locally-unknown
// type (an unknown Mandatory object fails the whole message, and an
// unknown Ignore object is dropped). It satisfies ie.IE.
type RawObject struct {
	Header ObjectHeader
	Body   []byte
}

// Category implements ie.IE.
func (r *RawObject) Category() ie.Category { return ie.CategoryObject }

// Type implements ie.IE.
func (r *RawObject) Type() uint16 { return r.Header.Type }

// Subtype implements ie.IE.
func (r *RawObject) Subtype() uint8 { return 0 }

// NewInstance implements ie.IE.
func (r *RawObject) NewInstance() ie.IE { return &RawObject{Header: r.Header} }

// DeepCopy implements ie.IE.
func (r *RawObject) DeepCopy() ie.IE {
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &RawObject{Header: r.Header, Body: body}
}

// Check implements ie.IE.
func (r *RawObject) Check() error { return nil }

// SerializedSize implements ie.IE. It reports the body size only, per the
// convention that the NSLP object header and padding are added by the
// message-level serializer.
func (r *RawObject) SerializedSize(ie.CodingVersion) int { return len(r.Body) }

// Serialize implements ie.IE. It writes only the body; the NSLP object
// header and tail padding are the caller's (Message.Serialize's)
// responsibility, matching every other object type's convention.
func (r *RawObject) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	start := buf.Len()
	buf.WriteBytes(r.Body)
	return buf.Len() - start, nil
}

// Deserialize implements ie.IE. The header has already been consumed by
// the caller; this reads only the body, leaving tail padding for the
// caller to skip.
func (r *RawObject) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	start := buf.Pos()
	body, err := buf.ReadBytes(r.Header.BodyLen())
	if err != nil {
		return 0, err
	}
	r.Body = body
	return buf.Pos() - start, nil
}

// Equal implements ie.IE.
func (r *RawObject) Equal(other ie.IE) bool {
	o, ok := other.(*RawObject)
	if !ok || o.Header.Type != r.Header.Type || len(o.Body) != len(r.Body) {
		return false
	}
	for i := range r.Body {
		if r.Body[i] != o.Body[i] {
			return false
		}
	}
	return true
}

// String implements ie.IE.
func (r *RawObject) String() string {
	return fmt.Sprintf("RawObject{type=%d, action=%s, len=%d}", r.Header.Type, r.Header.Action, len(r.Body))
}

// ReadObjectHeader peeks the (category, type) of the object starting at
// off, for use as a netbuf.HeaderFn in FillTLPList.
func ReadObjectHeader(buf *netbuf.NetBuf, off int) (netbuf.HeaderInfo, error) {
	save := buf.Pos()
	if err := buf.SetPos(off); err != nil {
		return netbuf.HeaderInfo{}, err
	}
	h, err := UnmarshalObjectHeader(buf)
	if err != nil {
		return netbuf.HeaderInfo{}, err
	}
	_ = buf.SetPos(save)
	total := ObjectHeaderSize + h.BodyLen() + netbuf.PadLen(h.BodyLen())
	return netbuf.HeaderInfo{Category: uint8(ie.CategoryObject), Type: h.Type, TotalLen: total}, nil
}
