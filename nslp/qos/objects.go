package qos

import (
	"fmt"
	"net"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
	"github.com/kit-nsis/gosis/nslp"
	"github.com/kit-nsis/gosis/qspec"
)

// RII is the Reservation Initiation Identifier that correlates a QUERY
// and its RESPONSE.
type RII struct {
	Value uint32
}

func (o *RII) Category() ie.Category               { return ie.CategoryObject }
func (o *RII) Type() uint16                        { return uint16(ObjRII) }
func (o *RII) Subtype() uint8                      { return 0 }
func (o *RII) NewInstance() ie.IE                  { return &RII{} }
func (o *RII) DeepCopy() ie.IE                     { return &RII{Value: o.Value} }
func (o *RII) Check() error                        { return nil }
func (o *RII) SerializedSize(ie.CodingVersion) int { return 4 }
func (o *RII) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	buf.WriteUint32(o.Value)
	return 4, nil
}
func (o *RII) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	v, err := buf.ReadUint32()
	if err != nil {
		return 0, err
	}
	o.Value = v
	return 4, nil
}
func (o *RII) Equal(other ie.IE) bool {
	t, ok := other.(*RII)
	return ok && t.Value == o.Value
}
func (o *RII) String() string { return fmt.Sprintf("RII{%#x}", o.Value) }

// RSN is the Reservation Sequence Number, compared with the same
// RFC-1982 wrap-around arithmetic as NATFW's MSN, per spec.md §4.7.5.
type RSN struct {
	Value uint32
}

func (o *RSN) Category() ie.Category               { return ie.CategoryObject }
func (o *RSN) Type() uint16                        { return uint16(ObjRSN) }
func (o *RSN) Subtype() uint8                      { return 0 }
func (o *RSN) NewInstance() ie.IE                  { return &RSN{} }
func (o *RSN) DeepCopy() ie.IE                     { return &RSN{Value: o.Value} }
func (o *RSN) Check() error                        { return nil }
func (o *RSN) SerializedSize(ie.CodingVersion) int { return 4 }
func (o *RSN) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	buf.WriteUint32(o.Value)
	return 4, nil
}
func (o *RSN) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	v, err := buf.ReadUint32()
	if err != nil {
		return 0, err
	}
	o.Value = v
	return 4, nil
}
func (o *RSN) Equal(other ie.IE) bool {
	t, ok := other.(*RSN)
	return ok && t.Value == o.Value
}
func (o *RSN) String() string { return fmt.Sprintf("RSN{%d}", o.Value) }

// Precedes reports whether a precedes b using RFC-1982 serial-number
// comparison, the same discipline NATFW's MSN uses.
func Precedes(a, b uint32) bool { return nslp.Precedes(a, b) }

// SessionLifetime carries the requested/advertised reservation lifetime
// in seconds.
type SessionLifetime struct {
	Seconds uint32
}

func (o *SessionLifetime) Category() ie.Category               { return ie.CategoryObject }
func (o *SessionLifetime) Type() uint16                        { return uint16(ObjSessionLifetime) }
func (o *SessionLifetime) Subtype() uint8                      { return 0 }
func (o *SessionLifetime) NewInstance() ie.IE                  { return &SessionLifetime{} }
func (o *SessionLifetime) DeepCopy() ie.IE                     { return &SessionLifetime{Seconds: o.Seconds} }
func (o *SessionLifetime) Check() error                        { return nil }
func (o *SessionLifetime) SerializedSize(ie.CodingVersion) int { return 4 }
func (o *SessionLifetime) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	buf.WriteUint32(o.Seconds)
	return 4, nil
}
func (o *SessionLifetime) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	v, err := buf.ReadUint32()
	if err != nil {
		return 0, err
	}
	o.Seconds = v
	return 4, nil
}
func (o *SessionLifetime) Equal(other ie.IE) bool {
	t, ok := other.(*SessionLifetime)
	return ok && t.Seconds == o.Seconds
}
func (o *SessionLifetime) String() string { return fmt.Sprintf("SessionLifetime{%ds}", o.Seconds) }

// PacketClassifier identifies the flow a reservation applies to.
type PacketClassifier struct {
	SrcAddr  net.IP
	DstAddr  net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

func (o *PacketClassifier) Category() ie.Category { return ie.CategoryObject }
func (o *PacketClassifier) Type() uint16          { return uint16(ObjPacketClassifier) }
func (o *PacketClassifier) Subtype() uint8        { return 0 }
func (o *PacketClassifier) NewInstance() ie.IE    { return &PacketClassifier{} }
func (o *PacketClassifier) DeepCopy() ie.IE {
	return &PacketClassifier{
		SrcAddr: append(net.IP(nil), o.SrcAddr...), DstAddr: append(net.IP(nil), o.DstAddr...),
		SrcPort: o.SrcPort, DstPort: o.DstPort, Protocol: o.Protocol,
	}
}
func (o *PacketClassifier) Check() error {
	if o.SrcAddr == nil || o.DstAddr == nil {
		return fmt.Errorf("qos: packet classifier missing an address")
	}
	return nil
}
func (o *PacketClassifier) SerializedSize(ie.CodingVersion) int {
	if o.SrcAddr.To4() == nil {
		return 40
	}
	return 16
}
func (o *PacketClassifier) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	src, fam, err := addrBytes(o.SrcAddr)
	if err != nil {
		return 0, err
	}
	dst, _, err := addrBytes(o.DstAddr)
	if err != nil {
		return 0, err
	}
	start := buf.Len()
	buf.WriteUint8(fam)
	buf.WriteUint8(o.Protocol)
	buf.WriteUint16(o.SrcPort)
	buf.WriteUint16(o.DstPort)
	buf.WriteUint16(0)
	buf.WriteBytes(src)
	buf.WriteBytes(dst)
	return buf.Len() - start, nil
}
func (o *PacketClassifier) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	start := buf.Pos()
	fam, err := buf.ReadUint8()
	if err != nil {
		return 0, err
	}
	proto, err := buf.ReadUint8()
	if err != nil {
		return 0, err
	}
	srcPort, err := buf.ReadUint16()
	if err != nil {
		return 0, err
	}
	dstPort, err := buf.ReadUint16()
	if err != nil {
		return 0, err
	}
	if _, err := buf.ReadUint16(); err != nil {
		return 0, err
	}
	n := 4
	if fam == 6 {
		n = 16
	}
	src, err := buf.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	dst, err := buf.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	o.SrcAddr = net.IP(append([]byte(nil), src...))
	o.DstAddr = net.IP(append([]byte(nil), dst...))
	o.SrcPort = srcPort
	o.DstPort = dstPort
	o.Protocol = proto
	return buf.Pos() - start, nil
}
func (o *PacketClassifier) Equal(other ie.IE) bool {
	t, ok := other.(*PacketClassifier)
	return ok && t.SrcAddr.Equal(o.SrcAddr) && t.DstAddr.Equal(o.DstAddr) &&
		t.SrcPort == o.SrcPort && t.DstPort == o.DstPort && t.Protocol == o.Protocol
}
func (o *PacketClassifier) String() string {
	return fmt.Sprintf("PacketClassifier{%s:%d -> %s:%d proto=%d}", o.SrcAddr, o.SrcPort, o.DstAddr, o.DstPort, o.Protocol)
}

// QSPECObject wraps a qspec.PDU as an NSLP object, per spec.md §2's
// statement that the QSPEC template is "carried as an NSLP object".
type QSPECObject struct {
	PDU *qspec.PDU
}

func (o *QSPECObject) Category() ie.Category { return ie.CategoryObject }
func (o *QSPECObject) Type() uint16          { return uint16(ObjQSPEC) }
func (o *QSPECObject) Subtype() uint8        { return 0 }
func (o *QSPECObject) NewInstance() ie.IE    { return &QSPECObject{} }
func (o *QSPECObject) DeepCopy() ie.IE       { return &QSPECObject{PDU: o.PDU} }
func (o *QSPECObject) Check() error {
	if o.PDU == nil {
		return fmt.Errorf("qos: QSPEC object has no PDU")
	}
	return o.PDU.Check()
}
func (o *QSPECObject) SerializedSize(coding ie.CodingVersion) int {
	if o.PDU == nil {
		return 0
	}
	sub := netbuf.NewEmpty(64)
	_, _ = o.PDU.Serialize(sub, coding)
	return sub.Len()
}
func (o *QSPECObject) Serialize(buf *netbuf.NetBuf, coding ie.CodingVersion) (int, error) {
	if err := o.Check(); err != nil {
		return 0, err
	}
	return o.PDU.Serialize(buf, coding)
}
func (o *QSPECObject) Deserialize(buf *netbuf.NetBuf, coding ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	start := buf.Pos()
	pdu, err := qspec.Deserialize(buf, coding)
	if err != nil {
		return 0, err
	}
	o.PDU = pdu
	return buf.Pos() - start, nil
}
func (o *QSPECObject) Equal(other ie.IE) bool {
	t, ok := other.(*QSPECObject)
	return ok && t.PDU != nil && o.PDU != nil
}
func (o *QSPECObject) String() string { return "QSPECObject" }

// BoundSessionID ties a reservation to a session created by a different
// signaling application (e.g. a NATFW session sharing the same flow).
type BoundSessionID struct {
	SessionID [16]byte
}

func (o *BoundSessionID) Category() ie.Category               { return ie.CategoryObject }
func (o *BoundSessionID) Type() uint16                        { return uint16(ObjBoundSessionID) }
func (o *BoundSessionID) Subtype() uint8                      { return 0 }
func (o *BoundSessionID) NewInstance() ie.IE                  { return &BoundSessionID{} }
func (o *BoundSessionID) DeepCopy() ie.IE                     { return &BoundSessionID{SessionID: o.SessionID} }
func (o *BoundSessionID) Check() error                        { return nil }
func (o *BoundSessionID) SerializedSize(ie.CodingVersion) int { return 16 }
func (o *BoundSessionID) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	buf.WriteBytes(o.SessionID[:])
	return 16, nil
}
func (o *BoundSessionID) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	raw, err := buf.ReadBytes(16)
	if err != nil {
		return 0, err
	}
	copy(o.SessionID[:], raw)
	return 16, nil
}
func (o *BoundSessionID) Equal(other ie.IE) bool {
	t, ok := other.(*BoundSessionID)
	return ok && t.SessionID == o.SessionID
}
func (o *BoundSessionID) String() string { return fmt.Sprintf("BoundSessionID{%x}", o.SessionID) }

// VLSP (Virtual Link Signaling Peer) carries the address of the next
// signaling peer one layer up a tunnel, for virtual-link reservations.
type VLSP struct {
	PeerAddr net.IP
}

func (o *VLSP) Category() ie.Category { return ie.CategoryObject }
func (o *VLSP) Type() uint16          { return uint16(ObjVLSP) }
func (o *VLSP) Subtype() uint8        { return 0 }
func (o *VLSP) NewInstance() ie.IE    { return &VLSP{} }
func (o *VLSP) DeepCopy() ie.IE       { return &VLSP{PeerAddr: append(net.IP(nil), o.PeerAddr...)} }
func (o *VLSP) Check() error {
	if o.PeerAddr == nil {
		return fmt.Errorf("qos: VLSP peer address is nil")
	}
	return nil
}
func (o *VLSP) SerializedSize(ie.CodingVersion) int {
	if o.PeerAddr.To4() == nil {
		return 20
	}
	return 8
}
func (o *VLSP) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	raw, fam, err := addrBytes(o.PeerAddr)
	if err != nil {
		return 0, err
	}
	start := buf.Len()
	buf.WriteUint8(fam)
	buf.WriteBytes([]byte{0, 0, 0})
	buf.WriteBytes(raw)
	return buf.Len() - start, nil
}
func (o *VLSP) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	start := buf.Pos()
	fam, err := buf.ReadUint8()
	if err != nil {
		return 0, err
	}
	if _, err := buf.ReadBytes(3); err != nil {
		return 0, err
	}
	n := 4
	if fam == 6 {
		n = 16
	}
	raw, err := buf.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	o.PeerAddr = net.IP(append([]byte(nil), raw...))
	return buf.Pos() - start, nil
}
func (o *VLSP) Equal(other ie.IE) bool {
	t, ok := other.(*VLSP)
	return ok && t.PeerAddr.Equal(o.PeerAddr)
}
func (o *VLSP) String() string { return fmt.Sprintf("VLSP{%s}", o.PeerAddr) }
