package natfw

import (
	"fmt"
	"net"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
)

// SessionLifetime carries the requested/advertised session lifetime in
// seconds (0 means teardown, per spec.md §4.7.1).
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

// ExternalAddress carries a NAT-allocated public address and port, sent
// in a RESPONSE once a forwarder has reserved one.
type ExternalAddress struct {
	Addr net.IP
	Port uint16
}

func (o *ExternalAddress) Category() ie.Category { return ie.CategoryObject }
func (o *ExternalAddress) Type() uint16          { return uint16(ObjExternalAddress) }
func (o *ExternalAddress) Subtype() uint8        { return 0 }
func (o *ExternalAddress) NewInstance() ie.IE    { return &ExternalAddress{} }
func (o *ExternalAddress) DeepCopy() ie.IE {
	return &ExternalAddress{Addr: append(net.IP(nil), o.Addr...), Port: o.Port}
}
func (o *ExternalAddress) Check() error {
	if o.Addr == nil {
		return fmt.Errorf("natfw: external address is nil")
	}
	return nil
}
func (o *ExternalAddress) SerializedSize(ie.CodingVersion) int {
	_, fam, _ := addrBytes(o.Addr)
	if fam == 6 {
		return 20
	}
	return 8
}

func (o *ExternalAddress) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	raw, fam, err := addrBytes(o.Addr)
	if err != nil {
		return 0, err
	}
	start := buf.Len()
	buf.WriteUint8(fam)
	buf.WriteUint8(0)
	buf.WriteUint16(o.Port)
	buf.WriteBytes(raw)
	return buf.Len() - start, nil
}

func (o *ExternalAddress) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	start := buf.Pos()
	fam, err := buf.ReadUint8()
	if err != nil {
		return 0, err
	}
	if _, err := buf.ReadUint8(); err != nil {
		return 0, err
	}
	port, err := buf.ReadUint16()
	if err != nil {
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
	o.Port = port
	o.Addr = net.IP(append([]byte(nil), raw...))
	return buf.Pos() - start, nil
}

func (o *ExternalAddress) Equal(other ie.IE) bool {
	t, ok := other.(*ExternalAddress)
	return ok && t.Addr.Equal(o.Addr) && t.Port == o.Port
}
func (o *ExternalAddress) String() string {
	return fmt.Sprintf("ExternalAddress{%s:%d}", o.Addr, o.Port)
}

// ExtendedFlowInfo identifies the 5-tuple the NAT/firewall rule applies
// to: source and destination address, ports and IP protocol.
type ExtendedFlowInfo struct {
	SrcAddr  net.IP
	DstAddr  net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

func (o *ExtendedFlowInfo) Category() ie.Category { return ie.CategoryObject }
func (o *ExtendedFlowInfo) Type() uint16          { return uint16(ObjExtendedFlowInfo) }
func (o *ExtendedFlowInfo) Subtype() uint8        { return 0 }
func (o *ExtendedFlowInfo) NewInstance() ie.IE    { return &ExtendedFlowInfo{} }
func (o *ExtendedFlowInfo) DeepCopy() ie.IE {
	return &ExtendedFlowInfo{
		SrcAddr: append(net.IP(nil), o.SrcAddr...), DstAddr: append(net.IP(nil), o.DstAddr...),
		SrcPort: o.SrcPort, DstPort: o.DstPort, Protocol: o.Protocol,
	}
}
func (o *ExtendedFlowInfo) Check() error {
	if o.SrcAddr == nil || o.DstAddr == nil {
		return fmt.Errorf("natfw: extended flow info missing an address")
	}
	if o.SrcAddr.To4() != nil != (o.DstAddr.To4() != nil) {
		return fmt.Errorf("natfw: extended flow info address family mismatch")
	}
	return nil
}
func (o *ExtendedFlowInfo) SerializedSize(ie.CodingVersion) int {
	if o.SrcAddr.To4() == nil {
		return 40
	}
	return 16
}

func (o *ExtendedFlowInfo) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	if err := o.Check(); err != nil {
		return 0, err
	}
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

func (o *ExtendedFlowInfo) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
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

func (o *ExtendedFlowInfo) Equal(other ie.IE) bool {
	t, ok := other.(*ExtendedFlowInfo)
	return ok && t.SrcAddr.Equal(o.SrcAddr) && t.DstAddr.Equal(o.DstAddr) &&
		t.SrcPort == o.SrcPort && t.DstPort == o.DstPort && t.Protocol == o.Protocol
}
func (o *ExtendedFlowInfo) String() string {
	return fmt.Sprintf("ExtendedFlowInfo{%s:%d -> %s:%d proto=%d}", o.SrcAddr, o.SrcPort, o.DstAddr, o.DstPort, o.Protocol)
}

// Severity classifies an InformationCode's class field, per spec.md §7.
type Severity uint8

// InformationCode severity classes.
const (
	SeverityInformational Severity = iota
	SeveritySuccess
	SeverityProtocolError
	SeverityTransientFailure
	SeverityPermanentFailure
	SeveritySignalingSessionFailure
)

// InformationCode carries the protocol-level response code for a
// RESPONSE or NOTIFY message.
type InformationCode struct {
	Severity Severity
	Code     uint16
}

func (o *InformationCode) Category() ie.Category { return ie.CategoryObject }
func (o *InformationCode) Type() uint16          { return uint16(ObjInformationCode) }
func (o *InformationCode) Subtype() uint8        { return 0 }
func (o *InformationCode) NewInstance() ie.IE    { return &InformationCode{} }
func (o *InformationCode) DeepCopy() ie.IE {
	return &InformationCode{Severity: o.Severity, Code: o.Code}
}
func (o *InformationCode) Check() error                        { return nil }
func (o *InformationCode) SerializedSize(ie.CodingVersion) int { return 4 }

func (o *InformationCode) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	buf.WriteUint8(uint8(o.Severity))
	buf.WriteUint8(0)
	buf.WriteUint16(o.Code)
	return 4, nil
}

func (o *InformationCode) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	sev, err := buf.ReadUint8()
	if err != nil {
		return 0, err
	}
	if _, err := buf.ReadUint8(); err != nil {
		return 0, err
	}
	code, err := buf.ReadUint16()
	if err != nil {
		return 0, err
	}
	o.Severity = Severity(sev)
	o.Code = code
	return 4, nil
}

func (o *InformationCode) Equal(other ie.IE) bool {
	t, ok := other.(*InformationCode)
	return ok && t.Severity == o.Severity && t.Code == o.Code
}
func (o *InformationCode) String() string {
	return fmt.Sprintf("InformationCode{severity=%d, code=%d}", o.Severity, o.Code)
}

// IsSuccess reports whether this code reflects a successful outcome.
func (o *InformationCode) IsSuccess() bool {
	return o.Severity == SeveritySuccess || o.Severity == SeverityInformational
}

// Nonce carries an anti-spoofing random value, optional on CREATE.
type Nonce struct {
	Value uint32
}

func (o *Nonce) Category() ie.Category               { return ie.CategoryObject }
func (o *Nonce) Type() uint16                        { return uint16(ObjNonce) }
func (o *Nonce) Subtype() uint8                      { return 0 }
func (o *Nonce) NewInstance() ie.IE                  { return &Nonce{} }
func (o *Nonce) DeepCopy() ie.IE                     { return &Nonce{Value: o.Value} }
func (o *Nonce) Check() error                        { return nil }
func (o *Nonce) SerializedSize(ie.CodingVersion) int { return 4 }
func (o *Nonce) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	buf.WriteUint32(o.Value)
	return 4, nil
}
func (o *Nonce) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	v, err := buf.ReadUint32()
	if err != nil {
		return 0, err
	}
	o.Value = v
	return 4, nil
}
func (o *Nonce) Equal(other ie.IE) bool {
	t, ok := other.(*Nonce)
	return ok && t.Value == o.Value
}
func (o *Nonce) String() string { return fmt.Sprintf("Nonce{%#x}", o.Value) }

// MessageSequenceNumber is the MSN object every CREATE/EXT carries.
type MessageSequenceNumber struct {
	MSN uint32
}

func (o *MessageSequenceNumber) Category() ie.Category               { return ie.CategoryObject }
func (o *MessageSequenceNumber) Type() uint16                        { return uint16(ObjMessageSequenceNumber) }
func (o *MessageSequenceNumber) Subtype() uint8                      { return 0 }
func (o *MessageSequenceNumber) NewInstance() ie.IE                  { return &MessageSequenceNumber{} }
func (o *MessageSequenceNumber) DeepCopy() ie.IE                     { return &MessageSequenceNumber{MSN: o.MSN} }
func (o *MessageSequenceNumber) Check() error                        { return nil }
func (o *MessageSequenceNumber) SerializedSize(ie.CodingVersion) int { return 4 }
func (o *MessageSequenceNumber) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	buf.WriteUint32(o.MSN)
	return 4, nil
}
func (o *MessageSequenceNumber) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	v, err := buf.ReadUint32()
	if err != nil {
		return 0, err
	}
	o.MSN = v
	return 4, nil
}
func (o *MessageSequenceNumber) Equal(other ie.IE) bool {
	t, ok := other.(*MessageSequenceNumber)
	return ok && t.MSN == o.MSN
}
func (o *MessageSequenceNumber) String() string { return fmt.Sprintf("MSN{%d}", o.MSN) }

// DataTerminalInfo carries a DSCP marking for the signaled flow.
type DataTerminalInfo struct {
	DSCP uint8
}

func (o *DataTerminalInfo) Category() ie.Category { return ie.CategoryObject }
func (o *DataTerminalInfo) Type() uint16          { return uint16(ObjDataTerminalInfo) }
func (o *DataTerminalInfo) Subtype() uint8        { return 0 }
func (o *DataTerminalInfo) NewInstance() ie.IE    { return &DataTerminalInfo{} }
func (o *DataTerminalInfo) DeepCopy() ie.IE       { return &DataTerminalInfo{DSCP: o.DSCP} }
func (o *DataTerminalInfo) Check() error {
	if o.DSCP > 0x3f {
		return fmt.Errorf("natfw: DSCP %d out of range", o.DSCP)
	}
	return nil
}
func (o *DataTerminalInfo) SerializedSize(ie.CodingVersion) int { return 4 }
func (o *DataTerminalInfo) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	buf.WriteUint8(o.DSCP & 0x3f)
	buf.WriteUint8(0)
	buf.WriteUint16(0)
	return 4, nil
}
func (o *DataTerminalInfo) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	dscp, err := buf.ReadUint8()
	if err != nil {
		return 0, err
	}
	if _, err := buf.ReadBytes(3); err != nil {
		return 0, err
	}
	o.DSCP = dscp & 0x3f
	return 4, nil
}
func (o *DataTerminalInfo) Equal(other ie.IE) bool {
	t, ok := other.(*DataTerminalInfo)
	return ok && t.DSCP == o.DSCP
}
func (o *DataTerminalInfo) String() string { return fmt.Sprintf("DataTerminalInfo{dscp=%d}", o.DSCP) }

// ICMPTypes is a bitmask of ICMP message types the flow should permit,
// optional on CREATE for ICMP-carrying flows.
type ICMPTypes struct {
	Mask uint32
}

func (o *ICMPTypes) Category() ie.Category               { return ie.CategoryObject }
func (o *ICMPTypes) Type() uint16                        { return uint16(ObjICMPTypes) }
func (o *ICMPTypes) Subtype() uint8                      { return 0 }
func (o *ICMPTypes) NewInstance() ie.IE                  { return &ICMPTypes{} }
func (o *ICMPTypes) DeepCopy() ie.IE                     { return &ICMPTypes{Mask: o.Mask} }
func (o *ICMPTypes) Check() error                        { return nil }
func (o *ICMPTypes) SerializedSize(ie.CodingVersion) int { return 4 }
func (o *ICMPTypes) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	buf.WriteUint32(o.Mask)
	return 4, nil
}
func (o *ICMPTypes) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	v, err := buf.ReadUint32()
	if err != nil {
		return 0, err
	}
	o.Mask = v
	return 4, nil
}
func (o *ICMPTypes) Permits(icmpType uint8) bool {
	if icmpType >= 32 {
		return false
	}
	return o.Mask&(1<<uint(icmpType)) != 0
}
func (o *ICMPTypes) Equal(other ie.IE) bool {
	t, ok := other.(*ICMPTypes)
	return ok && t.Mask == o.Mask
}
func (o *ICMPTypes) String() string { return fmt.Sprintf("ICMPTypes{mask=%#x}", o.Mask) }
