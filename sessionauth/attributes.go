package sessionauth

import (
	"fmt"
	"net"

	"github.com/kit-nsis/gosis/internal/netbuf"
)

// AuthEntId identifies an authorizing entity. When Subtype is
// SubtypeHMACTransformID, Value carries the integrity transform-id
// instead of an entity name, and its presence marks the object
// HMAC_SIGNED, per spec.md §4.5/§4.6.
type AuthEntId struct {
	subtype uint8
	Name    []byte
	// Value carries the transform-id when Subtype == SubtypeHMACTransformID.
	Value uint16
}

func (a *AuthEntId) XType() XType               { return XTypeAuthEntId }
func (a *AuthEntId) Subtype() uint8             { return a.subtype }
func (a *AuthEntId) SetSubtype(s EntitySubtype) { a.subtype = uint8(s) }

func (a *AuthEntId) bodySize() int {
	if EntitySubtype(a.subtype) == SubtypeHMACTransformID {
		return 2
	}
	return len(a.Name)
}

func (a *AuthEntId) serializeBody(buf *netbuf.NetBuf) error {
	if EntitySubtype(a.subtype) == SubtypeHMACTransformID {
		buf.WriteUint16(a.Value)
		return nil
	}
	buf.WriteBytes(a.Name)
	return nil
}

func (a *AuthEntId) deserializeBody(buf *netbuf.NetBuf, bodyLen int) error {
	if EntitySubtype(a.subtype) == SubtypeHMACTransformID {
		v, err := buf.ReadUint16()
		if err != nil {
			return err
		}
		a.Value = v
		return nil
	}
	raw, err := buf.ReadBytes(bodyLen)
	if err != nil {
		return err
	}
	a.Name = append([]byte(nil), raw...)
	return nil
}

// NewHMACTransformID builds the AuthEntId attribute that marks an object
// HMAC_SIGNED with the given transform-id.
func NewHMACTransformID(transformID uint16) *AuthEntId {
	return &AuthEntId{subtype: uint8(SubtypeHMACTransformID), Value: transformID}
}

// endpointAddr is the shared SourceAddr/DestAddr body shape: an address
// of the AuthEntId subtype space, an SPI, and a list of TCP/UDP ports.
type endpointAddr struct {
	subtype uint8
	Addr    net.IP
	SPI     uint32
	Ports   []uint16
}

func (a *endpointAddr) Subtype() uint8 { return a.subtype }

func (a *endpointAddr) bodySize() int {
	addrLen := 4
	if a.Addr.To4() == nil {
		addrLen = 16
	}
	return 1 + 1 + addrLen + 4 + 2 + 2*len(a.Ports)
}

func (a *endpointAddr) serializeBody(buf *netbuf.NetBuf) error {
	raw, fam, err := familyBytes(a.Addr)
	if err != nil {
		return err
	}
	buf.WriteUint8(fam)
	buf.WriteUint8(0)
	buf.WriteBytes(raw)
	buf.WriteUint32(a.SPI)
	buf.WriteUint16(uint16(len(a.Ports)))
	for _, p := range a.Ports {
		buf.WriteUint16(p)
	}
	return nil
}

func (a *endpointAddr) deserializeBody(buf *netbuf.NetBuf, bodyLen int) error {
	fam, err := buf.ReadUint8()
	if err != nil {
		return err
	}
	if _, err := buf.ReadUint8(); err != nil {
		return err
	}
	n := 4
	if fam == 6 {
		n = 16
	}
	raw, err := buf.ReadBytes(n)
	if err != nil {
		return err
	}
	spi, err := buf.ReadUint32()
	if err != nil {
		return err
	}
	count, err := buf.ReadUint16()
	if err != nil {
		return err
	}
	ports := make([]uint16, count)
	for i := range ports {
		p, err := buf.ReadUint16()
		if err != nil {
			return err
		}
		ports[i] = p
	}
	a.Addr = net.IP(append([]byte(nil), raw...))
	a.SPI = spi
	a.Ports = ports
	return nil
}

func familyBytes(addr net.IP) ([]byte, uint8, error) {
	if v4 := addr.To4(); v4 != nil {
		return v4, 4, nil
	}
	if v6 := addr.To16(); v6 != nil {
		return v6, 6, nil
	}
	return nil, 0, fmt.Errorf("sessionauth: invalid IP address %v", addr)
}

// SourceAddr carries the signaling source's address, SPI and port list.
type SourceAddr struct{ endpointAddr }

func (a *SourceAddr) XType() XType { return XTypeSourceAddr }

// DestAddr carries the signaling destination's address, SPI and port list.
type DestAddr struct{ endpointAddr }

func (a *DestAddr) XType() XType { return XTypeDestAddr }

// Time is a 64-bit NTP-style absolute timestamp, used for both the
// session-auth validity window's start and end.
type Time struct {
	kind    XType
	Seconds uint32
	Frac    uint32
}

func (t *Time) XType() XType   { return t.kind }
func (t *Time) Subtype() uint8 { return 0 }
func (t *Time) bodySize() int  { return 8 }
func (t *Time) serializeBody(buf *netbuf.NetBuf) error {
	buf.WriteUint32(t.Seconds)
	buf.WriteUint32(t.Frac)
	return nil
}
func (t *Time) deserializeBody(buf *netbuf.NetBuf, _ int) error {
	sec, err := buf.ReadUint32()
	if err != nil {
		return err
	}
	frac, err := buf.ReadUint32()
	if err != nil {
		return err
	}
	t.Seconds = sec
	t.Frac = frac
	return nil
}

// NslpObjectList names the NSLP object types covered by the HMAC, beyond
// the always-included MRI/SessionID/session-auth objects.
type NslpObjectList struct {
	ObjectTypes []uint16
}

func (l *NslpObjectList) XType() XType   { return XTypeNslpObjectList }
func (l *NslpObjectList) Subtype() uint8 { return 0 }
func (l *NslpObjectList) bodySize() int  { return 2 + 2*len(l.ObjectTypes) }
func (l *NslpObjectList) serializeBody(buf *netbuf.NetBuf) error {
	buf.WriteUint16(uint16(len(l.ObjectTypes)))
	for _, t := range l.ObjectTypes {
		buf.WriteUint16(t)
	}
	return nil
}
func (l *NslpObjectList) deserializeBody(buf *netbuf.NetBuf, _ int) error {
	count, err := buf.ReadUint16()
	if err != nil {
		return err
	}
	types := make([]uint16, count)
	for i := range types {
		v, err := buf.ReadUint16()
		if err != nil {
			return err
		}
		types[i] = v
	}
	l.ObjectTypes = types
	return nil
}

// AuthData carries a key-id and either an HMAC or an opaque
// authorization token, per spec.md §4.5. Data's trailing bytes are the
// MAC/token payload being protected; the HMAC pipeline writes into and
// reads from exactly as many of them as its transform's MAC size.
type AuthData struct {
	KeyID uint32
	Data  []byte
}

func (a *AuthData) XType() XType   { return XTypeAuthData }
func (a *AuthData) Subtype() uint8 { return 0 }
func (a *AuthData) bodySize() int  { return 4 + len(a.Data) }
func (a *AuthData) serializeBody(buf *netbuf.NetBuf) error {
	buf.WriteUint32(a.KeyID)
	buf.WriteBytes(a.Data)
	return nil
}
func (a *AuthData) deserializeBody(buf *netbuf.NetBuf, bodyLen int) error {
	keyID, err := buf.ReadUint32()
	if err != nil {
		return err
	}
	raw, err := buf.ReadBytes(bodyLen - 4)
	if err != nil {
		return err
	}
	a.KeyID = keyID
	a.Data = append([]byte(nil), raw...)
	return nil
}
