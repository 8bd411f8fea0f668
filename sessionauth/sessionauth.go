// Package sessionauth implements the session-authorization NSLP object:
// a stream of typed attributes with a keyed HMAC that covers a
// precisely specified set of byte ranges of the transport message, per
// spec.md §4.5/§4.6.
package sessionauth

import (
	"crypto/hmac"
	"crypto/sha1"
	"fmt"
	"hash"
	"sort"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
	"github.com/kit-nsis/gosis/nslp"
)

// ObjectType is the reserved well-known NSLP object type code the
// session-auth object occupies.
const ObjectType uint16 = 0xFFE

// XType identifies an attribute's 8-bit wire type.
type XType uint8

// Attribute kinds, per spec.md §3/§4.5.
const (
	XTypeAuthEntId XType = iota + 1
	XTypeSourceAddr
	XTypeDestAddr
	XTypeTimeStart
	XTypeTimeEnd
	XTypeNslpObjectList
	XTypeAuthData
)

func (x XType) String() string {
	names := map[XType]string{
		XTypeAuthEntId: "auth-ent-id", XTypeSourceAddr: "source-addr", XTypeDestAddr: "dest-addr",
		XTypeTimeStart: "time-start", XTypeTimeEnd: "time-end",
		XTypeNslpObjectList: "nslp-object-list", XTypeAuthData: "auth-data",
	}
	if n, ok := names[x]; ok {
		return n
	}
	return fmt.Sprintf("xtype(%d)", uint8(x))
}

// EntitySubtype is the shared subtype space AuthEntId, SourceAddr and
// DestAddr draw from.
type EntitySubtype uint8

// Entity subtypes, per spec.md §3.
const (
	SubtypeIPv4 EntitySubtype = iota + 1
	SubtypeIPv6
	SubtypeFQDN
	SubtypeDN
	SubtypeURI
	SubtypeKerberos
	SubtypeX509
	SubtypePGP
	SubtypeHMACTransformID
)

// HMACTransformDefault is the default integrity transform, HMAC-SHA-1
// truncated to 96 bits, per spec.md §4.6.
const HMACTransformDefault uint16 = 2

// attrHeaderSize is the fixed 4-byte attribute header: 16-bit length in
// bytes (header included, padding excluded), 8-bit xtype, 8-bit subtype.
const attrHeaderSize = 4

// Attribute is the interface every concrete session-auth attribute
// implements.
type Attribute interface {
	XType() XType
	Subtype() uint8
	// bodySize reports the body length in bytes, header excluded.
	bodySize() int
	serializeBody(buf *netbuf.NetBuf) error
	deserializeBody(buf *netbuf.NetBuf, bodyLen int) error
}

func writeAttribute(buf *netbuf.NetBuf, a Attribute) error {
	bodyLen := a.bodySize()
	total := attrHeaderSize + bodyLen
	buf.WriteUint16(uint16(total))
	buf.WriteUint8(uint8(a.XType()))
	buf.WriteUint8(a.Subtype())
	if err := a.serializeBody(buf); err != nil {
		return err
	}
	buf.WritePad(bodyLen)
	return nil
}

func readAttribute(buf *netbuf.NetBuf) (Attribute, error) {
	total, err := buf.ReadUint16()
	if err != nil {
		return nil, err
	}
	xtype, err := buf.ReadUint8()
	if err != nil {
		return nil, err
	}
	subtype, err := buf.ReadUint8()
	if err != nil {
		return nil, err
	}
	if int(total) < attrHeaderSize {
		return nil, fmt.Errorf("sessionauth: attribute length %d shorter than header", total)
	}
	bodyLen := int(total) - attrHeaderSize

	a, err := newAttribute(XType(xtype), subtype)
	if err != nil {
		return nil, err
	}
	if err := a.deserializeBody(buf, bodyLen); err != nil {
		return nil, fmt.Errorf("sessionauth: %s body: %w", XType(xtype), err)
	}
	if err := buf.SkipPad(bodyLen); err != nil {
		return nil, err
	}
	return a, nil
}

// Object is the session-authorization NSLP object: a set of attributes,
// kept in arrival order but sorted by (xtype, subtype) on serialization,
// per spec.md §4.5.
type Object struct {
	Attributes []Attribute
}

func (o *Object) Category() ie.Category { return ie.CategoryObject }
func (o *Object) Type() uint16          { return ObjectType }
func (o *Object) Subtype() uint8        { return 0 }
func (o *Object) NewInstance() ie.IE    { return &Object{} }
func (o *Object) DeepCopy() ie.IE {
	cp := make([]Attribute, len(o.Attributes))
	copy(cp, o.Attributes)
	return &Object{Attributes: cp}
}

// authData returns the AuthData attribute, if any.
func (o *Object) authData() *AuthData {
	for _, a := range o.Attributes {
		if ad, ok := a.(*AuthData); ok {
			return ad
		}
	}
	return nil
}

// nslpObjectList returns the NslpObjectList attribute, if any.
func (o *Object) nslpObjectList() *NslpObjectList {
	for _, a := range o.Attributes {
		if l, ok := a.(*NslpObjectList); ok {
			return l
		}
	}
	return nil
}

// hmacSigned reports whether an AuthEntId attribute with the
// HMAC-transform-id subtype is present, marking this object as carrying
// a keyed MAC rather than an opaque token.
func (o *Object) hmacSigned() bool {
	for _, a := range o.Attributes {
		if e, ok := a.(*AuthEntId); ok && e.Subtype() == uint8(SubtypeHMACTransformID) {
			return true
		}
	}
	return false
}

// Check validates the session-auth attribute presence invariants from
// spec.md §4.5.
func (o *Object) Check() error {
	signed := o.hmacSigned()
	list := o.nslpObjectList()
	auth := o.authData()
	if signed && (list == nil || auth == nil) {
		return fmt.Errorf("sessionauth: HMAC_SIGNED requires both NslpObjectList and AuthData")
	}
	if list != nil && auth == nil {
		return fmt.Errorf("sessionauth: NslpObjectList requires AuthData")
	}
	return nil
}

func (o *Object) sortedAttributes() []Attribute {
	sorted := make([]Attribute, len(o.Attributes))
	copy(sorted, o.Attributes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].XType() != sorted[j].XType() {
			return sorted[i].XType() < sorted[j].XType()
		}
		return sorted[i].Subtype() < sorted[j].Subtype()
	})
	return sorted
}

func (o *Object) SerializedSize(ie.CodingVersion) int {
	n := 0
	for _, a := range o.sortedAttributes() {
		n += attrHeaderSize + a.bodySize() + netbuf.PadLen(a.bodySize())
	}
	return n
}

func (o *Object) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	if err := o.Check(); err != nil {
		return 0, err
	}
	start := buf.Len()
	for _, a := range o.sortedAttributes() {
		if err := writeAttribute(buf, a); err != nil {
			return 0, err
		}
	}
	return buf.Len() - start, nil
}

// Deserialize always returns an error: reading the attribute list needs
// the object's body length, which the ie.IE signature does not carry.
// Callers that decode a session-auth object use DeserializeBody with the
// body length from the NSLP object header instead.
func (o *Object) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	return 0, fmt.Errorf("sessionauth: use DeserializeBody with an explicit length")
}

// DeserializeBody reads exactly bodyLen bytes of attributes from buf.
func (o *Object) DeserializeBody(buf *netbuf.NetBuf, bodyLen int) (int, error) {
	start := buf.Pos()
	end := start + bodyLen
	for buf.Pos() < end {
		a, err := readAttribute(buf)
		if err != nil {
			return 0, err
		}
		o.Attributes = append(o.Attributes, a)
	}
	if buf.Pos() != end {
		return 0, fmt.Errorf("sessionauth: object boundary mismatch, at %d expected %d", buf.Pos(), end)
	}
	return buf.Pos() - start, nil
}

func (o *Object) Equal(other ie.IE) bool {
	t, ok := other.(*Object)
	return ok && len(t.Attributes) == len(o.Attributes)
}
func (o *Object) String() string { return fmt.Sprintf("SessionAuth{%d attrs}", len(o.Attributes)) }

func newAttribute(x XType, subtype uint8) (Attribute, error) {
	switch x {
	case XTypeAuthEntId:
		return &AuthEntId{subtype: subtype}, nil
	case XTypeSourceAddr:
		return &SourceAddr{endpointAddr{subtype: subtype}}, nil
	case XTypeDestAddr:
		return &DestAddr{endpointAddr{subtype: subtype}}, nil
	case XTypeTimeStart:
		return &Time{kind: XTypeTimeStart}, nil
	case XTypeTimeEnd:
		return &Time{kind: XTypeTimeEnd}, nil
	case XTypeNslpObjectList:
		return &NslpObjectList{}, nil
	case XTypeAuthData:
		return &AuthData{}, nil
	default:
		return nil, fmt.Errorf("sessionauth: unknown attribute xtype %d", x)
	}
}

// newHash constructs the hash.Hash for a transform-id, per spec.md §4.6:
// the default (and only one this implementation carries) is
// HMAC-SHA-1 truncated to 96 bits.
func newHash(transformID uint16) (func() hash.Hash, int, error) {
	switch transformID {
	case HMACTransformDefault, 0:
		return sha1.New, 12, nil
	default:
		return nil, 0, fmt.Errorf("sessionauth: unsupported transform-id %d", transformID)
	}
}

// computeHMAC runs the configured transform over data with key.
func computeHMAC(transformID uint16, key, data []byte) ([]byte, error) {
	newH, macSize, err := newHash(transformID)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(newH, key)
	mac.Write(data)
	full := mac.Sum(nil)
	return full[:macSize], nil
}

// ReadObjectHeader is the netbuf.HeaderFn-compatible accessor used by
// NetBuf.FillTLPList to locate session-auth objects and the other NSLP
// objects it must cover, reusing nslp's own object-header peek.
var ReadObjectHeader = nslp.ReadObjectHeader
