// Package qspec implements the QSPEC template: the QoS parameter PDU
// carried inside QoS-NSLP RESERVE/QUERY/RESPONSE messages, plus its four
// object kinds and their concrete parameters.
package qspec

import (
	"fmt"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
)

// ObjectKind distinguishes the four QSPEC object roles a PDU may carry.
type ObjectKind uint8

// The four object kinds named in spec.md §4.3.
const (
	ObjectQoSDesired ObjectKind = iota
	ObjectQoSAvailable
	ObjectQoSReserved
	ObjectMinimumQoS
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectQoSDesired:
		return "qos-desired"
	case ObjectQoSAvailable:
		return "qos-available"
	case ObjectQoSReserved:
		return "qos-reserved"
	case ObjectMinimumQoS:
		return "minimum-qos"
	default:
		return fmt.Sprintf("object-kind(%d)", uint8(k))
	}
}

// objectCombination packs which of the four object kinds a PDU carries
// into the 4-bit object-combination field, one bit per kind, LSB first.
func objectCombination(kinds []ObjectKind) uint8 {
	var c uint8
	for _, k := range kinds {
		c |= 1 << uint(k)
	}
	return c
}

func kindsFromCombination(c uint8) []ObjectKind {
	var kinds []ObjectKind
	for k := ObjectKind(0); k < 4; k++ {
		if c&(1<<uint(k)) != 0 {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Header is the fixed 32-bit QSPEC PDU header: 4-bit version, 1-bit
// initiator flag, 5-bit QSPEC type (2 reserved + 3 used in practice), 4-bit
// message sequence number, 4-bit object combination, 12-bit length in
// words, excluding this header, per spec.md §3.
type Header struct {
	Version     uint8
	Initiator   bool
	QSPECType   uint8
	MessageSeq  uint8
	Combination uint8
	// LengthWords is the PDU's object payload length in 4-byte words,
	// excluding this header.
	LengthWords uint16
}

const headerSize = 4

func (h Header) marshal(buf *netbuf.NetBuf) {
	var word uint32
	word |= uint32(h.Version&0xf) << 28
	if h.Initiator {
		word |= 1 << 27
	}
	word |= uint32(h.QSPECType&0x1f) << 22
	word |= uint32(h.MessageSeq&0xf) << 18
	word |= uint32(h.Combination&0xf) << 14
	word |= uint32(h.LengthWords & 0x0fff)
	buf.WriteUint32(word)
}

func unmarshalHeader(buf *netbuf.NetBuf) (Header, error) {
	word, err := buf.ReadUint32()
	if err != nil {
		return Header{}, err
	}
	h := Header{
		Version:     uint8(word >> 28 & 0xf),
		Initiator:   word>>27&0x1 != 0,
		QSPECType:   uint8(word >> 22 & 0x1f),
		MessageSeq:  uint8(word >> 18 & 0xf),
		Combination: uint8(word >> 14 & 0xf),
		LengthWords: uint16(word & 0x0fff),
	}
	return h, nil
}

// PDU is a complete QSPEC template instance: the header plus one object
// per kind named in its combination field.
type PDU struct {
	Header  Header
	Objects map[ObjectKind]*Object
}

// NewPDU builds an empty PDU with the given version and QSPEC type.
func NewPDU(version, qspecType uint8, initiator bool) *PDU {
	return &PDU{
		Header:  Header{Version: version, QSPECType: qspecType, Initiator: initiator},
		Objects: make(map[ObjectKind]*Object),
	}
}

// SetObject attaches (or replaces) an object of the given kind.
func (p *PDU) SetObject(kind ObjectKind, obj *Object) {
	p.Objects[kind] = obj
}

// Check validates every attached object and requires at least one,
// per spec.md §4.3 (an empty QSPEC PDU is invalid).
func (p *PDU) Check() error {
	if len(p.Objects) == 0 {
		return fmt.Errorf("qspec: PDU carries no objects")
	}
	for kind, obj := range p.Objects {
		if err := obj.Check(); err != nil {
			return fmt.Errorf("qspec: object %s: %w", kind, err)
		}
	}
	return nil
}

// orderedKinds returns the PDU's present object kinds in ascending order,
// giving byte-for-byte determinism between repeated Serialize calls.
func (p *PDU) orderedKinds() []ObjectKind {
	var kinds []ObjectKind
	for k := ObjectKind(0); k < 4; k++ {
		if _, ok := p.Objects[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Serialize writes the PDU to buf, filling in the length and object
// combination fields from the attached objects.
func (p *PDU) Serialize(buf *netbuf.NetBuf, coding ie.CodingVersion) (int, error) {
	if err := p.Check(); err != nil {
		return 0, err
	}
	kinds := p.orderedKinds()
	p.Header.Combination = objectCombination(kinds)

	bodySize := 0
	for _, k := range kinds {
		bodySize += p.Objects[k].SerializedSize(coding)
	}
	if bodySize%4 != 0 {
		return 0, fmt.Errorf("qspec: PDU body size %d not word-aligned", bodySize)
	}
	p.Header.LengthWords = uint16(bodySize / 4)

	start := buf.Len()
	p.Header.marshal(buf)
	for _, k := range kinds {
		if _, err := p.Objects[k].Serialize(buf, k, coding); err != nil {
			return 0, err
		}
	}
	return buf.Len() - start, nil
}

// Deserialize reads a QSPEC PDU from buf.
func Deserialize(buf *netbuf.NetBuf, coding ie.CodingVersion) (*PDU, error) {
	start := buf.Pos()
	h, err := unmarshalHeader(buf)
	if err != nil {
		return nil, err
	}
	bodyTotal := int(h.LengthWords) * 4
	end := start + headerSize + bodyTotal
	p := &PDU{Header: h, Objects: make(map[ObjectKind]*Object)}
	for range kindsFromCombination(h.Combination) {
		kind, obj, err := deserializeObject(buf, coding)
		if err != nil {
			return nil, fmt.Errorf("qspec: object: %w", err)
		}
		p.Objects[kind] = obj
	}
	if buf.Pos() != end {
		return nil, fmt.Errorf("qspec: PDU boundary mismatch, at %d expected %d", buf.Pos(), end)
	}
	return p, nil
}
