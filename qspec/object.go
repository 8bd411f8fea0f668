package qspec

import (
	"fmt"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
)

// objectHeaderSize is the fixed 4-byte header every object carries ahead
// of its parameters: an Error flag bit (bit 31) with 3 reserved bits below
// it, a 12-bit object kind (bits 27-16), a 4-bit reserved gap (bits 15-12),
// and a 12-bit length in words (bits 11-0), body only, excluding this
// header -- matching qspec_object.cpp's header_raw layout exactly
// (`flags = header_raw >> 28`, `(header_raw >> 16) & 0xFFF` for the object
// type, `header_raw & 0xFFF` for the length).
const objectHeaderSize = 4

// objectErrorFlag is the one-hot Error bit within the object header's
// 4-bit flag nibble (bits 31-28); the other three bits are reserved.
const objectErrorFlag = 0x8

// Object is one of a PDU's QoS-Desired/Available/Reserved/Minimum-QoS
// object bodies: an ordered set of parameters, each length-prefixed in
// 4-byte words per spec.md §4.3.
type Object struct {
	Parameters []Parameter
	// Error reports an object-level error flag, set by a node along the
	// path that could not honour this object (qspec_object.cpp's
	// has_error()/set_error()).
	Error bool
}

// NewObject builds an object from the given parameters, in the order they
// should be serialized.
func NewObject(params ...Parameter) *Object {
	return &Object{Parameters: params}
}

// Check validates every parameter and requires at least one, per
// spec.md §4.3.
func (o *Object) Check() error {
	if len(o.Parameters) == 0 {
		return fmt.Errorf("qspec: object has no parameters")
	}
	for _, p := range o.Parameters {
		if err := p.Check(); err != nil {
			return fmt.Errorf("qspec: parameter %s: %w", p.ParamID(), err)
		}
	}
	return nil
}

// bodySize reports the size in bytes of the object's parameters only,
// header excluded.
func (o *Object) bodySize(coding ie.CodingVersion) int {
	n := 0
	for _, p := range o.Parameters {
		n += paramHeaderSize + p.SerializedSize(coding)
	}
	return n
}

// SerializedSize reports the object's total wire size, header included.
func (o *Object) SerializedSize(coding ie.CodingVersion) int {
	return objectHeaderSize + o.bodySize(coding)
}

// Serialize writes the object header followed by every parameter.
func (o *Object) Serialize(buf *netbuf.NetBuf, kind ObjectKind, coding ie.CodingVersion) (int, error) {
	start := buf.Len()
	bodySize := o.bodySize(coding)
	if bodySize%4 != 0 {
		return 0, fmt.Errorf("qspec: object body size %d not word-aligned", bodySize)
	}
	bodyLenWords := bodySize / 4
	if bodyLenWords > 0x0fff {
		return 0, fmt.Errorf("qspec: object %s length %d words exceeds the 12-bit length field", kind, bodyLenWords)
	}
	var word uint32
	if o.Error {
		word |= objectErrorFlag << 28
	}
	word |= uint32(kind&0x0fff) << 16
	word |= uint32(bodyLenWords) & 0x0fff
	buf.WriteUint32(word)
	for _, p := range o.Parameters {
		if err := writeParameter(buf, p, coding); err != nil {
			return 0, err
		}
	}
	return buf.Len() - start, nil
}

func deserializeObject(buf *netbuf.NetBuf, coding ie.CodingVersion) (ObjectKind, *Object, error) {
	word, err := buf.ReadUint32()
	if err != nil {
		return 0, nil, err
	}
	kind := ObjectKind(word >> 16 & 0x0fff)
	bodyLengthWords := word & 0x0fff
	end := buf.Pos() + int(bodyLengthWords)*4

	obj := &Object{Error: word>>28&objectErrorFlag != 0}
	for buf.Pos() < end {
		p, err := readParameter(buf, coding)
		if err != nil {
			return 0, nil, err
		}
		if p != nil {
			obj.Parameters = append(obj.Parameters, p)
		}
	}
	if buf.Pos() != end {
		return 0, nil, fmt.Errorf("qspec: object boundary mismatch, at %d expected %d", buf.Pos(), end)
	}
	return kind, obj, nil
}
