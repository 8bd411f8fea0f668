package qspec

import (
	"fmt"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
)

// ParamID identifies a QSPEC parameter's wire type, a 12-bit field.
type ParamID uint16

// Parameter IDs for the concrete types this template supports, per
// spec.md §4.3's parameter catalogue.
const (
	ParamTMOD ParamID = iota + 1
	ParamPathLatency
	ParamPathJitter
	ParamPathPLR
	ParamPathPER
	ParamSlackTerm
	ParamPreemptionPriority
	ParamDefendingPriority
	ParamAdmissionPriority
	ParamExcessTreatment
	ParamRPHPriority
	ParamPHBClass
	ParamDSTEClassType
	ParamY1541QoSClass
)

func (id ParamID) String() string {
	names := map[ParamID]string{
		ParamTMOD:               "tmod",
		ParamPathLatency:        "path-latency",
		ParamPathJitter:         "path-jitter",
		ParamPathPLR:            "path-plr",
		ParamPathPER:            "path-per",
		ParamSlackTerm:          "slack-term",
		ParamPreemptionPriority: "preemption-priority",
		ParamDefendingPriority:  "defending-priority",
		ParamAdmissionPriority:  "admission-priority",
		ParamExcessTreatment:    "excess-treatment",
		ParamRPHPriority:        "rph-priority",
		ParamPHBClass:           "phb-class",
		ParamDSTEClassType:      "dste-class-type",
		ParamY1541QoSClass:      "y1541-qos-class",
	}
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("param(%d)", uint16(id))
}

// ParamDisposition is the error-handling flag every parameter header
// carries as one of four one-hot bits, per spec.md §4.3; the fourth bit
// is reserved. The decoder consults it only for a parameter id it does
// not recognise: Mandatory fails the decode, while Error, NotSupported
// and the reserved bit all skip the parameter silently. A recognised
// parameter whose body fails to parse fails the decode under any flag.
type ParamDisposition uint8

// Parameter disposition values.
const (
	DispositionMandatory ParamDisposition = iota
	DispositionError
	DispositionNotSupported
	dispositionReservedIgnore
)

// paramHeaderSize is the fixed 4-byte parameter header: a 4-bit one-hot
// disposition flag (bits 31-28: Mandatory/Error/Not-supported/reserved),
// a 12-bit param ID (bits 27-16), a 4-bit reserved gap (bits 15-12), and
// a 12-bit length in words, body only, not including this header (bits
// 11-0) -- matching qspec_param.cpp's header_raw layout exactly
// (`header_raw >> 28` for the flags, `(header_raw >> 16) & 0xFFF` for the
// id, `(header_raw & 0xFFF) * 4` for the body length).
const paramHeaderSize = 4

// dispositionFlag is the one-hot bit (within bits 31-28) a ParamDisposition
// occupies on the wire.
func dispositionFlag(d ParamDisposition) uint32 {
	switch d {
	case DispositionMandatory:
		return 0x8
	case DispositionError:
		return 0x4
	case DispositionNotSupported:
		return 0x2
	default:
		return 0x1
	}
}

// flagToDisposition inverts dispositionFlag. Flags is already masked to
// 4 bits; a malformed peer setting more than one bit resolves to the
// highest-priority flag, the same mandatory-over-error-over-not-supported
// precedence qspec_param.cpp's sequential set_mandatory/set_error/
// set_not_supported calls impose.
func flagToDisposition(flags uint32) ParamDisposition {
	switch {
	case flags&0x8 != 0:
		return DispositionMandatory
	case flags&0x4 != 0:
		return DispositionError
	case flags&0x2 != 0:
		return DispositionNotSupported
	default:
		return dispositionReservedIgnore
	}
}

// Parameter is the interface every concrete QSPEC parameter implements.
type Parameter interface {
	ParamID() ParamID
	Disposition() ParamDisposition
	Check() error
	// SerializedSize reports the body size in bytes, header excluded.
	SerializedSize(coding ie.CodingVersion) int
	serializeBody(buf *netbuf.NetBuf, coding ie.CodingVersion) error
	deserializeBody(buf *netbuf.NetBuf, bodyLen int, coding ie.CodingVersion) error
}

func writeParameter(buf *netbuf.NetBuf, p Parameter, coding ie.CodingVersion) error {
	bodyLen := p.SerializedSize(coding)
	if bodyLen%4 != 0 {
		return fmt.Errorf("qspec: parameter %s body size %d not word-aligned", p.ParamID(), bodyLen)
	}
	bodyLenWords := bodyLen / 4
	if bodyLenWords > 0x0fff {
		return fmt.Errorf("qspec: parameter %s body length %d words exceeds the 12-bit length field", p.ParamID(), bodyLenWords)
	}
	var word uint32
	word |= dispositionFlag(p.Disposition()) << 28
	word |= uint32(p.ParamID()&0x0fff) << 16
	word |= uint32(bodyLenWords) & 0x0fff
	buf.WriteUint32(word)
	return p.serializeBody(buf, coding)
}

func readParameter(buf *netbuf.NetBuf, coding ie.CodingVersion) (Parameter, error) {
	start := buf.Pos()
	word, err := buf.ReadUint32()
	if err != nil {
		return nil, err
	}
	disp := flagToDisposition(word >> 28 & 0xf)
	id := ParamID(word >> 16 & 0x0fff)
	bodyLenWords := uint16(word & 0x0fff)
	bodyLen := int(bodyLenWords) * 4

	p, err := newParameter(id, disp)
	if err != nil {
		// Mandatory on an unrecognised parameter fails the whole PDU;
		// Error, Not-supported and the reserved (ignored) disposition all
		// drop just this parameter and let the caller continue.
		if disp == DispositionMandatory {
			return nil, fmt.Errorf("qspec: parameter at offset %d: %w", start, err)
		}
		if _, skipErr := buf.ReadBytes(bodyLen); skipErr != nil {
			return nil, skipErr
		}
		return nil, nil
	}
	if err := p.deserializeBody(buf, bodyLen, coding); err != nil {
		return nil, fmt.Errorf("qspec: parameter %s body: %w", id, err)
	}
	return p, nil
}
