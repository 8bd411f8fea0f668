// Package ie implements the polymorphic Information-Element codec
// abstraction shared by the NSLP, QSPEC and session-auth wire families:
// a small interface every serialisable entity implements, plus a registry
// that maps (category, type, subtype) to a prototype for deserialisation
// dispatch.
//
// This mirrors the source's IE base class and IE manager (spec.md §4.2),
// rebuilt the way spec.md §9 asks: a trait-object-shaped interface plus an
// explicit process handle instead of a source-level singleton, so tests can
// construct private registries.
package ie

import (
	"fmt"

	"github.com/kit-nsis/gosis/internal/netbuf"
)

// Category is the top-level codec vocabulary an IE belongs to.
type Category uint8

// The four IE categories named in spec.md §3.
const (
	CategoryPDU Category = iota
	CategoryObject
	CategoryParameter
	CategoryAttribute
)

func (c Category) String() string {
	switch c {
	case CategoryPDU:
		return "pdu"
	case CategoryObject:
		return "object"
	case CategoryParameter:
		return "parameter"
	case CategoryAttribute:
		return "attribute"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Key identifies a registered IE prototype.
type Key struct {
	Category Category
	Type     uint16
	Subtype  uint8
}

// CodingVersion is the coding-version parameter IE.serialize/deserialize
// take, matching spec.md §4.2. Negotiation of acceptable versions is
// delegated to hashicorp/go-version in Registry.Compatible.
type CodingVersion uint8

// DefaultCoding is the coding version used when a caller doesn't care.
const DefaultCoding CodingVersion = 1

// IE is the interface every serialisable entity (PDU, object, parameter,
// attribute) implements.
type IE interface {
	// Category reports which codec vocabulary this IE belongs to.
	Category() Category
	// Type reports the wire type code (up to 12 bits for NSLP objects, 8
	// bits elsewhere — range is not enforced here, callers validate).
	Type() uint16
	// Subtype reports the wire subtype, or 0 if this IE family has none.
	Subtype() uint8
	// NewInstance returns a blank IE of the same concrete kind, used by
	// the registry to build a fresh value before Deserialize.
	NewInstance() IE
	// DeepCopy returns an independent copy of this IE.
	DeepCopy() IE
	// Check is the authoritative structural validator: an IE that fails
	// Check must never be serialized, and round-trip is only guaranteed
	// for IEs that pass it.
	Check() error
	// SerializedSize reports exactly how many bytes Serialize will write
	// for this value under the given coding version.
	SerializedSize(coding CodingVersion) int
	// Serialize writes this IE's wire form to buf and returns the number
	// of bytes written, which must equal SerializedSize.
	Serialize(buf *netbuf.NetBuf, coding CodingVersion) (int, error)
	// Deserialize reads this IE's wire form from buf. skip controls
	// whether a structural error should be recovered from (discard this
	// IE and let the caller continue) or treated as fatal. Non-fatal
	// problems are always appended to errs, in both modes.
	Deserialize(buf *netbuf.NetBuf, coding CodingVersion, errs *ErrorList, skip bool) (int, error)
	// Equal reports semantic equality (ignoring e.g. padding artifacts).
	Equal(other IE) bool
	// String renders a short debug form.
	String() string
}

// ErrorList accumulates non-fatal parse errors so a lenient parse can
// continue past a skippable IE while still reporting everything that went
// wrong, per spec.md §4.2 and §7's propagation policy.
type ErrorList struct {
	errs []error
}

// Add appends an error to the list.
func (l *ErrorList) Add(err error) {
	if err != nil {
		l.errs = append(l.errs, err)
	}
}

// Errs returns the accumulated errors.
func (l *ErrorList) Errs() []error { return l.errs }

// Empty reports whether no errors were accumulated.
func (l *ErrorList) Empty() bool { return len(l.errs) == 0 }
