package ie

import (
	"fmt"
	"sync"

	version "github.com/hashicorp/go-version"
)

// WrongType is returned when deserialisation finds no prototype registered
// for a (category, type, subtype) and no category-level fallback either.
type WrongType struct {
	Key Key
}

func (e *WrongType) Error() string {
	return fmt.Sprintf("ie: no prototype registered for %s type=%d subtype=%d", e.Key.Category, e.Key.Type, e.Key.Subtype)
}

// Registry is an explicit process handle replacing the source's global IE
// manager singleton (spec.md §9's "global singletons" note): every codec
// package constructs or is handed one instead of reaching for package
// state, so tests can build a private registry and never need a clear()
// step between cases.
type Registry struct {
	mu         sync.RWMutex
	prototypes map[Key]IE
	// fallback holds one raw-fallback prototype per category, used when
	// the specific (type, subtype) isn't registered.
	fallback map[Category]func(typ uint16, subtype uint8) IE
	// supported constrains which coding versions this registry accepts;
	// nil means "accept everything".
	supported version.Constraints
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		prototypes: make(map[Key]IE),
		fallback:   make(map[Category]func(typ uint16, subtype uint8) IE),
	}
}

// SetSupportedCodings constrains acceptable coding versions, e.g. ">= 1, < 3".
func (r *Registry) SetSupportedCodings(constraint string) error {
	c, err := version.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("ie: invalid coding constraint %q: %w", constraint, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.supported = c
	return nil
}

// Compatible reports whether a coding version satisfies this registry's
// constraint (always true if none was set).
func (r *Registry) Compatible(coding CodingVersion) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.supported == nil {
		return true
	}
	v, err := version.NewVersion(fmt.Sprintf("%d.0.0", coding))
	if err != nil {
		return false
	}
	return r.supported.Check(v)
}

// Register records a prototype under its own (category, type, subtype).
// The registry owns the prototype: NewInstance is called on it to produce
// fresh values, the prototype itself is never mutated.
func (r *Registry) Register(proto IE) {
	key := Key{Category: proto.Category(), Type: proto.Type(), Subtype: proto.Subtype()}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prototypes[key] = proto
}

// RegisterFallback records the raw-fallback constructor for a whole
// category, consulted when the specific key is absent.
func (r *Registry) RegisterFallback(cat Category, newRaw func(typ uint16, subtype uint8) IE) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback[cat] = newRaw
}

// New looks up (category, type, subtype) and returns a fresh instance
// ready for Deserialize. If no specific prototype is registered, the
// category's fallback (if any) builds a raw opaque IE. If neither exists,
// it returns WrongType.
func (r *Registry) New(cat Category, typ uint16, subtype uint8) (IE, error) {
	key := Key{Category: cat, Type: typ, Subtype: subtype}
	r.mu.RLock()
	proto, ok := r.prototypes[key]
	fallback, hasFallback := r.fallback[cat]
	r.mu.RUnlock()
	if ok {
		return proto.NewInstance(), nil
	}
	if hasFallback {
		return fallback(typ, subtype), nil
	}
	return nil, &WrongType{Key: key}
}

// Lookup reports whether a specific (category, type, subtype) has a
// registered (non-fallback) prototype.
func (r *Registry) Lookup(cat Category, typ uint16, subtype uint8) bool {
	key := Key{Category: cat, Type: typ, Subtype: subtype}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.prototypes[key]
	return ok
}
