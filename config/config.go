// Package config implements the typed, namespaced configuration store
// spec.md §6 describes: one Realm per application (transport, natfw,
// qos) plus a global realm, holding booleans, fixed-width unsigned
// integers, floats, strings, host addresses and host-address lists,
// with a byte-exact YAML dump/reload round trip, in the shape of
// ptp/sptp/client.Config/ReadConfig.
package config

import (
	"fmt"
	"net"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// Kind distinguishes which Go type a Value currently holds.
type Kind uint8

// The value kinds spec.md §6 names.
const (
	KindBool Kind = iota
	KindUint
	KindFloat
	KindString
	KindAddr
	KindAddrList
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindAddr:
		return "addr"
	case KindAddrList:
		return "addrlist"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one configuration entry. Exactly one of the typed fields is
// meaningful, selected by Kind. MarshalYAML/UnmarshalYAML write Kind
// out explicitly (as its string name) alongside whichever field holds
// the value, so a dump/reload round trip recovers the original Kind
// rather than guessing it back from which field is non-zero.
type Value struct {
	Kind Kind

	Bool     bool
	Uint     uint64
	Float    float64
	String   string
	Addr     string
	AddrList []string
}

type valueDoc struct {
	Kind     string   `yaml:"kind"`
	Bool     bool     `yaml:"bool,omitempty"`
	Uint     uint64   `yaml:"uint,omitempty"`
	Float    float64  `yaml:"float,omitempty"`
	String   string   `yaml:"string,omitempty"`
	Addr     string   `yaml:"addr,omitempty"`
	AddrList []string `yaml:"addrlist,omitempty"`
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (interface{}, error) {
	return valueDoc{
		Kind: v.Kind.String(), Bool: v.Bool, Uint: v.Uint, Float: v.Float,
		String: v.String, Addr: v.Addr, AddrList: v.AddrList,
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var doc valueDoc
	if err := unmarshal(&doc); err != nil {
		return err
	}
	kind, err := parseKind(doc.Kind)
	if err != nil {
		return err
	}
	*v = Value{
		Kind: kind, Bool: doc.Bool, Uint: doc.Uint, Float: doc.Float,
		String: doc.String, Addr: doc.Addr, AddrList: doc.AddrList,
	}
	return nil
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "bool":
		return KindBool, nil
	case "uint":
		return KindUint, nil
	case "float":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "addr":
		return KindAddr, nil
	case "addrlist":
		return KindAddrList, nil
	default:
		return 0, fmt.Errorf("config: unknown value kind %q", s)
	}
}

// BoolValue builds a Kind-tagged boolean Value.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// UintValue builds a Kind-tagged unsigned-integer Value.
func UintValue(v uint64) Value { return Value{Kind: KindUint, Uint: v} }

// FloatValue builds a Kind-tagged float Value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// StringValue builds a Kind-tagged string Value.
func StringValue(v string) Value { return Value{Kind: KindString, String: v} }

// AddrValue builds a Kind-tagged host-address Value.
func AddrValue(v net.IP) Value { return Value{Kind: KindAddr, Addr: v.String()} }

// AddrListValue builds a Kind-tagged host-address-list Value.
func AddrListValue(vs []net.IP) Value {
	strs := make([]string, len(vs))
	for i, v := range vs {
		strs[i] = v.String()
	}
	return Value{Kind: KindAddrList, AddrList: strs}
}

// AsAddr parses Addr as a net.IP, failing if Kind isn't KindAddr or the
// string doesn't parse.
func (v Value) AsAddr() (net.IP, error) {
	if v.Kind != KindAddr {
		return nil, fmt.Errorf("config: value is %s, not addr", v.Kind)
	}
	ip := net.ParseIP(v.Addr)
	if ip == nil {
		return nil, fmt.Errorf("config: %q is not a valid address", v.Addr)
	}
	return ip, nil
}

// AsAddrList parses AddrList as a slice of net.IP.
func (v Value) AsAddrList() ([]net.IP, error) {
	if v.Kind != KindAddrList {
		return nil, fmt.Errorf("config: value is %s, not addrlist", v.Kind)
	}
	ips := make([]net.IP, len(v.AddrList))
	for i, s := range v.AddrList {
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("config: %q is not a valid address", s)
		}
		ips[i] = ip
	}
	return ips, nil
}

// Realm is one namespace of key/value pairs -- one per application
// (transport, natfw, qos) plus a process-wide global realm.
type Realm struct {
	Name   string
	Values map[string]Value
}

func newRealm(name string) *Realm {
	return &Realm{Name: name, Values: make(map[string]Value)}
}

// Set attaches (or replaces) a keyed value in the realm.
func (r *Realm) Set(key string, v Value) { r.Values[key] = v }

// Get returns the keyed value, or false if absent.
func (r *Realm) Get(key string) (Value, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// Bool/Uint/Float/String/Addr/AddrList return a typed default if key
// is absent or holds the wrong Kind, matching the teacher's
// DefaultConfig-then-override idiom rather than forcing every caller
// to check an error.
func (r *Realm) Bool(key string, def bool) bool {
	if v, ok := r.Values[key]; ok && v.Kind == KindBool {
		return v.Bool
	}
	return def
}

func (r *Realm) Uint(key string, def uint64) uint64 {
	if v, ok := r.Values[key]; ok && v.Kind == KindUint {
		return v.Uint
	}
	return def
}

func (r *Realm) Float(key string, def float64) float64 {
	if v, ok := r.Values[key]; ok && v.Kind == KindFloat {
		return v.Float
	}
	return def
}

func (r *Realm) String(key string, def string) string {
	if v, ok := r.Values[key]; ok && v.Kind == KindString {
		return v.String
	}
	return def
}

func (r *Realm) Addr(key string) (net.IP, bool) {
	v, ok := r.Values[key]
	if !ok || v.Kind != KindAddr {
		return nil, false
	}
	ip, err := v.AsAddr()
	return ip, err == nil
}

func (r *Realm) AddrList(key string) ([]net.IP, bool) {
	v, ok := r.Values[key]
	if !ok || v.Kind != KindAddrList {
		return nil, false
	}
	ips, err := v.AsAddrList()
	return ips, err == nil
}

// Realm names, per spec.md §6: one per NSLP application plus the
// transport layer and a process-wide global realm.
const (
	RealmGlobal    = "global"
	RealmTransport = "transport"
	RealmNATFW     = "natfw"
	RealmQoS       = "qos"
)

// Store is the full namespaced configuration, one Realm per
// application, per spec.md §6.
type Store struct {
	Realms map[string]*Realm
}

// NewStore builds an empty Store with the four standing realms
// already present.
func NewStore() *Store {
	s := &Store{Realms: make(map[string]*Realm)}
	for _, name := range []string{RealmGlobal, RealmTransport, RealmNATFW, RealmQoS} {
		s.Realms[name] = newRealm(name)
	}
	return s
}

// Realm returns the named realm, creating it if it doesn't yet exist
// (a deployment may define application-specific realms beyond the
// four standing ones).
func (s *Store) Realm(name string) *Realm {
	r, ok := s.Realms[name]
	if !ok {
		r = newRealm(name)
		s.Realms[name] = r
	}
	return r
}

// dumpDoc is the YAML-serializable shape of a Store: a map keyed by
// realm name, then by key. It carries no ordering of its own.
type dumpDoc map[string]map[string]Value

// dumpRealms flattens the Store into a dumpDoc. The result is a plain
// map: the deterministic key order of Dump's output comes from
// gopkg.in/yaml.v2 sorting map keys on marshal, not from this function.
func (s *Store) dumpRealms() dumpDoc {
	doc := make(dumpDoc, len(s.Realms))
	for name, r := range s.Realms {
		doc[name] = r.Values
	}
	return doc
}

// Dump marshals the store to YAML. Map keys are sorted by
// gopkg.in/yaml.v2 internally for scalar maps, giving the byte-exact
// round trip spec.md §6 requires.
func (s *Store) Dump() ([]byte, error) {
	return yaml.Marshal(s.dumpRealms())
}

// Load replaces the store's contents from a YAML document produced by
// Dump.
func (s *Store) Load(data []byte) error {
	var doc dumpDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	s.Realms = make(map[string]*Realm, len(doc))
	for name, values := range doc {
		r := newRealm(name)
		if values != nil {
			r.Values = values
		}
		s.Realms[name] = r
	}
	return nil
}

// ReadFile reads a Store from path, matching
// ptp/sptp/client.ReadConfig's read-then-unmarshal shape.
func ReadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := NewStore()
	if err := s.Load(data); err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	return s, nil
}

// WriteFile dumps the store to path.
func (s *Store) WriteFile(path string) error {
	data, err := s.Dump()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// realmNames returns the store's realm names in sorted order, for
// deterministic logging/diagnostics.
func (s *Store) realmNames() []string {
	names := make([]string, 0, len(s.Realms))
	for name := range s.Realms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogSummary logs one line per realm naming its key count, matching
// the teacher's log.Debugf("config: %+v", cfg) diagnostic idiom.
func (s *Store) LogSummary() {
	for _, name := range s.realmNames() {
		log.Debugf("config: realm %s has %d keys", name, len(s.Realms[name].Values))
	}
}
