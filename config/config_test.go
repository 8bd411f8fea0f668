package config

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRealmTypedAccessors(t *testing.T) {
	s := NewStore()
	r := s.Realm(RealmNATFW)
	r.Set("max_lifetime", UintValue(3600))
	r.Set("nat_edge", BoolValue(true))
	r.Set("backoff_ceiling", FloatValue(32.0))
	r.Set("iface", StringValue("eth0"))
	r.Set("listen_addr", AddrValue(net.ParseIP("198.51.100.1")))
	r.Set("peers", AddrListValue([]net.IP{net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2")}))

	require.Equal(t, uint64(3600), r.Uint("max_lifetime", 0))
	require.True(t, r.Bool("nat_edge", false))
	require.Equal(t, 32.0, r.Float("backoff_ceiling", 0))
	require.Equal(t, "eth0", r.String("iface", ""))

	addr, ok := r.Addr("listen_addr")
	require.True(t, ok)
	require.True(t, addr.Equal(net.ParseIP("198.51.100.1")))

	peers, ok := r.AddrList("peers")
	require.True(t, ok)
	require.Len(t, peers, 2)
}

func TestRealmAccessorsFallBackOnWrongKind(t *testing.T) {
	s := NewStore()
	r := s.Realm(RealmGlobal)
	r.Set("x", StringValue("not a number"))
	require.Equal(t, uint64(7), r.Uint("x", 7), "wrong-kind lookup falls back to the default")
	require.Equal(t, uint64(7), r.Uint("missing", 7))
}

func TestDumpLoadRoundTrip(t *testing.T) {
	s := NewStore()
	s.Realm(RealmTransport).Set("dscp", UintValue(46))
	s.Realm(RealmNATFW).Set("max_lifetime", UintValue(3600))
	s.Realm(RealmQoS).Set("enabled", BoolValue(true))
	s.Realm(RealmGlobal).Set("listen", AddrValue(net.ParseIP("0.0.0.0")))

	first, err := s.Dump()
	require.NoError(t, err)

	reloaded := NewStore()
	require.NoError(t, reloaded.Load(first))

	second, err := reloaded.Dump()
	require.NoError(t, err)
	require.Equal(t, first, second, "dump -> load -> dump is byte-exact")

	require.Equal(t, uint64(46), reloaded.Realm(RealmTransport).Uint("dscp", 0))
	require.True(t, reloaded.Realm(RealmQoS).Bool("enabled", false))
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	s := NewStore()
	err := s.Load([]byte("global:\n  x:\n    kind: not-a-kind\n"))
	require.Error(t, err)
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/nsisd.yaml"

	s := NewStore()
	s.Realm(RealmNATFW).Set("max_lifetime", UintValue(1800))
	require.NoError(t, s.WriteFile(path))

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1800), loaded.Realm(RealmNATFW).Uint("max_lifetime", 0))
}
