package collab

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/session"
)

func buildUDPPacket(t *testing.T, src, dst string, srcPort, dstPort uint16) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.ParseIP(src), DstIP: net.ParseIP(dst),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload([]byte("x"))))
	return buf.Bytes()
}

func TestMemoryRuleInstallerLifecycle(t *testing.T) {
	r := NewMemoryRuleInstaller()
	_, err := r.Install(dispatch.Rule{Action: dispatch.RuleAllow})
	require.Error(t, err, "Install before Setup must fail")

	require.NoError(t, r.Setup())
	h1, err := r.Install(dispatch.Rule{Action: dispatch.RuleAllow, Protocol: 6})
	require.NoError(t, err)
	h2, err := r.Install(dispatch.Rule{Action: dispatch.RuleDeny, Protocol: 17})
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
	require.Equal(t, 2, r.Installed())

	require.NoError(t, r.Remove(h1))
	require.Equal(t, 1, r.Installed())
	require.Error(t, r.Remove(h1), "removing twice fails")

	require.NoError(t, r.RemoveAll())
	require.Equal(t, 0, r.Installed())
}

func TestMemoryNatBrokerExhaustion(t *testing.T) {
	b := NewMemoryNatBroker([]string{"203.0.113.1", "203.0.113.2"})

	pub1, err := b.ReserveExternal("10.0.0.1")
	require.NoError(t, err)
	_, err = b.ReserveExternal("10.0.0.2")
	require.NoError(t, err)

	_, err = b.ReserveExternal("10.0.0.3")
	require.Error(t, err)
	var target *ErrNatPoolExhausted
	require.ErrorAs(t, err, &target)

	require.NoError(t, b.ReleaseExternal(pub1))
	_, err = b.ReserveExternal("10.0.0.3")
	require.NoError(t, err)
}

func TestMemoryRuleInstallerMatchesPacket(t *testing.T) {
	r := NewMemoryRuleInstaller()
	require.NoError(t, r.Setup())
	handle, err := r.Install(dispatch.Rule{
		Action: dispatch.RuleAllow, Protocol: 17,
		SrcCIDR: "10.0.0.0/24", DstCIDR: "198.51.100.1/32",
		DstPortLo: 80, DstPortHi: 80,
	})
	require.NoError(t, err)

	pkt := buildUDPPacket(t, "10.0.0.5", "198.51.100.1", 5000, 80)
	got, ok := r.Match(pkt)
	require.True(t, ok)
	require.Equal(t, handle, got)

	miss := buildUDPPacket(t, "10.0.1.5", "198.51.100.1", 5000, 80)
	_, ok = r.Match(miss)
	require.False(t, ok, "source outside the rule's CIDR must not match")
}

func TestRealTimerServiceFiresAndCancels(t *testing.T) {
	fired := make(chan session.TimerSlot, 1)
	ts := NewRealTimerService(func(sid session.ID, slot session.TimerSlot, handle session.TimerHandle) {
		fired <- slot
	})

	var id session.ID
	h := ts.Start(id, session.ResponseTimer, 10*time.Millisecond)
	select {
	case slot := <-fired:
		require.Equal(t, session.ResponseTimer, slot)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	ts.Cancel(h) // no-op, already fired; must not panic

	cancelled := make(chan session.TimerSlot, 1)
	ts2 := NewRealTimerService(func(sid session.ID, slot session.TimerSlot, handle session.TimerHandle) {
		cancelled <- slot
	})
	h2 := ts2.Start(id, session.StateTimer, 50*time.Millisecond)
	ts2.Cancel(h2)
	select {
	case <-cancelled:
		t.Fatal("cancelled timer must not fire")
	case <-time.After(100 * time.Millisecond):
	}
}
