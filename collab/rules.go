// Package collab implements reference, in-memory adapters for the
// rule-installer, NAT-broker and timer-service collaborators spec.md
// §6 names, suitable for tests and for a single-box deployment without
// a real kernel packet filter or NAT pool behind it.
package collab

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/kit-nsis/gosis/dispatch"
)

// MemoryRuleInstaller is an in-memory rule-installer collaborator: it
// hands out opaque handles and remembers which rule each one refers
// to, without touching any real packet filter. It implements
// dispatch.RuleInstaller.
type MemoryRuleInstaller struct {
	mu    sync.Mutex
	next  uint64
	rules map[string]dispatch.Rule
	setUp bool
}

// NewMemoryRuleInstaller builds an empty installer.
func NewMemoryRuleInstaller() *MemoryRuleInstaller {
	return &MemoryRuleInstaller{rules: make(map[string]dispatch.Rule)}
}

// Setup marks the installer ready. A reference installer has nothing
// to provision, but still enforces that Install isn't called before
// Setup, per spec.md §6's `setup()` operation.
func (m *MemoryRuleInstaller) Setup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setUp = true
	return nil
}

// Install records rule under a freshly minted handle.
func (m *MemoryRuleInstaller) Install(rule dispatch.Rule) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.setUp {
		return "", fmt.Errorf("collab: rule installer used before Setup")
	}
	m.next++
	handle := fmt.Sprintf("rule-%d", m.next)
	m.rules[handle] = rule
	return handle, nil
}

// Remove forgets a previously installed rule.
func (m *MemoryRuleInstaller) Remove(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[handle]; !ok {
		return fmt.Errorf("collab: unknown rule handle %s", handle)
	}
	delete(m.rules, handle)
	return nil
}

// RemoveAll drops every installed rule.
func (m *MemoryRuleInstaller) RemoveAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = make(map[string]dispatch.Rule)
	return nil
}

// Installed reports how many rules are currently installed, for tests.
func (m *MemoryRuleInstaller) Installed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rules)
}

// Match decodes an IPv4 packet with gopacket and reports the handle of
// the first installed rule whose CIDRs/port range/protocol admit it,
// the reference packet-filter match engine spec.md §6's rule-installer
// collaborator describes. A real deployment installs these rules into
// a kernel packet filter instead; this exists for single-box
// deployments and for exercising the same decode path operationally
// (diagnosing "why didn't this flow match") that a kernel filter
// hides.
func (m *MemoryRuleInstaller) Match(pkt []byte) (string, bool) {
	packet := gopacket.NewPacket(pkt, layers.LayerTypeIPv4, gopacket.NoCopy)
	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return "", false
	}
	ip, ok := ipLayer.(*layers.IPv4)
	if !ok {
		return "", false
	}
	srcPort, dstPort, proto, ok := transportPorts(packet, ip.Protocol)
	if !ok {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := uint64(1); i <= m.next; i++ {
		handle := fmt.Sprintf("rule-%d", i)
		rule, installed := m.rules[handle]
		if installed && ruleMatches(rule, ip.SrcIP, ip.DstIP, srcPort, dstPort, proto) {
			return handle, true
		}
	}
	return "", false
}

func transportPorts(packet gopacket.Packet, proto layers.IPProtocol) (srcPort, dstPort uint16, protoNum uint8, ok bool) {
	switch proto {
	case layers.IPProtocolTCP:
		if tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
			return uint16(tcp.SrcPort), uint16(tcp.DstPort), uint8(proto), true
		}
	case layers.IPProtocolUDP:
		if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
			return uint16(udp.SrcPort), uint16(udp.DstPort), uint8(proto), true
		}
	}
	return 0, 0, 0, false
}

func ruleMatches(rule dispatch.Rule, src, dst net.IP, srcPort, dstPort uint16, proto uint8) bool {
	if rule.Protocol != 0 && rule.Protocol != proto {
		return false
	}
	if !cidrContains(rule.SrcCIDR, src) || !cidrContains(rule.DstCIDR, dst) {
		return false
	}
	if rule.SrcPortLo != 0 && (srcPort < rule.SrcPortLo || srcPort > rule.SrcPortHi) {
		return false
	}
	if rule.DstPortLo != 0 && (dstPort < rule.DstPortLo || dstPort > rule.DstPortHi) {
		return false
	}
	return true
}

func cidrContains(cidr string, ip net.IP) bool {
	if cidr == "" {
		return true
	}
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	return ipnet.Contains(ip)
}
