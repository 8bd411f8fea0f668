package dispatch

import (
	"time"

	"github.com/kit-nsis/gosis/session"
)

// Effect is the sum type a Handler returns instead of calling a
// collaborator directly, per spec.md §9's "session/dispatcher cyclic
// references" design note: Send, StartTimer, CancelTimer, InstallRule,
// RemoveRule, TransitionTo. The dispatcher alone interprets these.
type Effect interface {
	isEffect()
}

// RuleAction is a packet-filter rule's disposition.
type RuleAction uint8

// Rule actions, per spec.md §6.
const (
	RuleAllow RuleAction = iota
	RuleDeny
)

// Rule is a packet-filter description, per spec.md §6's rule-installer
// collaborator.
type Rule struct {
	Action               RuleAction
	SrcCIDR, DstCIDR     string
	SrcPortLo, SrcPortHi uint16
	DstPortLo, DstPortHi uint16
	Protocol             uint8
}

// TransportAttrs are the per-send transport flags and hints, per
// spec.md §6's transport collaborator.
type TransportAttrs struct {
	Reliable   bool
	Secure     bool
	FinalHop   bool
	IPTTL      uint8
	IPDistance uint8
	GHC        uint8
}

// Send requests a message be handed to the transport collaborator.
type Send struct {
	MRI   []byte
	SDU   []byte
	Attrs TransportAttrs
}

func (Send) isEffect() {}

// StartTimer arms (or re-arms) one of a session's three timer slots.
// Arming a slot implicitly cancels whatever was previously running
// there, per spec.md §5.
type StartTimer struct {
	Slot     session.TimerSlot
	Duration time.Duration
}

func (StartTimer) isEffect() {}

// CancelTimer disarms a slot, if it is currently armed.
type CancelTimer struct {
	Slot session.TimerSlot
}

func (CancelTimer) isEffect() {}

// InstallRule requests a firewall rule be installed via the
// rule-installer collaborator; the resulting handle is recorded on the
// session.
type InstallRule struct {
	Rule Rule
}

func (InstallRule) isEffect() {}

// RemoveRule requests the session's currently installed rule handle
// (if any) be removed.
type RemoveRule struct{}

func (RemoveRule) isEffect() {}

// ReserveNAT requests an external address be reserved via the NAT
// broker collaborator for a NAT-edge forwarder, per spec.md §4.7.3.
type ReserveNAT struct {
	PrivateAddr string
}

func (ReserveNAT) isEffect() {}

// ReleaseNAT requests the session's currently held NAT reservation (if
// any) be released.
type ReleaseNAT struct{}

func (ReleaseNAT) isEffect() {}

// TransitionTo moves the session to a new state.
type TransitionTo struct {
	State session.State
}

func (TransitionTo) isEffect() {}
