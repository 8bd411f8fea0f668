package dispatch

import (
	"time"

	"github.com/kit-nsis/gosis/session"
)

// Transport is the consumed surface of the GIST/NTLP collaborator, per
// spec.md §6. Only the dispatcher ever calls Send.
type Transport interface {
	Send(sid session.ID, mri, sdu []byte, attrs TransportAttrs) error
}

// RuleInstaller is the consumed surface of the policy-rule-installer
// collaborator, per spec.md §6. Install/Remove failures are reported
// as PolicyRuleInstallerError and are non-fatal at the session level
// (the session transitions to Final with a permanent-failure report).
type RuleInstaller interface {
	Setup() error
	Install(rule Rule) (handle string, err error)
	Remove(handle string) error
	RemoveAll() error
}

// NatBroker is the consumed surface of the NAT-broker collaborator,
// per spec.md §6. ReserveExternal fails with NatBrokerError when the
// pool is exhausted.
type NatBroker interface {
	ReserveExternal(privateAddr string) (publicAddr string, err error)
	ReleaseExternal(publicAddr string) error
}

// TimerService arms and cancels timers. Timers are fire-and-forget:
// when one expires, the implementation is responsible for delivering a
// TimerEvent back to the Dispatcher that armed it (via the Deliver
// callback supplied at construction, by convention in the collab
// package's implementation).
type TimerService interface {
	Start(sid session.ID, slot session.TimerSlot, d time.Duration) session.TimerHandle
	Cancel(h session.TimerHandle)
}
