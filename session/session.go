// Package session implements the per-flow Session entity and the
// process-wide Manager that owns the session-id to Session map, per
// spec.md §3/§5.
package session

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/kit-nsis/gosis/nslp"
)

// ID is the 128-bit session identifier.
type ID [16]byte

func (id ID) String() string { return fmt.Sprintf("%x", [16]byte(id)) }

// NewID draws a random session-id.
func NewID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Role distinguishes which state machine owns a session, per spec.md
// §4.7's per-role transition tables.
type Role uint8

// Roles, per spec.md §4.7.1-§4.7.5.
const (
	RoleNATFWInitiator Role = iota + 1
	RoleNATFWResponder
	RoleNATFWForwarder
	RoleNATFWExtEdge
	RoleNATFWExtNonEdge
	RoleQoSInitiator
	RoleQoSForwarder
	RoleQoSResponder
)

func (r Role) String() string {
	names := map[Role]string{
		RoleNATFWInitiator: "natfw-initiator", RoleNATFWResponder: "natfw-responder",
		RoleNATFWForwarder: "natfw-forwarder", RoleNATFWExtEdge: "natfw-ext-edge",
		RoleNATFWExtNonEdge: "natfw-ext-nonedge", RoleQoSInitiator: "qos-initiator",
		RoleQoSForwarder: "qos-forwarder", RoleQoSResponder: "qos-responder",
	}
	if n, ok := names[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// State is a session's lifecycle state. All roles share the same
// Idle/WaitResp/Session/Final vocabulary, per spec.md §4.7's "analogous
// structure" note for QoS-NSLP sessions; a responder role simply never
// visits WaitResp.
type State uint8

// States, per spec.md §4.7.1-§4.7.4.
const (
	StateIdle State = iota
	StateWaitResp
	StateSession
	StateFinal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitResp:
		return "wait-resp"
	case StateSession:
		return "session"
	case StateFinal:
		return "final"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// TimerSlot names one of a session's at-most-three concurrently live
// timers, per spec.md §5: starting a timer in a slot implicitly
// cancels whatever was previously running there.
type TimerSlot uint8

// Timer slots, per spec.md §3/§5.
const (
	StateTimer TimerSlot = iota
	ResponseTimer
	RefreshTimer
)

func (t TimerSlot) String() string {
	switch t {
	case StateTimer:
		return "state_timer"
	case ResponseTimer:
		return "response_timer"
	case RefreshTimer:
		return "refresh_timer"
	default:
		return fmt.Sprintf("timerslot(%d)", uint8(t))
	}
}

// TimerHandle is a stable integer identifying one armed timer, handed
// back by the TimerService a dispatcher drives.
type TimerHandle uint64

// Session is per-flow state: one per (protocol, peer, flow), per
// spec.md §3's Session entity description. Fields matching a single
// (state, MSN, cached refresh, timer handles) critical region must only
// be touched while holding the Session's own mutex, per spec.md §5.
type Session struct {
	mu sync.Mutex

	ID   ID
	Role Role

	state State
	// MSN is the current outgoing message sequence number (NATFW) or RSN
	// (QoS) -- both use the identical RFC-1982 wrap-around comparison,
	// per spec.md §4.7.1/§4.7.5, so one field serves both roles.
	MSN uint32

	// LastSent caches the last outbound refreshable CREATE/EXT/RESERVE
	// for retransmission, per spec.md §4.7's "refreshable message
	// cache" convention. Resent verbatim except for MSN.
	LastSent *nslp.Message

	// MRI is the flow's message routing information, cached so a timer
	// firing (which carries no peer address of its own) can still
	// address a retransmission.
	MRI []byte

	// RetryCounter is the role's create_counter/ext_counter: it starts
	// at 0 and increments on every response-timer expiry, per spec.md
	// §4.7.
	RetryCounter uint32

	// RuleHandle and NatHandle name the installed policy rule / NAT
	// reservation this session owns exclusively, when present. Empty
	// string means none installed.
	RuleHandle string
	NatHandle  string

	timers [3]*TimerHandle

	// CreatedAt and UpdatedAt support external housekeeping (expiry
	// sweeps, observability) without requiring a lock to read roughly.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds a session in Idle, per spec.md §3's "sessions are created
// implicitly" rule -- callers (the dispatcher) decide when that's
// appropriate.
func New(id ID, role Role) *Session {
	now := time.Now()
	return &Session{ID: id, Role: role, state: StateIdle, CreatedAt: now, UpdatedAt: now}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentState reads the state without locking. A Handler runs with the
// session already locked by the dispatcher, so it must call this
// instead of State (which would deadlock on the session's own mutex).
func (s *Session) CurrentState() State { return s.state }

// SetState transitions the session, per spec.md §9's effects-returned
// pattern: callers apply a TransitionTo effect through this method
// rather than mutating state directly from a handler.
func (s *Session) SetState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
	s.UpdatedAt = time.Now()
}

// Lock/Unlock expose the session's own critical-region mutex so a
// dispatcher can run a role's pure handler function under exclusive
// access to the whole (state, MSN, cache, timers) tuple in one step,
// per spec.md §5's "single critical region" requirement.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// TimerHandle returns the handle currently armed in a slot, if any.
// Must be called with the session locked.
func (s *Session) TimerHandle(slot TimerSlot) (TimerHandle, bool) {
	h := s.timers[slot]
	if h == nil {
		return 0, false
	}
	return *h, true
}

// SetTimerHandle records a newly armed timer for a slot, implicitly
// replacing whatever was there. Must be called with the session locked.
func (s *Session) SetTimerHandle(slot TimerSlot, h TimerHandle) {
	v := h
	s.timers[slot] = &v
}

// ClearTimerHandle forgets a slot's timer, e.g. after cancellation.
// Must be called with the session locked.
func (s *Session) ClearTimerHandle(slot TimerSlot) {
	s.timers[slot] = nil
}

// LiveTimerHandles returns every currently armed timer handle, for
// cancelling them all on the transition to Final, per spec.md §5. Must
// be called with the session locked.
func (s *Session) LiveTimerHandles() []TimerHandle {
	var out []TimerHandle
	for _, h := range s.timers {
		if h != nil {
			out = append(out, *h)
		}
	}
	return out
}

// DrainTimers returns and clears every armed timer handle, taking the
// session's lock itself. Used when a session transitions to Final and
// every outstanding timer must be cancelled before the session is
// dropped from the manager, per spec.md §5.
func (s *Session) DrainTimers() []TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.LiveTimerHandles()
	s.timers = [3]*TimerHandle{}
	return out
}
