// Package dispatch implements the single dispatch point spec.md §4.8
// describes: event resolution against the session manager, and the
// effects-return convention (spec.md §9) that lets session handlers
// request sends, timers and rule changes without holding a lock across
// a blocking call.
package dispatch

import (
	"github.com/kit-nsis/gosis/session"
)

// Event is the sum type the dispatcher accepts: MessageEvent, ApiEvent
// or TimerEvent, per spec.md §4.8.
type Event interface {
	// SessionID returns the event's session-id, if it names one. A nil
	// return means the event must be resolved some other way (e.g. a
	// message that may open a new session).
	SessionID() *session.ID
}

// MessageEvent delivers a parsed NSLP PDU arriving from a peer, per
// spec.md §6's transport collaborator `receive(NtlpMessage)`.
type MessageEvent struct {
	SID           *session.ID
	MRI           []byte
	PeerID        string
	ParsedMessage interface{}
}

func (e *MessageEvent) SessionID() *session.ID { return e.SID }

// ApiEvent delivers a local application request, per spec.md §6:
// api_create_event/api_teardown_event/api_ext_event/api_reserve_event.
// Kind names which one; Payload carries the role-specific request
// struct (e.g. natfw.CreateRequest), left untyped here so this package
// does not depend on either NSLP application.
type ApiEvent struct {
	SID     *session.ID
	Kind    string
	Payload interface{}
}

func (e *ApiEvent) SessionID() *session.ID { return e.SID }

// TimerEvent delivers a fired timer, per spec.md §5's "timers are
// fire-and-forget: expiry is delivered as a TimerEvent."
type TimerEvent struct {
	SID    session.ID
	Slot   session.TimerSlot
	Handle session.TimerHandle
}

func (e *TimerEvent) SessionID() *session.ID { return &e.SID }
