// Package fsm implements the NATFW-NSLP per-role session state
// machines (Initiator, Responder, Forwarder and the EXT edge/non-edge
// variants) as dispatch.Handler implementations, per spec.md §4.7.1
// through §4.7.4.
package fsm

import (
	"time"

	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
	"github.com/kit-nsis/gosis/nslp/natfw"
)

// Policy bounds the state machines' retry and lifetime behaviour. A
// zero-value Policy is invalid; use DefaultPolicy.
type Policy struct {
	MaxLifetime    uint32
	MaxRetries     uint32
	ResponseWait   time.Duration
	BackoffCeiling time.Duration
	StateTimerCap  time.Duration
}

// DefaultPolicy matches the bounds spec.md §4.7.1/§8's scenarios assume:
// a one-hour lifetime ceiling, three response retries before giving up,
// and a two-second response wait that backs off to at most 32 seconds.
var DefaultPolicy = Policy{
	MaxLifetime:    3600,
	MaxRetries:     3,
	ResponseWait:   2 * time.Second,
	BackoffCeiling: 32 * time.Second,
	StateTimerCap:  2 * time.Hour,
}

// backoff returns the response-timer duration for the given retry
// count, doubling each time and capped at BackoffCeiling.
func (p Policy) backoff(retry uint32) time.Duration {
	d := p.ResponseWait
	for i := uint32(0); i < retry; i++ {
		d *= 2
		if d >= p.BackoffCeiling {
			return p.BackoffCeiling
		}
	}
	return d
}

// stateTimer returns the state-timer duration for an advertised
// lifetime: 1.5x the lifetime, capped, per spec.md §4.7.2.
func (p Policy) stateTimer(lifetime uint32) time.Duration {
	d := time.Duration(lifetime) * time.Second * 3 / 2
	if d > p.StateTimerCap {
		return p.StateTimerCap
	}
	return d
}

// encode serializes m into bytes suitable for a dispatch.Send effect's
// SDU field.
func encode(m *natfw.Message) ([]byte, error) {
	buf := netbuf.NewEmpty(64)
	if _, err := m.Serialize(buf, ie.DefaultCoding); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildCreate assembles a CREATE (or, with lifetime 0, a teardown
// CREATE) carrying the session's current MSN and flow description.
func buildCreate(msn uint32, lifetime uint32, flow natfw.ExtendedFlowInfo, icmp *natfw.ICMPTypes) *natfw.Message {
	m := natfw.NewMessage(natfw.MsgCreate)
	m.SetObject(uint16(natfw.ObjSessionLifetime), &natfw.SessionLifetime{Seconds: lifetime})
	m.SetObject(uint16(natfw.ObjExtendedFlowInfo), &flow)
	m.SetObject(uint16(natfw.ObjMessageSequenceNumber), &natfw.MessageSequenceNumber{MSN: msn})
	if icmp != nil {
		m.SetObject(uint16(natfw.ObjICMPTypes), icmp)
	}
	return m
}

// buildResponse assembles a RESPONSE carrying the given outcome. It
// echoes msn so the initiator or non-edge EXT forwarder awaiting it can match the
// response against the request it answers and ignore a stale one, per
// spec.md §4.7.1's "rx_RESPONSE(any, wrong MSN): ignore" rule.
func buildResponse(severity natfw.Severity, code uint16, msn uint32) *natfw.Message {
	m := natfw.NewMessage(natfw.MsgResponse)
	m.SetObject(uint16(natfw.ObjInformationCode), &natfw.InformationCode{Severity: severity, Code: code})
	m.SetObject(uint16(natfw.ObjMessageSequenceNumber), &natfw.MessageSequenceNumber{MSN: msn})
	return m
}

// responseMSNMatches reports whether a RESPONSE's echoed MSN (if any)
// matches expected. A RESPONSE with no MSN object at all is accepted
// unconditionally -- only one exchange can be outstanding per session,
// so correlation by session identity alone is already unambiguous.
func responseMSNMatches(m *natfw.Message, expected uint32) bool {
	o, ok := m.Objects[uint16(natfw.ObjMessageSequenceNumber)].(*natfw.MessageSequenceNumber)
	return !ok || o.MSN == expected
}

// flowOf extracts the flow description from a decoded CREATE/EXT, or
// the zero value if absent (callers that need it have already run
// Check() via Deserialize, so it is always present there).
func flowOf(m *natfw.Message) natfw.ExtendedFlowInfo {
	if o, ok := m.Objects[uint16(natfw.ObjExtendedFlowInfo)].(*natfw.ExtendedFlowInfo); ok {
		return *o
	}
	return natfw.ExtendedFlowInfo{}
}

func lifetimeOf(m *natfw.Message) uint32 {
	if o, ok := m.Objects[uint16(natfw.ObjSessionLifetime)].(*natfw.SessionLifetime); ok {
		return o.Seconds
	}
	return 0
}

func msnOf(m *natfw.Message) uint32 {
	if o, ok := m.Objects[uint16(natfw.ObjMessageSequenceNumber)].(*natfw.MessageSequenceNumber); ok {
		return o.MSN
	}
	return 0
}

func infoOf(m *natfw.Message) (natfw.Severity, uint16) {
	if o, ok := m.Objects[uint16(natfw.ObjInformationCode)].(*natfw.InformationCode); ok {
		return o.Severity, o.Code
	}
	return natfw.SeverityPermanentFailure, 0
}

func isSuccess(m *natfw.Message) bool {
	o, ok := m.Objects[uint16(natfw.ObjInformationCode)].(*natfw.InformationCode)
	return ok && o.IsSuccess()
}

// CreateRequest is the payload of the api_create_event that opens an
// Initiator session, per spec.md §6.
type CreateRequest struct {
	MRI      []byte
	Flow     natfw.ExtendedFlowInfo
	Lifetime uint32
	ICMP     *natfw.ICMPTypes
}

// TeardownRequest is the payload of the api_teardown_event, per
// spec.md §6. It carries no fields; the session it targets is named by
// the enclosing ApiEvent's SID.
type TeardownRequest struct{}

const (
	kindCreate   = "create"
	kindTeardown = "teardown"
)

func send(mri []byte, sdu []byte) dispatch.Effect {
	return dispatch.Send{MRI: mri, SDU: sdu}
}
