package fsm

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kit-nsis/gosis/collab"
	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
	"github.com/kit-nsis/gosis/nslp/natfw"
	"github.com/kit-nsis/gosis/session"
)

type capturingTransport struct {
	sent []dispatch.Send
}

func (c *capturingTransport) Send(sid session.ID, mri, sdu []byte, attrs dispatch.TransportAttrs) error {
	c.sent = append(c.sent, dispatch.Send{MRI: mri, SDU: sdu, Attrs: attrs})
	return nil
}

func (c *capturingTransport) last(t *testing.T) *natfw.Message {
	t.Helper()
	require.NotEmpty(t, c.sent)
	buf := netbuf.New(c.sent[len(c.sent)-1].SDU)
	m, err := natfw.Deserialize(buf, ie.DefaultCoding)
	require.NoError(t, err)
	return m
}

type trackingTimers struct {
	next    session.TimerHandle
	started map[session.TimerHandle]session.TimerSlot
	cancels []session.TimerHandle
}

func newTrackingTimers() *trackingTimers {
	return &trackingTimers{started: make(map[session.TimerHandle]session.TimerSlot)}
}

func (tt *trackingTimers) Start(sid session.ID, slot session.TimerSlot, d time.Duration) session.TimerHandle {
	tt.next++
	tt.started[tt.next] = slot
	return tt.next
}

func (tt *trackingTimers) Cancel(h session.TimerHandle) { tt.cancels = append(tt.cancels, h) }

func newHarness(role session.Role, h dispatch.Handler) (*dispatch.Dispatcher, *capturingTransport, *trackingTimers, *collab.MemoryRuleInstaller) {
	transport := &capturingTransport{}
	timers := newTrackingTimers()
	rules := collab.NewMemoryRuleInstaller()
	_ = rules.Setup()
	nat := collab.NewMemoryNatBroker([]string{"203.0.113.10"})
	d := dispatch.NewDispatcher(session.NewManager(), dispatch.RoleResolverFunc(func(ev dispatch.Event) (session.Role, bool) {
		return role, true
	}), transport, rules, nat, timers)
	d.Register(role, h)
	return d, transport, timers, rules
}

func testFlow() natfw.ExtendedFlowInfo {
	return natfw.ExtendedFlowInfo{
		SrcAddr: net.ParseIP("10.0.0.1"), DstAddr: net.ParseIP("198.51.100.1"),
		SrcPort: 4000, DstPort: 80, Protocol: 6,
	}
}

func successResponse(msn uint32) *natfw.Message {
	return buildResponse(natfw.SeveritySuccess, 0, msn)
}

// S2: NI happy path -- create, accept, reaches Session.
func TestScenarioNIHappyPath(t *testing.T) {
	d, transport, _, _ := newHarness(session.RoleNATFWInitiator, NewInitiator())

	id, err := session.NewID()
	require.NoError(t, err)
	req := CreateRequest{MRI: []byte("mri-1"), Flow: testFlow(), Lifetime: 120}
	require.NoError(t, d.Dispatch(&dispatch.ApiEvent{SID: &id, Kind: kindCreate, Payload: req}))

	s, ok := d.Sessions.Lookup(id)
	require.True(t, ok)
	require.Equal(t, session.StateWaitResp, s.State())

	created := transport.last(t)
	require.Equal(t, natfw.MsgCreate, created.Type)
	sentMSN := msnOf(created)

	resp := successResponse(sentMSN)
	require.NoError(t, d.Dispatch(&dispatch.MessageEvent{SID: &id, MRI: []byte("mri-1"), ParsedMessage: resp}))

	require.Equal(t, session.StateSession, s.State())
}

// S3: NI-originated CREATE with a too-large lifetime is rejected at NR,
// which goes straight to Final per the §9 redesign flag's Idle case.
func TestScenarioNRRejectsOversizedLifetimeAtIdle(t *testing.T) {
	d, transport, _, _ := newHarness(session.RoleNATFWResponder, NewResponder())

	id, err := session.NewID()
	require.NoError(t, err)
	create := natfw.NewMessage(natfw.MsgCreate)
	create.SetObject(uint16(natfw.ObjSessionLifetime), &natfw.SessionLifetime{Seconds: DefaultPolicy.MaxLifetime + 1})
	flow := testFlow()
	create.SetObject(uint16(natfw.ObjExtendedFlowInfo), &flow)
	create.SetObject(uint16(natfw.ObjMessageSequenceNumber), &natfw.MessageSequenceNumber{MSN: 1})

	require.NoError(t, d.Dispatch(&dispatch.MessageEvent{SID: &id, MRI: []byte("mri-2"), ParsedMessage: create}))

	require.Equal(t, 0, d.Sessions.Len(), "oversized lifetime at Idle drives the session to Final")
	resp := transport.last(t)
	require.Equal(t, natfw.MsgResponse, resp.Type)
	sev, _ := infoOf(resp)
	require.Equal(t, natfw.SeveritySignalingSessionFailure, sev)
}

// S5: a duplicate CREATE at MSN 77 (not advancing the session's MSN)
// is silently dropped once a session is established.
func TestScenarioNRDropsDuplicateMSN(t *testing.T) {
	d, transport, _, _ := newHarness(session.RoleNATFWResponder, NewResponder())

	id, err := session.NewID()
	require.NoError(t, err)
	flow := testFlow()
	first := natfw.NewMessage(natfw.MsgCreate)
	first.SetObject(uint16(natfw.ObjSessionLifetime), &natfw.SessionLifetime{Seconds: 120})
	first.SetObject(uint16(natfw.ObjExtendedFlowInfo), &flow)
	first.SetObject(uint16(natfw.ObjMessageSequenceNumber), &natfw.MessageSequenceNumber{MSN: 77})

	require.NoError(t, d.Dispatch(&dispatch.MessageEvent{SID: &id, MRI: []byte("mri-3"), ParsedMessage: first}))
	s, ok := d.Sessions.Lookup(id)
	require.True(t, ok)
	require.Equal(t, session.StateSession, s.State())
	require.Equal(t, uint32(77), s.MSN)
	sentAfterFirst := len(transport.sent)

	dup := natfw.NewMessage(natfw.MsgCreate)
	dup.SetObject(uint16(natfw.ObjSessionLifetime), &natfw.SessionLifetime{Seconds: 120})
	dup.SetObject(uint16(natfw.ObjExtendedFlowInfo), &flow)
	dup.SetObject(uint16(natfw.ObjMessageSequenceNumber), &natfw.MessageSequenceNumber{MSN: 77})
	require.NoError(t, d.Dispatch(&dispatch.MessageEvent{SID: &id, MRI: []byte("mri-3"), ParsedMessage: dup}))

	require.Equal(t, session.StateSession, s.State(), "duplicate MSN causes no state change")
	require.Equal(t, uint32(77), s.MSN)
	require.Len(t, transport.sent, sentAfterFirst, "duplicate MSN produces no response")
}

// S6: an NF forwarding a teardown (lifetime==0) removes its installed
// rule exactly once, forwards the teardown downstream, cancels its
// timers and goes Final.
func TestScenarioNFTeardownRemovesRule(t *testing.T) {
	d, transport, timers, rules := newHarness(session.RoleNATFWForwarder, NewForwarder())

	id, err := session.NewID()
	require.NoError(t, err)
	flow := testFlow()

	opening := natfw.NewMessage(natfw.MsgCreate)
	opening.SetObject(uint16(natfw.ObjSessionLifetime), &natfw.SessionLifetime{Seconds: 300})
	opening.SetObject(uint16(natfw.ObjExtendedFlowInfo), &flow)
	opening.SetObject(uint16(natfw.ObjMessageSequenceNumber), &natfw.MessageSequenceNumber{MSN: 1})
	require.NoError(t, d.Dispatch(&dispatch.MessageEvent{SID: &id, MRI: []byte("mri-4"), ParsedMessage: opening}))
	require.Equal(t, 1, rules.Installed())

	ack := successResponse(1)
	require.NoError(t, d.Dispatch(&dispatch.MessageEvent{SID: &id, MRI: []byte("mri-4"), ParsedMessage: ack}))
	s, ok := d.Sessions.Lookup(id)
	require.True(t, ok)
	require.Equal(t, session.StateSession, s.State())
	require.Equal(t, 1, rules.Installed())

	sentBeforeTeardown := len(transport.sent)
	teardown := natfw.NewMessage(natfw.MsgCreate)
	teardown.SetObject(uint16(natfw.ObjSessionLifetime), &natfw.SessionLifetime{Seconds: 0})
	teardown.SetObject(uint16(natfw.ObjExtendedFlowInfo), &flow)
	teardown.SetObject(uint16(natfw.ObjMessageSequenceNumber), &natfw.MessageSequenceNumber{MSN: 2})
	require.NoError(t, d.Dispatch(&dispatch.MessageEvent{SID: &id, MRI: []byte("mri-4"), ParsedMessage: teardown}))

	require.Equal(t, 0, rules.Installed(), "the rule is removed exactly once")
	require.Equal(t, 0, d.Sessions.Len(), "the session reaches Final and is dropped")
	require.Len(t, transport.sent, sentBeforeTeardown+1, "the teardown CREATE is forwarded downstream")
	require.NotEmpty(t, timers.cancels, "all outstanding timers are cancelled")
}
