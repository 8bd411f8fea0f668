package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kit-nsis/gosis/session"
)

type fakeTransport struct {
	sent []Send
}

func (f *fakeTransport) Send(sid session.ID, mri, sdu []byte, attrs TransportAttrs) error {
	f.sent = append(f.sent, Send{MRI: mri, SDU: sdu, Attrs: attrs})
	return nil
}

type fakeTimers struct {
	next    session.TimerHandle
	started map[session.TimerHandle]session.TimerSlot
	cancels []session.TimerHandle
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{started: make(map[session.TimerHandle]session.TimerSlot)}
}

func (f *fakeTimers) Start(sid session.ID, slot session.TimerSlot, d time.Duration) session.TimerHandle {
	f.next++
	f.started[f.next] = slot
	return f.next
}

func (f *fakeTimers) Cancel(h session.TimerHandle) {
	f.cancels = append(f.cancels, h)
}

type fakeRules struct {
	installed int
	removed   []string
	failNext  bool
}

func (f *fakeRules) Setup() error { return nil }
func (f *fakeRules) Install(rule Rule) (string, error) {
	if f.failNext {
		return "", fmt.Errorf("install failed")
	}
	f.installed++
	return fmt.Sprintf("handle-%d", f.installed), nil
}
func (f *fakeRules) Remove(handle string) error {
	f.removed = append(f.removed, handle)
	return nil
}
func (f *fakeRules) RemoveAll() error { return nil }

type fakeNat struct{}

func (fakeNat) ReserveExternal(privateAddr string) (string, error) { return "203.0.113.1", nil }
func (fakeNat) ReleaseExternal(publicAddr string) error            { return nil }

// echoHandler replies with whatever effects and error it was configured
// with, for exercising the dispatch plumbing without a real FSM.
type echoHandler struct {
	effects []Effect
	err     error
}

func (h *echoHandler) Handle(s *session.Session, ev Event) ([]Effect, error) {
	return h.effects, h.err
}

func newHarness(t *testing.T) (*Dispatcher, *fakeTransport, *fakeTimers, *fakeRules) {
	t.Helper()
	transport := &fakeTransport{}
	timers := newFakeTimers()
	rules := &fakeRules{}
	d := NewDispatcher(session.NewManager(), RoleResolverFunc(func(ev Event) (session.Role, bool) {
		return session.RoleNATFWResponder, true
	}), transport, rules, fakeNat{}, timers)
	return d, transport, timers, rules
}

func TestDispatchOpensSessionAndAppliesEffects(t *testing.T) {
	d, transport, timers, _ := newHarness(t)
	h := &echoHandler{effects: []Effect{
		Send{SDU: []byte("hi")},
		StartTimer{Slot: session.ResponseTimer, Duration: time.Second},
		TransitionTo{State: session.StateSession},
	}}
	d.Register(session.RoleNATFWResponder, h)

	ev := &ApiEvent{Kind: "create"}
	require.NoError(t, d.Dispatch(ev))

	require.Len(t, transport.sent, 1)
	require.Equal(t, 1, d.Sessions.Len())
	require.Len(t, timers.started, 1)
}

func TestDispatchDropsUnopenableEvent(t *testing.T) {
	d, transport, _, _ := newHarness(t)
	d.Resolver = RoleResolverFunc(func(ev Event) (session.Role, bool) { return 0, false })

	require.NoError(t, d.Dispatch(&ApiEvent{Kind: "unknown"}))
	require.Empty(t, transport.sent)
	require.Equal(t, 0, d.Sessions.Len())
}

func TestDispatchTransitionToFinalCancelsTimersAndRemoves(t *testing.T) {
	d, _, timers, _ := newHarness(t)
	h := &echoHandler{effects: []Effect{
		StartTimer{Slot: session.StateTimer, Duration: time.Second},
	}}
	d.Register(session.RoleNATFWResponder, h)
	id, err := session.NewID()
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(&ApiEvent{SID: &id, Kind: "create"}))
	require.Equal(t, 1, d.Sessions.Len())

	h.effects = []Effect{TransitionTo{State: session.StateFinal}}
	require.NoError(t, d.Dispatch(&ApiEvent{SID: &id, Kind: "create"}))

	require.Equal(t, 0, d.Sessions.Len(), "the session that reached Final is removed from the manager")
	require.NotEmpty(t, timers.cancels)
}

// countingHandler records how many distinct sessions it was invoked
// for, guarded by a mutex since Run drives it from multiple goroutines.
type countingHandler struct {
	mu   sync.Mutex
	seen map[session.ID]int
}

func newCountingHandler() *countingHandler {
	return &countingHandler{seen: make(map[session.ID]int)}
}

func (h *countingHandler) Handle(s *session.Session, ev Event) ([]Effect, error) {
	h.mu.Lock()
	h.seen[s.ID]++
	h.mu.Unlock()
	return []Effect{TransitionTo{State: session.StateSession}}, nil
}

func TestDispatcherRunFansOutAcrossSessions(t *testing.T) {
	d, _, _, _ := newHarness(t)
	h := newCountingHandler()
	d.Register(session.RoleNATFWResponder, h)

	const n = 20
	ids := make([]session.ID, n)
	events := make(chan Event, n)
	for i := 0; i < n; i++ {
		id, err := session.NewID()
		require.NoError(t, err)
		ids[i] = id
		events <- &ApiEvent{SID: &id, Kind: "create"}
	}
	close(events)

	require.NoError(t, d.Run(context.Background(), events, 4))

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.seen, n)
	for _, id := range ids {
		require.Equal(t, 1, h.seen[id])
	}
}

func TestDispatcherRunStopsOnHandlerError(t *testing.T) {
	d, _, _, _ := newHarness(t)
	d.Register(session.RoleNATFWResponder, &echoHandler{err: fmt.Errorf("boom")})

	events := make(chan Event, 1)
	events <- &ApiEvent{Kind: "create"}
	close(events)

	err := d.Run(context.Background(), events, 2)
	require.Error(t, err)
}

func TestDispatcherObservabilityHooks(t *testing.T) {
	d, _, _, _ := newHarness(t)
	var (
		mu          sync.Mutex
		kinds       []string
		created     []session.Role
		destroyed   []session.Role
		retransmits []session.Role
	)
	d.OnEventDispatched = func(kind string) { mu.Lock(); kinds = append(kinds, kind); mu.Unlock() }
	d.OnSessionCreated = func(role session.Role) { mu.Lock(); created = append(created, role); mu.Unlock() }
	d.OnSessionDestroyed = func(role session.Role) { mu.Lock(); destroyed = append(destroyed, role); mu.Unlock() }
	d.OnRetransmit = func(role session.Role) { mu.Lock(); retransmits = append(retransmits, role); mu.Unlock() }

	h := &echoHandler{effects: []Effect{Send{SDU: []byte("hi")}}}
	d.Register(session.RoleNATFWResponder, h)

	id, err := session.NewID()
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(&ApiEvent{SID: &id, Kind: "create"}))
	mu.Lock()
	require.Equal(t, []string{"api"}, kinds)
	require.Equal(t, []session.Role{session.RoleNATFWResponder}, created)
	require.Empty(t, retransmits, "a non-timer event must not count as a retransmission")
	mu.Unlock()

	h.effects = []Effect{Send{SDU: []byte("again")}}
	require.NoError(t, d.Dispatch(&TimerEvent{SID: id, Slot: session.ResponseTimer}))
	mu.Lock()
	require.Equal(t, []string{"api", "timer"}, kinds)
	require.Equal(t, []session.Role{session.RoleNATFWResponder}, retransmits)
	mu.Unlock()

	h.effects = []Effect{TransitionTo{State: session.StateFinal}}
	require.NoError(t, d.Dispatch(&TimerEvent{SID: id, Slot: session.ResponseTimer}))
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []session.Role{session.RoleNATFWResponder}, destroyed)
}

func TestDispatchInstallRuleFailureFinalizesSession(t *testing.T) {
	d, _, _, rules := newHarness(t)
	rules.failNext = true
	h := &echoHandler{effects: []Effect{
		InstallRule{Rule: Rule{Action: RuleAllow}},
	}}
	d.Register(session.RoleNATFWResponder, h)
	require.NoError(t, d.Dispatch(&ApiEvent{Kind: "create"}))
	require.Equal(t, 0, d.Sessions.Len(), "failed install drives the session straight to Final")
}
