package collab

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kit-nsis/gosis/session"
)

// Deliver is called when a timer fires, handing the expiry back to
// whatever drives the dispatcher (typically wrapped into a
// dispatch.TimerEvent and passed to Dispatcher.Dispatch), per spec.md
// §5's "timers are fire-and-forget: expiry is delivered as a
// TimerEvent."
type Deliver func(sid session.ID, slot session.TimerSlot, handle session.TimerHandle)

// RealTimerService implements dispatch.TimerService with real
// wall-clock timers (time.AfterFunc).
type RealTimerService struct {
	deliver Deliver

	mu      sync.Mutex
	next    uint64
	running map[session.TimerHandle]*time.Timer
}

// NewRealTimerService builds a timer service that calls deliver on
// every expiry.
func NewRealTimerService(deliver Deliver) *RealTimerService {
	return &RealTimerService{deliver: deliver, running: make(map[session.TimerHandle]*time.Timer)}
}

// Start arms a timer for d and returns its handle.
func (r *RealTimerService) Start(sid session.ID, slot session.TimerSlot, d time.Duration) session.TimerHandle {
	h := session.TimerHandle(atomic.AddUint64(&r.next, 1))
	t := time.AfterFunc(d, func() {
		r.mu.Lock()
		delete(r.running, h)
		r.mu.Unlock()
		r.deliver(sid, slot, h)
	})
	r.mu.Lock()
	r.running[h] = t
	r.mu.Unlock()
	return h
}

// Cancel disarms a previously started timer, if it hasn't already
// fired.
func (r *RealTimerService) Cancel(h session.TimerHandle) {
	r.mu.Lock()
	t, ok := r.running[h]
	delete(r.running, h)
	r.mu.Unlock()
	if ok {
		t.Stop()
	}
}
