package kernel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhengguan/15410-sub000/sched"
)

// TickHz is the timer frequency: 100 Hz, square-wave mode on PIT
// channel 0.
const TickHz = 100

// Timer_t drives the scheduler's tick from a host timer, standing in
// for the external PIT driver raising vector 0x20. Each firing performs
// the whole timer-handler sequence via Sched_t.Tick.
type Timer_t struct {
	sc     *sched.Sched_t
	halted *int32

	mu      sync.Mutex
	stop    chan struct{}
	running bool
}

// NewTimer returns a stopped timer bound to sc. halted, if non-nil, is
// polled each firing so a halt() between ticks stops delivery without
// waiting for Stop.
func NewTimer(sc *sched.Sched_t, halted *int32) *Timer_t {
	return &Timer_t{sc: sc, halted: halted}
}

// Start begins delivering ticks at TickHz. Starting a running timer is
// a no-op.
func (t *Timer_t) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	go t.run(t.stop)
}

func (t *Timer_t) run(stop chan struct{}) {
	tick := time.NewTicker(time.Second / TickHz)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			if t.halted != nil && atomic.LoadInt32(t.halted) != 0 {
				return
			}
			t.sc.Tick()
		}
	}
}

// Stop halts tick delivery. Stopping a stopped timer is a no-op.
func (t *Timer_t) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stop)
}
