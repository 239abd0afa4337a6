package dmx

import (
	"sync"
	"time"
)

// Timer is the break timer contract. The driver programs it with the
// break length before each send; on expiry it must invoke the callback
// registered with OnExpire exactly once, which ends the break and hands
// off to byte transmission.
//
// The default implementation runs on the Go runtime timer. Supply a
// fake in tests to observe programmed durations and fire expiry
// manually.
type Timer interface {
	// Set programs the alarm duration for the next Start.
	Set(d time.Duration)

	// Start arms the alarm. The expiry callback fires once after the
	// programmed duration.
	Start()

	// Stop disarms a pending alarm. The callback does not fire.
	Stop()

	// OnExpire registers the expiry callback. The driver calls this
	// once at install, before any Start.
	OnExpire(fn func())
}

// monotonicTimer is the default Timer on time.AfterFunc.
type monotonicTimer struct {
	mu sync.Mutex
	d  time.Duration
	t  *time.Timer
	fn func()
}

// NewTimer returns the default break timer.
func NewTimer() Timer { return &monotonicTimer{} }

func (m *monotonicTimer) Set(d time.Duration) {
	m.mu.Lock()
	m.d = d
	m.mu.Unlock()
}

func (m *monotonicTimer) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t != nil {
		m.t.Stop()
	}
	m.t = time.AfterFunc(m.d, m.fn)
}

func (m *monotonicTimer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t != nil {
		m.t.Stop()
		m.t = nil
	}
}

func (m *monotonicTimer) OnExpire(fn func()) {
	m.mu.Lock()
	m.fn = fn
	m.mu.Unlock()
}
