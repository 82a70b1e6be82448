package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// routeTap fires once on the first audible render, or expires.
type routeTap struct {
	armed atomic.Bool
	fire  func()

	mu    sync.Mutex
	timer *time.Timer
}

func newRouteTap(timeout time.Duration, fire, expire func()) *routeTap {
	t := &routeTap{fire: fire}
	t.armed.Store(true)
	t.timer = time.AfterFunc(timeout, func() {
		if t.armed.CompareAndSwap(true, false) {
			expire()
		}
	})
	return t
}

// observe runs on the device thread after every render.
func (t *routeTap) observe(frames int) {
	if frames <= 0 || !t.armed.Load() {
		return
	}
	if t.armed.CompareAndSwap(true, false) {
		t.stopTimer()
		go t.fire()
	}
}

func (t *routeTap) disarm() {
	t.armed.Store(false)
	t.stopTimer()
}

func (t *routeTap) stopTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
}
