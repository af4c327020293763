package clock

import (
	"sync"
	"time"
)

// Virtual is a Clock whose value only advances when the test tells it
// to, for deterministic assertions on run_at/backoff/heartbeat timing.
type Virtual struct {
	mu  sync.Mutex
	now time.Time
}

// NewVirtual creates a Virtual clock starting at t.
func NewVirtual(t time.Time) *Virtual {
	return &Virtual{now: t}
}

// Now returns the clock's current value.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Advance moves the clock forward by d.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = v.now.Add(d)
}

// Set pins the clock to an exact value.
func (v *Virtual) Set(t time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = t
}

var _ Clock = (*Virtual)(nil)
