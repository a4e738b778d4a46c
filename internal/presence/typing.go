package presence

import (
	"sync"
	"time"
)

// DefaultTypingTimeout is how long the "is typing" flag stays set after the
// last TYPING receipt. Tunable via config.
const DefaultTypingTimeout = 3000 * time.Millisecond

// TypingIndicator tracks the counterpart's typing state. Each receipt sets
// the flag and resets the auto-clear timer; the flag drops on its own after
// the timeout with no further receipts.
type TypingIndicator struct {
	mu      sync.Mutex
	timeout time.Duration
	active  bool
	timer   *time.Timer
	gen     uint64
}

// NewTypingIndicator creates an inactive indicator. timeout <= 0 selects the
// default.
func NewTypingIndicator(timeout time.Duration) *TypingIndicator {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingIndicator{timeout: timeout}
}

// Touch records a TYPING receipt. The generation counter guards against a
// timer that already fired but whose callback has not yet taken the lock:
// Stop() cannot cancel it, so the callback only clears the flag if no Touch
// or Clear superseded it in the meantime.
func (ti *TypingIndicator) Touch() {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	ti.active = true
	ti.gen++
	if ti.timer != nil {
		ti.timer.Stop()
	}
	gen := ti.gen
	ti.timer = time.AfterFunc(ti.timeout, func() {
		ti.mu.Lock()
		if ti.gen == gen {
			ti.active = false
		}
		ti.mu.Unlock()
	})
}

// Active reports whether the counterpart is currently typing.
func (ti *TypingIndicator) Active() bool {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.active
}

// Clear drops the flag immediately, e.g. when the session ends.
func (ti *TypingIndicator) Clear() {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.gen++
	if ti.timer != nil {
		ti.timer.Stop()
		ti.timer = nil
	}
	ti.active = false
}
