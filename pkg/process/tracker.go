package process

import (
	"sync"
	"time"
)

// DefaultTracker is the process-wide registry used by the attack pipeline
var DefaultTracker = NewTracker()

// Tracker keeps the set of handles that are still running so that a stop
// request can release the wireless interface immediately.
type Tracker struct {
	mu      sync.Mutex
	handles map[*Handle]struct{}
}

// NewTracker creates an empty registry
func NewTracker() *Tracker {
	return &Tracker{handles: make(map[*Handle]struct{})}
}

// Track adds h to the registry
func (t *Tracker) Track(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles[h] = struct{}{}
}

// Untrack removes h from the registry
func (t *Tracker) Untrack(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handles, h)
}

// Len returns the number of tracked handles
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

// CleanupAll interrupts every tracked handle that is still alive, in
// parallel, and returns how many were stopped.
func (t *Tracker) CleanupAll(grace time.Duration) int {
	t.mu.Lock()
	handles := make([]*Handle, 0, len(t.handles))
	for h := range t.handles {
		handles = append(handles, h)
	}
	t.mu.Unlock()

	var wg sync.WaitGroup
	stopped := 0
	for _, h := range handles {
		if !h.Running() {
			t.Untrack(h)
			continue
		}
		stopped++
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			_ = h.Interrupt(grace)
		}(h)
	}
	wg.Wait()
	return stopped
}
