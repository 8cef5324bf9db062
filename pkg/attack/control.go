package attack

import (
	"context"
	"sync"
	"time"
)

// InterruptWindow is how soon a repeated interrupt must follow the previous
// one to widen its scope
const InterruptWindow = 3 * time.Second

// Scope selects how much of a run an interrupt cancels
type Scope int

const (
	// ScopeTechnique abandons the running technique; the next one starts
	ScopeTechnique Scope = iota
	// ScopeTarget abandons the remaining techniques for the current target
	ScopeTarget
	// ScopeRun stops the whole run
	ScopeRun
)

func (s Scope) String() string {
	switch s {
	case ScopeTechnique:
		return "technique"
	case ScopeTarget:
		return "target"
	case ScopeRun:
		return "run"
	}
	return "unknown"
}

// Control lets another goroutine (usually a signal handler) interrupt a
// running AttackAll pass at one of three scopes.
type Control struct {
	mu        sync.Mutex
	run       context.CancelFunc
	target    context.CancelFunc
	technique context.CancelFunc
	stopped   bool

	lastInterrupt time.Time
	lastScope     Scope
}

// NewControl creates a control with nothing running
func NewControl() *Control {
	return &Control{}
}

func (c *Control) enter(parent context.Context, slot *context.CancelFunc) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	*slot = cancel
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		cancel()
	}
	return ctx, func() {
		c.mu.Lock()
		*slot = nil
		c.mu.Unlock()
		cancel()
	}
}

// RunContext derives the context of a whole pass
func (c *Control) RunContext(parent context.Context) (context.Context, context.CancelFunc) {
	return c.enter(parent, &c.run)
}

// TargetContext derives the context of one target's attacks
func (c *Control) TargetContext(parent context.Context) (context.Context, context.CancelFunc) {
	return c.enter(parent, &c.target)
}

// TechniqueContext derives the context of one technique or parallel group
func (c *Control) TechniqueContext(parent context.Context) (context.Context, context.CancelFunc) {
	return c.enter(parent, &c.technique)
}

// Interrupt cancels the given scope. It reports whether something was
// running at that scope.
func (c *Control) Interrupt(scope Scope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	var cancel context.CancelFunc
	switch scope {
	case ScopeTechnique:
		cancel = c.technique
	case ScopeTarget:
		cancel = c.target
	case ScopeRun:
		c.stopped = true
		cancel = c.run
	}
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Escalate interrupts the running technique on a first call and one scope
// wider for every repeat within InterruptWindow. It returns the scope it
// cancelled.
func (c *Control) Escalate(now time.Time) Scope {
	c.mu.Lock()
	scope := ScopeTechnique
	if !c.lastInterrupt.IsZero() && now.Sub(c.lastInterrupt) <= InterruptWindow {
		scope = c.lastScope + 1
	}
	if c.stopped || scope > ScopeRun {
		scope = ScopeRun
	}
	c.lastInterrupt, c.lastScope = now, scope
	c.mu.Unlock()

	c.Interrupt(scope)
	return scope
}

// Skip abandons the running technique
func (c *Control) Skip() bool {
	return c.Interrupt(ScopeTechnique)
}

// Stop ends the run. Later contexts are born cancelled.
func (c *Control) Stop() {
	c.Interrupt(ScopeRun)
}

// Stopped reports whether Stop was called
func (c *Control) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
