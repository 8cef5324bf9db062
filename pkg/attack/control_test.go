package attack

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestControlScopes(t *testing.T) {
	c := NewControl()
	assert.False(t, c.Skip(), "nothing to skip yet")

	runCtx, releaseRun := c.RunContext(context.Background())
	defer releaseRun()
	targetCtx, releaseTarget := c.TargetContext(runCtx)
	defer releaseTarget()
	techCtx, releaseTech := c.TechniqueContext(targetCtx)

	assert.True(t, c.Skip())
	assert.Error(t, techCtx.Err())
	assert.NoError(t, targetCtx.Err(), "skip leaves the target running")
	releaseTech()

	techCtx, releaseTech = c.TechniqueContext(targetCtx)
	defer releaseTech()
	assert.NoError(t, techCtx.Err(), "the next technique starts fresh")

	assert.True(t, c.Interrupt(ScopeTarget))
	assert.Error(t, techCtx.Err())
	assert.NoError(t, runCtx.Err())

	assert.False(t, c.Stopped())
	c.Stop()
	assert.True(t, c.Stopped())
	assert.ErrorIs(t, runCtx.Err(), context.Canceled)
}

func TestControlStopIsSticky(t *testing.T) {
	c := NewControl()
	c.Stop()

	ctx, release := c.TechniqueContext(context.Background())
	defer release()
	assert.Error(t, ctx.Err(), "contexts created after a stop are already cancelled")
}

func TestScopeString(t *testing.T) {
	assert.Equal(t, "technique", ScopeTechnique.String())
	assert.Equal(t, "target", ScopeTarget.String())
	assert.Equal(t, "run", ScopeRun.String())
}

func TestControlEscalate(t *testing.T) {
	c := NewControl()
	runCtx, releaseRun := c.RunContext(context.Background())
	defer releaseRun()
	targetCtx, releaseTarget := c.TargetContext(runCtx)
	defer releaseTarget()

	t0 := time.Now()
	assert.Equal(t, ScopeTechnique, c.Escalate(t0))
	assert.Equal(t, ScopeTechnique, c.Escalate(t0.Add(InterruptWindow+time.Second)), "a late repeat starts over")

	assert.Equal(t, ScopeTarget, c.Escalate(t0.Add(InterruptWindow+2*time.Second)))
	assert.Error(t, targetCtx.Err())
	assert.NoError(t, runCtx.Err())

	assert.Equal(t, ScopeRun, c.Escalate(t0.Add(InterruptWindow+3*time.Second)))
	assert.True(t, c.Stopped())
	assert.Error(t, runCtx.Err())

	assert.Equal(t, ScopeRun, c.Escalate(t0.Add(time.Hour)), "a stopped run stays stopped")
}
