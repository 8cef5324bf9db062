package attack

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

const testBSSID = "AA:BB:CC:DD:EE:FF"

func TestRunParallelFirstSuccessWins(t *testing.T) {
	fast := &fakeTechnique{kind: models.AttackPMKID, delay: 100 * time.Millisecond, result: found(models.AttackPMKID, testBSSID)}
	slow := &fakeTechnique{kind: models.AttackWPAHandshake, delay: 10 * time.Second, result: found(models.AttackWPAHandshake, testBSSID)}

	start := time.Now()
	winner, err := RunParallel(context.Background(), []Technique{slow, fast}, ParallelOptions{
		Ceiling: time.Minute,
		Grace:   time.Second,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, winner)

	assert.Equal(t, models.AttackPMKID, winner.Kind)
	assert.Equal(t, models.ResultPMKID, winner.Result.Type)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, slow.cancelled.Load(), "loser is cancelled")
	assert.True(t, slow.finished.Load(), "loser is joined")
}

func TestRunParallelFailureThenSuccess(t *testing.T) {
	failing := &fakeTechnique{kind: models.AttackPMKID, delay: 10 * time.Millisecond}
	later := &fakeTechnique{kind: models.AttackWPAHandshake, delay: 150 * time.Millisecond, result: found(models.AttackWPAHandshake, testBSSID)}

	winner, err := RunParallel(context.Background(), []Technique{failing, later}, ParallelOptions{
		Ceiling: time.Minute,
		Grace:   time.Second,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, models.AttackWPAHandshake, winner.Kind)
}

func TestRunParallelCeiling(t *testing.T) {
	a := &fakeTechnique{kind: models.AttackPMKID, delay: 10 * time.Second, result: found(models.AttackPMKID, testBSSID)}
	b := &fakeTechnique{kind: models.AttackWPAHandshake, delay: 10 * time.Second, result: found(models.AttackWPAHandshake, testBSSID)}

	start := time.Now()
	winner, err := RunParallel(context.Background(), []Technique{a, b}, ParallelOptions{
		Ceiling: 100 * time.Millisecond,
		Grace:   time.Second,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	assert.Nil(t, winner, "ceiling exceeded is a group failure")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, a.cancelled.Load())
	assert.True(t, b.cancelled.Load())
}

func TestRunParallelSuccessDuringGraceWins(t *testing.T) {
	finishing := &fakeTechnique{kind: models.AttackPMKID, delay: 300 * time.Millisecond, deaf: true, result: found(models.AttackPMKID, testBSSID)}
	waiting := &fakeTechnique{kind: models.AttackWPAHandshake, delay: time.Hour}

	var successes atomic.Int32
	winner, err := RunParallel(context.Background(), []Technique{finishing, waiting}, ParallelOptions{
		Ceiling: 100 * time.Millisecond,
		Grace:   2 * time.Second,
		Logger:  quietLogger(),
		OnOutcome: func(o Outcome) {
			if o.Success() {
				successes.Add(1)
			}
		},
	})
	require.NoError(t, err)
	require.NotNil(t, winner, "an artifact finished after the ceiling is not thrown away")
	assert.Equal(t, models.AttackPMKID, winner.Kind)
	assert.Equal(t, int32(1), successes.Load())
	assert.True(t, waiting.cancelled.Load())
}

func TestRunParallelCancelledDropsLateSuccess(t *testing.T) {
	finishing := &fakeTechnique{kind: models.AttackPMKID, delay: 200 * time.Millisecond, deaf: true, result: found(models.AttackPMKID, testBSSID)}
	waiting := &fakeTechnique{kind: models.AttackWPAHandshake, delay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	winner, err := RunParallel(ctx, []Technique{finishing, waiting}, ParallelOptions{
		Ceiling: time.Minute,
		Grace:   2 * time.Second,
		Logger:  quietLogger(),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, winner)
}

func TestRunParallelErrorsAndPanicsAreFailures(t *testing.T) {
	techniques := []Technique{
		&fakeTechnique{kind: models.AttackPMKID, panics: true},
		&fakeTechnique{kind: models.AttackWPA3PMKID, delay: 10 * time.Millisecond, err: errors.New("hcxdumptool exited")},
		&fakeTechnique{kind: models.AttackWPAHandshake, delay: 20 * time.Millisecond},
	}

	var mu sync.Mutex
	var outcomes []Outcome
	winner, err := RunParallel(context.Background(), techniques, ParallelOptions{
		Ceiling: time.Minute,
		Grace:   time.Second,
		Logger:  quietLogger(),
		OnOutcome: func(o Outcome) {
			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, o)
		},
	})
	require.NoError(t, err)
	assert.Nil(t, winner)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.False(t, o.Success(), o.Kind)
		if o.Kind == models.AttackPMKID {
			assert.ErrorContains(t, o.Err, "panicked")
		}
	}
}

func TestRunParallelAtMostOneResult(t *testing.T) {
	a := &fakeTechnique{kind: models.AttackPMKID, delay: 30 * time.Millisecond, result: found(models.AttackPMKID, testBSSID)}
	b := &fakeTechnique{kind: models.AttackWPAHandshake, delay: 30 * time.Millisecond, result: found(models.AttackWPAHandshake, testBSSID)}

	successes := 0
	var mu sync.Mutex
	winner, err := RunParallel(context.Background(), []Technique{a, b}, ParallelOptions{
		Ceiling: time.Minute,
		Grace:   time.Second,
		Logger:  quietLogger(),
		OnOutcome: func(o Outcome) {
			mu.Lock()
			defer mu.Unlock()
			if o.Success() {
				successes++
			}
		},
	})
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Contains(t, []models.AttackKind{models.AttackPMKID, models.AttackWPAHandshake}, winner.Kind)
	assert.GreaterOrEqual(t, successes, 1)
}

func TestRunParallelCancelled(t *testing.T) {
	a := &fakeTechnique{kind: models.AttackPMKID, delay: 10 * time.Second}
	b := &fakeTechnique{kind: models.AttackWPAHandshake, delay: 10 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	winner, err := RunParallel(ctx, []Technique{a, b}, ParallelOptions{
		Ceiling: time.Minute,
		Grace:   time.Second,
		Logger:  quietLogger(),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, winner)
	assert.True(t, a.finished.Load())
	assert.True(t, b.finished.Load())
}

func TestRunParallelGraceIsBounded(t *testing.T) {
	fast := &fakeTechnique{kind: models.AttackPMKID, delay: 20 * time.Millisecond, result: found(models.AttackPMKID, testBSSID)}
	stubborn := &fakeTechnique{kind: models.AttackWPAHandshake, delay: 3 * time.Second, stubborn: true}

	start := time.Now()
	winner, err := RunParallel(context.Background(), []Technique{fast, stubborn}, ParallelOptions{
		Ceiling: time.Minute,
		Grace:   100 * time.Millisecond,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Less(t, time.Since(start), time.Second, "a loser ignoring cancellation does not hold up the group")
}

func TestRunParallelEmpty(t *testing.T) {
	winner, err := RunParallel(context.Background(), nil, ParallelOptions{})
	assert.NoError(t, err)
	assert.Nil(t, winner)
}
