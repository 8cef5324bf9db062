package attack

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testConfig(t *testing.T) config.Config {
	cfg := config.DefaultConfig()
	cfg.Interface = "wlan0mon"
	cfg.TempDir = t.TempDir()
	cfg.HandshakeDir = t.TempDir()
	cfg.CrackedFile = ""
	cfg.Tick = 20 * time.Millisecond
	cfg.InterruptGrace = 300 * time.Millisecond
	cfg.ParallelGrace = 300 * time.Millisecond
	cfg.DeauthFrameDelay = 0
	return cfg
}

func found(kind models.AttackKind, bssid string) *models.CrackResult {
	typ := models.ResultWPA
	switch {
	case kind.IsWPS():
		typ = models.ResultWPS
	case kind == models.AttackPMKID || kind == models.AttackWPA3PMKID:
		typ = models.ResultPMKID
	}
	return &models.CrackResult{Type: typ, BSSID: bssid, ESSID: "home", File: string(kind) + ".out", Date: time.Now()}
}

// fakeTechnique sleeps for delay and then returns result and err
type fakeTechnique struct {
	kind     models.AttackKind
	delay    time.Duration
	result   *models.CrackResult
	err      error
	checkErr error
	panics   bool
	stubborn bool // keeps running after cancellation until delay passes
	deaf     bool // ignores cancellation and returns its result after delay

	runs      atomic.Int32
	cancelled atomic.Bool
	finished  atomic.Bool
}

func (f *fakeTechnique) Kind() models.AttackKind { return f.kind }

func (f *fakeTechnique) Check() error { return f.checkErr }

func (f *fakeTechnique) Run(ctx context.Context) (*models.CrackResult, error) {
	f.runs.Add(1)
	defer f.finished.Store(true)
	if f.panics {
		panic("boom")
	}

	timer := time.NewTimer(f.delay)
	defer timer.Stop()
	if f.deaf {
		<-timer.C
		return f.result, f.err
	}
	select {
	case <-timer.C:
		return f.result, f.err
	case <-ctx.Done():
		f.cancelled.Store(true)
		if f.stubborn {
			<-timer.C
		}
		return nil, ctx.Err()
	}
}

// fakeCracker recovers key after delay. Without a key it blocks until ctx
// ends.
type fakeCracker struct {
	key   string
	delay time.Duration
	calls atomic.Int32
}

func (c *fakeCracker) Enabled() bool { return true }

func (c *fakeCracker) CrackHandshake(ctx context.Context, capture, bssid string) (string, bool, error) {
	return c.crack(ctx)
}

func (c *fakeCracker) CrackPMKID(ctx context.Context, hashFile string) (string, bool, error) {
	return c.crack(ctx)
}

func (c *fakeCracker) crack(ctx context.Context) (string, bool, error) {
	c.calls.Add(1)
	if c.key == "" {
		<-ctx.Done()
		return "", false, ctx.Err()
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return c.key, true, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// fakeFactory hands out prepared techniques by target and kind. Anything
// not prepared finishes at once without a result.
type fakeFactory struct {
	mu         sync.Mutex
	techniques map[string]*fakeTechnique
	built      []models.AttackKind
}

func newFakeFactory(techniques ...*fakeTechnique) *fakeFactory {
	f := &fakeFactory{techniques: make(map[string]*fakeTechnique)}
	for _, t := range techniques {
		f.add(testBSSID, t)
	}
	return f
}

func (f *fakeFactory) add(bssid string, t *fakeTechnique) {
	f.techniques[bssid+"/"+string(t.kind)] = t
}

func (f *fakeFactory) build(kind models.AttackKind, target models.Target) (Technique, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built = append(f.built, kind)
	if t, ok := f.techniques[target.BSSID+"/"+string(kind)]; ok {
		return t, nil
	}
	return &fakeTechnique{kind: kind}, nil
}

func (f *fakeFactory) Built() []models.AttackKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AttackKind(nil), f.built...)
}

// recordingObserver keeps every notification
type recordingObserver struct {
	mu       sync.Mutex
	runs     []string
	plans    []models.AttackPlan
	outcomes []Outcome
	results  []*models.CrackResult
	summary  *Summary
}

func (r *recordingObserver) RunStarted(runID string, targets []models.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, runID)
}

func (r *recordingObserver) TargetStarted(runID string, plan models.AttackPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, plan)
}

func (r *recordingObserver) AttackFinished(runID string, target models.Target, out Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, out)
}

func (r *recordingObserver) TargetFinished(runID string, target models.Target, result *models.CrackResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *recordingObserver) RunFinished(summary Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = &summary
}

// recordingDeauther records every deauth call. With block set, each call
// waits for its context to end.
type recordingDeauther struct {
	mu       sync.Mutex
	calls    []string
	block    bool
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (r *recordingDeauther) Deauth(ctx context.Context, bssid, essid, client string) error {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	r.mu.Lock()
	r.calls = append(r.calls, bssid+"/"+client)
	r.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (r *recordingDeauther) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}
