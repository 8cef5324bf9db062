package airodump

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/pcap"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/process"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
)

// HiddenDeauthInterval is the minimum time between decloaking deauths sent to
// the same hidden access point
const HiddenDeauthInterval = 30 * time.Second

// Deauther sends deauthentication frames. An empty client means broadcast.
type Deauther interface {
	Deauth(ctx context.Context, bssid, essid, client string) error
}

// SessionOptions scopes one airodump-ng run
type SessionOptions struct {
	Channel   int    // 0 hops channels
	BSSID     string // Restrict capture to one access point
	Prefix    string // Output file prefix inside the temp directory
	FiveGHz   bool   // Hop 5GHz channels when Channel is 0
	SkipWPS   bool   // Don't derive WPS state from beacons
	KeepFiles bool   // Leave capture files behind on Stop
}

// SessionDeps are the collaborators of a Session. Nil fields get defaults,
// except Deauther: without one hidden targets are never deauthed.
type SessionDeps struct {
	Vendors  VendorLookup
	Deauther Deauther
	Analyzer *pcap.Analyzer
	Tracker  *process.Tracker
	Logger   *logrus.Logger
}

// Session manages one running airodump-ng instance
type Session struct {
	cfg      config.Config
	opts     SessionOptions
	vendors  VendorLookup
	deauther Deauther
	analyzer *pcap.Analyzer
	tracker  *process.Tracker
	logger   *logrus.Logger
	parser   *Parser

	mu           sync.Mutex
	handle       *process.Handle
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	targets      []models.Target
	hiddenDeauth map[string]time.Time
	now          func() time.Time
}

// NewSession creates a capture session. Nothing runs until Start.
func NewSession(cfg config.Config, opts SessionOptions, deps SessionDeps) *Session {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Analyzer == nil {
		deps.Analyzer = pcap.NewAnalyzer(deps.Logger)
	}
	if opts.Prefix == "" {
		opts.Prefix = "airodump"
	}
	return &Session{
		cfg:          cfg,
		opts:         opts,
		vendors:      deps.Vendors,
		deauther:     deps.Deauther,
		analyzer:     deps.Analyzer,
		tracker:      deps.Tracker,
		logger:       deps.Logger,
		parser:       NewParser(),
		hiddenDeauth: make(map[string]time.Time),
		now:          time.Now,
	}
}

// Args builds the airodump-ng command line
func (s *Session) Args() []string {
	args := []string{
		s.cfg.Interface,
		"-w", filepath.Join(s.cfg.TempDir, s.opts.Prefix),
		"--write-interval", "1",
	}
	if s.opts.Channel > 0 {
		args = append(args, "-c", strconv.Itoa(s.opts.Channel))
	} else if s.opts.FiveGHz {
		args = append(args, "--band", "a")
	}
	if s.opts.BSSID != "" {
		args = append(args, "--bssid", s.opts.BSSID)
	}
	return append(args, "--output-format", "pcap,csv")
}

// Start removes files left by an earlier run with the same prefix and starts
// airodump-ng. The session stops when Stop is called, not when ctx ends;
// ctx only bounds the helper goroutines.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return fmt.Errorf("airodump session %s already started", s.opts.Prefix)
	}
	if err := tools.Require("airodump-ng"); err != nil {
		return err
	}
	if err := os.MkdirAll(s.cfg.TempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	s.deleteFiles()

	h, err := process.Start("airodump-ng", s.Args(), process.Options{
		Discard: true,
		Tracker: s.tracker,
		Logger:  s.logger,
	})
	if err != nil {
		return err
	}
	s.handle = h
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.WithFields(logrus.Fields{
		"channel": s.opts.Channel,
		"bssid":   s.opts.BSSID,
		"prefix":  s.opts.Prefix,
	}).Debug("Started airodump-ng")
	return nil
}

// Running reports whether airodump-ng is still alive
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil && s.handle.Running()
}

// Stop interrupts airodump-ng, waits for any deauths in flight and removes
// the scratch files. It is safe to call more than once.
func (s *Session) Stop() error {
	s.mu.Lock()
	h := s.handle
	if s.cancel != nil {
		s.cancel()
	}
	s.handle, s.cancel = nil, nil
	s.mu.Unlock()

	s.wg.Wait()

	var err error
	if h != nil {
		err = h.Interrupt(s.cfg.InterruptGrace)
	}
	if !s.opts.KeepFiles {
		s.deleteFiles()
	}
	return err
}

// FindFiles lists the files this session produced that end with suffix,
// newest first
func (s *Session) FindFiles(suffix string) ([]string, error) {
	entries, err := os.ReadDir(s.cfg.TempDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	type found struct {
		path string
		mod  time.Time
	}
	var files []found
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, s.opts.Prefix+"-") || !strings.HasSuffix(name, suffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, found{filepath.Join(s.cfg.TempDir, name), info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].path > files[j].path
		}
		return files[i].mod.After(files[j].mod)
	})

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// CaptureFiles lists the .cap files, newest first
func (s *Session) CaptureFiles() ([]string, error) {
	return s.FindFiles(".cap")
}

// Targets parses the newest snapshot, enriches it from the capture file and
// merges it with the previous result. Hidden targets are deauthed to provoke
// decloaking when the session is locked to a channel.
func (s *Session) Targets() ([]models.Target, error) {
	csvs, err := s.FindFiles(".csv")
	if err != nil {
		return nil, err
	}
	if len(csvs) == 0 {
		return nil, ErrNoSnapshot
	}

	f, err := os.Open(csvs[0])
	if err != nil {
		return nil, err
	}
	fresh, err := ParseCSV(f, s.vendors)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", csvs[0], err)
	}

	if caps, _ := s.CaptureFiles(); len(caps) > 0 {
		summary, err := s.analyzer.AnalyzeFile(caps[0])
		if err != nil {
			s.logger.Debugf("Skipping capture enrichment: %v", err)
		} else {
			fresh = Enrich(fresh, summary, !s.opts.SkipWPS)
		}
	}

	targets, decloaked := s.parser.Update(fresh)
	for _, bssid := range decloaked {
		for _, t := range targets {
			if t.BSSID == bssid {
				s.logger.WithFields(logrus.Fields{"bssid": bssid, "essid": t.ESSID}).Info("Decloaked hidden ESSID")
			}
		}
	}

	s.mu.Lock()
	s.targets = targets
	s.mu.Unlock()

	s.deauthHidden(targets)

	out := make([]models.Target, len(targets))
	for i, t := range targets {
		out[i] = t.Clone()
	}
	return out, nil
}

// Last returns the targets from the most recent Targets call
func (s *Session) Last() []models.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Target, len(s.targets))
	for i, t := range s.targets {
		out[i] = t.Clone()
	}
	return out
}

func (s *Session) deauthHidden(targets []models.Target) {
	if s.deauther == nil || s.cfg.NoDeauth || s.opts.Channel <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}

	now := s.now()
	for _, t := range targets {
		if t.ESSIDKnown || t.Unassociated() {
			continue
		}
		if last, ok := s.hiddenDeauth[t.BSSID]; ok && now.Sub(last) < HiddenDeauthInterval {
			continue
		}
		s.hiddenDeauth[t.BSSID] = now

		t := t.Clone()
		ctx := s.ctx
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.logger.Debugf("Deauthing hidden %s (broadcast and %d clients)", t.BSSID, len(t.Clients))
			if err := s.deauther.Deauth(ctx, t.BSSID, "", ""); err != nil {
				s.logger.Debugf("Decloak deauth failed: %v", err)
			}
			for _, c := range t.Clients {
				if ctx.Err() != nil {
					return
				}
				if err := s.deauther.Deauth(ctx, t.BSSID, "", c.Station); err != nil {
					s.logger.Debugf("Decloak deauth failed: %v", err)
				}
			}
		}()
	}
}

func (s *Session) deleteFiles() {
	entries, err := os.ReadDir(s.cfg.TempDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), s.opts.Prefix+"-") {
			_ = os.Remove(filepath.Join(s.cfg.TempDir, e.Name()))
		}
	}
}

// Scan polls the session every tick for duration and returns the last
// filtered target list. onUpdate, when set, sees every successful snapshot.
// A cancelled ctx ends the scan early with whatever was found so far.
func Scan(ctx context.Context, s *Session, cfg config.Config, duration time.Duration, onUpdate func([]models.Target)) ([]models.Target, error) {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	var last []models.Target
	for {
		select {
		case <-ctx.Done():
			return Filter(last, cfg), ctx.Err()
		case <-timer.C:
			return Filter(last, cfg), nil
		case <-ticker.C:
			if !s.Running() {
				return Filter(last, cfg), errors.New("airodump-ng exited unexpectedly")
			}
			targets, err := s.Targets()
			if errors.Is(err, ErrNoSnapshot) {
				continue
			}
			if err != nil {
				s.logger.Warnf("Snapshot error: %v", err)
				continue
			}
			last = targets
			if onUpdate != nil {
				onUpdate(targets)
			}
		}
	}
}
