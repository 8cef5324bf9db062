package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/airodump"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/api"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/attack"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/process"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/results"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
)

// untilInterrupted stands in for a scan time of zero
const untilInterrupted = 24 * time.Hour

// commandAttack returns the attack command configuration
func commandAttack() *cli.Command {
	return &cli.Command{
		Name:    "attack",
		Aliases: []string{"a"},
		Usage:   "Scan for targets, then attack each of them",
		Flags:   configFlags(),
		Action:  runAttack,
	}
}

// commandScan returns the scan command configuration
func commandScan() *cli.Command {
	return &cli.Command{
		Name:    "scan",
		Aliases: []string{"s"},
		Usage:   "Show the targets in range without attacking them",
		Flags:   configFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := prepare(c)
			if err != nil {
				return err
			}
			defer process.DefaultTracker.CleanupAll(cfg.InterruptGrace)

			vendors, err := newVendors(c)
			if err != nil {
				return err
			}

			seen := 0
			targets, err := scanTargets(c.Context, cfg, vendors, func(targets []models.Target) {
				if len(targets) != seen {
					seen = len(targets)
					color.Cyan("%d access point(s) in range", seen)
				}
			})
			if err != nil {
				return err
			}
			printTargets(targets)
			return nil
		},
	}
}

// commandServe returns the serve command configuration
func commandServe() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve stored results over the status API",
		Flags: configFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.ListenAddr == "" {
				cfg.ListenAddr = "127.0.0.1:8080"
			}

			store := results.NewStore(cfg.CrackedFile, log)
			dashboard := api.NewDashboard(api.DashboardConfig{Addr: cfg.ListenAddr, EnableCORS: true},
				attack.PolicyFromConfig(cfg), store, api.NewMetrics(), log)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			color.Green("Serving %s on http://%s", store.Path(), cfg.ListenAddr)
			color.Yellow("Press Ctrl+C to stop")
			return dashboard.Start(ctx)
		},
	}
}

// prepare loads the configuration and checks everything an attack or scan
// needs before the first process is started
func prepare(c *cli.Context) (config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return cfg, err
	}
	if cfg.Interface == "" {
		return cfg, errors.New("a wireless interface in monitor mode is required (--interface)")
	}
	if missing := tools.MissingRequired(tools.Check()); len(missing) > 0 {
		return cfg, fmt.Errorf("%w: %s (see '%s deps')", tools.ErrMissingTool, strings.Join(missing, ", "), appName)
	}
	if err := ensureDirectories(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runAttack(c *cli.Context) error {
	cfg, err := prepare(c)
	if err != nil {
		return err
	}
	defer process.DefaultTracker.CleanupAll(cfg.InterruptGrace)

	vendors, err := newVendors(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	store := results.NewStore(cfg.CrackedFile, log)
	metrics := api.NewMetrics()
	dashboard := api.NewDashboard(api.DashboardConfig{Addr: cfg.ListenAddr, EnableCORS: true},
		attack.PolicyFromConfig(cfg), store, metrics, log)
	if cfg.ListenAddr != "" {
		go func() {
			if err := dashboard.Start(ctx); err != nil {
				log.Errorf("Status API failed: %v", err)
			}
		}()
	}

	targets, err := scanTargets(ctx, cfg, vendors, dashboard.UpdateTargets)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		color.Yellow("No targets found")
		return nil
	}
	printTargets(targets)

	kit := attack.NewToolkit(cfg, process.DefaultTracker, vendors, log)
	driver := attack.NewDriver(cfg, kit.Technique, store, process.DefaultTracker, log)
	driver.SetCracker(kit.Cracker)
	driver.AddObserver(dashboard)
	driver.AddObserver(metrics)
	driver.AddObserver(consoleObserver{})

	stopSignals := handleSignals(driver.Control())
	defer stopSignals()

	summary, err := driver.AttackAll(ctx, targets)
	printSummary(summary)
	if errors.Is(err, context.Canceled) && driver.Control().Stopped() {
		return nil
	}
	return err
}

// scanTargets runs airodump-ng for the configured scan time and returns the
// filtered targets. The first Ctrl+C ends the scan early; SIGTERM aborts.
func scanTargets(ctx context.Context, cfg config.Config, vendors airodump.VendorLookup, onUpdate func([]models.Target)) ([]models.Target, error) {
	var deauther airodump.Deauther
	if !cfg.NoDeauth {
		deauther = tools.NewAireplay(cfg, process.DefaultTracker, log)
	}
	session := airodump.NewSession(cfg, airodump.SessionOptions{
		Channel: cfg.Channel,
		FiveGHz: cfg.FiveGHz,
		Prefix:  "scan",
	}, airodump.SessionDeps{
		Vendors:  vendors,
		Deauther: deauther,
		Tracker:  process.DefaultTracker,
		Logger:   log,
	})
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	defer session.Stop()

	scanCtx, cancelScan := context.WithCancel(ctx)
	defer cancelScan()

	var terminated atomic.Bool
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			terminated.Store(sig == syscall.SIGTERM)
			cancelScan()
		case <-scanCtx.Done():
		}
	}()

	duration := cfg.ScanTime
	if duration == 0 {
		duration = untilInterrupted
	}
	color.Cyan("Scanning on %s, press Ctrl+C when ready", cfg.Interface)

	targets, err := airodump.Scan(scanCtx, session, cfg, duration, onUpdate)
	switch {
	case terminated.Load():
		return nil, errors.New("terminated during scan")
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil && !errors.Is(err, context.Canceled):
		return nil, err
	}
	return targets, nil
}

// handleSignals turns Ctrl+C into skips of growing scope and SIGTERM into a
// stop. The returned func uninstalls the handler.
func handleSignals(control *attack.Control) func() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigs:
				if sig == syscall.SIGTERM {
					color.Red("Terminated, stopping")
					control.Stop()
					continue
				}
				switch control.Escalate(time.Now()) {
				case attack.ScopeTechnique:
					color.Yellow("Skipping the current attack (Ctrl+C again within %s skips the target)", attack.InterruptWindow)
				case attack.ScopeTarget:
					color.Yellow("Skipping the target (Ctrl+C again to stop)")
				case attack.ScopeRun:
					color.Red("Stopping, cleaning up")
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// consoleObserver prints attack progress for the operator
type consoleObserver struct{}

func (consoleObserver) RunStarted(runID string, targets []models.Target) {
	color.Cyan("Attacking %d target(s) (run %s)", len(targets), runID)
}

func (consoleObserver) TargetStarted(runID string, plan models.AttackPlan) {
	t := plan.Target
	if plan.Empty() {
		color.Yellow("%s: no applicable attacks", t.DisplayName())
		return
	}
	kinds := make([]string, len(plan.Steps))
	for i, s := range plan.Steps {
		kinds[i] = string(s.Kind)
	}
	color.Cyan("%s (%s, ch %d, %s, %d dBm): %s", t.DisplayName(), t.BSSID, t.Channel, t.Encryption, t.Power, strings.Join(kinds, ", "))
}

func (consoleObserver) AttackFinished(runID string, target models.Target, out attack.Outcome) {
	took := out.Duration.Round(time.Second)
	switch {
	case out.Success():
		color.Green("  [+] %s succeeded after %s", out.Kind, took)
	case errors.Is(out.Err, context.Canceled) || errors.Is(out.Err, context.DeadlineExceeded):
		color.Yellow("  [-] %s interrupted after %s", out.Kind, took)
	case out.Err != nil:
		color.Red("  [!] %s failed: %v", out.Kind, out.Err)
	default:
		color.Yellow("  [-] %s found nothing after %s", out.Kind, took)
	}
}

func (consoleObserver) TargetFinished(runID string, target models.Target, result *models.CrackResult) {
	if result == nil {
		return
	}
	switch {
	case result.Cracked():
		color.Green("  [+] %s key: %s", target.DisplayName(), *result.Key)
	case result.File != "":
		color.Green("  [+] %s %s saved to %s", target.DisplayName(), result.Type, result.File)
	}
	if result.PIN != "" {
		color.Green("  [+] %s WPS PIN: %s", target.DisplayName(), result.PIN)
	}
}

func (consoleObserver) RunFinished(summary attack.Summary) {}

func printTargets(targets []models.Target) {
	fmt.Printf("%-3s %-24s %-17s %-4s %-10s %-6s %-9s %-8s %s\n",
		"NUM", "ESSID", "BSSID", "CH", "ENC", "POWER", "WPS", "CLIENTS", "VENDOR")
	for i, t := range targets {
		essid := t.DisplayName()
		if t.Decloaked {
			essid += "*"
		}
		fmt.Printf("%-3d %-24s %-17s %-4d %-10s %-6d %-9s %-8d %s\n",
			i+1, truncate(essid, 24), t.BSSID, t.Channel, t.Encryption, t.Power, t.WPS, len(t.Clients), t.Vendor)
	}
}

func printSummary(summary attack.Summary) {
	if summary.Stopped {
		color.Yellow("Run stopped after %d of %d target(s)", summary.Attacked, summary.Targets)
	} else {
		color.Green("Attacked %d of %d target(s)", summary.Attacked, summary.Targets)
	}
	if len(summary.Results) == 0 {
		color.Yellow("Nothing captured")
		return
	}
	for _, r := range summary.Results {
		key := "not cracked"
		if r.Cracked() {
			key = *r.Key
		}
		color.Green("  %s %s (%s): %s", r.Type, r.ESSID, r.BSSID, key)
	}
}
