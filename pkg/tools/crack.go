package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/process"
)

// Cracker recovers keys from captured artifacts using a wordlist
type Cracker struct {
	cfg     config.Config
	hcx     *Hcx
	tracker *process.Tracker
	logger  *logrus.Logger
}

// NewCracker creates a cracker using cfg.Cracker for handshakes and hashcat
// for PMKID hashes
func NewCracker(cfg config.Config, tracker *process.Tracker, logger *logrus.Logger) *Cracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Cracker{
		cfg:     cfg,
		hcx:     NewHcx(cfg, tracker, logger),
		tracker: tracker,
		logger:  logger,
	}
}

// Enabled reports whether a wordlist is configured
func (c *Cracker) Enabled() bool {
	return c.cfg.Wordlist != ""
}

// CrackHandshake tries the wordlist against a handshake capture. The boolean
// is false when the key is not in the wordlist.
func (c *Cracker) CrackHandshake(ctx context.Context, capture, bssid string) (string, bool, error) {
	if !c.Enabled() {
		return "", false, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if c.cfg.Cracker == config.CrackerHashcat {
		return c.hashcatHandshake(ctx, capture)
	}
	return c.aircrack(ctx, capture, bssid)
}

// withTimeout applies CrackTimeout; zero means no limit
func (c *Cracker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.CrackTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.CrackTimeout)
}

// AircrackArgs builds the aircrack-ng arguments
func (c *Cracker) AircrackArgs(capture, bssid, keyFile string) []string {
	return []string{"-a", "2", "-w", c.cfg.Wordlist, "--bssid", bssid, "-l", keyFile, capture}
}

func (c *Cracker) aircrack(ctx context.Context, capture, bssid string) (string, bool, error) {
	if err := Require("aircrack-ng"); err != nil {
		return "", false, err
	}
	if err := os.MkdirAll(c.cfg.TempDir, 0755); err != nil {
		return "", false, err
	}
	keyFile := filepath.Join(c.cfg.TempDir, "wpakey.txt")
	_ = os.Remove(keyFile)
	defer os.Remove(keyFile)

	_, err := c.call(ctx, "aircrack-ng", c.AircrackArgs(capture, bssid, keyFile))
	if err != nil && !process.IsExitError(err) {
		return "", false, err
	}

	data, err := os.ReadFile(keyFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	key := strings.TrimSpace(string(data))
	return key, key != "", nil
}

func (c *Cracker) hashcatHandshake(ctx context.Context, capture string) (string, bool, error) {
	if err := Require("hashcat", "hcxpcapngtool"); err != nil {
		return "", false, err
	}
	if err := os.MkdirAll(c.cfg.TempDir, 0755); err != nil {
		return "", false, err
	}
	hashFile := filepath.Join(c.cfg.TempDir, "generated.22000")
	if err := c.hcx.ConvertHashes(ctx, capture, hashFile); err != nil {
		return "", false, err
	}
	defer os.Remove(hashFile)

	return c.hashcat(ctx, []string{"--quiet", "-m", "22000", hashFile, c.cfg.Wordlist}, parseHandshakeKey)
}

// CrackPMKID tries the wordlist against a file of 16800 hash lines
func (c *Cracker) CrackPMKID(ctx context.Context, hashFile string) (string, bool, error) {
	if !c.Enabled() {
		return "", false, nil
	}
	if err := Require("hashcat"); err != nil {
		return "", false, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.hashcat(ctx, []string{"--quiet", "-m", "16800", "-a", "0", hashFile, c.cfg.Wordlist}, parsePMKIDKey)
}

// hashcat runs once normally and once with --show, so keys already in the
// potfile are found too
func (c *Cracker) hashcat(ctx context.Context, args []string, parse func(string) (string, bool)) (string, bool, error) {
	if c.hashcatNeedsForce(ctx) {
		args = append(args, "--force")
	}
	for _, extra := range [][]string{nil, {"--show"}} {
		out, err := c.call(ctx, "hashcat", append(append([]string{}, args...), extra...))
		if err != nil && !process.IsExitError(err) {
			return "", false, err
		}
		if key, ok := parse(out); ok {
			return key, true, nil
		}
	}
	return "", false, nil
}

func (c *Cracker) hashcatNeedsForce(ctx context.Context) bool {
	h, err := process.Start("hashcat", []string{"-I"}, process.Options{Tracker: c.tracker, Logger: c.logger})
	if err != nil {
		return false
	}
	if _, err := h.Wait(ctx); err != nil {
		_ = h.Interrupt(c.cfg.InterruptGrace)
		return false
	}
	return strings.Contains(h.Stderr(), "No devices found/left")
}

func (c *Cracker) call(ctx context.Context, name string, args []string) (string, error) {
	out, err := process.Call(ctx, c.cfg.InterruptGrace, name, args, process.Options{
		Tracker: c.tracker,
		Logger:  c.logger,
	})
	if err != nil && ctx.Err() != nil {
		return out, fmt.Errorf("%s: %w", name, ctx.Err())
	}
	return out, err
}

// parseHandshakeKey reads "hash:ap:station:essid:key" output. Keys may
// themselves contain colons.
func parseHandshakeKey(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, ":") {
			continue
		}
		fields := strings.SplitN(line, ":", 5)
		if key := fields[len(fields)-1]; key != "" {
			return key, true
		}
	}
	return "", false
}

// parsePMKIDKey reads "hash*...:key" output; the key follows the first colon
func parsePMKIDKey(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(line, ":"); i >= 0 && i < len(line)-1 {
			return line[i+1:], true
		}
	}
	return "", false
}
