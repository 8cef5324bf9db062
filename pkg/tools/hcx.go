package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/process"
)

// Hcx drives hcxdumptool and hcxpcapngtool
type Hcx struct {
	cfg     config.Config
	tracker *process.Tracker
	logger  *logrus.Logger
}

// NewHcx creates a wrapper around the hcx tools
func NewHcx(cfg config.Config, tracker *process.Tracker, logger *logrus.Logger) *Hcx {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hcx{cfg: cfg, tracker: tracker, logger: logger}
}

// StripBSSID returns bssid in the lower-case, colon-free form used by the
// hcx tools
func StripBSSID(bssid string) string {
	return strings.ToLower(strings.ReplaceAll(bssid, ":", ""))
}

// DumpArgs builds the hcxdumptool arguments
func (h *Hcx) DumpArgs(filterList string, channel int, out string) []string {
	return []string{
		"-i", h.cfg.Interface,
		"--filterlist", filterList,
		"--filtermode", "2",
		"-c", strconv.Itoa(channel),
		"-w", out,
	}
}

// StartDump starts hcxdumptool restricted to bssid and writing to out. The
// caller owns the returned handle.
func (h *Hcx) StartDump(bssid string, channel int, out string) (*process.Handle, error) {
	if err := os.MkdirAll(h.cfg.TempDir, 0755); err != nil {
		return nil, err
	}
	filterList := strings.TrimSuffix(out, filepath.Ext(out)) + ".filterlist"
	if err := os.WriteFile(filterList, []byte(StripBSSID(bssid)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write filter list: %w", err)
	}
	_ = os.Remove(out)

	return process.Start("hcxdumptool", h.DumpArgs(filterList, channel, out), process.Options{
		Discard: true,
		Tracker: h.tracker,
		Logger:  h.logger,
	})
}

// ExtractPMKID converts the pcapng capture into 16800 hash lines and returns
// the first valid line for bssid. An empty string means the capture holds no
// usable PMKID for the target.
func (h *Hcx) ExtractPMKID(ctx context.Context, pcapng, bssid string) (string, error) {
	base := filepath.Base(pcapng)
	hashFile := filepath.Join(h.cfg.TempDir, strings.TrimSuffix(base, filepath.Ext(base))+".16800")
	_ = os.Remove(hashFile)
	defer os.Remove(hashFile)

	_, err := process.Call(ctx, h.cfg.InterruptGrace, "hcxpcapngtool", []string{"-z", hashFile, pcapng}, process.Options{
		Tracker: h.tracker,
		Logger:  h.logger,
	})
	if err != nil && !process.IsExitError(err) {
		return "", err
	}

	data, err := os.ReadFile(hashFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return MatchPMKID(string(data), bssid), nil
}

// ConvertHashes writes the hashcat 22000 form of a handshake capture to out
func (h *Hcx) ConvertHashes(ctx context.Context, capture, out string) error {
	_ = os.Remove(out)
	_, err := process.Call(ctx, h.cfg.InterruptGrace, "hcxpcapngtool", []string{"-o", out, capture}, process.Options{
		Tracker: h.tracker,
		Logger:  h.logger,
	})
	if err != nil && !process.IsExitError(err) {
		return err
	}
	if _, statErr := os.Stat(out); statErr != nil {
		return fmt.Errorf("hcxpcapngtool produced no hashes for %s", capture)
	}
	return nil
}

// MatchPMKID picks the hash line whose access point field is bssid.
// hcxdumptool records everything it hears, so other networks show up too.
func MatchPMKID(output, bssid string) string {
	want := StripBSSID(bssid)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		fields := strings.Split(line, "*")
		if len(fields) >= 3 && strings.ToLower(fields[1]) == want && ValidPMKID(line) {
			return line
		}
	}
	return ""
}

// ValidPMKID checks the hash*bssid*station*essid shape of a 16800 line
func ValidPMKID(line string) bool {
	if strings.Count(line, "*") < 3 {
		return false
	}
	hash := strings.SplitN(line, "*", 2)[0]
	if len(hash) < 32 {
		return false
	}
	for _, c := range hash {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
