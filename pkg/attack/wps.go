package attack

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
)

// WPSAttack runs reaver or bully in one of three modes: factory default
// PINs, Pixie-Dust or a full PIN brute force
type WPSAttack struct {
	kit    *Toolkit
	target models.Target
	kind   models.AttackKind
	logger *logrus.Entry
}

// NewWPSAttack creates a WPS technique of the given kind
func NewWPSAttack(kit *Toolkit, target models.Target, kind models.AttackKind) *WPSAttack {
	return &WPSAttack{kit: kit, target: target.Clone(), kind: kind, logger: kit.targetLogger(target, kind)}
}

// Kind implements Technique
func (a *WPSAttack) Kind() models.AttackKind {
	return a.kind
}

// Check implements Technique
func (a *WPSAttack) Check() error {
	_, err := a.kit.WPS.Tool()
	return err
}

// Run implements Technique
func (a *WPSAttack) Run(ctx context.Context) (*models.CrackResult, error) {
	tool, err := a.kit.WPS.Tool()
	if err != nil {
		return nil, err
	}
	if a.target.WPS == models.WPSLocked {
		a.logger.Warn("WPS is locked, the access point may ignore PIN attempts")
	}

	cfg := a.kit.Config
	bssid, channel := a.target.BSSID, a.target.Channel
	a.logger.WithField("tool", tool).Info("Starting WPS attack")

	var res *tools.WPSResult
	switch a.kind {
	case models.AttackWPSDefaultPIN:
		res, err = a.kit.WPS.TryDefaultPINs(ctx, tool, bssid, channel)
	case models.AttackWPSPixieDust:
		res, err = a.kit.WPS.Run(ctx, tool, a.kit.WPS.PixieArgs(tool, bssid, channel), cfg.WPSPixieTimeout)
	case models.AttackWPSPIN:
		res, err = a.kit.WPS.Run(ctx, tool, a.kit.WPS.PINArgs(tool, bssid, channel, ""), cfg.WPSPINTimeout)
	default:
		return nil, fmt.Errorf("not a WPS attack: %s", a.kind)
	}
	if err != nil || res == nil {
		return nil, err
	}

	essid := res.ESSID
	if essid == "" && a.target.ESSIDKnown {
		essid = a.target.ESSID
	}
	result := models.CrackResult{
		Type:  models.ResultWPS,
		BSSID: bssid,
		ESSID: essid,
		PIN:   res.PIN,
		Date:  time.Now(),
	}
	if res.PSK != "" {
		result = result.WithKey(res.PSK)
	}
	a.logger.WithField("pin", res.PIN).Info("Recovered WPS PIN")
	return &result, nil
}
