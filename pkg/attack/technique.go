// Package attack decides which techniques to run against an access point and
// runs them, one after another or as racing groups.
package attack

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/airodump"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/pcap"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/process"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
)

// Technique is one way of obtaining a crackable artifact from a target.
//
// Run returns (nil, nil) when the technique finished without an artifact.
// Errors are reserved for I/O problems and cancellation.
type Technique interface {
	Kind() models.AttackKind
	Check() error
	Run(ctx context.Context) (*models.CrackResult, error)
}

// Cracker recovers keys from captured artifacts
type Cracker interface {
	Enabled() bool
	CrackHandshake(ctx context.Context, capture, bssid string) (string, bool, error)
	CrackPMKID(ctx context.Context, hashFile string) (string, bool, error)
}

// Toolkit bundles the collaborators the techniques share
type Toolkit struct {
	Config   config.Config
	Tracker  *process.Tracker
	Logger   *logrus.Logger
	Vendors  airodump.VendorLookup
	Deauther airodump.Deauther
	Analyzer *pcap.Analyzer
	Cracker  Cracker // used by the Driver once an artifact is captured
	Hcx      *tools.Hcx
	WPS      *tools.WPS
}

// NewToolkit wires the external tool wrappers for cfg
func NewToolkit(cfg config.Config, tracker *process.Tracker, vendors airodump.VendorLookup, logger *logrus.Logger) *Toolkit {
	if logger == nil {
		logger = logrus.New()
	}
	if tracker == nil {
		tracker = process.DefaultTracker
	}
	return &Toolkit{
		Config:   cfg,
		Tracker:  tracker,
		Logger:   logger,
		Vendors:  vendors,
		Deauther: tools.NewAireplay(cfg, tracker, logger),
		Analyzer: pcap.NewAnalyzer(logger),
		Cracker:  tools.NewCracker(cfg, tracker, logger),
		Hcx:      tools.NewHcx(cfg, tracker, logger),
		WPS:      tools.NewWPS(cfg, tracker, logger),
	}
}

// Technique builds the technique of the given kind for target
func (k *Toolkit) Technique(kind models.AttackKind, target models.Target) (Technique, error) {
	switch kind {
	case models.AttackWPAHandshake:
		return NewWPAAttack(k, target), nil
	case models.AttackPMKID, models.AttackWPA3PMKID:
		return NewPMKIDAttack(k, target, kind), nil
	case models.AttackWPSDefaultPIN, models.AttackWPSPixieDust, models.AttackWPSPIN:
		return NewWPSAttack(k, target, kind), nil
	}
	return nil, fmt.Errorf("unknown attack %q", kind)
}

func (k *Toolkit) targetLogger(target models.Target, kind models.AttackKind) *logrus.Entry {
	return k.Logger.WithFields(logrus.Fields{
		"bssid":  target.BSSID,
		"essid":  target.DisplayName(),
		"attack": kind,
	})
}
