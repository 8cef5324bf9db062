package attack

import (
	"strings"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

// Policy holds the configuration switches that shape an attack plan
type Policy struct {
	PMKIDOnly bool
	WPSOnly   bool
	NoWPS     bool
	NoPixie   bool
	PixieOnly bool
}

// PolicyFromConfig extracts the plan switches from cfg
func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		PMKIDOnly: cfg.PMKIDOnly,
		WPSOnly:   cfg.WPSOnly,
		NoWPS:     cfg.NoWPS,
		NoPixie:   cfg.NoPixie,
		PixieOnly: cfg.WPSPixieOnly,
	}
}

// vulnerableVendors ship WPS implementations known to fall to Pixie-Dust
var vulnerableVendors = []string{"linksys", "netgear", "dlink", "belkin", "asus", "tplink"}

// parallelWith lists the techniques a capture may share the air with. Both
// PMKID kinds drive hcxdumptool on the interface, so they never pair.
var parallelWith = map[models.AttackKind][]models.AttackKind{
	models.AttackPMKID:        {models.AttackWPAHandshake},
	models.AttackWPA3PMKID:    {models.AttackWPAHandshake},
	models.AttackWPAHandshake: {models.AttackPMKID, models.AttackWPA3PMKID},
}

// VulnerableVendor reports whether vendor is on the Pixie-Dust list. Case,
// hyphens and spaces are ignored, so "D-Link" and "TP-LINK" match.
func VulnerableVendor(vendor string) bool {
	v := strings.NewReplacer("-", "", " ", "").Replace(strings.ToLower(vendor))
	if v == "" {
		return false
	}
	for _, known := range vulnerableVendors {
		if strings.Contains(v, known) {
			return true
		}
	}
	return false
}

// Analysis summarizes what a target offers an attacker
type Analysis struct {
	Signal      string `json:"signal"`
	WPS         bool   `json:"wps"`
	WPSLocked   bool   `json:"wps_locked"`
	PixieLikely bool   `json:"pixie_likely"`
	PMKID       bool   `json:"pmkid"`
	WPA3        bool   `json:"wpa3"`
	Clients     int    `json:"clients"`
}

// Analyze inspects a target
func Analyze(t models.Target) Analysis {
	return Analysis{
		Signal:      t.SignalQuality(),
		WPS:         t.WPS.Enabled(),
		WPSLocked:   t.WPS == models.WPSLocked,
		PixieLikely: t.WPS.Enabled() && VulnerableVendor(t.Vendor),
		PMKID:       t.Encryption.Any(models.EncWPA2 | models.EncWPA3),
		WPA3:        t.Encryption.Has(models.EncWPA3),
		Clients:     len(t.Clients),
	}
}

// BuildPlan orders the techniques worth trying against t. Targets without
// WPA-family encryption get an empty plan. WPA3 networks never get WPS
// techniques.
func BuildPlan(t models.Target, p Policy) models.AttackPlan {
	plan := models.AttackPlan{Target: t.Clone()}
	if !t.Encryption.IsWPA() {
		return plan
	}
	a := Analyze(t)

	add := func(kind models.AttackKind) {
		step := models.AttackStep{Kind: kind}
		step.ParallelWith = append(step.ParallelWith, parallelWith[kind]...)
		plan.Steps = append(plan.Steps, step)
	}

	if a.WPS && !a.WPA3 && !p.PMKIDOnly && !p.NoWPS {
		add(models.AttackWPSDefaultPIN)
		if a.PixieLikely && !p.NoPixie {
			add(models.AttackWPSPixieDust)
		}
		if !p.PixieOnly {
			add(models.AttackWPSPIN)
		}
	}
	if a.PMKID && !p.WPSOnly {
		add(models.AttackPMKID)
	}
	if a.WPA3 && !p.WPSOnly {
		add(models.AttackWPA3PMKID)
	}
	if !p.PMKIDOnly && !p.WPSOnly {
		add(models.AttackWPAHandshake)
	}
	return plan
}

// Groups splits a plan into execution groups for parallel mode. Order is
// preserved; techniques that may run together are gathered at the position
// of the first of them.
func Groups(plan models.AttackPlan) [][]models.AttackKind {
	placed := make(map[models.AttackKind]bool)
	var groups [][]models.AttackKind

	for i, step := range plan.Steps {
		if placed[step.Kind] {
			continue
		}
		group := []models.AttackKind{step.Kind}
		placed[step.Kind] = true

		for _, later := range plan.Steps[i+1:] {
			if placed[later.Kind] || !step.CompatibleWith(later.Kind) {
				continue
			}
			compatible := true
			for _, member := range group {
				if member != step.Kind && !later.CompatibleWith(member) {
					compatible = false
					break
				}
			}
			if compatible {
				group = append(group, later.Kind)
				placed[later.Kind] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}
