package attack

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

func wpa2Target(vendor string, wps models.WPSState) models.Target {
	return models.Target{
		BSSID:      "AA:BB:CC:DD:EE:FF",
		ESSID:      "home",
		ESSIDKnown: true,
		Channel:    6,
		Power:      -55,
		Encryption: models.EncWPA2,
		WPS:        wps,
		Vendor:     vendor,
	}
}

func TestVulnerableVendor(t *testing.T) {
	for vendor, want := range map[string]bool{
		"NETGEAR":              true,
		"D-Link International": true,
		"TP-LINK TECHNOLOGIES": true,
		"Tp Link":              true,
		"ASUSTek Computer":     true,
		"Cisco Systems":        false,
		"":                     false,
	} {
		assert.Equal(t, want, VulnerableVendor(vendor), vendor)
	}
}

func TestBuildPlan(t *testing.T) {
	wpa3 := wpa2Target("Netgear", models.WPSUnlocked)
	wpa3.Encryption = models.EncWPA2 | models.EncWPA3

	open := wpa2Target("Netgear", models.WPSNone)
	open.Encryption = models.EncOpen

	tests := []struct {
		name   string
		target models.Target
		policy Policy
		want   []models.AttackKind
	}{
		{
			name:   "vulnerable vendor with WPS",
			target: wpa2Target("Netgear", models.WPSUnlocked),
			want: []models.AttackKind{
				models.AttackWPSDefaultPIN, models.AttackWPSPixieDust, models.AttackWPSPIN,
				models.AttackPMKID, models.AttackWPAHandshake,
			},
		},
		{
			name:   "other vendor skips pixie",
			target: wpa2Target("Cisco", models.WPSLocked),
			want: []models.AttackKind{
				models.AttackWPSDefaultPIN, models.AttackWPSPIN,
				models.AttackPMKID, models.AttackWPAHandshake,
			},
		},
		{
			name:   "no WPS",
			target: wpa2Target("Netgear", models.WPSNone),
			want:   []models.AttackKind{models.AttackPMKID, models.AttackWPAHandshake},
		},
		{
			name:   "WPA3 never gets WPS",
			target: wpa3,
			want:   []models.AttackKind{models.AttackPMKID, models.AttackWPA3PMKID, models.AttackWPAHandshake},
		},
		{
			name:   "PMKID only",
			target: wpa2Target("Netgear", models.WPSUnlocked),
			policy: Policy{PMKIDOnly: true},
			want:   []models.AttackKind{models.AttackPMKID},
		},
		{
			name:   "WPS only",
			target: wpa2Target("Netgear", models.WPSUnlocked),
			policy: Policy{WPSOnly: true},
			want:   []models.AttackKind{models.AttackWPSDefaultPIN, models.AttackWPSPixieDust, models.AttackWPSPIN},
		},
		{
			name:   "pixie only",
			target: wpa2Target("Netgear", models.WPSUnlocked),
			policy: Policy{PixieOnly: true},
			want: []models.AttackKind{
				models.AttackWPSDefaultPIN, models.AttackWPSPixieDust,
				models.AttackPMKID, models.AttackWPAHandshake,
			},
		},
		{
			name:   "WPS disabled",
			target: wpa2Target("Netgear", models.WPSUnlocked),
			policy: Policy{NoWPS: true},
			want:   []models.AttackKind{models.AttackPMKID, models.AttackWPAHandshake},
		},
		{
			name:   "pixie disabled",
			target: wpa2Target("Netgear", models.WPSUnlocked),
			policy: Policy{NoPixie: true},
			want: []models.AttackKind{
				models.AttackWPSDefaultPIN, models.AttackWPSPIN,
				models.AttackPMKID, models.AttackWPAHandshake,
			},
		},
		{
			name:   "open network",
			target: open,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := BuildPlan(tt.target, tt.policy)
			if tt.want == nil {
				assert.True(t, plan.Empty())
				return
			}
			assert.Equal(t, tt.want, plan.Kinds())
			assert.Equal(t, tt.target.BSSID, plan.Target.BSSID)
		})
	}
}

func TestBuildPlanCompatibility(t *testing.T) {
	plan := BuildPlan(wpa2Target("Netgear", models.WPSUnlocked), Policy{})

	for _, step := range plan.Steps {
		if step.Kind.IsWPS() {
			assert.Empty(t, step.ParallelWith, step.Kind)
			continue
		}
		assert.NotContains(t, step.ParallelWith, step.Kind)
	}

	wpa3 := wpa2Target("", models.WPSNone)
	wpa3.Encryption = models.EncWPA3
	for _, step := range BuildPlan(wpa3, Policy{}).Steps {
		switch step.Kind {
		case models.AttackPMKID:
			assert.Equal(t, []models.AttackKind{models.AttackWPAHandshake}, step.ParallelWith)
			assert.False(t, step.CompatibleWith(models.AttackWPA3PMKID), "one hcxdumptool at a time")
		case models.AttackWPA3PMKID:
			assert.Equal(t, []models.AttackKind{models.AttackWPAHandshake}, step.ParallelWith)
		case models.AttackWPAHandshake:
			assert.ElementsMatch(t, []models.AttackKind{models.AttackPMKID, models.AttackWPA3PMKID}, step.ParallelWith)
		}
	}
}

func TestBuildPlanCopiesTarget(t *testing.T) {
	target := wpa2Target("Netgear", models.WPSNone)
	target.Clients = []models.Client{{Station: "11:22:33:44:55:66", BSSID: target.BSSID}}

	plan := BuildPlan(target, Policy{})
	target.Clients[0].Station = "changed"
	assert.Equal(t, "11:22:33:44:55:66", plan.Target.Clients[0].Station)
}

func TestGroups(t *testing.T) {
	plan := BuildPlan(wpa2Target("Netgear", models.WPSUnlocked), Policy{})
	assert.Equal(t, [][]models.AttackKind{
		{models.AttackWPSDefaultPIN},
		{models.AttackWPSPixieDust},
		{models.AttackWPSPIN},
		{models.AttackPMKID, models.AttackWPAHandshake},
	}, Groups(plan))

	wpa3 := wpa2Target("", models.WPSNone)
	wpa3.Encryption = models.EncWPA3
	assert.Equal(t, [][]models.AttackKind{
		{models.AttackPMKID, models.AttackWPAHandshake},
		{models.AttackWPA3PMKID},
	}, Groups(BuildPlan(wpa3, Policy{})), "the PMKID captures run one after the other")

	assert.Empty(t, Groups(models.AttackPlan{}))
}

func TestAnalyze(t *testing.T) {
	target := wpa2Target("Netgear", models.WPSLocked)
	target.Power = -45
	target.Clients = []models.Client{{Station: "11:22:33:44:55:66"}}

	a := Analyze(target)
	assert.Equal(t, "excellent", a.Signal)
	assert.True(t, a.WPS)
	assert.True(t, a.WPSLocked)
	assert.True(t, a.PixieLikely)
	assert.True(t, a.PMKID)
	assert.False(t, a.WPA3)
	assert.Equal(t, 1, a.Clients)
}
