package airodump

import (
	"strings"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

// Filter keeps the targets worth attacking under cfg: WPA-family networks
// or networks with WPS enabled (only the latter when cfg.WPSOnly), narrowed
// by the BSSID/ESSID selections. The unassociated bucket is never a target.
func Filter(targets []models.Target, cfg config.Config) []models.Target {
	var out []models.Target
	for _, t := range targets {
		if t.Unassociated() {
			continue
		}
		if cfg.ClientsOnly && len(t.Clients) == 0 {
			continue
		}

		switch {
		case cfg.WPSOnly:
			if !t.WPS.Enabled() {
				continue
			}
		case !t.Encryption.IsWPA() && !t.WPS.Enabled():
			continue
		}

		if cfg.IgnoreESSID != "" && t.ESSIDKnown &&
			strings.Contains(strings.ToLower(t.ESSID), strings.ToLower(cfg.IgnoreESSID)) {
			continue
		}
		if cfg.TargetBSSID != "" && !strings.EqualFold(t.BSSID, cfg.TargetBSSID) {
			continue
		}
		if cfg.TargetESSID != "" && t.ESSIDKnown && !strings.EqualFold(t.ESSID, cfg.TargetESSID) {
			continue
		}
		out = append(out, t)
	}
	return out
}
