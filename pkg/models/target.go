package models

import (
	"strings"
)

// UnassociatedBSSID is the BSSID of the synthetic target that collects
// clients which are not associated with any access point.
const UnassociatedBSSID = "UNASSOCIATED"

// WPSState describes what is known about an access point's WPS support
type WPSState int

// Known WPS states
const (
	WPSUnknown WPSState = iota
	WPSNone
	WPSUnlocked
	WPSLocked
)

func (s WPSState) String() string {
	switch s {
	case WPSNone:
		return "none"
	case WPSUnlocked:
		return "unlocked"
	case WPSLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Enabled reports whether the access point advertises WPS at all
func (s WPSState) Enabled() bool {
	return s == WPSUnlocked || s == WPSLocked
}

// MarshalText lets WPSState appear as a string in JSON and YAML.
func (s WPSState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Encryption is a set of encryption schemes announced by an access point
type Encryption uint8

// Encryption flags
const (
	EncOpen Encryption = 1 << iota
	EncWEP
	EncWPA
	EncWPA2
	EncWPA3
)

var encryptionNames = []struct {
	flag Encryption
	name string
}{
	{EncOpen, "OPN"},
	{EncWEP, "WEP"},
	{EncWPA, "WPA"},
	{EncWPA2, "WPA2"},
	{EncWPA3, "WPA3"},
}

// ParseEncryption converts a capture-tool privacy column such as
// "WPA3 WPA2" or "OPN" into an Encryption set. Unknown tokens are ignored.
func ParseEncryption(privacy string) Encryption {
	var enc Encryption
	for _, token := range strings.Fields(strings.ToUpper(privacy)) {
		for _, n := range encryptionNames {
			if token == n.name {
				enc |= n.flag
			}
		}
	}
	return enc
}

// Has reports whether every flag in other is present
func (e Encryption) Has(other Encryption) bool {
	return other != 0 && e&other == other
}

// Any reports whether at least one flag in other is present
func (e Encryption) Any(other Encryption) bool {
	return e&other != 0
}

// IsWPA reports whether the target uses any WPA generation
func (e Encryption) IsWPA() bool {
	return e.Any(EncWPA | EncWPA2 | EncWPA3)
}

func (e Encryption) String() string {
	var parts []string
	for i := len(encryptionNames) - 1; i >= 0; i-- {
		if e&encryptionNames[i].flag != 0 {
			parts = append(parts, encryptionNames[i].name)
		}
	}
	return strings.Join(parts, " ")
}

// MarshalText lets Encryption appear as a string in JSON and YAML.
func (e Encryption) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Client represents a wireless station seen by the capture tool
type Client struct {
	Station      string   `json:"station"`
	BSSID        string   `json:"bssid"`
	Power        int      `json:"power"`
	Packets      int      `json:"packets"`
	ProbedESSIDs []string `json:"probed_essids,omitempty"`
}

// Associated reports whether the station is associated with an access point
func (c Client) Associated() bool {
	return c.BSSID != "" && c.BSSID != UnassociatedBSSID
}

// Target represents an access point that can be attacked
type Target struct {
	BSSID          string     `json:"bssid"`       // Upper-case, colon separated
	ESSID          string     `json:"essid"`       // Empty while hidden
	ESSIDKnown     bool       `json:"essid_known"` // False for hidden networks
	Channel        int        `json:"channel"`
	Power          int        `json:"power"` // dBm, higher is stronger
	Encryption     Encryption `json:"encryption"`
	Cipher         string     `json:"cipher,omitempty"`
	Authentication string     `json:"authentication,omitempty"`
	Beacons        int        `json:"beacons"`
	IVs            int        `json:"ivs"`
	WPS            WPSState   `json:"wps"`
	Vendor         string     `json:"vendor,omitempty"`
	Clients        []Client   `json:"clients,omitempty"`
	Decloaked      bool       `json:"decloaked"`
}

// Unassociated reports whether t is the synthetic bucket for unassociated clients
func (t Target) Unassociated() bool {
	return t.BSSID == UnassociatedBSSID
}

// DisplayName returns the ESSID, or the BSSID for hidden networks
func (t Target) DisplayName() string {
	if t.ESSIDKnown && t.ESSID != "" {
		return t.ESSID
	}
	return t.BSSID
}

// HasClient reports whether the station is already tracked
func (t Target) HasClient(station string) bool {
	for _, c := range t.Clients {
		if strings.EqualFold(c.Station, station) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so techniques can read a target while the
// scanner keeps updating its own list.
func (t Target) Clone() Target {
	out := t
	if t.Clients != nil {
		out.Clients = make([]Client, len(t.Clients))
		for i, c := range t.Clients {
			out.Clients[i] = c
			if c.ProbedESSIDs != nil {
				out.Clients[i].ProbedESSIDs = append([]string(nil), c.ProbedESSIDs...)
			}
		}
	}
	return out
}

// SignalQuality classifies the signal power of a target
func (t Target) SignalQuality() string {
	switch {
	case t.Power > -50:
		return "excellent"
	case t.Power > -60:
		return "good"
	case t.Power > -70:
		return "fair"
	default:
		return "poor"
	}
}

// NormalizeMAC upper-cases a MAC address and converts '-' separators to ':'
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
}
