package fingerprint

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Rule infers a vendor from the factory-default ESSID an access point
// still broadcasts
type Rule struct {
	Vendor       string `json:"vendor"`
	ESSIDPattern string `json:"essid_pattern"`
	re           *regexp.Regexp
}

var defaultRules = []Rule{
	{Vendor: "NETGEAR", ESSIDPattern: `^NETGEAR[0-9]{2}(-5G)?$`},
	{Vendor: "TP-Link", ESSIDPattern: `^TP-LINK_[0-9A-F]{4,6}(_5G)?$`},
	{Vendor: "Linksys", ESSIDPattern: `^Linksys[0-9]{5}(_5GHz)?$`},
	{Vendor: "D-Link", ESSIDPattern: `^dlink-[0-9A-F]{4}(-5GHz)?$`},
	{Vendor: "Belkin", ESSIDPattern: `^belkin\.[0-9a-f]{3,4}$`},
	{Vendor: "ASUS", ESSIDPattern: `^ASUS(_[0-9A-F]{2})?(_5G)?$`},
}

// Fingerprinter resolves the vendor of an access point from its BSSID and,
// failing that, its default ESSID
type Fingerprinter struct {
	macs  *MacVendorDB
	rules []Rule
}

// NewFingerprinter creates a fingerprinter. rulesFile is an optional JSON
// list of additional rules; it may be empty.
func NewFingerprinter(macs *MacVendorDB, rulesFile string) (*Fingerprinter, error) {
	f := &Fingerprinter{macs: macs}

	rules := append([]Rule(nil), defaultRules...)
	if rulesFile != "" {
		data, err := os.ReadFile(rulesFile)
		if err != nil {
			return nil, err
		}
		var extra []Rule
		if err := json.Unmarshal(data, &extra); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", rulesFile, err)
		}
		rules = append(extra, rules...)
	}

	for _, r := range rules {
		re, err := regexp.Compile(r.ESSIDPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern for %s: %w", r.Vendor, err)
		}
		r.re = re
		f.rules = append(f.rules, r)
	}
	return f, nil
}

// Vendor returns the best-effort vendor name, or "" when unknown
func (f *Fingerprinter) Vendor(bssid, essid string) string {
	if f.macs != nil {
		if v := f.macs.LookupVendor(bssid); v != "" {
			return v
		}
	}
	essid = strings.TrimSpace(essid)
	if essid == "" {
		return ""
	}
	for _, r := range f.rules {
		if r.re.MatchString(essid) {
			return r.Vendor
		}
	}
	return ""
}
