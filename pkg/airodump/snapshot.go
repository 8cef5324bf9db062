// Package airodump drives airodump-ng and turns its periodic CSV snapshots
// into targets.
package airodump

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/pcap"
)

// ErrNoSnapshot is returned when airodump-ng has not written a CSV yet
var ErrNoSnapshot = errors.New("no snapshot available")

// VendorLookup names the manufacturer of an access point
type VendorLookup interface {
	Vendor(bssid, essid string) string
}

var (
	macPattern       = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)
	broadcastPattern = regexp.MustCompile(`(?i)^(ff:ff:ff:ff:ff:ff|00:00:00:00:00:00)$`)
	multicastPattern = regexp.MustCompile(`(?i)^(01:00:5e|01:80:c2|33:33)`)
)

// ParseCSV reads one airodump-ng CSV snapshot. Rows that cannot be parsed are
// skipped. The result is sorted by descending power; ties keep scan order.
func ParseCSV(r io.Reader, vendors VendorLookup) ([]models.Target, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.ReplaceAll(raw, []byte{0}, nil)

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var (
		targets      []models.Target
		index        = make(map[string]int)
		clientRows   bool
		unassociated *models.Target
		orphans      []models.Client
	)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}

		switch strings.TrimSpace(row[0]) {
		case "BSSID":
			clientRows = false
			continue
		case "Station MAC":
			clientRows = true
			continue
		case "":
			continue
		}

		if !clientRows {
			t, ok := parseTarget(row)
			if !ok {
				continue
			}
			if _, dup := index[t.BSSID]; dup {
				continue
			}
			if vendors != nil {
				t.Vendor = vendors.Vendor(t.BSSID, t.ESSID)
			}
			index[t.BSSID] = len(targets)
			targets = append(targets, t)
			continue
		}

		c, ok := parseClient(row)
		if !ok {
			continue
		}
		if !c.Associated() {
			if unassociated == nil {
				unassociated = newUnassociatedTarget()
			}
			unassociated.Clients = appendClient(unassociated.Clients, c)
			continue
		}
		if i, ok := index[c.BSSID]; ok {
			targets[i].Clients = appendClient(targets[i].Clients, c)
		} else {
			orphans = append(orphans, c)
		}
	}

	// client rows may name an access point listed later in a malformed file
	for _, c := range orphans {
		if i, ok := index[c.BSSID]; ok {
			targets[i].Clients = appendClient(targets[i].Clients, c)
		}
	}
	if unassociated != nil {
		targets = append(targets, *unassociated)
	}

	sortByPower(targets)
	return targets, nil
}

func newUnassociatedTarget() *models.Target {
	return &models.Target{
		BSSID:      models.UnassociatedBSSID,
		ESSID:      "Unassociated Clients",
		ESSIDKnown: true,
		Power:      -100,
		Encryption: models.EncOpen,
	}
}

func sortByPower(targets []models.Target) {
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Power > targets[j].Power
	})
}

func appendClient(clients []models.Client, c models.Client) []models.Client {
	for _, existing := range clients {
		if existing.Station == c.Station {
			return clients
		}
	}
	return append(clients, c)
}

// parseTarget reads an access point row:
// BSSID, first seen, last seen, channel, speed, privacy, cipher,
// authentication, power, beacons, IVs, LAN IP, ID-length, ESSID, key
func parseTarget(row []string) (models.Target, bool) {
	if len(row) < 14 {
		return models.Target{}, false
	}
	field := func(i int) string { return strings.TrimSpace(row[i]) }

	bssid := field(0)
	if !macPattern.MatchString(bssid) || broadcastPattern.MatchString(bssid) || multicastPattern.MatchString(bssid) {
		return models.Target{}, false
	}

	channel, err := strconv.Atoi(field(3))
	if err != nil || channel < 0 {
		return models.Target{}, false
	}
	power, err := strconv.Atoi(field(8))
	if err != nil {
		return models.Target{}, false
	}
	beacons, _ := strconv.Atoi(field(9))
	ivs, _ := strconv.Atoi(field(10))
	essidLen, _ := strconv.Atoi(field(12))

	// airodump-ng does not quote ESSIDs, so one containing commas spans
	// several fields ahead of the trailing key column
	essid := row[13]
	if len(row) > 15 {
		essid = strings.Join(row[13:len(row)-1], ",")
	}

	t := models.Target{
		BSSID:          models.NormalizeMAC(bssid),
		Channel:        channel,
		Power:          power,
		Encryption:     models.ParseEncryption(field(5)),
		Cipher:         field(6),
		Authentication: field(7),
		Beacons:        beacons,
		IVs:            ivs,
		WPS:            models.WPSUnknown,
	}
	if hiddenESSID(essid, essidLen) {
		t.ESSIDKnown = false
	} else {
		t.ESSID = essid
		t.ESSIDKnown = true
	}
	return t, true
}

func hiddenESSID(essid string, length int) bool {
	if strings.TrimSpace(essid) == "" {
		return true
	}
	if length > 0 && (essid == strings.Repeat(`\x00`, length) || essid == strings.Repeat("x00", length)) {
		return true
	}
	return false
}

// parseClient reads a station row:
// station MAC, first seen, last seen, power, packets, BSSID, probed ESSIDs
func parseClient(row []string) (models.Client, bool) {
	if len(row) < 6 {
		return models.Client{}, false
	}
	field := func(i int) string { return strings.TrimSpace(row[i]) }

	station := field(0)
	if !macPattern.MatchString(station) {
		return models.Client{}, false
	}
	power, err := strconv.Atoi(field(3))
	if err != nil {
		return models.Client{}, false
	}
	packets, err := strconv.Atoi(field(4))
	if err != nil {
		return models.Client{}, false
	}

	c := models.Client{
		Station: models.NormalizeMAC(station),
		Power:   power,
		Packets: packets,
	}
	switch bssid := field(5); {
	case strings.Contains(bssid, "not associated"):
		c.BSSID = models.UnassociatedBSSID
	case macPattern.MatchString(bssid):
		c.BSSID = models.NormalizeMAC(bssid)
	default:
		return models.Client{}, false
	}

	for _, probe := range row[6:] {
		if probe = strings.TrimSpace(probe); probe != "" {
			c.ProbedESSIDs = append(c.ProbedESSIDs, probe)
		}
	}
	return c, true
}

// Parser merges successive snapshots. It owns the target list between scan
// cycles; callers receive copies.
type Parser struct {
	mu        sync.Mutex
	previous  map[string]models.Target
	decloaked map[string]bool
}

// NewParser creates a parser with no history
func NewParser() *Parser {
	return &Parser{
		previous:  make(map[string]models.Target),
		decloaked: make(map[string]bool),
	}
}

// Update merges a freshly parsed snapshot with the previous one. WPS state
// survives a snapshot that reports it unknown, and a target whose ESSID was
// hidden before and is known now is marked decloaked. The second return
// value lists the BSSIDs decloaked by this update; each BSSID is reported
// once over the parser's lifetime.
func (p *Parser) Update(fresh []models.Target) ([]models.Target, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	merged := make([]models.Target, 0, len(fresh))
	var events []string
	next := make(map[string]models.Target, len(fresh))

	for _, t := range fresh {
		t = t.Clone()
		if old, ok := p.previous[t.BSSID]; ok {
			if t.WPS == models.WPSUnknown {
				t.WPS = old.WPS
			}
			if t.Vendor == "" {
				t.Vendor = old.Vendor
			}
			if !t.ESSIDKnown && old.ESSIDKnown && old.Decloaked {
				// keep a decloaked name when the AP goes quiet again
				t.ESSID = old.ESSID
				t.ESSIDKnown = true
			}
			if t.ESSIDKnown && !old.ESSIDKnown && !p.decloaked[t.BSSID] {
				p.decloaked[t.BSSID] = true
				events = append(events, t.BSSID)
			}
		}
		if p.decloaked[t.BSSID] {
			t.Decloaked = true
		}
		next[t.BSSID] = t
		merged = append(merged, t.Clone())
	}

	// an access point missing from one snapshot keeps its history
	for bssid, old := range p.previous {
		if _, ok := next[bssid]; !ok {
			next[bssid] = old
		}
	}
	p.previous = next

	sortByPower(merged)
	return merged, events
}

// Enrich fills in what only the capture file knows: WPS state and hidden
// ESSIDs from beacons and probe responses, and stations seen sending probe
// requests. targets is modified in place.
func Enrich(targets []models.Target, summary *pcap.Summary, withWPS bool) []models.Target {
	if summary == nil {
		return targets
	}

	unassociated := -1
	for i := range targets {
		t := &targets[i]
		if t.Unassociated() {
			unassociated = i
			continue
		}
		b, ok := summary.Beacons[t.BSSID]
		if !ok {
			continue
		}
		if withWPS {
			if b.WPS != models.WPSUnknown {
				t.WPS = b.WPS
			} else {
				t.WPS = models.WPSNone
			}
		}
		if !t.ESSIDKnown && b.ESSID != "" {
			t.ESSID = b.ESSID
			t.ESSIDKnown = true
		}
	}

	if len(summary.Probes) == 0 {
		return targets
	}
	if unassociated < 0 {
		targets = append(targets, *newUnassociatedTarget())
		unassociated = len(targets) - 1
	}
	bucket := &targets[unassociated]
	for _, probe := range summary.Probes {
		station := models.NormalizeMAC(probe.Station)
		if associatedElsewhere(targets, station) {
			continue
		}
		found := false
		for j := range bucket.Clients {
			c := &bucket.Clients[j]
			if c.Station != station {
				continue
			}
			found = true
			if probe.ESSID != "" && !containsString(c.ProbedESSIDs, probe.ESSID) {
				c.ProbedESSIDs = append(c.ProbedESSIDs, probe.ESSID)
			}
		}
		if found {
			continue
		}
		c := models.Client{
			Station: station,
			BSSID:   models.UnassociatedBSSID,
			Power:   -50,
			Packets: 1,
		}
		if probe.ESSID != "" {
			c.ProbedESSIDs = []string{probe.ESSID}
		}
		bucket.Clients = append(bucket.Clients, c)
	}
	if len(bucket.Clients) == 0 {
		targets = append(targets[:unassociated], targets[unassociated+1:]...)
	}
	return targets
}

func associatedElsewhere(targets []models.Target, station string) bool {
	for _, t := range targets {
		if !t.Unassociated() && t.HasClient(station) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
