// Package pcap inspects capture files written by the wireless tools. It reads
// both pcap and pcapng without libpcap.
package pcap

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

// ErrUnsupportedFormat is returned for files that are neither pcap nor pcapng
var ErrUnsupportedFormat = errors.New("unsupported capture format")

// Handshake message flags
const (
	Message1 uint8 = 1 << iota
	Message2
	Message3
	Message4
)

// Handshake collects the 4-way handshake messages seen between one access
// point and one station
type Handshake struct {
	BSSID    string
	Station  string
	Messages uint8
}

// Complete reports whether the handshake can be cracked: the station's
// message 2 plus either message 1 or message 3 from the access point.
func (h Handshake) Complete() bool {
	return h.Messages&Message2 != 0 && h.Messages&(Message1|Message3) != 0
}

// Beacon holds what an access point announced about itself
type Beacon struct {
	BSSID   string
	ESSID   string
	Channel int
	WPS     models.WPSState
}

// ProbeRequest is a station asking for a network by name
type ProbeRequest struct {
	Station string
	ESSID   string
}

// Summary is the result of analyzing one capture file
type Summary struct {
	Packets    int
	Handshakes []Handshake
	Beacons    map[string]Beacon // keyed by BSSID
	Probes     []ProbeRequest
}

// HasHandshake reports whether any station completed a handshake with bssid
func (s *Summary) HasHandshake(bssid string) bool {
	bssid = models.NormalizeMAC(bssid)
	for _, h := range s.Handshakes {
		if h.BSSID == bssid && h.Complete() {
			return true
		}
	}
	return false
}

// HandshakeBSSIDs returns the access points with at least one complete handshake
func (s *Summary) HandshakeBSSIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range s.Handshakes {
		if h.Complete() && !seen[h.BSSID] {
			seen[h.BSSID] = true
			out = append(out, h.BSSID)
		}
	}
	sort.Strings(out)
	return out
}

// Analyzer reads capture files
type Analyzer struct {
	logger *logrus.Logger
}

// NewAnalyzer creates a new capture-file analyzer
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Analyzer{logger: logger}
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// AnalyzeFile opens path and analyzes it
func (a *Analyzer) AnalyzeFile(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	summary, err := a.Analyze(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return summary, nil
}

// Analyze detects the capture format from its magic number and walks every
// packet. A truncated final packet, common while a tool is still writing,
// ends the walk without an error.
func (a *Analyzer) Analyze(r io.Reader) (*Summary, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, ErrUnsupportedFormat
	}

	var reader packetReader
	switch binary.LittleEndian.Uint32(magic) {
	case 0xa1b2c3d4, 0xd4c3b2a1, 0xa1b23c4d, 0x4d3cb2a1:
		reader, err = pcapgo.NewReader(br)
	case 0x0a0d0d0a:
		reader, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}

	first, pad, err := decoderFor(reader.LinkType())
	if err != nil {
		return nil, err
	}

	state := newWalkState()
	for {
		data, _, err := reader.ReadPacketData()
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			a.logger.Debugf("Stopping capture walk: %v", err)
			break
		}

		state.summary.Packets++
		if pad {
			// Dot11 always strips a trailing FCS that raw 802.11 captures lack
			data = append(data[:len(data):len(data)], 0, 0, 0, 0)
		}
		packet := gopacket.NewPacket(data, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		state.process(packet)
	}

	return state.finish(), nil
}

// HasHandshake reports whether the capture at path holds a complete handshake
// for bssid. When essid is set, a capture whose beacons name the access point
// differently is rejected.
func (a *Analyzer) HasHandshake(path, bssid, essid string) (bool, error) {
	summary, err := a.AnalyzeFile(path)
	if err != nil {
		return false, err
	}
	if !summary.HasHandshake(bssid) {
		return false, nil
	}
	if essid != "" {
		if b, ok := summary.Beacons[models.NormalizeMAC(bssid)]; ok && b.ESSID != "" && b.ESSID != essid {
			a.logger.Debugf("Handshake in %s is for %q, not %q", path, b.ESSID, essid)
			return false, nil
		}
	}
	return true, nil
}

func decoderFor(lt layers.LinkType) (gopacket.LayerType, bool, error) {
	switch lt {
	case layers.LinkTypeIEEE80211Radio:
		return layers.LayerTypeRadioTap, false, nil
	case layers.LinkTypeIEEE802_11:
		return layers.LayerTypeDot11, true, nil
	default:
		return 0, false, fmt.Errorf("%w: link type %s", ErrUnsupportedFormat, lt)
	}
}

type walkState struct {
	summary    *Summary
	handshakes map[string]*Handshake
	order      []string
	probes     map[ProbeRequest]bool
}

func newWalkState() *walkState {
	return &walkState{
		summary:    &Summary{Beacons: make(map[string]Beacon)},
		handshakes: make(map[string]*Handshake),
		probes:     make(map[ProbeRequest]bool),
	}
}

func (w *walkState) finish() *Summary {
	for _, key := range w.order {
		w.summary.Handshakes = append(w.summary.Handshakes, *w.handshakes[key])
	}
	return w.summary
}

func (w *walkState) process(packet gopacket.Packet) {
	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok {
		return
	}

	if keyLayer := packet.Layer(layers.LayerTypeEAPOLKey); keyLayer != nil {
		if key, ok := keyLayer.(*layers.EAPOLKey); ok {
			w.addKey(dot11, key)
		}
		return
	}

	switch {
	case packet.Layer(layers.LayerTypeDot11MgmtBeacon) != nil,
		packet.Layer(layers.LayerTypeDot11MgmtProbeResp) != nil:
		w.addBeacon(dot11, packet)
	case packet.Layer(layers.LayerTypeDot11MgmtProbeReq) != nil:
		w.addProbe(dot11, packet)
	}
}

// messageNumber identifies which message of the 4-way handshake key carries
func messageNumber(key *layers.EAPOLKey) uint8 {
	switch {
	case key.KeyACK && !key.KeyMIC && !key.Secure:
		return Message1
	case !key.KeyACK && key.KeyMIC && !key.Secure:
		return Message2
	case key.KeyACK && key.KeyMIC && key.Secure:
		return Message3
	case !key.KeyACK && key.KeyMIC && key.Secure:
		return Message4
	}
	return 0
}

// endpoints returns the access point and station addresses of a frame
func endpoints(dot11 *layers.Dot11) (bssid, station string) {
	switch {
	case dot11.Flags.ToDS() && !dot11.Flags.FromDS():
		return dot11.Address1.String(), dot11.Address2.String()
	case dot11.Flags.FromDS() && !dot11.Flags.ToDS():
		return dot11.Address2.String(), dot11.Address1.String()
	default:
		if dot11.Address2.String() == dot11.Address3.String() {
			return dot11.Address3.String(), dot11.Address1.String()
		}
		return dot11.Address3.String(), dot11.Address2.String()
	}
}

func (w *walkState) addKey(dot11 *layers.Dot11, key *layers.EAPOLKey) {
	msg := messageNumber(key)
	if msg == 0 {
		return
	}
	bssid, station := endpoints(dot11)
	bssid, station = models.NormalizeMAC(bssid), models.NormalizeMAC(station)

	k := bssid + "|" + station
	hs, ok := w.handshakes[k]
	if !ok {
		hs = &Handshake{BSSID: bssid, Station: station}
		w.handshakes[k] = hs
		w.order = append(w.order, k)
	}
	hs.Messages |= msg
}

func (w *walkState) addBeacon(dot11 *layers.Dot11, packet gopacket.Packet) {
	bssid := models.NormalizeMAC(dot11.Address3.String())
	b := w.summary.Beacons[bssid]
	b.BSSID = bssid

	for _, l := range packet.Layers() {
		ie, ok := l.(*layers.Dot11InformationElement)
		if !ok {
			continue
		}
		switch ie.ID {
		case layers.Dot11InformationElementIDSSID:
			if ssid := cleanSSID(ie.Info); ssid != "" {
				b.ESSID = ssid
			}
		case layers.Dot11InformationElementIDDSSet:
			if len(ie.Info) > 0 {
				b.Channel = int(ie.Info[0])
			}
		case layers.Dot11InformationElementIDVendor:
			if state, ok := wpsState(ie); ok {
				b.WPS = state
			}
		}
	}

	w.summary.Beacons[bssid] = b
}

func (w *walkState) addProbe(dot11 *layers.Dot11, packet gopacket.Packet) {
	for _, l := range packet.Layers() {
		ie, ok := l.(*layers.Dot11InformationElement)
		if !ok || ie.ID != layers.Dot11InformationElementIDSSID {
			continue
		}
		ssid := cleanSSID(ie.Info)
		if ssid == "" {
			return
		}
		p := ProbeRequest{Station: models.NormalizeMAC(dot11.Address2.String()), ESSID: ssid}
		if !w.probes[p] {
			w.probes[p] = true
			w.summary.Probes = append(w.summary.Probes, p)
		}
		return
	}
}

// cleanSSID returns "" for wildcard and hidden (all NUL) SSIDs
func cleanSSID(raw []byte) string {
	hidden := true
	for _, c := range raw {
		if c != 0 {
			hidden = false
			break
		}
	}
	if hidden {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

var wpsOUI = []byte{0x00, 0x50, 0xf2, 0x04}

const (
	wpsAttrAPSetupLocked = 0x1057
)

// wpsState parses a Microsoft WPS vendor element
func wpsState(ie *layers.Dot11InformationElement) (models.WPSState, bool) {
	if len(ie.OUI) != len(wpsOUI) {
		return models.WPSUnknown, false
	}
	for i := range wpsOUI {
		if ie.OUI[i] != wpsOUI[i] {
			return models.WPSUnknown, false
		}
	}

	data := ie.Info
	for len(data) >= 4 {
		attr := binary.BigEndian.Uint16(data[0:2])
		length := int(binary.BigEndian.Uint16(data[2:4]))
		if len(data) < 4+length {
			break
		}
		if attr == wpsAttrAPSetupLocked && length >= 1 && data[4] == 1 {
			return models.WPSLocked, true
		}
		data = data[4+length:]
	}
	return models.WPSUnlocked, true
}
