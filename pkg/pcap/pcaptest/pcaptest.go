// Package pcaptest builds 802.11 frames and capture files for tests.
package pcaptest

import (
	"encoding/binary"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

// MustMAC parses a MAC address or panics
func MustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

var broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, ls...); err != nil {
		panic(err)
	}
	return append([]byte(nil), buf.Bytes()...)
}

func supportedRates() *layers.Dot11InformationElement {
	return &layers.Dot11InformationElement{
		ID:   layers.Dot11InformationElementIDRates,
		Info: []byte{0x82, 0x84, 0x8b, 0x96, 0x0c, 0x12, 0x18, 0x24},
	}
}

func wpsElement(state models.WPSState) *layers.Dot11InformationElement {
	// Version 1.0 and configured state
	tlvs := []byte{0x10, 0x4a, 0x00, 0x01, 0x10, 0x10, 0x44, 0x00, 0x01, 0x02}
	if state == models.WPSLocked {
		tlvs = append(tlvs, 0x10, 0x57, 0x00, 0x01, 0x01)
	}
	return &layers.Dot11InformationElement{
		ID:   layers.Dot11InformationElementIDVendor,
		OUI:  []byte{0x00, 0x50, 0xf2, 0x04},
		Info: tlvs,
	}
}

// Beacon builds a beacon frame. An empty essid produces a hidden network.
// wps adds a WPS element when Unlocked or Locked.
func Beacon(bssid net.HardwareAddr, essid string, channel int, wps models.WPSState) []byte {
	return mgmtWithSSID(layers.Dot11TypeMgmtBeacon, bssid, broadcast, essid, channel, wps)
}

// ProbeResponse builds a probe response, which reveals hidden ESSIDs
func ProbeResponse(bssid, station net.HardwareAddr, essid string, channel int) []byte {
	return mgmtWithSSID(layers.Dot11TypeMgmtProbeResp, bssid, station, essid, channel, models.WPSUnknown)
}

func mgmtWithSSID(typ layers.Dot11Type, bssid, dst net.HardwareAddr, essid string, channel int, wps models.WPSState) []byte {
	ls := []gopacket.SerializableLayer{
		&layers.Dot11{Type: typ, Address1: dst, Address2: bssid, Address3: bssid},
		&layers.Dot11MgmtBeacon{Interval: 100, Flags: 0x0411},
		&layers.Dot11InformationElement{ID: layers.Dot11InformationElementIDSSID, Info: []byte(essid)},
		supportedRates(),
		&layers.Dot11InformationElement{ID: layers.Dot11InformationElementIDDSSet, Info: []byte{byte(channel)}},
	}
	if wps.Enabled() {
		ls = append(ls, wpsElement(wps))
	}
	ls = append(ls, supportedRates())
	return serialize(ls...)
}

// ProbeRequest builds a directed probe request from station for essid
func ProbeRequest(station net.HardwareAddr, essid string) []byte {
	return serialize(
		&layers.Dot11{Type: layers.Dot11TypeMgmtProbeReq, Address1: broadcast, Address2: station, Address3: broadcast},
		&layers.Dot11InformationElement{ID: layers.Dot11InformationElementIDSSID, Info: []byte(essid)},
		supportedRates(),
	)
}

// EAPOLKey builds message msg (1-4) of a WPA2 4-way handshake
func EAPOLKey(bssid, station net.HardwareAddr, msg int) []byte {
	key := &layers.EAPOLKey{
		KeyDescriptorType:    layers.EAPOLKeyDescriptorTypeDot11,
		KeyDescriptorVersion: layers.EAPOLKeyDescriptorVersionAESHMACSHA1,
		KeyType:              layers.EAPOLKeyTypePairwise,
		KeyLength:            16,
		ReplayCounter:        1,
		Nonce:                make([]byte, 32),
		IV:                   make([]byte, 16),
		MIC:                  make([]byte, 16),
	}
	binary.BigEndian.PutUint32(key.Nonce, uint32(msg))

	dot11 := &layers.Dot11{Type: layers.Dot11TypeData, Address3: bssid}
	switch msg {
	case 1:
		key.KeyACK = true
	case 2:
		key.KeyMIC = true
	case 3:
		key.KeyACK, key.KeyMIC, key.Secure, key.Install = true, true, true, true
	case 4:
		key.KeyMIC, key.Secure = true, true
	default:
		panic("handshake message must be 1-4")
	}
	if msg%2 == 1 {
		dot11.Flags = layers.Dot11FlagsFromDS
		dot11.Address1, dot11.Address2 = station, bssid
	} else {
		dot11.Flags = layers.Dot11FlagsToDS
		dot11.Address1, dot11.Address2 = bssid, station
	}

	return serialize(
		dot11,
		&layers.LLC{DSAP: 0xaa, SSAP: 0xaa, Control: 0x03},
		&layers.SNAP{OrganizationalCode: []byte{0, 0, 0}, Type: layers.EthernetTypeEAPOL},
		&layers.EAPOL{Version: 1, Type: layers.EAPOLTypeKey, Length: 95},
		key,
	)
}

// Handshake returns all four handshake messages in order
func Handshake(bssid, station net.HardwareAddr) [][]byte {
	frames := make([][]byte, 0, 4)
	for msg := 1; msg <= 4; msg++ {
		frames = append(frames, EAPOLKey(bssid, station, msg))
	}
	return frames
}

// WriteFile writes frames to a raw 802.11 pcap file
func WriteFile(path string, frames ...[]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeIEEE802_11); err != nil {
		return err
	}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{Timestamp: ts.Add(time.Duration(i) * time.Millisecond), CaptureLength: len(frame), Length: len(frame)}
		if err := w.WritePacket(ci, frame); err != nil {
			return err
		}
	}
	return nil
}

// WriteNgFile writes frames to a raw 802.11 pcapng file
func WriteNgFile(path string, frames ...[]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeIEEE802_11)
	if err != nil {
		return err
	}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{Timestamp: ts.Add(time.Duration(i) * time.Millisecond), CaptureLength: len(frame), Length: len(frame), InterfaceIndex: 0}
		if err := w.WritePacket(ci, frame); err != nil {
			return err
		}
	}
	return w.Flush()
}
