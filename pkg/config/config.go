package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Crackers supported for handshake cracking
const (
	CrackerAircrack = "aircrack"
	CrackerHashcat  = "hashcat"
)

// Config holds the attack configuration. It is built once at startup and
// passed by value into every component.
type Config struct {
	Interface    string `yaml:"interface" json:"interface"`         // Monitor-mode wireless interface
	TempDir      string `yaml:"temp_dir" json:"temp_dir"`           // Scratch directory for capture files
	HandshakeDir string `yaml:"handshake_dir" json:"handshake_dir"` // Where captured artifacts are preserved
	CrackedFile  string `yaml:"cracked_file" json:"cracked_file"`   // Results store
	Wordlist     string `yaml:"wordlist" json:"wordlist"`           // Empty disables cracking
	Cracker      string `yaml:"cracker" json:"cracker"`             // aircrack or hashcat
	Verbose      bool   `yaml:"verbose" json:"verbose"`

	// Target selection
	Channel     int           `yaml:"channel" json:"channel"` // 0 hops all channels
	FiveGHz     bool          `yaml:"five_ghz" json:"five_ghz"`
	TargetBSSID string        `yaml:"target_bssid" json:"target_bssid"`
	TargetESSID string        `yaml:"target_essid" json:"target_essid"`
	IgnoreESSID string        `yaml:"ignore_essid" json:"ignore_essid"`
	ClientsOnly bool          `yaml:"clients_only" json:"clients_only"`
	ScanTime    time.Duration `yaml:"scan_time" json:"scan_time"` // Scan duration before attacking

	// Attack policy
	PMKIDOnly           bool `yaml:"pmkid_only" json:"pmkid_only"`
	WPSOnly             bool `yaml:"wps_only" json:"wps_only"`
	NoWPS               bool `yaml:"no_wps" json:"no_wps"`
	NoPixie             bool `yaml:"no_pixie" json:"no_pixie"`
	WPSPixieOnly        bool `yaml:"wps_pixie_only" json:"wps_pixie_only"`
	UseBully            bool `yaml:"use_bully" json:"use_bully"`
	IgnoreOldHandshakes bool `yaml:"ignore_old_handshakes" json:"ignore_old_handshakes"`
	ParallelAttacks     bool `yaml:"parallel_attacks" json:"parallel_attacks"` // Race compatible capture techniques; off runs the plan one at a time

	// Handshake capture
	NoDeauth          bool          `yaml:"no_deauth" json:"no_deauth"`
	NumDeauths        int           `yaml:"num_deauths" json:"num_deauths"`               // Frames per aireplay-ng invocation
	BroadcastDeauths  int           `yaml:"broadcast_deauths" json:"broadcast_deauths"`   // Broadcast repetitions per burst
	ClientDeauths     int           `yaml:"client_deauths" json:"client_deauths"`         // Repetitions per client per burst
	DeauthFrameDelay  time.Duration `yaml:"deauth_frame_delay" json:"deauth_frame_delay"` // Pause between repetitions
	WPAAttackTimeout  time.Duration `yaml:"wpa_attack_timeout" json:"wpa_attack_timeout"`
	WPADeauthInterval time.Duration `yaml:"wpa_deauth_interval" json:"wpa_deauth_interval"`
	TargetWait        time.Duration `yaml:"target_wait" json:"target_wait"`
	Tick              time.Duration `yaml:"tick" json:"tick"`
	ClientPollTicks   int           `yaml:"client_poll_ticks" json:"client_poll_ticks"`

	// Other techniques
	PMKIDTimeout    time.Duration `yaml:"pmkid_timeout" json:"pmkid_timeout"`
	WPSPixieTimeout time.Duration `yaml:"wps_pixie_timeout" json:"wps_pixie_timeout"`
	WPSPINTimeout   time.Duration `yaml:"wps_pin_timeout" json:"wps_pin_timeout"`
	CrackTimeout    time.Duration `yaml:"crack_timeout" json:"crack_timeout"`

	// Parallel groups and process teardown
	ParallelGroupTimeout time.Duration `yaml:"parallel_group_timeout" json:"parallel_group_timeout"`
	ParallelGrace        time.Duration `yaml:"parallel_grace" json:"parallel_grace"`
	InterruptGrace       time.Duration `yaml:"interrupt_grace" json:"interrupt_grace"`

	// Status API
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"` // Empty disables the API
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	tmp := filepath.Join(os.TempDir(), "wifi-auditor")
	return Config{
		TempDir:      tmp,
		HandshakeDir: "hs",
		CrackedFile:  filepath.Join("cracked", "cracked.json"),
		Cracker:      CrackerAircrack,
		ScanTime:     30 * time.Second,

		ParallelAttacks: true,

		NumDeauths:        1,
		BroadcastDeauths:  3,
		ClientDeauths:     2,
		DeauthFrameDelay:  100 * time.Millisecond,
		WPAAttackTimeout:  500 * time.Second,
		WPADeauthInterval: 15 * time.Second,
		TargetWait:        60 * time.Second,
		Tick:              time.Second,
		ClientPollTicks:   3,

		PMKIDTimeout:    300 * time.Second,
		WPSPixieTimeout: 300 * time.Second,
		WPSPINTimeout:   1800 * time.Second,
		CrackTimeout:    30 * time.Minute,

		ParallelGroupTimeout: 5 * time.Minute,
		ParallelGrace:        time.Second,
		InterruptGrace:       2 * time.Second,
	}
}

// LoadConfigFromFile loads configuration from a YAML or JSON file. Fields
// missing from the file keep their default values.
func LoadConfigFromFile(filePath string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return cfg, err
	}

	if strings.EqualFold(filepath.Ext(filePath), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	return cfg, nil
}

// Validate rejects non-positive timeouts and contradictory policy flags.
// It must run before any external process is started.
func (c Config) Validate() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"wpa_attack_timeout", c.WPAAttackTimeout},
		{"wpa_deauth_interval", c.WPADeauthInterval},
		{"target_wait", c.TargetWait},
		{"tick", c.Tick},
		{"pmkid_timeout", c.PMKIDTimeout},
		{"wps_pixie_timeout", c.WPSPixieTimeout},
		{"wps_pin_timeout", c.WPSPINTimeout},
		{"parallel_group_timeout", c.ParallelGroupTimeout},
		{"interrupt_grace", c.InterruptGrace},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, d.name, d.value)
		}
	}

	if c.ParallelGrace < 0 || c.DeauthFrameDelay < 0 || c.ScanTime < 0 || c.CrackTimeout < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if c.ClientPollTicks <= 0 {
		return fmt.Errorf("%w: client_poll_ticks must be positive", ErrInvalidConfig)
	}
	if c.NumDeauths <= 0 || c.BroadcastDeauths < 0 || c.ClientDeauths < 0 {
		return fmt.Errorf("%w: deauth counts must not be negative and num_deauths must be positive", ErrInvalidConfig)
	}
	if c.Channel < 0 {
		return fmt.Errorf("%w: channel %d", ErrInvalidConfig, c.Channel)
	}

	switch {
	case c.PMKIDOnly && c.WPSOnly:
		return fmt.Errorf("%w: pmkid_only and wps_only are mutually exclusive", ErrInvalidConfig)
	case c.WPSOnly && c.NoWPS:
		return fmt.Errorf("%w: wps_only and no_wps are mutually exclusive", ErrInvalidConfig)
	case c.WPSPixieOnly && c.NoWPS:
		return fmt.Errorf("%w: wps_pixie_only requires WPS", ErrInvalidConfig)
	case c.WPSPixieOnly && c.NoPixie:
		return fmt.Errorf("%w: wps_pixie_only and no_pixie are mutually exclusive", ErrInvalidConfig)
	}

	if c.Cracker != CrackerAircrack && c.Cracker != CrackerHashcat {
		return fmt.Errorf("%w: unknown cracker %q", ErrInvalidConfig, c.Cracker)
	}
	return nil
}

// wordlistCandidates are checked in order when no wordlist was configured
var wordlistCandidates = []string{
	"/usr/share/dict/wordlist-probable.txt",
	"/usr/share/wordlists/rockyou.txt",
	"/usr/share/wordlists/fern-wifi/common.txt",
	"/usr/share/wfuzz/wordlist/fuzzdb/wordlists-user-passwd/passwds/phpbb.txt",
}

// Resolve fills the fields that are detected once at startup: the wordlist
// path and the preferred cracker. toolExists reports whether an executable
// is available, fileExists whether a path exists.
func (c Config) Resolve(toolExists, fileExists func(string) bool) Config {
	if c.Wordlist == "" {
		for _, path := range wordlistCandidates {
			if fileExists(path) {
				c.Wordlist = path
				break
			}
		}
	}
	if c.Cracker == "" {
		c.Cracker = CrackerAircrack
	}
	if c.Cracker == CrackerAircrack && !toolExists("aircrack-ng") && toolExists("hashcat") {
		c.Cracker = CrackerHashcat
	}
	return c
}
