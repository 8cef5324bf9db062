package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/fingerprint"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/pcap"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/process"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/results"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
)

const (
	appName    = "wifi-auditor"
	appVersion = "2.0.0"
)

var log = logrus.New()

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		// Any tool still running must not outlive us
		process.DefaultTracker.CleanupAll(config.DefaultConfig().InterruptGrace)
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        appName,
		Usage:       "Automated wireless network auditor (WPS, PMKID and WPA handshake attacks)",
		Version:     appVersion,
		HideVersion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (YAML, or JSON by extension)",
			},
			&cli.StringFlag{
				Name:    "interface",
				Aliases: []string{"i"},
				Usage:   "Wireless interface in monitor mode",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log every executed command",
			},
			&cli.BoolFlag{
				Name:  "version",
				Usage: "Print version information",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"WIFI_AUDITOR_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:  "oui-dir",
				Value: filepath.Join("data", "fingerprint"),
				Usage: "Directory holding the downloaded MAC vendor table",
			},
			&cli.StringFlag{
				Name:  "vendor-rules",
				Usage: "JSON `FILE` with extra ESSID vendor rules",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("version") {
				fmt.Printf("%s v%s\n", appName, appVersion)
				os.Exit(0)
			}

			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				level = logrus.InfoLevel
			}
			if c.Bool("verbose") && level < logrus.DebugLevel {
				level = logrus.DebugLevel
			}
			log.SetLevel(level)

			log.SetFormatter(&logrus.TextFormatter{
				FullTimestamp:   true,
				TimestampFormat: "2006-01-02 15:04:05",
			})
			return nil
		},
		Commands: []*cli.Command{
			commandAttack(),
			commandScan(),
			commandCracked(),
			commandCheck(),
			commandDeps(),
			commandServe(),
			commandUpdateOUI(),
		},
	}
}

// configFlags override values from the configuration file
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "channel", Usage: "Only scan this channel (0 hops)"},
		&cli.BoolFlag{Name: "5ghz", Usage: "Hop 5GHz channels"},
		&cli.StringFlag{Name: "bssid", Aliases: []string{"b"}, Usage: "Only attack this access point"},
		&cli.StringFlag{Name: "essid", Aliases: []string{"e"}, Usage: "Only attack networks with this name"},
		&cli.StringFlag{Name: "ignore-essid", Usage: "Skip networks whose name contains this text"},
		&cli.BoolFlag{Name: "clients-only", Usage: "Only attack networks with associated clients"},
		&cli.DurationFlag{Name: "scan-time", Usage: "How long to scan before attacking (0 scans until Ctrl+C)"},
		&cli.StringFlag{Name: "wordlist", Aliases: []string{"w"}, Usage: "Wordlist for cracking captured handshakes"},
		&cli.StringFlag{Name: "cracker", Usage: "Handshake cracker: aircrack or hashcat"},
		&cli.BoolFlag{Name: "pmkid-only", Usage: "Only use PMKID capture"},
		&cli.BoolFlag{Name: "wps-only", Usage: "Only use WPS attacks"},
		&cli.BoolFlag{Name: "no-wps", Usage: "Never use WPS attacks"},
		&cli.BoolFlag{Name: "no-pixie", Usage: "Skip the Pixie-Dust attack"},
		&cli.BoolFlag{Name: "pixie-only", Usage: "Use only the Pixie-Dust WPS attacks"},
		&cli.BoolFlag{Name: "bully", Usage: "Prefer bully over reaver for WPS"},
		&cli.BoolFlag{Name: "new-handshakes", Usage: "Ignore previously captured handshakes and PMKIDs"},
		&cli.BoolFlag{Name: "sequential", Usage: "Run one technique at a time instead of racing compatible captures"},
		&cli.BoolFlag{Name: "no-deauth", Usage: "Never send deauthentication frames"},
		&cli.DurationFlag{Name: "wpa-timeout", Usage: "Time to wait for a WPA handshake"},
		&cli.DurationFlag{Name: "pmkid-timeout", Usage: "Time to wait for a PMKID"},
		&cli.StringFlag{Name: "listen", Usage: "Serve the status API on `ADDR`"},
	}
}

// loadConfig builds the configuration from defaults, the config file and
// the command line, in that order, then validates it
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadConfigFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	applyFlags(c, &cfg)
	cfg = cfg.Resolve(process.Exists, fileExists)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	stringFlags := map[string]*string{
		"interface":    &cfg.Interface,
		"bssid":        &cfg.TargetBSSID,
		"essid":        &cfg.TargetESSID,
		"ignore-essid": &cfg.IgnoreESSID,
		"wordlist":     &cfg.Wordlist,
		"cracker":      &cfg.Cracker,
		"listen":       &cfg.ListenAddr,
	}
	for name, dst := range stringFlags {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}

	boolFlags := map[string]*bool{
		"verbose":        &cfg.Verbose,
		"5ghz":           &cfg.FiveGHz,
		"clients-only":   &cfg.ClientsOnly,
		"pmkid-only":     &cfg.PMKIDOnly,
		"wps-only":       &cfg.WPSOnly,
		"no-wps":         &cfg.NoWPS,
		"no-pixie":       &cfg.NoPixie,
		"pixie-only":     &cfg.WPSPixieOnly,
		"bully":          &cfg.UseBully,
		"new-handshakes": &cfg.IgnoreOldHandshakes,
		"no-deauth":      &cfg.NoDeauth,
	}
	for name, dst := range boolFlags {
		if c.IsSet(name) {
			*dst = c.Bool(name)
		}
	}

	durationFlags := map[string]*time.Duration{
		"scan-time":     &cfg.ScanTime,
		"wpa-timeout":   &cfg.WPAAttackTimeout,
		"pmkid-timeout": &cfg.PMKIDTimeout,
	}
	for name, dst := range durationFlags {
		if c.IsSet(name) {
			*dst = c.Duration(name)
		}
	}

	if c.IsSet("sequential") {
		cfg.ParallelAttacks = !c.Bool("sequential")
	}
	if c.IsSet("channel") {
		cfg.Channel = c.Int("channel")
	}
}

// ensureDirectories creates the directories the configuration points at
func ensureDirectories(cfg config.Config) error {
	dirs := []string{cfg.TempDir, cfg.HandshakeDir}
	if cfg.CrackedFile != "" {
		dirs = append(dirs, filepath.Dir(cfg.CrackedFile))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// newVendors builds the BSSID/ESSID vendor fingerprinter
func newVendors(c *cli.Context) (*fingerprint.Fingerprinter, error) {
	macs, err := fingerprint.NewMacVendorDB(c.String("oui-dir"), log)
	if err != nil {
		return nil, err
	}
	return fingerprint.NewFingerprinter(macs, c.String("vendor-rules"))
}

// commandCracked returns the cracked command configuration
func commandCracked() *cli.Command {
	return &cli.Command{
		Name:  "cracked",
		Usage: "Show stored results",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bssid", Aliases: []string{"b"}, Usage: "Only show results for this access point"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			store := results.NewStore(cfg.CrackedFile, log)

			var stored []models.CrackResult
			if bssid := c.String("bssid"); bssid != "" {
				stored, err = store.ForBSSID(bssid)
			} else {
				stored, err = store.Load()
			}
			if err != nil {
				return err
			}
			if len(stored) == 0 {
				color.Yellow("No results in %s", store.Path())
				return nil
			}

			color.Green("%d result(s) in %s", len(stored), store.Path())
			fmt.Printf("%-6s %-24s %-17s %-20s %s\n", "TYPE", "ESSID", "BSSID", "DATE", "KEY")
			for _, r := range stored {
				key := color.YellowString("not cracked")
				if r.Cracked() {
					key = color.GreenString(*r.Key)
				}
				if r.PIN != "" {
					key += fmt.Sprintf(" (PIN %s)", r.PIN)
				}
				fmt.Printf("%-6s %-24s %-17s %-20s %s\n", r.Type, truncate(r.ESSID, 24), r.BSSID, r.Date.Format("2006-01-02 15:04:05"), key)
			}
			return nil
		},
	}
}

// commandCheck returns the check command configuration
func commandCheck() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Inspect a capture file for complete handshakes",
		ArgsUsage: "CAPTURE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bssid", Aliases: []string{"b"}, Usage: "Only report this access point"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("a capture file is required")
			}
			if !fileExists(path) {
				return fmt.Errorf("capture file %s does not exist", path)
			}

			summary, err := pcap.NewAnalyzer(log).AnalyzeFile(path)
			if err != nil {
				return fmt.Errorf("failed to analyze %s: %w", path, err)
			}
			color.Green("%s: %d packets, %d access points announced", path, summary.Packets, len(summary.Beacons))

			bssids := summary.HandshakeBSSIDs()
			if bssid := c.String("bssid"); bssid != "" {
				bssids = nil
				if summary.HasHandshake(bssid) {
					bssids = []string{models.NormalizeMAC(bssid)}
				}
			}
			if len(bssids) == 0 {
				color.Red("No complete handshake found")
				return nil
			}
			for _, b := range bssids {
				essid := summary.Beacons[b].ESSID
				if essid == "" {
					essid = "<hidden>"
				}
				color.Green("Handshake found: %s (%s)", b, essid)
			}
			return nil
		},
	}
}

// commandDeps returns the deps command configuration
func commandDeps() *cli.Command {
	return &cli.Command{
		Name:  "deps",
		Usage: "Report which external tools are installed",
		Action: func(c *cli.Context) error {
			statuses := tools.Check()
			for _, s := range statuses {
				switch {
				case s.Installed:
					color.Green("  [+] %-14s %s", s.Name, s.Path)
				case s.Required:
					color.Red("  [!] %-14s missing (required for %s) %s", s.Name, s.Purpose, s.URL)
				default:
					color.Yellow("  [-] %-14s missing (optional, %s) %s", s.Name, s.Purpose, s.URL)
				}
			}
			if missing := tools.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("%w: %s", tools.ErrMissingTool, strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

// commandUpdateOUI returns the update-oui command configuration
func commandUpdateOUI() *cli.Command {
	return &cli.Command{
		Name:  "update-oui",
		Usage: "Download the IEEE MAC vendor table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: fingerprint.MacVendorDBURL, Usage: "Source of the OUI CSV"},
			&cli.BoolFlag{Name: "force", Usage: "Download even if the local table is recent"},
		},
		Action: func(c *cli.Context) error {
			db, err := fingerprint.NewMacVendorDB(c.String("oui-dir"), log)
			if err != nil {
				return err
			}
			if !c.Bool("force") && !db.NeedsUpdate() {
				color.Green("Vendor table is up to date (%d prefixes)", db.Count())
				return nil
			}
			color.Yellow("Downloading %s", c.String("url"))
			if err := db.Update(c.Context, c.String("url")); err != nil {
				return fmt.Errorf("failed to update vendor table: %w", err)
			}
			color.Green("Vendor table updated (%d prefixes)", db.Count())
			return nil
		},
	}
}

// fileExists checks if a file exists
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
