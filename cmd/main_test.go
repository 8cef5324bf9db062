package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/pcap/pcaptest"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools/toolstest"
)

// runLoadConfig runs the app with an extra command that captures the loaded
// configuration
func runLoadConfig(t *testing.T, args ...string) (config.Config, error) {
	var cfg config.Config
	app := newApp()
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "show-config",
		Flags: configFlags(),
		Action: func(c *cli.Context) error {
			var err error
			cfg, err = loadConfig(c)
			return err
		},
	})
	err := app.Run(append([]string{appName}, args...))
	return cfg, err
}

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auditor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interface: wlan1mon\npmkid_timeout: 2m\nchannel: 11\n"), 0644))

	cfg, err := runLoadConfig(t, "--config", path, "--interface", "wlan0mon", "show-config",
		"--pmkid-only", "--scan-time", "5s", "--wordlist", "/tmp/words.txt")
	require.NoError(t, err)

	assert.Equal(t, "wlan0mon", cfg.Interface, "flags win over the file")
	assert.Equal(t, 2*time.Minute, cfg.PMKIDTimeout, "file values survive")
	assert.Equal(t, 11, cfg.Channel)
	assert.True(t, cfg.PMKIDOnly)
	assert.Equal(t, 5*time.Second, cfg.ScanTime)
	assert.Equal(t, "/tmp/words.txt", cfg.Wordlist)
	assert.Equal(t, config.DefaultConfig().WPAAttackTimeout, cfg.WPAAttackTimeout, "defaults fill the rest")
}

func TestLoadConfigRejectsContradictions(t *testing.T) {
	_, err := runLoadConfig(t, "show-config", "--pmkid-only", "--wps-only")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSequentialFlag(t *testing.T) {
	cfg, err := runLoadConfig(t, "show-config")
	require.NoError(t, err)
	assert.True(t, cfg.ParallelAttacks, "parallel by default")

	cfg, err = runLoadConfig(t, "show-config", "--sequential")
	require.NoError(t, err)
	assert.False(t, cfg.ParallelAttacks)

	path := filepath.Join(t.TempDir(), "auditor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parallel_attacks: false\n"), 0644))
	cfg, err = runLoadConfig(t, "--config", path, "show-config")
	require.NoError(t, err)
	assert.False(t, cfg.ParallelAttacks, "the file can opt out too")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := runLoadConfig(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "show-config")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDepsReportsMissingTools(t *testing.T) {
	toolstest.NewIsolatedBin(t)
	err := newApp().Run([]string{appName, "deps"})
	assert.ErrorIs(t, err, tools.ErrMissingTool)
}

func TestAttackRequiresInterface(t *testing.T) {
	err := newApp().Run([]string{appName, "attack"})
	assert.ErrorContains(t, err, "--interface")
}

func TestCheckCommand(t *testing.T) {
	const bssid = "AA:BB:CC:DD:EE:FF"
	ap, station := pcaptest.MustMAC(bssid), pcaptest.MustMAC("11:22:33:44:55:66")
	frames := append([][]byte{pcaptest.Beacon(ap, "home", 6, models.WPSNone)}, pcaptest.Handshake(ap, station)...)
	capture := filepath.Join(t.TempDir(), "home.cap")
	require.NoError(t, pcaptest.WriteFile(capture, frames...))

	assert.NoError(t, newApp().Run([]string{appName, "check", capture}))
	assert.NoError(t, newApp().Run([]string{appName, "check", "--bssid", "aa-bb-cc-dd-ee-ff", capture}))
	assert.Error(t, newApp().Run([]string{appName, "check", filepath.Join(t.TempDir(), "missing.cap")}))
	assert.Error(t, newApp().Run([]string{appName, "check"}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "home", truncate("home", 24))
	assert.Equal(t, "abc…", truncate("abcdef", 4))
}
