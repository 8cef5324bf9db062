package airodump

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/config"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/pcap/pcaptest"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/tools/toolstest"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func testConfig(t *testing.T) config.Config {
	cfg := config.DefaultConfig()
	cfg.Interface = "wlan0mon"
	cfg.TempDir = t.TempDir()
	cfg.Tick = 20 * time.Millisecond
	cfg.InterruptGrace = 500 * time.Millisecond
	return cfg
}

type recordingDeauther struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingDeauther) Deauth(ctx context.Context, bssid, essid, client string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, bssid+"/"+client)
	return nil
}

func (r *recordingDeauther) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// installAirodump installs a fake airodump-ng that writes csv and, when set,
// a capture file under the -w prefix and then keeps running
func installAirodump(t *testing.T, csv string, frames ...[]byte) *toolstest.Bin {
	t.Helper()
	bin := toolstest.NewBin(t)
	fixtures := t.TempDir()

	csvPath := filepath.Join(fixtures, "snapshot.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0644))
	script := `cp "` + csvPath + `" "$3-01.csv"` + "\n"
	if len(frames) > 0 {
		capPath := filepath.Join(fixtures, "snapshot.cap")
		require.NoError(t, pcaptest.WriteFile(capPath, frames...))
		script += `cp "` + capPath + `" "$3-01.cap"` + "\n"
	}
	bin.RecordArgs("airodump-ng", script+"exec sleep 30")
	return bin
}

func TestSessionArgs(t *testing.T) {
	cfg := testConfig(t)
	prefix := filepath.Join(cfg.TempDir, "scan")

	s := NewSession(cfg, SessionOptions{Prefix: "scan"}, SessionDeps{})
	assert.Equal(t, []string{"wlan0mon", "-w", prefix, "--write-interval", "1", "--output-format", "pcap,csv"}, s.Args())

	s = NewSession(cfg, SessionOptions{Prefix: "scan", FiveGHz: true}, SessionDeps{})
	assert.Equal(t, []string{"wlan0mon", "-w", prefix, "--write-interval", "1", "--band", "a", "--output-format", "pcap,csv"}, s.Args())

	s = NewSession(cfg, SessionOptions{Prefix: "scan", Channel: 6, FiveGHz: true, BSSID: "AA:BB:CC:DD:EE:FF"}, SessionDeps{})
	assert.Equal(t, []string{"wlan0mon", "-w", prefix, "--write-interval", "1", "-c", "6", "--bssid", "AA:BB:CC:DD:EE:FF", "--output-format", "pcap,csv"}, s.Args())
}

func TestSessionLifecycle(t *testing.T) {
	csv := snapshot([]string{apRow("AA:BB:CC:00:00:01", "6", "WPA2", "-60", "4", "home")}, nil)
	bssid := pcaptest.MustMAC("AA:BB:CC:00:00:01")
	installAirodump(t, csv, pcaptest.Beacon(bssid, "home", 6, models.WPSLocked))

	cfg := testConfig(t)
	stale := filepath.Join(cfg.TempDir, "scan-05.csv")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))
	unrelated := filepath.Join(cfg.TempDir, "other-01.csv")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0644))

	s := NewSession(cfg, SessionOptions{Prefix: "scan"}, SessionDeps{Logger: quietLogger()})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.NoFileExists(t, stale)
	assert.True(t, s.Running())
	assert.Error(t, s.Start(context.Background()), "a session starts once")

	var targets []models.Target
	require.Eventually(t, func() bool {
		var err error
		targets, err = s.Targets()
		return err == nil && len(targets) == 1 && targets[0].WPS != models.WPSUnknown
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "home", targets[0].ESSID)
	assert.Equal(t, models.WPSLocked, targets[0].WPS)
	assert.Equal(t, targets, s.Last())

	caps, err := s.CaptureFiles()
	require.NoError(t, err)
	require.Len(t, caps, 1)
	assert.Equal(t, filepath.Join(cfg.TempDir, "scan-01.cap"), caps[0])

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
	assert.NoFileExists(t, caps[0])
	assert.FileExists(t, unrelated)
	require.NoError(t, s.Stop(), "stop is idempotent")
}

func TestSessionKeepFiles(t *testing.T) {
	installAirodump(t, snapshot(nil, nil))
	cfg := testConfig(t)

	s := NewSession(cfg, SessionOptions{Prefix: "keep", KeepFiles: true}, SessionDeps{Logger: quietLogger()})
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		files, _ := s.FindFiles(".csv")
		return len(files) == 1
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.FileExists(t, filepath.Join(cfg.TempDir, "keep-01.csv"))
}

func TestSessionStartMissingTool(t *testing.T) {
	toolstest.NewIsolatedBin(t)
	s := NewSession(testConfig(t), SessionOptions{}, SessionDeps{Logger: quietLogger()})
	assert.ErrorIs(t, s.Start(context.Background()), tools.ErrMissingTool)
}

func TestSessionTargetsWithoutSnapshot(t *testing.T) {
	s := NewSession(testConfig(t), SessionOptions{}, SessionDeps{Logger: quietLogger()})
	_, err := s.Targets()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func hiddenSnapshot() string {
	return snapshot(
		[]string{apRow("AA:BB:CC:00:00:01", "6", "WPA2", "-60", "4", "")},
		[]string{stationRow("11:22:33:44:55:01", "-40", "9", "AA:BB:CC:00:00:01")},
	)
}

func TestHiddenTargetsAreDeauthed(t *testing.T) {
	installAirodump(t, hiddenSnapshot())
	deauther := &recordingDeauther{}

	s := NewSession(testConfig(t), SessionOptions{Prefix: "hidden", Channel: 6}, SessionDeps{
		Deauther: deauther,
		Logger:   quietLogger(),
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		_, err := s.Targets()
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	// a second snapshot inside the interval sends nothing new
	_, err := s.Targets()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(deauther.Calls()) == 2 }, 5*time.Second, 10*time.Millisecond)

	s.mu.Lock()
	s.now = func() time.Time { return time.Now().Add(HiddenDeauthInterval + time.Second) }
	s.mu.Unlock()

	_, err = s.Targets()
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	assert.Equal(t, []string{
		"AA:BB:CC:00:00:01/",
		"AA:BB:CC:00:00:01/11:22:33:44:55:01",
		"AA:BB:CC:00:00:01/",
		"AA:BB:CC:00:00:01/11:22:33:44:55:01",
	}, deauther.Calls())
}

func TestHiddenTargetsNotDeauthedWhileHopping(t *testing.T) {
	installAirodump(t, hiddenSnapshot())
	deauther := &recordingDeauther{}

	cfg := testConfig(t)
	s := NewSession(cfg, SessionOptions{Prefix: "hop"}, SessionDeps{Deauther: deauther, Logger: quietLogger()})
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		_, err := s.Targets()
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.Empty(t, deauther.Calls())

	cfg.NoDeauth = true
	s = NewSession(cfg, SessionOptions{Prefix: "nodeauth", Channel: 6}, SessionDeps{Deauther: deauther, Logger: quietLogger()})
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		_, err := s.Targets()
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.Empty(t, deauther.Calls())
}

func TestScan(t *testing.T) {
	csv := snapshot([]string{
		apRow("AA:BB:CC:00:00:01", "6", "WPA2", "-60", "4", "home"),
		apRow("AA:BB:CC:00:00:02", "6", "OPN", "-50", "4", "cafe"),
	}, nil)
	installAirodump(t, csv)

	cfg := testConfig(t)
	s := NewSession(cfg, SessionOptions{Prefix: "scan"}, SessionDeps{Logger: quietLogger()})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	updates := 0
	targets, err := Scan(context.Background(), s, cfg, 500*time.Millisecond, func([]models.Target) { updates++ })
	require.NoError(t, err)
	assert.Positive(t, updates)
	require.Len(t, targets, 1, "open network without WPS is filtered")
	assert.Equal(t, "home", targets[0].ESSID)
}

func TestScanCancelled(t *testing.T) {
	installAirodump(t, snapshot(nil, nil))
	cfg := testConfig(t)
	s := NewSession(cfg, SessionOptions{Prefix: "scan"}, SessionDeps{Logger: quietLogger()})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Scan(ctx, s, cfg, time.Minute, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
