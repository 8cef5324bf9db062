package results

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

var when = time.Date(2024, 5, 27, 19, 28, 43, 0, time.UTC)

func TestArtifactNames(t *testing.T) {
	assert.Equal(t, "handshake_HomeNet5G_AA-BB-CC-DD-EE-FF_2024-05-27T19-28-43.cap",
		HandshakeName("Home-Net 5G!", "aa:bb:cc:dd:ee:ff", when))
	assert.Equal(t, "pmkid_UnknownEssid_AA-BB-CC-DD-EE-FF_2024-05-27T19-28-43.16800",
		PMKIDName("", "AA:BB:CC:DD:EE:FF", when))
	assert.Equal(t, UnknownESSID, SafeESSID("---"))
}

func TestFindHandshake(t *testing.T) {
	dir := t.TempDir()

	_, ok := FindHandshake(dir, "home", "AA:BB:CC:DD:EE:FF")
	assert.False(t, ok)

	src := filepath.Join(t.TempDir(), "capture.cap")
	require.NoError(t, os.WriteFile(src, []byte("capture"), 0644))
	saved, err := PreserveHandshake(src, dir, "home", "AA:BB:CC:DD:EE:FF", when)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "handshake_home_AA-BB-CC-DD-EE-00_2024-05-27T19-28-43.cap"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "handshake_home_AA-BB-CC-DD-EE-FF_garbage.cap"), nil, 0644))

	found, ok := FindHandshake(dir, "home", "AA:BB:CC:DD:EE:FF")
	require.True(t, ok)
	assert.Equal(t, saved, found)

	found, ok = FindHandshake(dir, "", "aa:bb:cc:dd:ee:ff")
	require.True(t, ok, "unknown ESSID matches any name")
	assert.Equal(t, saved, found)

	_, ok = FindHandshake(dir, "office", "AA:BB:CC:DD:EE:FF")
	assert.False(t, ok)

	data, err := os.ReadFile(found)
	require.NoError(t, err)
	assert.Equal(t, "capture", string(data))
}

func TestFindPMKID(t *testing.T) {
	dir := t.TempDir()
	line := "5b4c3e7d1a2f3b4c5d6e7f8091a2b3c4*aabbccddeeff*89acf0e761f4*686f6d65"

	path, err := PreservePMKID(line, dir, "home", "AA:BB:CC:DD:EE:FF", when)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pmkid_bad.16800"), []byte("nonsense"), 0644))

	found, got, ok := FindPMKID(dir, "AA:BB:CC:DD:EE:FF")
	require.True(t, ok)
	assert.Equal(t, path, found)
	assert.Equal(t, line, got)

	_, _, ok = FindPMKID(dir, "00:11:22:33:44:55")
	assert.False(t, ok)
}

func TestStoreSaveAndLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "cracked", "cracked.json"), quietLogger())

	results, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, results)

	first := models.CrackResult{Type: models.ResultWPA, BSSID: "AA:BB:CC:DD:EE:FF", ESSID: "home", File: "hs/a.cap", Date: when}
	saved, err := store.Save(first.WithKey("hunter22"))
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = store.Save(first.WithKey("hunter22"))
	require.NoError(t, err)
	assert.False(t, saved, "identical result is not stored twice")

	second := models.CrackResult{Type: models.ResultPMKID, BSSID: "AA:BB:CC:DD:EE:FF", ESSID: "home", File: "hs/b.16800", Date: when.Add(time.Hour)}
	saved, err = store.Save(second)
	require.NoError(t, err)
	assert.True(t, saved)

	results, err = store.Load()
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, results[0].Key)
	assert.Equal(t, "hunter22", *results[0].Key)
	assert.Nil(t, results[1].Key)

	mine, err := store.ForBSSID("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, models.ResultPMKID, mine[0].Type, "newest first")
}

func TestStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cracked.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewStore(path, quietLogger()).Load()
	assert.Error(t, err)
}
