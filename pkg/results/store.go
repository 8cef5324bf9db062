// Package results persists cracked networks and names the artifacts that
// attacks leave behind.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

// Store is a JSON file of CrackResults
type Store struct {
	path   string
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewStore creates a store backed by path. The file is created on the first
// Save.
func NewStore(path string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Load reads every stored result. A missing file is an empty store.
func (s *Store) Load() ([]models.CrackResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]models.CrackResult, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var results []models.CrackResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return results, nil
}

// Save appends r unless an identical result (same network, type and key)
// is already stored. It reports whether r was written.
func (s *Store) Save(r models.CrackResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return false, err
	}
	for _, e := range existing {
		if sameResult(e, r) {
			s.logger.WithField("bssid", r.BSSID).Debug("Result already stored")
			return false, nil
		}
	}
	existing = append(existing, r)

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, err
		}
	}
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return false, err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return false, err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return false, err
	}
	s.logger.WithFields(logrus.Fields{"bssid": r.BSSID, "type": r.Type}).Infof("Saved result to %s", s.path)
	return true, nil
}

// ForBSSID returns the stored results for one access point, newest first
func (s *Store) ForBSSID(bssid string) ([]models.CrackResult, error) {
	all, err := s.Load()
	if err != nil {
		return nil, err
	}
	var out []models.CrackResult
	for _, r := range all {
		if strings.EqualFold(r.BSSID, bssid) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func sameResult(a, b models.CrackResult) bool {
	if !strings.EqualFold(a.BSSID, b.BSSID) || a.ESSID != b.ESSID || a.Type != b.Type {
		return false
	}
	switch {
	case a.Key == nil && b.Key == nil:
		return a.File == b.File && a.PIN == b.PIN
	case a.Key != nil && b.Key != nil:
		return *a.Key == *b.Key
	}
	return false
}
