package fingerprint

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MacVendorDBURL is the URL to download the latest MAC vendor database
	MacVendorDBURL = "https://standards-oui.ieee.org/oui/oui.csv"

	localDBFileName = "mac_vendors.csv"
	maxDBAge        = 30 * 24 * time.Hour
)

// builtinOUIs covers common consumer router vendors so that vendor lookup
// works without a downloaded database.
var builtinOUIs = map[string]string{
	// NETGEAR
	"00095B": "NETGEAR", "00146C": "NETGEAR", "001B2F": "NETGEAR", "001E2A": "NETGEAR",
	"001F33": "NETGEAR", "00223F": "NETGEAR", "0024B2": "NETGEAR", "204E7F": "NETGEAR",
	"A040A0": "NETGEAR", "C40415": "NETGEAR", "9C3DCF": "NETGEAR", "28C68E": "NETGEAR",
	// TP-Link
	"50C7BF": "TP-LINK TECHNOLOGIES CO.,LTD.", "14CC20": "TP-LINK TECHNOLOGIES CO.,LTD.",
	"647002": "TP-LINK TECHNOLOGIES CO.,LTD.", "F4F26D": "TP-LINK TECHNOLOGIES CO.,LTD.",
	"C04A00": "TP-LINK TECHNOLOGIES CO.,LTD.", "98DED0": "TP-LINK TECHNOLOGIES CO.,LTD.",
	"EC086B": "TP-LINK TECHNOLOGIES CO.,LTD.",
	// Linksys
	"0014BF": "Cisco-Linksys, LLC", "001839": "Cisco-Linksys, LLC", "001A70": "Cisco-Linksys, LLC",
	"001C10": "Cisco-Linksys, LLC", "001D7E": "Cisco-Linksys, LLC", "002129": "Cisco-Linksys, LLC",
	"00226B": "Cisco-Linksys, LLC", "00259C": "Cisco-Linksys, LLC", "C0C1C0": "Cisco-Linksys, LLC",
	"586D8F": "Cisco-Linksys, LLC",
	// D-Link
	"00055D": "D-Link Corporation", "000D88": "D-Link Corporation", "001195": "D-Link Corporation",
	"001346": "D-Link Corporation", "0015E9": "D-Link Corporation", "00179A": "D-Link Corporation",
	"00195B": "D-Link Corporation", "001B11": "D-Link Corporation", "001CF0": "D-Link Corporation",
	"001E58": "D-Link Corporation", "0022B0": "D-Link Corporation", "002401": "D-Link Corporation",
	"1C7EE5": "D-Link Corporation", "28107B": "D-Link Corporation", "C8BE19": "D-Link Corporation",
	"14D64D": "D-Link Corporation",
	// Belkin
	"001150": "Belkin International Inc.", "00173F": "Belkin International Inc.",
	"001CDF": "Belkin International Inc.", "08863B": "Belkin International Inc.",
	"94103E": "Belkin International Inc.", "EC1A59": "Belkin International Inc.",
	// ASUS
	"000C6E": "ASUSTek COMPUTER INC.", "00112F": "ASUSTek COMPUTER INC.", "0015F2": "ASUSTek COMPUTER INC.",
	"001731": "ASUSTek COMPUTER INC.", "001A92": "ASUSTek COMPUTER INC.", "001D60": "ASUSTek COMPUTER INC.",
	"001E8C": "ASUSTek COMPUTER INC.", "002215": "ASUSTek COMPUTER INC.", "00248C": "ASUSTek COMPUTER INC.",
	"04D4C4": "ASUSTek COMPUTER INC.", "08606E": "ASUSTek COMPUTER INC.", "107B44": "ASUSTek COMPUTER INC.",
	"2C56DC": "ASUSTek COMPUTER INC.", "50465D": "ASUSTek COMPUTER INC.", "AC220B": "ASUSTek COMPUTER INC.",
	"F832E4": "ASUSTek COMPUTER INC.",
}

// MacVendorDB maps MAC address prefixes to vendor names
type MacVendorDB struct {
	vendors     map[string]string // MAC prefix -> vendor name
	lastUpdated time.Time
	mutex       sync.RWMutex
	dbPath      string
	logger      *logrus.Logger
	client      *http.Client
}

// NewMacVendorDB creates a vendor database seeded with the built-in table.
// When dataDir is non-empty, a previously downloaded IEEE table stored there
// is loaded on top of it.
func NewMacVendorDB(dataDir string, logger *logrus.Logger) (*MacVendorDB, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db := &MacVendorDB{
		vendors: make(map[string]string, len(builtinOUIs)),
		logger:  logger,
		client:  &http.Client{Timeout: time.Minute},
	}
	for prefix, vendor := range builtinOUIs {
		db.vendors[prefix] = vendor
	}

	if dataDir == "" {
		return db, nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db.dbPath = filepath.Join(dataDir, localDBFileName)

	if err := db.loadDatabase(); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Couldn't load MAC vendor database: %v", err)
	}

	return db, nil
}

// loadDatabase loads the processed "PREFIX,Vendor" table from disk
func (db *MacVendorDB) loadDatabase() error {
	file, err := os.Open(db.dbPath)
	if err != nil {
		return err
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return err
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.lastUpdated = fileInfo.ModTime()
	loaded := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ",", 2)
		if len(parts) != 2 {
			continue
		}

		prefix := normalizeMAC(parts[0])
		vendor := strings.TrimSpace(parts[1])
		if prefix != "" && vendor != "" {
			db.vendors[prefix] = vendor
			loaded++
		}
	}

	db.logger.Debugf("Loaded %d MAC vendor entries", loaded)
	return scanner.Err()
}

// Update downloads the IEEE OUI table from url and replaces the local copy.
// It needs a data directory.
func (db *MacVendorDB) Update(ctx context.Context, url string) error {
	if db.dbPath == "" {
		return fmt.Errorf("no data directory configured for the MAC vendor database")
	}
	db.logger.Info("Downloading MAC vendor database...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := db.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download MAC vendor database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download MAC vendor database: HTTP %d", resp.StatusCode)
	}

	vendors, err := parseIEEECSV(resp.Body, db.logger)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(db.dbPath), "mac_vendors_*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempFilePath := tempFile.Name()
	defer os.Remove(tempFilePath)

	w := bufio.NewWriter(tempFile)
	for prefix, vendor := range vendors {
		fmt.Fprintf(w, "%s,%s\n", prefix, vendor)
	}
	if err := w.Flush(); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempFilePath, db.dbPath); err != nil {
		return fmt.Errorf("failed to replace database file: %w", err)
	}

	db.mutex.Lock()
	for prefix, vendor := range vendors {
		db.vendors[prefix] = vendor
	}
	db.lastUpdated = time.Now()
	count := len(db.vendors)
	db.mutex.Unlock()

	db.logger.Infof("Updated MAC vendor database with %d entries", count)
	return nil
}

// parseIEEECSV reads the IEEE format: Registry,Assignment,Organization Name,Address
func parseIEEECSV(r io.Reader, logger *logrus.Logger) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	vendors := make(map[string]string)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Debugf("Error reading CSV line: %v", err)
			continue
		}
		if len(record) < 3 {
			continue
		}

		prefix := normalizeMAC(record[1])
		vendorName := strings.TrimSpace(record[2])
		if prefix != "" && vendorName != "" {
			vendors[prefix] = vendorName
		}
	}
	return vendors, nil
}

// NeedsUpdate reports whether the downloaded table is missing or older than 30 days
func (db *MacVendorDB) NeedsUpdate() bool {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return time.Since(db.lastUpdated) > maxDBAge
}

// LookupVendor looks up a vendor by MAC address
func (db *MacVendorDB) LookupVendor(macAddress string) string {
	macAddress = normalizeMAC(macAddress)
	if len(macAddress) < 6 {
		return ""
	}

	db.mutex.RLock()
	defer db.mutex.RUnlock()

	// most specific prefix first
	for i := len(macAddress); i >= 6; i -= 2 {
		if vendor, exists := db.vendors[macAddress[:i]]; exists {
			return vendor
		}
	}

	return ""
}

// Count returns the number of entries in the MAC vendor database
func (db *MacVendorDB) Count() int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return len(db.vendors)
}

func normalizeMAC(mac string) string {
	mac = strings.TrimSpace(mac)
	mac = strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac)
	return strings.ToUpper(mac)
}
