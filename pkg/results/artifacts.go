package results

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// TimestampLayout is the date format embedded in artifact names
const TimestampLayout = "2006-01-02T15-04-05"

// UnknownESSID stands in for hidden network names in artifact names
const UnknownESSID = "UnknownEssid"

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SafeESSID strips everything but letters and digits
func SafeESSID(essid string) string {
	safe := nonAlnum.ReplaceAllString(essid, "")
	if safe == "" {
		return UnknownESSID
	}
	return safe
}

// SafeBSSID replaces colons with hyphens
func SafeBSSID(bssid string) string {
	return strings.ReplaceAll(strings.ToUpper(bssid), ":", "-")
}

// HandshakeName is the file name a captured handshake is preserved under
func HandshakeName(essid, bssid string, at time.Time) string {
	return fmt.Sprintf("handshake_%s_%s_%s.cap", SafeESSID(essid), SafeBSSID(bssid), at.Format(TimestampLayout))
}

// PMKIDName is the file name a captured PMKID hash is preserved under
func PMKIDName(essid, bssid string, at time.Time) string {
	return fmt.Sprintf("pmkid_%s_%s_%s.16800", SafeESSID(essid), SafeBSSID(bssid), at.Format(TimestampLayout))
}

// FindHandshake looks in dir for a handshake captured earlier for the same
// network. An empty essid matches any name.
func FindHandshake(dir, essid, bssid string) (string, bool) {
	essidPart := `[a-zA-Z0-9]+`
	if essid != "" {
		essidPart = regexp.QuoteMeta(SafeESSID(essid))
	}
	pattern := regexp.MustCompile(fmt.Sprintf(`^handshake_%s_%s_\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}\.cap$`,
		essidPart, regexp.QuoteMeta(SafeBSSID(bssid))))

	for _, name := range newestFirst(dir) {
		if pattern.MatchString(name) {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// FindPMKID looks in dir for a PMKID hash captured earlier for bssid and
// returns the file and its hash line
func FindPMKID(dir, bssid string) (string, string, bool) {
	want := strings.ToLower(strings.ReplaceAll(bssid, ":", ""))
	for _, name := range newestFirst(dir) {
		if !strings.HasPrefix(name, "pmkid_") || !strings.HasSuffix(name, ".16800") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		line := strings.TrimSpace(string(data))
		fields := strings.Split(line, "*")
		if len(fields) < 4 {
			continue
		}
		if strings.ToLower(strings.ReplaceAll(fields[1], ":", "")) == want {
			return path, line, true
		}
	}
	return "", "", false
}

// PreserveHandshake copies a capture into dir under its canonical name
func PreserveHandshake(src, dir, essid, bssid string, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, HandshakeName(essid, bssid, at))
	if err := CopyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// PreservePMKID writes a hash line into dir under its canonical name
func PreservePMKID(line, dir, essid, bssid string, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, PMKIDName(essid, bssid, at))
	if err := os.WriteFile(dst, []byte(line+"\n"), 0644); err != nil {
		return "", err
	}
	return dst, nil
}

// CopyFile copies src to dst, replacing dst
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// newestFirst lists regular files in dir, most recently modified first
func newestFirst(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	type file struct {
		name string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{e.Name(), info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].name > files[j].name
		}
		return files[i].mod.After(files[j].mod)
	})
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names
}
