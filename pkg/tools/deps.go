// Package tools wraps the external wireless and cracking programs. Each
// wrapper only builds command lines, runs them through pkg/process and
// interprets their output.
package tools

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrMissingTool is wrapped by every MissingToolError
var ErrMissingTool = errors.New("required tool not found")

// MissingToolError reports a program that is not installed
type MissingToolError struct {
	Tool string
	URL  string
}

func (e *MissingToolError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s not found", e.Tool)
	}
	return fmt.Sprintf("%s not found (%s)", e.Tool, e.URL)
}

func (e *MissingToolError) Unwrap() error {
	return ErrMissingTool
}

// Dependency describes one external program
type Dependency struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Purpose  string `json:"purpose"`
	URL      string `json:"url"`
}

// Dependencies lists every program the auditor can drive
var Dependencies = []Dependency{
	{Name: "airodump-ng", Required: true, Purpose: "target discovery and handshake capture", URL: "https://www.aircrack-ng.org"},
	{Name: "aireplay-ng", Required: true, Purpose: "deauthentication", URL: "https://www.aircrack-ng.org"},
	{Name: "aircrack-ng", Required: true, Purpose: "handshake cracking", URL: "https://www.aircrack-ng.org"},
	{Name: "hcxdumptool", Purpose: "PMKID capture", URL: "https://github.com/ZerBea/hcxdumptool"},
	{Name: "hcxpcapngtool", Purpose: "PMKID and hash extraction", URL: "https://github.com/ZerBea/hcxtools"},
	{Name: "hashcat", Purpose: "GPU cracking", URL: "https://hashcat.net/hashcat/"},
	{Name: "reaver", Purpose: "WPS PIN and Pixie-Dust attacks", URL: "https://github.com/t6x/reaver-wps-fork-t6x"},
	{Name: "bully", Purpose: "WPS PIN and Pixie-Dust attacks", URL: "https://github.com/aanarchyy/bully"},
}

// Lookup returns the dependency entry for name
func Lookup(name string) (Dependency, bool) {
	for _, d := range Dependencies {
		if d.Name == name {
			return d, true
		}
	}
	return Dependency{}, false
}

// Require returns a MissingToolError for the first program not on the PATH
func Require(names ...string) error {
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			dep, _ := Lookup(name)
			return &MissingToolError{Tool: name, URL: dep.URL}
		}
	}
	return nil
}

// RequireAny succeeds when at least one of names is installed
func RequireAny(names ...string) error {
	for _, name := range names {
		if _, err := exec.LookPath(name); err == nil {
			return nil
		}
	}
	return &MissingToolError{Tool: strings.Join(names, " or ")}
}

// Status is the result of checking one dependency
type Status struct {
	Dependency
	Installed bool   `json:"installed"`
	Path      string `json:"path,omitempty"`
}

// Check looks up every known dependency
func Check() []Status {
	statuses := make([]Status, 0, len(Dependencies))
	for _, d := range Dependencies {
		s := Status{Dependency: d}
		if path, err := exec.LookPath(d.Name); err == nil {
			s.Installed = true
			s.Path = path
		}
		statuses = append(statuses, s)
	}
	return statuses
}

// MissingRequired returns the names of required programs that are not installed
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, s := range statuses {
		if s.Required && !s.Installed {
			missing = append(missing, s.Name)
		}
	}
	return missing
}
