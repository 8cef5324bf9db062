// Package toolstest installs fake versions of the external tools for tests.
package toolstest

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// Bin is a temporary directory of fake executables placed first on the PATH
type Bin struct {
	t   testing.TB
	Dir string
}

// NewBin puts an empty directory in front of the PATH for the duration of
// the test. It skips the test when /bin/sh is unavailable.
func NewBin(t testing.TB) *Bin {
	t.Helper()
	requireShell(t)
	dir := t.TempDir()
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return &Bin{t: t, Dir: dir}
}

// NewIsolatedBin makes the fake directory the whole PATH, so real tools
// installed on the machine are invisible. Scripts should only use shell
// builtins or absolute paths.
func NewIsolatedBin(t testing.TB) *Bin {
	t.Helper()
	requireShell(t)
	dir := t.TempDir()
	t.Setenv("PATH", dir)
	return &Bin{t: t, Dir: dir}
}

// Install writes an executable shell script called name
func (b *Bin) Install(name, script string) string {
	b.t.Helper()
	path := filepath.Join(b.Dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		b.t.Fatalf("install %s: %v", name, err)
	}
	return path
}

// ArgsFile returns a path the fake tools can append their arguments to
func (b *Bin) ArgsFile(name string) string {
	return filepath.Join(b.Dir, name+".args")
}

// RecordArgs installs a tool that appends its arguments to ArgsFile(name)
// and then runs script
func (b *Bin) RecordArgs(name, script string) string {
	return b.Install(name, `echo "$@" >> "`+b.ArgsFile(name)+`"`+"\n"+script)
}

// Args returns the recorded invocations of name, one per line
func (b *Bin) Args(name string) string {
	data, err := os.ReadFile(b.ArgsFile(name))
	if err != nil {
		return ""
	}
	return string(data)
}

func requireShell(t testing.TB) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
}
