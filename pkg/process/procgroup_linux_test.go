//go:build linux

package process

import (
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alive reports whether pid exists and is not a zombie
func alive(pid int) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	fields := strings.Fields(string(data))
	return len(fields) > 2 && fields[2] != "Z"
}

func TestKillReachesForkedChildren(t *testing.T) {
	requireShell(t)

	h, err := Start("sh", []string{"-c", "sleep 30 & echo $!; wait"}, Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.Lines()) > 0 }, 2*time.Second, 10*time.Millisecond)
	child, err := strconv.Atoi(strings.TrimSpace(h.Lines()[0]))
	require.NoError(t, err)
	require.True(t, alive(child))

	require.NoError(t, h.Kill())
	assert.Eventually(t, func() bool { return !alive(child) }, 2*time.Second, 20*time.Millisecond)
}

func TestInterruptReachesChildrenIgnoringSIGINT(t *testing.T) {
	requireShell(t)

	// background jobs of a non-interactive shell ignore SIGINT
	h, err := Start("sh", []string{"-c", "sleep 30 & echo $!; wait"}, Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.Lines()) > 0 }, 2*time.Second, 10*time.Millisecond)
	child, err := strconv.Atoi(strings.TrimSpace(h.Lines()[0]))
	require.NoError(t, err)

	require.NoError(t, h.Interrupt(300*time.Millisecond))
	assert.Eventually(t, func() bool { return !alive(child) }, 2*time.Second, 20*time.Millisecond)
}
