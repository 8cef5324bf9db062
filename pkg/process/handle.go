// Package process runs the external wireless tools. Every handle runs in its
// own process group so that interrupting it also stops any children the tool
// forked.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Options controls how a process is started
type Options struct {
	Dir     string
	Env     []string
	Stdin   io.Reader
	Discard bool           // Drop stdout/stderr instead of capturing them
	Tracker *Tracker       // Registry the handle joins while running; nil for none
	Logger  *logrus.Logger // Commands are logged at debug level
}

// Handle wraps one running external process
type Handle struct {
	name    string
	args    []string
	cmd     *exec.Cmd
	stdout  *syncBuffer
	stderr  *syncBuffer
	started time.Time
	done    chan struct{}
	tracker *Tracker
	logger  *logrus.Logger

	mu       sync.Mutex
	exitCode int
	waitErr  error
}

// Start spawns name with args
func Start(name string, args []string, opts Options) (*Handle, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	cmd.Stdin = opts.Stdin
	setProcessGroup(cmd)

	h := &Handle{
		name:     name,
		args:     args,
		cmd:      cmd,
		stdout:   &syncBuffer{},
		stderr:   &syncBuffer{},
		done:     make(chan struct{}),
		tracker:  opts.Tracker,
		logger:   logger,
		exitCode: -1,
	}
	if !opts.Discard {
		cmd.Stdout = h.stdout
		cmd.Stderr = h.stderr
	}

	logger.Debugf("Executing: %s", h.String())
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	h.started = time.Now()

	if h.tracker != nil {
		h.tracker.Track(h)
	}
	go h.wait()

	return h, nil
}

func (h *Handle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.waitErr = err
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	h.mu.Unlock()

	if h.tracker != nil {
		h.tracker.Untrack(h)
	}
	close(h.done)
}

// String returns the command line
func (h *Handle) String() string {
	return strings.TrimSpace(h.name + " " + strings.Join(h.args, " "))
}

// Name returns the executable name
func (h *Handle) Name() string {
	return h.name
}

// Pid returns the operating system process id
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Done is closed once the process has exited
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Elapsed returns the time since the process started
func (h *Handle) Elapsed() time.Duration {
	return time.Since(h.started)
}

// Poll checks without blocking whether the process has exited. The exit code
// is -1 while running or when the process was killed by a signal.
func (h *Handle) Poll() (exitCode int, exited bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, true
	default:
		return -1, false
	}
}

// Running reports whether the process is still alive
func (h *Handle) Running() bool {
	_, exited := h.Poll()
	return !exited
}

// Wait blocks until the process exits or ctx is done. Cancelling ctx does not
// stop the process.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Interrupt sends SIGINT to the process group and escalates to SIGKILL if the
// process is still alive after grace. It returns once the process has exited.
func (h *Handle) Interrupt(grace time.Duration) error {
	if !h.Running() {
		return nil
	}

	h.logger.Debugf("Interrupting %s (pid %d)", h.name, h.Pid())
	if err := interruptGroup(h.cmd.Process); err != nil {
		h.logger.Debugf("Interrupt of %s failed: %v", h.name, err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.done:
		// children that ignored the interrupt must not outlive the leader
		_ = killGroup(h.cmd.Process)
		return nil
	case <-timer.C:
	}

	h.logger.Debugf("%s ignored interrupt for %s, killing", h.name, grace)
	return h.Kill()
}

// Kill forcibly terminates the process group and waits for the process to exit
func (h *Handle) Kill() error {
	if !h.Running() {
		return nil
	}
	if err := killGroup(h.cmd.Process); err != nil && h.Running() {
		return fmt.Errorf("failed to kill %s: %w", h.name, err)
	}
	<-h.done
	return nil
}

// Stdout returns everything written to standard output so far
func (h *Handle) Stdout() string {
	return h.stdout.String()
}

// Stderr returns everything written to standard error so far
func (h *Handle) Stderr() string {
	return h.stderr.String()
}

// Lines returns standard output split into non-empty lines
func (h *Handle) Lines() []string {
	var lines []string
	for _, line := range strings.Split(h.Stdout(), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ExitError is returned by Call when the command exits with a non-zero status
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Call runs a short-lived command to completion and returns its standard
// output. If ctx ends first the process is interrupted with grace.
func Call(ctx context.Context, grace time.Duration, name string, args []string, opts Options) (string, error) {
	h, err := Start(name, args, opts)
	if err != nil {
		return "", err
	}

	code, err := h.Wait(ctx)
	if err != nil {
		_ = h.Interrupt(grace)
		return h.Stdout(), err
	}
	if code != 0 {
		return h.Stdout(), &ExitError{Command: h.String(), Code: code, Stderr: h.Stderr()}
	}
	return h.Stdout(), nil
}

// Exists reports whether program is on the PATH
func Exists(program string) bool {
	_, err := exec.LookPath(program)
	return err == nil
}

// IsExitError reports whether err came from a non-zero exit
func IsExitError(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
