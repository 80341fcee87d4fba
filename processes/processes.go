// Package processes runs external programs on behalf of an events.EventLoop.
//
// A Process is started with optional line callbacks for stdout and stderr,
// then awaited asynchronously: the exit status (or a timeout) is delivered
// to a handler on the loop goroutine. Children run in their own process
// group so a timeout kills everything the program spawned.
package processes

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/justapithecus/otacore/events"
)

// DefaultWaitDelay bounds how long Wait keeps draining output after the
// process exits, in case a grandchild still holds the pipes open.
const DefaultWaitDelay = 5 * time.Second

var (
	// ErrNotStarted is returned when waiting on a process that was never started.
	ErrNotStarted = errors.New("process not started")
	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("process already started")
	// ErrTimeout is returned when a process outlives its wait timeout.
	ErrTimeout = errors.New("process timed out")
	// ErrNonZeroExitStatus matches every ExitError.
	ErrNonZeroExitStatus = errors.New("non-zero exit status")
)

// ExitError reports a process that exited with a non-zero status or was
// killed by a signal.
type ExitError struct {
	Path string
	// ExitStatus is the exit code, or -1 when the process died from a signal.
	ExitStatus int
	Signal     syscall.Signal
}

func (e *ExitError) Error() string {
	if e.ExitStatus < 0 {
		return fmt.Sprintf("process %s killed by signal %s", e.Path, e.Signal)
	}
	return fmt.Sprintf("process %s exited with status %d", e.Path, e.ExitStatus)
}

// Is reports whether target is ErrNonZeroExitStatus.
func (e *ExitError) Is(target error) bool {
	return target == ErrNonZeroExitStatus
}

// OutputCallback receives one line of output without its trailing newline.
// It runs on an output-copying goroutine, not on the event loop.
type OutputCallback func(line string)

// Process is a single external program invocation.
type Process struct {
	args []string

	// WaitDelay overrides DefaultWaitDelay when non-zero.
	WaitDelay time.Duration

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdout     *lineWriter
	stderr     *lineWriter
	waited     bool
	waitErr    error
	exitStatus int
	waitDone   chan struct{}
}

// New creates a process for args; args[0] is the program path.
func New(args ...string) *Process {
	return &Process{args: args, exitStatus: -1}
}

// Path returns the program path.
func (p *Process) Path() string {
	if len(p.args) == 0 {
		return ""
	}
	return p.args[0]
}

// Start launches the process. Nil callbacks discard the stream.
func (p *Process) Start(stdout, stderr OutputCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return ErrAlreadyStarted
	}
	if len(p.args) == 0 {
		return errors.New("no program to start")
	}

	cmd := exec.Command(p.args[0], p.args[1:]...) //nolint:gosec // running configured scripts is the point
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = DefaultWaitDelay
	if p.WaitDelay > 0 {
		cmd.WaitDelay = p.WaitDelay
	}
	if stdout != nil {
		p.stdout = &lineWriter{cb: stdout}
		cmd.Stdout = p.stdout
	}
	if stderr != nil {
		p.stderr = &lineWriter{cb: stderr}
		cmd.Stderr = p.stderr
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", p.args[0], err)
	}
	p.cmd = cmd
	p.waitDone = make(chan struct{})
	go p.reap()
	return nil
}

// reap waits for the process exactly once and records the outcome.
func (p *Process) reap() {
	err := p.cmd.Wait()
	p.stdout.flush()
	p.stderr.flush()

	status := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ee := &ExitError{Path: p.args[0], ExitStatus: -1}
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				ee.ExitStatus = ws.ExitStatus()
				if ws.Signaled() {
					ee.Signal = ws.Signal()
				}
			}
			status = ee.ExitStatus
			err = ee
		} else if !errors.Is(err, exec.ErrWaitDelay) {
			err = fmt.Errorf("waiting for %s: %w", p.args[0], err)
		} else {
			// Output stayed open past WaitDelay but the process itself exited 0.
			err = nil
		}
	}

	p.mu.Lock()
	p.waited = true
	p.waitErr = err
	p.exitStatus = status
	p.mu.Unlock()
	close(p.waitDone)
}

// AsyncWait posts handler to loop once the process exits. A zero timeout
// waits forever. If the timeout elapses first the process group is killed
// and handler receives an error matching ErrTimeout. The handler runs
// exactly once, on the loop goroutine.
func (p *Process) AsyncWait(loop *events.EventLoop, handler func(error), timeout time.Duration) error {
	p.mu.Lock()
	started := p.cmd != nil
	done := p.waitDone
	p.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	timer := events.NewTimer(loop)
	finished := false
	finish := func(err error) {
		if finished {
			return
		}
		finished = true
		handler(err)
	}

	go func() {
		<-done
		loop.Post(func() {
			timer.Cancel()
			finish(p.result())
		})
	}()

	if timeout > 0 {
		timer.AsyncWait(timeout, func(err error) {
			if err != nil || finished {
				return
			}
			_ = p.Kill()
			finish(fmt.Errorf("%s after %s: %w", p.Path(), timeout, ErrTimeout))
		})
	}
	return nil
}

// Wait blocks until the process exits or timeout elapses. A zero timeout
// waits forever.
func (p *Process) Wait(timeout time.Duration) error {
	p.mu.Lock()
	done := p.waitDone
	p.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}

	if timeout <= 0 {
		<-done
		return p.result()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return p.result()
	case <-t.C:
		_ = p.Kill()
		<-done
		return fmt.Errorf("%s after %s: %w", p.Path(), timeout, ErrTimeout)
	}
}

func (p *Process) result() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// ExitStatus returns the exit code, or -1 if the process has not exited or
// died from a signal.
func (p *Process) ExitStatus() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.waited {
		return -1
	}
	return p.exitStatus
}

// Pid returns the process ID, or 0 before Start.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Terminate sends SIGTERM to the process group, giving a script the chance
// to clean up before Kill.
func (p *Process) Terminate() error {
	return p.signalGroup(unix.SIGTERM)
}

// Kill sends SIGKILL to the process group.
func (p *Process) Kill() error {
	return p.signalGroup(unix.SIGKILL)
}

func (p *Process) signalGroup(sig unix.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return ErrNotStarted
	}
	if p.waited {
		return nil
	}
	if err := unix.Kill(-p.cmd.Process.Pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return p.cmd.Process.Signal(os.Signal(sig))
	}
	return nil
}

// lineWriter splits a byte stream into lines for an OutputCallback.
type lineWriter struct {
	mu  sync.Mutex
	cb  OutputCallback
	buf []byte
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.cb(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}

// flush delivers a trailing line that had no newline.
func (w *lineWriter) flush() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.cb(string(w.buf))
		w.buf = nil
	}
}
