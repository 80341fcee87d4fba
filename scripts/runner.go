package scripts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/justapithecus/otacore/events"
	"github.com/justapithecus/otacore/log"
	"github.com/justapithecus/otacore/metrics"
	"github.com/justapithecus/otacore/processes"
	"github.com/justapithecus/otacore/types"
)

// Default script roots and timeouts.
const (
	DefaultArtifactScriptPath = "/var/lib/mender/scripts"
	DefaultRootfsScriptPath   = "/etc/mender/scripts"
	DefaultTimeout            = time.Hour
	DefaultCancelGrace        = 5 * time.Second
)

// Config configures a Runner.
type Config struct {
	State  types.State
	Action types.Action
	// Timeout bounds each script. Zero means DefaultTimeout.
	Timeout time.Duration
	// CancelGrace is how long a cancelled script may run after SIGTERM
	// before its process group is killed. Zero means DefaultCancelGrace.
	CancelGrace time.Duration

	ArtifactScriptPath string
	RootfsScriptPath   string

	// Stdout and Stderr receive script output line by line. They run on
	// output goroutines, not on the loop.
	Stdout processes.OutputCallback
	Stderr processes.OutputCallback

	Logger   *log.Logger
	Metrics  *metrics.Collector
	Observer Observer
}

// ScriptResult describes one finished script.
type ScriptResult struct {
	Script     string
	Index      int
	State      types.State
	Action     types.Action
	ExitStatus int
	StartedAt  time.Time
	Duration   time.Duration
	Err        error
}

// Observer is notified of script lifecycle events on the loop goroutine.
type Observer interface {
	ScriptStarted(script string, index, total int)
	ScriptFinished(result ScriptResult)
}

// Observers fans events out to several observers in order.
type Observers []Observer

// ScriptStarted implements Observer.
func (o Observers) ScriptStarted(script string, index, total int) {
	for _, obs := range o {
		obs.ScriptStarted(script, index, total)
	}
}

// ScriptFinished implements Observer.
func (o Observers) ScriptFinished(result ScriptResult) {
	for _, obs := range o {
		obs.ScriptFinished(result)
	}
}

type runnerState int

const (
	runnerIdle runnerState = iota
	runnerRunning
	runnerCompleted
)

// Runner executes the scripts of one (state, action) pair. A Runner is
// single use; create one per request.
//
// All methods except Cancel must be called on the loop goroutine.
type Runner struct {
	loop   *events.EventLoop
	cfg    Config
	logger *log.Logger

	state       runnerState
	scripts     []string
	handler     func(error)
	accumulated error
	current     *processes.Process
}

// NewRunner creates a runner bound to loop.
func NewRunner(loop *events.EventLoop, cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = DefaultCancelGrace
	}
	if cfg.ArtifactScriptPath == "" {
		cfg.ArtifactScriptPath = DefaultArtifactScriptPath
	}
	if cfg.RootfsScriptPath == "" {
		cfg.RootfsScriptPath = DefaultRootfsScriptPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Runner{loop: loop, cfg: cfg, logger: logger}
}

// Name returns the state and action names joined, e.g. "ArtifactInstallEnter".
func (r *Runner) Name() string {
	return r.cfg.State.String() + r.cfg.Action.String()
}

// ScriptPath returns the directory scripts are collected from.
func (r *Runner) ScriptPath() string {
	if r.cfg.State.IsArtifactScript() {
		return r.cfg.ArtifactScriptPath
	}
	return r.cfg.RootfsScriptPath
}

// Scripts returns the collected scripts in execution order.
func (r *Runner) Scripts() []string {
	return append([]string(nil), r.scripts...)
}

// AsyncRunScripts checks the version file (artifact states only), collects
// the scripts and starts running them in order. handler is invoked exactly
// once on the loop goroutine with the outcome; it is not invoked when
// AsyncRunScripts itself returns an error.
//
// For Error actions every script runs and failures are accumulated; the
// ordered list is available through multierr.Errors. For other actions the
// first failure stops the run.
func (r *Runner) AsyncRunScripts(handler func(error)) error {
	if r.state != runnerIdle {
		return ErrRunnerUsed
	}
	r.state = runnerRunning

	if r.cfg.State.IsArtifactScript() {
		if err := CorrectVersionFile(filepath.Join(r.cfg.ArtifactScriptPath, VersionFileName)); err != nil {
			r.state = runnerCompleted
			return err
		}
	}

	scripts, err := collect(r.ScriptPath(), r.cfg.State, r.cfg.Action, r.logger)
	if err != nil {
		r.state = runnerCompleted
		return err
	}
	r.scripts = scripts
	r.cfg.Metrics.AddScriptsCollected(len(scripts))
	r.logger.Debug("collected state scripts", map[string]any{
		"dir":     r.ScriptPath(),
		"scripts": scripts,
	})

	r.handler = handler
	if err := r.execute(0); err != nil {
		r.handler = nil
		r.state = runnerCompleted
		return err
	}
	return nil
}

// Cancel stops the running script and completes the run with cause, after
// any failures already accumulated by an Error action. The script's process
// group gets SIGTERM, then SIGKILL once CancelGrace has passed.
// Safe to call from any goroutine; the work happens on the loop.
func (r *Runner) Cancel(cause error) {
	r.loop.Post(func() {
		if r.state != runnerRunning {
			return
		}
		if p := r.current; p != nil {
			_ = p.Terminate()
			time.AfterFunc(r.cfg.CancelGrace, func() { _ = p.Kill() })
		}
		r.complete(multierr.Append(r.accumulated, cause))
	})
}

func (r *Runner) execute(i int) error {
	if i == len(r.scripts) {
		r.complete(r.accumulated)
		return nil
	}

	script := r.scripts[i]
	r.logger.Info("Running state script", map[string]any{"script": script})

	p := processes.New(script)
	if err := p.Start(r.cfg.Stdout, r.cfg.Stderr); err != nil {
		r.cfg.Metrics.IncScriptLaunchFailure()
		r.logger.Error("failed to start state script", map[string]any{"script": script, "error": err.Error()})
		return err
	}
	r.current = p
	r.cfg.Metrics.IncScriptStarted()
	if r.cfg.Observer != nil {
		r.cfg.Observer.ScriptStarted(script, i, len(r.scripts))
	}

	started := time.Now()
	return p.AsyncWait(r.loop, func(err error) {
		r.onScriptDone(i, p, started, err)
	}, r.cfg.Timeout)
}

func (r *Runner) onScriptDone(i int, p *processes.Process, started time.Time, err error) {
	if r.state != runnerRunning {
		// Cancelled while the script was running.
		return
	}
	r.current = nil
	r.report(i, p, started, err)

	if err == nil {
		r.next(i)
		return
	}
	if r.cfg.Action == types.ActionError {
		r.accumulated = multierr.Append(r.accumulated, errorActionError(r.scripts[i], err))
		r.next(i)
		return
	}
	r.complete(scriptError(p, err))
}

func (r *Runner) next(i int) {
	if err := r.execute(i + 1); err != nil {
		r.complete(multierr.Append(r.accumulated, err))
	}
}

func (r *Runner) complete(err error) {
	h := r.handler
	r.handler = nil
	r.state = runnerCompleted
	r.current = nil
	if h != nil {
		h(err)
	}
}

func (r *Runner) report(i int, p *processes.Process, started time.Time, err error) {
	m := r.cfg.Metrics
	switch {
	case err == nil:
		m.IncScriptSucceeded()
	case errors.Is(err, processes.ErrTimeout):
		m.IncScriptTimedOut()
		m.IncScriptFailed()
	case p.ExitStatus() == types.RetryExitCode && r.cfg.Action != types.ActionError:
		m.IncScriptRetryRequest()
	default:
		m.IncScriptFailed()
	}

	fields := map[string]any{
		"script":      r.scripts[i],
		"exit_status": p.ExitStatus(),
		"duration_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		r.logger.Warn("state script failed", fields)
	} else {
		r.logger.Debug("state script finished", fields)
	}

	if r.cfg.Observer != nil {
		r.cfg.Observer.ScriptFinished(ScriptResult{
			Script:     r.scripts[i],
			Index:      i,
			State:      r.cfg.State,
			Action:     r.cfg.Action,
			ExitStatus: p.ExitStatus(),
			StartedAt:  started,
			Duration:   time.Since(started),
			Err:        err,
		})
	}
}

// errorActionError classifies a failure during an Error action. Retry
// requests are not honoured here; exit 21 is an ordinary failure.
func errorActionError(script string, err error) error {
	if errors.Is(err, processes.ErrNonZeroExitStatus) {
		return &Error{
			Code: NonZeroExitStatusError,
			Msg:  "Got non zero exit code from script: " + script,
			Err:  err,
		}
	}
	return err
}

// scriptError classifies a failure that stops the run.
func scriptError(p *processes.Process, err error) error {
	if !errors.Is(err, processes.ErrNonZeroExitStatus) {
		return err
	}
	status := p.ExitStatus()
	if status == types.RetryExitCode {
		return &Error{
			Code: RetryExitCodeError,
			Msg:  fmt.Sprintf("Received exit code: %d", types.RetryExitCode),
			Err:  err,
		}
	}
	return &Error{
		Code: NonZeroExitStatusError,
		Msg:  fmt.Sprintf("Received error code: %d", status),
		Err:  err,
	}
}

// RunScripts runs the scripts for cfg on a private event loop and blocks
// until they finish or ctx is cancelled.
func RunScripts(ctx context.Context, cfg Config) error {
	loop := events.NewEventLoop()
	r := NewRunner(loop, cfg)

	var result error
	loop.Post(func() {
		err := r.AsyncRunScripts(func(err error) {
			result = err
			loop.Stop()
		})
		if err != nil {
			result = err
			loop.Stop()
		}
	})

	stop := context.AfterFunc(ctx, func() {
		r.Cancel(context.Cause(ctx))
	})
	defer stop()

	loop.Run()
	return result
}
