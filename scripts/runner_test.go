package scripts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/justapithecus/otacore/events"
	"github.com/justapithecus/otacore/metrics"
	"github.com/justapithecus/otacore/processes"
	"github.com/justapithecus/otacore/types"
)

// scriptEnv is a pair of script roots plus a trace file every test script
// appends its own name to.
type scriptEnv struct {
	artifactDir string
	rootfsDir   string
	trace       string
}

func newScriptEnv(t *testing.T) *scriptEnv {
	t.Helper()
	base := t.TempDir()
	env := &scriptEnv{
		artifactDir: filepath.Join(base, "artifact"),
		rootfsDir:   filepath.Join(base, "rootfs"),
		trace:       filepath.Join(base, "trace"),
	}
	for _, d := range []string{env.artifactDir, env.rootfsDir} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return env
}

// add writes a script that records its name in the trace and runs body.
func (e *scriptEnv) add(t *testing.T, dir, name, body string) string {
	t.Helper()
	content := "#!/bin/sh\necho " + name + " >> " + e.trace + "\n" + body + "\n"
	return writeFile(t, dir, name, content, 0o755)
}

func (e *scriptEnv) ran(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(e.trace)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Fields(string(data))
}

func (e *scriptEnv) config(state types.State, action types.Action) Config {
	return Config{
		State:              state,
		Action:             action,
		Timeout:            30 * time.Second,
		ArtifactScriptPath: e.artifactDir,
		RootfsScriptPath:   e.rootfsDir,
	}
}

func assertRan(t *testing.T, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("scripts ran = %v, want %v", got, want)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []ScriptResult
}

func (o *recordingObserver) ScriptStarted(script string, _, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, filepath.Base(script))
}

func (o *recordingObserver) ScriptFinished(r ScriptResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, r)
}

func TestRunScripts_SuccessInOrder(t *testing.T) {
	env := newScriptEnv(t)
	env.add(t, env.artifactDir, "ArtifactInstall_Enter_10", "exit 0")
	env.add(t, env.artifactDir, "ArtifactInstall_Enter_02", "exit 0")
	env.add(t, env.artifactDir, "ArtifactInstall_Enter_01_first", "exit 0")
	env.add(t, env.artifactDir, "ArtifactInstall_Leave_01", "exit 0")

	obs := &recordingObserver{}
	collector := metrics.NewCollector("ArtifactInstall", "Enter", "", "inv-test")
	cfg := env.config(types.StateArtifactInstall, types.ActionEnter)
	cfg.Observer = obs
	cfg.Metrics = collector

	if err := RunScripts(t.Context(), cfg); err != nil {
		t.Fatalf("RunScripts: %v", err)
	}
	assertRan(t, env.ran(t), "ArtifactInstall_Enter_01_first", "ArtifactInstall_Enter_02", "ArtifactInstall_Enter_10")

	if len(obs.started) != 3 || len(obs.finished) != 3 {
		t.Fatalf("observer saw %d starts, %d finishes", len(obs.started), len(obs.finished))
	}
	for i, r := range obs.finished {
		if r.Index != i || r.Err != nil || r.ExitStatus != 0 {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	s := collector.Snapshot()
	if s.ScriptsCollected != 3 || s.ScriptsStarted != 3 || s.ScriptsSucceeded != 3 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestRunScripts_NoScripts(t *testing.T) {
	env := newScriptEnv(t)
	if err := RunScripts(t.Context(), env.config(types.StateIdle, types.ActionEnter)); err != nil {
		t.Fatalf("RunScripts with no scripts: %v", err)
	}
}

func TestRunScripts_RetryStopsRun(t *testing.T) {
	env := newScriptEnv(t)
	env.add(t, env.rootfsDir, "Sync_Enter_01", "exit 0")
	env.add(t, env.rootfsDir, "Sync_Enter_02", "exit 21")
	env.add(t, env.rootfsDir, "Sync_Enter_03", "exit 0")

	collector := metrics.NewCollector("Sync", "Enter", "", "inv-test")
	cfg := env.config(types.StateSync, types.ActionEnter)
	cfg.Metrics = collector

	err := RunScripts(t.Context(), cfg)
	if !errors.Is(err, ErrRetryExitCode) {
		t.Fatalf("err = %v, want ErrRetryExitCode", err)
	}
	if err.Error() != "Received exit code: 21" {
		t.Errorf("message = %q", err.Error())
	}
	if ExitCode(err) != types.RetryExitCode {
		t.Errorf("ExitCode = %d, want 21", ExitCode(err))
	}
	assertRan(t, env.ran(t), "Sync_Enter_01", "Sync_Enter_02")
	if collector.Snapshot().ScriptsRetryRequests != 1 {
		t.Errorf("retry not counted: %+v", collector.Snapshot())
	}
}

func TestRunScripts_NonZeroStopsRun(t *testing.T) {
	env := newScriptEnv(t)
	env.add(t, env.artifactDir, "ArtifactCommit_Leave_01", "exit 3")
	env.add(t, env.artifactDir, "ArtifactCommit_Leave_02", "exit 0")

	err := RunScripts(t.Context(), env.config(types.StateArtifactCommit, types.ActionLeave))
	if !errors.Is(err, ErrNonZeroExitStatus) {
		t.Fatalf("err = %v, want ErrNonZeroExitStatus", err)
	}
	if errors.Is(err, ErrRetryExitCode) {
		t.Error("exit 3 must not be a retry")
	}
	if err.Error() != "Received error code: 3" {
		t.Errorf("message = %q", err.Error())
	}
	assertRan(t, env.ran(t), "ArtifactCommit_Leave_01")
}

func TestRunScripts_ErrorActionAccumulates(t *testing.T) {
	env := newScriptEnv(t)
	first := env.add(t, env.artifactDir, "ArtifactRollback_Error_01", "exit 1")
	env.add(t, env.artifactDir, "ArtifactRollback_Error_02", "exit 0")
	third := env.add(t, env.artifactDir, "ArtifactRollback_Error_03", "exit 21")

	err := RunScripts(t.Context(), env.config(types.StateArtifactRollback, types.ActionError))
	if err == nil {
		t.Fatal("expected accumulated error")
	}
	assertRan(t, env.ran(t), "ArtifactRollback_Error_01", "ArtifactRollback_Error_02", "ArtifactRollback_Error_03")

	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), err)
	}
	for i, script := range []string{first, third} {
		var se *Error
		if !errors.As(errs[i], &se) || se.Code != NonZeroExitStatusError {
			t.Errorf("errs[%d] = %v, want NonZeroExitStatusError", i, errs[i])
			continue
		}
		if want := "Got non zero exit code from script: " + script; se.Msg != want {
			t.Errorf("errs[%d] = %q, want %q", i, se.Msg, want)
		}
	}
	if IsRetry(err) {
		t.Error("exit 21 in an Error action must not be a retry")
	}
}

func TestRunScripts_ErrorActionStartFailureKeepsEarlierFailures(t *testing.T) {
	env := newScriptEnv(t)
	first := env.add(t, env.rootfsDir, "Idle_Error_01", "exit 1")
	broken := writeFile(t, env.rootfsDir, "Idle_Error_02", "#!/nonexistent/interpreter\n", 0o755)

	err := RunScripts(t.Context(), env.config(types.StateIdle, types.ActionError))
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), err)
	}

	var se *Error
	if !errors.As(errs[0], &se) || se.Msg != "Got non zero exit code from script: "+first {
		t.Errorf("errs[0] = %v, want failure of %s", errs[0], first)
	}
	if errors.Is(errs[1], ErrNonZeroExitStatus) || !strings.Contains(errs[1].Error(), broken) {
		t.Errorf("errs[1] = %v, want start failure of %s", errs[1], broken)
	}
}

func TestRunScripts_ErrorActionAllSucceed(t *testing.T) {
	env := newScriptEnv(t)
	env.add(t, env.rootfsDir, "Download_Error_01", "exit 0")
	env.add(t, env.rootfsDir, "Download_Error_02", "exit 0")

	if err := RunScripts(t.Context(), env.config(types.StateDownload, types.ActionError)); err != nil {
		t.Fatalf("RunScripts: %v", err)
	}
	assertRan(t, env.ran(t), "Download_Error_01", "Download_Error_02")
}

func TestRunScripts_Timeout(t *testing.T) {
	env := newScriptEnv(t)
	env.add(t, env.rootfsDir, "Idle_Enter_01", "sleep 30")
	env.add(t, env.rootfsDir, "Idle_Enter_02", "exit 0")

	collector := metrics.NewCollector("Idle", "Enter", "", "inv-test")
	cfg := env.config(types.StateIdle, types.ActionEnter)
	cfg.Timeout = 200 * time.Millisecond
	cfg.Metrics = collector

	start := time.Now()
	err := RunScripts(t.Context(), cfg)
	if !errors.Is(err, processes.ErrTimeout) {
		t.Fatalf("err = %v, want processes.ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
	assertRan(t, env.ran(t), "Idle_Enter_01")
	if collector.Snapshot().ScriptsTimedOut != 1 {
		t.Error("timeout not counted")
	}
}

func TestRunScripts_VersionGate(t *testing.T) {
	tests := []struct {
		name    string
		version *string
		wantErr bool
	}{
		{"absent", nil, false},
		{"matching", ptr("3"), false},
		{"mismatch", ptr("2"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newScriptEnv(t)
			env.add(t, env.artifactDir, "ArtifactReboot_Enter_01", "exit 0")
			if tt.version != nil {
				writeFile(t, env.artifactDir, VersionFileName, *tt.version, 0o644)
			}

			err := RunScripts(t.Context(), env.config(types.StateArtifactReboot, types.ActionEnter))
			if tt.wantErr {
				if !errors.Is(err, ErrVersionFile) {
					t.Fatalf("err = %v, want ErrVersionFile", err)
				}
				assertRan(t, env.ran(t))
				return
			}
			if err != nil {
				t.Fatalf("RunScripts: %v", err)
			}
			assertRan(t, env.ran(t), "ArtifactReboot_Enter_01")
		})
	}
}

func TestRunScripts_RootfsStateIgnoresVersionFile(t *testing.T) {
	env := newScriptEnv(t)
	writeFile(t, env.artifactDir, VersionFileName, "2", 0o644)
	env.add(t, env.rootfsDir, "Sync_Leave_01", "exit 0")

	if err := RunScripts(t.Context(), env.config(types.StateSync, types.ActionLeave)); err != nil {
		t.Fatalf("RunScripts: %v", err)
	}
	assertRan(t, env.ran(t), "Sync_Leave_01")
}

func TestRunScripts_MissingDirectory(t *testing.T) {
	env := newScriptEnv(t)
	cfg := env.config(types.StateIdle, types.ActionLeave)
	cfg.RootfsScriptPath = filepath.Join(env.rootfsDir, "absent")

	if err := RunScripts(t.Context(), cfg); !errors.Is(err, ErrCollection) {
		t.Fatalf("err = %v, want ErrCollection", err)
	}
}

func TestRunner_StartFailureIsSynchronous(t *testing.T) {
	env := newScriptEnv(t)
	writeFile(t, env.rootfsDir, "Idle_Enter_01", "#!/nonexistent/interpreter\n", 0o755)

	loop := events.NewEventLoop()
	r := NewRunner(loop, env.config(types.StateIdle, types.ActionEnter))

	called := false
	err := r.AsyncRunScripts(func(error) { called = true })
	if err == nil {
		t.Fatal("expected synchronous start error")
	}

	loop.Post(loop.Stop)
	loop.Run()
	if called {
		t.Error("handler must not run when AsyncRunScripts returns an error")
	}
	if err := r.AsyncRunScripts(func(error) {}); !errors.Is(err, ErrRunnerUsed) {
		t.Errorf("second AsyncRunScripts = %v, want ErrRunnerUsed", err)
	}
}

func TestRunner_LaterStartFailureGoesToHandler(t *testing.T) {
	env := newScriptEnv(t)
	env.add(t, env.rootfsDir, "Idle_Leave_01", "exit 0")
	writeFile(t, env.rootfsDir, "Idle_Leave_02", "#!/nonexistent/interpreter\n", 0o755)

	loop := events.NewEventLoop()
	r := NewRunner(loop, env.config(types.StateIdle, types.ActionLeave))

	var calls []error
	if err := r.AsyncRunScripts(func(err error) {
		calls = append(calls, err)
		loop.Stop()
	}); err != nil {
		t.Fatalf("AsyncRunScripts: %v", err)
	}
	loop.Run()

	if len(calls) != 1 || calls[0] == nil {
		t.Fatalf("handler calls = %v, want one start error", calls)
	}
	if errors.Is(calls[0], ErrNonZeroExitStatus) {
		t.Error("start failure must not be classified as a non-zero exit")
	}
	if got := r.Scripts(); len(got) != 2 {
		t.Errorf("Scripts = %v", got)
	}
}

func TestRunScripts_ContextCancel(t *testing.T) {
	env := newScriptEnv(t)
	env.add(t, env.rootfsDir, "Download_Enter_01", "sleep 30")

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := RunScripts(ctx, env.config(types.StateDownload, types.ActionEnter))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancel took %s", elapsed)
	}
}

func TestRunScripts_CancelKeepsAccumulatedFailures(t *testing.T) {
	env := newScriptEnv(t)
	env.add(t, env.rootfsDir, "Sync_Error_01", "exit 3")
	env.add(t, env.rootfsDir, "Sync_Error_02", "sleep 30")

	ctx, cancel := context.WithTimeout(t.Context(), 500*time.Millisecond)
	defer cancel()

	err := RunScripts(ctx, env.config(types.StateSync, types.ActionError))
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), err)
	}
	if !errors.Is(errs[0], ErrNonZeroExitStatus) {
		t.Errorf("errs[0] = %v, want the script failure", errs[0])
	}
	if !errors.Is(errs[1], context.DeadlineExceeded) {
		t.Errorf("errs[1] = %v, want the cancellation cause", errs[1])
	}
}

func TestRunScripts_CancelEscalatesToKill(t *testing.T) {
	env := newScriptEnv(t)
	pidFile := filepath.Join(t.TempDir(), "pid")
	env.add(t, env.rootfsDir, "Download_Leave_01",
		"trap '' TERM\necho $$ > "+pidFile+"\nwhile :; do sleep 1; done")

	cfg := env.config(types.StateDownload, types.ActionLeave)
	cfg.CancelGrace = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()
	if err := RunScripts(ctx, cfg); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("script never wrote its pid: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatal(err)
	}

	// SIGTERM is ignored, so the script outlives the cancel until the grace
	// period ends.
	if err := unix.Kill(pid, 0); err != nil {
		t.Fatalf("script exited before the grace period: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for unix.Kill(pid, 0) == nil {
		if time.Now().After(deadline) {
			t.Fatal("script still running after the grace period")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunScripts_Output(t *testing.T) {
	env := newScriptEnv(t)
	env.add(t, env.rootfsDir, "Sync_Enter_01", "echo hello; echo oops >&2")

	var mu sync.Mutex
	var stdout, stderr []string
	cfg := env.config(types.StateSync, types.ActionEnter)
	cfg.Stdout = func(line string) { mu.Lock(); stdout = append(stdout, line); mu.Unlock() }
	cfg.Stderr = func(line string) { mu.Lock(); stderr = append(stderr, line); mu.Unlock() }

	if err := RunScripts(t.Context(), cfg); err != nil {
		t.Fatalf("RunScripts: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(stdout) != 1 || stdout[0] != "hello" {
		t.Errorf("stdout = %q", stdout)
	}
	if len(stderr) != 1 || stderr[0] != "oops" {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunner_Name(t *testing.T) {
	r := NewRunner(events.NewEventLoop(), Config{State: types.StateArtifactFailure, Action: types.ActionLeave})
	if r.Name() != "ArtifactFailureLeave" {
		t.Errorf("Name = %q", r.Name())
	}
	if r.ScriptPath() != DefaultArtifactScriptPath {
		t.Errorf("ScriptPath = %q", r.ScriptPath())
	}
}
