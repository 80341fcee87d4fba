package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/otacore/cli/config"
	"github.com/justapithecus/otacore/ipc"
	"github.com/justapithecus/otacore/journal"
	"github.com/justapithecus/otacore/log"
	"github.com/justapithecus/otacore/metrics"
	"github.com/justapithecus/otacore/processes"
	"github.com/justapithecus/otacore/scripts"
	"github.com/justapithecus/otacore/types"
)

// Exit codes of the run command.
const (
	exitSuccess    = 0
	exitFailure    = 1
	exitSetupError = ipc.SetupExitCode
	exitRetry      = types.RetryExitCode
)

// finalizeTimeout bounds journal flushes and adapter publishes after the
// scripts have finished. It applies even when the run was interrupted.
const finalizeTimeout = 30 * time.Second

// RunCommand returns the run command.
// This is the only command that executes state scripts.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the state scripts of one (state, action) pair",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "state",
				Usage:    "State name (e.g. Download, ArtifactInstall)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "action",
				Usage:    "Action: Enter, Leave or Error",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "artifact-script-path",
				Usage: "Directory of scripts installed from the artifact",
			},
			&cli.StringFlag{
				Name:  "rootfs-script-path",
				Usage: "Directory of scripts shipped in the root filesystem",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-script timeout (default 1h)",
			},
			&cli.BoolFlag{
				Name:  "ipc",
				Usage: "Write the event stream as length-prefixed msgpack frames to stdout",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
			&cli.BoolFlag{
				Name:  "no-journal",
				Usage: "Do not record the run even if a journal is configured",
			},
		}, append(JournalFlags(), AdapterFlags()...)...),
		Action: runAction,
	}
}

// runSettings is the run configuration after merging flags over config.
type runSettings struct {
	state   types.State
	action  types.Action
	scripts scripts.Config
	journal journalChoice
	ipc     bool
	quiet   bool
}

func resolveRun(c *cli.Context, cfg *config.Config) (runSettings, error) {
	state, err := types.ParseState(c.String("state"))
	if err != nil {
		return runSettings{}, err
	}
	action, err := types.ParseAction(c.String("action"))
	if err != nil {
		return runSettings{}, err
	}

	d := cfg.WithDefaults()
	s := runSettings{
		state:  state,
		action: action,
		scripts: scripts.Config{
			State:              state,
			Action:             action,
			Timeout:            d.StateScriptTimeout.Duration,
			ArtifactScriptPath: d.ArtifactScriptPath,
			RootfsScriptPath:   d.RootfsScriptPath,
		},
		journal: resolveJournal(c, cfg),
		ipc:     c.Bool("ipc"),
		quiet:   c.Bool("quiet"),
	}
	if v := c.String("artifact-script-path"); v != "" {
		s.scripts.ArtifactScriptPath = v
	}
	if v := c.String("rootfs-script-path"); v != "" {
		s.scripts.RootfsScriptPath = v
	}
	if v := c.Duration("timeout"); v > 0 {
		s.scripts.Timeout = v
	}
	if c.Bool("no-journal") {
		s.journal = journalChoice{}
	}
	return s, nil
}

func runAction(c *cli.Context) error {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitSetupError)
	}
	settings, err := resolveRun(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitSetupError)
	}

	meta := types.NewInvocationMeta("scripts").ForScripts(settings.state, settings.action)
	logger := log.NewLogger(meta).WithOutput(c.App.ErrWriter)
	collector := metrics.NewCollector(settings.state.String(), settings.action.String(), settings.journal.backend, meta.InvocationID)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer, err := buildWriter(ctx, settings.journal, journal.Config{
		Day:          journal.DeriveDay(meta.StartedAt),
		InvocationID: meta.InvocationID,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open journal: %v", err), exitSetupError)
	}
	pub, err := buildAdapter(c, cfg.Adapter)
	if err != nil {
		if writer != nil {
			_ = writer.Close()
		}
		return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), exitSetupError)
	}

	runCfg := settings.scripts
	runCfg.Logger = logger
	runCfg.Metrics = collector

	var observers scripts.Observers
	var recorder *journal.Recorder
	if writer != nil {
		recorder = journal.NewRecorder(writer, collector)
		observers = append(observers, recorder)
	}
	var emitter *ipc.Emitter
	if settings.ipc {
		emitter = ipc.NewEmitter(ipc.NewFrameEncoder(c.App.Writer), meta)
		observers = append(observers, emitter)
		runCfg.Stdout = emitter.Output(types.StreamStdout)
		runCfg.Stderr = emitter.Output(types.StreamStderr)
	} else {
		runCfg.Stdout = logOutput(logger, types.StreamStdout)
		runCfg.Stderr = logOutput(logger, types.StreamStderr)
	}
	if len(observers) > 0 {
		runCfg.Observer = observers
	}

	logger.Info("running state scripts", map[string]any{
		"artifact_script_path": runCfg.ArtifactScriptPath,
		"rootfs_script_path":   runCfg.RootfsScriptPath,
		"timeout":              runCfg.Timeout.String(),
	})
	runErr := scripts.RunScripts(ctx, runCfg)
	completedAt := time.Now()
	outcome := ipc.Outcome(runErr)

	if emitter != nil {
		if err := emitter.RunResult(runErr); err != nil || emitter.Err() != nil {
			logger.Warn("ipc stream incomplete", map[string]any{"error": fmt.Sprint(emitter.Err())})
		}
	}

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if recorder != nil {
		if err := recorder.Flush(finalizeCtx, completedAt); err != nil {
			logger.Error("failed to record script run", map[string]any{"error": err.Error()})
		}
		if err := writer.Close(); err != nil {
			logger.Warn("failed to close journal", map[string]any{"error": err.Error()})
		}
	}
	if pub != nil {
		publish(finalizeCtx, pub, meta, outcome, collector.Snapshot(), settings.journal.storagePath(), completedAt, logger)
	}

	if !settings.quiet && !settings.ipc {
		printRunResult(c.App.Writer, meta, outcome, collector.Snapshot(), completedAt.Sub(meta.StartedAt))
	}

	if outcome.ExitCode == exitSuccess {
		return nil
	}
	return cli.Exit(outcomeMessage(outcome), outcome.ExitCode)
}

// logOutput forwards script output lines to the structured log.
func logOutput(logger *log.Logger, stream types.OutputStream) processes.OutputCallback {
	return func(line string) {
		logger.Info("script output", map[string]any{"stream": string(stream), "line": line})
	}
}

func outcomeMessage(o types.RunResultOutcome) string {
	if len(o.Errors) > 0 {
		return strings.Join(o.Errors, "\n")
	}
	if o.Message != nil {
		return *o.Message
	}
	return ""
}

func printRunResult(w io.Writer, meta *types.InvocationMeta, outcome types.RunResultOutcome, snap metrics.Snapshot, duration time.Duration) {
	fmt.Fprintf(w, "\ninvocation_id=%s, state=%s, action=%s, outcome=%s, duration=%s\n",
		meta.InvocationID,
		snap.State,
		snap.Action,
		outcome.Status,
		duration.Round(time.Millisecond),
	)

	fmt.Fprintf(w, "\n=== Scripts ===\n")
	fmt.Fprintf(w, "Collected:      %d\n", snap.ScriptsCollected)
	fmt.Fprintf(w, "Started:        %d\n", snap.ScriptsStarted)
	fmt.Fprintf(w, "Succeeded:      %d\n", snap.ScriptsSucceeded)
	fmt.Fprintf(w, "Failed:         %d\n", snap.ScriptsFailed)
	fmt.Fprintf(w, "Retry Requests: %d\n", snap.ScriptsRetryRequests)
	fmt.Fprintf(w, "Timed Out:      %d\n", snap.ScriptsTimedOut)

	if snap.StorageBackend != "" {
		fmt.Fprintf(w, "\n=== Journal ===\n")
		fmt.Fprintf(w, "Backend:        %s\n", snap.StorageBackend)
		fmt.Fprintf(w, "Writes OK:      %d\n", snap.JournalWriteSuccess)
		fmt.Fprintf(w, "Writes Failed:  %d\n", snap.JournalWriteFailure)
	}

	if len(outcome.Errors) > 0 {
		fmt.Fprintf(w, "\n=== Errors ===\n")
		for _, e := range outcome.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}
