package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
)

// runApp runs the CLI in-process and captures its output. The returned
// error carries the exit code as a cli.ExitCoder.
func runApp(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := &cli.App{
		Name:           "otacore",
		Writer:         &out,
		ErrWriter:      &errOut,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			RunCommand(),
			InstallScriptsCommand(),
			InspectCommand(),
			StatsCommand(),
			ListCommand(),
			DebugCommand(),
			VersionCommand("", "test"),
		},
	}
	err = app.RunContext(t.Context(), append([]string{"otacore"}, args...))
	return out.String(), errOut.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestJournalFlags_IncludeConfig(t *testing.T) {
	names := map[string]bool{}
	for _, f := range JournalFlags() {
		names[f.Names()[0]] = true
	}
	for _, want := range []string{"config", "journal-backend", "journal-path", "journal-dataset"} {
		if !names[want] {
			t.Errorf("JournalFlags missing --%s", want)
		}
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// Actual TTY behavior depends on runtime environment.
	_ = isStderrTTY()
}

func TestVersion_JSON(t *testing.T) {
	out, _, err := runApp(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{`"version"`, `"commit": "test"`, `"artifact_format": 3`} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("version output missing %s:\n%s", want, out)
		}
	}

	if _, _, err := runApp(t, "version", "--tui"); exitCode(err) != 1 {
		t.Errorf("version --tui exit = %d, want 1", exitCode(err))
	}
}
