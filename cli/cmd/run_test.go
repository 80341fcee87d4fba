package cmd

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/justapithecus/otacore/adapter"
	"github.com/justapithecus/otacore/cli/reader"
)

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		state    string
		action   string
		scripts  map[string]string
		wantCode int
		wantMsg  []string
	}{
		{
			name:     "no scripts",
			state:    "Sync",
			action:   "Enter",
			wantCode: exitSuccess,
		},
		{
			name:     "all succeed",
			state:    "Sync",
			action:   "Enter",
			scripts:  map[string]string{"Sync_Enter_01": "exit 0", "Sync_Enter_02": "exit 0"},
			wantCode: exitSuccess,
		},
		{
			name:     "retry request",
			state:    "Sync",
			action:   "Leave",
			scripts:  map[string]string{"Sync_Leave_01": "exit 21"},
			wantCode: exitRetry,
		},
		{
			name:     "failure stops the run",
			state:    "Download",
			action:   "Enter",
			scripts:  map[string]string{"Download_Enter_01": "exit 3", "Download_Enter_02": "exit 0"},
			wantCode: exitFailure,
			wantMsg:  []string{"Received error code: 3"},
		},
		{
			name:   "error action accumulates",
			state:  "Sync",
			action: "Error",
			scripts: map[string]string{
				"Sync_Error_01": "exit 1",
				"Sync_Error_02": "exit 21",
			},
			wantCode: exitFailure,
			wantMsg:  []string{"Sync_Error_01", "Sync_Error_02"},
		},
		{
			name:     "unknown state",
			state:    "Bogus",
			action:   "Enter",
			wantCode: exitSetupError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootfs := filepath.Join(t.TempDir(), "rootfs")
			if err := os.MkdirAll(rootfs, 0o755); err != nil {
				t.Fatal(err)
			}
			for name, body := range tt.scripts {
				writeScript(t, rootfs, name, body)
			}

			_, _, err := runApp(t, "run",
				"--state", tt.state,
				"--action", tt.action,
				"--rootfs-script-path", rootfs,
				"--quiet",
			)
			if got := exitCode(err); got != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (err = %v)", got, tt.wantCode, err)
			}
			for _, want := range tt.wantMsg {
				if err == nil || !strings.Contains(err.Error(), want) {
					t.Errorf("exit message %v does not mention %q", err, want)
				}
			}
		})
	}
}

func TestRun_VersionFileMismatchIsSetupError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "ArtifactInstall_Enter_01", "exit 0")
	if err := os.WriteFile(filepath.Join(dir, "version"), []byte("2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := runApp(t, "run", "--state", "ArtifactInstall", "--action", "Enter",
		"--artifact-script-path", dir, "--quiet")
	if got := exitCode(err); got != exitSetupError {
		t.Errorf("exit code = %d, want %d (err = %v)", got, exitSetupError, err)
	}
}

func TestRun_MissingScriptDirIsSetupError(t *testing.T) {
	_, _, err := runApp(t, "run", "--state", "Idle", "--action", "Enter",
		"--rootfs-script-path", filepath.Join(t.TempDir(), "absent"), "--quiet")
	if got := exitCode(err); got != exitSetupError {
		t.Errorf("exit code = %d, want %d (err = %v)", got, exitSetupError, err)
	}
}

func TestRun_IPCStream(t *testing.T) {
	rootfs := t.TempDir()
	writeScript(t, rootfs, "Idle_Enter_01", "echo hello\necho oops >&2")

	out, _, err := runApp(t, "run", "--state", "Idle", "--action", "Enter",
		"--rootfs-script-path", rootfs, "--ipc")
	if err != nil {
		t.Fatalf("run --ipc: %v", err)
	}

	resp := reader.DebugIPC(strings.NewReader(out), false)
	if resp.Errors != 0 || resp.Truncated {
		t.Fatalf("ipc stream errors: %+v", resp)
	}
	if resp.Events["script_started"] != 1 || resp.Events["script_finished"] != 1 || resp.Events["script_output"] != 2 {
		t.Errorf("events = %v", resp.Events)
	}
	if resp.RunResult == nil || resp.RunResult.Status != "completed" || resp.RunResult.State != "Idle" {
		t.Errorf("run result = %+v", resp.RunResult)
	}
}

func TestRun_JournalAndStats(t *testing.T) {
	rootfs := t.TempDir()
	journalDir := t.TempDir()
	writeScript(t, rootfs, "Sync_Enter_01", "exit 0")
	writeScript(t, rootfs, "Sync_Enter_02", "exit 21")

	out, _, err := runApp(t, "run", "--state", "Sync", "--action", "Enter",
		"--rootfs-script-path", rootfs,
		"--journal-backend", "fs", "--journal-path", journalDir)
	if got := exitCode(err); got != exitRetry {
		t.Fatalf("exit code = %d, want %d", got, exitRetry)
	}
	if !strings.Contains(out, "outcome=retry") {
		t.Errorf("run summary missing outcome:\n%s", out)
	}

	out, _, err = runApp(t, "stats", "scripts", "--format", "json",
		"--journal-backend", "fs", "--journal-path", journalDir, "--state", "Sync")
	if err != nil {
		t.Fatalf("stats scripts: %v", err)
	}
	var stats reader.ScriptStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %v\n%s", err, out)
	}
	if stats.Started != 2 || stats.Succeeded != 1 || stats.RetryRequests != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.JournalWriteSuccess != 1 || stats.StorageBackend != "fs" {
		t.Errorf("journal counters = %+v", stats)
	}

	out, _, err = runApp(t, "list", "scripts", "--format", "json",
		"--journal-backend", "fs", "--journal-path", journalDir)
	if err != nil {
		t.Fatalf("list scripts: %v", err)
	}
	var items []reader.ScriptListItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	if len(items) != 2 || items[0].Outcome != "retry" || items[1].Outcome != "success" {
		t.Errorf("list = %+v", items)
	}
}

func TestRun_NoJournalConfigured(t *testing.T) {
	_, _, err := runApp(t, "stats", "scripts", "--format", "json")
	if got := exitCode(err); got != 1 {
		t.Errorf("exit code = %d, want 1", got)
	}
}

func TestRun_WebhookFromConfig(t *testing.T) {
	var (
		mu     sync.Mutex
		events []adapter.ScriptsCompletedEvent
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var e adapter.ScriptsCompletedEvent
		if err := json.Unmarshal(body, &e); err == nil {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rootfs := t.TempDir()
	writeScript(t, rootfs, "Download_Leave_01", "exit 0")

	cfgPath := filepath.Join(t.TempDir(), "otacore.yaml")
	t.Setenv("OTACORE_TEST_HOOK", srv.URL)
	cfg := "rootfs_script_path: " + rootfs + "\n" +
		"adapter:\n  type: webhook\n  url: ${OTACORE_TEST_HOOK}\n  retries: 0\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := runApp(t, "run", "--config", cfgPath, "--state", "Download", "--action", "Leave", "--quiet"); err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("webhook received %d events, want 1", len(events))
	}
	e := events[0]
	if e.Outcome != "completed" || e.State != "Download" || e.Action != "Leave" || e.ScriptsRun != 1 {
		t.Errorf("event = %+v", e)
	}
}

func TestRun_InvalidAdapterIsSetupError(t *testing.T) {
	_, _, err := runApp(t, "run", "--state", "Idle", "--action", "Enter",
		"--rootfs-script-path", t.TempDir(), "--adapter", "carrier-pigeon", "--adapter-url", "x")
	if got := exitCode(err); got != exitSetupError {
		t.Errorf("exit code = %d, want %d", got, exitSetupError)
	}
}
