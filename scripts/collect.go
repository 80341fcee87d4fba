// Package scripts collects and runs state scripts.
//
// State scripts live in two directories: one for scripts shipped inside the
// artifact (Artifact* states) and one on the root filesystem (Idle, Sync,
// Download). A script for (state, action) is an executable named
// <State>_<Action>_NN[_suffix]; scripts run sequentially in lexicographic
// order of their full path.
package scripts

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/justapithecus/otacore/iox"
	"github.com/justapithecus/otacore/log"
	"github.com/justapithecus/otacore/types"
)

// VersionFileName is the version marker inside the artifact script directory.
const VersionFileName = "version"

// CorrectVersionFile checks the optional state script version file at path.
// A missing file is accepted: older producers never wrote one.
func CorrectVersionFile(path string) error {
	if !iox.FileExists(path) {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open the version file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return fmt.Errorf("error reading the version number from the version file: %w", err)
		}
		return fmt.Errorf("error reading the version number from the version file: %w", io.ErrUnexpectedEOF)
	}

	version := sc.Text()
	if version != types.StateScriptVersion {
		return &Error{
			Code: VersionFileError,
			Msg:  "Unexpected Artifact script version found: " + version,
		}
	}
	return nil
}

// stateScriptPattern returns the anchored name pattern for (state, action).
func stateScriptPattern(state types.State, action types.Action) *regexp.Regexp {
	return regexp.MustCompile(`^(` + state.String() + `)_(` + action.String() + `)_[0-9][0-9](_\S+)?$`)
}

// IsValidStateScript reports whether the base name of path is a script name
// for (state, action). It does not look at the file itself.
func IsValidStateScript(path string, state types.State, action types.Action) bool {
	return stateScriptPattern(state, action).MatchString(filepath.Base(path))
}

// Matcher returns a predicate accepting executable files whose base name is
// a script name for (state, action).
func Matcher(state types.State, action types.Action) func(path string) bool {
	return matcher(state, action, log.Nop())
}

// matcher is Matcher with a debug line for every file it turns down.
func matcher(state types.State, action types.Action, logger *log.Logger) func(path string) bool {
	re := stateScriptPattern(state, action)
	return func(path string) bool {
		if !re.MatchString(filepath.Base(path)) {
			logger.Debug("ignoring file, not a state script name", map[string]any{"file": path})
			return false
		}
		if !iox.IsExecutable(path) {
			logger.Debug("ignoring state script, not executable", map[string]any{"file": path})
			return false
		}
		return true
	}
}

// Collect lists the scripts for (state, action) in dir, sorted.
// Any listing failure, including a missing directory, is a CollectionError.
func Collect(dir string, state types.State, action types.Action) ([]string, error) {
	return collect(dir, state, action, log.Nop())
}

func collect(dir string, state types.State, action types.Action, logger *log.Logger) ([]string, error) {
	found, err := iox.ListFiles(dir, matcher(state, action, logger))
	if err != nil {
		return nil, &Error{
			Code: CollectionError,
			Msg:  "Failed to get the scripts, error: " + err.Error(),
			Err:  err,
		}
	}
	sort.Strings(found)
	return found, nil
}
