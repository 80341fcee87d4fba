package scripts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/justapithecus/otacore/artifact"
	"github.com/justapithecus/otacore/types"
)

// Install writes the state scripts embedded in an artifact header into dir,
// together with a version file, replacing scripts from a previous artifact.
// Only names that match an artifact-scoped (state, action) are accepted.
func Install(dir string, embedded []artifact.Script) error {
	for _, s := range embedded {
		if !isArtifactScriptName(s.Name) {
			return fmt.Errorf("artifact script %q does not name an artifact state script", s.Name)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create script directory: %w", err)
	}
	if err := removeArtifactScripts(dir); err != nil {
		return err
	}

	for _, s := range embedded {
		path := filepath.Join(dir, s.Name)
		mode := os.FileMode(s.Mode).Perm() | 0o700
		if err := os.WriteFile(path, s.Content, mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		// WriteFile keeps the mode of an existing file.
		if err := os.Chmod(path, mode); err != nil {
			return fmt.Errorf("failed to chmod %s: %w", path, err)
		}
	}

	versionPath := filepath.Join(dir, VersionFileName)
	if err := os.WriteFile(versionPath, []byte(types.StateScriptVersion+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write version file: %w", err)
	}
	return nil
}

func isArtifactScriptName(name string) bool {
	if filepath.Base(name) != name {
		return false
	}
	for _, state := range types.States {
		if !state.IsArtifactScript() {
			continue
		}
		for _, action := range types.Actions {
			if IsValidStateScript(name, state, action) {
				return true
			}
		}
	}
	return false
}

func removeArtifactScripts(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list script directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isArtifactScriptName(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove stale script %s: %w", e.Name(), err)
		}
	}
	return nil
}
