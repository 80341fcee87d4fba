// Package types defines core domain types shared by the otacore packages.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// State is a lifecycle phase of the update process.
type State int

const (
	StateIdle State = iota
	StateSync
	StateDownload
	StateArtifactInstall
	StateArtifactReboot
	StateArtifactCommit
	StateArtifactRollback
	StateArtifactRollbackReboot
	StateArtifactFailure
)

// States lists every State in declaration order.
var States = []State{
	StateIdle,
	StateSync,
	StateDownload,
	StateArtifactInstall,
	StateArtifactReboot,
	StateArtifactCommit,
	StateArtifactRollback,
	StateArtifactRollbackReboot,
	StateArtifactFailure,
}

// String returns the name used in state script file names.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSync:
		return "Sync"
	case StateDownload:
		return "Download"
	case StateArtifactInstall:
		return "ArtifactInstall"
	case StateArtifactReboot:
		return "ArtifactReboot"
	case StateArtifactCommit:
		return "ArtifactCommit"
	case StateArtifactRollback:
		return "ArtifactRollback"
	case StateArtifactRollbackReboot:
		return "ArtifactRollbackReboot"
	case StateArtifactFailure:
		return "ArtifactFailure"
	}
	panic(fmt.Sprintf("types: unknown state %d", int(s)))
}

// IsArtifactScript reports whether scripts for s ship inside the artifact
// (artifact script directory) rather than on the root filesystem.
// Panics on a value outside the enumeration; that is a programming error.
func (s State) IsArtifactScript() bool {
	switch s {
	case StateIdle, StateSync, StateDownload:
		return false
	case StateArtifactInstall,
		StateArtifactReboot,
		StateArtifactCommit,
		StateArtifactRollback,
		StateArtifactRollbackReboot,
		StateArtifactFailure:
		return true
	}
	panic(fmt.Sprintf("types: unknown state %d", int(s)))
}

// ParseState parses a state name. Matching is case-insensitive.
func ParseState(name string) (State, error) {
	for _, s := range States {
		if strings.EqualFold(s.String(), name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// Action is the transition edge within a State.
type Action int

const (
	ActionEnter Action = iota
	ActionLeave
	ActionError
)

// Actions lists every Action in declaration order.
var Actions = []Action{ActionEnter, ActionLeave, ActionError}

// String returns the name used in state script file names.
func (a Action) String() string {
	switch a {
	case ActionEnter:
		return "Enter"
	case ActionLeave:
		return "Leave"
	case ActionError:
		return "Error"
	}
	panic(fmt.Sprintf("types: unknown action %d", int(a)))
}

// ParseAction parses an action name. Matching is case-insensitive.
func ParseAction(name string) (Action, error) {
	for _, a := range Actions {
		if strings.EqualFold(a.String(), name) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", name)
}
