// Package adapter defines the boundary for publishing script run
// notifications to downstream systems (fleet agents, dashboards).
//
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/justapithecus/otacore/metrics"
	"github.com/justapithecus/otacore/types"
)

// EventTypeScriptsCompleted is the event_type of every published event.
const EventTypeScriptsCompleted = "scripts_completed"

// ScriptsCompletedEvent is the payload published when a script run finishes.
type ScriptsCompletedEvent struct {
	ContractVersion string   `json:"contract_version"`
	EventType       string   `json:"event_type"` // always "scripts_completed"
	InvocationID    string   `json:"invocation_id"`
	State           string   `json:"state"`
	Action          string   `json:"action"`
	Day             string   `json:"day"`
	Outcome         string   `json:"outcome"` // completed, retry, error, setup_error
	ExitCode        int      `json:"exit_code"`
	Message         string   `json:"message,omitempty"`
	Errors          []string `json:"errors,omitempty"`
	ScriptsRun      int64    `json:"scripts_run"`
	ScriptsFailed   int64    `json:"scripts_failed"`
	StoragePath     string   `json:"storage_path,omitempty"`
	Timestamp       string   `json:"timestamp"` // RFC 3339
	DurationMs      int64    `json:"duration_ms"`
}

// NewScriptsCompletedEvent builds the event for a finished run.
func NewScriptsCompletedEvent(
	meta *types.InvocationMeta,
	outcome types.RunResultOutcome,
	snap metrics.Snapshot,
	storagePath string,
	completedAt time.Time,
) *ScriptsCompletedEvent {
	e := &ScriptsCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       EventTypeScriptsCompleted,
		InvocationID:    meta.InvocationID,
		State:           snap.State,
		Action:          snap.Action,
		Day:             completedAt.UTC().Format("2006-01-02"),
		Outcome:         string(outcome.Status),
		ExitCode:        outcome.ExitCode,
		Errors:          outcome.Errors,
		ScriptsRun:      snap.ScriptsStarted,
		ScriptsFailed:   snap.ScriptsFailed,
		StoragePath:     storagePath,
		Timestamp:       completedAt.UTC().Format(time.RFC3339),
		DurationMs:      completedAt.Sub(meta.StartedAt).Milliseconds(),
	}
	if outcome.Message != nil {
		e.Message = *outcome.Message
	}
	return e
}

// Adapter publishes script run events to a downstream system.
// Implementations are single use per invocation.
type Adapter interface {
	// Publish sends the event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ScriptsCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
