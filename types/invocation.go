package types //nolint:revive // types is a valid package name

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InvocationMeta identifies one otacore invocation (an artifact inspection or
// a script run). Every log line and journal record carries it.
type InvocationMeta struct {
	// InvocationID is unique per invocation.
	InvocationID string
	// Component names the subsystem doing the work ("artifact", "scripts", ...).
	Component string
	// State and Action are set for script runs only.
	State  *State
	Action *Action
	// ArtifactName is set once the artifact header has been parsed.
	ArtifactName *string
	// StartedAt is when the invocation began.
	StartedAt time.Time
}

// NewInvocationMeta returns metadata with a fresh random ID.
func NewInvocationMeta(component string) *InvocationMeta {
	return &InvocationMeta{
		InvocationID: "inv-" + uuid.NewString(),
		Component:    component,
		StartedAt:    time.Now().UTC(),
	}
}

// ForScripts returns a copy scoped to a (state, action) script run.
func (m *InvocationMeta) ForScripts(state State, action Action) *InvocationMeta {
	c := *m
	c.State = &state
	c.Action = &action
	return &c
}

// Validate checks the metadata is usable.
func (m *InvocationMeta) Validate() error {
	if m.InvocationID == "" {
		return errors.New("invocation_id must not be empty")
	}
	if m.Component == "" {
		return errors.New("component must not be empty")
	}
	if (m.State == nil) != (m.Action == nil) {
		return fmt.Errorf("state and action must be set together (state=%v, action=%v)", m.State != nil, m.Action != nil)
	}
	return nil
}
