package types

// RunResultType is the type discriminant for run result control frames.
const RunResultType = "run_result"

// RunResultStatus is the status of a script run.
type RunResultStatus string

const (
	// RunResultStatusCompleted indicates every script succeeded.
	RunResultStatusCompleted RunResultStatus = "completed"
	// RunResultStatusRetry indicates a script asked for a retry (exit 21).
	RunResultStatusRetry RunResultStatus = "retry"
	// RunResultStatusError indicates one or more scripts failed.
	RunResultStatusError RunResultStatus = "error"
	// RunResultStatusSetupError indicates scripts could not be collected
	// or the version file was rejected.
	RunResultStatusSetupError RunResultStatus = "setup_error"
)

// RunResultOutcome describes the final outcome of a script run.
type RunResultOutcome struct {
	// Status is the outcome status.
	Status RunResultStatus `msgpack:"status" json:"status"`
	// ExitCode is the process exit code the CLI reports for this outcome.
	ExitCode int `msgpack:"exit_code" json:"exit_code"`
	// Message is a human-readable description, set unless Status is completed.
	Message *string `msgpack:"message,omitempty" json:"message,omitempty"`
	// Errors lists each accumulated failure of an Error action.
	Errors []string `msgpack:"errors,omitempty" json:"errors,omitempty"`
}

// RunResultFrame is the control frame that ends a script run stream.
// It is not an event and does not take a sequence number.
type RunResultFrame struct {
	// Type is always "run_result".
	Type string `msgpack:"type"`
	// InvocationID identifies the invocation.
	InvocationID string `msgpack:"invocation_id"`
	// State and Action name the script run.
	State  string `msgpack:"state"`
	Action string `msgpack:"action"`
	// Outcome is the run outcome.
	Outcome RunResultOutcome `msgpack:"outcome"`
}
