package types

// ContractVersion is the version of the script lifecycle event contract.
const ContractVersion = "0.1.0"

// EventType represents the type of a script lifecycle event.
type EventType string

// Event type constants.
const (
	EventTypeScriptStarted  EventType = "script_started"
	EventTypeScriptOutput   EventType = "script_output"
	EventTypeScriptFinished EventType = "script_finished"
	EventTypeLog            EventType = "log"
)

// IsScriptEvent reports whether the event describes a single script.
func (e EventType) IsScriptEvent() bool {
	switch e {
	case EventTypeScriptStarted, EventTypeScriptOutput, EventTypeScriptFinished:
		return true
	default:
		return false
	}
}

// LogLevel represents log severity.
type LogLevel string

// Log level constants.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// OutputStream names the stream a script output line came from.
type OutputStream string

// Output streams.
const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// EventEnvelope is the envelope for all script lifecycle events.
type EventEnvelope struct {
	// ContractVersion is the semantic version of the event contract.
	ContractVersion string `msgpack:"contract_version" json:"contract_version"`
	// EventID is a unique identifier for this event, scoped to the invocation.
	EventID string `msgpack:"event_id" json:"event_id"`
	// InvocationID identifies the otacore invocation that emitted the event.
	InvocationID string `msgpack:"invocation_id" json:"invocation_id"`
	// Seq is the monotonic sequence number, starts at 1.
	Seq int64 `msgpack:"seq" json:"seq"`
	// Type is the event type discriminator.
	Type EventType `msgpack:"type" json:"type"`
	// Ts is the event timestamp in RFC 3339 UTC format.
	Ts string `msgpack:"ts" json:"ts"`
	// Payload is the type-specific payload.
	Payload map[string]any `msgpack:"payload" json:"payload"`
}

// ScriptStartedPayload is the payload of a script_started event.
type ScriptStartedPayload struct {
	Script string `msgpack:"script"`
	// Index is the zero-based position of the script in the run.
	Index int `msgpack:"index"`
	// Total is the number of scripts collected for the run.
	Total  int    `msgpack:"total"`
	State  string `msgpack:"state"`
	Action string `msgpack:"action"`
}

// ScriptOutputPayload is the payload of a script_output event: one line
// without its trailing newline.
type ScriptOutputPayload struct {
	Stream OutputStream `msgpack:"stream"`
	Line   string       `msgpack:"line"`
}

// ScriptFinishedPayload is the payload of a script_finished event.
type ScriptFinishedPayload struct {
	Script     string  `msgpack:"script"`
	Index      int     `msgpack:"index"`
	ExitStatus int     `msgpack:"exit_status"`
	DurationMs int64   `msgpack:"duration_ms"`
	Error      *string `msgpack:"error,omitempty"`
}

// LogPayload is the payload of a log event.
type LogPayload struct {
	Level   LogLevel       `msgpack:"level"`
	Message string         `msgpack:"message"`
	Fields  map[string]any `msgpack:"fields,omitempty"`
}
