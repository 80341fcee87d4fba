// Package reader provides the read-side data access layer for the otacore CLI.
//
// Read-only commands go through this package exclusively. It inspects
// artifacts without installing anything, summarizes journal datasets and
// decodes captured IPC streams.
package reader

// FileSummary describes one file inside a payload.
type FileSummary struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// PayloadSummary describes one data record of an artifact.
type PayloadSummary struct {
	Index       int           `json:"index"`
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Compression string        `json:"compression"`
	Files       []FileSummary `json:"files"`
	Bytes       int64         `json:"bytes"`
}

// ArtifactInspectResponse is the result of inspecting an artifact.
type ArtifactInspectResponse struct {
	Path        string           `json:"path"`
	Name        string           `json:"artifact_name"`
	Group       string           `json:"artifact_group,omitempty"`
	Format      string           `json:"format"`
	Version     int              `json:"version"`
	DeviceTypes []string         `json:"device_types"`
	Signed      bool             `json:"signed"`
	Augmented   bool             `json:"augmented"`
	Scripts     []string         `json:"scripts"`
	Payloads    []PayloadSummary `json:"payloads"`
	// BytesVerified is true when every payload file was read to its end.
	BytesVerified bool `json:"bytes_verified"`
	// BytesRead counts the artifact bytes consumed from the input stream.
	BytesRead int64 `json:"bytes_read"`
}

// ScriptStats summarizes the latest metrics record of a journal.
type ScriptStats struct {
	InvocationID string `json:"invocation_id"`
	Ts           string `json:"ts"`
	State        string `json:"state"`
	Action       string `json:"action"`

	Collected     int64 `json:"collected"`
	Started       int64 `json:"started"`
	Succeeded     int64 `json:"succeeded"`
	Failed        int64 `json:"failed"`
	RetryRequests int64 `json:"retry_requests"`
	TimedOut      int64 `json:"timed_out"`
	LaunchFailure int64 `json:"launch_failure"`

	JournalWriteSuccess int64  `json:"journal_write_success"`
	JournalWriteFailure int64  `json:"journal_write_failure"`
	StorageBackend      string `json:"storage_backend"`
}

// ScriptListItem is one row of a script history listing.
type ScriptListItem struct {
	InvocationID string `json:"invocation_id"`
	State        string `json:"state"`
	Action       string `json:"action"`
	Script       string `json:"script"`
	Outcome      string `json:"outcome"`
	ExitStatus   int    `json:"exit_status"`
	DurationMs   int64  `json:"duration_ms"`
	StartedAt    string `json:"started_at"`
}

// IPCDebugResponse summarizes a captured IPC frame stream.
type IPCDebugResponse struct {
	Transport   string           `json:"transport"`
	Encoding    string           `json:"encoding"`
	Frames      int              `json:"frames"`
	Events      map[string]int   `json:"events"`
	LastSeq     int64            `json:"last_seq"`
	Errors      int              `json:"errors"`
	LastError   *string          `json:"last_error"`
	RunResult   *RunResultDigest `json:"run_result"`
	Truncated   bool             `json:"truncated"`
	FrameDetail []FrameDetail    `json:"frame_detail,omitempty"`
}

// RunResultDigest is the terminal frame of an IPC stream.
type RunResultDigest struct {
	InvocationID string   `json:"invocation_id"`
	State        string   `json:"state"`
	Action       string   `json:"action"`
	Status       string   `json:"status"`
	ExitCode     int      `json:"exit_code"`
	Message      *string  `json:"message"`
	Errors       []string `json:"errors,omitempty"`
}

// FrameDetail is one decoded frame, reported in verbose mode.
type FrameDetail struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`
	Ts   string `json:"ts"`
}
