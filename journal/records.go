package journal

import (
	"time"

	"github.com/justapithecus/otacore/metrics"
)

// RecordKind discriminator values. record_kind is also the last partition key.
const (
	RecordKindScript  = "script"
	RecordKindMetrics = "metrics"
)

// Script outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetry   = "retry"
	OutcomeTimeout = "timeout"
)

// ScriptRecord is the storage format for one state script execution.
type ScriptRecord struct {
	RecordKind   string `json:"record_kind"`
	InvocationID string `json:"invocation_id"`

	Script     string `json:"script"`
	Index      int    `json:"index"`
	ExitStatus int    `json:"exit_status"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`

	// Partition keys
	State  string `json:"state"`
	Action string `json:"action"`
	Day    string `json:"day"`
}

// MetricsRecord is the storage format for an invocation metrics snapshot.
type MetricsRecord struct {
	RecordKind   string `json:"record_kind"`
	InvocationID string `json:"invocation_id"`
	Ts           string `json:"ts"`

	ScriptsStarted       int64 `json:"scripts_started"`
	ScriptsSucceeded     int64 `json:"scripts_succeeded"`
	ScriptsFailed        int64 `json:"scripts_failed"`
	ScriptsRetryRequests int64 `json:"scripts_retry_requests"`
	ScriptsTimedOut      int64 `json:"scripts_timed_out"`
	ScriptLaunchFailure  int64 `json:"script_launch_failure"`
	ScriptsCollected     int64 `json:"scripts_collected"`

	ArtifactsParsed  int64 `json:"artifacts_parsed"`
	ArtifactsFailed  int64 `json:"artifacts_failed"`
	PayloadsOpened   int64 `json:"payloads_opened"`
	PayloadFiles     int64 `json:"payload_files"`
	PayloadBytesRead int64 `json:"payload_bytes_read"`

	JournalWriteSuccess int64 `json:"journal_write_success"`
	JournalWriteFailure int64 `json:"journal_write_failure"`

	StorageBackend string `json:"storage_backend"`

	// Partition keys
	State  string `json:"state"`
	Action string `json:"action"`
	Day    string `json:"day"`
}

// partitionValue substitutes a placeholder for empty partition values so
// artifact inspections (no state or action) still produce valid paths.
func partitionValue(v string) string {
	if v == "" {
		return "none"
	}
	return v
}

// toScriptRecordMap converts a ScriptRecord to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toScriptRecordMap(r ScriptRecord, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind":   RecordKindScript,
		"invocation_id": cfg.InvocationID,
		"script":        r.Script,
		"index":         r.Index,
		"exit_status":   r.ExitStatus,
		"outcome":       r.Outcome,
		"started_at":    r.StartedAt,
		"duration_ms":   r.DurationMs,
		"state":         partitionValue(r.State),
		"action":        partitionValue(r.Action),
		"day":           cfg.Day,
	}
	if r.InvocationID != "" {
		m["invocation_id"] = r.InvocationID
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// toMetricsRecordMap converts a metrics snapshot to a map for Lode storage.
func toMetricsRecordMap(snap metrics.Snapshot, cfg Config, completedAt time.Time) map[string]any {
	invocationID := snap.InvocationID
	if invocationID == "" {
		invocationID = cfg.InvocationID
	}
	return map[string]any{
		"record_kind":   RecordKindMetrics,
		"invocation_id": invocationID,
		"ts":            completedAt.UTC().Format(time.RFC3339),

		"scripts_started":        snap.ScriptsStarted,
		"scripts_succeeded":      snap.ScriptsSucceeded,
		"scripts_failed":         snap.ScriptsFailed,
		"scripts_retry_requests": snap.ScriptsRetryRequests,
		"scripts_timed_out":      snap.ScriptsTimedOut,
		"script_launch_failure":  snap.ScriptLaunchFailure,
		"scripts_collected":      snap.ScriptsCollected,

		"artifacts_parsed":   snap.ArtifactsParsed,
		"artifacts_failed":   snap.ArtifactsFailed,
		"payloads_opened":    snap.PayloadsOpened,
		"payload_files":      snap.PayloadFiles,
		"payload_bytes_read": snap.PayloadBytesRead,

		"journal_write_success": snap.JournalWriteSuccess,
		"journal_write_failure": snap.JournalWriteFailure,

		"storage_backend": snap.StorageBackend,

		"state":  partitionValue(snap.State),
		"action": partitionValue(snap.Action),
		"day":    cfg.Day,
	}
}

// ToMetricsRecord converts a raw record map (as returned by
// QueryLatestMetrics) to a typed MetricsRecord. JSON numbers decode as
// float64; both int64 and float64 are accepted.
func ToMetricsRecord(m map[string]any) MetricsRecord {
	return MetricsRecord{
		RecordKind:   toString(m["record_kind"]),
		InvocationID: toString(m["invocation_id"]),
		Ts:           toString(m["ts"]),

		ScriptsStarted:       toInt64(m["scripts_started"]),
		ScriptsSucceeded:     toInt64(m["scripts_succeeded"]),
		ScriptsFailed:        toInt64(m["scripts_failed"]),
		ScriptsRetryRequests: toInt64(m["scripts_retry_requests"]),
		ScriptsTimedOut:      toInt64(m["scripts_timed_out"]),
		ScriptLaunchFailure:  toInt64(m["script_launch_failure"]),
		ScriptsCollected:     toInt64(m["scripts_collected"]),

		ArtifactsParsed:  toInt64(m["artifacts_parsed"]),
		ArtifactsFailed:  toInt64(m["artifacts_failed"]),
		PayloadsOpened:   toInt64(m["payloads_opened"]),
		PayloadFiles:     toInt64(m["payload_files"]),
		PayloadBytesRead: toInt64(m["payload_bytes_read"]),

		JournalWriteSuccess: toInt64(m["journal_write_success"]),
		JournalWriteFailure: toInt64(m["journal_write_failure"]),

		StorageBackend: toString(m["storage_backend"]),
		State:          toString(m["state"]),
		Action:         toString(m["action"]),
		Day:            toString(m["day"]),
	}
}

// ToScriptRecord converts a raw record map to a typed ScriptRecord.
func ToScriptRecord(m map[string]any) ScriptRecord {
	return ScriptRecord{
		RecordKind:   toString(m["record_kind"]),
		InvocationID: toString(m["invocation_id"]),
		Script:       toString(m["script"]),
		Index:        int(toInt64(m["index"])),
		ExitStatus:   int(toInt64(m["exit_status"])),
		Outcome:      toString(m["outcome"]),
		Error:        toString(m["error"]),
		StartedAt:    toString(m["started_at"]),
		DurationMs:   toInt64(m["duration_ms"]),
		State:        toString(m["state"]),
		Action:       toString(m["action"]),
		Day:          toString(m["day"]),
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
