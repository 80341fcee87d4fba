// Package metrics provides per-invocation counters for artifact parsing and
// state script execution.
//
// The Collector is a leaf package with no internal dependencies. Counters are
// recorded live by the artifact parser and the script runner; a Snapshot is
// taken at the end of the invocation and persisted to the journal.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Safe to read concurrently after creation.
type Snapshot struct {
	// State scripts
	ScriptsStarted       int64
	ScriptsSucceeded     int64
	ScriptsFailed        int64
	ScriptsRetryRequests int64
	ScriptsTimedOut      int64
	ScriptLaunchFailure  int64
	ScriptsCollected     int64

	// Artifact parsing
	ArtifactsParsed  int64
	ArtifactsFailed  int64
	PayloadsOpened   int64
	PayloadFiles     int64
	PayloadBytesRead int64

	// Journal
	JournalWriteSuccess int64
	JournalWriteFailure int64

	// Dimensions (informational, set at construction)
	State          string
	Action         string
	StorageBackend string
	InvocationID   string
}

// Collector accumulates counters during a single invocation.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	scriptsStarted       int64
	scriptsSucceeded     int64
	scriptsFailed        int64
	scriptsRetryRequests int64
	scriptsTimedOut      int64
	scriptLaunchFailure  int64
	scriptsCollected     int64

	artifactsParsed  int64
	artifactsFailed  int64
	payloadsOpened   int64
	payloadFiles     int64
	payloadBytesRead int64

	journalWriteSuccess int64
	journalWriteFailure int64

	state          string
	action         string
	storageBackend string
	invocationID   string
}

// NewCollector creates a Collector with dimension labels.
// state and action are empty for artifact inspections.
func NewCollector(state, action, storageBackend, invocationID string) *Collector {
	return &Collector{
		state:          state,
		action:         action,
		storageBackend: storageBackend,
		invocationID:   invocationID,
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- State scripts ---

// AddScriptsCollected records how many scripts matched (state, action).
func (c *Collector) AddScriptsCollected(n int) {
	if c == nil {
		return
	}
	c.add(&c.scriptsCollected, int64(n))
}

// IncScriptStarted records a script launch.
func (c *Collector) IncScriptStarted() {
	if c == nil {
		return
	}
	c.add(&c.scriptsStarted, 1)
}

// IncScriptSucceeded records a script exiting 0.
func (c *Collector) IncScriptSucceeded() {
	if c == nil {
		return
	}
	c.add(&c.scriptsSucceeded, 1)
}

// IncScriptFailed records a script that exited non-zero or could not be waited on.
func (c *Collector) IncScriptFailed() {
	if c == nil {
		return
	}
	c.add(&c.scriptsFailed, 1)
}

// IncScriptRetryRequest records a script exiting with the retry code.
func (c *Collector) IncScriptRetryRequest() {
	if c == nil {
		return
	}
	c.add(&c.scriptsRetryRequests, 1)
}

// IncScriptTimedOut records a script killed by its timeout.
func (c *Collector) IncScriptTimedOut() {
	if c == nil {
		return
	}
	c.add(&c.scriptsTimedOut, 1)
}

// IncScriptLaunchFailure records a script that could not be started.
func (c *Collector) IncScriptLaunchFailure() {
	if c == nil {
		return
	}
	c.add(&c.scriptLaunchFailure, 1)
}

// --- Artifact parsing ---

// IncArtifactParsed records a successfully parsed artifact header.
func (c *Collector) IncArtifactParsed() {
	if c == nil {
		return
	}
	c.add(&c.artifactsParsed, 1)
}

// IncArtifactFailed records an artifact rejected during parsing.
func (c *Collector) IncArtifactFailed() {
	if c == nil {
		return
	}
	c.add(&c.artifactsFailed, 1)
}

// IncPayloadOpened records a payload handed out by the parser.
func (c *Collector) IncPayloadOpened() {
	if c == nil {
		return
	}
	c.add(&c.payloadsOpened, 1)
}

// IncPayloadFile records a payload file handed out by the parser.
func (c *Collector) IncPayloadFile() {
	if c == nil {
		return
	}
	c.add(&c.payloadFiles, 1)
}

// AddPayloadBytes records decoded payload file bytes delivered to a reader.
func (c *Collector) AddPayloadBytes(n int) {
	if c == nil || n == 0 {
		return
	}
	c.add(&c.payloadBytesRead, int64(n))
}

// --- Journal ---
// Journal counters are per-call, not per-record.

// IncJournalWriteSuccess records a successful journal write operation.
func (c *Collector) IncJournalWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.journalWriteSuccess, 1)
}

// IncJournalWriteFailure records a failed journal write operation.
func (c *Collector) IncJournalWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.journalWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ScriptsStarted:       c.scriptsStarted,
		ScriptsSucceeded:     c.scriptsSucceeded,
		ScriptsFailed:        c.scriptsFailed,
		ScriptsRetryRequests: c.scriptsRetryRequests,
		ScriptsTimedOut:      c.scriptsTimedOut,
		ScriptLaunchFailure:  c.scriptLaunchFailure,
		ScriptsCollected:     c.scriptsCollected,

		ArtifactsParsed:  c.artifactsParsed,
		ArtifactsFailed:  c.artifactsFailed,
		PayloadsOpened:   c.payloadsOpened,
		PayloadFiles:     c.payloadFiles,
		PayloadBytesRead: c.payloadBytesRead,

		JournalWriteSuccess: c.journalWriteSuccess,
		JournalWriteFailure: c.journalWriteFailure,

		State:          c.state,
		Action:         c.action,
		StorageBackend: c.storageBackend,
		InvocationID:   c.invocationID,
	}
}
