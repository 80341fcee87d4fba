package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/justapithecus/otacore/metrics"
	"github.com/justapithecus/otacore/processes"
	"github.com/justapithecus/otacore/scripts"
	"github.com/justapithecus/otacore/types"
)

// Recorder is a scripts.Observer that buffers one ScriptRecord per finished
// script. Flush persists the buffer and the metrics snapshot; writes never
// happen on the event loop.
type Recorder struct {
	writer    Writer
	collector *metrics.Collector

	mu      sync.Mutex
	records []ScriptRecord
}

// NewRecorder creates a recorder writing through w. Journal write outcomes
// are counted on collector, which may be nil.
func NewRecorder(w Writer, collector *metrics.Collector) *Recorder {
	return &Recorder{writer: w, collector: collector}
}

// ScriptStarted implements scripts.Observer.
func (r *Recorder) ScriptStarted(string, int, int) {}

// ScriptFinished implements scripts.Observer.
func (r *Recorder) ScriptFinished(res scripts.ScriptResult) {
	rec := ScriptRecord{
		RecordKind: RecordKindScript,
		Script:     res.Script,
		Index:      res.Index,
		ExitStatus: res.ExitStatus,
		Outcome:    Outcome(res),
		StartedAt:  res.StartedAt.UTC().Format(time.RFC3339Nano),
		DurationMs: res.Duration.Milliseconds(),
		State:      res.State.String(),
		Action:     res.Action.String(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}

	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Records returns a copy of the buffered records.
func (r *Recorder) Records() []ScriptRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScriptRecord(nil), r.records...)
}

// Flush writes buffered script records, then the metrics snapshot taken
// after those writes are counted. Both writes are attempted; errors are
// combined.
func (r *Recorder) Flush(ctx context.Context, completedAt time.Time) error {
	r.mu.Lock()
	records := r.records
	r.records = nil
	r.mu.Unlock()

	var err error
	if len(records) > 0 {
		err = r.count(r.writer.WriteScripts(ctx, records))
	}
	return multierr.Append(err, r.count(r.writer.WriteMetrics(ctx, r.collector.Snapshot(), completedAt)))
}

func (r *Recorder) count(err error) error {
	if err != nil {
		r.collector.IncJournalWriteFailure()
	} else {
		r.collector.IncJournalWriteSuccess()
	}
	return err
}

// Outcome classifies a script result for the journal.
func Outcome(res scripts.ScriptResult) string {
	switch {
	case res.Err == nil:
		return OutcomeSuccess
	case errors.Is(res.Err, processes.ErrTimeout):
		return OutcomeTimeout
	case res.ExitStatus == types.RetryExitCode && res.Action != types.ActionError:
		return OutcomeRetry
	default:
		return OutcomeFailure
	}
}

var _ scripts.Observer = (*Recorder)(nil)
