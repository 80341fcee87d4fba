package reader

import (
	"context"
	"errors"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/otacore/journal"
)

// Reader abstracts read-only journal access for CLI commands.
type Reader interface {
	StatsScripts(ctx context.Context, f journal.Filter) (*ScriptStats, error)
	ListScripts(ctx context.Context, f journal.Filter, limit int) ([]ScriptListItem, error)
}

// JournalReader reads a journal dataset.
type JournalReader struct {
	ds lode.Dataset
}

// NewJournalReader wraps a dataset opened with journal.NewReadDataset*.
func NewJournalReader(ds lode.Dataset) *JournalReader {
	return &JournalReader{ds: ds}
}

// StatsScripts returns the counters of the latest matching invocation.
func (r *JournalReader) StatsScripts(ctx context.Context, f journal.Filter) (*ScriptStats, error) {
	record, err := journal.QueryLatestMetrics(ctx, r.ds, f)
	if err != nil {
		return nil, err
	}
	return ParseMetricsRecord(record)
}

// ListScripts returns matching script executions, newest first. A
// positive limit caps the result.
func (r *JournalReader) ListScripts(ctx context.Context, f journal.Filter, limit int) ([]ScriptListItem, error) {
	records, err := journal.QueryScripts(ctx, r.ds, f)
	if err != nil {
		return nil, err
	}

	items := make([]ScriptListItem, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		items = append(items, ScriptListItem{
			InvocationID: rec.InvocationID,
			State:        rec.State,
			Action:       rec.Action,
			Script:       rec.Script,
			Outcome:      rec.Outcome,
			ExitStatus:   rec.ExitStatus,
			DurationMs:   rec.DurationMs,
			StartedAt:    rec.StartedAt,
		})
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}

// ParseMetricsRecord converts a raw journal metrics record to ScriptStats.
func ParseMetricsRecord(record map[string]any) (*ScriptStats, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}
	m := journal.ToMetricsRecord(record)
	if m.RecordKind != journal.RecordKindMetrics {
		return nil, errors.New("not a metrics record")
	}
	return &ScriptStats{
		InvocationID:        m.InvocationID,
		Ts:                  m.Ts,
		State:               m.State,
		Action:              m.Action,
		Collected:           m.ScriptsCollected,
		Started:             m.ScriptsStarted,
		Succeeded:           m.ScriptsSucceeded,
		Failed:              m.ScriptsFailed,
		RetryRequests:       m.ScriptsRetryRequests,
		TimedOut:            m.ScriptsTimedOut,
		LaunchFailure:       m.ScriptLaunchFailure,
		JournalWriteSuccess: m.JournalWriteSuccess,
		JournalWriteFailure: m.JournalWriteFailure,
		StorageBackend:      m.StorageBackend,
	}, nil
}
