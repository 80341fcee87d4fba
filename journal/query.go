package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics records match.
var ErrNoMetricsFound = errors.New("no metrics records found")

// Filter narrows queries. Empty fields match everything.
type Filter struct {
	State        string
	Action       string
	InvocationID string
}

// snapshotMatches is a coarse pre-filter on manifest paths. Record fields
// remain authoritative.
func (f Filter) snapshotMatches(snap *lode.DatasetSnapshot, kind string) bool {
	return snapshotMatchesFilter(snap, "record_kind", kind) &&
		snapshotMatchesFilter(snap, "state", f.State) &&
		snapshotMatchesFilter(snap, "action", f.Action)
}

func (f Filter) recordMatches(record map[string]any, kind string) bool {
	if record["record_kind"] != kind {
		return false
	}
	if f.State != "" && toString(record["state"]) != f.State {
		return false
	}
	if f.Action != "" && toString(record["action"]) != f.Action {
		return false
	}
	if f.InvocationID != "" && toString(record["invocation_id"]) != f.InvocationID {
		return false
	}
	return true
}

// QueryLatestMetrics finds the most recent metrics record matching f.
// Returns the raw record map or ErrNoMetricsFound.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, f Filter) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	// Snapshots are ordered by creation time; walk latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !f.snapshotMatches(snap, RecordKindMetrics) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for j := len(data) - 1; j >= 0; j-- {
			record, ok := data[j].(map[string]any)
			if ok && f.recordMatches(record, RecordKindMetrics) {
				return record, nil
			}
		}
	}

	return nil, ErrNoMetricsFound
}

// QueryScripts returns the script records matching f, oldest first.
func QueryScripts(ctx context.Context, ds lode.Dataset, f Filter) ([]ScriptRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	var out []ScriptRecord
	for _, snap := range snapshots {
		if !f.snapshotMatches(snap, RecordKindScript) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if ok && f.recordMatches(record, RecordKindScript) {
				out = append(out, ToScriptRecord(record))
			}
		}
	}
	return out, nil
}
