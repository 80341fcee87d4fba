package ipc

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/multierr"

	"github.com/justapithecus/otacore/processes"
	"github.com/justapithecus/otacore/scripts"
	"github.com/justapithecus/otacore/types"
)

// SetupExitCode is the exit code reported when a run fails before any
// script is started.
const SetupExitCode = 2

// Emitter writes the event stream of one script run. It implements
// scripts.Observer and provides output callbacks for script stdout/stderr.
//
// Write failures do not interrupt the run; the first one is kept and
// returned by Err.
type Emitter struct {
	enc  *FrameEncoder
	meta *types.InvocationMeta
	now  func() time.Time

	mu  sync.Mutex
	seq int64
	err error
}

// NewEmitter creates an emitter for the invocation described by meta.
func NewEmitter(enc *FrameEncoder, meta *types.InvocationMeta) *Emitter {
	return &Emitter{enc: enc, meta: meta, now: time.Now}
}

// Emit wraps payload in an envelope with the next sequence number and
// writes it. payload is any msgpack-encodable struct or map.
func (e *Emitter) Emit(eventType types.EventType, payload any) error {
	m, err := payloadMap(payload)
	if err != nil {
		return e.keep(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	env := &types.EventEnvelope{
		ContractVersion: types.ContractVersion,
		EventID:         uuid.NewString(),
		InvocationID:    e.meta.InvocationID,
		Seq:             e.seq,
		Type:            eventType,
		Ts:              e.now().UTC().Format(time.RFC3339Nano),
		Payload:         m,
	}
	if err := e.enc.Encode(env); err != nil {
		if e.err == nil {
			e.err = err
		}
		return err
	}
	return nil
}

// Log emits a log event.
func (e *Emitter) Log(level types.LogLevel, message string, fields map[string]any) error {
	return e.Emit(types.EventTypeLog, types.LogPayload{Level: level, Message: message, Fields: fields})
}

// ScriptStarted implements scripts.Observer.
func (e *Emitter) ScriptStarted(script string, index, total int) {
	_ = e.Emit(types.EventTypeScriptStarted, types.ScriptStartedPayload{
		Script: script,
		Index:  index,
		Total:  total,
		State:  e.stateName(),
		Action: e.actionName(),
	})
}

// ScriptFinished implements scripts.Observer.
func (e *Emitter) ScriptFinished(res scripts.ScriptResult) {
	p := types.ScriptFinishedPayload{
		Script:     res.Script,
		Index:      res.Index,
		ExitStatus: res.ExitStatus,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		msg := res.Err.Error()
		p.Error = &msg
	}
	_ = e.Emit(types.EventTypeScriptFinished, p)
}

// Output returns a callback emitting each line as a script_output event.
func (e *Emitter) Output(stream types.OutputStream) processes.OutputCallback {
	return func(line string) {
		_ = e.Emit(types.EventTypeScriptOutput, types.ScriptOutputPayload{Stream: stream, Line: line})
	}
}

// RunResult writes the run_result control frame for the run outcome.
func (e *Emitter) RunResult(runErr error) error {
	frame := &types.RunResultFrame{
		Type:         types.RunResultType,
		InvocationID: e.meta.InvocationID,
		State:        e.stateName(),
		Action:       e.actionName(),
		Outcome:      Outcome(runErr),
	}
	return e.keep(e.enc.Encode(frame))
}

// Err returns the first write error, if any.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Emitter) keep(err error) error {
	if err == nil {
		return nil
	}
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
	return err
}

func (e *Emitter) stateName() string {
	if e.meta.State == nil {
		return ""
	}
	return e.meta.State.String()
}

func (e *Emitter) actionName() string {
	if e.meta.Action == nil {
		return ""
	}
	return e.meta.Action.String()
}

// Outcome maps a script run result to its run_result outcome.
func Outcome(err error) types.RunResultOutcome {
	if err == nil {
		return types.RunResultOutcome{Status: types.RunResultStatusCompleted}
	}

	msg := err.Error()
	out := types.RunResultOutcome{Message: &msg}
	switch {
	case scripts.IsSetupError(err):
		out.Status = types.RunResultStatusSetupError
		out.ExitCode = SetupExitCode
	case scripts.IsRetry(err):
		out.Status = types.RunResultStatusRetry
		out.ExitCode = types.RetryExitCode
	default:
		out.Status = types.RunResultStatusError
		out.ExitCode = scripts.ExitCode(err)
	}
	if errs := multierr.Errors(err); len(errs) > 1 {
		for _, e := range errs {
			out.Errors = append(out.Errors, e.Error())
		}
	}
	return out
}

// payloadMap converts a payload struct into the generic map carried by
// the envelope.
func payloadMap(payload any) (map[string]any, error) {
	if m, ok := payload.(map[string]any); ok {
		return m, nil
	}
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorEncode, Msg: "failed to encode payload", Err: err}
	}
	var m map[string]any
	if err := msgpack.Unmarshal(raw, &m); err != nil {
		return nil, &FrameError{Kind: FrameErrorEncode, Msg: "failed to encode payload", Err: err}
	}
	return m, nil
}

var _ scripts.Observer = (*Emitter)(nil)
