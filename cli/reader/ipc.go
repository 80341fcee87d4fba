package reader

import (
	"errors"
	"io"

	"github.com/justapithecus/otacore/ipc"
	"github.com/justapithecus/otacore/types"
)

// DebugIPC decodes a captured frame stream. Decode errors on individual
// frames are counted and skipped; a truncated or oversized frame ends the
// stream and sets Truncated.
func DebugIPC(r io.Reader, verbose bool) *IPCDebugResponse {
	resp := &IPCDebugResponse{
		Transport: "stdio",
		Encoding:  "msgpack",
		Events:    map[string]int{},
	}
	recordErr := func(err error) {
		resp.Errors++
		msg := err.Error()
		resp.LastError = &msg
	}

	dec := ipc.NewFrameDecoder(r)
	for {
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return resp
		}
		if err != nil {
			recordErr(err)
			resp.Truncated = ipc.IsFatalFrameError(err)
			return resp
		}
		resp.Frames++

		frame, err := ipc.DecodeFrame(payload)
		if err != nil {
			recordErr(err)
			continue
		}

		switch f := frame.(type) {
		case *types.RunResultFrame:
			resp.RunResult = &RunResultDigest{
				InvocationID: f.InvocationID,
				State:        f.State,
				Action:       f.Action,
				Status:       string(f.Outcome.Status),
				ExitCode:     f.Outcome.ExitCode,
				Message:      f.Outcome.Message,
				Errors:       f.Outcome.Errors,
			}
			if verbose {
				resp.FrameDetail = append(resp.FrameDetail, FrameDetail{Type: types.RunResultType})
			}
		case *types.EventEnvelope:
			resp.Events[string(f.Type)]++
			if f.Seq > resp.LastSeq {
				resp.LastSeq = f.Seq
			}
			if verbose {
				resp.FrameDetail = append(resp.FrameDetail, FrameDetail{Seq: f.Seq, Type: string(f.Type), Ts: f.Ts})
			}
		}
	}
}
