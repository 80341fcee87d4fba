package artifact

import (
	"errors"
	"fmt"

	"github.com/justapithecus/otacore/compression"
)

// ErrorCode classifies artifact errors.
type ErrorCode int

const (
	// ParseErrorCode covers malformed containers, unexpected records and
	// invalid metadata.
	ParseErrorCode ErrorCode = iota + 1
	// VersionErrorCode covers a missing, unreadable or unsupported version record.
	VersionErrorCode
	// DecompressionErrorCode covers unknown codecs and corrupt compressed streams.
	DecompressionErrorCode
	// NoMorePayloadFilesErrorCode signals a drained payload. It is not a failure.
	NoMorePayloadFilesErrorCode
	// NoMorePayloadsErrorCode signals a drained artifact. It is not a failure.
	NoMorePayloadsErrorCode
)

// Sentinel errors for errors.Is matching.
var (
	ErrParse              = errors.New("artifact parse error")
	ErrVersion            = errors.New("artifact version error")
	ErrDecompression      = errors.New("artifact decompression error")
	ErrNoMorePayloadFiles = errors.New("no more payload files")
	ErrNoMorePayloads     = errors.New("no more payloads")
)

// String returns the code name.
func (c ErrorCode) String() string {
	switch c {
	case ParseErrorCode:
		return "ParseError"
	case VersionErrorCode:
		return "VersionError"
	case DecompressionErrorCode:
		return "DecompressionError"
	case NoMorePayloadFilesErrorCode:
		return "NoMorePayloadFilesError"
	case NoMorePayloadsErrorCode:
		return "NoMorePayloadsError"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

func (c ErrorCode) sentinel() error {
	switch c {
	case ParseErrorCode:
		return ErrParse
	case VersionErrorCode:
		return ErrVersion
	case DecompressionErrorCode:
		return ErrDecompression
	case NoMorePayloadFilesErrorCode:
		return ErrNoMorePayloadFiles
	case NoMorePayloadsErrorCode:
		return ErrNoMorePayloads
	default:
		return nil
	}
}

// Error is returned by every artifact operation.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's code. Version and decompression
// errors are parse failures too, so they also match ErrParse.
func (e *Error) Is(target error) bool {
	s := e.Code.sentinel()
	if s != nil && target == s {
		return true
	}
	return target == ErrParse && (e.Code == VersionErrorCode || e.Code == DecompressionErrorCode)
}

func newError(code ErrorCode, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func parseError(format string, args ...any) *Error {
	return newError(ParseErrorCode, fmt.Sprintf(format, args...), nil)
}

// classify wraps an error surfaced while reading compressed or tar data.
// Decoder failures keep their decompression code wherever they bubble up.
func classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if compression.IsDecompressionError(err) {
		return newError(DecompressionErrorCode, msg, err)
	}
	return newError(ParseErrorCode, msg, err)
}

// CodeOf returns the code of an artifact error, or 0 for foreign errors.
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return 0
}
