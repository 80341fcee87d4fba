package scripts

import (
	"errors"
	"fmt"

	"github.com/justapithecus/otacore/types"
)

// ErrorCode classifies state script failures.
type ErrorCode int

const (
	// VersionFileError means the artifact script version file names an
	// unsupported version.
	VersionFileError ErrorCode = iota + 1
	// CollectionError means the script directory could not be listed.
	CollectionError
	// RetryExitCodeError means a script asked for the state to be retried.
	RetryExitCodeError
	// NonZeroExitStatusError means a script exited with a failure status.
	NonZeroExitStatusError
)

// Sentinel errors for errors.Is matching.
var (
	ErrVersionFile       = errors.New("state script version file error")
	ErrCollection        = errors.New("state script collection error")
	ErrRetryExitCode     = errors.New("state script requested retry")
	ErrNonZeroExitStatus = errors.New("state script non-zero exit status")

	// ErrRunnerUsed is returned when AsyncRunScripts is called twice.
	ErrRunnerUsed = errors.New("script runner already used")
)

// String returns the code name.
func (c ErrorCode) String() string {
	switch c {
	case VersionFileError:
		return "VersionFileError"
	case CollectionError:
		return "CollectionError"
	case RetryExitCodeError:
		return "RetryExitCodeError"
	case NonZeroExitStatusError:
		return "NonZeroExitStatusError"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// Error is a classified state script failure.
type Error struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's code.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case VersionFileError:
		return target == ErrVersionFile
	case CollectionError:
		return target == ErrCollection
	case RetryExitCodeError:
		return target == ErrRetryExitCode
	case NonZeroExitStatusError:
		return target == ErrNonZeroExitStatus
	default:
		return false
	}
}

// IsRetry reports whether err asks for the current state to be retried.
func IsRetry(err error) bool {
	return errors.Is(err, ErrRetryExitCode)
}

// ExitCode maps a script run result to a process exit code: 0 on success,
// the retry code when a script requested a retry, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsRetry(err):
		return types.RetryExitCode
	default:
		return 1
	}
}

// IsSetupError reports whether err came from checking the version file or
// collecting scripts, before any script ran.
func IsSetupError(err error) bool {
	return errors.Is(err, ErrVersionFile) || errors.Is(err, ErrCollection)
}
