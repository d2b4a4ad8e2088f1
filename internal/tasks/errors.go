package tasks

import "errors"

// Sentinel errors forming the supervisor's error taxonomy. Validation errors
// are returned synchronously and never retried; ErrSpawn is retried by the
// health monitor with bounded backoff; ErrPersistence is surfaced but does
// not roll back in-memory state.
var (
	ErrNotFound           = errors.New("task not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDuplicateName      = errors.New("task name already exists")
	ErrAlreadyRunning     = errors.New("task already running")
	ErrEmptySequence      = errors.New("image sequence is empty")
	ErrResolutionMismatch = errors.New("image resolution mismatch")
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrOutOfRange         = errors.New("index out of range")
	ErrLastImage          = errors.New("cannot remove last image of a running task")
	ErrImageNotFound      = errors.New("image not found")
	ErrSpawn              = errors.New("encoder spawn failed")
	ErrPersistence        = errors.New("persistence failure")
)

// IsValidation reports whether err belongs to the synchronously-returned
// validation class that must never trigger automatic retries.
func IsValidation(err error) bool {
	for _, sentinel := range []error{
		ErrNotFound,
		ErrInvalidArgument,
		ErrDuplicateName,
		ErrAlreadyRunning,
		ErrEmptySequence,
		ErrResolutionMismatch,
		ErrUnsupportedFormat,
		ErrOutOfRange,
		ErrLastImage,
		ErrImageNotFound,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
