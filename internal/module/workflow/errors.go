package workflow

import "errors"

// Module errors.
var (
	ErrRunNotFound         = errors.New("workflow run not found")
	ErrUnknownWorkflow     = errors.New("unknown workflow definition")
	ErrDuplicateDefinition = errors.New("workflow definition already registered")
	ErrAlreadyStarted      = errors.New("workflow run already started")
	ErrEngineStopped       = errors.New("workflow engine stopped")
)

// permanentError marks an activity failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an activity error so the engine fails the step without
// consuming further retry attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether the error was marked permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
