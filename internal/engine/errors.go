package engine

import (
	"errors"
	"fmt"
)

// ErrEngineClosed is returned by Subscribe and Write after Close.
var ErrEngineClosed = errors.New("engine closed")

// WriteError reports a backend-rejected write. It reaches callers through
// the PendingWrite's Done channel; the optimistic local effect has already
// been rolled back by the time it is delivered.
type WriteError struct {
	MutationID string
	Reason     string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s rejected: %s", e.MutationID, e.Reason)
}

// IsWriteRejected reports whether err is a backend rejection.
// Uses errors.As to handle wrapped errors.
func IsWriteRejected(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}
