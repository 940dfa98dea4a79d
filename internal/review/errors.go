package review

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/juliomeza/memory-card/internal/session"
)

// ErrNoSession is returned when a user answers or advances without an active session
var ErrNoSession = errors.Wrap(session.ErrInvalidState, "no active session")

// ErrDispatcherClosed is returned when a write is dispatched after Close
var ErrDispatcherClosed = errors.New("dispatcher closed")

// PersistenceError reports a failed progress write. The in-memory session
// has already advanced when it is returned and is not rolled back.
type PersistenceError struct {
	Op     string
	UserID int64
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s for user %d: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
