package session

import "github.com/pkg/errors"

// ErrInvalidState is returned when an operation is called in a state that
// does not allow it, such as answering a batch that is already complete.
var ErrInvalidState = errors.New("invalid session state")
