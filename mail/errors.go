package mail

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound is returned when identity resolution targets a missing
// account. It aborts the send entirely.
var ErrAccountNotFound = errors.New("account not found")

// ValidationError rejects a send before any persistence.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
