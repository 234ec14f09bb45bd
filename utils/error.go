package utils

import "fmt"

// StatusError is a custom error type that includes an HTTP status code.
type StatusError struct {
	error
	status int
}

// Status returns the status code of the error.
func (se StatusError) Status() int {
	return se.status
}

// NewStatusError creates a new StatusError.
func NewStatusError(err error, s int) error {
	return StatusError{error: err, status: s}
}

// NewStatusErrorf creates a new StatusError from a format string.
func NewStatusErrorf(s int, format string, args ...any) error {
	return StatusError{error: fmt.Errorf(format, args...), status: s}
}
