package mpath

import (
	"errors"
	"fmt"
)

// Controller errors
var (
	ErrConfigMismatch  = errors.New("mpath: configuration mismatch")
	ErrInvalidArgument = errors.New("mpath: invalid argument")
	ErrNoUsablePath    = errors.New("mpath: no usable path")
	ErrInvalidState    = errors.New("mpath: invalid state")
	ErrClosed          = errors.New("mpath: device closed")
)

// Device errors. Path devices return these (possibly wrapped) so that
// completion handling and hardware handlers can classify failures.
var (
	// ErrPathIO is a generic transport failure on one path
	ErrPathIO = errors.New("path i/o error")
	// ErrGroupStandby means the controller behind the path is passive
	ErrGroupStandby = errors.New("path group in standby")
	// ErrMedium is a data error that no other path can fix
	ErrMedium = errors.New("medium error")
	// ErrBusy asks for a retry without blaming the path
	ErrBusy = errors.New("device busy")
	// ErrUnsupported is an operation the device does not implement
	ErrUnsupported = errors.New("operation not supported")
	// ErrWouldBlock is returned for read-ahead that could not proceed immediately
	ErrWouldBlock = errors.New("operation would block")
)

// TableError reports a bad configuration table
type TableError struct {
	Field  string
	Reason string
	Err    error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("mpath table: %s: %s", e.Field, e.Reason)
}

func (e *TableError) Unwrap() error {
	return e.Err
}

func tableErr(field, reason string) error {
	return &TableError{Field: field, Reason: reason, Err: ErrInvalidArgument}
}

// MessageError reports a rejected administrative message
type MessageError struct {
	Command string
	Reason  string
	Err     error
}

func (e *MessageError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("mpath message: %s", e.Reason)
	}
	return fmt.Sprintf("mpath message %s: %s", e.Command, e.Reason)
}

func (e *MessageError) Unwrap() error {
	return e.Err
}
