package dyplo

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrResourceExhausted is returned when no free channel or node is
	// available.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrNotFound is returned when no node matches the filter.
	ErrNotFound = errors.New("not found")
	// ErrBusy is returned by providers when a node is claimed by
	// someone else.
	ErrBusy = errors.New("busy")
	// ErrInvalidState is returned if method cannot be executed at this
	// moment.
	ErrInvalidState = errors.New("invalid state")
	// ErrSizeMismatch is returned when the buffer queue is resized while
	// a block is still leased to software.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrInvalidImage is returned when image buffer doesn't match its
	// shape.
	ErrInvalidImage = errors.New("invalid image")
	// ErrHardwareIO is matched by every HardwareError.
	ErrHardwareIO = errors.New("hardware i/o")
)

// HardwareError is returned when underlying read, write or configuration
// fails. Err keeps the originating reason.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("hardware %s: %v", e.Op, e.Err)
}

// Unwrap returns the originating error.
func (e *HardwareError) Unwrap() error {
	return e.Err
}

// Is reports ErrHardwareIO as a match.
func (e *HardwareError) Is(err error) bool {
	return err == ErrHardwareIO
}

// hardwareError wraps err unless it's nil or one of the taxonomy errors
// already.
func hardwareError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrResourceExhausted,
		ErrNotFound,
		ErrBusy,
		ErrInvalidState,
		ErrSizeMismatch,
		ErrHardwareIO,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &HardwareError{Op: op, Err: err}
}

// execErrors wraps errors that might occur when multiple resources are
// released.
type execErrors []error

func (e execErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided sentinel error.
func (e execErrors) Is(err error) bool {
	for _, se := range e {
		if errors.Is(se, err) {
			return true
		}
	}
	return false
}

// add appends non-nil error.
func (e execErrors) add(err error) execErrors {
	if err != nil {
		return append(e, err)
	}
	return e
}

// ret returns untyped nil if error is list is empty.
func (e execErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
