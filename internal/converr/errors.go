// Package converr defines the terminal error kinds of a single-file conversion.
package converr

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedArchive      = errors.New("malformed archive")
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	ErrRemoteDelegation      = errors.New("remote delegation failed")
	ErrReadFailure           = errors.New("read failure")
)

// MalformedArchiveError reports an EPUB container missing required metadata.
type MalformedArchiveError struct {
	Reason string
	Err    error
}

func (e *MalformedArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Invalid EPUB: %s: %v", e.Reason, e.Err)
	}
	return "Invalid EPUB: " + e.Reason
}

func (e *MalformedArchiveError) Unwrap() error { return ErrMalformedArchive }

// UnsupportedConversionError reports a (source, target) pair with no conversion path.
type UnsupportedConversionError struct {
	Source string
	Target string
	Reason string
}

func (e *UnsupportedConversionError) Error() string {
	return fmt.Sprintf("unsupported conversion %s -> %s: %s", e.Source, e.Target, e.Reason)
}

func (e *UnsupportedConversionError) Unwrap() error { return ErrUnsupportedConversion }

// RemoteDelegationError carries the remote converter's message verbatim.
type RemoteDelegationError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteDelegationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

// Unwrap exposes both the sentinel and the transport cause.
func (e *RemoteDelegationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRemoteDelegation, e.Err}
	}
	return []error{ErrRemoteDelegation}
}

// ReadFailureError reports source bytes that cannot be decoded as the declared format.
type ReadFailureError struct {
	Format string
	Err    error
}

func (e *ReadFailureError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Format, e.Err)
}

func (e *ReadFailureError) Unwrap() []error { return []error{ErrReadFailure, e.Err} }

// Unsupported is shorthand for building an UnsupportedConversionError.
func Unsupported(source, target fmt.Stringer, reason string) error {
	return &UnsupportedConversionError{Source: source.String(), Target: target.String(), Reason: reason}
}

// ReadFailure wraps err as a ReadFailureError for format f.
func ReadFailure(f fmt.Stringer, err error) error {
	return &ReadFailureError{Format: f.String(), Err: err}
}

// Kind maps err to a short label for metrics and status records.
func Kind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrMalformedArchive):
		return "malformed_archive"
	case errors.Is(err, ErrUnsupportedConversion):
		return "unsupported"
	case errors.Is(err, ErrRemoteDelegation):
		return "remote_failure"
	case errors.Is(err, ErrReadFailure):
		return "read_failure"
	}
	return "internal"
}
