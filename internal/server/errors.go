package server

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned by Start on a listening server.
	ErrAlreadyStarted = errors.New("server is already listening")
	// ErrStopped is returned by Start on a stopped server; instances are not restarted.
	ErrStopped = errors.New("server has been stopped and cannot be restarted")
)

// StartErrorKind classifies Start failures.
type StartErrorKind int

const (
	// Generic covers every failure without a more specific kind.
	Generic StartErrorKind = iota
	// CertificateUnavailable means the certificate provider failed.
	CertificateUnavailable
	// BindFailed means the listener could not bind the configured address.
	BindFailed
)

func (k StartErrorKind) String() string {
	switch k {
	case CertificateUnavailable:
		return "certificate unavailable"
	case BindFailed:
		return "bind failed"
	default:
		return "generic"
	}
}

// StartError is returned by Start. It unwraps to the original cause.
type StartError struct {
	Kind StartErrorKind
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("Unable to start test server (%s): %v", e.Kind, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// StopError is returned by Stop. It unwraps to the original cause.
type StopError struct {
	Err error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("Unable to stop test server: %v", e.Err)
}

func (e *StopError) Unwrap() error { return e.Err }
