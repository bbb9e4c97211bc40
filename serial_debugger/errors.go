package main

import (
	"errors"
	"fmt"
)

var (
	// ErrPlatformUnsupported is returned when no port enumeration strategy exists for the host OS
	ErrPlatformUnsupported = errors.New("serial port enumeration not supported on this platform")

	// ErrAlreadyRunning is returned by Controller.Start while a session is active
	ErrAlreadyRunning = errors.New("session already running")

	ErrInvalidConfig = errors.New("invalid serial configuration")

	// ErrReadTimeout means no complete line arrived within the configured timeout
	ErrReadTimeout = errors.New("read timed out")

	ErrSessionClosed = errors.New("session closed")

	// ErrStopTimeout is returned by Controller.Stop when the reader did not wind down in time
	ErrStopTimeout = errors.New("reader did not stop in time")
)

// OpenError reports a session that could not be created
type OpenError struct {
	Port string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Port, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// IOError is fatal to the current session (device gone, driver failure, port closed)
type IOError struct {
	Port string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Port, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// DecodeError reports a single line that is not valid in the session encoding.
// Guess holds the charset a detector thinks the bytes are in, if any.
type DecodeError struct {
	Encoding string
	Raw      []byte
	Guess    string
}

func (e *DecodeError) Error() string {
	if e.Guess != "" {
		return fmt.Sprintf("line of %d bytes is not valid %s (looks like %s)", len(e.Raw), e.Encoding, e.Guess)
	}
	return fmt.Sprintf("line of %d bytes is not valid %s", len(e.Raw), e.Encoding)
}
