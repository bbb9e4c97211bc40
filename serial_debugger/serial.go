package main

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// Longest raw line kept; longer runs without a terminator are cut at this size
const maxLineBytes = 64 << 10

// Port is the subset of serial.Port a session needs
type Port interface {
	io.ReadCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port by name; openSerialPort in production, fakes in tests
type Opener func(name string, mode *serial.Mode) (Port, error)

// openSerialPort opens a serial port with the given configuration
func openSerialPort(name string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Session owns one open serial handle. ReadLine must only be called from a
// single goroutine; Close may be called from anywhere.
type Session struct {
	cfg     SerialConfig
	port    Port
	dec     *lineDecoder
	timeout time.Duration

	buf     []byte
	pending []byte

	closeOnce sync.Once
	closed    atomic.Bool
}

// OpenSession validates cfg and opens the device. Validation failures never touch the device.
func OpenSession(cfg SerialConfig, open Opener) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &OpenError{Port: cfg.Port, Err: err}
	}
	dec, err := newLineDecoder(cfg.Encoding)
	if err != nil {
		return nil, &OpenError{Port: cfg.Port, Err: err}
	}

	port, err := open(cfg.Port, cfg.mode())
	if err != nil {
		return nil, &OpenError{Port: cfg.Port, Err: err}
	}

	timeout := cfg.readTimeout()
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, &OpenError{Port: cfg.Port, Err: err}
	}

	return &Session{
		cfg:     cfg,
		port:    port,
		dec:     dec,
		timeout: timeout,
		buf:     make([]byte, 1024),
	}, nil
}

// Config returns the configuration the session was opened with
func (s *Session) Config() SerialConfig { return s.cfg }

// ReadLine returns the next raw line including its LF terminator, as encoded in the
// session encoding. Runs of maxLineBytes without a terminator come back unterminated.
//
// With a negative timeout it blocks until a line arrives or the port fails. A zero
// timeout makes a single non-blocking pass. A positive timeout bounds the whole call.
// On ErrReadTimeout any partial line stays buffered for the next call.
func (s *Session) ReadLine() ([]byte, error) {
	var deadline time.Time
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}

	for {
		if end := s.dec.indexLF(s.pending); end >= 0 {
			return s.take(end), nil
		}
		if len(s.pending) >= maxLineBytes {
			// a device that never sends a terminator still gets displayed
			return s.take(maxLineBytes), nil
		}
		if s.closed.Load() {
			return nil, s.ioError(ErrSessionClosed)
		}

		if s.timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, ErrReadTimeout
			}
			if err := s.port.SetReadTimeout(remaining); err != nil {
				return nil, s.ioError(err)
			}
		}

		n, err := s.port.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.buf[:n]...)
		}
		if err != nil {
			return nil, s.ioError(err)
		}
		if n == 0 {
			if s.timeout >= 0 {
				return nil, ErrReadTimeout
			}
			// A blocking read that returns nothing means the device hung up
			return nil, s.ioError(io.EOF)
		}
	}
}

func (s *Session) take(n int) []byte {
	line := bytes.Clone(s.pending[:n])
	s.pending = s.pending[n:]
	return line
}

// Decode strips terminators and decodes raw with the session encoding
func (s *Session) Decode(raw []byte) (string, error) {
	return s.dec.Decode(raw)
}

// Close releases the handle and unblocks a pending ReadLine. Only the first call
// can return an error.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.port.Close()
	})
	return err
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) ioError(err error) error {
	if s.closed.Load() && !errors.Is(err, ErrSessionClosed) {
		return &IOError{Port: s.cfg.Port, Err: ErrSessionClosed}
	}
	return &IOError{Port: s.cfg.Port, Err: err}
}
