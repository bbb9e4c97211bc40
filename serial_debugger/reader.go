package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pause between reads of a session with a zero timeout
const idlePoll = 50 * time.Millisecond

// Sink receives decoded lines in arrival order
type Sink interface {
	Append(line string)
}

// MultiSink appends every line to each sink in turn
type MultiSink []Sink

func (m MultiSink) Append(line string) {
	for _, s := range m {
		s.Append(line)
	}
}

// LoopState is the lifecycle of a ReaderLoop
type LoopState int32

const (
	LoopIdle LoopState = iota
	LoopRunning
	LoopStopping
	LoopStopped
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopRunning:
		return "running"
	case LoopStopping:
		return "stopping"
	case LoopStopped:
		return "stopped"
	default:
		return fmt.Sprintf("LoopState(%d)", int32(s))
	}
}

// LoopStats counts what the loop has seen so far
type LoopStats struct {
	Lines        uint64
	DecodeErrors uint64
	Timeouts     uint64
}

// ReaderLoop streams lines from a Session into a Sink on its own goroutine
type ReaderLoop struct {
	logger *slog.Logger

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error // written before done is closed

	lines        atomic.Uint64
	decodeErrors atomic.Uint64
	timeouts     atomic.Uint64
}

func NewReaderLoop(logger *slog.Logger) *ReaderLoop {
	return &ReaderLoop{
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the loop. A ReaderLoop runs at most once.
func (l *ReaderLoop) Start(sess *Session, sink Sink) error {
	if !l.state.CompareAndSwap(int32(LoopIdle), int32(LoopRunning)) {
		return fmt.Errorf("reader loop is %s, not idle", l.State())
	}
	go l.run(sess, sink)
	return nil
}

// RequestStop asks the loop to finish. It is observed between reads; pair it with
// Session.Close to unblock a read that is waiting on the device.
func (l *ReaderLoop) RequestStop() {
	l.state.CompareAndSwap(int32(LoopRunning), int32(LoopStopping))
	l.stopOnce.Do(func() { close(l.stop) })
}

// Done is closed once the loop has reached LoopStopped
func (l *ReaderLoop) Done() <-chan struct{} { return l.done }

// Err returns the error that ended the loop, nil after a requested stop
func (l *ReaderLoop) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

func (l *ReaderLoop) State() LoopState { return LoopState(l.state.Load()) }

func (l *ReaderLoop) Stats() LoopStats {
	return LoopStats{
		Lines:        l.lines.Load(),
		DecodeErrors: l.decodeErrors.Load(),
		Timeouts:     l.timeouts.Load(),
	}
}

func (l *ReaderLoop) stopRequested() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// idle waits one poll interval before a non-blocking session reads again. It reports
// false when a stop was requested meanwhile.
func (l *ReaderLoop) idle() bool {
	timer := time.NewTimer(idlePoll)
	defer timer.Stop()
	select {
	case <-l.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (l *ReaderLoop) run(sess *Session, sink Sink) {
	l.err = l.readLines(sess, sink)
	if err := sess.Close(); err != nil {
		l.logger.Warn("closing port", "error", err)
	}
	l.state.Store(int32(LoopStopped))
	close(l.done)
}

func (l *ReaderLoop) readLines(sess *Session, sink Sink) error {
	for {
		if l.stopRequested() {
			return nil
		}

		raw, err := sess.ReadLine()
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				l.timeouts.Add(1)
				if sess.Config().TimeoutSeconds == 0 && !l.idle() {
					return nil
				}
				continue
			}
			if l.stopRequested() {
				// the controller closed the port to cut a blocking read short
				return nil
			}
			l.logger.Error("session lost", "error", err)
			return err
		}

		text, err := sess.Decode(raw)
		if err != nil {
			l.decodeErrors.Add(1)
			l.logger.Warn("dropping undecodable line", "error", err, "raw", fmt.Sprintf("%q", raw))
			continue
		}

		sink.Append(text)
		l.lines.Add(1)
	}
}
