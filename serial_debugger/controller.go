package main

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Extra time Stop allows on top of the read timeout before giving up on the reader
const stopGrace = time.Second

// Controller owns the single session handle and the loop reading from it.
// Start and Stop are serialized by mu, so whichever call comes last wins.
type Controller struct {
	mu      sync.Mutex
	open    Opener
	logger  *slog.Logger
	session *Session
	loop    *ReaderLoop
	cfg     SerialConfig
	onFault func(cfg SerialConfig, err error)

	// readable without mu so the rescanner never waits on session work
	active atomic.Pointer[string]
}

func NewController(open Opener, logger *slog.Logger) *Controller {
	return &Controller{
		open:   open,
		logger: logger,
	}
}

// OnFault registers fn to be called, from a background goroutine, when a session
// ends on its own because of an I/O error. The handle is already released by then.
func (c *Controller) OnFault(fn func(cfg SerialConfig, err error)) {
	c.mu.Lock()
	c.onFault = fn
	c.mu.Unlock()
}

// Start opens a session for cfg and starts reading into sink
func (c *Controller) Start(cfg SerialConfig, sink Sink) (*ReaderLoop, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loop != nil {
		select {
		case <-c.loop.Done():
			// died on its own; the watcher has not cleaned up yet
			c.releaseLocked()
		default:
			return nil, ErrAlreadyRunning
		}
	}

	sess, err := OpenSession(cfg, c.open)
	if err != nil {
		c.logger.Warn("open failed", "port", cfg.Port, "error", err)
		return nil, err
	}

	loop := NewReaderLoop(c.logger.With("module", "reader", "port", cfg.Port))
	if err := loop.Start(sess, sink); err != nil {
		sess.Close()
		return nil, err
	}

	c.session = sess
	c.loop = loop
	c.cfg = cfg
	port := cfg.Port
	c.active.Store(&port)
	c.logger.Info("session started", "config", cfg.Summary(), "timeout", cfg.TimeoutSeconds, "encoding", cfg.Encoding)

	go c.watch(loop, cfg)
	return loop, nil
}

// Stop cancels the running session, if any, and waits for the reader to finish.
// The wait is bounded by the read timeout plus stopGrace; closing the port makes
// a blocking read return well before that in practice.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loop == nil {
		return nil
	}
	loop, sess, cfg := c.loop, c.session, c.cfg
	c.releaseLocked()

	loop.RequestStop()
	if err := sess.Close(); err != nil {
		c.logger.Warn("closing port", "port", cfg.Port, "error", err)
	}

	wait := stopGrace
	if cfg.TimeoutSeconds > 0 {
		wait += time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-loop.Done():
		c.logger.Info("session stopped", "port", cfg.Port, "lines", loop.Stats().Lines)
		return nil
	case <-timer.C:
		c.logger.Error("reader did not stop", "port", cfg.Port, "waited", wait)
		return fmt.Errorf("%w: %s after %s", ErrStopTimeout, cfg.Port, wait)
	}
}

// Running reports whether a session is open
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop != nil
}

// Current returns the active configuration and loop, if any
func (c *Controller) Current() (SerialConfig, *ReaderLoop, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop == nil {
		return SerialConfig{}, nil, false
	}
	return c.cfg, c.loop, true
}

// ActivePort returns the port held by the current session, or "" when idle
func (c *Controller) ActivePort() string {
	if p := c.active.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Controller) releaseLocked() {
	c.session = nil
	c.loop = nil
	c.active.Store(nil)
}

// watch releases the handle when the loop ends by itself and reports the fault
func (c *Controller) watch(loop *ReaderLoop, cfg SerialConfig) {
	<-loop.Done()
	err := loop.Err()
	if err == nil {
		return
	}

	c.mu.Lock()
	current := c.loop == loop
	if current {
		c.releaseLocked()
	}
	fn := c.onFault
	c.mu.Unlock()

	// only the current session's fault is reported
	if current && fn != nil {
		fn(cfg, err)
	}
}
