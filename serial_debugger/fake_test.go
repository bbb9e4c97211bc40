package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"
)

var (
	errNoDevice   = errors.New("no such device")
	errPortBusy   = errors.New("port busy")
	errPortClosed = errors.New("port closed")
	errDeviceGone = errors.New("device disconnected")
)

// fakeDevice is one plugged-in device. Bytes written to data are read by whichever
// port currently has it open.
type fakeDevice struct {
	data chan []byte
	busy bool
	mode serial.Mode
}

// fakeBackend stands in for the serial driver
type fakeBackend struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	openErr map[string]error
	opens   int
	live    int
}

func newFakeBackend(names ...string) *fakeBackend {
	b := &fakeBackend{
		devices: make(map[string]*fakeDevice),
		openErr: make(map[string]error),
	}
	for _, name := range names {
		b.plug(name)
	}
	return b
}

func (b *fakeBackend) plug(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[name] = &fakeDevice{data: make(chan []byte, 64)}
}

// unplug makes any open port on name fail its next read
func (b *fakeBackend) unplug(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.devices[name]; ok {
		close(d.data)
		delete(b.devices, name)
	}
}

func (b *fakeBackend) write(t *testing.T, name, s string) {
	t.Helper()
	b.mu.Lock()
	d, ok := b.devices[name]
	b.mu.Unlock()
	if !ok {
		t.Fatalf("write to unplugged device %s", name)
	}
	d.data <- []byte(s)
}

func (b *fakeBackend) failOpen(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr[name] = err
}

func (b *fakeBackend) open(name string, mode *serial.Mode) (Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.openErr[name]; err != nil {
		return nil, err
	}
	d, ok := b.devices[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errNoDevice)
	}
	if d.busy {
		return nil, fmt.Errorf("%s: %w", name, errPortBusy)
	}
	d.busy = true
	d.mode = *mode
	b.opens++
	b.live++
	return &fakePort{backend: b, dev: d, closed: make(chan struct{}), timeout: serial.NoTimeout}, nil
}

func (b *fakeBackend) liveHandles() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

func (b *fakeBackend) lastMode(name string) serial.Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices[name].mode
}

// fakePort follows go.bug.st/serial read semantics: a read that times out returns (0, nil)
type fakePort struct {
	backend *fakeBackend
	dev     *fakeDevice

	mu      sync.Mutex
	timeout time.Duration
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(buf, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	timeout := p.timeout
	p.mu.Unlock()

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-p.closed:
		return 0, errPortClosed
	case chunk, ok := <-p.dev.data:
		if !ok {
			return 0, errDeviceGone
		}
		n := copy(buf, chunk)
		if n < len(chunk) {
			p.mu.Lock()
			p.pending = append(p.pending, chunk[n:]...)
			p.mu.Unlock()
		}
		return n, nil
	case <-expired:
		return 0, nil
	}
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.backend.mu.Lock()
		p.dev.busy = false
		p.backend.live--
		p.backend.mu.Unlock()
	})
	return nil
}

// eofPort returns io.EOF on every read, like a blocking port whose device went away
type eofPort struct{}

func (eofPort) Read([]byte) (int, error)           { return 0, io.EOF }
func (eofPort) Close() error                       { return nil }
func (eofPort) SetReadTimeout(time.Duration) error { return nil }

// collector is a Sink that records lines for assertions
type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) Append(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(port string) SerialConfig {
	cfg := DefaultConfig()
	cfg.Port = port
	return cfg
}
