package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func startLoop(t *testing.T, b *fakeBackend, cfg SerialConfig, sink Sink) (*ReaderLoop, *Session) {
	t.Helper()
	sess, err := OpenSession(cfg, b.open)
	require.NoError(t, err)
	loop := NewReaderLoop(testLogger())
	require.NoError(t, loop.Start(sess, sink))
	return loop, sess
}

func TestReaderLoopDeliversLinesInOrder(t *testing.T) {
	b := newFakeBackend("p")
	sink := &collector{}
	loop, sess := startLoop(t, b, testConfig("p"), sink)

	b.write(t, "p", "hello\r\nwor")
	b.write(t, "p", "ld\n")

	require.Eventually(t, func() bool { return len(sink.Lines()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hello", "world"}, sink.Lines())
	assert.Equal(t, LoopRunning, loop.State())
	assert.Equal(t, uint64(2), loop.Stats().Lines)

	loop.RequestStop()
	sess.Close()
	<-loop.Done()
	assert.Equal(t, LoopStopped, loop.State())
	assert.NoError(t, loop.Err())
	assert.Zero(t, b.liveHandles())
}

func TestReaderLoopSkipsUndecodableLines(t *testing.T) {
	b := newFakeBackend("p")
	sink := &collector{}
	loop, sess := startLoop(t, b, testConfig("p"), sink)
	defer sess.Close()

	b.write(t, "p", "one\n")
	b.write(t, "p", string([]byte{0xC3, 0x28, '\n'}))
	b.write(t, "p", "two\n")

	require.Eventually(t, func() bool { return len(sink.Lines()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, sink.Lines())
	assert.Equal(t, uint64(1), loop.Stats().DecodeErrors)
	assert.Equal(t, LoopRunning, loop.State())
}

func TestReaderLoopEndsOnFatalError(t *testing.T) {
	open := func(string, *serial.Mode) (Port, error) { return eofPort{}, nil }
	sess, err := OpenSession(testConfig("p"), open)
	require.NoError(t, err)

	loop := NewReaderLoop(testLogger())
	require.NoError(t, loop.Start(sess, &collector{}))

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on EOF")
	}
	assert.Equal(t, LoopStopped, loop.State())

	var ioErr *IOError
	require.True(t, errors.As(loop.Err(), &ioErr))
	assert.True(t, sess.Closed())
}

func TestReaderLoopStopsDuringLongTimeout(t *testing.T) {
	b := newFakeBackend("p")
	cfg := testConfig("p")
	cfg.TimeoutSeconds = 5
	loop, sess := startLoop(t, b, cfg, &collector{})

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	loop.RequestStop()
	assert.Equal(t, LoopStopping, loop.State())
	sess.Close()

	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, loop.Err())
}

func TestReaderLoopCountsTimeouts(t *testing.T) {
	b := newFakeBackend("p")
	cfg := testConfig("p")
	cfg.TimeoutSeconds = 0
	loop, sess := startLoop(t, b, cfg, &collector{})
	defer sess.Close()

	require.Eventually(t, func() bool { return loop.Stats().Timeouts > 0 }, time.Second, 5*time.Millisecond)

	loop.RequestStop()
	<-loop.Done()
	assert.NoError(t, loop.Err())
}

func TestReaderLoopRunsOnce(t *testing.T) {
	b := newFakeBackend("p")
	loop, sess := startLoop(t, b, testConfig("p"), &collector{})
	defer sess.Close()

	assert.Error(t, loop.Start(sess, &collector{}))
}

func TestMultiSink(t *testing.T) {
	a, b := &collector{}, &collector{}
	MultiSink{a, b}.Append("x")
	assert.Equal(t, []string{"x"}, a.Lines())
	assert.Equal(t, []string{"x"}, b.Lines())
}

func TestLoopStateString(t *testing.T) {
	assert.Equal(t, "idle", LoopIdle.String())
	assert.Equal(t, "stopped", LoopStopped.String())
	assert.Equal(t, "LoopState(9)", LoopState(9).String())
}

func TestReaderLoopUTF16Lines(t *testing.T) {
	b := newFakeBackend("p")
	cfg := testConfig("p")
	cfg.Encoding = "utf-16le"
	sink := &collector{}
	loop, sess := startLoop(t, b, cfg, sink)
	defer sess.Close()

	raw := utf16le(t, "hello\r\nworld\r\n")
	b.write(t, "p", raw[:5])
	b.write(t, "p", raw[5:])

	require.Eventually(t, func() bool { return len(sink.Lines()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hello", "world"}, sink.Lines())
	assert.Zero(t, loop.Stats().DecodeErrors)
}

func TestReaderLoopZeroTimeoutDoesNotSpin(t *testing.T) {
	b := newFakeBackend("p")
	cfg := testConfig("p")
	cfg.TimeoutSeconds = 0
	sink := &collector{}
	loop, sess := startLoop(t, b, cfg, sink)
	defer sess.Close()

	time.Sleep(500 * time.Millisecond)
	assert.Less(t, loop.Stats().Timeouts, uint64(50))

	// idle polling still picks up data
	b.write(t, "p", "late\n")
	require.Eventually(t, func() bool { return len(sink.Lines()) == 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	loop.RequestStop()
	<-loop.Done()
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.NoError(t, loop.Err())
}
