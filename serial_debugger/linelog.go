package main

import (
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// RingBuffer is a generic FIFO buffer with fixed capacity
type RingBuffer[T any] struct {
	data     []T
	capacity int
	head     int
	size     int
}

// NewRingBuffer creates a new ring buffer with the given capacity
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Push adds an item to the ring buffer, removing the oldest if at capacity
func (rb *RingBuffer[T]) Push(item T) {
	rb.data[rb.head] = item
	rb.head = (rb.head + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	}
}

// GetAll returns all items in the ring buffer (oldest to newest)
func (rb *RingBuffer[T]) GetAll() []T {
	result := make([]T, rb.size)
	if rb.size < rb.capacity {
		copy(result, rb.data[:rb.size])
	} else {
		// full: oldest items start at head
		n := copy(result, rb.data[rb.head:])
		copy(result[n:], rb.data[:rb.head])
	}
	return result
}

// Last returns the newest item
func (rb *RingBuffer[T]) Last() (T, bool) {
	var zero T
	if rb.size == 0 {
		return zero, false
	}
	return rb.data[(rb.head-1+rb.capacity)%rb.capacity], true
}

// Size returns the current number of items in the buffer
func (rb *RingBuffer[T]) Size() int {
	return rb.size
}

// Reset empties the buffer
func (rb *RingBuffer[T]) Reset() {
	clear(rb.data)
	rb.head = 0
	rb.size = 0
}

// Line is one decoded line as shown in the output pane
type Line struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// LineLog is the display sink: an ordered, bounded scrollback that the reader
// appends to while the UI reads snapshots
type LineLog struct {
	mu    sync.RWMutex
	lines *RingBuffer[Line]
	total uint64
}

func NewLineLog(capacity int) *LineLog {
	return &LineLog{lines: NewRingBuffer[Line](capacity)}
}

func (l *LineLog) Append(text string) {
	l.mu.Lock()
	l.lines.Push(Line{Time: time.Now(), Text: text})
	l.total++
	l.mu.Unlock()
}

// Lines returns a copy of the retained lines, oldest first
func (l *LineLog) Lines() []Line {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lines.GetAll()
}

// Len is the number of retained lines
func (l *LineLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lines.Size()
}

// Total counts every line appended since the last Clear, including evicted ones
func (l *LineLog) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

func (l *LineLog) Clear() {
	l.mu.Lock()
	l.lines.Reset()
	l.total = 0
	l.mu.Unlock()
}

// ExportJSON writes the retained lines to filename as an indented JSON array
func (l *LineLog) ExportJSON(filename string) error {
	lines := l.Lines()

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(lines)
}
