package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerModulePrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, false)

	logger.With("module", "reader", "port", "COM1").Info("session started")
	out := buf.String()
	assert.Contains(t, out, "[reader] session started")
	assert.Contains(t, out, "port=COM1")
	assert.NotContains(t, out, "module=")

	buf.Reset()
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	newLogger(&buf, true).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "[")
}
