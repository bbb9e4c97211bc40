package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Probe-open uses the same defaults a fresh port gets: 9600 8N1
var probeMode = &serial.Mode{
	BaudRate: 9600,
	DataBits: 8,
	Parity:   serial.NoParity,
	StopBits: serial.OneStopBit,
}

// portStrategy lists candidate device names for one platform
type portStrategy struct {
	candidates func() ([]string, error)
	watchDir   string // directory whose create/remove events signal hotplug
}

var portStrategies = map[string]portStrategy{
	"linux":   {candidates: globCandidates("/dev/tty[A-Za-z0-9]*"), watchDir: "/dev"},
	"darwin":  {candidates: globCandidates("/dev/tty.*"), watchDir: "/dev"},
	"windows": {candidates: comCandidates(256)},
}

func globCandidates(pattern string) func() ([]string, error) {
	return func() ([]string, error) {
		return filepath.Glob(pattern)
	}
}

// comCandidates returns COM1..COMn
func comCandidates(n int) func() ([]string, error) {
	return func() ([]string, error) {
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("COM%d", i+1)
		}
		return names, nil
	}
}

// PortEnumerator lists the serial ports that can currently be opened
type PortEnumerator struct {
	strategy portStrategy
	open     Opener
	logger   *slog.Logger

	// InUse, when set, reports ports held by this process. They are listed
	// without probing because the exclusive lock would make the probe fail.
	InUse func(name string) bool
}

// NewPortEnumerator picks the enumeration strategy for goos (usually runtime.GOOS)
func NewPortEnumerator(goos string, open Opener, logger *slog.Logger) (*PortEnumerator, error) {
	strategy, ok := portStrategies[goos]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlatformUnsupported, goos)
	}
	return &PortEnumerator{strategy: strategy, open: open, logger: logger}, nil
}

// WatchDir is the device directory to watch for hotplug events, "" if none
func (e *PortEnumerator) WatchDir() string { return e.strategy.watchDir }

// List probe-opens every candidate and returns those that opened, in candidate order
func (e *PortEnumerator) List() []string {
	candidates, err := e.strategy.candidates()
	if err != nil {
		e.logger.Error("listing port candidates", "error", err)
		return []string{}
	}

	ports := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if e.InUse != nil && e.InUse(name) {
			ports = append(ports, name)
			continue
		}
		p, err := e.open(name, probeMode)
		if err != nil {
			e.logger.Debug("skipping port", "port", name, "error", err)
			continue
		}
		if err := p.Close(); err != nil {
			e.logger.Debug("closing probe", "port", name, "error", err)
		}
		ports = append(ports, name)
	}
	return ports
}

// describePorts labels USB ports with VID:PID and product name for display
func describePorts(logger *slog.Logger) map[string]string {
	labels := make(map[string]string)

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		logger.Debug("detailed port list unavailable", "error", err)
		return labels
	}

	for _, d := range details {
		if !d.IsUSB {
			continue
		}
		label := fmt.Sprintf("%s:%s", strings.ToLower(d.VID), strings.ToLower(d.PID))
		if d.Product != "" {
			label += " " + d.Product
		}
		labels[d.Name] = label
	}
	return labels
}
