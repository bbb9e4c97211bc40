package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	firstRescanDelay      = 250 * time.Millisecond
	defaultRescanInterval = 250 * time.Millisecond
)

// PortLister produces the current set of openable ports
type PortLister interface {
	List() []string
}

// staticLister serves a fixed port list where no enumeration strategy exists
type staticLister []string

func (s staticLister) List() []string { return slices.Clone([]string(s)) }

// Rescanner keeps the published port snapshot and the selected port up to date
type Rescanner struct {
	lister   PortLister
	interval time.Duration
	watchDir string
	logger   *slog.Logger

	snapshot atomic.Pointer[[]string]
	updates  chan []string

	mu       sync.Mutex // guards selected and serializes publication
	selected string
}

func NewRescanner(lister PortLister, interval time.Duration, watchDir string, logger *slog.Logger) *Rescanner {
	if interval <= 0 {
		interval = defaultRescanInterval
	}
	r := &Rescanner{
		lister:   lister,
		interval: interval,
		watchDir: watchDir,
		logger:   logger,
		updates:  make(chan []string, 1),
		selected: NoneSelected,
	}
	empty := []string{}
	r.snapshot.Store(&empty)
	return r
}

// Snapshot returns the last published port list. Callers must not modify it.
func (r *Rescanner) Snapshot() []string {
	return *r.snapshot.Load()
}

// Updates delivers each newly published snapshot; only the latest is kept if the
// reader falls behind
func (r *Rescanner) Updates() <-chan []string { return r.updates }

// Selected returns the selected port or NoneSelected
func (r *Rescanner) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Select chooses a port from the current snapshot, or clears with NoneSelected
func (r *Rescanner) Select(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name != NoneSelected && !slices.Contains(r.Snapshot(), name) {
		return fmt.Errorf("port %s is not available", name)
	}
	r.selected = name
	return nil
}

// Rescan enumerates once and publishes when the result differs from the last
// snapshot. It reports whether a new snapshot was published.
func (r *Rescanner) Rescan() bool {
	fresh := r.lister.List()

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Equal(fresh, r.Snapshot()) {
		return false
	}
	r.snapshot.Store(&fresh)
	if r.selected != NoneSelected && !slices.Contains(fresh, r.selected) {
		r.logger.Info("selected port vanished", "port", r.selected)
		r.selected = NoneSelected
	}
	r.logger.Debug("ports changed", "ports", fresh)
	r.notify(fresh)
	return true
}

func (r *Rescanner) notify(ports []string) {
	for {
		select {
		case r.updates <- ports:
			return
		default:
		}
		// drop the stale snapshot nobody picked up yet
		select {
		case <-r.updates:
		default:
		}
	}
}

// Run rescans after firstRescanDelay, then every interval and whenever a tty node
// appears or disappears in the watch directory, until ctx is done
func (r *Rescanner) Run(ctx context.Context) {
	timer := time.NewTimer(firstRescanDelay)
	defer timer.Stop()

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if r.watchDir != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			r.logger.Warn("hotplug watch unavailable", "error", err)
		} else {
			defer func() { _ = watcher.Close() }()
			if err := watcher.Add(r.watchDir); err != nil {
				r.logger.Warn("hotplug watch unavailable", "dir", r.watchDir, "error", err)
			} else {
				events = watcher.Events
				watchErrs = watcher.Errors
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.Rescan()
			timer.Reset(r.interval)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !strings.HasPrefix(filepath.Base(event.Name), "tty") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			r.Rescan()
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			r.logger.Warn("hotplug watch error", "error", err)
		}
	}
}
