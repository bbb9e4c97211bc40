package main

import (
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
)

// Fix is one GPS position reported by a GGA or RMC sentence
type Fix struct {
	Latitude   float64
	Longitude  float64
	Elevation  float64
	HDOP       float64
	Quality    int
	Satellites int
	Time       time.Time
}

// Track follows NMEA 0183 traffic among the monitored lines. Lines that are not
// NMEA sentences are ignored, so it can sit next to the LineLog in a MultiSink.
type Track struct {
	mu               sync.RWMutex
	fixes            *RingBuffer[Fix]
	current          *Fix
	satellitesInView int
	sentences        int
	invalid          int
}

func NewTrack(capacity int) *Track {
	return &Track{fixes: NewRingBuffer[Fix](capacity)}
}

// Append inspects one decoded line
func (t *Track) Append(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "!") {
		return
	}

	s, err := nmea.Parse(line)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.invalid++
		return
	}
	t.sentences++

	switch m := s.(type) {
	case nmea.GGA:
		t.handleGGA(m)
	case nmea.RMC:
		t.handleRMC(m)
	case nmea.GSV:
		// NumberSVsInView is only meaningful in the first message of a sequence
		if m.MessageNumber == 1 {
			t.satellitesInView = int(m.NumberSVsInView)
		}
	}
}

// handleGGA processes a GGA sentence (position, elevation, fix quality)
func (t *Track) handleGGA(gga nmea.GGA) {
	quality := parseFixQuality(gga.FixQuality)
	if quality == 0 {
		t.current = nil
		return
	}
	t.record(Fix{
		Latitude:   gga.Latitude,
		Longitude:  gga.Longitude,
		Elevation:  gga.Altitude,
		HDOP:       gga.HDOP,
		Quality:    quality,
		Satellites: int(gga.NumSatellites),
		Time:       time.Now().UTC(),
	})
}

// handleRMC processes an RMC sentence; it carries no elevation or satellite data
func (t *Track) handleRMC(rmc nmea.RMC) {
	if rmc.Validity != nmea.ValidRMC {
		t.current = nil
		return
	}
	t.record(Fix{
		Latitude:  rmc.Latitude,
		Longitude: rmc.Longitude,
		Quality:   1,
		Time:      time.Now().UTC(),
	})
}

func (t *Track) record(f Fix) {
	t.current = &f
	t.fixes.Push(f)
}

// TrackStatus summarises the NMEA traffic seen so far
type TrackStatus struct {
	Current          *Fix
	SatellitesInView int
	Sentences        int
	Invalid          int
}

func (t *Track) Status() TrackStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := TrackStatus{
		SatellitesInView: t.satellitesInView,
		Sentences:        t.sentences,
		Invalid:          t.invalid,
	}
	if t.current != nil {
		cur := *t.current
		st.Current = &cur
	}
	return st
}

// Fixes returns the retained fixes, oldest first
func (t *Track) Fixes() []Fix {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fixes.GetAll()
}

func (t *Track) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fixes.Reset()
	t.current = nil
	t.satellitesInView = 0
	t.sentences = 0
	t.invalid = 0
}

// parseFixQuality converts NMEA fix quality string to integer
func parseFixQuality(quality string) int {
	switch quality {
	case "1", "2", "3", "4", "5", "6":
		return int(quality[0] - '0')
	default:
		return 0
	}
}
