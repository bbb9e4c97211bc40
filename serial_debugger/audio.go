package main

import (
	"time"

	"github.com/gen2brain/beeep"
)

// notifier plays short tones for session events. All sounds run in goroutines
// so the UI loop never waits on the audio device.
type notifier struct {
	enabled bool
}

// sessionLost: low frequency, longer duration
func (n notifier) sessionLost() {
	n.play(func() {
		beeep.Beep(400, 300)
	})
}

// openFailed: mid frequency, short blip
func (n notifier) openFailed() {
	n.play(func() {
		beeep.Beep(600, 100)
	})
}

// connected: ascending two-tone
func (n notifier) connected() {
	n.play(func() {
		beeep.Beep(600, 150)
		time.Sleep(50 * time.Millisecond)
		beeep.Beep(800, 150)
	})
}

func (n notifier) play(fn func()) {
	if !n.enabled {
		return
	}
	go fn()
}
