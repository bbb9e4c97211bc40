package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
)

const pageSize = 10

// handleKeyboardEvent processes keyboard input; it returns true to quit
func (a *app) handleKeyboardEvent(ev *tcell.EventKey) bool {
	// Modals take input in priority order
	if a.entry.showing {
		a.handleEntryKey(ev)
		return false
	}
	if a.export.IsShowing() {
		a.handleExportKey(ev)
		return false
	}
	if a.fault != nil {
		a.fault = nil
		if ev.Key() == tcell.KeyEnter {
			a.startSession()
		}
		return false
	}

	switch ev.Key() {
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q', 'Q':
			return true
		case 's', 'S':
			a.stopSession()
		case 'c', 'C':
			a.handleClear()
		case 'e', 'E':
			a.export.Show()
		case 'p', 'P':
			a.handlePause()
		case 'b', 'B':
			a.detectBaud()
		case ' ', 'o', 'O':
			a.openEntry()
		case 'j', 'J':
			a.scroll(-1)
		case 'k', 'K':
			a.scroll(1)
		}
	case tcell.KeyEnter:
		a.startSession()
	case tcell.KeyUp, tcell.KeyBacktab:
		a.form.focus = (a.form.focus + fieldCount - 1) % fieldCount
	case tcell.KeyDown, tcell.KeyTab:
		a.form.focus = (a.form.focus + 1) % fieldCount
	case tcell.KeyLeft:
		a.cycleField(-1)
	case tcell.KeyRight:
		a.cycleField(1)
	case tcell.KeyPgUp:
		a.scroll(pageSize)
	case tcell.KeyPgDn:
		a.scroll(-pageSize)
	case tcell.KeyHome:
		a.view.scrollOffset = a.lines.Len()
	case tcell.KeyEnd:
		a.view.scrollOffset = 0
	case tcell.KeyCtrlC:
		return true
	}
	return false
}

func (a *app) handleExportKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEsc:
		a.export.Hide()
	case tcell.KeyUp, tcell.KeyBacktab:
		a.export.SelectPrev()
	case tcell.KeyDown, tcell.KeyTab:
		a.export.SelectNext()
	case tcell.KeyEnter:
		a.export.Hide()
		if a.export.GetSelected() == 0 {
			a.handleExport()
		} else {
			a.handleExportKML()
		}
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'j', 'J':
			a.export.Hide()
			a.handleExport()
		case 'k', 'K':
			a.export.Hide()
			a.handleExportKML()
		}
	}
}

// handleEntryKey edits the custom value popup. Enter commits, Esc keeps the previous value.
func (a *app) handleEntryKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEsc:
		a.entry.showing = false
	case tcell.KeyEnter:
		a.entry.showing = false
		a.commitEntry(strings.TrimSpace(string(a.entry.input)))
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if n := len(a.entry.input); n > 0 {
			a.entry.input = a.entry.input[:n-1]
		}
	case tcell.KeyRune:
		a.entry.input = append(a.entry.input, ev.Rune())
	}
}

func (a *app) openEntry() {
	if !a.form.editable() || a.ctrl.Running() {
		return
	}
	a.entry = EntryModalState{
		showing: true,
		field:   a.form.focus,
		input:   []rune(a.fieldValue(a.form.focus)),
	}
}

func (a *app) commitEntry(value string) {
	switch a.entry.field {
	case fieldBaud:
		baud, err := strconv.Atoi(value)
		if err != nil || baud <= 0 {
			a.setError(fmt.Errorf("invalid baudrate %q", value))
			return
		}
		a.form.cfg.BaudRate = baud
	case fieldTimeout:
		timeout, err := strconv.Atoi(value)
		if err != nil || timeout < -1 {
			a.setError(fmt.Errorf("invalid timeout %q, use -1 to block", value))
			return
		}
		a.form.cfg.TimeoutSeconds = timeout
	case fieldEncoding:
		if _, err := lookupEncoding(value); err != nil {
			a.setError(err)
			return
		}
		a.form.cfg.Encoding = value
	}
}

// cycleField steps the focused field through its choices
func (a *app) cycleField(delta int) {
	if a.ctrl.Running() {
		a.setInfo("stop the session to change settings")
		return
	}
	cfg := &a.form.cfg
	switch a.form.focus {
	case fieldPort:
		ports := append([]string{NoneSelected}, a.rescanner.Snapshot()...)
		if err := a.rescanner.Select(cycleValue(ports, a.rescanner.Selected(), delta)); err != nil {
			a.setError(err)
		}
	case fieldBaud:
		cfg.BaudRate = cycleValue(baudPresets, cfg.BaudRate, delta)
	case fieldDataBits:
		cfg.DataBits = cycleValue(dataBitsChoices, cfg.DataBits, delta)
	case fieldParity:
		cfg.Parity = cycleValue([]Parity{ParityNone, ParityEven, ParityOdd, ParityMark, ParitySpace}, cfg.Parity, delta)
	case fieldStopBits:
		cfg.StopBits = cycleValue(stopBitsChoices, cfg.StopBits, delta)
	case fieldTimeout:
		cfg.TimeoutSeconds = cycleValue(timeoutPresets, cfg.TimeoutSeconds, delta)
	case fieldEncoding:
		cfg.Encoding = cycleValue(encodingPresets, cfg.Encoding, delta)
	}
}

// cycleValue returns the option delta steps away from cur, wrapping around.
// A custom value not among the options steps onto the first or last option.
func cycleValue[T comparable](options []T, cur T, delta int) T {
	n := len(options)
	for i, opt := range options {
		if opt == cur {
			return options[((i+delta)%n+n)%n]
		}
	}
	if delta > 0 {
		return options[0]
	}
	return options[n-1]
}

func (a *app) startSession() {
	if a.detecting {
		a.setInfo("baud detection in progress")
		return
	}
	cfg := a.form.cfg
	cfg.Port = a.rescanner.Selected()
	if _, err := a.ctrl.Start(cfg, a.sink); err != nil {
		a.sounds.openFailed()
		a.setError(err)
		return
	}
	a.view.scrollOffset = 0
	a.sounds.connected()
	a.setInfo("opened " + cfg.Summary())
}

// detectBaud probes the selected port in the background; the result arrives on a.detected
func (a *app) detectBaud() {
	if a.detecting || a.ctrl.Running() {
		return
	}
	cfg := a.form.cfg
	cfg.Port = a.rescanner.Selected()
	if cfg.Port == NoneSelected {
		a.setError(fmt.Errorf("%w: no port selected", ErrInvalidConfig))
		return
	}
	a.detecting = true
	a.probing.Store(&cfg.Port)
	a.setInfo("detecting baud rate on " + cfg.Port + "...")
	go func() {
		baud, err := DetectBaud(a.ctx, cfg, a.open, detectWindow, a.logger.With("module", "autobaud"))
		a.probing.Store(nil)
		a.detected <- baudResult{baud: baud, err: err}
	}()
}

// handleDetected applies a finished baud detection to the form
func (a *app) handleDetected(r baudResult) {
	a.detecting = false
	if r.err != nil {
		a.sounds.openFailed()
		a.setError(r.err)
		return
	}
	a.form.cfg.BaudRate = r.baud
	a.setInfo(fmt.Sprintf("detected %d baud", r.baud))
}

func (a *app) stopSession() {
	if !a.ctrl.Running() {
		return
	}
	if err := a.ctrl.Stop(); err != nil {
		a.setError(err)
		return
	}
	a.setInfo("session closed")
}

// handleExport exports the output log to a timestamped JSON file
func (a *app) handleExport() {
	filename := fmt.Sprintf("serial_log_%s.json", time.Now().Format("2006-01-02_15-04-05"))
	if err := a.lines.ExportJSON(filename); err != nil {
		a.logger.Error("JSON export failed", "file", filename, "error", err)
		a.setError(err)
		return
	}
	a.setInfo("exported " + filename)
}

// handleExportKML exports the GPS track to a timestamped KML file
func (a *app) handleExportKML() {
	filename := fmt.Sprintf("serial_track_%s.kml", time.Now().Format("2006-01-02_15-04-05"))
	if err := a.track.ExportKML(filename, "Serial Debugger track"); err != nil {
		a.logger.Error("KML export failed", "file", filename, "error", err)
		a.setError(err)
		return
	}
	a.setInfo("exported " + filename)
}

// handleClear empties the output and the GPS track
func (a *app) handleClear() {
	a.lines.Clear()
	a.track.Reset()
	a.view = ViewState{paused: a.view.paused}
}

// handlePause freezes the output pane; lines keep arriving underneath
func (a *app) handlePause() {
	a.view.paused = !a.view.paused
	if a.view.paused {
		a.view.frozen = a.lines.Lines()
	} else {
		a.view.frozen = nil
		a.view.scrollOffset = 0
	}
}

// scroll moves the output pane by delta lines; positive goes back in time
func (a *app) scroll(delta int) {
	a.view.scrollOffset = max(0, a.view.scrollOffset+delta)
}

// handleMouseEvent scrolls the output pane with the wheel
func (a *app) handleMouseEvent(ev *tcell.EventMouse) {
	buttons := ev.Buttons()
	if buttons&tcell.WheelUp != 0 {
		a.scroll(1)
	} else if buttons&tcell.WheelDown != 0 {
		a.scroll(-1)
	}
}

func (a *app) setInfo(text string) {
	a.status = statusMessage{text: text, at: time.Now()}
}

func (a *app) setError(err error) {
	a.status = statusMessage{text: "✗ " + err.Error(), isErr: true, at: time.Now()}
}
