package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
)

// Form field order, top to bottom
const (
	fieldPort = iota
	fieldBaud
	fieldDataBits
	fieldParity
	fieldStopBits
	fieldTimeout
	fieldEncoding
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Serial Port:",
	"Baudrate:",
	"Data Bits:",
	"Parity:",
	"Stop Bits:",
	"Timeout (sec):",
	"Encoding:",
}

const (
	colWidthLabel    = 16
	colWidthValue    = 24
	outputTitleRow   = fieldCount
	outputFirstRow   = fieldCount + 1
	statusMessageTTL = 5 * time.Second
	lineTimeFormat   = "15:04:05.000"
	exportOptions    = 2
)

// FormState holds the settings being edited; the port lives in the Rescanner
type FormState struct {
	cfg   SerialConfig
	focus int
}

// editable fields accept a typed "Other..." value
func (f *FormState) editable() bool {
	return f.focus == fieldBaud || f.focus == fieldTimeout || f.focus == fieldEncoding
}

// ViewState tracks scrolling of the output pane. scrollOffset counts lines up from the newest.
type ViewState struct {
	scrollOffset int
	paused       bool
	frozen       []Line
}

// EntryModalState is the custom value popup
type EntryModalState struct {
	showing bool
	field   int
	input   []rune
}

// ExportModalState tracks the export chooser
type ExportModalState struct {
	showing        bool
	selectedOption int // 0 = JSON, 1 = KML
}

func (m *ExportModalState) Show()            { m.showing = true; m.selectedOption = 0 }
func (m *ExportModalState) Hide()            { m.showing = false }
func (m *ExportModalState) IsShowing() bool  { return m.showing }
func (m *ExportModalState) GetSelected() int { return m.selectedOption }

func (m *ExportModalState) SelectNext() {
	m.selectedOption = (m.selectedOption + 1) % exportOptions
}

func (m *ExportModalState) SelectPrev() {
	m.selectedOption = (m.selectedOption + exportOptions - 1) % exportOptions
}

type faultNotice struct {
	cfg SerialConfig
	err error
	at  time.Time
}

type statusMessage struct {
	text  string
	isErr bool
	at    time.Time
}

// draw renders the whole screen
func (a *app) draw() {
	s := a.screen
	s.Clear()
	width, height := s.Size()

	a.drawForm(width)
	a.drawOutput(width, height)
	a.drawStatusLine(width, height)

	if a.entry.showing {
		a.drawEntryModal()
	}
	if a.export.IsShowing() {
		a.drawExportModal()
	}
	if a.fault != nil {
		a.drawFaultModal()
	}

	s.Show()
}

func (a *app) drawForm(width int) {
	labelStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)
	valueStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy)
	focusStyle := tcell.StyleDefault.Bold(true).Foreground(tcell.ColorBlack).Background(tcell.ColorYellow)
	hintStyle := tcell.StyleDefault.Foreground(tcell.ColorGray).Background(tcell.ColorBlack)

	running := a.ctrl.Running()
	for field := 0; field < fieldCount; field++ {
		drawText(a.screen, 0, field, colWidthLabel, labelStyle, fieldLabels[field])

		style := valueStyle
		if field == a.form.focus && !running {
			style = focusStyle
		}
		drawText(a.screen, colWidthLabel, field, colWidthValue, style, " "+a.fieldValue(field))

		hint := ""
		switch {
		case field == fieldPort:
			hint = a.portLabels[a.rescanner.Selected()]
		case field == fieldBaud && a.detecting:
			hint = "detecting..."
		case field == a.form.focus && a.form.editable() && !running:
			hint = "Space: Other..."
		}
		drawText(a.screen, colWidthLabel+colWidthValue+1, field, width-colWidthLabel-colWidthValue-1, hintStyle, hint)
	}
}

func (a *app) fieldValue(field int) string {
	cfg := a.form.cfg
	switch field {
	case fieldPort:
		return a.rescanner.Selected()
	case fieldBaud:
		return strconv.Itoa(cfg.BaudRate)
	case fieldDataBits:
		return strconv.Itoa(cfg.DataBits)
	case fieldParity:
		return cfg.Parity.String()
	case fieldStopBits:
		return strconv.Itoa(cfg.StopBits)
	case fieldTimeout:
		return strconv.Itoa(cfg.TimeoutSeconds)
	case fieldEncoding:
		return cfg.Encoding
	}
	return ""
}

// visibleLines picks the slice of the log that fits in rows, honouring scroll and pause
func (a *app) visibleLines(rows int) []Line {
	src := a.view.frozen
	if !a.view.paused {
		src = a.lines.Lines()
	}
	if rows <= 0 || len(src) == 0 {
		return nil
	}

	maxOffset := max(0, len(src)-rows)
	if a.view.scrollOffset > maxOffset {
		a.view.scrollOffset = maxOffset
	}
	end := len(src) - a.view.scrollOffset
	start := max(0, end-rows)
	return src[start:end]
}

func (a *app) drawOutput(width, height int) {
	titleStyle := tcell.StyleDefault.Bold(true).Foreground(tcell.ColorWhite).Background(tcell.ColorDarkSlateGray)
	lineStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)
	timeStyle := tcell.StyleDefault.Foreground(tcell.ColorGray).Background(tcell.ColorBlack)

	title := " OUTPUT"
	if cfg, loop, ok := a.ctrl.Current(); ok {
		titleStyle = titleStyle.Background(tcell.ColorDarkGreen)
		stats := loop.Stats()
		title += fmt.Sprintf(" | ● %s | %s | lines %d", cfg.Summary(), cfg.Encoding, stats.Lines)
		if stats.DecodeErrors > 0 {
			title += fmt.Sprintf(" | decode errors %d", stats.DecodeErrors)
		}
	} else {
		title += " | ○ CLOSED"
	}
	if gps := a.gpsStatus(); gps != "" {
		title += " | " + gps
	}
	if a.view.paused {
		title += " | [PAUSED]"
	}
	drawText(a.screen, 0, outputTitleRow, width, titleStyle, title)

	rows := height - outputFirstRow - 1
	timeWidth := len(lineTimeFormat) + 1
	for i, line := range a.visibleLines(rows) {
		row := outputFirstRow + i
		drawText(a.screen, 0, row, timeWidth, timeStyle, line.Time.Format(lineTimeFormat))
		drawText(a.screen, timeWidth, row, width-timeWidth, lineStyle, line.Text)
	}

	if a.view.scrollOffset > 0 {
		indicatorStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow).Background(tcell.ColorBlack)
		drawText(a.screen, width-10, height-2, 10, indicatorStyle, "▼ MORE ▼")
	}
}

// gpsStatus is empty until NMEA traffic has been seen
func (a *app) gpsStatus() string {
	st := a.track.Status()
	if st.Sentences == 0 {
		return ""
	}
	if st.Current == nil {
		return fmt.Sprintf("GPS: No Fix (%d in view)", st.SatellitesInView)
	}
	return fmt.Sprintf("GPS: Fix (%.4f, %.4f) Q:%d %d / %d",
		st.Current.Latitude, st.Current.Longitude, st.Current.Quality, st.Current.Satellites, st.SatellitesInView)
}

func (a *app) drawStatusLine(width, height int) {
	statusStyle := tcell.StyleDefault.Background(tcell.ColorDarkSlateGray).Foreground(tcell.ColorWhite)
	text := "q: Quit | Enter: Open | s: Stop | c: Clear | e: Export | p: Pause | b: Detect baud | ↑↓/Tab: Field | ←→: Change | PgUp/PgDn/jk: Scroll"

	if a.status.text != "" && time.Since(a.status.at) < statusMessageTTL {
		text = a.status.text
		if a.status.isErr {
			statusStyle = statusStyle.Background(tcell.ColorDarkRed)
		}
	}
	drawText(a.screen, 0, height-1, width, statusStyle, text)
}

func (a *app) drawEntryModal() {
	title := " CUSTOM " + map[int]string{
		fieldBaud:     "BAUDRATE",
		fieldTimeout:  "TIMEOUT",
		fieldEncoding: "ENCODING",
	}[a.entry.field] + " "

	borderStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy).Bold(true)
	bgStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy)
	x, y, w := drawModal(a.screen, 50, 7, title, borderStyle, bgStyle)

	inputStyle := tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
	drawText(a.screen, x+3, y+3, w-6, inputStyle, string(a.entry.input)+"_")
	drawCenteredText(a.screen, x, y+5, w, bgStyle, "[Enter] OK   [Esc] Cancel")
}

func (a *app) drawExportModal() {
	borderStyle := tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorYellow).Bold(true)
	bgStyle := tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorYellow)
	selectedStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack).Bold(true)
	x, y, w := drawModal(a.screen, 50, 8, " EXPORT ", borderStyle, bgStyle)

	options := []string{"[J] Output log as JSON", "[K] GPS track as KML"}
	for i, opt := range options {
		style := bgStyle
		if i == a.export.GetSelected() {
			style = selectedStyle
		}
		drawCenteredText(a.screen, x, y+3+i, w, style, opt)
	}
	drawCenteredText(a.screen, x, y+6, w, bgStyle, "[Enter] Export   [Esc] Cancel")
}

func (a *app) drawFaultModal() {
	borderStyle := tcell.StyleDefault.Foreground(tcell.ColorRed).Background(tcell.ColorBlack).Bold(true)
	textStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorDarkRed)
	x, y, w := drawModal(a.screen, 60, 8, " CONNECTION LOST ", borderStyle, textStyle)

	errText := []rune(a.fault.err.Error())
	if w > 10 && len(errText) > w-4 {
		errText = append(errText[:w-7], []rune("...")...)
	}
	drawCenteredText(a.screen, x, y+3, w, textStyle, "Session on "+a.fault.cfg.Port+" ended")
	drawCenteredText(a.screen, x, y+4, w, textStyle, string(errText))
	drawCenteredText(a.screen, x, y+5, w, textStyle, fmt.Sprintf("%v ago", time.Since(a.fault.at).Round(time.Second)))
	drawCenteredText(a.screen, x, y+6, w, textStyle, "Press any key to dismiss, Enter to reopen")
}

// drawModal draws a centered box with a double border and title.
// It returns the box origin and width.
func drawModal(s tcell.Screen, modalWidth, modalHeight int, title string, borderStyle, bgStyle tcell.Style) (int, int, int) {
	width, height := s.Size()
	modalWidth = min(modalWidth, width)
	modalX := (width - modalWidth) / 2
	modalY := (height - modalHeight) / 2

	for y := modalY; y < modalY+modalHeight; y++ {
		for x := modalX; x < modalX+modalWidth; x++ {
			s.SetContent(x, y, ' ', nil, bgStyle)
		}
	}

	for x := modalX; x < modalX+modalWidth; x++ {
		s.SetContent(x, modalY, '═', nil, borderStyle)
		s.SetContent(x, modalY+modalHeight-1, '═', nil, borderStyle)
	}
	for y := modalY; y < modalY+modalHeight; y++ {
		s.SetContent(modalX, y, '║', nil, borderStyle)
		s.SetContent(modalX+modalWidth-1, y, '║', nil, borderStyle)
	}
	s.SetContent(modalX, modalY, '╔', nil, borderStyle)
	s.SetContent(modalX+modalWidth-1, modalY, '╗', nil, borderStyle)
	s.SetContent(modalX, modalY+modalHeight-1, '╚', nil, borderStyle)
	s.SetContent(modalX+modalWidth-1, modalY+modalHeight-1, '╝', nil, borderStyle)

	drawCenteredText(s, modalX, modalY+1, modalWidth, borderStyle, title)
	return modalX, modalY, modalWidth
}

// drawText draws text at a specific position, padding with blanks to width
func drawText(s tcell.Screen, x, y, width int, style tcell.Style, text string) {
	runes := []rune(text)
	col := 0

	for i := 0; i < len(runes) && col < width; i++ {
		s.SetContent(x+col, y, runes[i], nil, style)
		col++
	}

	for col < width {
		s.SetContent(x+col, y, ' ', nil, style)
		col++
	}
}

// drawCenteredText draws text centered within a given width
func drawCenteredText(s tcell.Screen, x, y, width int, style tcell.Style, text string) {
	runes := []rune(text)
	textX := x + (width-len(runes))/2
	for i, ch := range runes {
		if textX+i >= x && textX+i < x+width {
			s.SetContent(textX+i, y, ch, nil, style)
		}
	}
}
