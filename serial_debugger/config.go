package main

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// NoneSelected is the port value shown when nothing is selected
const NoneSelected = "None"

// Parity represents parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
	ParityMark
	ParitySpace
)

var parityNames = [...]string{"None", "Even", "Odd", "Mark", "Space"}

func (p Parity) String() string {
	if p < 0 || int(p) >= len(parityNames) {
		return fmt.Sprintf("Parity(%d)", int(p))
	}
	return parityNames[p]
}

// ParseParity accepts a full name ("even") or its first letter ("E"), case-insensitive
func ParseParity(s string) (Parity, error) {
	s = strings.TrimSpace(s)
	for i, name := range parityNames {
		if strings.EqualFold(s, name) || (len(s) == 1 && strings.EqualFold(s, name[:1])) {
			return Parity(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown parity %q", ErrInvalidConfig, s)
}

func (p Parity) mode() serial.Parity {
	switch p {
	case ParityEven:
		return serial.EvenParity
	case ParityOdd:
		return serial.OddParity
	case ParityMark:
		return serial.MarkParity
	case ParitySpace:
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

// Baud rates offered in the form: 600 * 2^x for x = 0..8
var baudPresets = func() []int {
	rates := make([]int, 0, 9)
	for x := 0; x < 9; x++ {
		rates = append(rates, 600<<x)
	}
	return rates
}()

var (
	dataBitsChoices = []int{8, 7, 6, 5}
	stopBitsChoices = []int{1, 2}
	timeoutPresets  = []int{-1, 0, 1, 2, 5, 10}
	encodingPresets = []string{"utf-8", "windows-1252", "iso-8859-1", "utf-16le", "shift_jis", "koi8-r"}
)

// SerialConfig describes one serial session. It is copied into the controller on start.
type SerialConfig struct {
	Port           string
	BaudRate       int
	DataBits       int
	Parity         Parity
	StopBits       int
	TimeoutSeconds int // -1 blocks indefinitely
	Encoding       string
}

// DefaultConfig mirrors the form defaults: 9600 8N1, blocking reads, UTF-8
func DefaultConfig() SerialConfig {
	return SerialConfig{
		Port:           NoneSelected,
		BaudRate:       9600,
		DataBits:       8,
		Parity:         ParityNone,
		StopBits:       1,
		TimeoutSeconds: -1,
		Encoding:       "utf-8",
	}
}

// Validate rejects configurations that must never reach the driver
func (c SerialConfig) Validate() error {
	if c.Port == "" || c.Port == NoneSelected {
		return fmt.Errorf("%w: no port selected", ErrInvalidConfig)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate must be positive, got %d", ErrInvalidConfig, c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("%w: data bits must be 5-8, got %d", ErrInvalidConfig, c.DataBits)
	}
	if c.Parity < ParityNone || c.Parity > ParitySpace {
		return fmt.Errorf("%w: unknown parity %d", ErrInvalidConfig, int(c.Parity))
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return fmt.Errorf("%w: stop bits must be 1 or 2, got %d", ErrInvalidConfig, c.StopBits)
	}
	if c.TimeoutSeconds < -1 {
		return fmt.Errorf("%w: timeout must be -1 or more, got %d", ErrInvalidConfig, c.TimeoutSeconds)
	}
	if _, err := lookupEncoding(c.Encoding); err != nil {
		return err
	}
	return nil
}

func (c SerialConfig) mode() *serial.Mode {
	stop := serial.OneStopBit
	if c.StopBits == 2 {
		stop = serial.TwoStopBits
	}
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   c.Parity.mode(),
		StopBits: stop,
	}
}

func (c SerialConfig) readTimeout() time.Duration {
	if c.TimeoutSeconds < 0 {
		return serial.NoTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Summary renders the classic "9600 8N1" notation
func (c SerialConfig) Summary() string {
	return fmt.Sprintf("%s %d %d%s%d", c.Port, c.BaudRate, c.DataBits, c.Parity.String()[:1], c.StopBits)
}
