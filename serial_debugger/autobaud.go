package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
)

// Baud rates to try, in order of likelihood
var detectBaudRates = []int{9600, 115200, 38400, 57600, 19200, 4800}

const (
	detectWindow     = 2 * time.Second
	detectCleanLines = 2
)

// ErrBaudNotDetected is returned when no candidate rate produced readable lines
var ErrBaudNotDetected = errors.New("no baud rate produced readable lines")

// DetectBaud tries each candidate rate on cfg.Port and returns the first one that
// yields detectCleanLines lines which decode cleanly in cfg.Encoding. A valid NMEA
// sentence counts double. The port is closed again before returning.
func DetectBaud(ctx context.Context, cfg SerialConfig, open Opener, window time.Duration, logger *slog.Logger) (int, error) {
	for _, baudRate := range detectBaudRates {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		probe := cfg
		probe.BaudRate = baudRate
		probe.TimeoutSeconds = 1
		sess, err := OpenSession(probe, open)
		if err != nil {
			var openErr *OpenError
			if errors.As(err, &openErr) && errors.Is(openErr.Err, ErrInvalidConfig) {
				return 0, err
			}
			logger.Debug("baud probe open failed", "baud", baudRate, "error", err)
			continue
		}

		ok := detectCleanText(ctx, sess, window)
		sess.Close()
		if ok {
			logger.Info("baud rate detected", "port", cfg.Port, "baud", baudRate)
			return baudRate, nil
		}
		logger.Debug("baud probe rejected", "baud", baudRate)
	}
	return 0, fmt.Errorf("%s: %w", cfg.Port, ErrBaudNotDetected)
}

// detectCleanText reads lines until the window closes and scores them
func detectCleanText(ctx context.Context, sess *Session, window time.Duration) bool {
	deadline := time.Now().Add(window)

	score := 0
	for time.Now().Before(deadline) && ctx.Err() == nil {
		raw, err := sess.ReadLine()
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			return false
		}

		text, err := sess.Decode(raw)
		if err != nil || !printable(text) {
			continue
		}
		if _, err := nmea.Parse(text); err == nil {
			score++
		}
		score++
		if score >= detectCleanLines {
			return true
		}
	}
	return false
}

// printable reports whether text is non-empty and free of control characters
func printable(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, r := range text {
		if r < 0x20 && r != '\t' {
			return false
		}
	}
	return true
}
