package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
)

type baudResult struct {
	baud int
	err  error
}

// app is the terminal control surface around the controller and rescanner
type app struct {
	screen    tcell.Screen
	ctrl      *Controller
	rescanner *Rescanner
	lines     *LineLog
	track     *Track
	sink      Sink
	sounds    notifier
	logger    *slog.Logger
	open      Opener
	ctx       context.Context

	detected  chan baudResult
	detecting bool
	probing   atomic.Pointer[string]

	form       FormState
	view       ViewState
	entry      EntryModalState
	export     ExportModalState
	fault      *faultNotice
	status     statusMessage
	portLabels map[string]string
}

// subscribeFaults routes session faults from the controller's watcher goroutine to
// the event loop. If the loop falls behind, only the first pending fault is kept.
func (a *app) subscribeFaults() <-chan faultNotice {
	faults := make(chan faultNotice, 1)
	a.ctrl.OnFault(func(cfg SerialConfig, err error) {
		select {
		case faults <- faultNotice{cfg: cfg, err: err, at: time.Now()}:
		default:
		}
	})
	return faults
}

func main() {
	// Command-line flags
	serialPort := flag.String("port", "", "Serial port to preselect (e.g., /dev/ttyUSB0)")
	baudRate := flag.Int("baud", 9600, "Baud rate")
	dataBits := flag.Int("databits", 8, "Data bits (5-8)")
	parity := flag.String("parity", "None", "Parity: None, Even, Odd, Mark or Space")
	stopBits := flag.Int("stopbits", 1, "Stop bits (1 or 2)")
	timeout := flag.Int("timeout", -1, "Read timeout in seconds, -1 blocks")
	encoding := flag.String("encoding", "utf-8", "Text encoding of received lines")
	connect := flag.Bool("connect", false, "Open the session immediately (requires -port)")
	refreshRate := flag.Int("refresh", 10, "TUI refresh rate in updates per second")
	rescanInterval := flag.Duration("rescan", defaultRescanInterval, "Port rescan interval")
	scrollback := flag.Int("scrollback", 10000, "Lines kept in the output pane")
	logPath := flag.String("log", filepath.Join(os.TempDir(), "serial_debugger.log"), "Log file")
	debug := flag.Bool("debug", false, "Debug logging")
	quiet := flag.Bool("quiet", false, "Disable sounds")
	flag.Parse()

	cfg := DefaultConfig()
	cfg.BaudRate = *baudRate
	cfg.DataBits = *dataBits
	cfg.StopBits = *stopBits
	cfg.TimeoutSeconds = *timeout
	cfg.Encoding = *encoding
	p, err := ParseParity(*parity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.Parity = p

	if *refreshRate <= 0 {
		fmt.Fprintf(os.Stderr, "Error: -refresh must be positive\n")
		os.Exit(1)
	}
	refreshInterval := time.Second / time.Duration(*refreshRate)

	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := newLogger(logFile, *debug)
	slog.SetDefault(logger)
	logger.Info("starting", "pid", os.Getpid(), "os", runtime.GOOS)

	ctrl := NewController(openSerialPort, logger.With("module", "session"))

	// Port listing is optional: without a strategy the -port flag is the only choice
	rescanLogger := logger.With("module", "rescan")
	var lister PortLister
	watchDir := ""
	enum, err := NewPortEnumerator(runtime.GOOS, openSerialPort, rescanLogger)
	if err != nil {
		logger.Warn("port enumeration disabled", "error", err)
		if *serialPort != "" {
			lister = staticLister{*serialPort}
		} else {
			lister = staticLister{}
		}
	} else {
		lister = enum
		watchDir = enum.WatchDir()
	}
	rescanner := NewRescanner(lister, *rescanInterval, watchDir, rescanLogger)
	rescanner.Rescan()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := NewLineLog(*scrollback)
	track := NewTrack(*scrollback)

	a := &app{
		ctrl:       ctrl,
		rescanner:  rescanner,
		lines:      lines,
		track:      track,
		sink:       MultiSink{lines, track},
		sounds:     notifier{enabled: !*quiet},
		logger:     logger,
		open:       openSerialPort,
		ctx:        ctx,
		detected:   make(chan baudResult, 1),
		form:       FormState{cfg: cfg},
		portLabels: describePorts(rescanLogger),
	}

	// Ports held by a session or a baud probe are listed without probing
	if enum != nil {
		enum.InUse = func(name string) bool {
			if p := a.probing.Load(); p != nil && *p == name {
				return true
			}
			return name == ctrl.ActivePort()
		}
	}

	// Subscribe before any session can start so no fault goes unreported
	faults := a.subscribeFaults()

	if *serialPort != "" {
		if err := rescanner.Select(*serialPort); err != nil {
			a.setError(err)
		} else if *connect {
			a.startSession()
		}
	}

	if enum != nil {
		go rescanner.Run(ctx)
	}

	// Initialize screen
	s, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating screen: %v\n", err)
		os.Exit(1)
	}
	if err := s.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing screen: %v\n", err)
		os.Exit(1)
	}
	defer s.Fini()

	s.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	s.EnableMouse()
	a.screen = s

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	a.draw()

	// Event loop
	quit := false
	for !quit {
		select {
		case <-ticker.C:
			a.draw()

		case <-sigChan:
			quit = true

		case <-rescanner.Updates():
			a.portLabels = describePorts(rescanLogger)
			a.draw()

		case r := <-a.detected:
			a.handleDetected(r)
			a.draw()

		case n := <-faults:
			a.fault = &n
			a.sounds.sessionLost()
			a.draw()

		default:
			// Check for key events (non-blocking)
			if s.HasPendingEvent() {
				switch ev := s.PollEvent().(type) {
				case *tcell.EventKey:
					quit = a.handleKeyboardEvent(ev)
				case *tcell.EventMouse:
					a.handleMouseEvent(ev)
				case *tcell.EventResize:
					s.Sync()
				}
				a.draw()
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := ctrl.Stop(); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("exiting")
}
