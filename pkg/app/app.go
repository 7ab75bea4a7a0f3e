// Package app provides the main application controller
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"serial-console/pkg/config"
	"serial-console/pkg/console"
	"serial-console/pkg/history"
	"serial-console/pkg/serial"
	"serial-console/pkg/ui"
)

// AppConfig contains application configuration
type AppConfig struct {
	SerialConfig serial.SerialConfig
	Retry        serial.RetryConfig
	Console      console.Settings

	FlushRateHz int
	Scrollback  int
	HistorySize int
	HistoryFile string
	ExportDir   string

	// SettingsFile is watched while connected; console settings written to
	// it are applied live
	SettingsFile string

	// Headless writes completed lines to the output instead of running the UI
	Headless bool
}

// DefaultAppConfig returns default application configuration
func DefaultAppConfig() AppConfig {
	return AppConfig{
		SerialConfig: serial.DefaultConfig(),
		Retry:        serial.DefaultRetryConfig(),
		Console:      console.DefaultSettings(),
		FlushRateHz:  config.DefaultFlushRateHz,
		Scrollback:   console.DefaultScrollback,
		HistorySize:  history.DefaultCapacity,
		ExportDir:    ".",
	}
}

// Validate checks if the application configuration is valid
func (c AppConfig) Validate() error {
	if err := c.SerialConfig.Validate(); err != nil {
		return fmt.Errorf("invalid serial config: %w", err)
	}

	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}

	if err := c.Console.Validate(); err != nil {
		return fmt.Errorf("invalid console settings: %w", err)
	}

	if c.FlushRateHz < 1 || c.FlushRateHz > 1000 {
		return fmt.Errorf("flush rate must be between 1 and 1000 Hz, got: %d", c.FlushRateHz)
	}

	if c.HistorySize <= 0 {
		return fmt.Errorf("history size must be positive, got: %d", c.HistorySize)
	}

	return nil
}

// Session represents an active serial console session
type Session struct {
	ID        string
	Name      string
	Config    serial.SerialConfig
	StartTime time.Time
	EndTime   *time.Time
	BytesSent int64
	BytesRecv int64
	IsActive  bool
	mu        sync.RWMutex
}

// NewSession creates a new session
func NewSession(config serial.SerialConfig) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("%s_%d", config.Port, config.BaudRate),
		Config:    config,
		StartTime: time.Now(),
		IsActive:  true,
	}
}

// End marks the session as ended
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsActive {
		return
	}

	now := time.Now()
	s.EndTime = &now
	s.IsActive = false
}

// UpdateStats updates session statistics
func (s *Session) UpdateStats(bytesSent, bytesRecv int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.BytesSent += bytesSent
	s.BytesRecv += bytesRecv
}

// GetStats returns session statistics
func (s *Session) GetStats() (bytesSent, bytesRecv int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.BytesSent, s.BytesRecv
}

// Duration returns how long the session ran, or has been running
func (s *Session) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// sessionDevice adapts a serial port to console.Device and counts the bytes
// written through it
type sessionDevice struct {
	port    serial.Port
	session *Session
}

func (d sessionDevice) Connected() bool {
	return d.port.IsOpen()
}

func (d sessionDevice) Write(data []byte) (int, error) {
	n, err := d.port.Write(data)
	if n > 0 {
		d.session.UpdateStats(int64(n), 0)
	}
	return n, err
}

// Option customizes an Application
type Option func(*Application)

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *slog.Logger) Option {
	return func(app *Application) { app.logger = logger }
}

// WithIO sets where headless mode reads commands from and writes lines to
func WithIO(in io.Reader, out io.Writer) Option {
	return func(app *Application) {
		app.in = in
		app.out = out
	}
}

// WithScreen sets the screen used by the interactive UI
func WithScreen(screen tcell.Screen) Option {
	return func(app *Application) { app.screen = screen }
}

// Application wires a serial port to a console controller and a front end
type Application struct {
	config AppConfig
	port   serial.Port
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	screen tcell.Screen

	mu      sync.RWMutex
	session *Session
	ctrl    *console.Controller
	state   serial.ConnectionState
}

// NewApplication creates a new application instance
func NewApplication(cfg AppConfig, port serial.Port, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if port == nil {
		return nil, fmt.Errorf("serial port cannot be nil")
	}

	app := &Application{
		config: cfg,
		port:   port,
		out:    os.Stdout,
		state:  serial.StateDisconnected,
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.logger == nil {
		app.logger = slog.New(slog.DiscardHandler)
	}

	return app, nil
}

// Run opens the port and runs the session until the front end exits, ctx is
// cancelled or the port fails. The port is closed on return.
func (app *Application) Run(ctx context.Context) error {
	app.setState(serial.StateConnecting)
	if err := serial.OpenWithRetry(ctx, app.port, app.config.SerialConfig, app.config.Retry); err != nil {
		app.setState(serial.StateError)
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	app.setState(serial.StateConnected)

	session := NewSession(app.config.SerialConfig)
	logger := app.logger.With("session", session.ID)

	ctrl := console.NewController(sessionDevice{port: app.port, session: session}, console.Options{
		Settings:      app.config.Console,
		Scrollback:    app.config.Scrollback,
		IngestReserve: console.DefaultIngestReserve,
		HistorySize:   app.config.HistorySize,
		Stamp:         console.DefaultStamp,
		ExportPath:    exportPath(app.config.ExportDir),
		Logger:        logger,
	})

	app.mu.Lock()
	app.session = session
	app.ctrl = ctrl
	app.mu.Unlock()

	logger.Info("session started", "port", app.config.SerialConfig.String())
	app.loadHistory(ctrl, logger)

	if watcher := app.watchSettings(ctrl, logger); watcher != nil {
		defer watcher.Stop()
	}

	var unsubscribe func()
	if app.config.Headless {
		unsubscribe = ctrl.Subscribe(app.printLines)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return app.readLoop(gctx, ctrl, session) })
	g.Go(func() error { return app.flushLoop(gctx, ctrl) })
	g.Go(func() error {
		<-gctx.Done()
		app.closePort(logger)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		if app.config.Headless {
			return app.runHeadless(gctx, ctrl)
		}
		return app.runUI(gctx, ctrl)
	})

	err := g.Wait()

	if unsubscribe != nil {
		unsubscribe()
		app.printOpenLine(ctrl)
	}

	session.End()
	app.setState(serial.StateDisconnected)
	app.saveHistory(ctrl, logger)

	sent, recv := session.GetStats()
	logger.Info("session ended", "duration", session.Duration(), "bytes_sent", sent, "bytes_received", recv)

	return err
}

// readLoop moves bytes from the port into the console staging buffer
func (app *Application) readLoop(ctx context.Context, ctrl *console.Controller, session *Session) error {
	buffer := make([]byte, 4096)

	for {
		n, err := app.port.Read(buffer)
		if n > 0 {
			ctrl.OnBytesReceived(buffer[:n])
			session.UpdateStats(0, int64(n))
		}

		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			if errors.Is(err, serial.ErrPortClosed) {
				return fmt.Errorf("serial port closed unexpectedly: %w", err)
			}
			return fmt.Errorf("serial read failed: %w", err)
		}
	}
}

// flushLoop flushes staged bytes into the scrollback on every tick and once
// more on shutdown
func (app *Application) flushLoop(ctx context.Context, ctrl *console.Controller) error {
	ticker := time.NewTicker(time.Second / time.Duration(app.config.FlushRateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ctrl.Flush()
			return nil
		case <-ticker.C:
			ctrl.Flush()
		}
	}
}

func (app *Application) closePort(logger *slog.Logger) {
	if !app.port.IsOpen() {
		return
	}

	if err := app.port.Close(); err != nil {
		logger.Warn("failed to close serial port", "err", err)
	}
}

// runUI runs the interactive terminal front end
func (app *Application) runUI(ctx context.Context, ctrl *console.Controller) error {
	screen := app.screen
	if screen == nil {
		var err error
		screen, err = tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("failed to create screen: %w", err)
		}
	}

	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize screen: %w", err)
	}
	defer screen.Fini()

	// Use default terminal colors instead of forcing black background
	screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorReset).
		Foreground(tcell.ColorReset))
	screen.Clear()

	view := ui.New(screen, ctrl, ui.Options{
		Title: app.config.SerialConfig.String(),
		State: func() string { return app.State().String() },
	})

	return view.Run(ctx)
}

// runHeadless sends every input line as a command until ctx is cancelled.
// Running out of input does not end the session.
func (app *Application) runHeadless(ctx context.Context, ctrl *console.Controller) error {
	commands := make(chan string)
	if app.in != nil {
		go func() {
			defer close(commands)

			scanner := bufio.NewScanner(app.in)
			for scanner.Scan() {
				select {
				case commands <- scanner.Text():
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			// Failures are logged and reported by the controller
			_ = ctrl.Send(cmd)
		}
	}
}

// printLines writes completed lines to the headless output
func (app *Application) printLines(ev console.Event) {
	if ev.Kind == console.EventLineCompleted {
		fmt.Fprintln(app.out, ev.Line)
	}
}

// printOpenLine writes the unterminated last line, if any
func (app *Application) printOpenLine(ctrl *console.Controller) {
	count := ctrl.LineCount()
	if count == 0 {
		return
	}

	if last := ctrl.Window(count-1, 1); len(last) == 1 && last[0] != "" {
		fmt.Fprintln(app.out, last[0])
	}
}

func (app *Application) loadHistory(ctrl *console.Controller, logger *slog.Logger) {
	if app.config.HistoryFile == "" {
		return
	}

	if err := ctrl.History().LoadFile(app.config.HistoryFile); err != nil {
		logger.Warn("failed to load command history", "file", app.config.HistoryFile, "err", err)
		return
	}
	logger.Debug("command history loaded", "file", app.config.HistoryFile, "commands", ctrl.History().Len())
}

func (app *Application) saveHistory(ctrl *console.Controller, logger *slog.Logger) {
	if app.config.HistoryFile == "" {
		return
	}

	if err := ctrl.History().SaveFile(app.config.HistoryFile); err != nil {
		logger.Warn("failed to save command history", "file", app.config.HistoryFile, "err", err)
	}
}

// watchSettings applies console settings from the settings file whenever it
// changes. It returns nil when there is nothing to watch.
func (app *Application) watchSettings(ctrl *console.Controller, logger *slog.Logger) *config.Watcher {
	path := app.config.SettingsFile
	if path == "" {
		return nil
	}

	watcher, err := config.Watch(path, func(s config.Settings, err error) {
		if err != nil {
			logger.Warn("settings reload failed", "file", path, "err", err)
			return
		}

		resolved, err := s.Console.Resolve()
		if err != nil {
			logger.Warn("settings reload failed", "file", path, "err", err)
			return
		}

		if err := ctrl.ApplySettings(resolved); err != nil {
			logger.Warn("settings reload rejected", "file", path, "err", err)
			return
		}
		logger.Info("console settings reloaded", "file", path)
	})
	if err != nil {
		logger.Debug("settings file not watched", "file", path, "err", err)
		return nil
	}

	return watcher
}

// exportPath names console exports after the time they were taken
func exportPath(dir string) console.PathChooser {
	return func() (string, error) {
		if dir == "" {
			dir = "."
		}

		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create export directory: %w", err)
		}

		name := fmt.Sprintf("console_%s.txt", time.Now().Format("20060102_150405"))
		return filepath.Join(dir, name), nil
	}
}

func (app *Application) setState(state serial.ConnectionState) {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.state = state
}

// State returns the connection state
func (app *Application) State() serial.ConnectionState {
	app.mu.RLock()
	defer app.mu.RUnlock()

	return app.state
}

// GetSession returns the current session, nil before Run
func (app *Application) GetSession() *Session {
	app.mu.RLock()
	defer app.mu.RUnlock()

	return app.session
}

// Controller returns the console of the current session, nil before Run
func (app *Application) Controller() *console.Controller {
	app.mu.RLock()
	defer app.mu.RUnlock()

	return app.ctrl
}

// GetStats returns application statistics
func (app *Application) GetStats() (bytesSent, bytesRecv int64, duration time.Duration) {
	session := app.GetSession()
	if session == nil {
		return 0, 0, 0
	}

	bytesSent, bytesRecv = session.GetStats()
	return bytesSent, bytesRecv, session.Duration()
}
