// Package console implements the line oriented serial console: staging of
// received bytes, the scrollback, and the controller tying them to the
// outbound command path.
package console

import (
	"fmt"
	"log/slog"
	"sync"

	"serial-console/pkg/codec"
	"serial-console/pkg/history"
)

// Device is the connection commands are written to
type Device interface {
	Connected() bool
	Write(data []byte) (int, error)
}

// WriteError is returned when the device rejects or fails a write
type WriteError struct {
	Written int
	Cause   error
}

// Error implements the error interface
func (e *WriteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("write failed after %d bytes: %v", e.Written, e.Cause)
	}
	return fmt.Sprintf("write failed after %d bytes", e.Written)
}

// Unwrap returns the underlying cause
func (e *WriteError) Unwrap() error {
	return e.Cause
}

// Options configures a Controller
type Options struct {
	Settings      Settings
	Scrollback    int
	IngestReserve int
	HistorySize   int
	Stamp         StampFunc
	ExportPath    PathChooser
	Logger        *slog.Logger
}

// DefaultOptions returns the options used by a stock console
func DefaultOptions() Options {
	return Options{
		Settings:      DefaultSettings(),
		Scrollback:    DefaultScrollback,
		IngestReserve: DefaultIngestReserve,
		HistorySize:   history.DefaultCapacity,
		Stamp:         DefaultStamp,
	}
}

// Controller owns the console state. Received bytes are staged by
// OnBytesReceived and moved into the scrollback by Flush; commands go out
// through Send.
type Controller struct {
	device  Device
	buffer  *LineBuffer
	ingest  *IngestQueue
	history *history.CommandHistory
	export  PathChooser
	logger  *slog.Logger

	settingsMu sync.RWMutex
	settings   Settings

	// mu linearizes scrollback mutations and the events they produce
	mu        sync.Mutex
	observers observers
}

// NewController creates a controller writing commands to device
func NewController(device Device, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Controller{
		device:   device,
		buffer:   NewLineBuffer(opts.Scrollback, opts.Stamp),
		ingest:   NewIngestQueue(opts.IngestReserve),
		history:  history.NewCommandHistory(opts.HistorySize),
		export:   opts.ExportPath,
		logger:   logger,
		settings: opts.Settings,
	}
}

// Subscribe registers a handler for console events and returns a function
// that removes it. Handlers must not call methods that modify the console.
func (c *Controller) Subscribe(h Handler) func() {
	return c.observers.subscribe(h)
}

// emit publishes events while holding mu so that observers see them in the
// order the scrollback changed
func (c *Controller) emit(events ...Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observers.publish(events...)
}

// fail logs err and reports it to observers
func (c *Controller) fail(msg string, err error) {
	c.logger.Warn(msg, "err", err)
	c.emit(Event{Kind: EventError, Err: err})
}

// OnBytesReceived stages bytes from the device until the next Flush
func (c *Controller) OnBytesReceived(data []byte) {
	c.ingest.OnBytesReceived(data)
}

// Flush decodes everything staged since the last flush and appends it to the
// scrollback. It returns the number of bytes consumed.
func (c *Controller) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw := c.ingest.Drain()
	if len(raw) == 0 {
		return 0
	}

	s := c.Settings()
	events := c.buffer.AppendText(codec.DecodeForDisplay(raw, s.DisplayMode), s.ShowTimestamp)
	c.observers.publish(events...)

	return len(raw)
}

// Send writes a command to the device. Empty commands and commands issued
// while disconnected are ignored. The command is recorded in the history even
// when encoding or writing fails.
func (c *Controller) Send(data string) error {
	if data == "" || c.device == nil || !c.device.Connected() {
		return nil
	}

	c.history.Push(data)
	c.emit(Event{Kind: EventHistoryChanged})

	s := c.Settings()

	var bin []byte
	if s.DataMode == DataHex {
		decoded, err := codec.EncodeFromHex(data)
		if err != nil {
			c.fail("invalid hex command", err)
			return err
		}
		bin = decoded
	} else {
		bin = []byte(data)
	}
	bin = append(bin, s.LineEnding.Bytes()...)

	n, err := c.device.Write(bin)
	if err != nil || n <= 0 {
		werr := &WriteError{Written: n, Cause: err}
		c.fail("device write failed", werr)
		return werr
	}

	c.logger.Debug("command sent", "bytes", n, "data_mode", s.DataMode.String(), "line_ending", s.LineEnding.String())

	if s.Echo {
		c.mu.Lock()
		events := c.buffer.AppendText(codec.DecodeForDisplay(bin, s.DisplayMode), s.ShowTimestamp)
		c.buffer.ResetTimestamp()
		c.observers.publish(events...)
		c.mu.Unlock()
	}

	return nil
}

// Clear empties the scrollback and drops staged bytes
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer.Clear()
	c.ingest.Reset()
	c.observers.publish(Event{Kind: EventBufferChanged})
}

// Save exports the scrollback to the path chosen by the export PathChooser
// and returns that path. Nothing is written when the scrollback is empty or
// the chooser returns an empty path.
func (c *Controller) Save() (string, error) {
	lines := c.buffer.Lines()
	if len(lines) == 0 {
		return "", nil
	}

	if c.export == nil {
		err := fmt.Errorf("no export path configured")
		c.fail("export failed", err)
		return "", err
	}

	path, err := c.export()
	if err != nil {
		c.fail("export path selection failed", err)
		return "", err
	}
	if path == "" {
		return "", nil
	}

	if err := ExportLines(path, lines); err != nil {
		c.fail("export failed", err)
		return "", err
	}

	c.logger.Info("console exported", "path", path, "lines", len(lines))
	return path, nil
}

// SaveAvailable reports whether there is anything to export
func (c *Controller) SaveAvailable() bool {
	return c.buffer.LineCount() > 0
}

// LineCount returns the number of scrollback lines
func (c *Controller) LineCount() int {
	return c.buffer.LineCount()
}

// Lines returns a copy of the scrollback
func (c *Controller) Lines() []string {
	return c.buffer.Lines()
}

// Window returns a copy of at most count scrollback lines from start
func (c *Controller) Window(start, count int) []string {
	return c.buffer.Window(start, count)
}

// History returns the command history
func (c *Controller) History() *history.CommandHistory {
	return c.history
}

// HistoryPrevious moves the recall cursor to an older command and returns it
func (c *Controller) HistoryPrevious() string {
	if c.history.RecallPrevious() {
		c.emit(Event{Kind: EventHistoryChanged})
	}
	return c.history.Current()
}

// HistoryNext moves the recall cursor to a newer command and returns it
func (c *Controller) HistoryNext() string {
	if c.history.RecallNext() {
		c.emit(Event{Kind: EventHistoryChanged})
	}
	return c.history.Current()
}

// CurrentHistory returns the command under the recall cursor
func (c *Controller) CurrentHistory() string {
	return c.history.Current()
}

// Settings returns a copy of the current settings
func (c *Controller) Settings() Settings {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()

	return c.settings
}

// ApplySettings replaces every setting and reports each one that changed
func (c *Controller) ApplySettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.settingsMu.Lock()
	old := c.settings
	c.settings = s
	c.settingsMu.Unlock()

	var events []Event
	changed := func(flag string, differs bool) {
		if differs {
			events = append(events, Event{Kind: EventConfigChanged, Flag: flag})
		}
	}
	changed(FlagDataMode, old.DataMode != s.DataMode)
	changed(FlagLineEnding, old.LineEnding != s.LineEnding)
	changed(FlagDisplayMode, old.DisplayMode != s.DisplayMode)
	changed(FlagEcho, old.Echo != s.Echo)
	changed(FlagAutoscroll, old.Autoscroll != s.Autoscroll)
	changed(FlagShowTimestamp, old.ShowTimestamp != s.ShowTimestamp)

	if len(events) > 0 {
		c.emit(events...)
	}
	return nil
}

// Setting names carried by EventConfigChanged
const (
	FlagDataMode      = "data_mode"
	FlagLineEnding    = "line_ending"
	FlagDisplayMode   = "display_mode"
	FlagEcho          = "echo"
	FlagAutoscroll    = "autoscroll"
	FlagShowTimestamp = "show_timestamp"
)

func (c *Controller) update(flag string, apply func(*Settings)) {
	c.settingsMu.Lock()
	apply(&c.settings)
	c.settingsMu.Unlock()

	c.emit(Event{Kind: EventConfigChanged, Flag: flag})
}

// SetEcho enables or disables echo of sent commands
func (c *Controller) SetEcho(enabled bool) {
	c.update(FlagEcho, func(s *Settings) { s.Echo = enabled })
}

// SetDataMode changes how typed commands are encoded
func (c *Controller) SetDataMode(mode DataMode) {
	c.update(FlagDataMode, func(s *Settings) { s.DataMode = mode })
}

// SetShowTimestamp enables or disables line timestamps
func (c *Controller) SetShowTimestamp(enabled bool) {
	c.update(FlagShowTimestamp, func(s *Settings) { s.ShowTimestamp = enabled })
}

// SetAutoscroll enables or disables following the newest line
func (c *Controller) SetAutoscroll(enabled bool) {
	c.update(FlagAutoscroll, func(s *Settings) { s.Autoscroll = enabled })
}

// SetLineEnding changes the terminator appended to sent commands
func (c *Controller) SetLineEnding(ending LineEnding) {
	c.update(FlagLineEnding, func(s *Settings) { s.LineEnding = ending })
}

// SetDisplayMode changes how received bytes are rendered
func (c *Controller) SetDisplayMode(mode DisplayMode) {
	c.update(FlagDisplayMode, func(s *Settings) { s.DisplayMode = mode })
}

// Echo reports whether sent commands are echoed
func (c *Controller) Echo() bool { return c.Settings().Echo }

// Autoscroll reports whether the view follows the newest line
func (c *Controller) Autoscroll() bool { return c.Settings().Autoscroll }

// ShowTimestamp reports whether lines are timestamped
func (c *Controller) ShowTimestamp() bool { return c.Settings().ShowTimestamp }

// DataMode returns the encoding of typed commands
func (c *Controller) DataMode() DataMode { return c.Settings().DataMode }

// LineEnding returns the terminator appended to sent commands
func (c *Controller) LineEnding() LineEnding { return c.Settings().LineEnding }

// DisplayMode returns how received bytes are rendered
func (c *Controller) DisplayMode() DisplayMode { return c.Settings().DisplayMode }
