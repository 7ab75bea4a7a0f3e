package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"serial-console/pkg/console"
	"serial-console/pkg/history"
	"serial-console/pkg/logging"
	"serial-console/pkg/serial"
)

// AppName names the per-user configuration directory
const AppName = "serial-console"

// DefaultFlushRateHz is how often staged bytes are moved to the scrollback
const DefaultFlushRateHz = 24

// Settings is the contents of the settings file
type Settings struct {
	Serial          SerialSettings  `mapstructure:"serial" yaml:"serial"`
	Console         ConsoleSettings `mapstructure:"console" yaml:"console"`
	FlushRateHz     int             `mapstructure:"flush_rate_hz" yaml:"flush_rate_hz"`
	ScrollbackLines int             `mapstructure:"scrollback_lines" yaml:"scrollback_lines"`
	History         HistorySettings `mapstructure:"history" yaml:"history"`
	ExportDir       string          `mapstructure:"export_dir" yaml:"export_dir"`
	Log             LogSettings     `mapstructure:"log" yaml:"log"`
}

// SerialSettings holds the port parameters used when no profile is given
type SerialSettings struct {
	Port     string `mapstructure:"port" yaml:"port"`
	BaudRate int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	DataBits int    `mapstructure:"data_bits" yaml:"data_bits"`
	StopBits int    `mapstructure:"stop_bits" yaml:"stop_bits"`
	Parity   string `mapstructure:"parity" yaml:"parity"`
}

// ConsoleSettings is the textual form of console.Settings
type ConsoleSettings struct {
	DataMode      string `mapstructure:"data_mode" yaml:"data_mode"`
	LineEnding    string `mapstructure:"line_ending" yaml:"line_ending"`
	DisplayMode   string `mapstructure:"display_mode" yaml:"display_mode"`
	Echo          bool   `mapstructure:"echo" yaml:"echo"`
	Autoscroll    bool   `mapstructure:"autoscroll" yaml:"autoscroll"`
	ShowTimestamp bool   `mapstructure:"show_timestamp" yaml:"show_timestamp"`
}

// HistorySettings controls the command history
type HistorySettings struct {
	Size int    `mapstructure:"size" yaml:"size"`
	File string `mapstructure:"file" yaml:"file"`
}

// LogSettings mirrors logging.Options
type LogSettings struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Sink       string `mapstructure:"sink" yaml:"sink"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultDir returns the per-user configuration directory
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// DefaultSettingsPath returns the settings file used when none is given
func DefaultSettingsPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.yaml"), nil
}

// DefaultSettings returns the built-in settings. Paths are rooted in dir.
func DefaultSettings(dir string) Settings {
	sc := serial.DefaultConfig()
	cs := console.DefaultSettings()
	lo := logging.DefaultOptions()

	return Settings{
		Serial: SerialSettings{
			Port:     sc.Port,
			BaudRate: sc.BaudRate,
			DataBits: sc.DataBits,
			StopBits: sc.StopBits,
			Parity:   sc.Parity,
		},
		Console:         FromConsole(cs),
		FlushRateHz:     DefaultFlushRateHz,
		ScrollbackLines: console.DefaultScrollback,
		History: HistorySettings{
			Size: history.DefaultCapacity,
			File: filepath.Join(dir, "history.json"),
		},
		ExportDir: ".",
		Log: LogSettings{
			Level:      lo.Level,
			Format:     string(lo.Format),
			Sink:       string(lo.Sink),
			File:       filepath.Join(dir, "console.log"),
			MaxSizeMB:  lo.MaxSizeMB,
			MaxBackups: lo.MaxBackups,
			MaxAgeDays: lo.MaxAgeDays,
			Compress:   lo.Compress,
		},
	}
}

// FromConsole converts console settings to their textual form
func FromConsole(s console.Settings) ConsoleSettings {
	return ConsoleSettings{
		DataMode:      s.DataMode.String(),
		LineEnding:    s.LineEnding.String(),
		DisplayMode:   s.DisplayMode.String(),
		Echo:          s.Echo,
		Autoscroll:    s.Autoscroll,
		ShowTimestamp: s.ShowTimestamp,
	}
}

// Resolve parses the textual settings
func (c ConsoleSettings) Resolve() (console.Settings, error) {
	dataMode, err := console.ParseDataMode(c.DataMode)
	if err != nil {
		return console.Settings{}, err
	}
	lineEnding, err := console.ParseLineEnding(c.LineEnding)
	if err != nil {
		return console.Settings{}, err
	}
	displayMode, err := console.ParseDisplayMode(c.DisplayMode)
	if err != nil {
		return console.Settings{}, err
	}

	return console.Settings{
		DataMode:      dataMode,
		LineEnding:    lineEnding,
		DisplayMode:   displayMode,
		Echo:          c.Echo,
		Autoscroll:    c.Autoscroll,
		ShowTimestamp: c.ShowTimestamp,
	}, nil
}

// SerialConfig converts the serial section, keeping the default read timeout
func (s SerialSettings) SerialConfig() serial.SerialConfig {
	cfg := serial.DefaultConfig()
	cfg.Port = s.Port
	cfg.BaudRate = s.BaudRate
	cfg.DataBits = s.DataBits
	cfg.StopBits = s.StopBits
	cfg.Parity = s.Parity
	return cfg
}

// Options converts the log section
func (l LogSettings) Options() logging.Options {
	return logging.Options{
		Level:      l.Level,
		Format:     logging.Format(l.Format),
		Sink:       logging.Sink(l.Sink),
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

// Validate checks every section
func (s Settings) Validate() error {
	if _, err := s.Console.Resolve(); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	if s.FlushRateHz < 1 || s.FlushRateHz > 1000 {
		return fmt.Errorf("flush_rate_hz must be between 1 and 1000, got: %d", s.FlushRateHz)
	}
	if s.ScrollbackLines < 0 {
		return fmt.Errorf("scrollback_lines cannot be negative")
	}
	if s.History.Size < 1 {
		return fmt.Errorf("history.size must be positive, got: %d", s.History.Size)
	}
	if err := s.Log.Options().Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func newViper(path string, defaults Settings) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SERIAL_CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("serial.port", defaults.Serial.Port)
	v.SetDefault("serial.baud_rate", defaults.Serial.BaudRate)
	v.SetDefault("serial.data_bits", defaults.Serial.DataBits)
	v.SetDefault("serial.stop_bits", defaults.Serial.StopBits)
	v.SetDefault("serial.parity", defaults.Serial.Parity)
	v.SetDefault("console.data_mode", defaults.Console.DataMode)
	v.SetDefault("console.line_ending", defaults.Console.LineEnding)
	v.SetDefault("console.display_mode", defaults.Console.DisplayMode)
	v.SetDefault("console.echo", defaults.Console.Echo)
	v.SetDefault("console.autoscroll", defaults.Console.Autoscroll)
	v.SetDefault("console.show_timestamp", defaults.Console.ShowTimestamp)
	v.SetDefault("flush_rate_hz", defaults.FlushRateHz)
	v.SetDefault("scrollback_lines", defaults.ScrollbackLines)
	v.SetDefault("history.size", defaults.History.Size)
	v.SetDefault("history.file", defaults.History.File)
	v.SetDefault("export_dir", defaults.ExportDir)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("log.sink", defaults.Log.Sink)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.max_size_mb", defaults.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", defaults.Log.MaxBackups)
	v.SetDefault("log.max_age_days", defaults.Log.MaxAgeDays)
	v.SetDefault("log.compress", defaults.Log.Compress)

	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings in %s: %w", v.ConfigFileUsed(), err)
	}
	return s, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// resolvePath returns path or the default settings path, and the directory
// defaults are rooted in
func resolvePath(path string) (string, string, error) {
	if path == "" {
		defaultPath, err := DefaultSettingsPath()
		if err != nil {
			return "", "", err
		}
		path = defaultPath
	}
	return path, filepath.Dir(path), nil
}

// Load reads the settings file at path, or the default path when empty. A
// missing file yields the defaults.
func Load(path string) (Settings, error) {
	path, dir, err := resolvePath(path)
	if err != nil {
		return Settings{}, err
	}

	v := newViper(path, DefaultSettings(dir))
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	return decode(v)
}

// WriteDefault writes the default settings to path and returns the path
// written. An existing file is only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) (string, error) {
	path, dir, err := resolvePath(path)
	if err != nil {
		return "", err
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("settings already exist at %s", path)
		}
	}

	data, err := yaml.Marshal(DefaultSettings(dir))
	if err != nil {
		return "", fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write settings file: %w", err)
	}

	return path, nil
}

// Watcher re-reads the settings file whenever it changes
type Watcher struct {
	mu      sync.Mutex
	stopped bool
}

// Stop drops any further change notifications
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
}

func (w *Watcher) active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.stopped
}

// Watch calls onChange with the new settings, or the decode error, after
// each write to the settings file. The file must exist.
func Watch(path string, onChange func(Settings, error)) (*Watcher, error) {
	path, dir, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	v := newViper(path, DefaultSettings(dir))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	w := &Watcher{}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if !w.active() {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()

	return w, nil
}
