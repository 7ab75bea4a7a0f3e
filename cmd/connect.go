package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"serial-console/pkg/app"
	"serial-console/pkg/config"
	"serial-console/pkg/console"
	"serial-console/pkg/serial"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect [port|profile]",
	Short: "Connect to a serial port",
	Long: `Connect to a serial port directly or using a saved profile.

You can specify either:
  - A port name (e.g., COM3, /dev/ttyUSB0) with optional parameters
  - A saved profile name
  - Nothing, to use the port from the settings file

Examples:
  # Connect to COM3 with default settings
  serial-console connect COM3

  # Connect to /dev/ttyUSB0 at 9600 baud, sending hex with CR LF
  serial-console connect /dev/ttyUSB0 -b 9600 --data-mode hex --line-ending crlf

  # Print received lines to stdout and send stdin lines, without the UI
  serial-console connect COM3 --headless

  # Connect using a saved profile
  serial-console connect mydevice`,
	Args:    cobra.MaximumNArgs(1),
	Aliases: []string{"open"},
	RunE:    runConnect,
}

func init() {
	addSerialFlags(connectCmd)
	addConsoleFlags(connectCmd)
	addSessionFlags(connectCmd)
}

func addSerialFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("port", "p", "", "serial port")
	f.IntP("baud", "b", 115200, "baud rate")
	f.IntP("data", "d", 8, "data bits (5, 6, 7, or 8)")
	f.IntP("stop", "s", 1, "stop bits (1 or 2)")
	f.String("parity", "none", "parity (none, odd, even, mark, space)")
}

func addConsoleFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("data-mode", "ascii", "how commands are encoded (ascii, hex)")
	f.String("line-ending", "none", "appended to every command (none, lf, cr, crlf)")
	f.String("display-mode", "text", "how received bytes are shown (text, hex)")
	f.Bool("echo", false, "show sent commands in the console")
	f.Bool("timestamps", true, "prefix received lines with the time")
	f.Bool("autoscroll", true, "follow new output")
}

func addSessionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("headless", false, "print received lines and send stdin lines instead of running the UI")
	f.Int("flush-rate", config.DefaultFlushRateHz, "how many times per second received bytes are shown")
	f.Int("retries", serial.DefaultRetryConfig().MaxRetries, "open retries while the port is busy or missing")
	f.String("export-dir", "", "directory console exports are saved to")
}

func runConnect(cmd *cobra.Command, args []string) error {
	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	return connect(cmd, target, false)
}

// connect runs a session against target, a port name or a profile. With
// profileOnly set target always names a profile.
func connect(cmd *cobra.Command, target string, profileOnly bool) error {
	settings, err := config.Load(settingsFile)
	if err != nil {
		return err
	}

	cfg, err := buildAppConfig(cmd, settings, target, profileOnly)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(settings, !cfg.Headless)
	if err != nil {
		return err
	}
	defer closeLog()

	application, err := app.NewApplication(cfg, serial.NewCrossPlatformSerialPort(),
		app.WithLogger(logger),
		app.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()))
	if err != nil {
		return err
	}

	if err := app.NewRunner(application, cmd.OutOrStdout()).Run(cmd.Context()); err != nil {
		if application.State() == serial.StateError {
			printOpenHints(cmd.ErrOrStderr(), err)
		}
		return err
	}
	return nil
}

// buildAppConfig layers the settings file, an optional port or profile and
// the flags given on the command line
func buildAppConfig(cmd *cobra.Command, settings config.Settings, target string, profileOnly bool) (app.AppConfig, error) {
	cfg := app.DefaultAppConfig()
	cfg.SerialConfig = settings.Serial.SerialConfig()
	cfg.FlushRateHz = settings.FlushRateHz
	cfg.Scrollback = settings.ScrollbackLines
	cfg.HistorySize = settings.History.Size
	cfg.HistoryFile = settings.History.File
	cfg.ExportDir = settings.ExportDir

	consoleSettings, err := settings.Console.Resolve()
	if err != nil {
		return cfg, fmt.Errorf("invalid console settings: %w", err)
	}
	cfg.Console = consoleSettings

	if cfg.SettingsFile, err = settingsPath(); err != nil {
		return cfg, err
	}

	switch {
	case target == "":
	case !profileOnly && isSerialPort(target):
		cfg.SerialConfig.Port = target
	default:
		profile, err := loadProfile(cmd.ErrOrStderr(), target)
		if err != nil {
			return cfg, err
		}
		cfg.SerialConfig = profile.Serial
		cfg.Console = profile.Console

		if verbose {
			fmt.Fprintf(cmd.OutOrStdout(), "Loading profile '%s'...\n", target)
		}
	}

	if err := applySerialFlags(cmd, &cfg.SerialConfig); err != nil {
		return cfg, err
	}
	if err := applyConsoleFlags(cmd, &cfg.Console); err != nil {
		return cfg, err
	}
	if err := applySessionFlags(cmd, &cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	if verbose {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Connecting to port %s...\n", cfg.SerialConfig.Port)
		fmt.Fprintf(w, "  Settings: %s\n", cfg.SerialConfig.String())
		fmt.Fprintf(w, "  Data Mode: %s\n", cfg.Console.DataMode)
		fmt.Fprintf(w, "  Line Ending: %s\n", cfg.Console.LineEnding)
		fmt.Fprintf(w, "  Display: %s\n", cfg.Console.DisplayMode)
	}

	return cfg, nil
}

func loadProfile(errOut io.Writer, name string) (config.Profile, error) {
	store, err := profileStore()
	if err != nil {
		return config.Profile{}, err
	}

	profile, err := store.Load(name)
	if err == nil {
		return profile, nil
	}

	fmt.Fprintf(errOut, "'%s' is neither a valid port nor a saved profile.\n", name)
	fmt.Fprintf(errOut, "\nAvailable ports:\n")

	ports, _ := serial.ListPorts()
	if len(ports) == 0 {
		fmt.Fprintf(errOut, "  No serial ports found.\n")
	}
	for _, p := range ports {
		fmt.Fprintf(errOut, "  - %s\n", p)
	}

	if profiles, _ := store.List(); len(profiles) > 0 {
		fmt.Fprintf(errOut, "\nAvailable profiles:\n")
		for _, p := range profiles {
			fmt.Fprintf(errOut, "  - %s (port: %s)\n", p.Name, p.Serial.Port)
		}
	}

	return config.Profile{}, err
}

func applySerialFlags(cmd *cobra.Command, cfg *serial.SerialConfig) error {
	return errors.Join(
		changedString(cmd, "port", &cfg.Port),
		changedInt(cmd, "baud", &cfg.BaudRate),
		changedInt(cmd, "data", &cfg.DataBits),
		changedInt(cmd, "stop", &cfg.StopBits),
		changedString(cmd, "parity", &cfg.Parity),
	)
}

func applyConsoleFlags(cmd *cobra.Command, s *console.Settings) error {
	var dataMode, lineEnding, displayMode string
	errs := []error{
		changedString(cmd, "data-mode", &dataMode),
		changedString(cmd, "line-ending", &lineEnding),
		changedString(cmd, "display-mode", &displayMode),
		changedBool(cmd, "echo", &s.Echo),
		changedBool(cmd, "timestamps", &s.ShowTimestamp),
		changedBool(cmd, "autoscroll", &s.Autoscroll),
	}

	var err error
	if dataMode != "" {
		s.DataMode, err = console.ParseDataMode(dataMode)
		errs = append(errs, err)
	}
	if lineEnding != "" {
		s.LineEnding, err = console.ParseLineEnding(lineEnding)
		errs = append(errs, err)
	}
	if displayMode != "" {
		s.DisplayMode, err = console.ParseDisplayMode(displayMode)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func applySessionFlags(cmd *cobra.Command, cfg *app.AppConfig) error {
	return errors.Join(
		changedBool(cmd, "headless", &cfg.Headless),
		changedInt(cmd, "flush-rate", &cfg.FlushRateHz),
		changedInt(cmd, "retries", &cfg.Retry.MaxRetries),
		changedString(cmd, "export-dir", &cfg.ExportDir),
	)
}

// changedString copies a flag value into dst when it was set on the command
// line. Flags the command does not define are ignored.
func changedString(cmd *cobra.Command, name string, dst *string) error {
	f := cmd.Flags()
	if f.Lookup(name) == nil || !f.Changed(name) {
		return nil
	}

	v, err := f.GetString(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func changedInt(cmd *cobra.Command, name string, dst *int) error {
	f := cmd.Flags()
	if f.Lookup(name) == nil || !f.Changed(name) {
		return nil
	}

	v, err := f.GetInt(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func changedBool(cmd *cobra.Command, name string, dst *bool) error {
	f := cmd.Flags()
	if f.Lookup(name) == nil || !f.Changed(name) {
		return nil
	}

	v, err := f.GetBool(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func isSerialPort(name string) bool {
	lower := strings.ToLower(name)

	// Windows COM ports
	if strings.HasPrefix(lower, "com") {
		return true
	}

	// Unix-like serial devices
	if strings.HasPrefix(name, "/dev/") {
		return true
	}

	ports, err := serial.ListPorts()
	if err == nil {
		for _, port := range ports {
			if strings.EqualFold(port, name) {
				return true
			}
		}
	}

	return false
}

// printOpenHints suggests fixes for a port that failed to open
func printOpenHints(w io.Writer, err error) {
	errStr := strings.ToLower(err.Error())

	var hints []string
	if strings.Contains(errStr, "permission") || strings.Contains(errStr, "access") {
		hints = append(hints,
			"Check if you have permission to access the port",
			"On Linux: Add your user to the 'dialout' group: sudo usermod -a -G dialout $USER")
	}
	if strings.Contains(errStr, "busy") || strings.Contains(errStr, "in use") {
		hints = append(hints,
			"The port may be in use by another application",
			"Close other terminal programs or serial monitors")
	}
	if strings.Contains(errStr, "not found") || strings.Contains(errStr, "no such") {
		hints = append(hints,
			"The specified port does not exist",
			"Use 'serial-console list' to see available ports")
	}

	if len(hints) == 0 {
		return
	}

	fmt.Fprintf(w, "\nPossible solutions:\n")
	for _, hint := range hints {
		fmt.Fprintf(w, "  - %s\n", hint)
	}
}
