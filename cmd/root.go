package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"serial-console/pkg/config"
	"serial-console/pkg/logging"
)

var (
	// Root command flags
	verbose      bool
	settingsFile string
	profilesDir  string

	// Root command
	rootCmd = &cobra.Command{
		Use:   "serial-console",
		Short: "A cross-platform serial port console",
		Long: `A line-oriented serial console: received bytes are shown as text or hex
dumps in a scrollback, and typed commands are sent as text or hex bytes
with a configurable line ending.`,
		Version:           "1.0.0",
		Run:               runRoot,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&settingsFile, "config", "", "settings file (default is the user config directory)")
	rootCmd.PersistentFlags().StringVar(&profilesDir, "profiles", "", "directory holding saved profiles")

	// Add subcommands
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(connectCmd)
}

// runRoot shows help when no subcommand is given
func runRoot(cmd *cobra.Command, args []string) {
	cmd.Help()
}

// settingsPath returns the settings file in use
func settingsPath() (string, error) {
	if settingsFile != "" {
		return settingsFile, nil
	}
	return config.DefaultSettingsPath()
}

// profileStore opens the saved profile store
func profileStore() (*config.FileProfileStore, error) {
	dir := profilesDir
	if dir == "" {
		var err error
		if dir, err = config.DefaultDir(); err != nil {
			return nil, err
		}
	}
	return config.NewFileProfileStore(dir), nil
}

// newLogger builds the logger described by the settings file. Records would
// corrupt a full screen UI, so interactive sessions log to the file sink
// instead of stderr.
func newLogger(settings config.Settings, interactive bool) (*slog.Logger, func() error, error) {
	opts := settings.Log.Options()
	if verbose {
		opts.Level = "debug"
	}

	if interactive && opts.Sink == logging.SinkStderr {
		opts.Sink = logging.SinkNone
		if opts.File != "" {
			opts.Sink = logging.SinkFile
		}
	}

	logger, closeFn, err := logging.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger, closeFn, nil
}
