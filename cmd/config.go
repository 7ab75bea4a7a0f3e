package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"serial-console/pkg/config"
)

var (
	configDescription string
	initForce         bool
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the settings file and saved profiles",
	Long: `Manage the settings file and saved connection profiles.

A profile stores the serial port parameters together with the console
settings (data mode, line ending, display mode, echo, timestamps and
autoscroll) for quick access to frequently used devices.`,
}

// saveCmd saves a profile
var saveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a connection profile",
	Long: `Save serial port parameters and console settings under a name.

Example:
  serial-console config save mydevice -p COM3 -b 115200 --line-ending crlf`,
	Args: cobra.ExactArgs(1),
	RunE: runSaveProfile,
}

// loadCmd connects using a profile
var loadCmd = &cobra.Command{
	Use:   "load <name>",
	Short: "Connect using a saved profile",
	Long: `Load a saved profile and immediately connect to its serial port.

Example:
  serial-console config load mydevice`,
	Args: cobra.ExactArgs(1),
	RunE: runLoadProfile,
}

// listProfilesCmd lists all profiles
var listProfilesCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved profiles",
	Long:  `Display a list of all saved connection profiles.`,
	RunE:  runListProfiles,
}

// deleteCmd deletes a profile
var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved profile",
	Long: `Delete a saved connection profile.

Example:
  serial-console config delete mydevice`,
	Aliases: []string{"rm", "remove"},
	Args:    cobra.ExactArgs(1),
	RunE:    runDeleteProfile,
}

// showCmd shows details of a profile
var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show details of a saved profile",
	Long: `Display detailed information about a saved profile.

Example:
  serial-console config show mydevice`,
	Args: cobra.ExactArgs(1),
	RunE: runShowProfile,
}

// initCmd writes the default settings file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	Long: `Write a settings file holding the built-in defaults, to the path given
with --config or to the user config directory.`,
	Args: cobra.NoArgs,
	RunE: runInitSettings,
}

func init() {
	configCmd.AddCommand(saveCmd)
	configCmd.AddCommand(loadCmd)
	configCmd.AddCommand(listProfilesCmd)
	configCmd.AddCommand(deleteCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(initCmd)

	addSerialFlags(saveCmd)
	addConsoleFlags(saveCmd)
	saveCmd.Flags().StringVar(&configDescription, "description", "", "free-form profile description")
	saveCmd.MarkFlagRequired("port")

	addSessionFlags(loadCmd)
	addConsoleFlags(loadCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing settings file")
}

func runSaveProfile(cmd *cobra.Command, args []string) error {
	name := args[0]

	settings, err := config.Load(settingsFile)
	if err != nil {
		return err
	}

	serialConfig := settings.Serial.SerialConfig()
	if err := applySerialFlags(cmd, &serialConfig); err != nil {
		return err
	}
	if err := serialConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	consoleSettings, err := settings.Console.Resolve()
	if err != nil {
		return err
	}
	if err := applyConsoleFlags(cmd, &consoleSettings); err != nil {
		return err
	}

	store, err := profileStore()
	if err != nil {
		return err
	}

	profile := config.Profile{
		Name:        name,
		Serial:      serialConfig,
		Console:     consoleSettings,
		Description: configDescription,
	}
	if err := store.Save(profile); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Profile '%s' saved successfully.\n", name)
	fmt.Fprintf(w, "  Settings: %s\n", serialConfig.String())
	fmt.Fprintf(w, "  Console: %s, %s, %s\n", consoleSettings.DataMode, consoleSettings.LineEnding, consoleSettings.DisplayMode)
	return nil
}

func runLoadProfile(cmd *cobra.Command, args []string) error {
	return connect(cmd, args[0], true)
}

func runListProfiles(cmd *cobra.Command, args []string) error {
	store, err := profileStore()
	if err != nil {
		return err
	}

	profiles, err := store.List()
	if err != nil {
		return fmt.Errorf("listing profiles: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(profiles) == 0 {
		fmt.Fprintln(out, "No saved profiles found.")
		fmt.Fprintln(out, "\nUse 'serial-console config save <name>' to save a profile.")
		return nil
	}

	fmt.Fprintf(out, "Found %d saved profile(s):\n\n", len(profiles))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPORT\tBAUD\tDATA\tLAST USED\tCREATED")
	fmt.Fprintln(w, "----\t----\t----\t----\t---------\t-------")

	for _, p := range profiles {
		lastUsed := "Never"
		if !p.LastUsedAt.IsZero() {
			lastUsed = p.LastUsedAt.Format("2006-01-02 15:04")
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			p.Name,
			p.Serial.Port,
			p.Serial.BaudRate,
			p.Console.DataMode,
			lastUsed,
			p.CreatedAt.Format("2006-01-02 15:04"))
	}

	w.Flush()

	fmt.Fprintln(out, "\nUse 'serial-console config load <name>' to connect using a profile.")
	return nil
}

func runDeleteProfile(cmd *cobra.Command, args []string) error {
	name := args[0]

	store, err := profileStore()
	if err != nil {
		return err
	}
	if err := store.Delete(name); err != nil {
		return fmt.Errorf("deleting profile '%s': %w", name, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' deleted successfully.\n", name)
	return nil
}

func runShowProfile(cmd *cobra.Command, args []string) error {
	name := args[0]

	store, err := profileStore()
	if err != nil {
		return err
	}

	profiles, err := store.List()
	if err != nil {
		return fmt.Errorf("loading profiles: %w", err)
	}

	for _, found := range profiles {
		if found.Name == name {
			printProfile(cmd.OutOrStdout(), found)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", config.ErrProfileNotFound, name)
}

func printProfile(w io.Writer, found config.Profile) {
	fmt.Fprintf(w, "Profile: %s\n", found.Name)
	fmt.Fprintln(w, strings.Repeat("=", len(found.Name)+9))
	if found.Description != "" {
		fmt.Fprintf(w, "Description:  %s\n", found.Description)
	}
	fmt.Fprintf(w, "Port:         %s\n", found.Serial.Port)
	fmt.Fprintf(w, "Baud Rate:    %d\n", found.Serial.BaudRate)
	fmt.Fprintf(w, "Data Bits:    %d\n", found.Serial.DataBits)
	fmt.Fprintf(w, "Stop Bits:    %d\n", found.Serial.StopBits)
	fmt.Fprintf(w, "Parity:       %s\n", found.Serial.Parity)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Data Mode:    %s\n", found.Console.DataMode)
	fmt.Fprintf(w, "Line Ending:  %s\n", found.Console.LineEnding)
	fmt.Fprintf(w, "Display:      %s\n", found.Console.DisplayMode)
	fmt.Fprintf(w, "Echo:         %t\n", found.Console.Echo)
	fmt.Fprintf(w, "Timestamps:   %t\n", found.Console.ShowTimestamp)
	fmt.Fprintf(w, "Autoscroll:   %t\n", found.Console.Autoscroll)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Created:      %s\n", found.CreatedAt.Format(time.RFC3339))

	if !found.LastUsedAt.IsZero() {
		fmt.Fprintf(w, "Last Used:    %s\n", found.LastUsedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(w, "Last Used:    Never\n")
	}
}

func runInitSettings(cmd *cobra.Command, args []string) error {
	path, err := config.WriteDefault(settingsFile, initForce)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Settings written to %s\n", path)
	return nil
}
