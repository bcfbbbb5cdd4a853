//go:build linux

// Package cmd implements the kbdlight command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/smazurov/kbdlight/internal/config"
	"github.com/smazurov/kbdlight/internal/version"
)

// NewRootCmd builds the command tree. Running the root command starts the
// daemon.
func NewRootCmd() *cobra.Command {
	opts := config.DefaultOptions()

	root := &cobra.Command{
		Use:   "kbdlight",
		Short: "Keyboard backlight daemon",
		Long: `Turns keyboard backlight LEDs on while keyboards or touchpads are in use ` +
			`and fades them off after a period of inactivity.`,
		Version:       version.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.Config, "config", "c", opts.Config, "Path to configuration file")

	f := root.Flags()
	f.Float64VarP(&opts.Timeout, "timeout", "t", opts.Timeout, "Seconds of inactivity before the backlight turns off")
	f.Float64VarP(&opts.Fade, "fade", "f", opts.Fade, "Fade duration in seconds")
	f.IntVarP(&opts.Brightness, "brightness", "b", opts.Brightness, "Default brightness in percent")
	f.StringVar(&opts.Hotplug, "hotplug", opts.Hotplug, "Hotplug event source (udev, kernel)")
	f.StringVar(&opts.MetricsListen, "metrics-listen", opts.MetricsListen, "Serve Prometheus metrics on this address")
	f.BoolVarP(&opts.Verbose, "verbose", "v", opts.Verbose, "Enable debug logging")
	f.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Logging level (debug, info, warn, error)")
	f.StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "Logging format (text, json)")

	root.AddCommand(
		newListDevicesCmd(&opts),
		newListLEDsCmd(),
		newVersionCmd(),
	)
	return root
}
