//go:build linux

package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/kbdlight/internal/config"
	"github.com/smazurov/kbdlight/internal/input"
	"github.com/smazurov/kbdlight/internal/led"
	"github.com/smazurov/kbdlight/pkg/linuxinput/evdev"
)

func newListDevicesCmd(opts *config.Options) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list-devices",
		Short: "List input devices and whether kbdlight would watch them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(*opts, cmd)
			if err != nil {
				return err
			}
			paths, err := evdev.ListPathsIn(dir)
			if err != nil {
				return err
			}
			infos := make([]deviceInfo, 0, len(paths))
			for _, p := range paths {
				info, err := evdev.Describe(p)
				infos = append(infos, deviceInfo{Info: info, err: err})
			}
			return writeDevices(cmd.OutOrStdout(), infos, input.FilterFromNames(settings.Inputs))
		},
	}

	cmd.Flags().StringVar(&dir, "dir", evdev.DevInputDir, "Directory containing evdev nodes")
	return cmd
}

// deviceInfo adapts a capability snapshot to input.Capabilities so the
// daemon's filter can be applied without reopening the device.
type deviceInfo struct {
	evdev.Info
	err error
}

func (d deviceInfo) Name() (string, error) {
	return d.Info.Name, d.err
}

func (d deviceInfo) SupportsRepeat() (bool, error) {
	return d.Repeat, d.err
}

func (d deviceInfo) HasProperty(prop uint16) (bool, error) {
	if prop == evdev.InputPropDirect {
		return d.Direct, d.err
	}
	return false, d.err
}

func (d deviceInfo) HasKey(code uint16) (bool, error) {
	if code == evdev.BtnTouch {
		return d.Touch, d.err
	}
	return false, d.err
}

func writeDevices(out io.Writer, devices []deviceInfo, filter input.Filter) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tREPEAT\tTOUCHPAD\tKEYS\tWATCHED")
	for _, d := range devices {
		if d.err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\terror: %v\n", d.Path, d.err)
			continue
		}
		watched, err := filter.Matches(d)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			d.Path, d.Info.Name, yesNo(d.Repeat), yesNo(d.Touch && !d.Direct), d.Keys, yesNo(watched))
	}
	return tw.Flush()
}

func newListLEDsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list-leds",
		Short: "List LEDs and their current brightness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := led.List(dir)
			if err != nil {
				return err
			}
			return writeLEDs(cmd.OutOrStdout(), infos)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", led.DefaultClassDir, "LED class directory")
	return cmd
}

func writeLEDs(out io.Writer, infos []led.Info) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBRIGHTNESS\tMAX\tBACKLIGHT")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.Name, info.Brightness, info.MaxBrightness, yesNo(info.Backlight))
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
