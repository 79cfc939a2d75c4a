// devices.go implements the "rehearse devices" command reporting what the
// capture daemon supports.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jwulff/rehearse/internal/daemon"
	"github.com/jwulff/rehearse/internal/logging"
	"github.com/jwulff/rehearse/internal/recorder"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Show capture devices and supported formats",
	Long: `Connect to the capture daemon and print its devices, the recording
formats it supports, the format rehearse would pick, and whether live
transcription is available.`,
	RunE: runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := dialDaemon(cmd.Context(), cfg, logging.NewNop())
	if err != nil {
		return err
	}
	defer p.Close()

	printCapabilities(cmd.OutOrStdout(), p)
	return nil
}

func printCapabilities(out io.Writer, p *daemon.Platform) {
	caps := p.Capabilities()
	fmt.Fprintf(out, "Daemon version: %s\n", caps.Version)

	fmt.Fprintln(out, "Devices:")
	if len(caps.Devices) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, d := range caps.Devices {
		fmt.Fprintf(out, "  %s\n", d)
	}

	fmt.Fprintln(out, "Formats:")
	for _, m := range caps.MIMETypes {
		fmt.Fprintf(out, "  %s\n", m)
	}
	if f, ok := recorder.Negotiate(p); ok {
		fmt.Fprintf(out, "Selected format: %s (%s)\n", f.MIMEType, f.Extension)
	} else {
		fmt.Fprintln(out, "Selected format: daemon default")
	}

	if err := p.Check(); err != nil {
		fmt.Fprintf(out, "Live transcript: unavailable (%v)\n", err)
	} else {
		fmt.Fprintln(out, "Live transcript: available")
	}
}
