package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/fa15bridge/internal/sink"
)

// portsCmd lists the serial devices a bridge could write to
var portsCmd = &cobra.Command{
	Use:   "ports [pattern...]",
	Short: "List serial ports",
	Long: `List candidate serial ports and whether they can be opened right now.

Without arguments the platform's usual device paths are checked; glob patterns
such as /dev/ttyUSB* narrow the search.`,
	RunE: runPorts,
}

func runPorts(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose", "")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ports, err := listPorts(args...)
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	for _, p := range ports {
		if p.Err != nil {
			logger.WithError(p.Err).WithField("port", p.Path).Debug("Port check failed")
		}
	}

	return displayPorts(cmd.OutOrStdout(), ports)
}

func displayPorts(out io.Writer, ports []sink.PortInfo) error {
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSTATUS")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, p := range ports {
		fmt.Fprintf(w, "%s\t%s\n", p.Path, p.Status())
	}
	return w.Flush()
}
