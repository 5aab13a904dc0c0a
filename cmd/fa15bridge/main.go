package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fa15bridge",
	Short: "FA-15 BLE to serial scoring bridge",
	Long: `Bridges a Favero FA-15 wireless fencing scoring apparatus to equipment that expects
the legacy wired 10-byte serial frame.

- Scan for FA-15 apparatus advertising over Bluetooth Low Energy
- Bridge score, time, lamps, period, priority and cards to a serial port, a virtual PTY or the console
- List candidate serial ports
- Decode characteristic payloads offline
- Send a fixed test frame to a serial port`,
	Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(bridgeCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(sendFrameCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "Enable debug logging")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
