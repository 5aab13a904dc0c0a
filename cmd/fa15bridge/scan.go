package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for FA-15 apparatus",
	Long: `Scan for Bluetooth Low Energy advertisements and list the FA-15 apparatus in range.

Devices are listed strongest signal first. By default only devices whose local name
contains FA15 are shown; pass --name '*' to list every advertiser.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

type scanConfig struct {
	duration   time.Duration
	format     string
	nameFilter string
	allowList  []string
	blockList  []string
	services   []string
	first      bool
}

func init() {
	scanCmd.Flags().DurationP("duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringP("name", "n", scanner.DefaultNameFilter, "Local name filter ('*' for all devices)")
	scanCmd.Flags().StringSlice("allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSlice("block", nil, "Hide devices with these addresses")
	scanCmd.Flags().StringSlice("service", nil, "Only show devices advertising one of these service UUIDs")
	scanCmd.Flags().Bool("first", false, "Stop at the first matching device")
}

func scanConfigFromFlags(cmd *cobra.Command) (*scanConfig, error) {
	cfg := &scanConfig{}
	cfg.duration, _ = cmd.Flags().GetDuration("duration")
	cfg.format, _ = cmd.Flags().GetString("format")
	cfg.nameFilter, _ = cmd.Flags().GetString("name")
	cfg.allowList, _ = cmd.Flags().GetStringSlice("allow")
	cfg.blockList, _ = cmd.Flags().GetStringSlice("block")
	cfg.services, _ = cmd.Flags().GetStringSlice("service")
	cfg.first, _ = cmd.Flags().GetBool("first")

	if cfg.format != "table" && cfg.format != "json" {
		return nil, fmt.Errorf("invalid format '%s': must be one of [table json]", cfg.format)
	}
	if cfg.duration <= 0 {
		return nil, fmt.Errorf("invalid duration %s: must be positive", cfg.duration)
	}
	return cfg, nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := scanConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "verbose", "")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	backend, err := newBLEScanner()
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}
	s, err := scanner.NewScanner(backend, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ctx, cancel := signalContext(cmd.Context(), func() {
		fmt.Fprintln(out, "\nCtrl+C pressed, cancelling scan...")
	})
	defer cancel()

	status := NewScanStatus(cmd.ErrOrStderr(), "Scanning for FA-15 devices", cfg.duration)
	status.Start()
	devices, err := s.Scan(ctx, &scanner.ScanOptions{
		Duration:        cfg.duration,
		DuplicateFilter: true,
		NameFilter:      cfg.nameFilter,
		AllowList:       cfg.allowList,
		BlockList:       cfg.blockList,
		ServiceFilter:   cfg.services,
		StopOnFirst:     cfg.first,
	}, status.Phase)
	status.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scan failed: %w", err)
	}

	if cfg.format == "json" {
		return displayDevicesJSON(out, devices)
	}
	return displayDevicesTable(out, devices, time.Now())
}

func displayDevicesTable(out io.Writer, devices []scanner.Device, now time.Time) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		short := make([]string, len(d.Services))
		for i, u := range d.Services {
			short[i] = device.ShortenUUID(u)
		}
		services := strings.Join(short, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		lastSeen := now.Sub(d.LastSeen).Truncate(time.Second)
		if lastSeen < 0 {
			lastSeen = 0
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n", name, d.Address, d.RSSI, services, lastSeen)
	}

	return w.Flush()
}

type deviceJSON struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services"`
	LastSeen    time.Time `json:"last_seen"`
}

func displayDevicesJSON(out io.Writer, devices []scanner.Device) error {
	list := make([]deviceJSON, 0, len(devices))
	for _, d := range devices {
		services := d.Services
		if services == nil {
			services = []string{}
		}
		list = append(list, deviceJSON{
			Name:        d.Name,
			Address:     d.Address,
			RSSI:        d.RSSI,
			Connectable: d.Connectable,
			Services:    services,
			LastSeen:    d.LastSeen,
		})
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
