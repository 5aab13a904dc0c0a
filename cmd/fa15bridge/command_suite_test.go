package main

import (
	"bytes"
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/sink"
)

// syncBuffer is a bytes.Buffer safe for the progress and console goroutines writing concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs the real command tree with the platform hooks replaced.
// All cmd/fa15bridge test suites embed it.
type CommandTestSuite struct {
	suite.Suite

	Stdout *syncBuffer
	Stderr *syncBuffer

	origScanner func() (device.Scanner, error)
	origConnect func(context.Context, *device.ConnectOptions, *logrus.Logger) (device.Session, error)
	origSink    func(*sink.Options, *logrus.Logger) (sink.Sink, error)
	origPorts   func(...string) ([]sink.PortInfo, error)
	origRelease func() error
}

func (s *CommandTestSuite) SetupTest() {
	s.origScanner = newBLEScanner
	s.origConnect = connectSession
	s.origSink = openSink
	s.origPorts = listPorts
	s.origRelease = releaseBLE

	releaseBLE = func() error { return nil }
	newBLEScanner = func() (device.Scanner, error) {
		s.FailNow("BLE scanner used without a test stub")
		return nil, nil
	}
	connectSession = func(context.Context, *device.ConnectOptions, *logrus.Logger) (device.Session, error) {
		s.FailNow("BLE connect used without a test stub")
		return nil, nil
	}

	s.Stdout = &syncBuffer{}
	s.Stderr = &syncBuffer{}
	resetFlags(rootCmd)
}

func (s *CommandTestSuite) TearDownTest() {
	newBLEScanner = s.origScanner
	connectSession = s.origConnect
	openSink = s.origSink
	listPorts = s.origPorts
	releaseBLE = s.origRelease
}

// ExecuteCommand runs the root command with args and returns what was written to stdout.
// Stderr (logs, progress) stays in s.Stderr until the next call; both buffers are fresh for every call.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	if s.Stdout.String() != "" || s.Stderr.String() != "" {
		s.Stdout = &syncBuffer{}
		s.Stderr = &syncBuffer{}
	}
	rootCmd.SetOut(s.Stdout)
	rootCmd.SetErr(s.Stderr)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.Execute()
	return s.Stdout.String(), err
}

// resetFlags puts every flag of cmd and its subcommands back to its default,
// since cobra keeps parsed values on the package-level commands between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	cmd.SilenceUsage = false
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
