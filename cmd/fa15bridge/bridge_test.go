package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/scoring"
	"github.com/srg/fa15bridge/internal/sink"
	"github.com/srg/fa15bridge/internal/testutils"
)

const testAddress = "AA:BB:CC:DD:EE:01"

type BridgeCmdTestSuite struct {
	CommandTestSuite

	session   *testutils.FakeSession
	connected *device.ConnectOptions
}

func (s *BridgeCmdTestSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()

	s.session = testutils.NewFakeSession(testAddress).
		WithValue(scoring.KindLeftScore.UUID(), []byte{0x05}).
		WithValue(scoring.KindRightScore.UUID(), []byte{0x03}).
		WithValue(scoring.KindModelNumber.UUID(), []byte("FA-15"))
	s.connected = nil

	connectSession = func(_ context.Context, opts *device.ConnectOptions, _ *logrus.Logger) (device.Session, error) {
		s.connected = opts
		return s.session, nil
	}
}

// dropWhen ends the BLE session once the next command's stdout contains marker.
func (s *BridgeCmdTestSuite) dropWhen(marker string) {
	out := s.Stdout
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if strings.Contains(out.String(), marker) {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		s.session.Drop()
	}()
}

func (s *BridgeCmdTestSuite) TestDebugOutputAndConsole() {
	s.dropWhen("Debug Output: ff03050000000000000007")

	out, err := s.ExecuteCommand("bridge", testAddress, "--interval", "10ms", "--no-color")

	s.ErrorIs(err, device.ErrSessionLost)
	s.Contains(out, "Debug Output: ff03050000000000000007")
	s.Contains(out, "[leftScore] Score: 5")
	s.Contains(out, "[modelNumber] FA-15")
	s.Require().NotNil(s.connected)
	s.Equal(testAddress, s.connected.Address)
	s.Equal(30*time.Second, s.connected.ConnectTimeout)
	s.True(s.session.Closed())
}

func (s *BridgeCmdTestSuite) TestQuietHidesNotifications() {
	s.session.Drop()

	out, err := s.ExecuteCommand("bridge", testAddress, "--quiet", "--connect-timeout", "3s")

	s.ErrorIs(err, device.ErrSessionLost)
	s.NotContains(out, "[leftScore]")
	s.Equal(3*time.Second, s.connected.ConnectTimeout)
}

func (s *BridgeCmdTestSuite) TestPTYSinkAnnouncesDevice() {
	var pty *sink.PTY
	openSink = func(*sink.Options, *logrus.Logger) (sink.Sink, error) {
		p, err := sink.OpenPTY(&sink.PTYOptions{})
		if err != nil {
			return nil, err
		}
		pty = p
		return p, nil
	}
	s.session.Drop()

	_, err := s.ExecuteCommand("bridge", testAddress, "--sink", "pty", "--quiet")
	if pty == nil {
		s.T().Skipf("PTY not available: %v", err)
	}

	s.ErrorIs(err, device.ErrSessionLost)
	s.Contains(s.Stderr.String(), "Legacy scoring software can open "+pty.TTYName())
}

func (s *BridgeCmdTestSuite) TestScansForStrongestDevice() {
	newBLEScanner = func() (device.Scanner, error) {
		return testutils.NewAdvertisementArrayBuilder().
			WithAdvertisements(
				testutils.NewAdvertisementBuilder().WithName("FA15 A").WithAddress("AA:00:00:00:00:01").WithRSSI(-80).Build(),
				testutils.NewAdvertisementBuilder().WithName("FA15 B").WithAddress("AA:00:00:00:00:02").WithRSSI(-45).Build(),
				testutils.NewAdvertisementBuilder().WithName("Speaker").WithAddress("AA:00:00:00:00:03").WithRSSI(-20).Build(),
			).
			BuildScanner(), nil
	}
	s.session.Drop()

	_, err := s.ExecuteCommand("bridge", "--quiet", "--scan-timeout", "50ms")

	s.ErrorIs(err, device.ErrSessionLost)
	s.Require().NotNil(s.connected)
	s.Equal("AA:00:00:00:00:02", s.connected.Address)
}

func (s *BridgeCmdTestSuite) TestNoDeviceFound() {
	newBLEScanner = func() (device.Scanner, error) {
		return testutils.NewAdvertisementArrayBuilder().
			WithAdvertisements(
				testutils.NewAdvertisementBuilder().WithName("Speaker").WithAddress("AA:00:00:00:00:03").Build(),
			).
			BuildScanner(), nil
	}

	_, err := s.ExecuteCommand("bridge", "--scan-timeout", "50ms")

	s.ErrorIs(err, ErrNoDevice)
	s.Nil(s.connected)
}

func (s *BridgeCmdTestSuite) TestConfigFileWithFlagOverrides() {
	path := filepath.Join(s.T().TempDir(), "fa15bridge.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
device:
  address: "AA:00:00:00:00:09"
output:
  sink: serial
  port: /dev/ttyS7
  baud_rate: 19200
  parity: e
transmit:
  interval: 5ms
console:
  quiet: true
`), 0o600))

	rec := testutils.NewRecordingSink()
	var got *sink.Options
	openSink = func(opts *sink.Options, _ *logrus.Logger) (sink.Sink, error) {
		got = opts
		return rec, nil
	}
	s.session.Drop()

	_, err := s.ExecuteCommand("bridge", "--config", path, "--baud", "4800")

	s.ErrorIs(err, device.ErrSessionLost)
	s.Require().NotNil(got)
	s.Equal(sink.KindSerial, got.Kind)
	s.Equal("/dev/ttyS7", got.Port)
	s.Equal(4800, got.BaudRate)
	s.Equal("E", got.Parity)
	s.Equal("AA:00:00:00:00:09", s.connected.Address)
	s.True(rec.Closed())
}

func (s *BridgeCmdTestSuite) TestPortSelectsSerialSink() {
	var got *sink.Options
	openSink = func(opts *sink.Options, _ *logrus.Logger) (sink.Sink, error) {
		got = opts
		return testutils.NewRecordingSink(), nil
	}
	s.session.Drop()

	_, err := s.ExecuteCommand("bridge", testAddress, "--quiet", "--port", "/dev/ttyUSB0")

	s.ErrorIs(err, device.ErrSessionLost)
	s.Require().NotNil(got)
	s.Equal(sink.KindSerial, got.Kind)
}

func (s *BridgeCmdTestSuite) TestInvalidSettings() {
	_, err := s.ExecuteCommand("bridge", testAddress, "--score-encoding", "hex")
	s.ErrorContains(err, "transmit.score_encoding")

	_, err = s.ExecuteCommand("bridge", testAddress, "--sink", "serial")
	s.ErrorContains(err, "output.port")

	_, err = s.ExecuteCommand("bridge", "--config", filepath.Join(s.T().TempDir(), "missing.yaml"))
	s.ErrorContains(err, "failed to read config")

	s.Nil(s.connected)
}

func (s *BridgeCmdTestSuite) TestConnectFailure() {
	connectSession = func(context.Context, *device.ConnectOptions, *logrus.Logger) (device.Session, error) {
		return nil, device.ErrBluetoothOff
	}

	_, err := s.ExecuteCommand("bridge", testAddress)
	s.ErrorIs(err, device.ErrBluetoothOff)
	s.Contains(FormatUserError(err), "turn it on")
}

func TestBridgeCmdTestSuite(t *testing.T) {
	suite.Run(t, new(BridgeCmdTestSuite))
}
