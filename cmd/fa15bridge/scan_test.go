package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/testutils"
)

type ScanCmdTestSuite struct {
	CommandTestSuite
	backend *testutils.FakeScanner
}

func (s *ScanCmdTestSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()

	s.backend = testutils.NewAdvertisementArrayBuilder().
		WithAdvertisements(
			testutils.NewAdvertisementBuilder().WithName("FA15-piste-2").WithAddress("AA:00:00:00:00:02").WithRSSI(-70).Build(),
			testutils.NewAdvertisementBuilder().WithName("FA15-piste-1").WithAddress("AA:00:00:00:00:01").WithRSSI(-40).WithServices("180a").Build(),
			testutils.NewAdvertisementBuilder().WithName("Heart Rate").WithAddress("BB:00:00:00:00:01").WithRSSI(-30).Build(),
		).
		BuildScanner()
	newBLEScanner = func() (device.Scanner, error) { return s.backend, nil }
}

func (s *ScanCmdTestSuite) TestHelp() {
	out, err := s.ExecuteCommand("scan", "--help")
	s.Require().NoError(err)
	s.Contains(out, "Scan for Bluetooth Low Energy advertisements")
	s.Contains(out, "--duration")
	s.Contains(out, "--format")
	s.Contains(out, "--name")
}

func (s *ScanCmdTestSuite) TestTableSortedByRSSI() {
	out, err := s.ExecuteCommand("scan", "--duration", "50ms")
	s.Require().NoError(err)

	s.Contains(out, "NAME")
	s.NotContains(out, "Heart Rate")
	first := strings.Index(out, "FA15-piste-1")
	second := strings.Index(out, "FA15-piste-2")
	s.Require().True(first > 0 && second > 0, out)
	s.Less(first, second, "strongest device first")
	s.Contains(out, "-40 dBm")
}

func (s *ScanCmdTestSuite) TestJSONWithAllFilter() {
	out, err := s.ExecuteCommand("scan", "--duration", "50ms", "--format", "json", "--name", "*", "--block", "aa:00:00:00:00:02")
	s.Require().NoError(err)

	var devices []deviceJSON
	s.Require().NoError(json.Unmarshal([]byte(out), &devices), out)
	s.Require().Len(devices, 2)
	s.Equal("Heart Rate", devices[0].Name)
	s.Equal("AA:00:00:00:00:01", devices[1].Address)
	s.Equal([]string{device.NormalizeUUID("180a")}, devices[1].Services)
}

func (s *ScanCmdTestSuite) TestServiceFilterAndShortServices() {
	s.backend.Adverts = append(s.backend.Adverts, testutils.NewAdvertisementBuilder().
		WithName("FA15-piste-3").WithAddress("AA:00:00:00:00:03").WithRSSI(-50).
		WithServices("6f000000-b5a3-f393-e0a9-e50e24dcca9e").Build())

	out, err := s.ExecuteCommand("scan", "--duration", "50ms", "--service", "6F000000-B5A3-F393-E0A9-E50E24DCCA9E")
	s.Require().NoError(err)
	s.Contains(out, "FA15-piste-3")
	s.Contains(out, "6f000000 ")
	s.NotContains(out, "b5a3f393")
	s.NotContains(out, "FA15-piste-1")

	_, err = s.ExecuteCommand("scan", "--duration", "50ms", "--service", "bogus")
	s.ErrorContains(err, "invalid service filter")
}

func (s *ScanCmdTestSuite) TestNothingFound() {
	s.backend.Adverts = nil

	out, err := s.ExecuteCommand("scan", "--duration", "50ms")
	s.Require().NoError(err)
	s.Contains(out, "No devices discovered")
}

func (s *ScanCmdTestSuite) TestInvalidFlags() {
	_, err := s.ExecuteCommand("scan", "--format=invalid")
	s.ErrorContains(err, "invalid format 'invalid': must be one of [table json]")

	_, err = s.ExecuteCommand("scan", "--duration", "0s")
	s.ErrorContains(err, "invalid duration")
}

func (s *ScanCmdTestSuite) TestBackendErrors() {
	newBLEScanner = func() (device.Scanner, error) { return nil, device.ErrBluetoothOff }
	_, err := s.ExecuteCommand("scan")
	s.ErrorIs(err, device.ErrBluetoothOff)

	s.backend.Err = errors.New("hci: reset failed")
	newBLEScanner = func() (device.Scanner, error) { return s.backend, nil }
	_, err = s.ExecuteCommand("scan", "--duration", "50ms")
	s.ErrorContains(err, "hci: reset failed")
}

func TestScanCmdTestSuite(t *testing.T) {
	suite.Run(t, new(ScanCmdTestSuite))
}
