package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	suitelib "github.com/stretchr/testify/suite"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/testutils"
	"github.com/srg/fa15bridge/scanner"
)

type ScannerTestSuite struct {
	suitelib.Suite
	helper *testutils.TestHelper

	adv1, adv2, adv3, other device.Advertisement
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())

	suite.adv1 = testutils.NewAdvertisementBuilder().
		WithAddress("AA:BB:CC:DD:EE:FF").
		WithName("FA15-0001").
		WithRSSI(-67).
		WithServices("6f000000-b5a3-f393-e0a9-e50e24dcca9e").
		Build()

	suite.adv2 = testutils.NewAdvertisementBuilder().
		WithAddress("11:22:33:44:55:66").
		WithName("fa15 piste 2").
		WithRSSI(-45).
		Build()

	suite.adv3 = testutils.NewAdvertisementBuilder().
		FromJSON(`{"name": "FA15-0003", "address": "99:88:77:66:55:44", "rssi": -80, "connectable": true}`).
		Build()

	suite.other = testutils.NewAdvertisementBuilder().
		WithAddress("01:02:03:04:05:06").
		WithName("Heart Rate").
		WithRSSI(-30).
		Build()
}

func (suite *ScannerTestSuite) newScanner(adverts ...device.Advertisement) *scanner.Scanner {
	s, err := scanner.NewScanner(&testutils.FakeScanner{Adverts: adverts}, suite.helper.Logger)
	suite.Require().NoError(err)
	return s
}

func addresses(devs []scanner.Device) []string {
	out := make([]string, len(devs))
	for i, d := range devs {
		out[i] = d.Address
	}
	return out
}

func (suite *ScannerTestSuite) TestNewScanner() {
	suite.Run("creates scanner with nil logger", func() {
		s, err := scanner.NewScanner(&testutils.FakeScanner{}, nil)
		suite.NoError(err)
		suite.NotNil(s)
	})

	suite.Run("rejects nil backend", func() {
		_, err := scanner.NewScanner(nil, suite.helper.Logger)
		suite.Error(err)
	})
}

func (suite *ScannerTestSuite) TestDefaultScanOptions() {
	opts := scanner.DefaultScanOptions()
	suite.Equal(10*time.Second, opts.Duration)
	suite.True(opts.DuplicateFilter)
	suite.Equal(scanner.DefaultNameFilter, opts.NameFilter)
}

func (suite *ScannerTestSuite) TestScanFiltersByNameAndSortsByRSSI() {
	s := suite.newScanner(suite.adv1, suite.other, suite.adv2, suite.adv3)

	var phases []string
	devs, err := s.Scan(context.Background(), nil, func(p string) { phases = append(phases, p) })
	suite.Require().NoError(err)

	suite.Equal([]string{"11:22:33:44:55:66", "AA:BB:CC:DD:EE:FF", "99:88:77:66:55:44"}, addresses(devs))
	suite.Equal([]string{"Scanning", "Processing results"}, phases)
	suite.Len(suite.helper.Entries(logrus.InfoLevel, "Discovered new device"), 3)
}

func (suite *ScannerTestSuite) TestScanWildcardFilter() {
	s := suite.newScanner(suite.adv1, suite.other)

	opts := scanner.DefaultScanOptions()
	opts.NameFilter = "*"
	devs, err := s.Scan(context.Background(), opts, nil)
	suite.Require().NoError(err)
	suite.Equal([]string{"01:02:03:04:05:06", "AA:BB:CC:DD:EE:FF"}, addresses(devs))
}

func (suite *ScannerTestSuite) TestScanAllowAndBlockLists() {
	suite.Run("allow list", func() {
		opts := scanner.DefaultScanOptions()
		opts.AllowList = []string{"aa:bb:cc:dd:ee:ff"}
		devs, err := suite.newScanner(suite.adv1, suite.adv2).Scan(context.Background(), opts, nil)
		suite.Require().NoError(err)
		suite.Equal([]string{"AA:BB:CC:DD:EE:FF"}, addresses(devs))
	})

	suite.Run("block list", func() {
		opts := scanner.DefaultScanOptions()
		opts.BlockList = []string{"11:22:33:44:55:66"}
		devs, err := suite.newScanner(suite.adv1, suite.adv2).Scan(context.Background(), opts, nil)
		suite.Require().NoError(err)
		suite.Equal([]string{"AA:BB:CC:DD:EE:FF"}, addresses(devs))
	})
}

func (suite *ScannerTestSuite) TestScanServiceFilter() {
	suite.Run("any uuid spelling matches", func() {
		opts := scanner.DefaultScanOptions()
		opts.ServiceFilter = []string{"6F000000B5A3F393E0A9E50E24DCCA9E"}
		devs, err := suite.newScanner(suite.adv1, suite.adv2, suite.adv3).Scan(context.Background(), opts, nil)
		suite.Require().NoError(err)
		suite.Equal([]string{"AA:BB:CC:DD:EE:FF"}, addresses(devs))
		suite.Equal([]string{"6F000000B5A3F393E0A9E50E24DCCA9E"}, opts.ServiceFilter, "caller options are not rewritten")
	})

	suite.Run("invalid uuid is rejected", func() {
		opts := scanner.DefaultScanOptions()
		opts.ServiceFilter = []string{"not-a-uuid"}
		_, err := suite.newScanner(suite.adv1).Scan(context.Background(), opts, nil)
		suite.ErrorContains(err, "invalid service filter")
	})
}

func (suite *ScannerTestSuite) TestRepeatedAdvertisementUpdatesDevice() {
	later := testutils.NewAdvertisementBuilder().
		WithAddress("aa:bb:cc:dd:ee:ff").
		WithRSSI(-40).
		Build()

	var events []scanner.DeviceEvent
	opts := scanner.DefaultScanOptions()
	opts.OnEvent = func(e scanner.DeviceEvent) { events = append(events, e) }

	devs, err := suite.newScanner(suite.adv1, later).Scan(context.Background(), opts, nil)
	suite.Require().NoError(err)
	suite.Require().Len(devs, 1)
	suite.Equal(-40, devs[0].RSSI)
	suite.Equal("FA15-0001", devs[0].Name, "name kept when the update omits it")

	suite.Require().Len(events, 2)
	suite.Equal(scanner.EventNew, events[0].Type)
	suite.Equal(scanner.EventUpdated, events[1].Type)
}

func (suite *ScannerTestSuite) TestStopOnFirst() {
	backend := &testutils.FakeScanner{Adverts: []device.Advertisement{suite.other, suite.adv1, suite.adv2}, Block: true}
	s, err := scanner.NewScanner(backend, suite.helper.Logger)
	suite.Require().NoError(err)

	opts := scanner.DefaultScanOptions()
	opts.StopOnFirst = true

	devs, err := s.Scan(context.Background(), opts, nil)
	suite.Require().NoError(err)
	suite.Equal([]string{"AA:BB:CC:DD:EE:FF"}, addresses(devs))
}

func (suite *ScannerTestSuite) TestScanDurationEndsBlockingScan() {
	backend := &testutils.FakeScanner{Adverts: []device.Advertisement{suite.adv1}, Block: true}
	s, err := scanner.NewScanner(backend, suite.helper.Logger)
	suite.Require().NoError(err)

	opts := scanner.DefaultScanOptions()
	opts.Duration = 20 * time.Millisecond

	devs, err := s.Scan(context.Background(), opts, nil)
	suite.Require().NoError(err)
	suite.Len(devs, 1)
}

func (suite *ScannerTestSuite) TestScanBackendError() {
	backend := &testutils.FakeScanner{Err: errors.New("boom")}
	s, err := scanner.NewScanner(backend, suite.helper.Logger)
	suite.Require().NoError(err)

	_, err = s.Scan(context.Background(), nil, nil)
	suite.ErrorContains(err, "scan failed: boom")
}

func (suite *ScannerTestSuite) TestScanCancelledWithoutResults() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := suite.newScanner(suite.adv1).Scan(ctx, nil, nil)
	suite.ErrorIs(err, context.Canceled)
}

func (suite *ScannerTestSuite) TestDeviceString() {
	suite.Equal("FA15-1 [aa:bb] RSSI -50 dBm", scanner.Device{Name: "FA15-1", Address: "aa:bb", RSSI: -50}.String())
	suite.Equal("(unnamed) [aa:bb] RSSI 0 dBm", scanner.Device{Address: "aa:bb"}.String())
}

func TestMatchesName(t *testing.T) {
	cases := []struct {
		name, filter string
		want         bool
	}{
		{"FA15-0001", "FA15", true},
		{"fa15", "FA15", true},
		{"Heart Rate", "FA15", false},
		{"", "FA15", false},
		{"anything", "", true},
		{"anything", "*", true},
	}
	for _, c := range cases {
		if got := scanner.MatchesName(c.name, c.filter); got != c.want {
			t.Errorf("MatchesName(%q, %q) = %v, want %v", c.name, c.filter, got, c.want)
		}
	}
}

func TestScannerTestSuite(t *testing.T) {
	suitelib.Run(t, new(ScannerTestSuite))
}
