package bridge

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/dispatch"
	"github.com/srg/fa15bridge/internal/frame"
	"github.com/srg/fa15bridge/internal/scoring"
	"github.com/srg/fa15bridge/internal/testutils"
)

const (
	// testFrameInterval keeps scenario runs short
	testFrameInterval = 10 * time.Millisecond

	// scenarioTimeout bounds how long a scenario waits for the expected frame
	scenarioTimeout = 2 * time.Second
)

// CharacteristicValue is a characteristic name with a hex payload ("00 2d 01 04").
type CharacteristicValue struct {
	Char  string `yaml:"char"`
	Value string `yaml:"value"`
}

// BridgeTestCase describes one bridge scenario.
type BridgeTestCase struct {
	Name string `yaml:"name"`

	// ScoreEncoding is "raw" (default) or "bcd".
	ScoreEncoding string `yaml:"score_encoding,omitempty"`

	// Initial overrides the values served to the initial read.
	Initial []CharacteristicValue `yaml:"initial,omitempty"`

	// Notifications are emitted in order once the bridge is running.
	Notifications []CharacteristicValue `yaml:"notifications,omitempty"`

	// ExpectedFrame is the hex frame the sink must eventually receive.
	ExpectedFrame string `yaml:"expected_frame"`

	// ExpectedDeviceInfo is matched against the bridge device info string.
	ExpectedDeviceInfo string `yaml:"expected_device_info,omitempty"`

	// ExpectedWarnings are substrings of warning log messages that must be present.
	ExpectedWarnings []string `yaml:"expected_warnings,omitempty"`

	// Skip skips the case with the given reason.
	Skip string `yaml:"skip,omitempty"`
}

// BridgeSuite runs bridge scenarios against a fake BLE session and a recording sink.
type BridgeSuite struct {
	suite.Suite

	Helper  *testutils.TestHelper
	Logger  *logrus.Logger
	Session *testutils.FakeSession
	Sink    *testutils.RecordingSink

	mu     sync.Mutex
	events []dispatch.Event
}

func (suite *BridgeSuite) SetupTest() {
	suite.Helper = testutils.NewTestHelper(suite.T())
	suite.Logger = suite.Helper.Logger
	suite.Sink = testutils.NewRecordingSink()
	suite.Session = suite.NewIdleSession()

	suite.mu.Lock()
	suite.events = nil
	suite.mu.Unlock()
}

// NewIdleSession returns a session exposing every FA-15 characteristic with an idle apparatus state.
func (suite *BridgeSuite) NewIdleSession() *testutils.FakeSession {
	return testutils.NewFakeSession("aa:bb:cc:dd:ee:ff").
		WithValue(scoring.KindTime.UUID(), []byte{0x00, 0x00, 0x00, 0x00}).
		WithValue(scoring.KindLeftScore.UUID(), []byte{0x00}).
		WithValue(scoring.KindRightScore.UUID(), []byte{0x00}).
		WithValue(scoring.KindPeriod.UUID(), []byte{0x00}).
		WithValue(scoring.KindWeapon.UUID(), []byte{0x14}).
		WithValue(scoring.KindLamp.UUID(), []byte{0x00, 0x00}).
		WithValue(scoring.KindLeftCards.UUID(), []byte{0x00, 0x00}).
		WithValue(scoring.KindRightCards.UUID(), []byte{0x00, 0x00}).
		WithValue(scoring.KindHalt.UUID(), []byte{0x00}).
		WithValue(scoring.KindModelNumber.UUID(), []byte("FA-15")).
		WithValue(scoring.KindFirmwareRevision.UUID(), []byte("1.2")).
		WithValue(scoring.KindSoftwareRevision.UUID(), []byte("3.4"))
}

// Options returns bridge options wired to the suite session and sink.
func (suite *BridgeSuite) Options() *BridgeOptions {
	return &BridgeOptions{
		BleAddress: suite.Session.Address(),
		Connect: func(context.Context, *device.ConnectOptions, *logrus.Logger) (device.Session, error) {
			return suite.Session, nil
		},
		Sink:     suite.Sink,
		Interval: testFrameInterval,
		Logger:   suite.Logger,
		Observer: dispatch.ObserverFunc(func(ev dispatch.Event) {
			suite.mu.Lock()
			suite.events = append(suite.events, ev)
			suite.mu.Unlock()
		}),
	}
}

// Events returns the events observed so far.
func (suite *BridgeSuite) Events() []dispatch.Event {
	suite.mu.Lock()
	defer suite.mu.Unlock()
	return append([]dispatch.Event(nil), suite.events...)
}

// LastFrame returns the most recent frame written to the sink.
func (suite *BridgeSuite) LastFrame() (frame.Frame, bool) {
	writes := suite.Sink.Writes()
	if len(writes) == 0 {
		return frame.Frame{}, false
	}
	f, err := frame.Parse(writes[len(writes)-1])
	suite.Require().NoError(err)
	return f, true
}

// RunBridgeTestCasesFromYAML parses a YAML list of BridgeTestCase and runs each as a subtest.
func (suite *BridgeSuite) RunBridgeTestCasesFromYAML(yamlContent string) {
	var cases []BridgeTestCase
	suite.Require().NoError(yaml.Unmarshal([]byte(yamlContent), &cases), "invalid test case YAML")

	for _, tc := range cases {
		suite.Run(tc.Name, func() {
			if tc.Skip != "" {
				suite.T().Skip(tc.Skip)
			}
			suite.SetupTest()
			suite.runTestCase(tc)
		})
	}
}

func (suite *BridgeSuite) runTestCase(tc BridgeTestCase) {
	for _, v := range tc.Initial {
		suite.Session.WithValue(suite.uuidOf(v.Char), suite.payloadOf(v))
	}

	opts := suite.Options()
	enc, err := scoring.ParseScoreEncoding(tc.ScoreEncoding)
	suite.Require().NoError(err)
	opts.ScoreEncoding = enc

	want, err := frame.ParseHex(tc.ExpectedFrame)
	suite.Require().NoError(err, "expected_frame")

	_, err = RunDeviceBridge(context.Background(), opts, nil, func(b Bridge) (struct{}, error) {
		for _, n := range tc.Notifications {
			if !suite.Session.Emit(suite.uuidOf(n.Char), suite.payloadOf(n)) {
				return struct{}{}, fmt.Errorf("no subscriber for %s", n.Char)
			}
		}

		suite.Eventually(func() bool {
			got, ok := suite.LastFrame()
			return ok && got == want
		}, scenarioTimeout, testFrameInterval, "expected frame %s", want)

		suite.Equal(want, frame.Encode(b.State()), "state %s", b.State())
		if tc.ExpectedDeviceInfo != "" {
			suite.Equal(tc.ExpectedDeviceInfo, b.DeviceInfo().String())
		}
		return struct{}{}, nil
	})
	suite.Require().NoError(err)

	for _, w := range tc.ExpectedWarnings {
		suite.NotEmpty(suite.Helper.Entries(logrus.WarnLevel, w), "missing warning %q", w)
	}
}

func (suite *BridgeSuite) uuidOf(name string) string {
	kind, ok := scoring.KindForName(name)
	if !ok {
		// allow raw UUIDs for characteristics outside the vocabulary
		return name
	}
	return kind.UUID()
}

func (suite *BridgeSuite) payloadOf(v CharacteristicValue) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(v.Value, " ", ""))
	suite.Require().NoError(err, "value of %s", v.Char)
	return b
}
