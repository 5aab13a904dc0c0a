package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/metrics"
	"github.com/srg/fa15bridge/internal/scoring"
	"github.com/srg/fa15bridge/internal/store"
	"github.com/srg/fa15bridge/internal/testutils"
)

type panicApplier struct{}

func (panicApplier) Apply(scoring.Update) { panic("store exploded") }

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

type DispatcherTestSuite struct {
	suite.Suite
	helper   *testutils.TestHelper
	store    *store.Store
	events   *eventLog
	metrics  *metrics.Metrics
	dispatch *Dispatcher
}

func (s *DispatcherTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.store = store.New()
	s.events = &eventLog{}
	s.metrics = metrics.New()
	s.dispatch = New(scoring.NewDecoder(scoring.ScoreRaw), s.store, &Options{
		Logger:   s.helper.Logger,
		Observer: s.events,
		Metrics:  s.metrics,
	})
}

func notification(kind scoring.Kind, data ...byte) device.Notification {
	return device.Notification{UUID: kind.UUID(), Data: data, At: time.Now()}
}

func (s *DispatcherTestSuite) TestAppliesDecodedUpdate() {
	ev := s.dispatch.Dispatch(notification(scoring.KindTime, 0x05, 0x1E, 0x02, 0x04))

	s.NoError(ev.Err)
	s.Equal(scoring.KindTime, ev.Kind)
	s.Equal("2:30:05 (Active Period)", ev.Display)
	s.NotEmpty(ev.Update)

	state := s.store.Read()
	s.Equal(uint8(30), state.Seconds)
	s.Equal(uint8(2), state.MinutesUnit)
	s.Len(s.events.all(), 1)
}

func (s *DispatcherTestSuite) TestUnknownCharacteristic() {
	before := s.store.Version()

	ev := s.dispatch.Dispatch(device.Notification{UUID: "6F0000FF-B5A3-F393-E0A9-E50E24DCCA9E", Data: []byte{0xAB, 0x01}})

	s.False(ev.Known())
	s.NoError(ev.Err)
	s.Equal("Raw Value: ab01", ev.Display)
	s.Equal(before, s.store.Version())
	s.Len(s.events.all(), 1)
}

func (s *DispatcherTestSuite) TestInvalidPayloadLeavesStateUnchanged() {
	s.dispatch.Dispatch(notification(scoring.KindLeftScore, 4))
	before, version := s.store.Snapshot()

	ev := s.dispatch.Dispatch(notification(scoring.KindLamp, 0x05))

	s.ErrorIs(ev.Err, scoring.ErrInvalidPayload)
	s.Nil(ev.Update)
	after, afterVersion := s.store.Snapshot()
	s.Equal(before, after)
	s.Equal(version, afterVersion)

	warnings := s.helper.Entries(logrus.WarnLevel, "Discarding invalid payload")
	s.Require().Len(warnings, 1)
	s.Equal("lamp", warnings[0].Data["kind"])
	s.Equal("05", warnings[0].Data["payload"])
}

func (s *DispatcherTestSuite) TestDisplayOnlyKindsDoNotBumpVersion() {
	s.dispatch.Dispatch(notification(scoring.KindWeapon, 0x0A))
	s.dispatch.Dispatch(notification(scoring.KindHalt, 0x01))

	s.Equal(uint64(0), s.store.Version())
}

func (s *DispatcherTestSuite) TestRunPreservesArrivalOrder() {
	ch := make(chan device.Notification, 16)
	for v := byte(0); v < 10; v++ {
		ch <- notification(scoring.KindRightScore, v)
	}
	close(ch)

	err := s.dispatch.Run(context.Background(), ch)

	s.NoError(err)
	s.Equal(uint8(9), s.store.Read().RightScore)
	events := s.events.all()
	s.Require().Len(events, 10)
	for i, ev := range events {
		s.Equal(scoring.Update{{Field: scoring.FieldRightScore, Mask: 0xFF, Value: uint8(i)}}, ev.Update)
	}
}

func (s *DispatcherTestSuite) TestRunStopsOnContextCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.dispatch.Run(ctx, make(chan device.Notification)) }()

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("Run did not return after cancel")
	}
}

func (s *DispatcherTestSuite) TestReadInitialCollectsDeviceInfo() {
	session := testutils.NewFakeSession("aa:bb").
		WithValue(scoring.KindModelNumber.UUID(), []byte("FA-15\x00")).
		WithValue(scoring.KindFirmwareRevision.UUID(), []byte("1.2")).
		WithValue(scoring.KindSoftwareRevision.UUID(), []byte("3.4")).
		WithValue(scoring.KindLeftScore.UUID(), []byte{3}).
		WithReadError(scoring.KindRightScore.UUID(), errors.New("gatt error"))

	events := s.dispatch.ReadInitial(session, time.Second)

	s.Len(events, 4)
	s.Equal(uint8(3), s.store.Read().LeftScore)
	info := CollectDeviceInfo(events)
	s.Equal("FA-15 (FW: 1.2 SW: 3.4)", info.String())
	s.Len(s.helper.Entries(logrus.WarnLevel, "Initial read failed"), 1)
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func TestRunRecoversFromPanic(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	d := New(scoring.NewDecoder(scoring.ScoreRaw), panicApplier{}, &Options{Logger: helper.Logger})

	ch := make(chan device.Notification, 2)
	ch <- notification(scoring.KindLeftScore, 1)
	ch <- notification(scoring.KindLeftScore, 2)
	close(ch)

	require.NotPanics(t, func() {
		assert.NoError(t, d.Run(context.Background(), ch))
	})
	assert.Len(t, helper.Entries(logrus.ErrorLevel, "Panic recovered"), 2)
}

func TestDeviceInfoUnknown(t *testing.T) {
	assert.Equal(t, "unknown device (FW: ? SW: ?)", DeviceInfo{}.String())
}

func TestObserverFunc(t *testing.T) {
	var got Event
	d := New(scoring.NewDecoder(scoring.ScoreRaw), store.New(), &Options{
		Observer: ObserverFunc(func(e Event) { got = e }),
	})
	d.Dispatch(notification(scoring.KindWeapon, 0x14))
	assert.Equal(t, "Sabre", got.Display)
}
