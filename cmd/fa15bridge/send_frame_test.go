package main

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/fa15bridge/internal/frame"
	"github.com/srg/fa15bridge/internal/sink"
	"github.com/srg/fa15bridge/internal/testutils"
)

type SendFrameCmdTestSuite struct {
	CommandTestSuite
}

func (s *SendFrameCmdTestSuite) TestDebugSinkDefaultFrame() {
	out, err := s.ExecuteCommand("send-frame", "--sink", "debug", "--count", "2", "--interval", "1ms")
	s.Require().NoError(err)

	s.Contains(out, "Starting transmission to debug at 38400 baud.")
	s.Equal(2, strings.Count(out, "Debug Output: "+DefaultTestFrame))
	s.Equal(2, strings.Count(out, "Sent: "+DefaultTestFrame))
}

func (s *SendFrameCmdTestSuite) TestSerialOptionsAndFailures() {
	rec := testutils.NewRecordingSink()
	rec.FailNext(1)

	var got *sink.Options
	openSink = func(opts *sink.Options, _ *logrus.Logger) (sink.Sink, error) {
		got = opts
		return rec, nil
	}

	out, err := s.ExecuteCommand("send-frame", "FF070C2D010402000147",
		"--port", "/dev/ttyUSB9", "--ascii-hex=false", "--count", "3", "--interval", "1ms")
	s.Require().NoError(err)

	s.Require().NotNil(got)
	s.Equal(sink.KindSerial, got.Kind)
	s.Equal("/dev/ttyUSB9", got.Port)
	s.Equal(38400, got.BaudRate)
	s.False(got.ASCIIHex)

	writes := rec.Writes()
	s.Require().Len(writes, 2, "the failed attempt counts towards --count")
	want, _ := frame.ParseHex("FF070C2D010402000147")
	s.Equal(want.Bytes(), writes[0])
	s.Equal(2, strings.Count(out, "Sent: FF070C2D010402000147"))
	s.True(rec.Closed())
	s.Contains(s.Stderr.String(), "Failed to send frame")
}

func (s *SendFrameCmdTestSuite) TestValidation() {
	_, err := s.ExecuteCommand("send-frame", "FF07143102000000004E", "--sink", "debug", "--count", "1")
	s.ErrorIs(err, frame.ErrChecksum)

	out, err := s.ExecuteCommand("send-frame", "FF07143102000000004E", "--sink", "debug", "--count", "1", "--raw")
	s.Require().NoError(err)
	s.Contains(out, "Debug Output: FF07143102000000004E")

	_, err = s.ExecuteCommand("send-frame", "--count", "1")
	s.ErrorContains(err, "--port is required")

	_, err = s.ExecuteCommand("send-frame", "--sink", "debug", "--interval", "0s")
	s.ErrorContains(err, "invalid interval")

	_, err = s.ExecuteCommand("send-frame", "--sink", "debug", "--count", "-1")
	s.ErrorContains(err, "invalid count")

	_, err = s.ExecuteCommand("send-frame", "--sink", "modem")
	s.ErrorContains(err, `unknown sink "modem"`)
}

func TestSendFrameCmdTestSuite(t *testing.T) {
	suite.Run(t, new(SendFrameCmdTestSuite))
}
