package frame

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/fa15bridge/internal/scoring"
)

func TestEncodeScenario(t *testing.T) {
	f := Encode(scoring.DeviceState{
		RightScore:    7,
		LeftScore:     12,
		Seconds:       45,
		MinutesUnit:   1,
		Lamps:         0x04,
		MatchPriority: 0x02,
		Cards:         0x01,
	})

	assert.Equal(t, Frame{0xFF, 0x07, 0x0C, 0x2D, 0x01, 0x04, 0x02, 0x00, 0x01, 0x47}, f)
	assert.Equal(t, "FF070C2D010402000147", f.String())
	assert.Equal(t, "FF 07 0C 2D 01 04 02 00 01 47", f.Spaced())
}

func TestEncodeZeroState(t *testing.T) {
	f := Encode(scoring.DeviceState{})
	assert.Equal(t, Frame{0xFF, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF}, f)
}

func TestEncodeChecksumProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	fields := []scoring.Field{
		scoring.FieldRightScore, scoring.FieldLeftScore, scoring.FieldSeconds, scoring.FieldMinutesUnit,
		scoring.FieldLamps, scoring.FieldMatchPriority, scoring.FieldCards,
	}

	state := scoring.DeviceState{}
	for i := 0; i < 1000; i++ {
		state = state.Apply(scoring.Update{{
			Field: fields[rng.Intn(len(fields))],
			Mask:  uint8(rng.Intn(256)),
			Value: uint8(rng.Intn(256)),
		}})

		f := Encode(state)
		require.Equal(t, Header, f[0])
		require.Equal(t, byte(0x00), f[7])

		var sum int
		for _, b := range f[:9] {
			sum += int(b)
		}
		require.Equal(t, byte(sum%256), f[9])
		require.Equal(t, state, f.State())
	}
}

func TestParseFixedTestFrame(t *testing.T) {
	f, err := ParseHex("FF07143102000000004D")
	require.NoError(t, err)
	assert.Equal(t, byte(0x4D), f[9])
	assert.Equal(t, uint8(7), f.State().RightScore)
	assert.Equal(t, uint8(20), f.State().LeftScore)

	f2, err := ParseHex("0xff 07 14 31 02 00 00 00 00 4d")
	require.NoError(t, err)
	assert.Equal(t, f, f2)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte{0xFF, 0x00})
	assert.ErrorIs(t, err, ErrLength)

	_, err = Parse([]byte{0xFE, 0, 0, 0, 0, 0, 0, 0, 0, 0xFE})
	assert.ErrorIs(t, err, ErrHeader)

	_, err = Parse([]byte{0xFF, 0, 0, 0, 0, 0, 0, 0, 0, 0x00})
	assert.ErrorIs(t, err, ErrChecksum)
	assert.Contains(t, err.Error(), "want 0xFF")

	_, err = ParseHex("zz")
	assert.Error(t, err)
}

func TestChecksumWraps(t *testing.T) {
	assert.Equal(t, byte(0x01), Checksum([]byte{0xFF, 0x02}))
	assert.Equal(t, byte(0x00), Checksum(nil))
}

func TestEncodeEveryScore(t *testing.T) {
	for _, enc := range []scoring.ScoreEncoding{scoring.ScoreRaw, scoring.ScoreBCD} {
		t.Run(enc.String(), func(t *testing.T) {
			d := scoring.NewDecoder(enc)
			for v := uint8(0); v <= 99; v++ {
				want := v
				if enc == scoring.ScoreBCD {
					want = uint8(v/10)<<4 | v%10
				}

				left, err := d.Decode(scoring.KindLeftScore, []byte{v})
				require.NoError(t, err)
				right, err := d.Decode(scoring.KindRightScore, []byte{99 - v})
				require.NoError(t, err)

				state := scoring.DeviceState{}.Apply(left.Update).Apply(right.Update)
				f := Encode(state)

				wantRight := 99 - v
				if enc == scoring.ScoreBCD {
					wantRight = uint8(wantRight/10)<<4 | wantRight%10
				}
				require.Equal(t, want, f[2], "left score %d", v)
				require.Equal(t, wantRight, f[1], "right score %d", 99-v)
			}
		})
	}
}
