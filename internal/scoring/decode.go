package scoring

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ScoreEncoding selects how score bytes are stored for the wire frame.
type ScoreEncoding uint8

const (
	// ScoreRaw stores the score value unchanged (12 -> 0x0C).
	ScoreRaw ScoreEncoding = iota
	// ScoreBCD packs the two decimal digits into nibbles (12 -> 0x12).
	ScoreBCD
)

func (e ScoreEncoding) String() string {
	switch e {
	case ScoreRaw:
		return "raw"
	case ScoreBCD:
		return "bcd"
	default:
		return fmt.Sprintf("ScoreEncoding(%d)", uint8(e))
	}
}

// ParseScoreEncoding parses "raw" or "bcd" (case-insensitive).
func ParseScoreEncoding(s string) (ScoreEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw", "":
		return ScoreRaw, nil
	case "bcd":
		return ScoreBCD, nil
	default:
		return 0, fmt.Errorf("unknown score encoding %q (must be raw or bcd)", s)
	}
}

// ToBCD packs a value in 0-99 into two BCD nibbles.
func ToBCD(v uint8) uint8 {
	return (v/10)<<4 | v%10
}

// Result is a successful decode: a human-readable rendering and the state change to apply.
type Result struct {
	Display string
	Update  Update
}

// Decoder turns characteristic payloads into display text and state updates.
// A Decoder holds no state beyond its configuration and is safe for concurrent use.
type Decoder struct {
	scoreEncoding ScoreEncoding
}

// NewDecoder creates a decoder using the given score encoding for the whole session.
func NewDecoder(enc ScoreEncoding) *Decoder {
	return &Decoder{scoreEncoding: enc}
}

// ScoreEncoding returns the configured score encoding.
func (d *Decoder) ScoreEncoding() ScoreEncoding {
	return d.scoreEncoding
}

// Decode decodes payload as the given characteristic. On error no update is returned.
func (d *Decoder) Decode(kind Kind, payload []byte) (Result, error) {
	switch kind {
	case KindTime:
		return decodeTime(payload)
	case KindLeftScore, KindRightScore:
		return d.decodeScore(kind, payload)
	case KindPeriod:
		return decodePeriod(payload)
	case KindWeapon:
		return decodeWeapon(payload)
	case KindLamp:
		return decodeLamp(payload)
	case KindLeftCards, KindRightCards:
		return decodeCards(kind, payload)
	case KindModelNumber, KindFirmwareRevision, KindSoftwareRevision:
		return Result{Display: deviceInfoString(payload)}, nil
	default:
		// halt and anything else without a documented layout
		return Result{Display: RawDisplay(payload)}, nil
	}
}

// RawDisplay renders a payload that has no decoder.
func RawDisplay(payload []byte) string {
	return "Raw Value: " + hex.EncodeToString(payload)
}

var timePhases = map[byte]string{
	0x04: "Active Period",
	0x06: "Pause Period",
	0x05: "Medical Break",
	0x00: "Stopped",
}

// decodeTime decodes [hundredths, seconds, minutes, phase].
func decodeTime(p []byte) (Result, error) {
	if len(p) != 4 {
		return Result{}, lengthError(KindTime, 4, p)
	}
	hundredths, seconds, minutes, phase := p[0], p[1], p[2], p[3]
	if seconds > 59 {
		return Result{}, rangeError(KindTime, p, "seconds %d out of range 0-59", seconds)
	}

	phaseName, ok := timePhases[phase]
	if !ok {
		phaseName = fmt.Sprintf("Unknown Phase (%d)", phase)
	}

	return Result{
		Display: fmt.Sprintf("%d:%02d:%02d (%s)", minutes, seconds, hundredths, phaseName),
		Update: Update{
			{Field: FieldSeconds, Mask: 0xFF, Value: seconds},
			{Field: FieldMinutesUnit, Mask: 0xFF, Value: minutes & 0x0F},
		},
	}, nil
}

func (d *Decoder) decodeScore(kind Kind, p []byte) (Result, error) {
	if len(p) != 1 {
		return Result{}, lengthError(kind, 1, p)
	}
	score := p[0]
	if score > 99 {
		return Result{}, rangeError(kind, p, "score %d out of range 0-99", score)
	}

	stored := score
	if d.scoreEncoding == ScoreBCD {
		stored = ToBCD(score)
	}

	field := FieldRightScore
	if kind == KindLeftScore {
		field = FieldLeftScore
	}

	return Result{
		Display: fmt.Sprintf("Score: %d", score),
		Update:  Update{{Field: field, Mask: 0xFF, Value: stored}},
	}, nil
}

// decodePeriod uses the first byte; the match number occupies the low two frame bits.
func decodePeriod(p []byte) (Result, error) {
	if len(p) < 1 {
		return Result{}, lengthError(KindPeriod, 1, p)
	}
	v := p[0]

	var display string
	switch {
	case v == 0x00:
		display = "No Period/Match '-'"
	case v >= 0x01 && v <= 0x09:
		display = fmt.Sprintf("Period/Match No %d", v)
	case v == 0x0A:
		display = "Error"
	default:
		display = fmt.Sprintf("Unknown Period Value (%d)", v)
	}

	return Result{
		Display: display,
		Update: Update{
			{Field: FieldMatchPriority, Mask: uint8(MatchNumberMask), Value: v & uint8(MatchNumberMask)},
		},
	}, nil
}

var weapons = map[byte]string{
	0x14: "Sabre",
	0x00: "Épée",
	0x01: "Épée",
	0x02: "Épée",
	0x0A: "Foil",
}

func decodeWeapon(p []byte) (Result, error) {
	if len(p) != 1 {
		return Result{}, lengthError(KindWeapon, 1, p)
	}
	name, ok := weapons[p[0]]
	if !ok {
		name = "?"
	}
	return Result{Display: name}, nil
}

// decodeLamp recomputes the whole lamp field from [b0, b1].
func decodeLamp(p []byte) (Result, error) {
	if len(p) != 2 {
		return Result{}, lengthError(KindLamp, 2, p)
	}
	b0, b1 := p[0], p[1]

	var lamps Lamps
	if b0&0x04 != 0 {
		lamps |= LampLeftWhite
	}
	if b1&0x01 != 0 {
		lamps |= LampRightWhite
	}
	if b0&0x01 != 0 {
		lamps |= LampLeftRed
	}
	if b0&0x40 != 0 {
		lamps |= LampRightGreen
	}
	if b1&0x04 != 0 {
		lamps |= LampRightYellow
	}
	if b0&0x10 != 0 {
		lamps |= LampLeftYellow
	}

	display := fmt.Sprintf("LEFT - Score: %s / White: %s / Yellow: %s\nRIGHT - Score: %s / White: %s / Yellow: %s",
		onOff(lamps.Has(LampLeftRed)), onOff(lamps.Has(LampLeftWhite)), onOff(lamps.Has(LampLeftYellow)),
		onOff(lamps.Has(LampRightGreen)), onOff(lamps.Has(LampRightWhite)), onOff(lamps.Has(LampRightYellow)))

	return Result{
		Display: display,
		Update:  Update{{Field: FieldLamps, Mask: uint8(lampsMask), Value: uint8(lamps)}},
	}, nil
}

var pCardNames = [4]string{"OFF", "1st", "2nd", "3rd"}

// decodeCards decodes [b0, b1] for one fencer. The P-card is display only.
func decodeCards(kind Kind, p []byte) (Result, error) {
	if len(p) != 2 {
		return Result{}, lengthError(kind, 2, p)
	}
	red := p[0]&0x10 != 0
	pCard := p[0] & 0x03
	yellow := p[1]&0x01 != 0
	priority := p[1]&0x04 != 0

	redFlag, yellowFlag, priorityFlag := CardRightRed, CardRightYellow, PriorityRight
	if kind == KindLeftCards {
		redFlag, yellowFlag, priorityFlag = CardLeftRed, CardLeftYellow, PriorityLeft
	}

	return Result{
		Display: fmt.Sprintf("Yellow: %s / Red: %s / P-Card: %s / Priority: %s",
			onOff(yellow), onOff(red), pCardNames[pCard], onOff(priority)),
		Update: Update{
			setBit(FieldCards, uint8(redFlag), red),
			setBit(FieldCards, uint8(yellowFlag), yellow),
			setBit(FieldMatchPriority, uint8(priorityFlag), priority),
		},
	}, nil
}

func deviceInfoString(p []byte) string {
	p = bytes.TrimRight(p, "\x00")
	if !utf8.Valid(p) {
		return RawDisplay(p)
	}
	return string(p)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
