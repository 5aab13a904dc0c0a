package scoring

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Lamps is the 6-bit lamp flag set carried in frame byte 5.
type Lamps uint8

const (
	LampLeftWhite   Lamps = 0x01
	LampRightWhite  Lamps = 0x02
	LampLeftRed     Lamps = 0x04 // left score
	LampRightGreen  Lamps = 0x08 // right score
	LampRightYellow Lamps = 0x10
	LampLeftYellow  Lamps = 0x20

	lampsMask Lamps = 0x3F
)

// Has reports whether every flag in f is set.
func (l Lamps) Has(f Lamps) bool { return l&f == f }

// MatchPriority carries the 2-bit match number and the two priority flags (frame byte 6).
type MatchPriority uint8

const (
	MatchNumberMask MatchPriority = 0x03
	PriorityRight   MatchPriority = 0x04
	PriorityLeft    MatchPriority = 0x08
)

// Match returns the wire-truncated match number (0-3).
func (m MatchPriority) Match() uint8 { return uint8(m & MatchNumberMask) }

// Has reports whether every flag in f is set.
func (m MatchPriority) Has(f MatchPriority) bool { return m&f == f }

// Cards is the 4-bit penalty card flag set (frame byte 8).
type Cards uint8

const (
	CardRightRed    Cards = 0x01
	CardLeftRed     Cards = 0x02
	CardRightYellow Cards = 0x04
	CardLeftYellow  Cards = 0x08
)

// Has reports whether every flag in f is set.
func (c Cards) Has(f Cards) bool { return c&f == f }

// DeviceState is the full scoring snapshot mirrored onto the wire frame.
// The zero value is the state at session start.
type DeviceState struct {
	RightScore    uint8
	LeftScore     uint8
	Seconds       uint8
	MinutesUnit   uint8
	Lamps         Lamps
	MatchPriority MatchPriority
	Cards         Cards
}

// Field names a single DeviceState field addressed by an Update.
type Field uint8

const (
	FieldRightScore Field = iota + 1
	FieldLeftScore
	FieldSeconds
	FieldMinutesUnit
	FieldLamps
	FieldMatchPriority
	FieldCards
)

var fieldNames = map[Field]string{
	FieldRightScore:    "rightScore",
	FieldLeftScore:     "leftScore",
	FieldSeconds:       "seconds",
	FieldMinutesUnit:   "minutesUnit",
	FieldLamps:         "lamps",
	FieldMatchPriority: "matchAndPriority",
	FieldCards:         "cards",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Field(%d)", uint8(f))
}

// Write replaces the bits selected by Mask in Field with the matching bits of Value.
type Write struct {
	Field Field
	Mask  uint8
	Value uint8
}

// Update is the partial state change produced by one decoded notification.
// All writes of an Update are applied together.
type Update []Write

func (u Update) String() string {
	if len(u) == 0 {
		return "none"
	}
	parts := make([]string, len(u))
	for i, w := range u {
		parts[i] = fmt.Sprintf("%s[%02x]=%02x", w.Field, w.Mask, w.Value&w.Mask)
	}
	return strings.Join(parts, " ")
}

// setBit builds a single-flag write.
func setBit(field Field, flag uint8, on bool) Write {
	w := Write{Field: field, Mask: flag}
	if on {
		w.Value = flag
	}
	return w
}

// Apply returns s with u merged in. s itself is not modified.
func (s DeviceState) Apply(u Update) DeviceState {
	for _, w := range u {
		p := s.field(w.Field)
		if p == nil {
			continue
		}
		*p = (*p &^ w.Mask) | (w.Value & w.Mask)
	}
	return s
}

func (s *DeviceState) field(f Field) *uint8 {
	switch f {
	case FieldRightScore:
		return &s.RightScore
	case FieldLeftScore:
		return &s.LeftScore
	case FieldSeconds:
		return &s.Seconds
	case FieldMinutesUnit:
		return &s.MinutesUnit
	case FieldLamps:
		return (*uint8)(&s.Lamps)
	case FieldMatchPriority:
		return (*uint8)(&s.MatchPriority)
	case FieldCards:
		return (*uint8)(&s.Cards)
	default:
		return nil
	}
}

// Fields returns the state as an ordered name/value map in frame byte order.
func (s DeviceState) Fields() *orderedmap.OrderedMap[string, uint8] {
	m := orderedmap.New[string, uint8]()
	m.Set(FieldRightScore.String(), s.RightScore)
	m.Set(FieldLeftScore.String(), s.LeftScore)
	m.Set(FieldSeconds.String(), s.Seconds)
	m.Set(FieldMinutesUnit.String(), s.MinutesUnit)
	m.Set(FieldLamps.String(), uint8(s.Lamps))
	m.Set(FieldMatchPriority.String(), uint8(s.MatchPriority))
	m.Set(FieldCards.String(), uint8(s.Cards))
	return m
}

// String renders the state as "name=0xNN" pairs in frame byte order.
func (s DeviceState) String() string {
	fields := s.Fields()
	parts := make([]string, 0, fields.Len())
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		parts = append(parts, fmt.Sprintf("%s=0x%02X", pair.Key, pair.Value))
	}
	return strings.Join(parts, " ")
}

// Summary renders the match number, priority and penalty cards, e.g. "match 2, priority left, cards LY RR".
func (s DeviceState) Summary() string {
	parts := []string{fmt.Sprintf("match %d", s.MatchPriority.Match())}
	switch {
	case s.MatchPriority.Has(PriorityLeft | PriorityRight):
		parts = append(parts, "priority both")
	case s.MatchPriority.Has(PriorityLeft):
		parts = append(parts, "priority left")
	case s.MatchPriority.Has(PriorityRight):
		parts = append(parts, "priority right")
	}

	var cards []string
	for _, c := range []struct {
		flag Cards
		name string
	}{
		{CardLeftYellow, "LY"},
		{CardLeftRed, "LR"},
		{CardRightYellow, "RY"},
		{CardRightRed, "RR"},
	} {
		if s.Cards.Has(c.flag) {
			cards = append(cards, c.name)
		}
	}
	if len(cards) > 0 {
		parts = append(parts, "cards "+strings.Join(cards, " "))
	}
	return strings.Join(parts, ", ")
}
