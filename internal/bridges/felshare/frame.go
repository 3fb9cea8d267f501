package felshare

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Frame opcodes. The first byte of every frame on the rxd/txd topics.
const (
	OpPower       byte = 0x03
	OpFan         byte = 0x04
	OpStatus      byte = 0x05
	OpOilName     byte = 0x08
	OpBulk        byte = 0x0C
	OpConsumption byte = 0x0E
	OpCapacity    byte = 0x0F
	OpRemainOil   byte = 0x10
	OpWorkTime    byte = 0x32

	// workTimeSub is the second byte of a WorkTime frame.
	workTimeSub byte = 0x01
)

// Frame sizes and field limits.
const (
	statusFrameMin   = 26
	bulkFrameMin     = 20
	workTimeFrameLen = 11
	valueFrameLen    = 3

	maxOilNameBytes = 10

	maxStatusConsumptionTenths = 2000
	maxStatusCapacityML        = 5000
	maxStatusRemainML          = 10000

	maxCycleSeconds = 999

	flagEnabled byte = 0x80
)

// ClockTime is a wall-clock hour and minute as stored by the device.
type ClockTime struct {
	Hour   int
	Minute int
}

// Valid reports whether the time is within 00:00-23:59.
func (c ClockTime) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

// String formats as "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "H:MM" or "HH:MM".
func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidInput, s)
	}
	h, errH := strconv.Atoi(strings.TrimSpace(hh))
	m, errM := strconv.Atoi(strings.TrimSpace(mm))
	c := ClockTime{Hour: h, Minute: m}
	if errH != nil || errM != nil || !c.Valid() {
		return ClockTime{}, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidInput, s)
	}
	return c, nil
}

// Schedule is the device's WorkTime programme.
type Schedule struct {
	Start       ClockTime
	End         ClockTime
	RunSeconds  int
	StopSeconds int
	Enabled     bool
	Days        DayMask
}

// DefaultSchedule is used as the base for schedule writes before the device
// has reported its own.
func DefaultSchedule() Schedule {
	return Schedule{
		Start:       ClockTime{Hour: 9},
		End:         ClockTime{Hour: 21},
		RunSeconds:  30,
		StopSeconds: 190,
		Enabled:     true,
		Days:        AllDays,
	}
}

// Flag packs Enabled into bit 7 and Days into bits 0-6.
func (s Schedule) Flag() byte {
	f := byte(s.Days & AllDays)
	if s.Enabled {
		f |= flagEnabled
	}
	return f
}

func scheduleFromFields(sh, sm, eh, em, flag byte, run, stop uint16) Schedule {
	return Schedule{
		Start:       ClockTime{Hour: int(sh), Minute: int(sm)},
		End:         ClockTime{Hour: int(eh), Minute: int(em)},
		RunSeconds:  int(run),
		StopSeconds: int(stop),
		Enabled:     flag&flagEnabled != 0,
		Days:        DayMask(flag) & AllDays,
	}
}

// Update is the partial state carried by one inbound frame. Nil fields were
// not present in the frame.
type Update struct {
	Opcode               byte
	PowerOn              *bool
	FanOn                *bool
	OilName              *string
	ConsumptionMLPerHour *float64
	CapacityML           *int
	RemainOilML          *int
	Schedule             *Schedule
}

// Empty reports whether the update carries no fields.
func (u Update) Empty() bool {
	return u.PowerOn == nil && u.FanOn == nil && u.OilName == nil &&
		u.ConsumptionMLPerHour == nil && u.CapacityML == nil &&
		u.RemainOilML == nil && u.Schedule == nil
}

// DecodeFrame decodes one inbound device frame. Truncated or inconsistent
// frames fail with ErrMalformedFrame and unrecognised opcodes with
// ErrUnknownOpcode; in both cases no partial update is returned.
func DecodeFrame(p []byte) (Update, error) {
	if len(p) == 0 {
		return Update{}, fmt.Errorf("%w: empty", ErrMalformedFrame)
	}

	switch op := p[0]; op {
	case OpStatus:
		return decodeStatus(p)
	case OpBulk:
		return decodeBulk(p)
	case OpWorkTime:
		return decodeWorkTime(p)
	case OpPower, OpFan:
		if len(p) < 2 { //nolint:mnd // opcode + value
			return Update{}, fmt.Errorf("%w: opcode %#02x needs 2 bytes, got %d", ErrMalformedFrame, op, len(p))
		}
		on := p[1] != 0
		if op == OpPower {
			return Update{Opcode: op, PowerOn: &on}, nil
		}
		return Update{Opcode: op, FanOn: &on}, nil
	case OpOilName:
		u := Update{Opcode: op}
		if name := decodeName(p[1:]); name != "" {
			u.OilName = &name
		}
		return u, nil
	case OpConsumption, OpCapacity, OpRemainOil:
		if len(p) < valueFrameLen {
			return Update{}, fmt.Errorf("%w: opcode %#02x needs %d bytes, got %d", ErrMalformedFrame, op, valueFrameLen, len(p))
		}
		raw := binary.BigEndian.Uint16(p[1:3])
		u := Update{Opcode: op}
		switch op {
		case OpConsumption:
			v := float64(raw) / 10 //nolint:mnd // tenths of ml/h
			u.ConsumptionMLPerHour = &v
		case OpCapacity:
			v := int(raw)
			u.CapacityML = &v
		default:
			v := int(raw)
			u.RemainOilML = &v
		}
		return u, nil
	default:
		return Update{}, fmt.Errorf("%w: %#02x", ErrUnknownOpcode, op)
	}
}

// decodeStatus parses the full 0x05 status snapshot. Individual numeric
// fields outside their plausible range are skipped; the frame is still used.
func decodeStatus(p []byte) (Update, error) {
	if len(p) < statusFrameMin {
		return Update{}, fmt.Errorf("%w: status frame %d bytes, need %d", ErrMalformedFrame, len(p), statusFrameMin)
	}

	power := p[9] != 0
	fan := p[10] != 0
	u := Update{Opcode: OpStatus, PowerOn: &power, FanOn: &fan}

	if cons := binary.BigEndian.Uint16(p[11:13]); cons <= maxStatusConsumptionTenths {
		v := float64(cons) / 10 //nolint:mnd // tenths of ml/h
		u.ConsumptionMLPerHour = &v
	}
	if capML := binary.BigEndian.Uint16(p[13:15]); capML >= 1 && capML <= maxStatusCapacityML {
		v := int(capML)
		u.CapacityML = &v
	}
	if remain := binary.BigEndian.Uint16(p[20:22]); remain <= maxStatusRemainML {
		v := int(remain)
		u.RemainOilML = &v
	}
	if name := decodeName(p[24:]); name != "" {
		u.OilName = &name
	}
	return u, nil
}

// decodeBulk extracts the schedule embedded at bytes 11-19 of a 0x0C frame.
func decodeBulk(p []byte) (Update, error) {
	if len(p) < bulkFrameMin {
		return Update{}, fmt.Errorf("%w: bulk frame %d bytes, need %d", ErrMalformedFrame, len(p), bulkFrameMin)
	}
	s := scheduleFromFields(p[11], p[12], p[13], p[14], p[15],
		binary.BigEndian.Uint16(p[16:18]), binary.BigEndian.Uint16(p[18:20]))
	if !s.Start.Valid() || !s.End.Valid() {
		return Update{}, fmt.Errorf("%w: bulk frame schedule %s-%s out of range", ErrMalformedFrame, s.Start, s.End)
	}
	return Update{Opcode: OpBulk, Schedule: &s}, nil
}

func decodeWorkTime(p []byte) (Update, error) {
	if len(p) != workTimeFrameLen || p[1] != workTimeSub {
		return Update{}, fmt.Errorf("%w: worktime frame % x", ErrMalformedFrame, p)
	}
	s := scheduleFromFields(p[2], p[3], p[4], p[5], p[6],
		binary.BigEndian.Uint16(p[7:9]), binary.BigEndian.Uint16(p[9:11]))
	if !s.Start.Valid() || !s.End.Valid() {
		return Update{}, fmt.Errorf("%w: worktime schedule %s-%s out of range", ErrMalformedFrame, s.Start, s.End)
	}
	return Update{Opcode: OpWorkTime, Schedule: &s}, nil
}

// decodeName reads a NUL-terminated UTF-8 name, dropping invalid sequences
// and surrounding whitespace.
func decodeName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}

// EncodePower returns the 0x03 power command.
func EncodePower(on bool) []byte {
	return []byte{OpPower, boolByte(on)}
}

// EncodeFan returns the 0x04 fan command.
func EncodeFan(on bool) []byte {
	return []byte{OpFan, boolByte(on)}
}

// EncodeOilName returns the 0x08 command. The name is cut to at most
// 10 bytes without splitting a UTF-8 sequence.
func EncodeOilName(name string) []byte {
	n := TruncateOilName(name)
	out := make([]byte, 0, 1+len(n))
	out = append(out, OpOilName)
	return append(out, n...)
}

// TruncateOilName returns the prefix of name the device will store.
func TruncateOilName(name string) string {
	if len(name) <= maxOilNameBytes {
		return name
	}
	cut := maxOilNameBytes
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// EncodeConsumption returns the 0x0E command for ml/h, sent in tenths.
// The value actually encoded is returned alongside.
func EncodeConsumption(mlPerHour float64) ([]byte, float64) {
	raw := clampUint16(int(math.Round(mlPerHour * 10))) //nolint:mnd // tenths of ml/h
	return valueFrame(OpConsumption, raw), float64(raw) / 10 //nolint:mnd // tenths of ml/h
}

// EncodeCapacity returns the 0x0F command and the clamped value.
func EncodeCapacity(ml int) ([]byte, int) {
	raw := clampUint16(ml)
	return valueFrame(OpCapacity, raw), int(raw)
}

// EncodeRemainOil returns the 0x10 command and the clamped value.
func EncodeRemainOil(ml int) ([]byte, int) {
	raw := clampUint16(ml)
	return valueFrame(OpRemainOil, raw), int(raw)
}

// EncodeWorkTime returns the 11-byte 0x32 0x01 WorkTime frame.
func EncodeWorkTime(s Schedule) []byte {
	out := make([]byte, workTimeFrameLen)
	out[0] = OpWorkTime
	out[1] = workTimeSub
	out[2] = byte(s.Start.Hour)
	out[3] = byte(s.Start.Minute)
	out[4] = byte(s.End.Hour)
	out[5] = byte(s.End.Minute)
	out[6] = s.Flag()
	binary.BigEndian.PutUint16(out[7:9], clampUint16(s.RunSeconds))
	binary.BigEndian.PutUint16(out[9:11], clampUint16(s.StopSeconds))
	return out
}

// StatusRequestFrame asks the device for its 0x05 snapshot.
func StatusRequestFrame() []byte { return []byte{OpStatus} }

// BulkRequestFrame asks the device for its 0x0C settings frame.
func BulkRequestFrame() []byte { return []byte{OpBulk} }

// ScheduleChange holds the schedule fields a caller wants to change. Nil
// fields keep their current value. Start and End are "HH:MM"; Days uses the
// ParseDays syntax and DaysMask, when set, wins over Days.
type ScheduleChange struct {
	Start       *string
	End         *string
	RunSeconds  *int
	StopSeconds *int
	Enabled     *bool
	Days        *string
	DaysMask    *DayMask
}

// BuildSchedule applies change on top of base and clamps the cycle
// durations to what the device accepts.
func BuildSchedule(base Schedule, change ScheduleChange) (Schedule, error) {
	s := base
	if change.Start != nil {
		t, err := ParseClock(*change.Start)
		if err != nil {
			return Schedule{}, err
		}
		s.Start = t
	}
	if change.End != nil {
		t, err := ParseClock(*change.End)
		if err != nil {
			return Schedule{}, err
		}
		s.End = t
	}
	if change.RunSeconds != nil {
		s.RunSeconds = *change.RunSeconds
	}
	if change.StopSeconds != nil {
		s.StopSeconds = *change.StopSeconds
	}
	if change.Enabled != nil {
		s.Enabled = *change.Enabled
	}
	if change.Days != nil {
		m, err := ParseDays(*change.Days)
		if err != nil {
			return Schedule{}, err
		}
		s.Days = m
	}
	if change.DaysMask != nil {
		s.Days = *change.DaysMask & AllDays
	}

	s.RunSeconds = clampInt(s.RunSeconds, 0, maxCycleSeconds)
	s.StopSeconds = clampInt(s.StopSeconds, 0, maxCycleSeconds)
	return s, nil
}

func valueFrame(op byte, v uint16) []byte {
	out := []byte{op, 0, 0}
	binary.BigEndian.PutUint16(out[1:], v)
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func clampUint16(v int) uint16 {
	return uint16(clampInt(v, 0, math.MaxUint16))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
