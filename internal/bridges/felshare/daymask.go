package felshare

import (
	"fmt"
	"strconv"
	"strings"
)

// DayMask is the 7-bit weekday set carried in the low bits of the schedule
// flag byte. Bit 0 is Sunday, bit 1 Monday, through bit 6 Saturday, which is
// what current firmware reports.
type DayMask uint8

// Weekday bits.
const (
	Sunday DayMask = 1 << iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday

	// AllDays has every weekday set.
	AllDays DayMask = 0x7F
)

// displayOrder lists days in the order used for human strings.
var displayOrder = [...]struct {
	bit  DayMask
	name string
}{
	{Monday, "Mon"},
	{Tuesday, "Tue"},
	{Wednesday, "Wed"},
	{Thursday, "Thu"},
	{Friday, "Fri"},
	{Saturday, "Sat"},
	{Sunday, "Sun"},
}

// dayTokens maps lowercase English, Spanish and single-letter tokens.
var dayTokens = map[string]DayMask{
	"mon": Monday, "monday": Monday,
	"tue": Tuesday, "tues": Tuesday, "tuesday": Tuesday,
	"wed": Wednesday, "wednesday": Wednesday,
	"thu": Thursday, "thur": Thursday, "thurs": Thursday, "thursday": Thursday,
	"fri": Friday, "friday": Friday,
	"sat": Saturday, "saturday": Saturday,
	"sun": Sunday, "sunday": Sunday,

	"lun": Monday, "lunes": Monday,
	"mar": Tuesday, "martes": Tuesday,
	"mie": Wednesday, "mié": Wednesday, "mier": Wednesday, "miercoles": Wednesday, "miércoles": Wednesday,
	"jue": Thursday, "jueves": Thursday,
	"vie": Friday, "viernes": Friday,
	"sab": Saturday, "sáb": Saturday, "sabado": Saturday, "sábado": Saturday,
	"dom": Sunday, "domingo": Sunday,

	"m": Monday, "t": Tuesday, "w": Wednesday, "r": Thursday, "f": Friday, "s": Saturday, "u": Sunday,
}

var allDayTokens = map[string]bool{
	"all": true, "every": true, "daily": true, "todos": true, "diario": true,
}

// String returns the set days as "Mon,Tue,...", or "-" when empty.
func (m DayMask) String() string {
	m &= AllDays
	if m == 0 {
		return "-"
	}
	names := make([]string, 0, len(displayOrder))
	for _, d := range displayOrder {
		if m.Has(d.bit) {
			names = append(names, d.name)
		}
	}
	return strings.Join(names, ",")
}

// Has reports whether d is set in m.
func (m DayMask) Has(d DayMask) bool {
	return m&d == d
}

// ParseDays parses a day list such as "Mon,Wed;fri", "Lun|Mié", "0x7F",
// "127" or "daily". Separators are ',', ';' and '|'. Matching is case
// insensitive. "-" and the empty string mean no days. Any unknown token
// fails with ErrInvalidInput.
func ParseDays(s string) (DayMask, error) {
	raw := strings.TrimSpace(s)
	if raw == "" || raw == "-" {
		return 0, nil
	}

	if n, ok, err := parseNumericMask(raw); ok {
		return n, err
	}

	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})

	var mask DayMask
	all := false
	for _, f := range fields {
		tok := strings.TrimSpace(f)
		if tok == "" {
			continue
		}
		if allDayTokens[tok] {
			all = true
			continue
		}
		bit, known := dayTokens[tok]
		if !known {
			return 0, fmt.Errorf("%w: unknown day token %q", ErrInvalidInput, tok)
		}
		mask |= bit
	}
	if all {
		return AllDays, nil
	}
	return mask, nil
}

// parseNumericMask handles "0x7F" and "127". ok is false when raw is not
// numeric at all.
func parseNumericMask(raw string) (DayMask, bool, error) {
	lower := strings.ToLower(raw)
	var (
		v   uint64
		err error
	)
	switch {
	case strings.HasPrefix(lower, "0x"):
		v, err = strconv.ParseUint(lower[2:], 16, 8)
	case isDigits(lower):
		v, err = strconv.ParseUint(lower, 10, 8)
	default:
		return 0, false, nil
	}
	if err != nil || v > uint64(AllDays) {
		return 0, true, fmt.Errorf("%w: day mask %q out of range 0-127", ErrInvalidInput, raw)
	}
	return DayMask(v), true, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// FromLegacyMask converts a mask in the older Mon=bit0 ... Sun=bit6 layout.
func FromLegacyMask(legacy uint8) DayMask {
	legacy &= uint8(AllDays)
	sun := legacy >> 6 & 1
	return DayMask(legacy<<1&0x7E | sun)
}

// LegacyMask converts m to the older Mon=bit0 ... Sun=bit6 layout.
func (m DayMask) LegacyMask() uint8 {
	m &= AllDays
	return uint8(m>>1) | uint8(m&Sunday)<<6
}
