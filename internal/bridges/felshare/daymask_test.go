package felshare

import (
	"errors"
	"testing"
)

func TestDayMask_String(t *testing.T) {
	tests := []struct {
		mask DayMask
		want string
	}{
		{0, "-"},
		{AllDays, "Mon,Tue,Wed,Thu,Fri,Sat,Sun"},
		{Sunday, "Sun"},
		{Monday | Wednesday | Friday, "Mon,Wed,Fri"},
		{Saturday | Sunday, "Sat,Sun"},
		{0xFF, "Mon,Tue,Wed,Thu,Fri,Sat,Sun"},
	}
	for _, tt := range tests {
		if got := tt.mask.String(); got != tt.want {
			t.Errorf("DayMask(%#x).String() = %q, want %q", uint8(tt.mask), got, tt.want)
		}
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		in   string
		want DayMask
	}{
		{"", 0},
		{"-", 0},
		{"  ", 0},
		{"Mon,Wed,Fri", Monday | Wednesday | Friday},
		{"mon; WED | fri", Monday | Wednesday | Friday},
		{"Sunday", Sunday},
		{"Lun,Mié,Vie", Monday | Wednesday | Friday},
		{"sábado,domingo", Saturday | Sunday},
		{"MIÉRCOLES", Wednesday},
		{"m,t,w,r,f,s,u", AllDays},
		{"all", AllDays},
		{"Daily", AllDays},
		{"todos", AllDays},
		{"mon,every", AllDays},
		{"0x7F", AllDays},
		{"0X03", Sunday | Monday},
		{"127", AllDays},
		{"0", 0},
		{"Mon,,Tue", Monday | Tuesday},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDays(tt.in)
			if err != nil {
				t.Fatalf("ParseDays(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseDays(%q) = %#x, want %#x", tt.in, uint8(got), uint8(tt.want))
			}
		})
	}
}

func TestParseDays_Invalid(t *testing.T) {
	for _, in := range []string{"Wed nesday-typo", "Mon,Funday", "128", "0x80", "0xZZ", "lundi", "all,bogus", "Mon,daily,Funday"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDays(in)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ParseDays(%q) error = %v, want ErrInvalidInput", in, err)
			}
		})
	}
}

func TestParseDays_RoundTrip(t *testing.T) {
	for m := DayMask(0); m <= AllDays; m++ {
		got, err := ParseDays(m.String())
		if err != nil {
			t.Fatalf("ParseDays(%q) error = %v", m.String(), err)
		}
		if got != m {
			t.Fatalf("ParseDays(%q) = %#x, want %#x", m.String(), uint8(got), uint8(m))
		}
	}
}

func TestLegacyMask(t *testing.T) {
	// Legacy Mon=1 ... Sun=64.
	if got := FromLegacyMask(0x01); got != Monday {
		t.Errorf("FromLegacyMask(0x01) = %#x, want Monday", uint8(got))
	}
	if got := FromLegacyMask(0x40); got != Sunday {
		t.Errorf("FromLegacyMask(0x40) = %#x, want Sunday", uint8(got))
	}
	if got := FromLegacyMask(0x7F); got != AllDays {
		t.Errorf("FromLegacyMask(0x7F) = %#x, want AllDays", uint8(got))
	}
	for m := DayMask(0); m <= AllDays; m++ {
		if back := FromLegacyMask(m.LegacyMask()); back != m {
			t.Fatalf("legacy round trip %#x -> %#x", uint8(m), uint8(back))
		}
	}
}
