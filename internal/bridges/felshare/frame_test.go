package felshare

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// statusFrame builds a 0x05 snapshot with the given readings.
func statusFrame(power, fan bool, consTenths, capML, remainML uint16, name string) []byte {
	p := make([]byte, 24, 24+len(name)+1)
	p[0] = OpStatus
	p[9] = boolByte(power)
	p[10] = boolByte(fan)
	binary.BigEndian.PutUint16(p[11:13], consTenths)
	binary.BigEndian.PutUint16(p[13:15], capML)
	binary.BigEndian.PutUint16(p[20:22], remainML)
	p = append(p, name...)
	p = append(p, 0)
	for len(p) < statusFrameMin {
		p = append(p, 0)
	}
	return p
}

func bulkFrame(sh, sm, eh, em, flag byte, run, stop uint16) []byte {
	p := make([]byte, bulkFrameMin)
	p[0] = OpBulk
	p[11], p[12], p[13], p[14], p[15] = sh, sm, eh, em, flag
	binary.BigEndian.PutUint16(p[16:18], run)
	binary.BigEndian.PutUint16(p[18:20], stop)
	return p
}

func TestDecodeFrame_Status(t *testing.T) {
	u, err := DecodeFrame(statusFrame(true, false, 35, 250, 125, "Lavender"))
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if u.PowerOn == nil || !*u.PowerOn {
		t.Errorf("PowerOn = %v, want true", u.PowerOn)
	}
	if u.FanOn == nil || *u.FanOn {
		t.Errorf("FanOn = %v, want false", u.FanOn)
	}
	if u.ConsumptionMLPerHour == nil || *u.ConsumptionMLPerHour != 3.5 {
		t.Errorf("ConsumptionMLPerHour = %v, want 3.5", u.ConsumptionMLPerHour)
	}
	if u.CapacityML == nil || *u.CapacityML != 250 {
		t.Errorf("CapacityML = %v, want 250", u.CapacityML)
	}
	if u.RemainOilML == nil || *u.RemainOilML != 125 {
		t.Errorf("RemainOilML = %v, want 125", u.RemainOilML)
	}
	if u.OilName == nil || *u.OilName != "Lavender" {
		t.Errorf("OilName = %v, want Lavender", u.OilName)
	}
}

func TestDecodeFrame_StatusOutOfRangeFieldsSkipped(t *testing.T) {
	u, err := DecodeFrame(statusFrame(true, true, 2001, 0, 10001, "  "))
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if u.ConsumptionMLPerHour != nil {
		t.Errorf("ConsumptionMLPerHour = %v, want nil", *u.ConsumptionMLPerHour)
	}
	if u.CapacityML != nil {
		t.Errorf("CapacityML = %v, want nil", *u.CapacityML)
	}
	if u.RemainOilML != nil {
		t.Errorf("RemainOilML = %v, want nil", *u.RemainOilML)
	}
	if u.OilName != nil {
		t.Errorf("OilName = %q, want nil", *u.OilName)
	}
	if u.PowerOn == nil || u.FanOn == nil {
		t.Error("switch fields should still be decoded")
	}

	u, err = DecodeFrame(statusFrame(false, false, 0, 5001, 0, "x"))
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if u.CapacityML != nil {
		t.Errorf("CapacityML = %d, want nil above 5000", *u.CapacityML)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"short status", []byte{0x05, 0x01, 0x02}},
		{"status 25 bytes", make25Status()},
		{"short bulk", []byte{0x0C, 0, 0}},
		{"bulk bad hour", bulkFrame(24, 0, 21, 0, 0xFF, 30, 190)},
		{"bulk bad minute", bulkFrame(9, 60, 21, 0, 0xFF, 30, 190)},
		{"worktime too long", append(EncodeWorkTime(DefaultSchedule()), 0)},
		{"worktime wrong sub", []byte{0x32, 0x02, 9, 0, 21, 0, 0xFF, 0, 30, 0, 190}},
		{"worktime bad minute", []byte{0x32, 0x01, 9, 99, 21, 0, 0xFF, 0, 30, 0, 190}},
		{"power no value", []byte{0x03}},
		{"capacity one byte", []byte{0x0F, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := DecodeFrame(tt.in)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("DecodeFrame() error = %v, want ErrMalformedFrame", err)
			}
			if !u.Empty() {
				t.Errorf("malformed frame returned fields: %+v", u)
			}
		})
	}
}

func make25Status() []byte {
	p := make([]byte, 25)
	p[0] = OpStatus
	return p
}

func TestDecodeFrame_UnknownOpcode(t *testing.T) {
	_, err := DecodeFrame([]byte{0x77, 0x01})
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("DecodeFrame() error = %v, want ErrUnknownOpcode", err)
	}
}

func TestDecodeFrame_SimpleFrames(t *testing.T) {
	u, err := DecodeFrame([]byte{OpPower, 0x01})
	if err != nil || u.PowerOn == nil || !*u.PowerOn {
		t.Errorf("power frame = %+v, %v", u, err)
	}
	u, err = DecodeFrame([]byte{OpFan, 0x00})
	if err != nil || u.FanOn == nil || *u.FanOn {
		t.Errorf("fan frame = %+v, %v", u, err)
	}
	u, err = DecodeFrame(append([]byte{OpOilName}, "Citrus\x00junk"...))
	if err != nil || u.OilName == nil || *u.OilName != "Citrus" {
		t.Errorf("oil name frame = %+v, %v", u, err)
	}
	u, err = DecodeFrame([]byte{OpOilName, 0x00})
	if err != nil || !u.Empty() {
		t.Errorf("empty oil name frame = %+v, %v; want empty update", u, err)
	}
	u, err = DecodeFrame([]byte{OpConsumption, 0x00, 0x23})
	if err != nil || u.ConsumptionMLPerHour == nil || *u.ConsumptionMLPerHour != 3.5 {
		t.Errorf("consumption frame = %+v, %v", u, err)
	}
	u, err = DecodeFrame([]byte{OpCapacity, 0x00, 0xFA})
	if err != nil || u.CapacityML == nil || *u.CapacityML != 250 {
		t.Errorf("capacity frame = %+v, %v", u, err)
	}
	u, err = DecodeFrame([]byte{OpRemainOil, 0x01, 0x00})
	if err != nil || u.RemainOilML == nil || *u.RemainOilML != 256 {
		t.Errorf("remain frame = %+v, %v", u, err)
	}
}

func TestDecodeFrame_Bulk(t *testing.T) {
	u, err := DecodeFrame(bulkFrame(7, 15, 22, 45, flagEnabled|byte(Monday|Friday), 60, 120))
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	want := Schedule{
		Start:       ClockTime{7, 15},
		End:         ClockTime{22, 45},
		RunSeconds:  60,
		StopSeconds: 120,
		Enabled:     true,
		Days:        Monday | Friday,
	}
	if u.Schedule == nil || *u.Schedule != want {
		t.Errorf("Schedule = %+v, want %+v", u.Schedule, want)
	}
}

func TestWorkTime_RoundTrip(t *testing.T) {
	start, end := "08:30", "20:15"
	run, stop := 45, 200
	enabled := true
	days := "Mon,Wed,Fri"

	s, err := BuildSchedule(DefaultSchedule(), ScheduleChange{
		Start: &start, End: &end, RunSeconds: &run, StopSeconds: &stop, Enabled: &enabled, Days: &days,
	})
	if err != nil {
		t.Fatalf("BuildSchedule() error = %v", err)
	}

	frame := EncodeWorkTime(s)
	if len(frame) != workTimeFrameLen {
		t.Fatalf("frame length = %d, want 11", len(frame))
	}
	want := []byte{0x32, 0x01, 8, 30, 20, 15, 0x80 | 0x02 | 0x08 | 0x20, 0, 45, 0, 200}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame = % x, want % x", frame, want)
	}

	u, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	got := u.Schedule
	if got.Start.String() != start || got.End.String() != end {
		t.Errorf("times = %s-%s, want %s-%s", got.Start, got.End, start, end)
	}
	if got.RunSeconds != run || got.StopSeconds != stop || got.Enabled != enabled {
		t.Errorf("run/stop/enabled = %d/%d/%v", got.RunSeconds, got.StopSeconds, got.Enabled)
	}
	if got.Days.String() != days {
		t.Errorf("days = %q, want %q", got.Days.String(), days)
	}
}

func TestBuildSchedule(t *testing.T) {
	base := DefaultSchedule()

	t.Run("no change keeps base", func(t *testing.T) {
		s, err := BuildSchedule(base, ScheduleChange{})
		if err != nil || s != base {
			t.Errorf("BuildSchedule() = %+v, %v; want %+v", s, err, base)
		}
	})

	t.Run("clamps cycle", func(t *testing.T) {
		run, stop := 5000, -3
		s, err := BuildSchedule(base, ScheduleChange{RunSeconds: &run, StopSeconds: &stop})
		if err != nil {
			t.Fatalf("BuildSchedule() error = %v", err)
		}
		if s.RunSeconds != 999 || s.StopSeconds != 0 {
			t.Errorf("run/stop = %d/%d, want 999/0", s.RunSeconds, s.StopSeconds)
		}
	})

	t.Run("mask wins over days", func(t *testing.T) {
		days := "Mon"
		mask := Sunday
		s, err := BuildSchedule(base, ScheduleChange{Days: &days, DaysMask: &mask})
		if err != nil || s.Days != Sunday {
			t.Errorf("Days = %v, %v; want Sun", s.Days, err)
		}
	})

	for _, bad := range []ScheduleChange{
		{Start: strPtr("25:00")},
		{End: strPtr("noon")},
		{Days: strPtr("Mon,Blursday")},
	} {
		if _, err := BuildSchedule(base, bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("BuildSchedule(%+v) error = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestEncoders(t *testing.T) {
	if got := EncodePower(true); !bytes.Equal(got, []byte{0x03, 0x01}) {
		t.Errorf("EncodePower(true) = % x", got)
	}
	if got := EncodeFan(false); !bytes.Equal(got, []byte{0x04, 0x00}) {
		t.Errorf("EncodeFan(false) = % x", got)
	}

	frame, v := EncodeConsumption(3.54)
	if !bytes.Equal(frame, []byte{0x0E, 0x00, 0x23}) || v != 3.5 {
		t.Errorf("EncodeConsumption(3.54) = % x, %v", frame, v)
	}
	frame, v = EncodeConsumption(-1)
	if !bytes.Equal(frame, []byte{0x0E, 0x00, 0x00}) || v != 0 {
		t.Errorf("EncodeConsumption(-1) = % x, %v", frame, v)
	}

	frame, n := EncodeCapacity(70000)
	if !bytes.Equal(frame, []byte{0x0F, 0xFF, 0xFF}) || n != 65535 {
		t.Errorf("EncodeCapacity(70000) = % x, %d", frame, n)
	}
	frame, n = EncodeRemainOil(300)
	if !bytes.Equal(frame, []byte{0x10, 0x01, 0x2C}) || n != 300 {
		t.Errorf("EncodeRemainOil(300) = % x, %d", frame, n)
	}

	if got := StatusRequestFrame(); !bytes.Equal(got, []byte{0x05}) {
		t.Errorf("StatusRequestFrame() = % x", got)
	}
	if got := BulkRequestFrame(); !bytes.Equal(got, []byte{0x0C}) {
		t.Errorf("BulkRequestFrame() = % x", got)
	}
}

func TestEncodeOilName_Truncation(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Mint", "Mint"},
		{"Eucalyptus", "Eucalyptus"},
		{"Eucalyptus!", "Eucalyptus"},
		// "á" is two bytes and would straddle the 10-byte limit.
		{"Naranjaáá", "Naranjaá"},
	}
	for _, tt := range tests {
		got := EncodeOilName(tt.in)
		if got[0] != OpOilName || string(got[1:]) != tt.want {
			t.Errorf("EncodeOilName(%q) = %q, want %q", tt.in, got[1:], tt.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	good := map[string]ClockTime{"08:30": {8, 30}, "0:00": {0, 0}, " 23:59 ": {23, 59}}
	for in, want := range good {
		got, err := ParseClock(in)
		if err != nil || got != want {
			t.Errorf("ParseClock(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "8", "24:00", "12:60", "aa:bb", "-1:10"} {
		if _, err := ParseClock(in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseClock(%q) error = %v, want ErrInvalidInput", in, err)
		}
	}
}

func strPtr(s string) *string { return &s }
