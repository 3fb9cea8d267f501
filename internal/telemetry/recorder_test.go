package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/felshare-bridge/internal/bridges/felshare"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

type fakeWriter struct {
	mu     sync.Mutex
	points []point
}

func (f *fakeWriter) WritePoint(m string, tags map[string]string, fields map[string]any, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, point{m, tags, fields, ts})
}

func (f *fakeWriter) count(measurement string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.points {
		if p.measurement == measurement {
			n++
		}
	}
	return n
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestRecorder_WritesOncePerFrame(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w)
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := felshare.State{DeviceID: "FS0001", Connected: true, LastSeen: seen, PowerOn: boolPtr(true), RemainOilML: intPtr(80)}
	r.Observe(s)
	r.Observe(s) // same frame, e.g. a publish notification

	if got := w.count(MeasurementReadings); got != 1 {
		t.Fatalf("readings points = %d, want 1", got)
	}
	p := w.points[len(w.points)-1]
	if p.tags["device_id"] != "FS0001" || !p.ts.Equal(seen) {
		t.Errorf("point tags=%v ts=%v", p.tags, p.ts)
	}
	if p.fields["power_on"] != true || p.fields["remain_oil_ml"] != 80 {
		t.Errorf("fields = %v", p.fields)
	}
	if _, ok := p.fields["fan_on"]; ok {
		t.Error("unknown fan state was written")
	}

	s.LastSeen = seen.Add(time.Second)
	r.Observe(s)
	if got := w.count(MeasurementReadings); got != 2 {
		t.Errorf("readings points = %d after new frame, want 2", got)
	}
}

func TestRecorder_ConnectionTransitions(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w)

	r.Observe(felshare.State{DeviceID: "FS0001"})
	r.Observe(felshare.State{DeviceID: "FS0001"})
	r.Observe(felshare.State{DeviceID: "FS0001", Connected: true})
	r.Observe(felshare.State{DeviceID: "FS0001", Connected: true})
	r.Observe(felshare.State{DeviceID: "FS0001"})

	if got := w.count(MeasurementConnection); got != 3 {
		t.Errorf("connection points = %d, want 3", got)
	}
	if got := w.count(MeasurementReadings); got != 0 {
		t.Errorf("readings points = %d without frames, want 0", got)
	}
}
