// Package telemetry turns hub state snapshots into time-series points.
package telemetry

import (
	"sync"
	"time"

	"github.com/nerrad567/felshare-bridge/internal/bridges/felshare"
)

// Measurement names.
const (
	MeasurementReadings   = "diffuser"
	MeasurementConnection = "diffuser_connection"
)

// PointWriter is the sink for points. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Recorder writes one readings point per device frame and one connection
// point per connect or disconnect. Other snapshots are ignored.
//
// Thread Safety:
//   - Observe is safe for concurrent use.
type Recorder struct {
	w PointWriter

	mu        sync.Mutex
	lastSeen  time.Time
	connected bool
	started   bool
	now       func() time.Time
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w PointWriter) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

// Observe is a felshare.Observer.
func (r *Recorder) Observe(s felshare.State) {
	r.mu.Lock()
	newFrame := !s.LastSeen.IsZero() && s.LastSeen.After(r.lastSeen)
	if newFrame {
		r.lastSeen = s.LastSeen
	}
	connChanged := !r.started || s.Connected != r.connected
	r.connected = s.Connected
	r.started = true
	now := r.now()
	r.mu.Unlock()

	tags := map[string]string{"device_id": s.DeviceID}
	if connChanged {
		r.w.WritePoint(MeasurementConnection, tags, map[string]any{
			"connected":        s.Connected,
			"malformed_frames": int64(s.MalformedFrames), // #nosec G115 -- counter
		}, now)
	}
	if newFrame {
		if fields := readingFields(s); len(fields) > 0 {
			r.w.WritePoint(MeasurementReadings, tags, fields, s.LastSeen)
		}
	}
}

// readingFields collects every observed reading.
func readingFields(s felshare.State) map[string]any {
	f := make(map[string]any)
	if s.PowerOn != nil {
		f["power_on"] = *s.PowerOn
	}
	if s.FanOn != nil {
		f["fan_on"] = *s.FanOn
	}
	if s.ConsumptionMLPerHour != nil {
		f["consumption_ml_per_h"] = *s.ConsumptionMLPerHour
	}
	if s.CapacityML != nil {
		f["capacity_ml"] = *s.CapacityML
	}
	if s.RemainOilML != nil {
		f["remain_oil_ml"] = *s.RemainOilML
	}
	if s.LiquidLevelPct != nil {
		f["liquid_level_pct"] = *s.LiquidLevelPct
	}
	if s.WorkEnabled != nil {
		f["work_enabled"] = *s.WorkEnabled
	}
	if s.OilName != nil {
		f["oil_name"] = *s.OilName
	}
	return f
}
