package felshare

import (
	"time"
)

// Phase is the supervisor's connection phase.
type Phase string

// Supervisor phases.
const (
	PhaseStopped      Phase = "stopped"
	PhaseNeedLogin    Phase = "need_login"
	PhaseBlocked      Phase = "blocked"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseDisconnected Phase = "disconnected"
)

// State is a snapshot of everything the hub knows about its device.
//
// Reading fields are nil until first observed and are never reset to nil
// afterwards; a disconnect only clears Connected. The hub replaces pointer
// fields instead of writing through them, so a copied State is safe to read
// without the hub's lock.
type State struct {
	DeviceID  string `json:"device_id"`
	Connected bool   `json:"connected"`
	Phase     Phase  `json:"phase"`

	LastSeen    time.Time `json:"last_seen,omitzero"`
	LastTopic   string    `json:"last_topic,omitempty"`
	LastPayload []byte    `json:"last_payload,omitempty"`

	PowerOn              *bool    `json:"power_on,omitempty"`
	FanOn                *bool    `json:"fan_on,omitempty"`
	OilName              *string  `json:"oil_name,omitempty"`
	ConsumptionMLPerHour *float64 `json:"consumption_ml_per_h,omitempty"`
	CapacityML           *int     `json:"capacity_ml,omitempty"`
	RemainOilML          *int     `json:"remain_oil_ml,omitempty"`
	LiquidLevelPct       *int     `json:"liquid_level_pct,omitempty"`

	WorkStart       *string  `json:"work_start,omitempty"`
	WorkEnd         *string  `json:"work_end,omitempty"`
	WorkRunSeconds  *int     `json:"work_run_s,omitempty"`
	WorkStopSeconds *int     `json:"work_stop_s,omitempty"`
	WorkEnabled     *bool    `json:"work_enabled,omitempty"`
	WorkDaysMask    *DayMask `json:"work_days_mask,omitempty"`
	WorkDaysHuman   *string  `json:"work_days,omitempty"`
	WorkFlagRaw     *byte    `json:"work_flag_raw,omitempty"`

	// Diagnostics.
	LastPublish        time.Time `json:"last_publish,omitzero"`
	LastStatusRequest  time.Time `json:"last_status_request,omitzero"`
	LastBulkRequest    time.Time `json:"last_bulk_request,omitzero"`
	LastTxKey          string    `json:"last_tx_key,omitempty"`
	LastTxPayload      []byte    `json:"last_tx_payload,omitempty"`
	OutboxLen          int       `json:"outbox_len"`
	OutboxKeys         []string  `json:"outbox_keys,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
	MalformedFrames    uint64    `json:"malformed_frames"`
	LoginCooldownUntil time.Time `json:"login_cooldown_until,omitzero"`
	SyncPayloadKnown   bool      `json:"sync_payload_known"`
}

// Available reports whether the device has been heard from within
// offlineAfter. A zero offlineAfter only requires a live connection.
func (s State) Available(now time.Time, offlineAfter time.Duration) bool {
	if !s.Connected {
		return false
	}
	if offlineAfter <= 0 {
		return true
	}
	return !s.LastSeen.IsZero() && now.Sub(s.LastSeen) <= offlineAfter
}

// CoreUnknown reports whether power, fan and oil name are all unobserved.
func (s State) CoreUnknown() bool {
	return s.PowerOn == nil && s.FanOn == nil && s.OilName == nil
}

// ScheduleKnown reports whether every schedule field has been observed.
func (s State) ScheduleKnown() bool {
	return s.WorkStart != nil && s.WorkEnd != nil && s.WorkRunSeconds != nil &&
		s.WorkStopSeconds != nil && s.WorkDaysMask != nil && s.WorkEnabled != nil
}

// Schedule returns the known schedule with DefaultSchedule filling any
// field the device has not reported.
func (s State) Schedule() Schedule {
	out := DefaultSchedule()
	if s.WorkStart != nil {
		if t, err := ParseClock(*s.WorkStart); err == nil {
			out.Start = t
		}
	}
	if s.WorkEnd != nil {
		if t, err := ParseClock(*s.WorkEnd); err == nil {
			out.End = t
		}
	}
	if s.WorkRunSeconds != nil {
		out.RunSeconds = *s.WorkRunSeconds
	}
	if s.WorkStopSeconds != nil {
		out.StopSeconds = *s.WorkStopSeconds
	}
	if s.WorkEnabled != nil {
		out.Enabled = *s.WorkEnabled
	}
	if s.WorkDaysMask != nil {
		out.Days = *s.WorkDaysMask
	}
	return out
}

// applyUpdate merges a decoded frame into the state.
func (s *State) applyUpdate(u Update) {
	if u.PowerOn != nil {
		s.PowerOn = ptr(*u.PowerOn)
	}
	if u.FanOn != nil {
		s.FanOn = ptr(*u.FanOn)
	}
	if u.OilName != nil {
		s.OilName = ptr(*u.OilName)
	}
	if u.ConsumptionMLPerHour != nil {
		s.ConsumptionMLPerHour = ptr(*u.ConsumptionMLPerHour)
	}
	if u.CapacityML != nil {
		s.CapacityML = ptr(*u.CapacityML)
	}
	if u.RemainOilML != nil {
		s.RemainOilML = ptr(*u.RemainOilML)
	}
	if u.Schedule != nil {
		s.applySchedule(*u.Schedule)
	}
	s.deriveLiquidLevel()
}

func (s *State) applySchedule(sc Schedule) {
	s.WorkStart = ptr(sc.Start.String())
	s.WorkEnd = ptr(sc.End.String())
	s.WorkRunSeconds = ptr(sc.RunSeconds)
	s.WorkStopSeconds = ptr(sc.StopSeconds)
	s.WorkEnabled = ptr(sc.Enabled)
	s.WorkDaysMask = ptr(sc.Days)
	s.WorkDaysHuman = ptr(sc.Days.String())
	s.WorkFlagRaw = ptr(sc.Flag())
}

// deriveLiquidLevel recomputes the fill percentage. It leaves the previous
// value in place when capacity or remaining oil is unknown or capacity is 0:
// a level once observed is never reset to unknown, so a zero capacity keeps
// reporting the last good percentage rather than clearing it.
func (s *State) deriveLiquidLevel() {
	if s.CapacityML == nil || s.RemainOilML == nil || *s.CapacityML <= 0 {
		return
	}
	s.LiquidLevelPct = ptr(*s.RemainOilML * 100 / *s.CapacityML) //nolint:mnd // percent
}

func ptr[T any](v T) *T { return &v }
