package felshare

import (
	"fmt"
	"math"
	"strings"
)

// submit queues one command under key. build runs with the lock held and
// returns the frame plus the optimistic state change to apply.
func (h *Hub) submit(key string, build func(cur State) ([]byte, func(*State), error)) error {
	h.mu.Lock()
	if h.session == nil || !h.state.Connected {
		h.mu.Unlock()
		return ErrNotConnected
	}
	payload, apply, err := build(h.state)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	pending := h.outbox.Enqueue(key, payload)
	if apply != nil {
		apply(&h.state)
	}
	snap, obs := h.snapshotLocked(), h.observer
	h.mu.Unlock()

	h.log.Debug("queued command", "key", key, "pending", pending)
	h.notify(obs, snap)
	return nil
}

// SetPower switches the diffuser on or off.
func (h *Hub) SetPower(on bool) error {
	return h.submit(KeyPower, func(State) ([]byte, func(*State), error) {
		return EncodePower(on), func(s *State) { s.PowerOn = ptr(on) }, nil
	})
}

// SetFan switches the fan on or off.
func (h *Hub) SetFan(on bool) error {
	return h.submit(KeyFan, func(State) ([]byte, func(*State), error) {
		return EncodeFan(on), func(s *State) { s.FanOn = ptr(on) }, nil
	})
}

// SetOilName sets the oil label. Names longer than the device stores are
// truncated; the state reflects the truncated name.
func (h *Hub) SetOilName(name string) error {
	name = strings.TrimSpace(name)
	return h.submit(KeyOilName, func(State) ([]byte, func(*State), error) {
		if name == "" {
			return nil, nil, fmt.Errorf("%w: oil name is empty", ErrInvalidInput)
		}
		stored := TruncateOilName(name)
		return EncodeOilName(name), func(s *State) { s.OilName = ptr(stored) }, nil
	})
}

// SetConsumption sets the consumption rate in ml/h.
func (h *Hub) SetConsumption(mlPerHour float64) error {
	return h.submit(KeyConsumption, func(State) ([]byte, func(*State), error) {
		if math.IsNaN(mlPerHour) || math.IsInf(mlPerHour, 0) {
			return nil, nil, fmt.Errorf("%w: consumption %v", ErrInvalidInput, mlPerHour)
		}
		frame, actual := EncodeConsumption(mlPerHour)
		return frame, func(s *State) { s.ConsumptionMLPerHour = ptr(actual) }, nil
	})
}

// SetCapacity sets the reservoir capacity in ml.
//
// A zero capacity is sent as is, but the optimistic update keeps the last
// known LiquidLevelPct because a level is never reset to unknown.
func (h *Hub) SetCapacity(ml int) error {
	return h.submit(KeyCapacity, func(State) ([]byte, func(*State), error) {
		frame, actual := EncodeCapacity(ml)
		return frame, func(s *State) {
			s.CapacityML = ptr(actual)
			s.deriveLiquidLevel()
		}, nil
	})
}

// SetRemainOil sets the remaining oil in ml.
func (h *Hub) SetRemainOil(ml int) error {
	return h.submit(KeyRemainOil, func(State) ([]byte, func(*State), error) {
		frame, actual := EncodeRemainOil(ml)
		return frame, func(s *State) {
			s.RemainOilML = ptr(actual)
			s.deriveLiquidLevel()
		}, nil
	})
}

// SetWorkSchedule merges change into the current schedule and sends the
// complete 0x32 frame. Fields the device has not reported fall back to
// DefaultSchedule.
func (h *Hub) SetWorkSchedule(change ScheduleChange) error {
	return h.submit(KeyWorkSchedule, func(cur State) ([]byte, func(*State), error) {
		sched, err := BuildSchedule(cur.Schedule(), change)
		if err != nil {
			return nil, nil, err
		}
		return EncodeWorkTime(sched), func(s *State) { s.applySchedule(sched) }, nil
	})
}

// SetWorkEnabled enables or disables the schedule.
func (h *Hub) SetWorkEnabled(enabled bool) error {
	return h.SetWorkSchedule(ScheduleChange{Enabled: &enabled})
}

// SetWorkStart sets the schedule start time ("HH:MM").
func (h *Hub) SetWorkStart(hhmm string) error {
	return h.SetWorkSchedule(ScheduleChange{Start: &hhmm})
}

// SetWorkEnd sets the schedule end time ("HH:MM").
func (h *Hub) SetWorkEnd(hhmm string) error {
	return h.SetWorkSchedule(ScheduleChange{End: &hhmm})
}

// SetWorkRunSeconds sets the spray duration of each cycle.
func (h *Hub) SetWorkRunSeconds(seconds int) error {
	return h.SetWorkSchedule(ScheduleChange{RunSeconds: &seconds})
}

// SetWorkStopSeconds sets the pause between sprays.
func (h *Hub) SetWorkStopSeconds(seconds int) error {
	return h.SetWorkSchedule(ScheduleChange{StopSeconds: &seconds})
}

// SetWorkDays sets the active days from text such as "mon,wed,fri".
func (h *Hub) SetWorkDays(days string) error {
	return h.SetWorkSchedule(ScheduleChange{Days: &days})
}

// SetWorkDaysMask sets the active days from a bitmask.
func (h *Hub) SetWorkDaysMask(mask DayMask) error {
	return h.SetWorkSchedule(ScheduleChange{DaysMask: &mask})
}

// RequestStatus queues a status request unless one was sent within the
// minimum interval, in which case it returns nil without sending. A bulk
// request is added when the schedule is incomplete or the bulk interval
// has elapsed.
func (h *Hub) RequestStatus() error {
	h.mu.Lock()
	if h.session == nil || !h.state.Connected {
		h.mu.Unlock()
		return ErrNotConnected
	}
	now := h.now()
	if !h.policy.statusDue(h.state, now) {
		h.mu.Unlock()
		h.log.Debug("status request throttled")
		return nil
	}
	h.outbox.Enqueue(KeyStatusRequest, h.learner.statusRequest())
	h.state.LastStatusRequest = now
	if h.policy.bulkDue(h.state, now) {
		h.outbox.Enqueue(KeyBulkRequest, BulkRequestFrame())
		h.state.LastBulkRequest = now
	}
	snap, obs := h.snapshotLocked(), h.observer
	h.mu.Unlock()

	h.notify(obs, snap)
	return nil
}
