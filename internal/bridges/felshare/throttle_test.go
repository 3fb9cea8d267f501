package felshare

import (
	"testing"
	"time"
)

func TestRequestPolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := requestPolicy{statusMin: time.Minute, bulkInterval: 6 * time.Hour, startupStale: 30 * time.Minute}

	known := State{PowerOn: ptr(true)}
	known.applySchedule(DefaultSchedule())

	t.Run("status due", func(t *testing.T) {
		if !p.statusDue(State{}, now) {
			t.Error("never requested should be due")
		}
		s := State{LastStatusRequest: now.Add(-30 * time.Second)}
		if p.statusDue(s, now) {
			t.Error("30s ago should be throttled")
		}
		s.LastStatusRequest = now.Add(-time.Minute)
		if !p.statusDue(s, now) {
			t.Error("exactly the interval ago should be due")
		}
	})

	t.Run("bulk due", func(t *testing.T) {
		s := known
		s.LastBulkRequest = now.Add(-time.Hour)
		if p.bulkDue(s, now) {
			t.Error("recent bulk with known schedule should not be due")
		}
		s.LastBulkRequest = now.Add(-7 * time.Hour)
		if !p.bulkDue(s, now) {
			t.Error("old bulk should be due")
		}
		if !p.bulkDue(State{LastBulkRequest: now}, now) {
			t.Error("unknown schedule should always be due")
		}
	})

	t.Run("startup burst", func(t *testing.T) {
		if !p.startupBurst(State{}, now) {
			t.Error("never seen should burst")
		}
		s := known
		s.LastSeen = now.Add(-time.Minute)
		if p.startupBurst(s, now) {
			t.Error("fresh populated state should not burst")
		}
		s.LastSeen = now.Add(-31 * time.Minute)
		if !p.startupBurst(s, now) {
			t.Error("stale state should burst")
		}
		if !p.startupBurst(State{LastSeen: now}, now) {
			t.Error("unknown core readings should burst")
		}
	})
}

func TestClampDuration(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, time.Minute},
		{-time.Second, time.Minute},
		{time.Second, 10 * time.Second},
		{2 * time.Minute, 2 * time.Minute},
		{2 * time.Hour, time.Hour},
	}
	for _, tt := range tests {
		if got := clampDuration(tt.in, time.Minute, 10*time.Second, time.Hour); got != tt.want {
			t.Errorf("clampDuration(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
