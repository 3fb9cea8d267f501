package felshare

import "time"

// Request throttling defaults and bounds.
const (
	DefaultStatusMinInterval = 60 * time.Second
	StatusMinIntervalFloor   = 10 * time.Second
	StatusMinIntervalCeil    = 3600 * time.Second

	DefaultBulkInterval = 6 * time.Hour
	BulkIntervalFloor   = time.Hour
	BulkIntervalCeil    = 72 * time.Hour

	DefaultStartupStale = 30 * time.Minute
	StartupStaleFloor   = time.Minute
	StartupStaleCeil    = 1440 * time.Minute

	DefaultPollInterval = 30 * time.Minute
)

// requestPolicy decides when status and bulk requests may be sent.
type requestPolicy struct {
	statusMin    time.Duration
	bulkInterval time.Duration
	startupStale time.Duration
}

// statusDue reports whether a status request is allowed now.
func (p requestPolicy) statusDue(s State, now time.Time) bool {
	return s.LastStatusRequest.IsZero() || now.Sub(s.LastStatusRequest) >= p.statusMin
}

// bulkDue reports whether a bulk request should accompany a status request.
// An incomplete schedule always makes it due.
func (p requestPolicy) bulkDue(s State, now time.Time) bool {
	if !s.ScheduleKnown() {
		return true
	}
	return s.LastBulkRequest.IsZero() || now.Sub(s.LastBulkRequest) >= p.bulkInterval
}

// startupBurst reports whether a fresh connection should request status
// and bulk settings. Reconnects with recent, populated state stay silent.
func (p requestPolicy) startupBurst(s State, now time.Time) bool {
	if s.LastSeen.IsZero() || s.CoreUnknown() {
		return true
	}
	return now.Sub(s.LastSeen) > p.startupStale
}

func clampDuration(d, def, lo, hi time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return max(lo, min(d, hi))
}
