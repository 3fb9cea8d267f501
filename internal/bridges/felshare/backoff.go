package felshare

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Reconnect backoff parameters.
const (
	loginBackoffBase = 5 * time.Second
	mqttBackoffBase  = 3 * time.Second
	backoffJitter    = 0.2
	backoffFloor     = time.Second

	DefaultMaxBackoff = 900 * time.Second
	MaxBackoffFloor   = 30 * time.Second
	MaxBackoffCeil    = 3600 * time.Second
)

// retryBackoff is a jittered exponential backoff that never stops and never
// returns less than one second or more than its cap.
type retryBackoff struct {
	exp   *backoff.ExponentialBackOff
	cap   time.Duration
	floor time.Duration
}

func newRetryBackoff(base, maxWait time.Duration) *retryBackoff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.RandomizationFactor = backoffJitter
	exp.Multiplier = 2
	exp.MaxInterval = maxWait
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &retryBackoff{exp: exp, cap: maxWait, floor: backoffFloor}
}

// Next returns the next sleep and advances the sequence.
func (r *retryBackoff) Next() time.Duration {
	d := r.exp.NextBackOff()
	if d == backoff.Stop {
		d = r.cap
	}
	return max(r.floor, min(d, r.cap))
}

// Reset returns the sequence to its base interval.
func (r *retryBackoff) Reset() {
	r.exp.Reset()
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
