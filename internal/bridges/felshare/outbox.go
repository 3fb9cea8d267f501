package felshare

import (
	"context"
	"sync"
	"time"
)

// outboxPoll bounds every wait inside Next so limiter and cancellation are
// re-checked at least this often.
const outboxPoll = 500 * time.Millisecond

// Command keys. One pending command per key; a newer enqueue replaces it.
const (
	KeyPower         = "power"
	KeyFan           = "fan"
	KeyOilName       = "oil_name"
	KeyConsumption   = "consumption"
	KeyCapacity      = "capacity"
	KeyRemainOil     = "remain_oil"
	KeyWorkSchedule  = "work_schedule"
	KeyStatusRequest = "status_request"
	KeyBulkRequest   = "bulk_request"
)

// Command is a pending outbound frame.
type Command struct {
	Key      string
	Payload  []byte
	Enqueued time.Time

	seq uint64
}

// Outbox is an ordered queue of pending commands coalesced by key.
// Distinct keys leave in enqueue order; re-enqueueing a key replaces its
// payload and moves it to the back.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Outbox struct {
	mu     sync.Mutex
	items  []Command
	seq    uint64
	notify chan struct{}
	now    func() time.Time
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Enqueue adds or replaces the command for key and returns the queue length.
func (o *Outbox) Enqueue(key string, payload []byte) int {
	o.mu.Lock()
	o.seq++
	cmd := Command{Key: key, Payload: payload, Enqueued: o.now(), seq: o.seq}
	o.removeKeyLocked(key)
	o.items = append(o.items, cmd)
	n := len(o.items)
	o.mu.Unlock()

	o.wake()
	return n
}

// Requeue puts a command that failed to send back at the front, unless a
// newer command for the same key arrived in the meantime.
func (o *Outbox) Requeue(cmd Command) {
	o.mu.Lock()
	for _, c := range o.items {
		if c.Key == cmd.Key {
			o.mu.Unlock()
			return
		}
	}
	o.items = append([]Command{cmd}, o.items...)
	o.mu.Unlock()

	o.wake()
}

// Next blocks until a command is queued and limiter allows a send, then
// removes and returns it. The wait re-evaluates after every enqueue and at
// least every 500ms. It returns ctx.Err() when ctx is done.
func (o *Outbox) Next(ctx context.Context, limiter *RateLimiter) (Command, error) {
	timer := time.NewTimer(outboxPoll)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return Command{}, err
		}

		wait := outboxPoll
		o.mu.Lock()
		if len(o.items) > 0 {
			delay := time.Duration(0)
			if limiter != nil {
				delay = limiter.Delay(o.now())
			}
			if delay <= 0 {
				cmd := o.items[0]
				o.items = o.items[1:]
				o.mu.Unlock()
				return cmd, nil
			}
			wait = min(delay, outboxPoll)
		}
		o.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return Command{}, ctx.Err()
		case <-o.notify:
		case <-timer.C:
		}
	}
}

// Len returns the number of pending commands.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Keys returns pending keys in send order.
func (o *Outbox) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, len(o.items))
	for i, c := range o.items {
		keys[i] = c.Key
	}
	return keys
}

// Clear drops every pending command.
func (o *Outbox) Clear() {
	o.mu.Lock()
	o.items = nil
	o.mu.Unlock()
}

func (o *Outbox) removeKeyLocked(key string) {
	for i, c := range o.items {
		if c.Key == key {
			o.items = append(o.items[:i], o.items[i+1:]...)
			return
		}
	}
}

func (o *Outbox) wake() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}
