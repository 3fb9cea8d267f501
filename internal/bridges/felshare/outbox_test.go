package felshare

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestOutbox_Coalescing(t *testing.T) {
	o := NewOutbox()
	o.Enqueue(KeyPower, []byte("A"))
	o.Enqueue(KeyFan, []byte("F"))
	o.Enqueue(KeyPower, []byte("B"))

	if got, want := o.Keys(), []string{KeyFan, KeyPower}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := o.Next(ctx, nil)
	if err != nil || first.Key != KeyFan {
		t.Fatalf("first Next() = %+v, %v; want fan", first, err)
	}
	second, err := o.Next(ctx, nil)
	if err != nil || second.Key != KeyPower || !bytes.Equal(second.Payload, []byte("B")) {
		t.Fatalf("second Next() = %+v, %v; want power B", second, err)
	}
	if o.Len() != 0 {
		t.Errorf("Len() = %d, want 0", o.Len())
	}
}

func TestOutbox_RequeueFront(t *testing.T) {
	o := NewOutbox()
	o.Enqueue(KeyPower, []byte{1})
	o.Enqueue(KeyFan, []byte{2})

	ctx := context.Background()
	cmd, err := o.Next(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	o.Requeue(cmd)
	if got := o.Keys(); !reflect.DeepEqual(got, []string{KeyPower, KeyFan}) {
		t.Errorf("Keys() after requeue = %v, want [power fan]", got)
	}
}

func TestOutbox_RequeueDroppedWhenSuperseded(t *testing.T) {
	o := NewOutbox()
	o.Enqueue(KeyPower, []byte{0})
	cmd, err := o.Next(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	o.Enqueue(KeyPower, []byte{1})
	o.Requeue(cmd)

	if o.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", o.Len())
	}
	next, _ := o.Next(context.Background(), nil)
	if !bytes.Equal(next.Payload, []byte{1}) {
		t.Errorf("payload = %v, want newer [1]", next.Payload)
	}
}

func TestOutbox_NextCancelled(t *testing.T) {
	o := NewOutbox()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Next(ctx, nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Next() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next() did not return after cancel")
	}
}

func TestOutbox_NextWakesOnEnqueue(t *testing.T) {
	o := NewOutbox()
	got := make(chan Command, 1)
	go func() {
		cmd, _ := o.Next(context.Background(), nil)
		got <- cmd
	}()

	time.Sleep(20 * time.Millisecond)
	o.Enqueue(KeyStatusRequest, StatusRequestFrame())

	select {
	case cmd := <-got:
		if cmd.Key != KeyStatusRequest {
			t.Errorf("Key = %q, want status_request", cmd.Key)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("Next() did not wake on enqueue")
	}
}

func TestOutbox_NextHonoursLimiter(t *testing.T) {
	o := NewOutbox()
	limiter := NewRateLimiter(200*time.Millisecond, 3)
	for _, k := range []string{KeyPower, KeyFan, KeyOilName, KeyCapacity} {
		o.Enqueue(k, []byte{0})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var sent []time.Time
	for i := 0; i < 4; i++ {
		if _, err := o.Next(ctx, limiter); err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		now := time.Now()
		limiter.Record(now)
		sent = append(sent, now)
	}

	for i := 1; i < len(sent); i++ {
		if gap := sent[i].Sub(sent[i-1]); gap < 190*time.Millisecond {
			t.Errorf("gap %d = %v, want >= 200ms", i, gap)
		}
	}
}

func TestOutbox_Clear(t *testing.T) {
	o := NewOutbox()
	o.Enqueue(KeyPower, []byte{1})
	o.Enqueue(KeyFan, []byte{1})
	o.Clear()
	if o.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", o.Len())
	}
}
