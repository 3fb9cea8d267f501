package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a settable clock.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestClient(t *testing.T, h http.HandlerFunc, maxBackoff time.Duration) (*Client, *fakeClock, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c, err := New(Config{
		APIBase:    srv.URL + "/",
		Email:      "user@example.com",
		Password:   "secret",
		UserAgent:  "felshare-bridge/test",
		MaxBackoff: maxBackoff,
		Now:        clock.now,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, clock, &calls
}

func TestNew_RequiresBase(t *testing.T) {
	if _, err := New(Config{APIBase: "  "}); err == nil {
		t.Error("New() with empty base should fail")
	}
}

func TestLogin_Success(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/login" {
			t.Errorf("request = %s %s, want POST /login", r.Method, r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "felshare-bridge/test" {
			t.Errorf("User-Agent = %q", ua)
		}
		var body loginRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if body.Username != "user@example.com" || body.Password != "secret" {
			t.Errorf("credentials = %+v", body)
		}
		w.Write([]byte(`{"code":0,"data":{"token":"abc123"}}`)) //nolint:errcheck // test server
	}, 0)

	tok, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if tok != "abc123" {
		t.Errorf("token = %q, want abc123", tok)
	}
}

func TestLogin_MissingToken(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":1,"msg":"bad","data":null}`)) //nolint:errcheck // test server
	}, 0)

	_, err := c.Login(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Login() error = %v, want ErrNetwork", err)
	}
	if c.CooldownRemaining(time.Now()) != 0 {
		t.Error("missing token should not start a cooldown")
	}
}

func TestLogin_RejectedCooldown(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		maxBackoff time.Duration
		want       time.Duration
	}{
		{"401 default backoff", http.StatusUnauthorized, 0, 900 * time.Second},
		{"403 large backoff capped", http.StatusForbidden, 2 * time.Hour, time.Hour},
		{"401 small backoff", http.StatusUnauthorized, 60 * time.Second, 60 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clock, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}, tt.maxBackoff)

			_, err := c.Login(context.Background())
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("Login() error = %v, want ErrRejected", err)
			}
			if got := c.CooldownRemaining(clock.t); got != tt.want {
				t.Errorf("cooldown = %v, want %v", got, tt.want)
			}

			_, err = c.Login(context.Background())
			if !errors.Is(err, ErrCoolingDown) {
				t.Errorf("Login() during cooldown error = %v, want ErrCoolingDown", err)
			}
			if calls.Load() != 1 {
				t.Errorf("server calls = %d, want 1", calls.Load())
			}

			clock.t = clock.t.Add(tt.want)
			if got := c.CooldownRemaining(clock.t); got != 0 {
				t.Errorf("cooldown after expiry = %v", got)
			}
		})
	}
}

func TestLogin_RateLimitCooldown(t *testing.T) {
	httpDate := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC).Format(http.TimeFormat)
	tests := []struct {
		name       string
		retryAfter string
		maxBackoff time.Duration
		want       time.Duration
	}{
		{"no hint", "", 0, 120 * time.Second},
		{"short hint floored", "30", 0, 120 * time.Second},
		{"hint honoured", "200", 0, 200 * time.Second},
		{"long hint capped by backoff", "5000", 0, 900 * time.Second},
		{"cap at least 300s", "5000", 60 * time.Second, 300 * time.Second},
		{"http date", httpDate, 0, 10 * time.Minute},
		{"garbage", "soon", 0, 120 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clock, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(http.StatusTooManyRequests)
			}, tt.maxBackoff)

			_, err := c.Login(context.Background())
			var ae *AuthError
			if !errors.As(err, &ae) || ae.Kind != KindRateLimited {
				t.Fatalf("Login() error = %v, want rate limited", err)
			}
			if ae.RetryAfter != tt.want {
				t.Errorf("RetryAfter = %v, want %v", ae.RetryAfter, tt.want)
			}
			if got := c.CooldownRemaining(clock.t); got != tt.want {
				t.Errorf("cooldown = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogin_ServerErrorIsNetwork(t *testing.T) {
	c, clock, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, 0)

	_, err := c.Login(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Login() error = %v, want ErrNetwork", err)
	}
	if c.CooldownRemaining(clock.t) != 0 {
		t.Error("5xx should not start a cooldown")
	}
}

func TestLogin_Unreachable(t *testing.T) {
	c, err := New(Config{APIBase: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.Login(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Errorf("Login() error = %v, want ErrNetwork", err)
	}
}

func TestListDevices(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/device" || r.Header.Get("token") != "abc123" {
			t.Errorf("request path=%s token=%q", r.URL.Path, r.Header.Get("token"))
		}
		//nolint:errcheck // test server
		w.Write([]byte(`{"data":[
			{"device_id":"FS0001","device_name":" Lobby ","model":"HA-500"},
			{"deviceId":"FS0002","alias":"Office","productName":"HA-300"},
			{"id":12345},
			{"device_name":"orphan"}
		]}`))
	}, 0)

	devices, err := c.ListDevices(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	want := []Device{
		{ID: "FS0001", Name: "Lobby", Model: "HA-500"},
		{ID: "FS0002", Name: "Office", Model: "HA-300"},
		{ID: "12345"},
	}
	if len(devices) != len(want) {
		t.Fatalf("got %d devices, want %d: %+v", len(devices), len(want), devices)
	}
	for i, w := range want {
		d := devices[i]
		if d.ID != w.ID || d.Name != w.Name || d.Model != w.Model {
			t.Errorf("device %d = %+v, want %+v", i, d, w)
		}
		if d.Raw == nil {
			t.Errorf("device %d has no raw fields", i)
		}
	}
}

func TestListDevices_NotAList(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":{"msg":"token expired"}}`)) //nolint:errcheck // test server
	}, 0)

	if _, err := c.ListDevices(context.Background(), "x"); !errors.Is(err, ErrNetwork) {
		t.Errorf("ListDevices() error = %v, want ErrNetwork", err)
	}
}
