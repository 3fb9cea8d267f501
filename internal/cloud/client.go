package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultRequestTimeout = 20 * time.Second
	maxResponseBytes      = 1 << 20

	rejectCooldownCap = time.Hour
	rateLimitFloor    = 120 * time.Second
	rateLimitCapFloor = 300 * time.Second
	defaultMaxBackoff = 900 * time.Second
	defaultUserAgent  = "felshare-bridge"

	loginPath         = "/login"
	devicesPath       = "/device"
	tokenHeader       = "token"
	contentTypeJSON   = "application/json"
	headerRetryAfter  = "Retry-After"
	headerUserAgent   = "User-Agent"
	headerAccept      = "Accept"
	headerContentType = "Content-Type"
)

// Config configures a Client.
type Config struct {
	// APIBase is the cloud API root, e.g. "http://app.felsharegroup.com:7001".
	APIBase  string
	Email    string
	Password string

	// UserAgent is sent on every request. Defaults to "felshare-bridge".
	UserAgent string

	// MaxBackoff scales the rejection and rate-limit cooldowns.
	MaxBackoff time.Duration

	// HTTPClient overrides the default client (20s timeout).
	HTTPClient *http.Client

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Client logs in to the vendor cloud and remembers login cooldowns so a
// rejected or rate-limited account is not hammered.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	base       string
	email      string
	password   string
	userAgent  string
	maxBackoff time.Duration
	http       *http.Client
	now        func() time.Time

	mu            sync.Mutex
	cooldownUntil time.Time
}

// Device is one entry of the account's device list.
type Device struct {
	ID    string         `json:"id"`
	Name  string         `json:"name,omitempty"`
	Model string         `json:"model,omitempty"`
	Raw   map[string]any `json:"-"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// New returns a Client for cfg.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base == "" {
		return nil, errors.New("cloud: api base is required")
	}
	c := &Client{
		base:       base,
		email:      cfg.Email,
		password:   cfg.Password,
		userAgent:  cfg.UserAgent,
		maxBackoff: cfg.MaxBackoff,
		http:       cfg.HTTPClient,
		now:        cfg.Now,
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.maxBackoff <= 0 {
		c.maxBackoff = defaultMaxBackoff
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultRequestTimeout}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// CooldownRemaining reports how long logins stay blocked after now.
func (c *Client) CooldownRemaining(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return max(c.cooldownUntil.Sub(now), 0)
}

// Login posts the account credentials and returns the session token.
// During a cooldown it fails with ErrCoolingDown without any request.
func (c *Client) Login(ctx context.Context) (string, error) {
	if wait := c.CooldownRemaining(c.now()); wait > 0 {
		return "", &AuthError{Kind: KindCoolingDown, RetryAfter: wait}
	}

	body, err := json.Marshal(loginRequest{Username: c.email, Password: c.password})
	if err != nil {
		return "", &AuthError{Kind: KindNetwork, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+loginPath, bytes.NewReader(body))
	if err != nil {
		return "", &AuthError{Kind: KindNetwork, Err: err}
	}
	req.Header.Set(headerContentType, contentTypeJSON)

	data, err := c.do(req)
	if err != nil {
		return "", err
	}

	var payload struct {
		Token string `json:"token"`
	}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &payload); err != nil {
			return "", &AuthError{Kind: KindNetwork, Err: fmt.Errorf("decoding login data: %w", err)}
		}
	}
	if payload.Token == "" {
		return "", &AuthError{Kind: KindNetwork, Err: errors.New("login response carried no token")}
	}
	return payload.Token, nil
}

// ListDevices returns the devices bound to the account owning token.
func (c *Client) ListDevices(ctx context.Context, token string) ([]Device, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+devicesPath, nil)
	if err != nil {
		return nil, &AuthError{Kind: KindNetwork, Err: err}
	}
	req.Header.Set(tokenHeader, token)

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &AuthError{Kind: KindNetwork, Err: fmt.Errorf("device list is not an array: %w", err)}
	}

	devices := make([]Device, 0, len(raw))
	for _, d := range raw {
		id := pick(d, "device_id", "deviceId", "devId", "id", "name")
		if id == "" {
			continue
		}
		devices = append(devices, Device{
			ID:    id,
			Name:  pick(d, "device_name", "deviceName", "alias", "nickName", "name"),
			Model: pick(d, "model", "product", "productName", "product_name", "type"),
			Raw:   d,
		})
	}
	return devices, nil
}

// do sends req and returns the envelope's data field. Error statuses are
// classified and may start a cooldown.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set(headerAccept, contentTypeJSON)
	req.Header.Set(headerUserAgent, c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &AuthError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &AuthError{Kind: KindNetwork, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		wait := min(rejectCooldownCap, c.maxBackoff)
		c.startCooldown(wait)
		return nil, &AuthError{Kind: KindRejected, StatusCode: resp.StatusCode, RetryAfter: wait}
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := c.rateLimitCooldown(resp.Header.Get(headerRetryAfter))
		c.startCooldown(wait)
		return nil, &AuthError{Kind: KindRateLimited, StatusCode: resp.StatusCode, RetryAfter: wait}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &AuthError{Kind: KindNetwork, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", resp.Status)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &AuthError{Kind: KindNetwork, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return env.Data, nil
}

// rateLimitCooldown turns a Retry-After header (seconds or HTTP date) into
// a cooldown of at least two minutes.
func (c *Client) rateLimitCooldown(header string) time.Duration {
	ceiling := max(rateLimitCapFloor, c.maxBackoff)
	wait := rateLimitFloor
	if hint, ok := parseRetryAfter(header, c.now()); ok {
		wait = hint
	}
	return min(max(wait, rateLimitFloor), ceiling)
}

func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(at.Sub(now), 0), true
	}
	return 0, false
}

// startCooldown extends the cooldown to now+d; it never shortens one.
func (c *Client) startCooldown(d time.Duration) {
	until := c.now().Add(d)
	c.mu.Lock()
	defer c.mu.Unlock()
	if until.After(c.cooldownUntil) {
		c.cooldownUntil = until
	}
}

// pick returns the first non-empty value among keys, formatted as text.
func pick(d map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := d[k].(type) {
		case nil:
			continue
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}
