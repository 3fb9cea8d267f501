package felshare

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Supervisor bounds.
const (
	loginTimeout    = 20 * time.Second
	connectTimeout  = 15 * time.Second
	persistTimeout  = 5 * time.Second
	maxMQTTFailures = 3
	persistQueueLen = 4

	// DefaultClientIDSuffix is appended to the device id in the client id.
	DefaultClientIDSuffix = "40"
)

// Options configure a Hub. Zero durations and counts take their defaults;
// values outside the supported ranges are clamped.
type Options struct {
	DeviceID string

	// ClientID is the MQTT client id. When empty one is derived from the
	// device id and a random instance tag.
	ClientID string

	Auth       Authenticator
	Dialer     Dialer
	Repository SyncRepository // optional
	Logger     Logger         // optional

	MaxBackoff         time.Duration
	MinPublishInterval time.Duration
	MaxBurst           int
	StatusMinInterval  time.Duration
	BulkInterval       time.Duration
	StartupStale       time.Duration

	// PollInterval triggers RequestStatus periodically while connected.
	// Zero disables polling.
	PollInterval time.Duration

	EnableTXDLearning bool
	LearningWindow    time.Duration

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Hub manages the cloud session for one diffuser: it logs in, keeps the
// broker connection alive, decodes device frames into State and sends
// commands through a coalescing, rate-limited outbox.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Hub struct {
	deviceID string
	clientID string
	rxdTopic string
	txdTopic string

	auth   Authenticator
	dialer Dialer
	repo   SyncRepository
	log    Logger
	now    func() time.Time

	policy       requestPolicy
	pollInterval time.Duration

	limiter      *RateLimiter
	outbox       *Outbox
	loginBackoff *retryBackoff
	mqttBackoff  *retryBackoff

	// mu guards state, token, session, learner, mqttFailures and observer.
	mu           sync.Mutex
	state        State
	token        string
	session      *session
	learner      *syncLearner
	mqttFailures int
	observer     Observer

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	persist chan []byte
}

// session is one broker connection.
type session struct {
	transport Transport
	lost      chan struct{}
	once      sync.Once
	err       error
}

func newSession() *session {
	return &session{lost: make(chan struct{})}
}

// markLost records why the session ended and wakes the supervisor.
func (s *session) markLost(err error) {
	s.once.Do(func() {
		if err == nil {
			err = &TransportError{Kind: TransportDisconnected}
		}
		s.err = err
		close(s.lost)
	})
}

// New validates opts and returns a stopped hub.
func New(opts Options) (*Hub, error) {
	if opts.DeviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrInvalidInput)
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("%w: authenticator is required", ErrInvalidInput)
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrInvalidInput)
	}

	h := &Hub{
		deviceID: opts.DeviceID,
		clientID: opts.ClientID,
		rxdTopic: RXDTopic(opts.DeviceID),
		txdTopic: TXDTopic(opts.DeviceID),
		auth:     opts.Auth,
		dialer:   opts.Dialer,
		repo:     opts.Repository,
		log:      opts.Logger,
		now:      opts.Now,
		policy: requestPolicy{
			statusMin:    clampDuration(opts.StatusMinInterval, DefaultStatusMinInterval, StatusMinIntervalFloor, StatusMinIntervalCeil),
			bulkInterval: clampDuration(opts.BulkInterval, DefaultBulkInterval, BulkIntervalFloor, BulkIntervalCeil),
			startupStale: clampDuration(opts.StartupStale, DefaultStartupStale, StartupStaleFloor, StartupStaleCeil),
		},
		pollInterval: max(opts.PollInterval, 0),
		outbox:       NewOutbox(),
		learner:      newSyncLearner(opts.EnableTXDLearning, opts.LearningWindow),
		state:        State{DeviceID: opts.DeviceID, Phase: PhaseStopped},
	}
	if h.clientID == "" {
		h.clientID = ClientID(opts.DeviceID, DefaultClientIDSuffix, uuid.NewString())
	}
	if h.log == nil {
		h.log = nopLogger{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.outbox.now = h.now

	minInterval := opts.MinPublishInterval
	if minInterval <= 0 {
		minInterval = DefaultMinPublishInterval
	}
	burst := opts.MaxBurst
	if burst <= 0 {
		burst = DefaultMaxBurst
	}
	h.limiter = NewRateLimiter(minInterval, burst)

	maxBackoff := clampDuration(opts.MaxBackoff, DefaultMaxBackoff, MaxBackoffFloor, MaxBackoffCeil)
	h.loginBackoff = newRetryBackoff(loginBackoffBase, maxBackoff)
	h.mqttBackoff = newRetryBackoff(mqttBackoffBase, maxBackoff)

	return h, nil
}

// DeviceID returns the managed device id.
func (h *Hub) DeviceID() string { return h.deviceID }

// ClientID returns the MQTT client id used for broker sessions.
func (h *Hub) ClientID() string { return h.clientID }

// Start loads any stored sync payload and launches the supervisor. The hub
// runs until Stop is called or ctx is cancelled. observer may be nil.
func (h *Hub) Start(ctx context.Context, observer Observer) error {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	if h.cancel != nil {
		return ErrAlreadyStarted
	}

	var stored []byte
	if h.repo != nil {
		payload, err := h.repo.LoadSyncPayload(ctx, h.deviceID)
		if err != nil {
			h.log.Warn("loading sync payload failed", "error", err)
		}
		stored = payload
	}

	h.mu.Lock()
	h.observer = observer
	if len(stored) > 0 {
		h.learner.payload = bytes.Clone(stored)
		h.state.SyncPayloadKnown = true
	}
	h.state.Phase = PhaseNeedLogin
	h.mu.Unlock()

	h.loginBackoff.Reset()
	h.mqttBackoff.Reset()

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.persist = make(chan []byte, persistQueueLen)

	h.wg.Add(2) //nolint:mnd // supervisor + persister
	go func() {
		defer h.wg.Done()
		h.run(runCtx)
	}()
	go func() {
		defer h.wg.Done()
		h.persistLoop(runCtx, h.persist)
	}()

	h.log.Info("hub started", "device_id", h.deviceID, "client_id", h.clientID,
		"txd_learning", h.learner.enabled, "sync_payload", len(stored) > 0)
	return nil
}

// Stop cancels the supervisor, waits for the broker session to be torn
// down and drops any pending commands. It is safe to call on a stopped hub.
func (h *Hub) Stop() {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	if h.cancel == nil {
		return
	}
	h.cancel()
	h.wg.Wait()
	h.cancel = nil
	h.outbox.Clear()

	h.mu.Lock()
	h.state.Connected = false
	h.state.Phase = PhaseStopped
	snap, obs := h.snapshotLocked(), h.observer
	h.mu.Unlock()
	h.notify(obs, snap)

	h.log.Info("hub stopped", "device_id", h.deviceID)
}

// State returns a snapshot of the current state.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// run is the supervisor loop.
func (h *Hub) run(ctx context.Context) {
	for ctx.Err() == nil {
		if !h.hasToken() && !h.login(ctx) {
			continue
		}
		h.connectAndServe(ctx)
	}
}

func (h *Hub) hasToken() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token != ""
}

// login obtains a token. It reports false when the caller should loop,
// after having waited out a cooldown or a backoff step.
func (h *Hub) login(ctx context.Context) bool {
	if wait := h.auth.CooldownRemaining(h.now()); wait > 0 {
		until := h.now().Add(wait)
		h.update(func(s *State) {
			s.Phase = PhaseBlocked
			s.LoginCooldownUntil = until
		})
		h.log.Warn("cloud login blocked by cooldown", "retry_in", wait.Round(time.Second))
		_ = sleepCtx(ctx, wait) //nolint:errcheck // loop re-checks ctx
		return false
	}

	h.update(func(s *State) { s.Phase = PhaseNeedLogin })

	lctx, cancel := context.WithTimeout(ctx, loginTimeout)
	token, err := h.auth.Login(lctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		h.recordError(fmt.Errorf("login: %w", err))
		if h.auth.CooldownRemaining(h.now()) > 0 {
			// Blocked on the next pass without consuming a backoff step.
			return false
		}
		d := h.loginBackoff.Next()
		h.log.Warn("cloud login failed", "error", err, "retry_in", d.Round(time.Second))
		_ = sleepCtx(ctx, d) //nolint:errcheck // loop re-checks ctx
		return false
	}

	h.mu.Lock()
	h.token = token
	h.mqttFailures = 0
	h.state.LoginCooldownUntil = time.Time{}
	h.mu.Unlock()

	h.loginBackoff.Reset()
	h.mqttBackoff.Reset()
	h.log.Info("cloud login succeeded")
	return true
}

// connectAndServe runs one connect attempt and, on success, the session
// until it drops. It always ends with a backoff sleep unless ctx is done.
func (h *Hub) connectAndServe(ctx context.Context) {
	h.update(func(s *State) { s.Phase = PhaseConnecting })

	sess, err := h.dial(ctx)
	dialed := err == nil
	if dialed {
		h.mqttBackoff.Reset()
		h.mu.Lock()
		h.mqttFailures = 0
		h.mu.Unlock()
		err = h.serve(ctx, sess)
		h.closeSession(sess)
	}
	if ctx.Err() != nil {
		return
	}

	h.afterSession(err, dialed)

	d := h.mqttBackoff.Next()
	h.log.Info("reconnecting after backoff", "retry_in", d.Round(time.Second))
	_ = sleepCtx(ctx, d) //nolint:errcheck // loop re-checks ctx
}

// afterSession decides whether the next attempt needs a fresh token.
func (h *Hub) afterSession(err error, dialed bool) {
	var te *TransportError
	authFailure := errors.As(err, &te) && te.Kind == TransportAuthFailure

	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case authFailure:
		h.token = ""
		h.mqttFailures = 0
		h.log.Warn("broker rejected credentials; forcing relogin", "rc", te.Code)
	case !dialed:
		h.mqttFailures++
		if h.mqttFailures >= maxMQTTFailures {
			h.token = ""
			h.mqttFailures = 0
			h.log.Warn("repeated broker connect failures; forcing relogin")
		}
	}
	h.state.Phase = PhaseDisconnected
}

// dial opens the broker session and subscribes to the device topics.
func (h *Hub) dial(ctx context.Context) (*session, error) {
	h.mu.Lock()
	token := h.token
	h.mu.Unlock()

	sess := newSession()
	dctx, cancel := context.WithTimeout(ctx, connectTimeout)
	t, err := h.dialer.Dial(dctx, DialOptions{
		ClientID:         h.clientID,
		Token:            token,
		OnConnectionLost: sess.markLost,
	})
	timedOut := errors.Is(dctx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			kind := TransportConnectRefused
			if timedOut {
				kind = TransportConnectTimeout
			}
			err = &TransportError{Kind: kind, Err: err}
		}
		h.recordError(err)
		h.log.Warn("broker connect failed", "error", err)
		return nil, err
	}
	sess.transport = t

	if err := t.Subscribe(h.rxdTopic, h.handleMessage); err != nil {
		t.Disconnect()
		err = &TransportError{Kind: TransportConnectRefused, Err: fmt.Errorf("subscribing %s: %w", h.rxdTopic, err)}
		h.recordError(err)
		return nil, err
	}
	if h.learner.enabled {
		if err := t.Subscribe(h.txdTopic, h.handleMessage); err != nil {
			h.log.Warn("txd subscribe failed; sync learning inactive", "error", err)
		}
	}

	h.mu.Lock()
	h.session = sess
	h.state.Connected = true
	h.state.Phase = PhaseConnected
	h.state.LastError = ""
	snap, obs := h.snapshotLocked(), h.observer
	h.mu.Unlock()
	h.notify(obs, snap)

	h.log.Info("broker connected", "device_id", h.deviceID)
	return sess, nil
}

// serve drains the outbox until the session drops or ctx is done.
func (h *Hub) serve(ctx context.Context, sess *session) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-sess.lost:
			cancel()
		case <-sctx.Done():
		}
	}()

	h.startupRequests()
	if h.pollInterval > 0 {
		go h.pollLoop(sctx)
	}

	for {
		cmd, err := h.outbox.Next(sctx, h.limiter)
		if err != nil {
			select {
			case <-sess.lost:
				h.log.Warn("broker connection lost", "error", sess.err)
				return sess.err
			default:
				return ctx.Err()
			}
		}

		if err := sess.transport.Publish(h.txdTopic, cmd.Payload); err != nil {
			h.outbox.Requeue(cmd)
			h.recordError(fmt.Errorf("publish %s: %w", cmd.Key, err))
			sess.markLost(&TransportError{Kind: TransportDisconnected, Err: err})
			continue
		}
		h.limiter.Record(h.now())
		h.recordSent(cmd)
	}
}

// closeSession disconnects the transport and marks the hub offline.
func (h *Hub) closeSession(sess *session) {
	sess.transport.Disconnect()

	h.mu.Lock()
	if h.session == sess {
		h.session = nil
	}
	h.state.Connected = false
	h.state.Phase = PhaseDisconnected
	snap, obs := h.snapshotLocked(), h.observer
	h.mu.Unlock()
	h.notify(obs, snap)
}

// startupRequests queues the status and bulk requests after a connect
// unless the known state is recent enough.
func (h *Hub) startupRequests() {
	h.mu.Lock()
	now := h.now()
	if !h.policy.startupBurst(h.state, now) {
		h.mu.Unlock()
		h.log.Debug("state is fresh; skipping startup requests")
		return
	}
	h.outbox.Enqueue(KeyStatusRequest, h.learner.statusRequest())
	h.outbox.Enqueue(KeyBulkRequest, BulkRequestFrame())
	h.state.LastStatusRequest = now
	h.state.LastBulkRequest = now
	snap, obs := h.snapshotLocked(), h.observer
	h.mu.Unlock()
	h.notify(obs, snap)
}

func (h *Hub) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.RequestStatus(); err != nil && !errors.Is(err, ErrNotConnected) {
				h.log.Debug("poll request failed", "error", err)
			}
		}
	}
}

// handleMessage runs on the transport's delivery goroutine.
func (h *Hub) handleMessage(topic string, payload []byte) {
	now := h.now()

	h.mu.Lock()
	if topic == h.txdTopic {
		h.learner.observeTXD(payload, now)
		h.mu.Unlock()
		return
	}
	if topic != h.rxdTopic {
		h.mu.Unlock()
		return
	}

	u, err := DecodeFrame(payload)
	var learned []byte
	empty := false
	switch {
	case errors.Is(err, ErrMalformedFrame):
		h.state.MalformedFrames++
		h.state.LastError = err.Error()
	case err != nil:
		// Unknown opcode: the device is alive but nothing to apply.
		h.state.LastSeen = now
		h.state.LastTopic = topic
		h.state.LastPayload = bytes.Clone(payload)
	default:
		h.state.LastSeen = now
		h.state.LastTopic = topic
		h.state.LastPayload = bytes.Clone(payload)
		if u.Opcode == OpStatus {
			if learned = h.learner.observeStatus(now); learned != nil {
				h.state.SyncPayloadKnown = true
			}
		}
		h.state.applyUpdate(u)
		empty = u.Empty()
	}
	snap, obs := h.snapshotLocked(), h.observer
	h.mu.Unlock()

	switch {
	case err != nil:
		h.log.Debug("discarded device frame", "error", err, "payload", fmt.Sprintf("% x", payload))
	case empty:
		h.log.Debug("device frame carried no valid readings", "payload", fmt.Sprintf("% x", payload))
	}
	if learned != nil {
		h.log.Info("learned sync payload", "payload", fmt.Sprintf("% x", learned))
		h.queuePersist(learned)
	}
	h.notify(obs, snap)
}

func (h *Hub) queuePersist(payload []byte) {
	if h.repo == nil {
		return
	}
	select {
	case h.persist <- payload:
	default:
		h.log.Warn("sync payload persistence queue full; dropping")
	}
}

// persistLoop saves learned payloads off the delivery goroutine.
func (h *Hub) persistLoop(ctx context.Context, in <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-in:
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
			if err := h.repo.SaveSyncPayload(sctx, h.deviceID, payload); err != nil {
				h.log.Warn("saving sync payload failed", "error", err)
			}
			cancel()
		}
	}
}

func (h *Hub) recordSent(cmd Command) {
	now := h.now()
	h.mu.Lock()
	h.state.LastPublish = now
	h.state.LastTxKey = cmd.Key
	h.state.LastTxPayload = cmd.Payload
	snap, obs := h.snapshotLocked(), h.observer
	h.mu.Unlock()

	h.log.Debug("published command", "key", cmd.Key, "payload", fmt.Sprintf("% x", cmd.Payload))
	h.notify(obs, snap)
}

func (h *Hub) recordError(err error) {
	h.update(func(s *State) { s.LastError = err.Error() })
}

// update applies fn under the lock and notifies the observer.
func (h *Hub) update(fn func(*State)) {
	h.mu.Lock()
	fn(&h.state)
	snap, obs := h.snapshotLocked(), h.observer
	h.mu.Unlock()
	h.notify(obs, snap)
}

// snapshotLocked copies the state. Caller holds mu.
func (h *Hub) snapshotLocked() State {
	s := h.state
	s.OutboxLen = h.outbox.Len()
	s.OutboxKeys = h.outbox.Keys()
	return s
}

func (h *Hub) notify(obs Observer, snap State) {
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("state observer panicked", "panic", r)
		}
	}()
	obs(snap)
}
