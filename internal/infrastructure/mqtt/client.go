package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/felshare-bridge/internal/bridges/felshare"
	"github.com/nerrad567/felshare-bridge/internal/infrastructure/config"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// pahoClient is the part of pahomqtt.Client a session uses.
type pahoClient interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
}

// Dialer opens MQTT-over-websocket sessions to the vendor broker. It
// implements felshare.Dialer.
type Dialer struct {
	cfg    config.MQTTConfig
	origin string
	logger Logger

	newClient func(*pahomqtt.ClientOptions) pahoClient
}

// NewDialer creates a Dialer. origin is sent as the websocket Origin
// header; logger may be nil.
func NewDialer(cfg config.MQTTConfig, origin string, logger Logger) *Dialer {
	return &Dialer{
		cfg:    cfg,
		origin: origin,
		logger: logger,
		newClient: func(o *pahomqtt.ClientOptions) pahoClient {
			return pahomqtt.NewClient(o)
		},
	}
}

// Client is one broker session. It implements felshare.Transport.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahoClient
	logger Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// Dial connects with the token in opts and waits for the CONNACK or for
// ctx to end. Failures are *felshare.TransportError; return codes 4 and 5
// are reported as TransportAuthFailure.
func (d *Dialer) Dial(ctx context.Context, opts felshare.DialOptions) (felshare.Transport, error) {
	po := buildClientOptions(d.cfg, d.origin, opts)

	c := &Client{logger: d.logger}
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.markClosed()
		if opts.OnConnectionLost != nil {
			opts.OnConnectionLost(&felshare.TransportError{Kind: felshare.TransportDisconnected, Err: err})
		}
	})

	c.client = d.newClient(po)
	token := c.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return nil, &felshare.TransportError{Kind: felshare.TransportConnectTimeout, Err: ctx.Err()}
	}

	if err := token.Error(); err != nil {
		return nil, classifyConnectError(token, err)
	}
	return c, nil
}

// classifyConnectError maps a failed connect token to a TransportError.
func classifyConnectError(token pahomqtt.Token, err error) error {
	var rc byte
	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		rc = ct.ReturnCode()
	}
	switch {
	case rc == 0 && errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword):
		rc = packets.ErrRefusedBadUsernameOrPassword
	case rc == 0 && errors.Is(err, packets.ErrorRefusedNotAuthorised):
		rc = packets.ErrRefusedNotAuthorised
	}

	kind := felshare.TransportConnectRefused
	if felshare.IsAuthReturnCode(rc) {
		kind = felshare.TransportAuthFailure
	}
	return &felshare.TransportError{Kind: kind, Code: rc, Err: fmt.Errorf("connect: %w", err)}
}

// Disconnect closes the session. It is safe to call more than once.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.markClosed()
		c.client.Disconnect(defaultDisconnectQuiesce)
	})
}

// IsConnected reports whether the session is still open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.client.IsConnectionOpen()
}

func (c *Client) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler felshare.MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil && c.logger != nil {
				c.logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}
