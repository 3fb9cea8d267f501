package felshare

import (
	"context"
	"fmt"
	"time"
)

// Broker topics for one device.
const (
	rxdTopicFmt = "/device/rxd/%s"
	txdTopicFmt = "/device/txd/%s"
)

// RXDTopic is where the device publishes its frames.
func RXDTopic(deviceID string) string { return fmt.Sprintf(rxdTopicFmt, deviceID) }

// TXDTopic is where commands for the device are published.
func TXDTopic(deviceID string) string { return fmt.Sprintf(txdTopicFmt, deviceID) }

// ClientID builds the MQTT client id "{device}{suffix}ha_{instance[:6]}".
// The instance part keeps this bridge's session from colliding with the
// companion app's.
func ClientID(deviceID, suffix, instance string) string {
	if len(instance) > 6 { //nolint:mnd // disambiguator length
		instance = instance[:6]
	}
	return deviceID + suffix + "ha_" + instance
}

// MessageHandler receives one broker message. It runs on the transport's
// delivery goroutine and must not block.
type MessageHandler func(topic string, payload []byte)

// Transport is one live broker session.
type Transport interface {
	Subscribe(topic string, handler MessageHandler) error
	Publish(topic string, payload []byte) error
	// Disconnect closes the session and releases its resources. It is safe
	// to call more than once.
	Disconnect()
}

// DialOptions describe the session to open.
type DialOptions struct {
	ClientID string
	Token    string

	// OnConnectionLost is called at most once when an established session
	// drops. It must not block.
	OnConnectionLost func(err error)
}

// Dialer opens broker sessions. Dial must honour ctx's deadline and
// return a *TransportError describing any failure.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (Transport, error)
}

// Authenticator obtains cloud session tokens.
type Authenticator interface {
	Login(ctx context.Context) (string, error)
	// CooldownRemaining reports how long logins are blocked from now.
	CooldownRemaining(now time.Time) time.Duration
}

// SyncRepository persists the learned sync payload per device.
type SyncRepository interface {
	// LoadSyncPayload returns nil and no error when nothing is stored.
	LoadSyncPayload(ctx context.Context, deviceID string) ([]byte, error)
	SaveSyncPayload(ctx context.Context, deviceID string, payload []byte) error
}

// Observer receives a state snapshot after every change. It may be called
// from several goroutines and must not block.
type Observer func(State)

// Logger is the logging surface the hub needs. *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
