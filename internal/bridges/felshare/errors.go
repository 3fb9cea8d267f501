package felshare

import (
	"errors"
	"fmt"
)

// Domain errors for the Felshare bridge package.
var (
	// ErrNotConnected is returned by command methods while the hub has no
	// live broker session. Commands are never queued while offline.
	ErrNotConnected = errors.New("felshare: not connected")

	// ErrInvalidInput is returned when a command argument or day/time token
	// cannot be interpreted.
	ErrInvalidInput = errors.New("felshare: invalid input")

	// ErrMalformedFrame is returned by DecodeFrame for truncated or
	// out-of-range frames. The hub records and discards them.
	ErrMalformedFrame = errors.New("felshare: malformed frame")

	// ErrUnknownOpcode is returned by DecodeFrame for opcodes it does not
	// understand.
	ErrUnknownOpcode = errors.New("felshare: unknown opcode")

	// ErrAlreadyStarted is returned by Start when the hub is running.
	ErrAlreadyStarted = errors.New("felshare: hub already started")

	// Transport failure classes. TransportError matches these with errors.Is.
	ErrTransportAuth  = errors.New("felshare: broker rejected credentials")
	ErrConnectTimeout = errors.New("felshare: broker connect timed out")
	ErrConnectRefused = errors.New("felshare: broker connect failed")
	ErrDisconnected   = errors.New("felshare: broker connection lost")
)

// TransportErrorKind classifies a transport failure for the supervisor.
type TransportErrorKind int

const (
	// TransportConnectRefused covers every connect failure that is not an
	// authorisation rejection or a timeout.
	TransportConnectRefused TransportErrorKind = iota
	// TransportAuthFailure means CONNACK return code 4 or 5.
	TransportAuthFailure
	// TransportConnectTimeout means the handshake did not finish in time.
	TransportConnectTimeout
	// TransportDisconnected means an established session dropped.
	TransportDisconnected
)

// String implements fmt.Stringer.
func (k TransportErrorKind) String() string {
	switch k {
	case TransportAuthFailure:
		return "auth_failure"
	case TransportConnectTimeout:
		return "connect_timeout"
	case TransportDisconnected:
		return "disconnected"
	default:
		return "connect_refused"
	}
}

// TransportError is returned by Dialer implementations. Code carries the
// MQTT CONNACK return code when the broker supplied one.
type TransportError struct {
	Kind TransportErrorKind
	Code byte
	Err  error
}

// Error implements error.
func (e *TransportError) Error() string {
	msg := "felshare transport: " + e.Kind.String()
	if e.Code != 0 {
		msg += fmt.Sprintf(" (rc=%d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// Is matches the package sentinel for the error's kind.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransportAuth:
		return e.Kind == TransportAuthFailure
	case ErrConnectTimeout:
		return e.Kind == TransportConnectTimeout
	case ErrConnectRefused:
		return e.Kind == TransportConnectRefused
	case ErrDisconnected:
		return e.Kind == TransportDisconnected
	}
	return false
}

// IsAuthReturnCode reports whether an MQTT CONNACK return code means the
// credentials were refused (4: bad username or password, 5: not authorised).
func IsAuthReturnCode(rc byte) bool {
	return rc == 4 || rc == 5 //nolint:mnd // MQTT 3.1.1 return codes
}
