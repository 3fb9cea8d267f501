package cloud

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels matched by AuthError.Is.
var (
	// ErrRejected means the cloud refused the credentials (HTTP 401/403).
	ErrRejected = errors.New("cloud: login rejected")

	// ErrRateLimited means the cloud answered HTTP 429.
	ErrRateLimited = errors.New("cloud: rate limited")

	// ErrNetwork covers transport errors, unexpected statuses and
	// unreadable responses.
	ErrNetwork = errors.New("cloud: request failed")

	// ErrCoolingDown is returned without contacting the cloud while a
	// rejection or rate-limit cooldown is active.
	ErrCoolingDown = errors.New("cloud: login cooling down")
)

// AuthErrorKind classifies a failed cloud call.
type AuthErrorKind int

// Error kinds.
const (
	KindNetwork AuthErrorKind = iota
	KindRejected
	KindRateLimited
	KindCoolingDown
)

func (k AuthErrorKind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindRateLimited:
		return "rate_limited"
	case KindCoolingDown:
		return "cooling_down"
	default:
		return "network"
	}
}

// AuthError describes a failed login or device listing.
type AuthError struct {
	Kind       AuthErrorKind
	StatusCode int
	// RetryAfter is the cooldown applied because of this error, if any.
	RetryAfter time.Duration
	Err        error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("cloud %s", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry in %s", e.RetryAfter.Round(time.Second))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches the package sentinels by kind.
func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrCoolingDown:
		return e.Kind == KindCoolingDown
	}
	return false
}
