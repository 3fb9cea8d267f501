// Package felshare bridges a Felshare aromatherapy diffuser through the
// vendor cloud.
//
// The device talks to the cloud MQTT broker on two topics:
//
//	/device/rxd/{id}   device -> cloud (state frames)
//	/device/txd/{id}   cloud -> device (commands)
//
// Frames are raw bytes whose first byte is an opcode (see frame.go). A Hub
// owns one device: it logs in through an Authenticator, opens broker
// sessions through a Dialer, decodes rxd frames into State, and sends
// commands through an Outbox that keeps one pending frame per setting and
// paces sends with a RateLimiter.
//
// # Session lifecycle
//
//	need_login -> connecting -> connected -> disconnected -> connecting ...
//	     |                                        |
//	     +--> blocked (cloud cooldown)            +--> need_login (rc 4/5 or 3 failures)
//
// Login and broker retries use jittered exponential backoff. Commands
// issued while no session is up fail with ErrNotConnected; commands
// already queued survive reconnects and are dropped only by Stop.
//
// # Sync learning
//
// Some firmware answers a status request only when it comes as the
// companion app's own request frame. With EnableTXDLearning the hub also
// watches txd; a frame it does not recognise that is followed by a status
// reply is stored through SyncRepository and used for later requests.
package felshare
