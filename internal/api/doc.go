// Package api implements the local HTTP API and state stream of the Felshare bridge.
//
// This package provides:
//   - GET /api/v1/state with the hub snapshot and an "available" flag
//   - PUT endpoints for the diffuser commands (power, fan, oil, schedule)
//   - POST /api/v1/status-request to ask the device for fresh readings
//   - GET /api/v1/ws, a WebSocket pushing every state change
//
// # Security
//
// With security.jwt.secret set, every route except /health requires a
// bearer token minted by the "token" command. Viewer tokens may read,
// operator tokens may also send commands. WebSocket clients may pass the
// token as the "token" query parameter. Without a secret the API is open
// and config validation only allows that on loopback.
//
// # Errors
//
// Commands answer 503 not_connected while the MQTT session is down and
// 400 validation_error for rejected input. Accepted commands answer 202:
// they are queued behind the publish rate limiter, not yet confirmed by
// the device.
package api
