// Package mqtt opens sessions to the Felshare cloud broker for the hub.
//
// The broker speaks MQTT over secure websockets. Every session carries:
//   - the shared device account username and password
//   - a Cookie header "token=<session token>" from the cloud login
//   - an Origin header matching the vendor web app
//
// paho's own reconnect is disabled: when a session drops the hub decides
// whether to reconnect with the same token or log in again, and a fresh
// session is dialled.
//
// # Usage
//
//	dialer := mqtt.NewDialer(cfg.MQTT, cfg.Cloud.FrontURL, logger)
//	hub, err := felshare.New(felshare.Options{Dialer: dialer, ...})
//
// Connect failures are *felshare.TransportError values. CONNACK return
// codes 4 and 5 become TransportAuthFailure so the hub forces a relogin.
package mqtt
