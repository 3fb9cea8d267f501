package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/felshare-bridge/internal/bridges/felshare"
	"github.com/nerrad567/felshare-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds the websocket dial and CONNACK wait when
	// the caller's context carries no deadline.
	defaultConnectTimeout = 15 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive matches the vendor app.
	defaultKeepAlive = 20 * time.Second

	// qos is used for every publish and subscribe; the device protocol has
	// no acknowledgements of its own.
	qos = 0

	tlsMinVersion = tls.VersionTLS12
)

// brokerURL builds "wss://host:port/path".
func brokerURL(cfg config.MQTTConfig) string {
	path := cfg.WSPath
	if path == "" {
		path = "/mqtt"
	}
	return fmt.Sprintf("wss://%s:%d%s", cfg.Host, cfg.Port, path)
}

// buildClientOptions creates paho options for one session.
//
// This configures:
//   - wss broker URL with the Cookie token and Origin headers
//   - the shared device account credentials
//   - clean session with paho's own reconnect disabled (the hub supervises)
//   - TLS 1.2 minimum
func buildClientOptions(cfg config.MQTTConfig, origin string, dial felshare.DialOptions) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(dial.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	headers := http.Header{}
	headers.Set("Cookie", "token="+dial.Token)
	if origin != "" {
		headers.Set("Origin", origin)
	}
	opts.SetHTTPHeaders(headers)

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetWriteTimeout(defaultPublishTimeout)

	keepAlive := defaultKeepAlive
	if cfg.KeepAlive > 0 {
		keepAlive = time.Duration(cfg.KeepAlive) * time.Second
	}
	opts.SetKeepAlive(keepAlive)

	opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	return opts
}
