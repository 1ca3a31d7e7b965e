package transport

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/appliance-link/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish/subscribe acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// clientIDSuffixLen is the length of the random client ID suffix.
	clientIDSuffixLen = 8

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from broker config.
//
// This configures:
//   - Broker URL (tcp:// for local, ssl:// for TLS or cloud-routed brokers)
//   - Unique client ID (configured prefix + random suffix, so a stale
//     session on the appliance's broker never kicks the new one)
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff
//   - Clean session mode
func buildClientOptions(cfg config.BrokerConfig, creds config.CredentialsConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(clientID(cfg.ClientID))

	if creds.Username != "" {
		opts.SetUsername(creds.Username)
		opts.SetPassword(creds.Password)
	}

	// Clean session - appliance brokers resend full state after every
	// connect anyway, so a persistent session buys nothing.
	opts.SetCleanSession(true)

	// Auto-reconnect with exponential backoff. The reconnect policy
	// lives here, not in the link layer.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if useTLS(cfg) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// brokerURL builds the connection URL for the configured broker variant.
func brokerURL(cfg config.BrokerConfig) string {
	scheme := "tcp"
	if useTLS(cfg) {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
}

// useTLS reports whether the connection requires TLS.
// Cloud-routed brokers always use TLS regardless of the tls flag.
func useTLS(cfg config.BrokerConfig) bool {
	return cfg.TLS || cfg.Cloud
}

// clientID appends a random suffix to the configured client ID prefix.
func clientID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:clientIDSuffixLen]
}
