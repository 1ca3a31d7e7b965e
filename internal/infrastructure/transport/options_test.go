package transport

import (
	"strings"
	"testing"

	"github.com/nerrad567/appliance-link/internal/infrastructure/config"
)

func testBrokerConfig() config.BrokerConfig {
	return config.BrokerConfig{
		Host:     "192.168.1.50",
		Port:     1883,
		ClientID: "appliancelink",
		Reconnect: config.ReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}
}

func TestBrokerURLLocal(t *testing.T) {
	url := brokerURL(testBrokerConfig())
	if url != "tcp://192.168.1.50:1883" {
		t.Errorf("brokerURL() = %q, want tcp://192.168.1.50:1883", url)
	}
}

func TestBrokerURLTLS(t *testing.T) {
	cfg := testBrokerConfig()
	cfg.TLS = true
	cfg.Port = 8883

	url := brokerURL(cfg)
	if url != "ssl://192.168.1.50:8883" {
		t.Errorf("brokerURL() = %q, want ssl://192.168.1.50:8883", url)
	}
}

func TestBrokerURLCloudForcesTLS(t *testing.T) {
	cfg := testBrokerConfig()
	cfg.Cloud = true
	cfg.Host = "relay.example.net"
	cfg.Port = 443

	url := brokerURL(cfg)
	if url != "ssl://relay.example.net:443" {
		t.Errorf("brokerURL() = %q, want ssl://relay.example.net:443", url)
	}
}

func TestClientIDSuffix(t *testing.T) {
	a := clientID("appliancelink")
	b := clientID("appliancelink")

	if !strings.HasPrefix(a, "appliancelink-") {
		t.Errorf("clientID() = %q, want appliancelink- prefix", a)
	}
	if a == b {
		t.Error("clientID() produced identical IDs for two calls")
	}
	if got := len(a); got != len("appliancelink-")+clientIDSuffixLen {
		t.Errorf("clientID() length = %d, want %d", got, len("appliancelink-")+clientIDSuffixLen)
	}
}

func TestBuildClientOptionsCredentials(t *testing.T) {
	creds := config.CredentialsConfig{
		Username: "AB1-CD-EFG2345H",
		Password: "hashed-device-password",
	}

	opts := buildClientOptions(testBrokerConfig(), creds)

	if opts.Username != "AB1-CD-EFG2345H" {
		t.Errorf("Username = %q, want AB1-CD-EFG2345H", opts.Username)
	}
	if opts.Password != "hashed-device-password" {
		t.Error("Password not carried into options")
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
}

func TestBuildClientOptionsAnonymous(t *testing.T) {
	opts := buildClientOptions(testBrokerConfig(), config.CredentialsConfig{})

	if opts.Username != "" {
		t.Errorf("Username = %q, want empty for anonymous connection", opts.Username)
	}
}

func TestBuildClientOptionsCloudTLS(t *testing.T) {
	cfg := testBrokerConfig()
	cfg.Cloud = true

	opts := buildClientOptions(cfg, config.CredentialsConfig{})

	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig = nil for cloud broker, want configured")
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLS MinVersion = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}
