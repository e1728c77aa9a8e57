package gateway

import "time"

// Config holds the gateway's runtime settings. Durations arrive already
// parsed; the config package owns the YAML shape.
type Config struct {
	Bind            string
	Auth            AuthConfig
	Webhooks        map[string]WebhookSource
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8147"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// AuthConfig configures authentication for operator endpoints.
type AuthConfig struct {
	BearerToken string
	BasicUser   string
	BasicPass   string
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// WebhookSource holds per-source webhook ingest settings.
type WebhookSource struct {
	// Secret enables HMAC-SHA256 signature validation when non-empty.
	Secret string

	// Session names the session this source's payloads land in. Empty
	// means the source name doubles as the session id.
	Session string
}
