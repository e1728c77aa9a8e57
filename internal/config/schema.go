// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for ctxkeep.
package config

import (
	"time"

	"github.com/ctxkeep/ctxkeep/internal/security"
	"github.com/ctxkeep/ctxkeep/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Log controls the process-wide logger.
	Log LogConfig `yaml:"log,omitempty"`

	// Window holds the defaults applied to every new session's
	// context window.
	Window WindowConfig `yaml:"window,omitempty"`

	// Sessions bounds the session registry.
	Sessions SessionsConfig `yaml:"sessions,omitempty"`

	// Gateway configures the HTTP/WebSocket listener.
	Gateway GatewayConfig `yaml:"gateway,omitempty"`

	// Janitor configures the background maintenance jobs.
	Janitor JanitorConfig `yaml:"janitor,omitempty"`

	// Journal selects and configures the operation journal backend.
	Journal JournalConfig `yaml:"journal,omitempty"`

	// Telemetry configures OTLP trace export.
	Telemetry telemetry.Config `yaml:"telemetry,omitempty"`

	// RateLimit bounds auth attempts and webhook ingest.
	RateLimit security.RateLimitConfig `yaml:"ratelimit,omitempty"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level,omitempty"`
}

// WindowConfig holds per-session context window defaults. Zero values
// defer to the window package's own defaults.
type WindowConfig struct {
	// Model selects the token budget profile (e.g. "claude-3-opus",
	// "gpt-4o", "llama-7b"). Unknown models fall back to a generic
	// 128k budget at runtime, but Validate rejects them up front.
	Model string `yaml:"model,omitempty"`

	// CharsPerToken tunes the character-ratio token estimator.
	CharsPerToken float64 `yaml:"chars_per_token,omitempty"`

	// CompactMinTokens is the size floor below which items are never
	// considered for compaction.
	CompactMinTokens int `yaml:"compact_min_tokens,omitempty"`

	// KeepHeadLines and KeepTailLines control how much of an item
	// survives at each end when it is compacted.
	KeepHeadLines int `yaml:"keep_head_lines,omitempty"`
	KeepTailLines int `yaml:"keep_tail_lines,omitempty"`
}

// SessionsConfig bounds the session registry.
type SessionsConfig struct {
	// MaxSessions caps concurrent sessions. 0 means unlimited.
	MaxSessions int `yaml:"max_sessions,omitempty"`

	// MaxIdle is how long a session may sit untouched before the
	// cleanup job removes it (Go duration string, e.g. "2h").
	MaxIdle string `yaml:"max_idle,omitempty"`
}

// ParsedMaxIdle returns MaxIdle as a time.Duration.
// Assumes the value has been validated; falls back to 2h.
func (c *SessionsConfig) ParsedMaxIdle() time.Duration {
	d, err := time.ParseDuration(c.MaxIdle)
	if err != nil || d <= 0 {
		return 2 * time.Hour
	}
	return d
}

// GatewayConfig configures the HTTP/WebSocket gateway.
type GatewayConfig struct {
	// Bind is the listen address. Defaults to 127.0.0.1:8147.
	Bind string `yaml:"bind,omitempty"`

	// Auth guards /status, /api and /ws/chat. When no credentials are
	// configured those routes are not mounted at all.
	Auth AuthConfig `yaml:"auth,omitempty"`

	// Webhooks maps a source name to its ingest settings. Requests to
	// /webhooks/{source} are verified against the source's secret.
	Webhooks map[string]WebhookConfig `yaml:"webhooks,omitempty"`

	// HTTP server timeouts as Go duration strings.
	ReadTimeout     string `yaml:"read_timeout,omitempty"`
	WriteTimeout    string `yaml:"write_timeout,omitempty"`
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`
}

// AuthConfig holds gateway credentials. Bearer and Basic may be
// configured together; either one grants access.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token,omitempty"`
	BasicUser   string `yaml:"basic_user,omitempty"`
	BasicPass   string `yaml:"basic_pass,omitempty"`
}

// Configured reports whether any credential is set.
func (a *AuthConfig) Configured() bool {
	return a.BearerToken != "" || a.BasicUser != ""
}

// WebhookConfig configures one webhook source.
type WebhookConfig struct {
	// Secret is the HMAC-SHA256 key for signature verification.
	Secret string `yaml:"secret"`

	// Session is the session ID that ingested output is appended to.
	// Defaults to the source name.
	Session string `yaml:"session,omitempty"`
}

// JanitorConfig configures the background maintenance jobs.
type JanitorConfig struct {
	// Enabled turns the janitor on. Defaults to true.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Five-field cron expressions. Zero values use each job's default.
	CompactSchedule   string `yaml:"compact_schedule,omitempty"`
	CleanupSchedule   string `yaml:"cleanup_schedule,omitempty"`
	RetentionSchedule string `yaml:"retention_schedule,omitempty"`

	// HighWater is the usage fraction at which the compaction sweep
	// kicks in; LowWater is the prune target it falls back to when
	// compaction alone is not enough. Defaults 0.8 and 0.6.
	HighWater float64 `yaml:"high_water,omitempty"`
	LowWater  float64 `yaml:"low_water,omitempty"`

	// JournalRetention is how far back journal entries are kept
	// (Go duration string). Defaults to 168h.
	JournalRetention string `yaml:"journal_retention,omitempty"`
}

// IsEnabled reports whether the janitor should run.
func (c *JanitorConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ParsedJournalRetention returns JournalRetention as a time.Duration.
// Assumes the value has been validated; falls back to 168h.
func (c *JanitorConfig) ParsedJournalRetention() time.Duration {
	d, err := time.ParseDuration(c.JournalRetention)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// Journal backends.
const (
	JournalBackendMemory = "memory"
	JournalBackendSQLite = "sqlite"
)

// JournalConfig selects and configures the operation journal backend.
type JournalConfig struct {
	// Backend is "memory" or "sqlite". Defaults to memory.
	Backend string `yaml:"backend,omitempty"`

	// Path is the sqlite database file. Defaults to
	// <data dir>/journal.db. Ignored by the memory backend.
	Path string `yaml:"path,omitempty"`

	// Capacity bounds the memory backend's ring buffer.
	Capacity int `yaml:"capacity,omitempty"`

	// BusyTimeout and WAL tune the sqlite backend.
	BusyTimeout int   `yaml:"busy_timeout,omitempty"`
	WAL         *bool `yaml:"wal,omitempty"`
}
