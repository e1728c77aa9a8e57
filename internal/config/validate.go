package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/janitor"
	"github.com/ctxkeep/ctxkeep/internal/window"
)

// Validate checks the structural validity of a Config.
// It accumulates every problem it finds so a broken file is reported
// in one pass instead of one error per edit-and-retry cycle.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level: unknown level %q", cfg.Log.Level))
	}

	errs = append(errs, validateWindow(&cfg.Window)...)
	errs = append(errs, validateSessions(&cfg.Sessions)...)
	errs = append(errs, validateGateway(&cfg.Gateway)...)
	errs = append(errs, validateJanitor(&cfg.Janitor)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("config: telemetry.endpoint is required when telemetry is enabled"))
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio must be in [0, 1], got %v", cfg.Telemetry.SampleRatio))
	}

	if cfg.RateLimit.AuthPerMin < 0 {
		errs = append(errs, fmt.Errorf("config: ratelimit.auth_per_min must not be negative, got %d", cfg.RateLimit.AuthPerMin))
	}
	if cfg.RateLimit.IngestPerMin < 0 {
		errs = append(errs, fmt.Errorf("config: ratelimit.ingest_per_min must not be negative, got %d", cfg.RateLimit.IngestPerMin))
	}

	return errors.Join(errs...)
}

func validateWindow(w *WindowConfig) []error {
	var errs []error
	if !window.KnownModel(w.Model) {
		errs = append(errs, fmt.Errorf("config: window.model: unknown model %q", w.Model))
	}
	if w.CharsPerToken < 0 {
		errs = append(errs, fmt.Errorf("config: window.chars_per_token must not be negative, got %v", w.CharsPerToken))
	}
	if w.CompactMinTokens < 0 {
		errs = append(errs, fmt.Errorf("config: window.compact_min_tokens must not be negative, got %d", w.CompactMinTokens))
	}
	if w.KeepHeadLines < 0 {
		errs = append(errs, fmt.Errorf("config: window.keep_head_lines must not be negative, got %d", w.KeepHeadLines))
	}
	if w.KeepTailLines < 0 {
		errs = append(errs, fmt.Errorf("config: window.keep_tail_lines must not be negative, got %d", w.KeepTailLines))
	}
	return errs
}

func validateSessions(s *SessionsConfig) []error {
	var errs []error
	if s.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("config: sessions.max_sessions must not be negative, got %d", s.MaxSessions))
	}
	errs = append(errs, checkDuration("sessions.max_idle", s.MaxIdle)...)
	return errs
}

func validateGateway(g *GatewayConfig) []error {
	var errs []error

	if g.Bind != "" {
		if _, _, err := net.SplitHostPort(g.Bind); err != nil {
			errs = append(errs, fmt.Errorf("config: gateway.bind: invalid address %q: %w", g.Bind, err))
		}
	}

	// Basic credentials only make sense as a pair.
	if g.Auth.BasicUser != "" && g.Auth.BasicPass == "" {
		errs = append(errs, errors.New("config: gateway.auth.basic_user is set but basic_pass is empty"))
	}
	if g.Auth.BasicPass != "" && g.Auth.BasicUser == "" {
		errs = append(errs, errors.New("config: gateway.auth.basic_pass is set but basic_user is empty"))
	}

	for name, hook := range g.Webhooks {
		if hook.Secret == "" {
			errs = append(errs, fmt.Errorf("config: gateway.webhooks.%s: secret is required", name))
		}
	}

	errs = append(errs, checkDuration("gateway.read_timeout", g.ReadTimeout)...)
	errs = append(errs, checkDuration("gateway.write_timeout", g.WriteTimeout)...)
	errs = append(errs, checkDuration("gateway.shutdown_timeout", g.ShutdownTimeout)...)
	return errs
}

func validateJanitor(j *JanitorConfig) []error {
	var errs []error

	errs = append(errs, checkSchedule("janitor.compact_schedule", j.CompactSchedule)...)
	errs = append(errs, checkSchedule("janitor.cleanup_schedule", j.CleanupSchedule)...)
	errs = append(errs, checkSchedule("janitor.retention_schedule", j.RetentionSchedule)...)

	if j.HighWater != 0 && (j.HighWater <= 0 || j.HighWater > 1) {
		errs = append(errs, fmt.Errorf("config: janitor.high_water must be in (0, 1], got %v", j.HighWater))
	}
	if j.LowWater != 0 && (j.LowWater <= 0 || j.LowWater > 1) {
		errs = append(errs, fmt.Errorf("config: janitor.low_water must be in (0, 1], got %v", j.LowWater))
	}
	if j.HighWater != 0 && j.LowWater != 0 && j.HighWater <= j.LowWater {
		errs = append(errs, fmt.Errorf("config: janitor.high_water (%v) must be greater than low_water (%v)", j.HighWater, j.LowWater))
	}

	errs = append(errs, checkDuration("janitor.journal_retention", j.JournalRetention)...)
	return errs
}

func validateJournal(j *JournalConfig) []error {
	var errs []error
	switch j.Backend {
	case "", JournalBackendMemory, JournalBackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("config: journal.backend: unknown backend %q (supported: memory, sqlite)", j.Backend))
	}
	if j.Capacity < 0 {
		errs = append(errs, fmt.Errorf("config: journal.capacity must not be negative, got %d", j.Capacity))
	}
	if j.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: journal.busy_timeout must not be negative, got %d", j.BusyTimeout))
	}
	return errs
}

// checkDuration validates an optional Go duration string field.
func checkDuration(field, value string) []error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("config: %s: invalid duration %q: %w", field, value, err)}
	}
	if d <= 0 {
		return []error{fmt.Errorf("config: %s: duration must be positive, got %q", field, value)}
	}
	return nil
}

// checkSchedule validates an optional five-field cron expression using
// the same parser the janitor runs with.
func checkSchedule(field, value string) []error {
	if value == "" {
		return nil
	}
	if _, err := janitor.ParseSchedule(value); err != nil {
		return []error{fmt.Errorf("config: %s: invalid cron expression %q: %w", field, value, err)}
	}
	return nil
}
