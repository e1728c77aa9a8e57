// Package app assembles and supervises the ctxkeep runtime: it loads
// configuration, builds the journal, session manager, gateway, and
// janitor, and blocks until a shutdown signal arrives.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/config"
	"github.com/ctxkeep/ctxkeep/internal/gateway"
	"github.com/ctxkeep/ctxkeep/internal/janitor"
	"github.com/ctxkeep/ctxkeep/internal/journal"
	"github.com/ctxkeep/ctxkeep/internal/security"
	"github.com/ctxkeep/ctxkeep/internal/session"
	"github.com/ctxkeep/ctxkeep/internal/telemetry"
	"github.com/ctxkeep/ctxkeep/internal/window"
	sqlitejournal "github.com/ctxkeep/ctxkeep/modules/journal/sqlite"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string
}

// Run loads configuration, starts the gateway and janitor, and blocks
// until a shutdown signal is received. SIGHUP re-reads the config and
// applies what can change at runtime.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// The redactor learns every configured secret before the first log
	// line is written.
	redactor := security.NewRedactor()
	registerSecrets(redactor, cfg)

	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLogLevel(cfg.Log.Level))
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})
	logger := slog.New(security.NewRedactingHandler(inner, redactor))

	ctx := context.Background()
	tele, err := telemetry.New(ctx, cfg.Telemetry, params.Version)
	if err != nil {
		return err
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	recorder, sqlStore, err := buildJournal(cfg.Journal, dataDir)
	if err != nil {
		return err
	}

	sessions := session.NewManager(session.Config{
		MaxSessions: cfg.Sessions.MaxSessions,
		Window: window.Config{
			Model:            cfg.Window.Model,
			CharsPerToken:    cfg.Window.CharsPerToken,
			CompactMinTokens: cfg.Window.CompactMinTokens,
			KeepHeadLines:    cfg.Window.KeepHeadLines,
			KeepTailLines:    cfg.Window.KeepTailLines,
		},
	})

	gw, err := gateway.New(gatewayConfig(cfg.Gateway), gateway.Options{
		Logger:   logger,
		Sessions: sessions,
		Journal:  recorder,
		Limiter:  security.NewRateLimiter(cfg.RateLimit),
		Tracer:   tele.Tracer("gateway"),
	})
	if err != nil {
		return err
	}
	if err := gw.Start(); err != nil {
		return err
	}

	var sched *janitor.Scheduler
	if cfg.Janitor.IsEnabled() {
		sched = janitor.NewScheduler(logger)
		jobs := []janitor.Job{
			&janitor.CompactionSweepJob{
				Sessions:     sessions,
				Journal:      recorder,
				Metrics:      gw.Metrics(),
				Logger:       logger,
				HighWater:    cfg.Janitor.HighWater,
				LowWater:     cfg.Janitor.LowWater,
				ScheduleExpr: cfg.Janitor.CompactSchedule,
			},
			&janitor.SessionCleanupJob{
				Store:        sessions,
				MaxIdle:      cfg.Sessions.ParsedMaxIdle(),
				Logger:       logger,
				ScheduleExpr: cfg.Janitor.CleanupSchedule,
			},
			&janitor.JournalRetentionJob{
				Journal:      recorder,
				Retention:    cfg.Janitor.ParsedJournalRetention(),
				Logger:       logger,
				ScheduleExpr: cfg.Janitor.RetentionSchedule,
			},
		}
		for _, j := range jobs {
			if err := sched.RegisterJob(j); err != nil {
				return err
			}
		}
		if err := sched.Start(); err != nil {
			return err
		}
	}

	logger.Info("ctxkeep started",
		"version", params.Version,
		"config", cfgPath,
		"journal", journalBackend(cfg.Journal),
		"janitor", cfg.Janitor.IsEnabled(),
		"tracing", tele.Enabled(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			logger.Info("SIGHUP received, reloading configuration")
			if err := applyReload(cfgPath, levelVar, redactor, logger); err != nil {
				logger.Error("reload failed", "error", err)
			}
			continue
		}

		logger.Info("shutdown signal received", "signal", sig.String())
		break
	}

	// Stop in reverse start order: no new janitor work, then the
	// listener, then the exporters and stores behind them.
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(stopCtx); err != nil {
			logger.Error("janitor stop failed", "error", err)
		}
	}
	if err := gw.Stop(stopCtx); err != nil {
		logger.Error("gateway stop failed", "error", err)
	}
	if err := tele.Shutdown(stopCtx); err != nil {
		logger.Error("telemetry shutdown failed", "error", err)
	}
	if sqlStore != nil {
		if err := sqlStore.Close(); err != nil {
			logger.Error("journal close failed", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildJournal constructs the configured journal backend. The sqlite
// store is returned separately so shutdown can close it.
func buildJournal(cfg config.JournalConfig, dataDir string) (journal.Recorder, *sqlitejournal.Store, error) {
	if cfg.Backend != config.JournalBackendSQLite {
		return journal.NewMemoryRecorder(cfg.Capacity), nil, nil
	}

	path := cfg.Path
	if path == "" {
		path = filepath.Join(dataDir, "journal.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating journal directory: %w", err)
	}

	store, err := sqlitejournal.Open(sqlitejournal.Config{
		Path:        path,
		WAL:         cfg.WAL,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}

func journalBackend(cfg config.JournalConfig) string {
	if cfg.Backend == config.JournalBackendSQLite {
		return config.JournalBackendSQLite
	}
	return config.JournalBackendMemory
}

// gatewayConfig converts the YAML gateway section into the gateway's
// runtime config, parsing the duration strings.
func gatewayConfig(cfg config.GatewayConfig) gateway.Config {
	webhooks := make(map[string]gateway.WebhookSource, len(cfg.Webhooks))
	for name, hook := range cfg.Webhooks {
		webhooks[name] = gateway.WebhookSource{
			Secret:  hook.Secret,
			Session: hook.Session,
		}
	}
	return gateway.Config{
		Bind: cfg.Bind,
		Auth: gateway.AuthConfig{
			BearerToken: cfg.Auth.BearerToken,
			BasicUser:   cfg.Auth.BasicUser,
			BasicPass:   cfg.Auth.BasicPass,
		},
		Webhooks:        webhooks,
		ReadTimeout:     parseDuration(cfg.ReadTimeout),
		WriteTimeout:    parseDuration(cfg.WriteTimeout),
		ShutdownTimeout: parseDuration(cfg.ShutdownTimeout),
	}
}

// parseDuration converts a validated config duration string. Empty
// strings map to zero so downstream defaults apply.
func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, _ := time.ParseDuration(s)
	return d
}

// registerSecrets seeds the redactor with every credential the config
// carries so none of them can appear in log output.
func registerSecrets(r *security.Redactor, cfg *config.Config) {
	r.AddLiteral(cfg.Gateway.Auth.BearerToken)
	r.AddLiteral(cfg.Gateway.Auth.BasicPass)
	for _, hook := range cfg.Gateway.Webhooks {
		r.AddLiteral(hook.Secret)
	}
}

// applyReload re-reads the config and applies what can change without a
// restart: the log level and newly added secrets. Structural changes
// (bind address, journal backend, schedules) need a full restart.
func applyReload(path string, level *slog.LevelVar, redactor *security.Redactor, logger *slog.Logger) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level.Set(parseLogLevel(cfg.Log.Level))
	registerSecrets(redactor, cfg)
	logger.Info("configuration reloaded", "log_level", effectiveLevel(cfg.Log.Level))
	return nil
}

func effectiveLevel(s string) string {
	if s == "" {
		return "info"
	}
	return s
}

// parseLogLevel maps a config level name to a slog level. Unknown and
// empty values mean info.
func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/ctxkeep/ctxkeep.yaml →
// ~/.config/ctxkeep/ctxkeep.yaml → ./ctxkeep.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "ctxkeep", "ctxkeep.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "ctxkeep", "ctxkeep.yaml"))
	}

	candidates = append(candidates, "ctxkeep.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/ctxkeep if set, otherwise ~/.local/share/ctxkeep
// following the XDG base directory convention.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "ctxkeep")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "ctxkeep")
}
