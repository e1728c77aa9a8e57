package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ctxkeep/ctxkeep/internal/config"
	"github.com/ctxkeep/ctxkeep/internal/journal"
	"github.com/ctxkeep/ctxkeep/internal/mcpserver"
	"github.com/ctxkeep/ctxkeep/internal/session"
	"github.com/ctxkeep/ctxkeep/internal/window"
	sqlitejournal "github.com/ctxkeep/ctxkeep/modules/journal/sqlite"
	"github.com/ctxkeep/ctxkeep/pkg/app"
	"github.com/spf13/cobra"
)

// mcpCmd serves the context window tools over MCP stdio, for agent
// runtimes that manage their windows through tool calls instead of the
// HTTP gateway.
func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve context window tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			verbose, _ := cmd.Flags().GetBool("verbose")

			cfg, err := mcpConfig(cfgPath)
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			// stdout carries the protocol; all logging goes to stderr.
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			recorder, store, err := mcpJournal(cfg.Journal)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
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

			srv, err := mcpserver.New(version, mcpserver.Options{
				Logger:   logger,
				Sessions: sessions,
				Journal:  recorder,
			})
			if err != nil {
				return err
			}
			return srv.Serve()
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().BoolP("verbose", "v", false, "Log at debug level")
	return cmd
}

// mcpConfig loads the named config file, or the one found in standard
// locations when no path is given. Running without any config file is
// fine; the built-in defaults apply. A file that exists but fails to
// load or validate is always an error.
func mcpConfig(path string) (*config.Config, error) {
	if path == "" {
		resolved, err := app.ResolveConfigPath()
		if err != nil {
			return &config.Config{Version: "1"}, nil
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mcpJournal selects the journal backend. With sqlite, operations
// recorded here land in the same database a running gateway reads, so
// agent-driven prunes show up in /api/journal.
func mcpJournal(cfg config.JournalConfig) (journal.Recorder, *sqlitejournal.Store, error) {
	if cfg.Backend != config.JournalBackendSQLite {
		return journal.NewMemoryRecorder(cfg.Capacity), nil, nil
	}

	path := cfg.Path
	if path == "" {
		path = filepath.Join(app.DefaultDataDir(), "journal.db")
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
