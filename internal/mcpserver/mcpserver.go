// Package mcpserver exposes context window operations as MCP tools
// over stdio, so agent runtimes can manage their own windows through
// the tool-calling interface they already speak.
package mcpserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ctxkeep/ctxkeep/internal/journal"
	"github.com/ctxkeep/ctxkeep/internal/session"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps an MCP stdio server over a session manager. Tool
// failures come back as MCP tool errors; the process stays up.
type Server struct {
	mcp      *server.MCPServer
	logger   *slog.Logger
	sessions *session.Manager
	journal  journal.Recorder
}

// Options carries the server's collaborators.
type Options struct {
	// Logger must not write to stdout; the protocol owns it.
	Logger *slog.Logger

	// Sessions is the window registry the tools operate on. Required.
	Sessions *session.Manager

	// Journal records effective prunes and compactions. Nil disables
	// journaling.
	Journal journal.Recorder
}

// New builds the server and registers the context tools.
func New(version string, opts Options) (*Server, error) {
	if opts.Sessions == nil {
		return nil, errors.New("mcpserver: session manager is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop()
	}

	s := &Server{
		logger:   opts.Logger,
		sessions: opts.Sessions,
		journal:  opts.Journal,
	}
	s.mcp = server.NewMCPServer("ctxkeep", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s, nil
}

// Serve speaks MCP over stdin and stdout until the client hangs up.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

// record writes a journal entry, logging instead of failing the tool
// call when the journal is down.
func (s *Server) record(ctx context.Context, e journal.Entry) {
	if err := s.journal.Record(ctx, e); err != nil {
		s.logger.Warn("journal write failed", "error", err)
	}
}
