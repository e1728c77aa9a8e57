// Package gateway provides the HTTP server for operating ctxkeep:
// session administration, window operations, webhook ingest, the chat
// WebSocket, and the Prometheus scrape endpoint. It binds to loopback by
// default.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/ctxkeep/ctxkeep/internal/journal"
	"github.com/ctxkeep/ctxkeep/internal/security"
	"github.com/ctxkeep/ctxkeep/internal/session"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Gateway is the HTTP front door. It owns the server lifecycle and the
// metrics registry; sessions, journal, and limiter are shared with the
// rest of the process.
type Gateway struct {
	config   Config
	logger   *slog.Logger
	sessions *session.Manager
	journal  journal.Recorder
	limiter  *security.RateLimiter
	tracer   trace.Tracer
	metrics  *Metrics

	server    *http.Server
	startedAt time.Time

	connMu sync.Mutex
	conns  map[*websocket.Conn]struct{}
}

// Options carries the gateway's collaborators. Sessions is required;
// every other field may be nil and gets a no-op stand-in.
type Options struct {
	Logger   *slog.Logger
	Sessions *session.Manager
	Journal  journal.Recorder
	Limiter  *security.RateLimiter
	Tracer   trace.Tracer
}

// New builds a gateway and validates the bind address. The server is not
// started; call Start.
func New(cfg Config, opts Options) (*Gateway, error) {
	cfg.defaults()

	if opts.Sessions == nil {
		return nil, errors.New("gateway: session manager is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", cfg.Bind); err != nil {
		return nil, errors.New("gateway: invalid bind address: " + cfg.Bind)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := opts.Journal
	if rec == nil {
		rec = journal.Nop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("gateway")
	}

	return &Gateway{
		config:   cfg,
		logger:   logger,
		sessions: opts.Sessions,
		journal:  rec,
		limiter:  opts.Limiter,
		tracer:   tracer,
		metrics:  NewMetrics(),
		conns:    make(map[*websocket.Conn]struct{}),
	}, nil
}

// Metrics exposes the gateway's collectors so background jobs can record
// into the same registry.
func (g *Gateway) Metrics() *Metrics { return g.metrics }

// Start binds the listener and begins serving in the background. It
// returns once the listener is bound, so a nil error means the address
// is held.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop closes all chat sockets and shuts the server down gracefully
// within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	g.closeConns()

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// addConn registers a live chat socket for shutdown bookkeeping.
func (g *Gateway) addConn(c *websocket.Conn) {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	g.conns[c] = struct{}{}
	g.metrics.WSConnected()
}

// removeConn forgets a chat socket.
func (g *Gateway) removeConn(c *websocket.Conn) {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	if _, ok := g.conns[c]; ok {
		delete(g.conns, c)
		g.metrics.WSDisconnected()
	}
}

// closeConns closes every live chat socket. Hijacked connections are
// outside the server's shutdown scope, so they are closed explicitly.
func (g *Gateway) closeConns() {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	for c := range g.conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
