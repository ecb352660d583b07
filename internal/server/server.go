// Package server carries hoofbeat's two HTTP surfaces: the project server
// that streams files from the project root with strict path containment,
// and the status server with the embedded UI, the SSE event stream, and
// the websocket live-reload socket. The request router reads the live
// filesystem; the scanned tree feeds change detection and diagnostics
// only, and that split of authority is deliberate.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hoofbeat/hoofbeat/internal/config"
	"github.com/hoofbeat/hoofbeat/internal/errors"
	"github.com/hoofbeat/hoofbeat/internal/logging"
	"github.com/hoofbeat/hoofbeat/internal/notify"
	"github.com/hoofbeat/hoofbeat/internal/scanner"
	"github.com/hoofbeat/hoofbeat/internal/types"
)

// shutdownGrace bounds how long in-flight connections may finish after
// the shutdown signal.
const shutdownGrace = 5 * time.Second

// TreeSource yields the current project-tree snapshot. The reconciliation
// engine implements it; readers treat the returned tree as immutable.
type TreeSource interface {
	Tree() *types.ProjectTree
}

// Server runs the project and status listeners.
type Server struct {
	cfg     *config.Config
	root    string
	exclude scanner.Exclusions
	trees   TreeSource
	hub     *notify.Hub
	logger  logging.Logger
	limiter *hostLimiter

	projectSrv *http.Server
	statusSrv  *http.Server

	projectAddr net.Addr
	statusAddr  net.Addr
}

// New assembles the server. root must be the canonical project root the
// scanner resolved.
func New(cfg *config.Config, root string, exclude scanner.Exclusions, trees TreeSource, hub *notify.Hub, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		cfg:     cfg,
		root:    root,
		exclude: exclude,
		trees:   trees,
		hub:     hub,
		logger:  logger.WithComponent("server"),
		limiter: newHostLimiter(cfg.Rate.PerSecond, cfg.Rate.Burst),
	}
}

// Start binds both listeners and serves until ctx is canceled. A failure
// to bind either listener is returned before anything serves, so startup
// is all-or-nothing. After cancellation, accepted connections get
// shutdownGrace to finish.
func (s *Server) Start(ctx context.Context) error {
	projectLn, err := net.Listen("tcp", s.cfg.Project.Addr())
	if err != nil {
		return errors.ServerError("bind project listener", err)
	}
	statusLn, err := net.Listen("tcp", s.cfg.Status.Addr())
	if err != nil {
		projectLn.Close()
		return errors.ServerError("bind status listener", err)
	}
	s.projectAddr = projectLn.Addr()
	s.statusAddr = statusLn.Addr()

	s.projectSrv = &http.Server{Handler: s.projectHandler()}
	s.statusSrv = &http.Server{Handler: s.statusHandler()}

	s.logger.Info(ctx, "project server listening", "addr", s.projectAddr.String())
	s.logger.Info(ctx, "status server listening", "addr", s.statusAddr.String())
	s.logger.Info(ctx, "status user interface", "url", "http://"+s.statusAddr.String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.projectSrv.Serve(projectLn); err != nil && err != http.ErrServerClosed {
			return errors.ServerError("project server", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.statusSrv.Serve(statusLn); err != nil && err != http.ErrServerClosed {
			return errors.ServerError("status server", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown()
	})

	return g.Wait()
}

// Shutdown stops both listeners from accepting and lets in-flight
// connections finish within the grace period.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	var firstErr error
	for _, srv := range []*http.Server{s.projectSrv, s.statusSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ProjectAddr returns the bound project listener address, nil before Start.
func (s *Server) ProjectAddr() net.Addr { return s.projectAddr }

// StatusAddr returns the bound status listener address, nil before Start.
func (s *Server) StatusAddr() net.Addr { return s.statusAddr }

func (s *Server) projectHandler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.handleProject)
	h = noStoreMiddleware(h)
	h = logMiddleware(s.logger.With("surface", "project"), h)
	return h
}

func (s *Server) statusHandler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.handleStatus)
	h = rateLimitMiddleware(s.limiter, h)
	// no-store wraps the rate limiter so even 429 responses carry it.
	h = noStoreMiddleware(h)
	h = logMiddleware(s.logger.With("surface", "status"), h)
	return h
}
