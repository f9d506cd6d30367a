package functions

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vk/twinctl/internal/ctxlog"
)

const shutdownTimeout = 5 * time.Second

// Server runs a Host on a listening address.
type Server struct {
	host *Host
	addr string
	srv  *http.Server
	ln   net.Listener
}

func NewServer(host *Host, addr string) *Server {
	return &Server{host: host, addr: addr}
}

// Start binds the address and serves in the background. The request
// contexts carry the logger of ctx.
func (s *Server) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.host.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctxlog.WithLogger(context.Background(), logger)
		},
	}

	go func() {
		logger.Info("⚡ Functions host starting", "address", fmt.Sprintf("http://%s", ln.Addr()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Functions host failed unexpectedly", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests and waits for running ones.
func (s *Server) Shutdown(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if s.srv == nil {
		logger.Debug("Functions host was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info("⚡ Shutting down functions host...")
	if err := s.srv.Shutdown(ctx); err != nil {
		logger.Error("Functions host shutdown failed", "error", err)
		return err
	}
	logger.Debug("Functions host shut down gracefully.")
	return nil
}
