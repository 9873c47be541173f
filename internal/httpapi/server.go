// Package httpapi exposes the dispatcher and its event stream over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/datawise/datawise/internal/rpc"
)

// Server exposes the HTTP API, the SSE event stream and the JSON-RPC bridge.
type Server struct {
	handler    *Handler
	httpServer *http.Server
	listener   net.Listener
	socketPath string
}

// NewServer listens on a TCP address such as "127.0.0.1:8080".
func NewServer(ctx context.Context, handler *Handler, addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s := &Server{handler: handler, listener: ln}
	s.httpServer = newHTTPServer(s.buildMux())
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewUnixServer listens on a unix domain socket, replacing a stale one.
func NewUnixServer(ctx context.Context, handler *Handler, socketPath string) (*Server, error) {
	_ = os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on unix socket %s: %w", socketPath, err)
	}
	s := &Server{handler: handler, listener: ln, socketPath: socketPath}
	s.httpServer = newHTTPServer(s.buildMux())
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newHTTPServer(mux http.Handler) *http.Server {
	return &http.Server{
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// Commands run to completion inside the request.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /events", s.handler.streamEvents)
	mux.HandleFunc("POST /commands", s.handler.dispatchCommand)
	mux.HandleFunc("GET /tasks", s.handler.listTasks)
	mux.Handle("/rpc", rpc.NewHTTPHandler(rpc.NewHandler(s.handler.dispatcher)))
	return mux
}

func (s *Server) start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
		_ = s.listener.Close()
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Shutdown stops accepting requests, waits up to five seconds for in-flight
// ones and removes the unix socket if one was used.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.socketPath != "" {
		_ = os.Remove(s.socketPath)
	}
	return err
}

// Addr returns the socket path or the bound TCP address.
func (s *Server) Addr() string {
	if s.socketPath != "" {
		return s.socketPath
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
