// Package server is the backend API: it exposes the session's remote
// filesystem and the local download side over HTTP.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rescale/dualpane/internal/cloud"
	"github.com/rescale/dualpane/internal/logging"
	"github.com/rescale/dualpane/internal/metrics"
)

// Server holds one transfer session: a connected remote filesystem and the
// local directory downloads are written to.
type Server struct {
	remote      cloud.RemoteFS
	downloadDir string
	logger      *logging.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates a server for remote. downloadDir must already exist.
func New(remote cloud.RemoteFS, downloadDir string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		remote:      remote,
		downloadDir: downloadDir,
		logger:      logger.Component("server"),
		shutdown:    make(chan struct{}),
	}
}

// ShutdownRequested is closed once a client asks the session to end.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

// RequestShutdown closes the shutdown channel. Safe to call more than once.
func (s *Server) RequestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// Handler returns the HTTP handler with request ID, logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/local/list", s.handleLocalList)
	mux.HandleFunc("GET /api/remote/list", s.handleRemoteList)
	mux.HandleFunc("POST /api/remote/mkdir", s.handleRemoteMkdir)
	mux.HandleFunc("POST /api/remote/rename", s.handleRemoteRename)
	mux.HandleFunc("DELETE /api/remote/delete", s.handleRemoteDelete)
	mux.HandleFunc("GET /api/remote/download", s.handleRemoteDownload)
	mux.HandleFunc("POST /api/remote/upload", s.handleRemoteUpload)
	mux.HandleFunc("POST /api/shutdown", s.handleShutdown)

	mux.Handle("GET /metrics", metrics.Handler())

	return requestID(s.accessLog(metrics.Middleware(mux)))
}

// observe runs one remote filesystem call and records its outcome.
func (s *Server) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordRemoteOperation(op, time.Since(start), err == nil)
	return err
}

// Close releases the remote connection.
func (s *Server) Close() error {
	return s.remote.Close()
}

// Serve runs an HTTP server on addr until ctx is done or a client requests
// shutdown, then drains in-flight requests for up to drainTimeout.
func (s *Server) Serve(ctx context.Context, addr string, drainTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("received shutdown signal")
	case <-s.shutdown:
		s.logger.Info().Msg("shutdown requested via API")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("graceful shutdown did not finish")
		return err
	}
	return nil
}
