// Package app provides lifecycle management for the nearby-sync daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stacklok/nearby-sync/internal/config"
	"github.com/stacklok/nearby-sync/internal/control"
)

// sessionRunner is the part of a session the daemon drives
type sessionRunner interface {
	Run(ctx context.Context) error
	Close() error
}

// Daemon runs one session together with the local control API
type Daemon struct {
	configMu   sync.RWMutex
	config     *config.Config
	session    sessionRunner
	controller control.Controller
	httpServer *http.Server

	ctx        context.Context
	cancelFunc context.CancelFunc

	started     atomic.Bool
	sessionDone chan struct{}
	sessionErr  error
}

// Start runs the session in the background and serves the API. It blocks
// until the server stops; a session failure stops the server as well.
func (d *Daemon) Start() error {
	if !d.started.CompareAndSwap(false, true) {
		return fmt.Errorf("daemon already started")
	}

	go func() {
		defer close(d.sessionDone)
		if err := d.session.Run(d.ctx); err != nil {
			slog.Error("Session failed", "error", err)
			d.sessionErr = err
			_ = d.httpServer.Close()
		}
	}()

	slog.Info("Server listening", "address", d.httpServer.Addr)
	if err := d.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	select {
	case <-d.sessionDone:
		if d.sessionErr != nil {
			return fmt.Errorf("session failed: %w", d.sessionErr)
		}
	default:
	}
	return nil
}

// Stop shuts down the HTTP server, then stops the session and releases its
// resources, all within timeout
func (d *Daemon) Stop(timeout time.Duration) error {
	slog.Info("Shutting down daemon...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}

	d.cancelFunc()
	if d.started.Load() {
		select {
		case <-d.sessionDone:
		case <-shutdownCtx.Done():
			// Closing under a running session would pull storage from under it
			errs = append(errs, fmt.Errorf("session did not stop within %s", timeout))
			return errors.Join(errs...)
		}
	}

	if err := d.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close session: %w", err))
	}

	if len(errs) == 0 {
		slog.Info("Daemon shutdown complete")
	}
	return errors.Join(errs...)
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	d.configMu.RLock()
	defer d.configMu.RUnlock()
	return d.config
}

// GetHTTPServer returns the HTTP server
func (d *Daemon) GetHTTPServer() *http.Server {
	return d.httpServer
}
