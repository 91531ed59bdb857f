// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/fleetvault/internal/logging"
)

// HTTPServer is the subset of *http.Server the service drives.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs the status API server under supervision. The
// listener is bound inside Serve, so a port that is already taken fails
// the service right away and suture retries with backoff.
//
//	server := &http.Server{Handler: router}
//	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Addr(), 10*time.Second))
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration
	name            string

	mu    sync.RWMutex
	bound net.Addr
	ready chan struct{}
}

// NewHTTPServerService serves server on addr. A non-positive
// shutdownTimeout becomes 10s.
func NewHTTPServerService(server HTTPServer, addr string, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
		ready:           make(chan struct{}),
	}
}

// Addr returns the bound address, or nil before the first successful bind.
func (h *HTTPServerService) Addr() net.Addr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bound
}

// Ready is closed once the listener is bound for the first time.
func (h *HTTPServerService) Ready() <-chan struct{} {
	return h.ready
}

// Serve binds addr and serves until ctx is canceled or the server fails.
// http.ErrServerClosed is not treated as a failure.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.addr)
	if err != nil {
		return fmt.Errorf("http server listen on %s: %w", h.addr, err)
	}

	h.mu.Lock()
	first := h.bound == nil
	h.bound = ln.Addr()
	h.mu.Unlock()
	if first {
		close(h.ready)
	}
	logging.Info().Str("addr", ln.Addr().String()).Msg("Status API listening")

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// ctx is already done, so shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		logging.Info().Str("service", h.name).Msg("HTTP server stopped")
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return h.name
}
