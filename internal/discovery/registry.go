// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/metrics"
	"github.com/tomtom215/fleetvault/internal/models"
)

// Source lists devices keyed by id.
type Source interface {
	Devices(ctx context.Context) (map[string]models.Device, error)
}

// RegistryConfig configures a RegistryClient.
type RegistryConfig struct {
	// Address is the node host[:port] serving /devices.
	Address string
	Timeout time.Duration

	RequestsPerSecond float64
	Burst             int

	// Breaker opens after FailureThreshold consecutive failures and
	// probes again after OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration

	HTTPClient *http.Client
}

// RegistryClient queries the node registry.
type RegistryClient struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[map[string]models.Device]
	name    string
}

// NewRegistryClient creates a client. Defaults: 10s timeout, 1 request per
// second with burst 3, breaker opening after 3 consecutive failures for 1
// minute.
func NewRegistryClient(cfg RegistryConfig) *RegistryClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	addr := strings.TrimSuffix(cfg.Address, "/")
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	name := "device-registry"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	threshold := cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[map[string]models.Device](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0, // counts only reset on state change
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening registry circuit")
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &RegistryClient{
		url:     addr + "/devices",
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cb:      cb,
		name:    name,
	}
}

// URL returns the registry endpoint.
func (c *RegistryClient) URL() string {
	return c.url
}

// State returns the breaker state.
func (c *RegistryClient) State() gobreaker.State {
	return c.cb.State()
}

// Devices implements Source.
func (c *RegistryClient) Devices(ctx context.Context) (map[string]models.Device, error) {
	devices, err := c.cb.Execute(func() (map[string]models.Device, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(c.name).Set(float64(c.cb.Counts().ConsecutiveFailures))
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
	return devices, nil
}

func (c *RegistryClient) fetch(ctx context.Context) (map[string]models.Device, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("registry returned status %d: %s", resp.StatusCode, body)
	}

	var raw map[string]models.Device
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}
	devices := make(map[string]models.Device, len(raw))
	for id, d := range raw {
		if d.ID == "" {
			d.ID = id
		}
		devices[d.ID] = d
	}
	return devices, nil
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
