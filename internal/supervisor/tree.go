// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds the restart policy shared by every supervisor in the
// tree.
type TreeConfig struct {
	// FailureThreshold is the decayed failure count above which a
	// supervisor backs off instead of restarting immediately.
	FailureThreshold float64
	// FailureDecay is the half-life of the failure count, in seconds.
	FailureDecay float64
	// FailureBackoff is the pause once the threshold is exceeded.
	FailureBackoff time.Duration
	// ShutdownTimeout bounds how long each service has to return after
	// its context is canceled.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultTreeConfig.
func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay <= 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec(hook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:        hook,
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// Layer names a child supervisor.
type Layer string

const (
	LayerData      Layer = "data-layer"
	LayerMessaging Layer = "messaging-layer"
	LayerAPI       Layer = "api-layer"
)

// SupervisorTree is the three-layer supervisor hierarchy:
//   - data: run history store
//   - messaging: backup scheduler and websocket hub
//   - api: HTTP status server
//
// A crash in the scheduler does not stop the status API from serving the
// last known registry state.
type SupervisorTree struct {
	root   *suture.Supervisor
	layers map[Layer]*suture.Supervisor
	logger *slog.Logger
	config TreeConfig
}

// NewSupervisorTree builds the root "fleetvault" supervisor and its three
// layers. Zero config fields take DefaultTreeConfig values.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	if logger == nil {
		return nil, fmt.Errorf("supervisor tree requires a logger")
	}
	config = config.withDefaults()

	// MustHook has a pointer receiver. Children inherit the hook once they
	// are added to the root.
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &SupervisorTree{
		root:   suture.New("fleetvault", config.spec(hook)),
		layers: make(map[Layer]*suture.Supervisor, 3),
		logger: logger,
		config: config,
	}
	for _, l := range []Layer{LayerData, LayerMessaging, LayerAPI} {
		child := suture.New(string(l), config.spec(nil))
		t.layers[l] = child
		t.root.Add(child)
	}
	return t, nil
}

// Root returns the root supervisor.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// Add places svc under layer.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) (suture.ServiceToken, error) {
	sup, ok := t.layers[layer]
	if !ok {
		var none suture.ServiceToken
		return none, fmt.Errorf("unknown supervisor layer %q", layer)
	}
	t.logger.Debug("adding service", "layer", string(layer), "service", fmt.Sprint(svc))
	return sup.Add(svc), nil
}

// AddDataService adds a service to the data layer, e.g. the history store.
func (t *SupervisorTree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.layers[LayerData].Add(svc)
}

// AddMessagingService adds a service to the messaging layer, e.g. the
// scheduler or the websocket hub.
func (t *SupervisorTree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.layers[LayerMessaging].Add(svc)
}

// AddAPIService adds a service to the API layer.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.layers[LayerAPI].Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine; the channel receives its
// result.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
