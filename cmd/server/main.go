// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/tomtom215/fleetvault/internal/api"
	"github.com/tomtom215/fleetvault/internal/backup"
	"github.com/tomtom215/fleetvault/internal/config"
	"github.com/tomtom215/fleetvault/internal/discovery"
	"github.com/tomtom215/fleetvault/internal/history"
	"github.com/tomtom215/fleetvault/internal/inventory"
	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/mirror"
	"github.com/tomtom215/fleetvault/internal/scheduler"
	"github.com/tomtom215/fleetvault/internal/sshkeys"
	"github.com/tomtom215/fleetvault/internal/status"
	"github.com/tomtom215/fleetvault/internal/supervisor"
	"github.com/tomtom215/fleetvault/internal/supervisor/services"
	ws "github.com/tomtom215/fleetvault/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("mode", cfg.Backup.Mode).
		Str("results_dir", cfg.Backup.ResultsDir).
		Str("node", cfg.Registry.Address).
		Msg("Starting Fleetvault")

	if cfg.Backup.Mode != string(backup.ModeMirror) {
		kp, err := sshkeys.Ensure(cfg.Backup.SSHKeyPath, "fleetvault")
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Backup.SSHKeyPath).Msg("Failed to prepare SSH keys")
		}
		if kp.Created {
			logging.Info().Str("public_key", kp.PublicKeyPath).Msg("Generated SSH key pair, install the public key on every device")
		}
	}

	store, err := history.Open(history.Config{
		Dir:        cfg.History.Dir,
		InMemory:   cfg.History.InMemory,
		Retention:  cfg.History.Retention,
		GCInterval: cfg.History.GCInterval,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open run history")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing run history")
		}
	}()

	registry := status.NewRegistry(status.Config{
		MaxProcessingAge: cfg.Scheduler.MaxProcessingAge,
		MaxErrorAge:      cfg.Scheduler.MaxErrorAge,
	})

	finder := newDiscoverer(cfg, registry)

	factory, err := newFactory(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build backup job factory")
	}

	hub := ws.NewHub()

	sched, err := scheduler.New(scheduler.Config{
		Interval:          cfg.Scheduler.Interval,
		Workers:           cfg.Scheduler.Workers,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		DiscoveryAttempts: cfg.Scheduler.DiscoveryAttempts,
		EmptyRetryDelay:   cfg.Scheduler.EmptyRetryDelay,
		ErrorRetryDelay:   cfg.Scheduler.ErrorRetryDelay,
		FailureThreshold:  cfg.Scheduler.FailureThreshold,
	}, finder, factory, registry,
		scheduler.WithHistory(store),
		scheduler.WithBroadcaster(hub),
	)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.Backup.ForceDevices) > 0 {
		code := runForced(ctx, sched, cfg.Backup.ForceDevices)
		stop()
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing run history")
		}
		os.Exit(code)
	}

	inv := inventory.New(inventory.Config{
		ResultsDir: cfg.Backup.ResultsDir,
		VideosDir:  factory.Options().VideosDir,
		TTL:        cfg.Cache.FileTTL,
	})

	handler := api.NewHandler(sched, registry,
		api.WithInventory(inv),
		api.WithHistory(store),
		api.WithHub(hub, originChecker(cfg.Server.CORSOrigins)),
	)
	router := api.NewRouter(handler, &api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Server.RateLimitRequests,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
		RateLimitDisabled:  cfg.Server.RateLimitDisabled,
	})

	server := &http.Server{
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout + 5*time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(store)
	tree.AddMessagingService(services.NewSchedulerService(sched))
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Addr(), cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for services to stop...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	inv.Wait()
	logging.Info().Msg("Fleetvault stopped")
}

func newDiscoverer(cfg *config.Config, recorder discovery.Recorder) *discovery.Discoverer {
	dc := discovery.Config{
		Dwell:    cfg.Scanner.Dwell,
		Recorder: recorder,
	}
	if cfg.Registry.Address != "" {
		dc.Registry = discovery.NewRegistryClient(discovery.RegistryConfig{
			Address:           cfg.Registry.Address,
			Timeout:           cfg.Registry.Timeout,
			RequestsPerSecond: cfg.Registry.RequestsPerSecond,
			Burst:             cfg.Registry.Burst,
			FailureThreshold:  cfg.Registry.FailureThreshold,
			OpenTimeout:       cfg.Registry.OpenTimeout,
		})
	}
	if len(cfg.Scanner.Hosts) > 0 {
		dc.Scanner = &discovery.ProbeScanner{
			Hosts:       cfg.Scanner.Hosts,
			Port:        cfg.Scanner.Port,
			Concurrency: cfg.Scanner.Concurrency,
		}
	}
	return discovery.New(dc)
}

func newFactory(cfg *config.Config) (*backup.Factory, error) {
	mode, err := backup.ParseMode(cfg.Backup.Mode)
	if err != nil {
		return nil, err
	}
	return backup.NewFactory(backup.Options{
		Mode:           mode,
		ResultsDir:     cfg.Backup.ResultsDir,
		VideosDir:      cfg.Backup.VideosDir,
		BackupResults:  cfg.Backup.BackupResults,
		BackupVideos:   cfg.Backup.BackupVideos,
		DevicePort:     cfg.Backup.DevicePort,
		SSHUser:        cfg.Backup.SSHUser,
		SSHKeyPath:     cfg.Backup.SSHKeyPath,
		RsyncIOTimeout: cfg.Backup.RsyncTimeout,
		SkipIfRecent:   cfg.Backup.SkipIfRecent,
		RecentMaxAge:   cfg.Backup.RecentMaxAge,
		Dialer: mirror.MySQLDialer(mirror.Config{
			User:           cfg.Mirror.User,
			Password:       cfg.Mirror.Password,
			Port:           cfg.Mirror.Port,
			ConnectTimeout: cfg.Mirror.ConnectTimeout,
		}),
		Mirror: mirror.Options{
			ChunkSize: cfg.Mirror.ChunkSize,
			BatchSize: cfg.Mirror.BatchSize,
		},
		Manifests: backup.NewManifestClient(backup.ManifestConfig{
			Port:     cfg.Backup.DevicePort,
			CacheTTL: cfg.Cache.ManifestTTL,
		}),
		Runner: &backup.ExecRunner{Binary: cfg.Backup.RsyncBinary},
	})
}

// runForced backs up the named devices once and returns the exit code.
func runForced(ctx context.Context, sched *scheduler.Scheduler, names []string) int {
	logging.Info().Strs("devices", names).Msg("Running one-shot backup")

	summary, missing, err := sched.RunDevices(ctx, names)
	if err != nil {
		logging.Error().Err(err).Msg("One-shot backup failed")
		return 1
	}
	for _, name := range missing {
		logging.Warn().Str("device", name).Msg("Requested device was not discovered")
	}

	logging.Info().
		Int("submitted", summary.Submitted).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("timed_out", summary.TimedOut).
		Int("skipped", summary.Skipped).
		Msg("One-shot backup finished")

	if summary.HasFailures() {
		return 1
	}
	return 0
}

// originChecker returns nil, which accepts every origin, when origins is
// empty or contains "*".
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(origins, func(o string) bool {
			return strings.EqualFold(o, origin)
		})
	}
}
