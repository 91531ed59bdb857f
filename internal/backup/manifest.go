// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fleetvault/internal/cache"
	"github.com/tomtom215/fleetvault/internal/clock"
	"github.com/tomtom215/fleetvault/internal/logging"
)

// VideoFile is one entry of a device video manifest.
type VideoFile struct {
	Path string `json:"path"`
	Size int64  `json:"size,omitempty"`
	Hash string `json:"hash,omitempty"`
}

// ManifestMetadata describes the device video store.
type ManifestMetadata struct {
	VideosDirectory string `json:"videos_directory"`
	TotalFiles      int    `json:"total_files"`
	DiskUsageBytes  int64  `json:"disk_usage_bytes"`
	DeviceIP        string `json:"device_ip"`
	MachineID       string `json:"machine_id,omitempty"`
	MachineName     string `json:"machine_name,omitempty"`
}

// Manifest is the /list_video_files response.
type Manifest struct {
	VideoFiles map[string]VideoFile `json:"video_files"`
	Metadata   ManifestMetadata     `json:"metadata"`
}

// ManifestConfig configures a ManifestClient.
type ManifestConfig struct {
	Port    int
	Timeout time.Duration
	// RequestsPerSecond and Burst bound the request rate across devices.
	RequestsPerSecond float64
	Burst             int
	// CacheTTL bounds how long CheckSyncStatus reuses a manifest.
	CacheTTL   time.Duration
	Clock      clock.Clock
	HTTPClient *http.Client
}

// ManifestClient fetches video manifests from devices.
type ManifestClient struct {
	port    int
	client  *http.Client
	limiter *rate.Limiter
	cache   *cache.Cache[*Manifest]
}

// NewManifestClient creates a client, applying defaults: port 9000,
// 30s timeout, 5 requests per second, 30s cache.
func NewManifestClient(cfg ManifestConfig) *ManifestClient {
	if cfg.Port == 0 {
		cfg.Port = DefaultDevicePort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &ManifestClient{
		port:    cfg.Port,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:   cache.New[*Manifest](cfg.CacheTTL, cfg.Clock),
	}
}

// URL returns the manifest URL for host. A host that already carries a
// port is used as is.
func (c *ManifestClient) URL(host string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(c.port))
	}
	return "http://" + host + "/list_video_files"
}

// Fetch retrieves a fresh manifest and refreshes the cache.
func (c *ManifestClient) Fetch(ctx context.Context, host string) (*Manifest, error) {
	m, err := c.fetch(ctx, host)
	if err != nil {
		return nil, err
	}
	c.cache.Set(host, m)
	return m, nil
}

// Cached returns a manifest no older than the cache TTL, refreshing
// expired entries in the background.
func (c *ManifestClient) Cached(ctx context.Context, host string) (*Manifest, error) {
	return c.cache.Load(host, func() (*Manifest, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.client.Timeout+time.Second)
		defer cancel()
		return c.fetch(fctx, host)
	})
}

func (c *ManifestClient) fetch(ctx context.Context, host string) (*Manifest, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := c.URL(host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get %s: status %d: %s", url, resp.StatusCode, body)
	}

	var m Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode video list from %s: %w", url, err)
	}
	if m.VideoFiles == nil {
		m.VideoFiles = map[string]VideoFile{}
	}
	logging.Debug().Str("url", url).Int("videos", len(m.VideoFiles)).Msg("Retrieved video list")
	return &m, nil
}
