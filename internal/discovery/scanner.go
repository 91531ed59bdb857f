// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/models"
)

// Scanner finds devices without the registry. Implementations look for at
// most dwell and return whatever they found.
type Scanner interface {
	Scan(ctx context.Context, dwell time.Duration) ([]models.Device, error)
}

// ProbeScanner asks each candidate host directly: GET /id for the device
// id, then GET /data/<id> for its descriptor. Hosts that do not answer are
// skipped.
type ProbeScanner struct {
	Hosts       []string
	Port        int
	Concurrency int
	Client      *http.Client
}

// DefaultProbeConcurrency bounds in-flight probes.
const DefaultProbeConcurrency = 16

// Scan implements Scanner.
func (s *ProbeScanner) Scan(ctx context.Context, dwell time.Duration) ([]models.Device, error) {
	if len(s.Hosts) == 0 {
		return nil, fmt.Errorf("scanner has no hosts configured")
	}
	if dwell > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dwell)
		defer cancel()
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	port := s.Port
	if port == 0 {
		port = 9000
	}
	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultProbeConcurrency
	}

	var (
		mu    sync.Mutex
		found []models.Device
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, host := range s.Hosts {
		g.Go(func() error {
			d, err := probe(gctx, client, host, port)
			if err != nil {
				logging.Debug().Err(err).Str("host", host).Msg("Probe failed")
				return nil
			}
			mu.Lock()
			found = append(found, d)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

func probe(ctx context.Context, client *http.Client, host string, port int) (models.Device, error) {
	base := "http://" + net.JoinHostPort(host, strconv.Itoa(port))

	var ident struct {
		ID string `json:"id"`
	}
	if err := getJSON(ctx, client, base+"/id", &ident); err != nil {
		return models.Device{}, err
	}
	if ident.ID == "" {
		return models.Device{}, fmt.Errorf("host %s returned an empty id", host)
	}

	var d models.Device
	if err := getJSON(ctx, client, base+"/data/"+ident.ID, &d); err != nil {
		return models.Device{}, err
	}
	if d.ID == "" {
		d.ID = ident.ID
	}
	if d.IP == "" {
		d.IP = host
	}
	return d, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
