// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package inventory lists the files already backed up for each device and
// summarizes disk usage across the fleet.
//
// Walking large video trees is slow, so listings are served from a
// stale-while-revalidate cache: a stale listing is returned immediately
// and refreshed in the background, at most once per key at a time.
package inventory

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/fleetvault/internal/cache"
	"github.com/tomtom215/fleetvault/internal/clock"
	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/models"
)

// DefaultTTL is how long a listing is considered fresh.
const DefaultTTL = 5 * time.Minute

// Listing kinds, also used as cache key prefixes.
const (
	KindSQLite = "sqlite"
	KindVideos = "videos"
)

var (
	sqliteExtensions = []string{".db"}
	videoExtensions  = []string{".mp4", ".avi", ".h264", ".mkv", ".mov", ".webm"}
)

// FileInfo describes one backed up file.
type FileInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	RelativePath string `json:"relative_path"`
	Size         int64  `json:"size"`
	SizeHuman    string `json:"size_human"`
	Modified     int64  `json:"modified"`
	Status       string `json:"status"`
}

// Listing is the result of enumerating one directory. Files are newest
// first.
type Listing struct {
	Count          int        `json:"count"`
	TotalSize      int64      `json:"total_size"`
	TotalSizeHuman string     `json:"total_size_human"`
	Files          []FileInfo `json:"files"`
}

// DeviceFiles groups a device's listings.
type DeviceFiles struct {
	SQLite Listing `json:"sqlite"`
	Videos Listing `json:"videos"`
}

func emptyListing() Listing {
	return Listing{TotalSizeHuman: humanize.IBytes(0), Files: []FileInfo{}}
}

// Enumerate walks dir and lists regular files whose extension matches one
// of exts, case-insensitively. A missing directory yields an empty
// listing. Files that cannot be stat'ed are skipped.
func Enumerate(dir string, exts []string) (Listing, error) {
	out := emptyListing()
	if dir == "" {
		return out, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			logging.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		if d.IsDir() || !hasExtension(d.Name(), exts) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("could not stat file")
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}
		out.Files = append(out.Files, FileInfo{
			Name:         d.Name(),
			Path:         path,
			RelativePath: rel,
			Size:         info.Size(),
			SizeHuman:    humanize.IBytes(uint64(info.Size())),
			Modified:     info.ModTime().Unix(),
			Status:       "backed_up",
		})
		out.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return emptyListing(), nil
		}
		return emptyListing(), err
	}

	sort.SliceStable(out.Files, func(i, j int) bool {
		if out.Files[i].Modified != out.Files[j].Modified {
			return out.Files[i].Modified > out.Files[j].Modified
		}
		return out.Files[i].RelativePath < out.Files[j].RelativePath
	})
	out.Count = len(out.Files)
	out.TotalSizeHuman = humanize.IBytes(uint64(out.TotalSize))
	return out, nil
}

func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Config configures an Inventory.
type Config struct {
	// ResultsDir and VideosDir are the roots used when a device status
	// does not name its own directories. The device id is appended.
	ResultsDir string
	VideosDir  string
	TTL        time.Duration
	Clock      clock.Clock
}

// Inventory serves cached per-device listings.
type Inventory struct {
	cfg     Config
	listing *cache.Cache[Listing]
}

// New creates an Inventory.
func New(cfg Config) *Inventory {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	return &Inventory{cfg: cfg, listing: cache.New[Listing](cfg.TTL, cfg.Clock)}
}

// Files returns the sqlite and video listings for a device. The first
// request for a device walks the disk; later requests are served from the
// cache. Enumeration errors are logged and reported as empty listings.
func (inv *Inventory) Files(deviceID string, synced models.SyncStatus) DeviceFiles {
	return DeviceFiles{
		SQLite: inv.load(KindSQLite, deviceID, inv.directory(synced.Results, inv.cfg.ResultsDir, deviceID), sqliteExtensions),
		Videos: inv.load(KindVideos, deviceID, inv.directory(synced.Videos, inv.cfg.VideosDir, deviceID), videoExtensions),
	}
}

func (inv *Inventory) directory(st *models.DirectoryStatus, root, deviceID string) string {
	if st != nil && st.Directory != "" {
		return st.Directory
	}
	if root == "" || deviceID == "" {
		return ""
	}
	return filepath.Join(root, deviceID)
}

func (inv *Inventory) load(kind, deviceID, dir string, exts []string) Listing {
	key := kind + "/" + deviceID + "/" + dir
	l, err := inv.listing.Load(key, func() (Listing, error) {
		start := time.Now()
		l, err := Enumerate(dir, exts)
		if err == nil {
			logging.Debug().
				Str("kind", kind).
				Str("device_id", deviceID).
				Int("files", l.Count).
				Str("size", l.TotalSizeHuman).
				Dur("took", time.Since(start)).
				Msg("file enumeration refreshed")
		}
		return l, err
	})
	if err != nil {
		logging.Error().Err(err).Str("kind", kind).Str("device_id", deviceID).Str("dir", dir).Msg("file enumeration failed")
		return emptyListing()
	}
	return l
}

// Wait blocks until background refreshes finish. Used by tests and
// shutdown.
func (inv *Inventory) Wait() {
	inv.listing.Wait()
}

// Invalidate drops every cached listing for deviceID.
func (inv *Inventory) Invalidate(deviceID string, synced models.SyncStatus) {
	inv.listing.Delete(KindSQLite + "/" + deviceID + "/" + inv.directory(synced.Results, inv.cfg.ResultsDir, deviceID))
	inv.listing.Delete(KindVideos + "/" + deviceID + "/" + inv.directory(synced.Videos, inv.cfg.VideosDir, deviceID))
}
