// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/fleetvault/internal/artifact"
	"github.com/tomtom215/fleetvault/internal/clock"
	"github.com/tomtom215/fleetvault/internal/mirror"
	"github.com/tomtom215/fleetvault/internal/models"
)

// Mode selects the job flavor.
type Mode string

const (
	ModeMirror  Mode = "mirror"
	ModeVideo   Mode = "video"
	ModeUnified Mode = "unified"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeMirror, ModeVideo, ModeUnified:
		return m, nil
	default:
		return "", fmt.Errorf("unknown backup mode %q (want mirror, video or unified)", s)
	}
}

// Default remote locations on a device.
const (
	DefaultDevicePort      = 9000
	DefaultSSHUser         = "ethoscope"
	DefaultRemoteResults   = "/ethoscope_data/results/"
	DefaultRemoteVideos    = "/ethoscope_data/videos/"
	DefaultRsyncIOTimeout  = 300 * time.Second
	DefaultRecentMaxAge    = artifact.DefaultMaxAge
	defaultVideosDirectory = "/ethoscope_data/videos"
)

// Options configures every job built by a Factory.
type Options struct {
	Mode Mode

	// ResultsDir receives mirrors and rsynced results.
	ResultsDir string
	// VideosDir receives videos. Empty means ResultsDir with /results/
	// replaced by /videos/.
	VideosDir string

	// BackupResults and BackupVideos select the unified operations.
	BackupResults bool
	BackupVideos  bool

	DevicePort     int
	SSHUser        string
	SSHKeyPath     string
	RsyncIOTimeout time.Duration

	// SkipIfRecent skips mirror jobs whose completion marker is younger
	// than RecentMaxAge.
	SkipIfRecent bool
	RecentMaxAge time.Duration

	Dialer mirror.Dialer
	Mirror mirror.Options

	Artifacts *artifact.Store
	Manifests *ManifestClient
	Runner    Runner
	Clock     clock.Clock
}

func (o *Options) normalize() {
	if o.Mode == "" {
		o.Mode = ModeMirror
	}
	if o.VideosDir == "" {
		o.VideosDir = DeriveVideosDir(o.ResultsDir)
	}
	if o.DevicePort == 0 {
		o.DevicePort = DefaultDevicePort
	}
	if o.SSHUser == "" {
		o.SSHUser = DefaultSSHUser
	}
	if o.RsyncIOTimeout <= 0 {
		o.RsyncIOTimeout = DefaultRsyncIOTimeout
	}
	if o.RecentMaxAge <= 0 {
		o.RecentMaxAge = DefaultRecentMaxAge
	}
	if o.Clock == nil {
		o.Clock = clock.System
	}
	if o.Artifacts == nil {
		o.Artifacts = artifact.NewStore(o.Clock)
	}
	if o.Runner == nil {
		o.Runner = &ExecRunner{}
	}
	if o.Manifests == nil {
		o.Manifests = NewManifestClient(ManifestConfig{Port: o.DevicePort, Clock: o.Clock})
	}
}

// DeriveVideosDir maps a results directory to its sibling videos directory.
func DeriveVideosDir(resultsDir string) string {
	if strings.Contains(resultsDir, "/results/") {
		return strings.Replace(resultsDir, "/results/", "/videos/", 1)
	}
	if strings.HasSuffix(resultsDir, "/results") {
		return strings.TrimSuffix(resultsDir, "/results") + "/videos"
	}
	return resultsDir
}

// Factory builds jobs for devices.
type Factory struct {
	opts Options
}

// NewFactory returns a Factory, filling defaults into opts.
func NewFactory(opts Options) (*Factory, error) {
	opts.normalize()
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.ResultsDir == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	if opts.Mode == ModeMirror && opts.Dialer == nil {
		return nil, fmt.Errorf("mirror mode requires a database dialer")
	}
	if opts.Mode == ModeUnified && !opts.BackupResults && !opts.BackupVideos {
		return nil, fmt.Errorf("unified mode needs results, videos or both enabled")
	}
	return &Factory{opts: opts}, nil
}

// Mode returns the configured mode.
func (f *Factory) Mode() Mode {
	return f.opts.Mode
}

// Options returns a copy of the normalized options.
func (f *Factory) Options() Options {
	return f.opts
}

// New returns a fresh job for device.
func (f *Factory) New(device models.Device) Job {
	switch f.opts.Mode {
	case ModeVideo:
		return NewVideoJob(device, &f.opts)
	case ModeUnified:
		return NewUnifiedJob(device, &f.opts)
	default:
		return NewMirrorJob(device, &f.opts)
	}
}
