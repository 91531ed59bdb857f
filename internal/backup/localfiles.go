// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/fleetvault/internal/models"
)

// localVideoFiles indexes .h264 files under root by base name.
func localVideoFiles(root string) map[string]string {
	out := make(map[string]string)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".h264") {
			out[d.Name()] = path
		}
		return nil
	})
	return out
}

// directoryStatus counts files and bytes under dir. A missing directory
// reports zero files.
func directoryStatus(dir, typ string) models.DirectoryStatus {
	st := models.DirectoryStatus{Directory: dir, Type: typ}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		st.LocalFiles++
		if info, err := d.Info(); err == nil {
			st.DiskUsageBytes += info.Size()
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		st.Error = err.Error()
	}
	st.DiskUsageHuman = humanize.IBytes(uint64(st.DiskUsageBytes))
	return st
}
