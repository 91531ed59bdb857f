// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"
)

// Runner executes rsync. Implementations call onLine for every output
// line (stdout and stderr merged) and return the process exit code.
// A non-nil error means the process could not be run to completion.
type Runner interface {
	Run(ctx context.Context, args []string, onLine func(string)) (exitCode int, err error)
}

// ExecRunner runs the rsync binary as a subprocess. The process is killed
// when ctx is done.
type ExecRunner struct {
	// Binary defaults to "rsync".
	Binary string
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, args []string, onLine func(string)) (int, error) {
	bin := r.Binary
	if bin == "" {
		bin = "rsync"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	// ssh may keep the output pipe open after rsync is killed.
	cmd.WaitDelay = 5 * time.Second
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return -1, fmt.Errorf("start rsync: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		scanner.Split(scanLines)
		for scanner.Scan() {
			if line := string(bytes.TrimSpace(scanner.Bytes())); line != "" {
				onLine(line)
			}
		}
		// Keep draining so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
	}()

	err := cmd.Wait()
	pw.Close()
	<-done

	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// scanLines splits on \n and on the \r rsync uses to redraw progress.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type rsyncSpec struct {
	source  string
	dest    string
	sshKey  string
	timeout time.Duration
	// unified adds stats, itemized changes and SQLite sidecar excludes.
	unified bool
}

func (s rsyncSpec) args() []string {
	args := []string{"-avz", "--progress", "--partial"}
	if s.unified {
		args = append(args,
			"--stats",
			"--itemize-changes",
			"--exclude=*.db-shm",
			"--exclude=*.db-wal",
			"--exclude=*.db-journal",
		)
	}
	args = append(args, "--timeout="+strconv.Itoa(int(s.timeout.Seconds())))
	if s.sshKey != "" {
		args = append(args, "-e", fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=no", s.sshKey))
	} else {
		args = append(args, "-e", "ssh -o StrictHostKeyChecking=no")
	}
	return append(args, s.source, s.dest)
}
