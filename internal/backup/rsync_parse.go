// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/models"
)

var (
	// "1,234,567  67%  123.45kB/s  0:00:12"
	progressRe = regexp.MustCompile(`^(\d{1,3}(?:,\d{3})*)\s+(\d{1,3})%\s+(\S+/s)`)

	// "12,664,832 100% 11.06MB/s 0:00:01 (xfr#12, to-chk=3/27)"
	completedRe = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*)\s+100%\s+(.+?/s).*\(xfr#(\d+)`)

	// ">f+++++++++ path/to/file", regular files only
	itemizeRe = regexp.MustCompile(`^[<>ch.*]f[.+cstpoguax]{9}\s+`)

	totalSizeRe = regexp.MustCompile(`^Total file size:\s*(\d{1,3}(?:,\d{3})*)`)
)

// rsync chatter that is neither a file name nor a progress line.
var statusPrefixes = []string{
	"rsync:", "rsync error", "sending incremental", "receiving incremental",
	"receiving file list", "building file list", "sent ", "total size",
	"Total ", "Number of", "Literal data", "Matched data", "File list",
	"created directory", "done", "deleting ",
}

func isStatusLine(line string) bool {
	if strings.Contains(line, "xfr#") || strings.Contains(line, "to-chk=") {
		return true
	}
	for _, p := range statusPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	return n
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// videoProgress turns plain "rsync -avz --progress" output into one
// message per file started and one per file completed.
type videoProgress struct {
	total     int
	current   string
	started   int
	completed int
	bytes     int64
}

func (p *videoProgress) Line(line string) (string, bool) {
	if m := progressRe.FindStringSubmatch(line); m != nil {
		if m[2] != "100" {
			return "", false
		}
		n := parseCount(m[1])
		p.completed++
		p.bytes += n
		return fmt.Sprintf("Transferring %s: 100%% complete (%s)", p.current, m[3]), true
	}
	if isStatusLine(line) || strings.HasSuffix(line, "/") {
		return "", false
	}
	if strings.HasPrefix(line, "./") || strings.Contains(line, "/") || filepath.Ext(line) != "" {
		p.current = filepath.Base(line)
		p.started++
		return fmt.Sprintf("Transferring file %d/%d: %s", p.started, p.total, p.current), true
	}
	return "", false
}

// transferParser collects per-file details from itemized rsync output.
type transferParser struct {
	op      string
	now     func() time.Time
	files   map[string]models.FileTransfer
	order   []string
	current string
	// totalBytes sums the completed sizes seen on progress lines.
	totalBytes int64
	// totalSize is rsync's own "Total file size" figure.
	totalSize int64
}

func newTransferParser(op string, now func() time.Time) *transferParser {
	return &transferParser{op: op, now: now, files: make(map[string]models.FileTransfer)}
}

func (p *transferParser) Line(line string) (string, bool) {
	switch {
	case itemizeRe.MatchString(line):
		path := strings.TrimSpace(line[11:])
		name := filepath.Base(path)
		if name == "" || name == "." {
			return "", false
		}
		if _, seen := p.files[name]; seen {
			return "", false
		}
		p.files[name] = models.FileTransfer{
			Path:          path,
			Status:        "transferring",
			TransferStart: epoch(p.now()),
		}
		p.order = append(p.order, name)
		p.current = name
		return fmt.Sprintf("%s: Processing %s (file #%d)", title(p.op), name, len(p.order)), true

	case completedRe.MatchString(line):
		m := completedRe.FindStringSubmatch(line)
		n := parseCount(m[1])
		speed := strings.TrimSpace(m[2])
		if f, ok := p.files[p.current]; ok {
			f.SizeBytes = n
			f.SizeHuman = humanize.IBytes(uint64(n))
			f.TransferSpeed = speed
			p.files[p.current] = f
		}
		p.totalBytes += n
		return fmt.Sprintf("%s: %s completed - %s (%s)", title(p.op), p.current, humanize.IBytes(uint64(n)), speed), true

	case totalSizeRe.MatchString(line):
		p.totalSize = parseCount(totalSizeRe.FindStringSubmatch(line)[1])
	}
	return "", false
}

// finish marks every file completed, takes final sizes from the
// destination tree and returns the transfer detail for the operation.
func (p *transferParser) finish(dest string) models.TransferDetail {
	end := epoch(p.now())
	for _, name := range p.order {
		f := p.files[name]
		f.Status = "completed"
		f.TransferEnd = end

		candidates := []string{
			filepath.Join(dest, strings.TrimLeft(f.Path, "./")),
			filepath.Join(dest, name),
			filepath.Join(dest, f.Path),
		}
		found := false
		for _, c := range candidates {
			if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
				f.SizeBytes = fi.Size()
				f.SizeHuman = humanize.IBytes(uint64(fi.Size()))
				found = true
				break
			}
		}
		if !found {
			logging.Warn().Str("file", name).Strs("candidates", candidates).Msg("Could not find transferred file")
		}
		p.files[name] = f
	}

	files := make(map[string]models.FileTransfer, len(p.files))
	for k, v := range p.files {
		files[k] = v
	}
	return models.TransferDetail{
		Files:          files,
		TotalFiles:     len(p.order),
		TotalBytes:     p.totalBytes,
		CompletionTime: end,
	}
}
