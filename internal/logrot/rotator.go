// Package logrot writes one append-only log file per worker per calendar
// day and prunes old files beyond a retention count. It deliberately does
// not use size-based rotation for worker output: the operators grep these
// files by date, so the date stamp is the rotation boundary.
package logrot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DefaultRetention is the number of dated files kept per worker.
const DefaultRetention = 14

const stampLayout = "20060102"

// Rotator is an io.Writer that appends to <dir>/<base>-YYYYMMDD.log,
// switching files on the first write of a new calendar date. Safe for
// concurrent use, so a child's stdout and stderr may share one Rotator
// and interleave in arrival order.
type Rotator struct {
	dir  string
	base string

	mu     sync.Mutex
	f      *os.File
	stamp  string
	failed bool // last open failed; avoids a warn per write

	now func() time.Time
}

func New(dir, base string) *Rotator {
	return &Rotator{dir: dir, base: base, now: time.Now}
}

// Write appends p to the current dated file, rotating first if the date
// changed. Log IO failures are swallowed after a warning: losing log lines
// must never take down the worker producing them.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := r.now().Format(stampLayout)
	if r.f == nil || stamp != r.stamp {
		r.rotateLocked(stamp)
	}
	if r.f == nil {
		return len(p), nil
	}
	if _, err := r.f.Write(p); err != nil {
		slog.Warn("log write failed", "file", r.fileName(r.stamp), "error", err)
	}
	return len(p), nil
}

// Close closes the current file, if any. The Rotator may be reused; the
// next Write reopens.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	r.stamp = ""
	return err
}

func (r *Rotator) rotateLocked(stamp string) {
	if r.f != nil {
		_ = r.f.Close()
		r.f = nil
	}
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		if !r.failed {
			slog.Warn("log dir create failed", "dir", r.dir, "error", err)
		}
		r.failed = true
		return
	}
	f, err := os.OpenFile(r.fileName(stamp), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		if !r.failed {
			slog.Warn("log open failed", "file", r.fileName(stamp), "error", err)
		}
		r.failed = true
		return
	}
	r.f = f
	r.stamp = stamp
	r.failed = false
}

func (r *Rotator) fileName(stamp string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s-%s.log", r.base, stamp))
}

// Prune deletes the oldest dated files for base beyond keep, ordered by
// last-modified time. Deletion failures are logged and skipped, never
// fatal. Run once at supervisor startup per worker.
func Prune(dir, base string, keep int) error {
	if keep <= 0 {
		keep = DefaultRetention
	}
	matches, err := filepath.Glob(filepath.Join(dir, base+"-*.log"))
	if err != nil {
		return err
	}
	if len(matches) <= keep {
		return nil
	}
	type entry struct {
		path string
		mod  time.Time
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: m, mod: fi.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mod.After(entries[j].mod) })
	for _, e := range entries[keep:] {
		if err := os.Remove(e.path); err != nil {
			slog.Warn("log prune failed", "file", e.path, "error", err)
		}
	}
	return nil
}
