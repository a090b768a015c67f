// Package reaper terminates every live process whose command line contains
// one of the configured substrings. It is a one-shot shutdown tool, not
// part of the supervise loop. Substring matching is intentionally
// permissive so it covers workers launched with varying flags; callers
// must pick patterns specific enough to avoid unrelated processes (a full
// module invocation string, not a bare executable name).
package reaper

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/vigil/internal/metrics"
)

// DefaultGrace is the wait between the graceful pass and the forced pass.
const DefaultGrace = 2 * time.Second

// Match is one process whose command line matched a pattern.
type Match struct {
	PID     int32  `json:"pid"`
	Cmdline string `json:"cmdline"`
}

// Reaper holds the termination parameters.
type Reaper struct {
	Grace time.Duration // wait before escalating to SIGKILL; DefaultGrace when zero
}

// FindMatches scans the live process table and returns processes whose
// command line contains any of the patterns. The calling process itself is
// never a match. Processes that vanish mid-scan are skipped.
func FindMatches(patterns []string) ([]Match, error) {
	procs, err := gopsproc.Processes()
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())
	var out []Match
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		for _, pat := range patterns {
			if pat != "" && strings.Contains(cmdline, pat) {
				out = append(out, Match{PID: p.Pid, Cmdline: cmdline})
				break
			}
		}
	}
	return out, nil
}

// Stop terminates every process matching the patterns: one graceful pass
// (SIGTERM), a grace interval, then a forced pass (SIGKILL) for targeted
// pids still alive. Processes that disappear between passes are treated as
// success, not errors. It returns the matches targeted by the first pass.
func (r *Reaper) Stop(ctx context.Context, patterns []string) ([]Match, error) {
	matches, err := FindMatches(patterns)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	for _, m := range matches {
		p, err := gopsproc.NewProcess(m.PID)
		if err != nil {
			continue // already gone
		}
		slog.Info("terminating process", "pid", m.PID, "cmdline", m.Cmdline)
		if err := p.TerminateWithContext(ctx); err != nil {
			slog.Debug("terminate failed", "pid", m.PID, "error", err)
			continue
		}
		metrics.IncReaped("term")
	}

	grace := r.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	select {
	case <-time.After(grace):
	case <-ctx.Done():
		return matches, ctx.Err()
	}

	// Second pass: anything targeted and still alive gets SIGKILL.
	for _, m := range matches {
		p, err := gopsproc.NewProcess(m.PID)
		if err != nil {
			continue
		}
		running, err := p.IsRunning()
		if err != nil || !running {
			continue
		}
		slog.Warn("process survived grace interval, killing", "pid", m.PID, "cmdline", m.Cmdline)
		if err := p.KillWithContext(ctx); err != nil {
			slog.Debug("kill failed", "pid", m.PID, "error", err)
			continue
		}
		metrics.IncReaped("kill")
	}
	return matches, nil
}
