// Package vigil supervises a fixed set of long-running worker processes:
// it restarts them on failure with bounded exponential backoff, enforces
// one live instance per logical worker per machine, rotates per-day logs
// with a retention cap, and can bulk-terminate a worker set by
// command-line pattern.
package vigil

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/vigil/internal/config"
	"github.com/loykin/vigil/internal/journal"
	"github.com/loykin/vigil/internal/lock"
	"github.com/loykin/vigil/internal/logrot"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/reaper"
	"github.com/loykin/vigil/internal/supervisor"
	"github.com/loykin/vigil/internal/worker"
)

// Re-export core types for embedding. Aliases, so conversions are free.

type WorkerSpec = worker.Spec

type RestartConfig = worker.RestartConfig

type Status = worker.Status

type Options = supervisor.Options

type JournalEvent = journal.Event

type JournalSink = journal.Sink

// ErrAlreadyHeld reports that another live instance owns a worker's
// singleton lock; callers should treat it as normal control flow.
var ErrAlreadyHeld = lock.ErrAlreadyHeld

// Supervisor is a thin facade over internal/supervisor.
type Supervisor struct{ inner *supervisor.Supervisor }

func NewSupervisor(opts Options) *Supervisor {
	return &Supervisor{inner: supervisor.New(opts)}
}

// Run drives one control loop per worker until ctx is canceled or every
// loop has ended (lock held elsewhere, or crash streak cap reached).
func (s *Supervisor) Run(ctx context.Context, specs []WorkerSpec) error {
	return s.inner.Run(ctx, specs)
}

func (s *Supervisor) Statuses() []Status { return s.inner.Statuses() }

// Reap terminates every process whose command line contains one of the
// patterns: SIGTERM, then SIGKILL for survivors after grace.
func Reap(ctx context.Context, patterns []string, grace time.Duration) (int, error) {
	r := &reaper.Reaper{Grace: grace}
	matches, err := r.Stop(ctx, patterns)
	return len(matches), err
}

// PruneLogs deletes a worker's dated log files beyond keep, oldest first.
func PruneLogs(dir, base string, keep int) error { return logrot.Prune(dir, base, keep) }

// OpenJournal opens the SQLite event journal at dsn.
func OpenJournal(dsn string) (JournalSink, error) { return journal.OpenSQLite(dsn) }

// LoadConfig parses a TOML config file.
func LoadConfig(path string) (*cfg.FileConfig, error) { return cfg.Load(path) }

// Metrics helpers (public facade).

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
