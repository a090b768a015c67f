package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/vigil/internal/config"
	"github.com/loykin/vigil/internal/journal"
	"github.com/loykin/vigil/internal/logrot"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/reaper"
	"github.com/loykin/vigil/internal/supervisor"
)

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	reapFlags := &ReapFlags{}

	root := &cobra.Command{
		Use:   "vigil",
		Short: "Keep a fixed set of worker processes alive",
		Long: `Vigil supervises a static set of long-running workers: it restarts them
on failure with bounded exponential backoff, guarantees one instance per
logical worker on the machine, and rotates per-day logs.

Examples:
  vigil run --config=vigil.toml
  vigil reap --pattern="python -m bots."
  vigil prune --config=vigil.toml`,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file")

	root.AddCommand(
		createRunCommand(globalFlags, runFlags),
		createReapCommand(globalFlags, reapFlags),
		createPruneCommand(globalFlags),
	)
	return root
}

func createRunCommand(globalFlags *GlobalFlags, runFlags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Supervise the configured worker set",
		Long: `Run starts one control loop per configured worker and blocks until
SIGINT/SIGTERM. Workers whose singleton lock is already held elsewhere are
skipped quietly; crashed workers are restarted with exponential backoff
until the crash streak cap is reached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(globalFlags, runFlags)
		},
	}
	cmd.Flags().StringVar(&runFlags.LogDir, "log-dir", "", "directory for per-worker dated logs (overrides config)")
	cmd.Flags().StringVar(&runFlags.LockDir, "lock-dir", "", "directory for singleton lock files (overrides config)")
	cmd.Flags().IntVar(&runFlags.Retention, "retention", 0, "dated log files kept per worker (overrides config)")
	cmd.Flags().StringVar(&runFlags.MetricsListen, "metrics-listen", "", "address to serve /metrics on (overrides config)")
	cmd.Flags().StringVar(&runFlags.JournalDSN, "journal-dsn", "", "SQLite DSN for the event journal (overrides config)")
	cmd.Flags().StringSliceVar(&runFlags.Skip, "skip", nil, "worker names to disable for this invocation")
	return cmd
}

func runSupervisor(globalFlags *GlobalFlags, runFlags *RunFlags) error {
	fc, err := loadConfig(globalFlags)
	if err != nil {
		return err
	}
	fc.Log.Setup()

	logDir := firstNonEmpty(runFlags.LogDir, fc.LogDir, "logs")
	lockDir := firstNonEmpty(runFlags.LockDir, fc.LockDir, logDir)
	retention := fc.Default.Retention
	if runFlags.Retention > 0 {
		retention = runFlags.Retention
	}

	specs := fc.WorkerSpecs()
	if len(specs) == 0 {
		return fmt.Errorf("no workers configured")
	}
	for i := range specs {
		if slices.Contains(runFlags.Skip, specs[i].Name) {
			specs[i].Disabled = true
		}
	}

	var sink journal.Sink
	if dsn := firstNonEmpty(runFlags.JournalDSN, fc.Journal.DSN); dsn != "" {
		s, err := journal.OpenSQLite(dsn)
		if err != nil {
			// Journal is best-effort; run without it rather than refusing to start.
			slog.Warn("journal unavailable", "dsn", dsn, "error", err)
		} else {
			sink = s
			defer func() { _ = s.Close() }()
		}
	}

	if addr := firstNonEmpty(runFlags.MetricsListen, fc.Listen); addr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		go serveMetrics(addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("supervisor starting", "workers", len(specs), "log_dir", logDir, "pid", os.Getpid())
	sup := supervisor.New(supervisor.Options{
		LogDir:    logDir,
		LockDir:   lockDir,
		Retention: retention,
		GlobalEnv: fc.Env,
		Journal:   sink,
	})
	err = sup.Run(ctx, specs)
	if errors.Is(err, context.Canceled) {
		slog.Info("supervisor stopped")
		return nil
	}
	return err
}

func createReapCommand(globalFlags *GlobalFlags, reapFlags *ReapFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Terminate processes matching command-line patterns",
		Long: `Reap scans the live process table and terminates every process whose
command line contains one of the given substrings: SIGTERM first, then
SIGKILL for survivors after a grace interval. Patterns should be specific
(a full module invocation string), not bare executable names.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns := reapFlags.Patterns
			grace := reapFlags.Grace
			if len(patterns) == 0 && globalFlags.ConfigPath != "" {
				fc, err := config.Load(globalFlags.ConfigPath)
				if err != nil {
					return err
				}
				patterns = fc.Reap.Patterns
				if fc.Reap.Grace > 0 && !cmd.Flags().Changed("grace") {
					grace = fc.Reap.Grace
				}
			}
			if len(patterns) == 0 {
				return fmt.Errorf("no patterns given (use --pattern or [reap] in the config)")
			}
			r := &reaper.Reaper{Grace: grace}
			matches, err := r.Stop(cmd.Context(), patterns)
			if err != nil {
				return err
			}
			fmt.Printf("reaped %d process(es)\n", len(matches))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&reapFlags.Patterns, "pattern", nil, "command-line substring to match (repeatable)")
	cmd.Flags().DurationVar(&reapFlags.Grace, "grace", reaper.DefaultGrace, "wait between SIGTERM and SIGKILL")
	return cmd
}

func createPruneCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete worker log files beyond the retention count",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := loadConfig(globalFlags)
			if err != nil {
				return err
			}
			logDir := firstNonEmpty(fc.LogDir, "logs")
			for _, spec := range fc.WorkerSpecs() {
				if err := logrot.Prune(logDir, spec.LogBaseName(), fc.Default.Retention); err != nil {
					slog.Warn("prune failed", "worker", spec.Name, "error", err)
				}
			}
			return nil
		},
	}
}

func loadConfig(globalFlags *GlobalFlags) (*config.FileConfig, error) {
	if globalFlags.ConfigPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return config.Load(globalFlags.ConfigPath)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server failed", "addr", addr, "error", err)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
