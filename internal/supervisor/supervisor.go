// Package supervisor runs one control loop per worker: acquire the
// singleton lock, spawn the child, stream its combined output to the dated
// log, wait for exit, and consult the restart policy. Worker loops are
// fully independent; failure, backoff, or give-up of one never blocks or
// aborts another.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/vigil/internal/journal"
	"github.com/loykin/vigil/internal/lock"
	"github.com/loykin/vigil/internal/logrot"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/worker"
)

// stopWait bounds how long a child gets between SIGTERM and SIGKILL when
// the supervisor itself is shutting down.
const stopWait = 5 * time.Second

// Options configures a Supervisor.
type Options struct {
	LogDir    string       // directory for per-worker dated logs
	Retention int          // dated log files kept per worker; logrot.DefaultRetention when zero
	LockDir   string       // directory for singleton lock files; defaults to LogDir
	GlobalEnv []string     // extra KEY=VALUE entries applied to every worker
	Journal   journal.Sink // optional; best-effort event recording
}

// Supervisor owns a fixed worker set for the duration of one Run call.
type Supervisor struct {
	opts  Options
	guard *lock.Guard

	mu       sync.Mutex
	statuses map[string]*worker.Status
}

func New(opts Options) *Supervisor {
	lockDir := opts.LockDir
	if lockDir == "" {
		lockDir = opts.LogDir
	}
	return &Supervisor{
		opts:     opts,
		guard:    lock.NewGuard(lockDir),
		statuses: make(map[string]*worker.Status),
	}
}

// Run validates the specs, prunes each worker's old logs once, then drives
// one control loop per enabled worker until ctx is canceled or every loop
// has ended on its own (lock already held, or given up). Under normal
// operation with healthy workers it does not return.
func (s *Supervisor) Run(ctx context.Context, specs []worker.Spec) error {
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	for i := range specs {
		spec := specs[i]
		if spec.Disabled {
			slog.Info("worker disabled, skipping", "worker", spec.Name)
			continue
		}
		if err := logrot.Prune(s.opts.LogDir, spec.LogBaseName(), s.opts.Retention); err != nil {
			slog.Warn("log prune failed", "worker", spec.Name, "error", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runWorker(ctx, spec)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Statuses returns a snapshot of every worker this supervisor has touched.
func (s *Supervisor) Statuses() []worker.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]worker.Status, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, *st)
	}
	return out
}

// runWorker is one worker's control loop. It holds the singleton lock for
// the worker's entire supervised lifetime and releases it on every exit
// path.
func (s *Supervisor) runWorker(ctx context.Context, spec worker.Spec) {
	log := slog.Default().With("worker", spec.Name)

	h, err := s.guard.Acquire(spec.LockKey())
	if errors.Is(err, lock.ErrAlreadyHeld) {
		// Normal outcome: a legitimate instance is active elsewhere.
		log.Info("another instance is active, not starting", "lock", spec.LockKey(), "holder_pid", s.guard.Holder(spec.LockKey()))
		s.setState(spec.Name, worker.StateStopped, func(st *worker.Status) {})
		s.record(ctx, journal.Event{Type: journal.EventSkipped, OccurredAt: time.Now(), Worker: spec.Name})
		return
	}
	if err != nil {
		log.Error("lock acquisition failed", "lock", spec.LockKey(), "error", err)
		return
	}
	defer h.Release()

	rot := logrot.New(s.opts.LogDir, spec.LogBaseName())
	defer func() { _ = rot.Close() }()

	policy := worker.NewPolicy(spec.Restart)
	restarts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		cmd := s.configureCmd(spec, rot)
		if err := cmd.Start(); err != nil {
			// Configuration-level failure (executable missing, bad workdir):
			// fatal for this worker only, before its loop proper begins.
			log.Error("spawn failed, abandoning worker", "command", spec.Command, "error", err)
			s.setState(spec.Name, worker.StateStopped, func(st *worker.Status) {})
			s.record(ctx, journal.Event{Type: journal.EventGivenUp, OccurredAt: time.Now(), Worker: spec.Name, Detail: err.Error()})
			return
		}
		pid := cmd.Process.Pid
		log.Info("worker started", "pid", pid, "restarts", restarts)
		s.setState(spec.Name, worker.StateRunning, func(st *worker.Status) {
			st.Running = true
			st.PID = pid
			st.StartedAt = time.Now()
			st.Restarts = restarts
		})
		metrics.IncStart(spec.Name)
		s.record(ctx, journal.Event{Type: journal.EventStart, OccurredAt: time.Now(), Worker: spec.Name, PID: pid})

		waitCh := make(chan error, 1)
		go func() { waitCh <- cmd.Wait() }()

		var waitErr error
		select {
		case waitErr = <-waitCh:
		case <-ctx.Done():
			terminate(cmd, waitCh, log)
			s.setState(spec.Name, worker.StateStopped, func(st *worker.Status) {
				st.Running = false
				st.StoppedAt = time.Now()
			})
			return
		}

		code := exitCode(waitErr)
		d := policy.OnExit(code)
		s.setState(spec.Name, worker.StateBackoffWait, func(st *worker.Status) {
			st.Running = false
			st.StoppedAt = time.Now()
			st.CrashStreak = policy.CrashStreak()
			st.LastExitCode = code
		})
		s.record(ctx, journal.Event{Type: journal.EventExit, OccurredAt: time.Now(), Worker: spec.Name, PID: pid, ExitCode: code})
		if code == 0 {
			log.Info("worker exited cleanly, restarting after grace", "grace", d.Delay)
		} else {
			metrics.IncCrash(spec.Name)
			log.Warn("worker crashed", "exit_code", code, "crash_streak", policy.CrashStreak())
		}
		metrics.SetCrashStreak(spec.Name, policy.CrashStreak())

		if d.GivenUp {
			log.Error("crash streak cap reached, giving up", "crash_streak", policy.CrashStreak())
			s.setState(spec.Name, worker.StateGivenUp, func(st *worker.Status) {})
			metrics.IncGivenUp(spec.Name)
			s.record(ctx, journal.Event{Type: journal.EventGivenUp, OccurredAt: time.Now(), Worker: spec.Name, PID: pid, ExitCode: code})
			return
		}

		timer := time.NewTimer(d.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
		restarts++
		metrics.IncRestart(spec.Name)
		s.setState(spec.Name, worker.StateStarting, func(st *worker.Status) {})
	}
}

// configureCmd builds the child command: workdir, merged env, combined
// stdout/stderr into the dated log (interleaved in arrival order), and its
// own process group so termination signals reach descendants.
func (s *Supervisor) configureCmd(spec worker.Spec, rot *logrot.Rotator) *exec.Cmd {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(s.opts.GlobalEnv) > 0 || len(spec.Env) > 0 {
		env := os.Environ()
		env = append(env, s.opts.GlobalEnv...)
		env = append(env, spec.Env...)
		cmd.Env = env
	}
	cmd.Stdout = rot
	cmd.Stderr = rot
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// terminate asks the child's process group to exit and escalates to
// SIGKILL after stopWait. The waiter goroutine owns cmd.Wait.
func terminate(cmd *exec.Cmd, waitCh <-chan error, log *slog.Logger) {
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-waitCh:
	case <-time.After(stopWait):
		log.Warn("worker ignored SIGTERM, killing", "pid", pid)
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		select {
		case <-waitCh:
		case <-time.After(200 * time.Millisecond):
			// best-effort
		}
	}
}

func (s *Supervisor) setState(name string, state worker.State, update func(*worker.Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[name]
	if !ok {
		st = &worker.Status{Name: name}
		s.statuses[name] = st
	}
	st.State = state.String()
	update(st)
}

// record sends one event to the journal, best-effort.
func (s *Supervisor) record(ctx context.Context, e journal.Event) {
	if s.opts.Journal == nil {
		return
	}
	if err := s.opts.Journal.Record(context.WithoutCancel(ctx), e); err != nil {
		slog.Warn("journal write failed", "event", string(e.Type), "worker", e.Worker, "error", err)
	}
}

// exitCode maps cmd.Wait's error to the child's exit code. Signal deaths
// have no exit code; they count as crashes with code -1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if code := ee.ExitCode(); code >= 0 {
			return code
		}
	}
	return -1
}
