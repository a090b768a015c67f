package worker

import "time"

// State of one worker as seen by its restart policy.
//
// State Machine:
// Starting -> Running -> Exited(code) -> {BackoffWait -> Starting} | GivenUp
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateBackoffWait
	StateGivenUp
	StateStopped // loop ended: clean shutdown or lock already held
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateBackoffWait:
		return "backoff_wait"
	case StateGivenUp:
		return "given_up"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Decision is the policy's answer to one observed exit.
type Decision struct {
	Restart bool          // spawn again after Delay
	Delay   time.Duration // backoff (crash) or clean-exit grace
	GivenUp bool          // terminal, no further spawns
}

// Policy is the per-worker restart state machine. It is owned exclusively
// by the worker's control loop and is not safe for concurrent use.
type Policy struct {
	cfg          RestartConfig
	crashStreak  int
	lastExitCode int
}

func NewPolicy(cfg RestartConfig) *Policy {
	return &Policy{cfg: cfg.Normalized()}
}

// OnExit feeds one observed exit code into the state machine.
//
// A clean exit resets the crash streak and schedules a restart after a short
// grace delay: workers that exit 0 are expected to loop forever at a higher
// level, so exit 0 means "restart soon", not "stop". A non-zero exit bumps
// the streak and either backs off exponentially or gives up at the cap.
func (p *Policy) OnExit(code int) Decision {
	p.lastExitCode = code
	if code == 0 {
		p.crashStreak = 0
		return Decision{Restart: true, Delay: p.cfg.CleanExitGrace}
	}
	p.crashStreak++
	if p.crashStreak >= p.cfg.MaxCrashStreak {
		return Decision{GivenUp: true}
	}
	return Decision{Restart: true, Delay: BackoffDelay(p.cfg, p.crashStreak)}
}

// CrashStreak returns the count of consecutive non-zero exits since the
// last clean exit or initial start.
func (p *Policy) CrashStreak() int { return p.crashStreak }

// LastExitCode returns the most recently observed exit code.
func (p *Policy) LastExitCode() int { return p.lastExitCode }

// BackoffDelay computes min(base * 2^(streak-1), max) for streak >= 1.
func BackoffDelay(cfg RestartConfig, streak int) time.Duration {
	cfg = cfg.Normalized()
	if streak < 1 {
		streak = 1
	}
	d := cfg.BaseDelay
	for i := 1; i < streak; i++ {
		d *= 2
		if d >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}
