package worker

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Default restart policy values. They match the behaviour the managed
// trading/monitoring daemons were tuned for: quick recovery from one-off
// crashes, a hard stop once a worker is clearly broken.
const (
	DefaultMaxCrashStreak = 6
	DefaultBaseDelay      = 5 * time.Second
	DefaultMaxDelay       = 300 * time.Second
	DefaultCleanExitGrace = 5 * time.Second
)

// RestartConfig bounds the restart behaviour of one worker.
type RestartConfig struct {
	MaxCrashStreak int           `json:"max_crash_streak" mapstructure:"max_crash_streak"` // consecutive non-zero exits before giving up
	BaseDelay      time.Duration `json:"base_delay" mapstructure:"base_delay"`             // first backoff step
	MaxDelay       time.Duration `json:"max_delay" mapstructure:"max_delay"`               // backoff ceiling
	CleanExitGrace time.Duration `json:"clean_exit_grace" mapstructure:"clean_exit_grace"` // pause before restarting after exit 0
}

// Normalized returns a copy with zero values replaced by defaults.
func (c RestartConfig) Normalized() RestartConfig {
	if c.MaxCrashStreak <= 0 {
		c.MaxCrashStreak = DefaultMaxCrashStreak
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.CleanExitGrace <= 0 {
		c.CleanExitGrace = DefaultCleanExitGrace
	}
	return c
}

// Spec describes one supervised worker. Specs are built from static
// configuration at startup and never mutated afterwards.
type Spec struct {
	Name     string        `json:"name" mapstructure:"name"`
	Command  string        `json:"command" mapstructure:"command"`   // command line to start the worker (shell-aware)
	WorkDir  string        `json:"work_dir" mapstructure:"workdir"`  // optional working dir
	Env      []string      `json:"env" mapstructure:"env"`           // optional extra env (KEY=VALUE)
	LogBase  string        `json:"log_base" mapstructure:"log_base"` // base name for dated log files; defaults to Name
	LockName string        `json:"lock_name" mapstructure:"lock_name"`
	Disabled bool          `json:"disabled" mapstructure:"disabled"`
	Restart  RestartConfig `json:"restart" mapstructure:"restart"`
}

// Validate checks the fields that cannot be defaulted.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("worker requires a name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("worker %s requires a command", s.Name)
	}
	return nil
}

// LogBaseName returns the base name for the worker's dated log files.
func (s *Spec) LogBaseName() string {
	if s.LogBase != "" {
		return s.LogBase
	}
	return s.Name
}

// LockKey returns the machine-wide singleton lock name for this worker.
// It must be stable across reboots and supervisor invocations.
func (s *Spec) LockKey() string {
	if s.LockName != "" {
		return s.LockName
	}
	return s.Name
}

// BuildCommand constructs an *exec.Cmd for the spec's command line.
// A shell is only involved when the command explicitly asks for one or
// contains shell metacharacters; plain commands are executed directly.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// Validate rejects this; keep a harmless fallback anyway.
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if script, ok := explicitShellScript(cmdStr); ok {
		// Absolute shell path so PATH overrides in Env cannot break startup.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", script)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// explicitShellScript detects a leading "sh -c <ARG>" (or an absolute-path
// variant) and returns the script after -c, with one surrounding quote pair
// stripped so redirections inside it still parse.
func explicitShellScript(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		script := trim[len(p):]
		if n := len(script); n >= 2 {
			if (script[0] == '\'' && script[n-1] == '\'') || (script[0] == '"' && script[n-1] == '"') {
				script = script[1 : n-1]
			}
		}
		return script, true
	}
	return "", false
}
