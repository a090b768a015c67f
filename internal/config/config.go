package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/vigil/internal/logger"
	"github.com/loykin/vigil/internal/logrot"
	"github.com/loykin/vigil/internal/worker"
)

// FileConfig is the top-level TOML structure.
//
//	log_dir = "/var/log/vigil"
//	lock_dir = "/run/vigil"
//	env = ["PYTHONUNBUFFERED=1"]
//
//	[defaults]
//	max_crash_streak = 6
//	base_delay = "5s"
//	max_delay = "5m"
//	clean_exit_grace = "5s"
//	retention = 14
//
//	[log]
//	level = "info"
//	dir = "/var/log/vigil"
//
//	[journal]
//	dsn = "sqlite:///var/lib/vigil/journal.db"
//
//	[reap]
//	patterns = ["python -m bots."]
//	grace = "2s"
//
//	[[workers]]
//	name = "alpha"
//	command = "python -m bots.alpha"
//	workdir = "/srv/bots"
//	lock_name = "vigil-alpha"
type FileConfig struct {
	LogDir  string         `toml:"log_dir" mapstructure:"log_dir"`
	LockDir string         `toml:"lock_dir" mapstructure:"lock_dir"`
	Env     []string       `toml:"env" mapstructure:"env"`
	Listen  string         `toml:"listen" mapstructure:"listen"` // optional metrics listen address
	Default DefaultsConfig `toml:"defaults" mapstructure:"defaults"`
	Log     logger.Config  `toml:"log" mapstructure:"log"`
	Journal JournalConfig  `toml:"journal" mapstructure:"journal"`
	Reap    ReapConfig     `toml:"reap" mapstructure:"reap"`
	Workers []WorkerConfig `toml:"workers" mapstructure:"workers"`
}

// DefaultsConfig applies to every worker that does not override a field.
type DefaultsConfig struct {
	MaxCrashStreak int           `toml:"max_crash_streak" mapstructure:"max_crash_streak"`
	BaseDelay      time.Duration `toml:"base_delay" mapstructure:"base_delay"`
	MaxDelay       time.Duration `toml:"max_delay" mapstructure:"max_delay"`
	CleanExitGrace time.Duration `toml:"clean_exit_grace" mapstructure:"clean_exit_grace"`
	Retention      int           `toml:"retention" mapstructure:"retention"`
}

type JournalConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type ReapConfig struct {
	Patterns []string      `toml:"patterns" mapstructure:"patterns"`
	Grace    time.Duration `toml:"grace" mapstructure:"grace"`
}

type WorkerConfig struct {
	Name           string        `toml:"name" mapstructure:"name"`
	Command        string        `toml:"command" mapstructure:"command"`
	WorkDir        string        `toml:"workdir" mapstructure:"workdir"`
	Env            []string      `toml:"env" mapstructure:"env"`
	LogBase        string        `toml:"log_base" mapstructure:"log_base"`
	LockName       string        `toml:"lock_name" mapstructure:"lock_name"`
	Disabled       bool          `toml:"disabled" mapstructure:"disabled"`
	MaxCrashStreak int           `toml:"max_crash_streak" mapstructure:"max_crash_streak"`
	BaseDelay      time.Duration `toml:"base_delay" mapstructure:"base_delay"`
	MaxDelay       time.Duration `toml:"max_delay" mapstructure:"max_delay"`
	CleanExitGrace time.Duration `toml:"clean_exit_grace" mapstructure:"clean_exit_grace"`
}

// Load parses a TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if fc.Default.Retention <= 0 {
		fc.Default.Retention = logrot.DefaultRetention
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (fc *FileConfig) validate() error {
	seen := make(map[string]struct{}, len(fc.Workers))
	for i := range fc.Workers {
		w := &fc.Workers[i]
		if w.Name == "" {
			return fmt.Errorf("worker #%d requires a name", i+1)
		}
		if _, dup := seen[w.Name]; dup {
			return fmt.Errorf("duplicate worker name %q", w.Name)
		}
		seen[w.Name] = struct{}{}
		if w.Command == "" {
			return fmt.Errorf("worker %s requires a command", w.Name)
		}
	}
	return nil
}

// WorkerSpecs materializes the worker list, layering per-worker overrides
// over [defaults].
func (fc *FileConfig) WorkerSpecs() []worker.Spec {
	specs := make([]worker.Spec, 0, len(fc.Workers))
	for _, wc := range fc.Workers {
		rc := worker.RestartConfig{
			MaxCrashStreak: firstPositive(wc.MaxCrashStreak, fc.Default.MaxCrashStreak),
			BaseDelay:      firstPositiveDur(wc.BaseDelay, fc.Default.BaseDelay),
			MaxDelay:       firstPositiveDur(wc.MaxDelay, fc.Default.MaxDelay),
			CleanExitGrace: firstPositiveDur(wc.CleanExitGrace, fc.Default.CleanExitGrace),
		}
		specs = append(specs, worker.Spec{
			Name:     wc.Name,
			Command:  wc.Command,
			WorkDir:  wc.WorkDir,
			Env:      wc.Env,
			LogBase:  wc.LogBase,
			LockName: wc.LockName,
			Disabled: wc.Disabled,
			Restart:  rc.Normalized(),
		})
	}
	return specs
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveDur(vals ...time.Duration) time.Duration {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
