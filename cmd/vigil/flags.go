package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags holds flags for the run command. Non-zero values override the
// corresponding config file fields.
type RunFlags struct {
	LogDir        string
	LockDir       string
	Retention     int
	MetricsListen string
	JournalDSN    string
	Skip          []string // worker names to disable for this invocation
}

// ReapFlags holds flags for the reap command.
type ReapFlags struct {
	Patterns []string
	Grace    time.Duration
}
