package worker

import "time"

// Status is a point-in-time snapshot of one supervised worker.
type Status struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	Running      bool      `json:"running"`
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"started_at"`
	StoppedAt    time.Time `json:"stopped_at"`
	CrashStreak  int       `json:"crash_streak"`
	LastExitCode int       `json:"last_exit_code"`
	Restarts     int       `json:"restarts"`
}
