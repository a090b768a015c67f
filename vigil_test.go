package vigil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSupervisorFacadeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	sup := NewSupervisor(Options{LogDir: dir})

	spec := WorkerSpec{
		Name:    "echoer",
		Command: "sh -c 'echo facade-line; sleep 5'",
		Restart: RestartConfig{
			MaxCrashStreak: 3,
			BaseDelay:      50 * time.Millisecond,
			MaxDelay:       time.Second,
			CleanExitGrace: 50 * time.Millisecond,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx, []WorkerSpec{spec}) }()

	logPath := filepath.Join(dir, "echoer-"+time.Now().Format("20060102")+".log")
	deadline := time.Now().Add(3 * time.Second)
	var seen bool
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(logPath); err == nil && strings.Contains(string(b), "facade-line") {
			seen = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done
	if !seen {
		t.Fatalf("worker output never reached %s", logPath)
	}

	sts := sup.Statuses()
	if len(sts) != 1 || sts[0].Name != "echoer" {
		t.Fatalf("statuses: %+v", sts)
	}
}

func TestPruneLogsFacade(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "w-20200101.log")
	recent := filepath.Join(dir, "w-20260825.log")
	_ = os.WriteFile(old, []byte("x"), 0o640)
	_ = os.WriteFile(recent, []byte("x"), 0o640)
	past := time.Now().Add(-100 * 24 * time.Hour)
	_ = os.Chtimes(old, past, past)

	if err := PruneLogs(dir, "w", 1); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("old log should be gone")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Fatalf("recent log should remain: %v", err)
	}
}

func TestOpenJournalFacade(t *testing.T) {
	s, err := OpenJournal(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	e := JournalEvent{Type: "start", OccurredAt: time.Now(), Worker: "w", PID: 1}
	if err := s.Record(context.Background(), e); err != nil {
		t.Fatalf("record: %v", err)
	}
}
