package reaper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"
)

// startMarked launches a shell that sleeps with a unique marker in its
// command line so the test can match it without touching anything else.
func startMarked(t *testing.T, marker, script string) *exec.Cmd {
	t.Helper()
	// #nosec G204
	cmd := exec.Command("/bin/sh", "-c", fmt.Sprintf("%s # %s", script, marker))
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})
	return cmd
}

func uniqueMarker(t *testing.T, tag string) string {
	return fmt.Sprintf("vigil-reap-test-%s-%d-%d", tag, os.Getpid(), time.Now().UnixNano())
}

func waitExited(t *testing.T, cmd *exec.Cmd, within time.Duration) bool {
	t.Helper()
	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(within):
		return false
	}
}

func TestFindMatchesBySubstring(t *testing.T) {
	marker := uniqueMarker(t, "find")
	startMarked(t, marker, "sleep 30; :")

	deadline := time.Now().Add(2 * time.Second)
	for {
		matches, err := FindMatches([]string{marker})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(matches) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("want 1 match, got %d", len(matches))
		}
		time.Sleep(20 * time.Millisecond)
	}

	matches, err := FindMatches([]string{uniqueMarker(t, "absent")})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("unrelated pattern matched %d processes", len(matches))
	}
}

func TestStopTerminatesOnlyMatches(t *testing.T) {
	target := uniqueMarker(t, "target")
	bystander := uniqueMarker(t, "bystander")
	victim := startMarked(t, target, "sleep 30; :")
	survivor := startMarked(t, bystander, "sleep 30; :")

	r := &Reaper{Grace: 500 * time.Millisecond}
	matches, err := r.Stop(context.Background(), []string{target})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("want 1 target, got %d", len(matches))
	}
	if !waitExited(t, victim, 2*time.Second) {
		t.Fatalf("target still alive after reap")
	}
	if waitExited(t, survivor, 300*time.Millisecond) {
		t.Fatalf("bystander was killed")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	marker := uniqueMarker(t, "stubborn")
	// Shell ignores SIGTERM; only SIGKILL can take it down.
	stubborn := startMarked(t, marker, `trap "" TERM; sleep 30`)

	r := &Reaper{Grace: 300 * time.Millisecond}
	start := time.Now()
	matches, err := r.Stop(context.Background(), []string{marker})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("want 1 target, got %d", len(matches))
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("second pass ran before the grace interval: %v", elapsed)
	}
	if !waitExited(t, stubborn, 2*time.Second) {
		t.Fatalf("stubborn process survived SIGKILL pass")
	}
}

func TestStopVanishedTargetIsSuccess(t *testing.T) {
	marker := uniqueMarker(t, "vanish")
	brief := startMarked(t, marker, "sleep 30; :")
	// Kill it ourselves so the reaper's second pass sees it gone.
	_ = brief.Process.Kill()
	_, _ = brief.Process.Wait()

	r := &Reaper{Grace: 100 * time.Millisecond}
	if _, err := r.Stop(context.Background(), []string{marker}); err != nil {
		t.Fatalf("vanished target must not be an error: %v", err)
	}
}
