package worker

import (
	"strings"
	"testing"
)

func TestBuildCommandPlain(t *testing.T) {
	s := Spec{Name: "w", Command: "sleep 5"}
	cmd := s.BuildCommand()
	if len(cmd.Args) != 2 || cmd.Args[0] != "sleep" || cmd.Args[1] != "5" {
		t.Fatalf("unexpected args %v", cmd.Args)
	}
}

func TestBuildCommandMetacharsUseShell(t *testing.T) {
	s := Spec{Name: "w", Command: "echo hi > out.txt"}
	cmd := s.BuildCommand()
	if cmd.Args[0] != "/bin/sh" || cmd.Args[1] != "-c" {
		t.Fatalf("expected shell wrapping, got %v", cmd.Args)
	}
}

func TestBuildCommandExplicitShellNotDoubleWrapped(t *testing.T) {
	s := Spec{Name: "w", Command: "sh -c 'echo hi; sleep 1'"}
	cmd := s.BuildCommand()
	if cmd.Args[0] != "/bin/sh" || cmd.Args[1] != "-c" {
		t.Fatalf("expected /bin/sh -c, got %v", cmd.Args)
	}
	if strings.Contains(cmd.Args[2], "sh -c") {
		t.Fatalf("double-wrapped shell: %q", cmd.Args[2])
	}
	if cmd.Args[2] != "echo hi; sleep 1" {
		t.Fatalf("outer quotes not stripped: %q", cmd.Args[2])
	}
}

func TestValidate(t *testing.T) {
	if err := (&Spec{Name: "", Command: "x"}).Validate(); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if err := (&Spec{Name: "w", Command: " "}).Validate(); err == nil {
		t.Fatalf("expected error for missing command")
	}
	if err := (&Spec{Name: "w", Command: "sleep 1"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogBaseAndLockKeyDefaults(t *testing.T) {
	s := Spec{Name: "alpha"}
	if s.LogBaseName() != "alpha" || s.LockKey() != "alpha" {
		t.Fatalf("defaults should fall back to name")
	}
	s.LogBase = "alpha-bot"
	s.LockName = "vigil-alpha"
	if s.LogBaseName() != "alpha-bot" || s.LockKey() != "vigil-alpha" {
		t.Fatalf("overrides ignored")
	}
}
