package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestColorTextHandlerColorsByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l.Info("hello")
	if out := buf.String(); !strings.Contains(out, "\033[32m") || !strings.Contains(out, "hello") {
		t.Fatalf("info output missing green color or message: %q", out)
	}
	buf.Reset()
	l.Error("boom")
	if out := buf.String(); !strings.Contains(out, "\033[31m") {
		t.Fatalf("error output missing red color: %q", out)
	}
}

func TestSetupWithDirWritesFile(t *testing.T) {
	dir := t.TempDir()
	prev := slog.Default()
	defer slog.SetDefault(prev)

	l := Config{Level: "debug", Dir: dir}.Setup()
	l.Info("file sink check")

	b, err := os.ReadFile(filepath.Join(dir, "vigil.log"))
	if err != nil {
		t.Fatalf("read self-log: %v", err)
	}
	if !strings.Contains(string(b), "file sink check") {
		t.Fatalf("self-log missing message: %q", b)
	}
}

func TestSlogLevelParsing(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := (Config{Level: in}).slogLevel(); got != want {
			t.Fatalf("level %q: want %v got %v", in, want, got)
		}
	}
}
