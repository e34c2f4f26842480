package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"feedcaster/internal/config"
	"feedcaster/internal/logging"
	"feedcaster/internal/services"
)

func TestNewFromConfigWritesRunLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, runLog, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if runLog == "" || filepath.Dir(runLog) != cfg.Paths.LogDir {
		t.Fatalf("unexpected run log path %q", runLog)
	}
	logger.Info("run started")

	content, err := os.ReadFile(runLog)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(content), "run started") {
		t.Fatalf("expected message in run log, got %q", content)
	}
}

func TestConsoleHoistsShowAndItem(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithShowID(context.Background(), "tech")
	ctx = services.WithItemGUID(ctx, "guid-1")
	ctx = services.WithStage(ctx, "publish")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "workflow")).
		Info("stage complete", logging.Duration("elapsed", 2*time.Second))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"INFO", "[tech/guid-1] workflow: stage complete", "stage=publish", "elapsed=2s"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, "show_id=") || strings.Contains(line, ".go:") {
		t.Fatalf("expected hoisted fields and no caller at info level, got %q", line)
	}
}

func TestJSONFormatIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRequestID(services.WithShowID(context.Background(), "tech"), "req-1")
	logging.WithContext(ctx, logger).Warn("lock busy", logging.String(logging.FieldEventType, "show_locked"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if entry["show_id"] != "tech" || entry["correlation_id"] != "req-1" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestCleanupOldLogsKeepsCurrentAndRecent(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "run-20200101T000000Z.log")
	current := filepath.Join(dir, "run-20200102T000000Z.log")
	recent := filepath.Join(dir, "run-20990101T000000Z.log")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, current, recent, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	past := time.Now().AddDate(0, 0, -90)
	for _, p := range []string{old, current, other} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), dir, 30, current)
	if removed != 1 {
		t.Fatalf("expected one removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, p := range []string{current, recent, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}
