package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quizstreak-service/internal/config"
	"quizstreak-service/internal/scheduler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestWorkerRejectsRedisOnlyConfig(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	// The address is never dialed: the store check runs first.
	path := writeConfig(t, "log:\n  mode: development\nredis:\n  addr: 127.0.0.1:1\n")

	err := runWorker(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "mongo.uri") {
		t.Fatalf("expected mongo.uri error, got %v", err)
	}
}

func TestRunJobRejectsInMemoryConfig(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	path := writeConfig(t, "log:\n  mode: development\n")

	var out bytes.Buffer
	err := runJob(context.Background(), path, scheduler.JobLeaderboards, &out)
	if err == nil || !strings.Contains(err.Error(), "mongo.uri") {
		t.Fatalf("expected mongo.uri error, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("job should not have run, printed %q", out.String())
	}
}

func TestRequireSharedStore(t *testing.T) {
	var cfg config.Config
	if err := requireSharedStore(cfg, "worker"); err == nil {
		t.Fatalf("expected error without mongo.uri")
	}
	cfg.Mongo.URI = "mongodb://localhost:27017"
	if err := requireSharedStore(cfg, "worker"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSnapshotTTLOutlivesHourlyRefresh(t *testing.T) {
	var cfg config.Config
	if got := snapshotTTL(cfg); got <= time.Hour {
		t.Fatalf("default snapshot ttl %v does not outlive the hourly refresh", got)
	}
	cfg.Leaderboard.SnapshotTTL = "3h"
	if got := snapshotTTL(cfg); got != 3*time.Hour {
		t.Fatalf("configured ttl ignored: %v", got)
	}
}
