package eventstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-notes/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := es.AppendRun(ctx, "r", "a.wav", "en", "transcribing"); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "runs.db"), RetentionMode: "session"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	if err := es.AppendRun(ctx, "run-1", "/tmp/a.wav", "en", "transcribing"); err != nil {
		t.Fatalf("append run: %v", err)
	}
	for _, text := range []string{"first", "second"} {
		if err := es.AppendEvent(ctx, Event{RunID: "run-1", Type: "segment", Payload: []byte(text)}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	if err := es.UpdateRunStatus(ctx, "run-1", "completed", ""); err != nil {
		t.Fatalf("update status: %v", err)
	}

	run, err := es.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != "completed" || run.Path != "/tmp/a.wav" || run.Language != "en" {
		t.Fatalf("unexpected run %+v", run)
	}

	events, err := es.ListRunEvents(ctx, "run-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || string(events[0].Payload) != "first" || string(events[1].Payload) != "second" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "runs.db"), RetentionMode: "session"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	if _, err := es.GetRun(ctx, "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := es.UpdateRunStatus(ctx, "nope", "failed", "x"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestPruneByDaysAndRuns(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "runs.db"), RetentionMode: "persistent", RetentionDays: 1, MaxRuns: 1}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendRun(ctx, "old-run", "old.wav", "en", "completed"); err != nil {
		t.Fatalf("append run: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{RunID: "old-run", Type: "segment"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendRun(ctx, "new-run", "new.wav", "en", "completed"); err != nil {
		t.Fatalf("append run: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListRunEvents(ctx, "old-run", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old run pruned")
	}
	if _, err := es.GetRun(ctx, "new-run"); err != nil {
		t.Fatalf("expected new run to survive: %v", err)
	}
}
