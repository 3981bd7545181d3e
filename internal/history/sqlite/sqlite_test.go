package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/svcmon/internal/history"
)

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	for _, action := range []string{"STARTED", "STOPPED", "START FAILED"} {
		e := history.Event{OccurredAt: time.Now().UTC(), Service: "nginx", Action: action, Status: "ACTIVE", PID: 42}
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", action, err)
		}
	}
	if err := sink.Send(ctx, history.Event{OccurredAt: time.Now(), Service: "cron", Action: "STOPPED", Status: "INACTIVE"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	n, err := sink.Count(ctx, "nginx")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 nginx events, got %d", n)
	}
	all, err := sink.Count(ctx, "")
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	if all != 4 {
		t.Errorf("expected 4 events, got %d", all)
	}
}

func TestSQLiteSink_FileWithPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + path)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	ctx := context.Background()
	if err := sink.Send(ctx, history.Event{OccurredAt: time.Now(), Service: "a", Action: "STARTED", Status: "ACTIVE"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = sink.Close()

	// reopening must keep existing rows and not fail on schema creation
	again, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = again.Close() }()
	n, err := again.Count(ctx, "a")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after reopen, got %d", n)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
