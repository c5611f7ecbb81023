package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/loykin/asamgr/internal/history"
)

func TestSQLiteSink_File(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	if err := sink.Send(ctx, history.NewEvent(history.EventStart, 12345, 7777, "", nil)); err != nil {
		t.Fatalf("Failed to send start event: %v", err)
	}
	if err := sink.Send(ctx, history.NewEvent(history.EventStop, 12345, 7777, "forced", errors.New("rcon down"))); err != nil {
		t.Fatalf("Failed to send stop event: %v", err)
	}

	for typ, want := range map[history.EventType]int{history.EventStart: 1, history.EventStop: 1, history.EventBackup: 0} {
		n, err := sink.count(ctx, typ)
		if err != nil {
			t.Fatalf("count %s: %v", typ, err)
		}
		if n != want {
			t.Errorf("count %s = %d, want %d", typ, n, want)
		}
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := sink.Send(ctx, history.NewEvent(history.EventBackup, 0, 0, "backup.tar.gz", nil)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	n, err := sink.count(ctx, history.EventBackup)
	if err != nil || n != 3 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
