package sqlite

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/loykin/pcron/internal/history"
)

func TestSQLiteSinkIntegration(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := tempDir + "/test.db"

	sink, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("failed to close sink: %v", err)
		}
		_ = os.Remove(dbPath)
	}()

	ctx := context.Background()
	started := time.Now().Add(-time.Minute).UTC()
	ended := time.Now().UTC()

	evt := history.Event{
		JobID:      "backup.db",
		Queue:      "io",
		OccurredAt: ended,
		StartedAt:  started,
		EndedAt:    ended,
		ExitCode:   0,
		Ran:        true,
	}
	if err := sink.Send(ctx, evt); err != nil {
		t.Fatalf("failed to send event: %v", err)
	}
}

func TestSQLiteSinkInMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create in-memory sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	evt := history.Event{JobID: "j", OccurredAt: time.Now().UTC(), Ran: true}
	if err := sink.Send(ctx, evt); err != nil {
		t.Fatalf("failed to send event: %v", err)
	}
}

func TestSQLiteSinkRejectsEmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
