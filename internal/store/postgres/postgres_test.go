package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgresContainer starts a PostgreSQL container for tests
// and returns a DSN suitable for pgx stdlib. It skips the test if Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil // ensure container is never used below
	}

	// container is guaranteed to be non-nil here
	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}

	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	// Try to ping until timeout; helps when container reports ready but DB not yet accepting connections
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresStoreLifecycle(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	// Ensure DB is ready to accept connections
	waitForPostgres(t, dsn)
	defer func() {
		if terminate != nil {
			terminate()
		}
	}()

	db, err := New(dsn)
	if err != nil {
		t.Fatalf("pg open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	t0 := time.Now().UTC().Truncate(time.Second)
	if err := db.SetLastScheduled(ctx, "pgjob", t0); err != nil {
		t.Fatalf("set last scheduled: %v", err)
	}
	rec, ok, err := db.Get(ctx, "pgjob")
	if err != nil || !ok {
		t.Fatalf("expected record, ok=%v err=%v", ok, err)
	}
	if !rec.HasLastSched || !rec.LastScheduled.Equal(t0) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := db.SetRunning(ctx, "pgjob", 4321, t0); err != nil {
		t.Fatalf("set running: %v", err)
	}
	rec, _, _ = db.Get(ctx, "pgjob")
	if !rec.HasRunningMarker || rec.RunningPID != 4321 {
		t.Fatalf("expected running marker: %+v", rec)
	}

	if err := db.SetEnded(ctx, "pgjob", t0.Add(time.Second), 0, false); err != nil {
		t.Fatalf("set ended: %v", err)
	}
	rec, _, _ = db.Get(ctx, "pgjob")
	if rec.HasRunningMarker {
		t.Fatalf("expected running marker cleared")
	}
	if !rec.HasLastEnd || rec.LastExit != 0 || rec.LastKilled {
		t.Fatalf("unexpected end state: %+v", rec)
	}

	all, err := db.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	found := false
	for _, r := range all {
		if r.JobID == "pgjob" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pgjob in All(), got %+v", all)
	}
}
