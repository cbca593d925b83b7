// Package sqlite implements history.Sink on top of modernc.org/sqlite,
// appending one row per finished job instance.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/pcron/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a SQLite history sink. dsn may carry a "sqlite://" prefix or
// be a bare path (":memory:" for ephemeral tests).
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS job_history(
		occurred_at TIMESTAMP NOT NULL,
		job_id      TEXT NOT NULL,
		queue       TEXT NOT NULL,
		started_at  TIMESTAMP,
		ended_at    TIMESTAMP,
		exit_code   INTEGER,
		killed      BOOLEAN NOT NULL,
		ran         BOOLEAN NOT NULL
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_history(occurred_at, job_id, queue, started_at, ended_at, exit_code, killed, ran)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), e.JobID, e.Queue, e.StartedAt.UTC(), e.EndedAt.UTC(), e.ExitCode, e.Killed, e.Ran)
	return err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
