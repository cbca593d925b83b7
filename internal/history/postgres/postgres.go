// Package postgres implements history.Sink on top of jackc/pgx/v5's
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/pcron/internal/history"
)

// Sink writes history events to a PostgreSQL database.
type Sink struct {
	db *sql.DB
}

// New creates a PostgreSQL history sink.
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty PostgreSQL DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS job_history(
		occurred_at TIMESTAMPTZ NOT NULL,
		job_id      TEXT NOT NULL,
		queue       TEXT NOT NULL,
		started_at  TIMESTAMPTZ,
		ended_at    TIMESTAMPTZ,
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
		VALUES($1, $2, $3, $4, $5, $6, $7, $8);`,
		e.OccurredAt.UTC(), e.JobID, e.Queue, e.StartedAt.UTC(), e.EndedAt.UTC(), e.ExitCode, e.Killed, e.Ran)
	return err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
