// Package sqlite implements store.Store on top of modernc.org/sqlite
// (CGO-free), the default persistence backend for pcron's per-job state.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/pcron/internal/store"
)

// DB is a store.Store backed by a single SQLite file (":memory:" for an
// ephemeral in-process store, used by tests).
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes serialized, which is what the
	// engine's single-writer main loop needs, and avoids each connection
	// seeing its own isolated ":memory:" database.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = d.Close()
		return nil, err
	}
	return &DB{db: d}, nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS job_state(
		job_id             TEXT PRIMARY KEY,
		last_scheduled     TIMESTAMP,
		last_end_time      TIMESTAMP,
		last_exit          INTEGER,
		last_killed        INTEGER,
		running_pid        INTEGER,
		running_started_at TIMESTAMP
	);`)
	return err
}

func (s *DB) Get(ctx context.Context, jobID string) (store.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT job_id, last_scheduled, last_end_time,
		last_exit, last_killed, running_pid, running_started_at
		FROM job_state WHERE job_id = ?;`, jobID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	return rec, true, nil
}

func (s *DB) All(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_id, last_scheduled, last_end_time,
		last_exit, last_killed, running_pid, running_started_at FROM job_state;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DB) SetLastScheduled(ctx context.Context, jobID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_state(job_id, last_scheduled) VALUES(?, ?)
		ON CONFLICT(job_id) DO UPDATE SET last_scheduled = excluded.last_scheduled;`,
		jobID, t.UTC())
	return err
}

func (s *DB) SetRunning(ctx context.Context, jobID string, pid int, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_state(job_id, running_pid, running_started_at) VALUES(?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			running_pid = excluded.running_pid,
			running_started_at = excluded.running_started_at;`,
		jobID, pid, startedAt.UTC())
	return err
}

func (s *DB) SetEnded(ctx context.Context, jobID string, endedAt time.Time, exitCode int, killed bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_state(job_id, last_end_time, last_exit, last_killed, running_pid, running_started_at)
		VALUES(?, ?, ?, ?, NULL, NULL)
		ON CONFLICT(job_id) DO UPDATE SET
			last_end_time = excluded.last_end_time,
			last_exit = excluded.last_exit,
			last_killed = excluded.last_killed,
			running_pid = NULL,
			running_started_at = NULL;`,
		jobID, endedAt.UTC(), exitCode, killed)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (store.Record, error) {
	var (
		jobID            string
		lastScheduled    sql.NullTime
		lastEndTime      sql.NullTime
		lastExit         sql.NullInt64
		lastKilled       sql.NullBool
		runningPID       sql.NullInt64
		runningStartedAt sql.NullTime
	)
	if err := row.Scan(&jobID, &lastScheduled, &lastEndTime, &lastExit, &lastKilled, &runningPID, &runningStartedAt); err != nil {
		return store.Record{}, err
	}
	rec := store.Record{JobID: jobID}
	if lastScheduled.Valid {
		rec.LastScheduled = lastScheduled.Time
		rec.HasLastSched = true
	}
	if lastEndTime.Valid {
		rec.LastEndTime = lastEndTime.Time
		rec.LastExit = int(lastExit.Int64)
		rec.LastKilled = lastKilled.Bool
		rec.HasLastEnd = true
	}
	if runningPID.Valid {
		rec.RunningPID = int(runningPID.Int64)
		rec.RunningStartedAt = runningStartedAt.Time
		rec.HasRunningMarker = true
	}
	return rec, nil
}
