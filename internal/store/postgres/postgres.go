// Package postgres implements store.Store on top of PostgreSQL via
// jackc/pgx/v5's database/sql driver, for operators who want per-job state
// centralized across multiple pcron instances instead of one SQLite file
// each.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/pcron/internal/store"
)

// DB is a store.Store backed by PostgreSQL.
type DB struct {
	db *sql.DB
}

// New opens a PostgreSQL connection using dsn (a "postgres://" URL).
func New(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("empty postgres dsn")
	}
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS job_state(
		job_id             TEXT PRIMARY KEY,
		last_scheduled     TIMESTAMPTZ,
		last_end_time      TIMESTAMPTZ,
		last_exit          INTEGER,
		last_killed        BOOLEAN,
		running_pid        INTEGER,
		running_started_at TIMESTAMPTZ
	);`)
	return err
}

func (p *DB) Get(ctx context.Context, jobID string) (store.Record, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT job_id, last_scheduled, last_end_time,
		last_exit, last_killed, running_pid, running_started_at
		FROM job_state WHERE job_id = $1;`, jobID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	return rec, true, nil
}

func (p *DB) All(ctx context.Context) ([]store.Record, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT job_id, last_scheduled, last_end_time,
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

func (p *DB) SetLastScheduled(ctx context.Context, jobID string, t time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO job_state(job_id, last_scheduled) VALUES($1, $2)
		ON CONFLICT(job_id) DO UPDATE SET last_scheduled = EXCLUDED.last_scheduled;`,
		jobID, t.UTC())
	return err
}

func (p *DB) SetRunning(ctx context.Context, jobID string, pid int, startedAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO job_state(job_id, running_pid, running_started_at) VALUES($1, $2, $3)
		ON CONFLICT(job_id) DO UPDATE SET
			running_pid = EXCLUDED.running_pid,
			running_started_at = EXCLUDED.running_started_at;`,
		jobID, pid, startedAt.UTC())
	return err
}

func (p *DB) SetEnded(ctx context.Context, jobID string, endedAt time.Time, exitCode int, killed bool) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO job_state(job_id, last_end_time, last_exit, last_killed, running_pid, running_started_at)
		VALUES($1, $2, $3, $4, NULL, NULL)
		ON CONFLICT(job_id) DO UPDATE SET
			last_end_time = EXCLUDED.last_end_time,
			last_exit = EXCLUDED.last_exit,
			last_killed = EXCLUDED.last_killed,
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
