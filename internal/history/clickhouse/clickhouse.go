// Package clickhouse implements history.Sink using the official ClickHouse
// Go client, for operators who want job-outcome analytics in a column
// store instead of SQLite/Postgres.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/pcron/internal/history"
)

// Sink sends events to ClickHouse.
type Sink struct {
	conn  driver.Conn
	table string
}

// New opens a ClickHouse connection and targets table for every Send.
func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (occurred_at, job_id, queue, started_at, ended_at, exit_code, killed, ran) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.table)
	err := s.conn.Exec(ctx, query,
		e.OccurredAt, e.JobID, e.Queue, e.StartedAt, e.EndedAt, e.ExitCode, e.Killed, e.Ran)
	if err != nil {
		return fmt.Errorf("insert job history into clickhouse: %w", err)
	}
	return nil
}
