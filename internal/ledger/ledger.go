// Package ledger is the Postgres store of record for request lifecycle,
// search results, and analysis results. It owns the claim primitive that
// converts the bus's at-least-once delivery into at-most-one stage effect.
package ledger

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

const (
	readTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
)

// Ledger wraps the Postgres connection pool.
type Ledger struct {
	Conn *sql.DB
}

// Connect opens and verifies a Postgres connection, then applies the schema
// migration (idempotent — safe to run on every startup).
func Connect(dsn string) (*Ledger, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}

	l := &Ledger{Conn: conn}
	if err := l.migrate(context.Background()); err != nil {
		return nil, err
	}

	slog.Info("postgres connected", "component", "ledger")
	return l, nil
}

// migrate applies the three-table schema. CREATE TABLE IF NOT EXISTS and
// CREATE INDEX IF NOT EXISTS make this safe to call on every startup of
// every replica of every component.
func (l *Ledger) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	const schema = `
CREATE TABLE IF NOT EXISTS requests (
	id UUID PRIMARY KEY,
	topic TEXT NOT NULL,
	status VARCHAR(24) NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_requests_status_created_at ON requests (status, created_at);

CREATE TABLE IF NOT EXISTS search_results (
	id BIGSERIAL PRIMARY KEY,
	request_id UUID NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	title TEXT,
	content TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_search_results_request_id ON search_results (request_id);

CREATE TABLE IF NOT EXISTS analysis_results (
	id BIGSERIAL PRIMARY KEY,
	request_id UUID NOT NULL UNIQUE REFERENCES requests(id) ON DELETE CASCADE,
	summary TEXT NOT NULL,
	inference_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
	_, err := l.Conn.ExecContext(ctx, schema)
	return err
}

// Close releases the connection pool.
func (l *Ledger) Close() error {
	return l.Conn.Close()
}
