package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"research-pipeline/internal/models"
)

// ErrNotFound is returned when a Request row does not exist.
var ErrNotFound = errors.New("ledger: request not found")

// CreateRequest inserts a new Request row in StatusPending and returns its
// generated ID. This is Intake's step 1 (spec §4.3).
func (l *Ledger) CreateRequest(ctx context.Context, topic string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	id := uuid.New().String()
	_, err := l.Conn.ExecContext(ctx,
		`INSERT INTO requests (id, topic, status) VALUES ($1, $2, $3)`,
		id, topic, string(models.StatusPending),
	)
	if err != nil {
		return "", fmt.Errorf("ledger: create request: %w", err)
	}
	return id, nil
}

// TransitionStatus moves a Request to a new status unconditionally (no
// claim check — used for the pending->searching intake transition and for
// claim winners advancing past their processing_* state).
func (l *Ledger) TransitionStatus(ctx context.Context, requestID string, status models.Status) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := l.Conn.ExecContext(ctx,
		`UPDATE requests SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), requestID,
	)
	return err
}

// Fail transitions a Request to StatusFailed with an error message. Failed
// is absorbing: once set, the core never transitions a Request away from it.
func (l *Ledger) Fail(ctx context.Context, requestID, errMsg string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := l.Conn.ExecContext(ctx,
		`UPDATE requests SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		string(models.StatusFailed), errMsg, requestID,
	)
	return err
}

// Complete transitions a Request to StatusCompleted and stamps completed_at.
func (l *Ledger) Complete(ctx context.Context, requestID string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := l.Conn.ExecContext(ctx,
		`UPDATE requests SET status = $1, completed_at = now(), updated_at = now() WHERE id = $2`,
		string(models.StatusCompleted), requestID,
	)
	return err
}

// GetRequest fetches a single Request by ID. Returns ErrNotFound if absent.
func (l *Ledger) GetRequest(ctx context.Context, requestID string) (*models.Request, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var r models.Request
	var status string
	err := l.Conn.QueryRowContext(ctx,
		`SELECT id, topic, status, created_at, updated_at, completed_at, error_message
		 FROM requests WHERE id = $1`,
		requestID,
	).Scan(&r.ID, &r.Topic, &status, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt, &r.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get request: %w", err)
	}
	r.Status = models.Status(status)
	return &r, nil
}

// ListRequests returns a page of Requests, optionally filtered by status,
// newest first.
func (l *Ledger) ListRequests(ctx context.Context, status models.Status, limit, offset int) ([]models.Request, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = l.Conn.QueryContext(ctx,
			`SELECT id, topic, status, created_at, updated_at, completed_at, error_message
			 FROM requests ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	} else {
		rows, err = l.Conn.QueryContext(ctx,
			`SELECT id, topic, status, created_at, updated_at, completed_at, error_message
			 FROM requests WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			string(status), limit, offset,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: list requests: %w", err)
	}
	defer rows.Close()

	var out []models.Request
	for rows.Next() {
		var r models.Request
		var st string
		if err := rows.Scan(&r.ID, &r.Topic, &st, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("ledger: scan request: %w", err)
		}
		r.Status = models.Status(st)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListStaleInStatus returns the IDs of every request in status whose
// updated_at is older than cutoff — candidates for the orphan sweeper.
func (l *Ledger) ListStaleInStatus(ctx context.Context, status models.Status, cutoff time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	rows, err := l.Conn.QueryContext(ctx,
		`SELECT id FROM requests WHERE status = $1 AND updated_at < $2`,
		string(status), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: list stale in status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ledger: scan stale id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Metrics is the aggregate projection served by GET /api/metrics.
type Metrics struct {
	TotalRequests    int64
	SuccessRate      float64
	AvgInferenceMs   float64
	RequestsByStatus map[string]int64
	RequestsByHour   []HourBucket
}

// HourBucket is one point in the trailing-24h histogram.
type HourBucket struct {
	Hour  time.Time
	Count int64
}

// GetMetrics computes the aggregate metrics projection in a handful of
// queries over the Ledger — all pure reads, per spec §4.3.
func (l *Ledger) GetMetrics(ctx context.Context) (*Metrics, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	m := &Metrics{RequestsByStatus: map[string]int64{}}

	rows, err := l.Conn.QueryContext(ctx, `SELECT status, count(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger: metrics by status: %w", err)
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ledger: scan status count: %w", err)
		}
		m.RequestsByStatus[status] = count
		m.TotalRequests += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if m.TotalRequests > 0 {
		completed := m.RequestsByStatus[string(models.StatusCompleted)]
		m.SuccessRate = float64(completed) / float64(m.TotalRequests)
	}

	if err := l.Conn.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(inference_time_ms), 0) FROM analysis_results`,
	).Scan(&m.AvgInferenceMs); err != nil {
		return nil, fmt.Errorf("ledger: avg inference time: %w", err)
	}

	hourRows, err := l.Conn.QueryContext(ctx,
		`SELECT date_trunc('hour', created_at) AS hour, count(*)
		 FROM requests
		 WHERE created_at >= now() - interval '24 hours'
		 GROUP BY hour
		 ORDER BY hour`,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: metrics by hour: %w", err)
	}
	defer hourRows.Close()

	for hourRows.Next() {
		var b HourBucket
		if err := hourRows.Scan(&b.Hour, &b.Count); err != nil {
			return nil, fmt.Errorf("ledger: scan hour bucket: %w", err)
		}
		m.RequestsByHour = append(m.RequestsByHour, b)
	}
	return m, hourRows.Err()
}
