package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"research-pipeline/internal/models"
)

// InsertAnalysisResult persists the single AnalysisResult for a request.
// The unique constraint on analysis_results.request_id enforces the
// at-most-one invariant (spec §3) at the database level, independent of
// application logic.
func (l *Ledger) InsertAnalysisResult(ctx context.Context, requestID, summary string, inferenceTimeMs int64) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := l.Conn.ExecContext(ctx,
		`INSERT INTO analysis_results (request_id, summary, inference_time_ms) VALUES ($1, $2, $3)`,
		requestID, summary, inferenceTimeMs,
	)
	if err != nil {
		return fmt.Errorf("ledger: insert analysis result: %w", err)
	}
	return nil
}

// GetAnalysisResult loads the AnalysisResult for a request, if any.
func (l *Ledger) GetAnalysisResult(ctx context.Context, requestID string) (*models.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var a models.AnalysisResult
	err := l.Conn.QueryRowContext(ctx,
		`SELECT id, request_id, summary, inference_time_ms, created_at
		 FROM analysis_results WHERE request_id = $1`,
		requestID,
	).Scan(&a.ID, &a.RequestID, &a.Summary, &a.InferenceTimeMs, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get analysis result: %w", err)
	}
	return &a, nil
}
