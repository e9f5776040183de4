package ledger

import (
	"context"
	"fmt"

	"research-pipeline/internal/models"
)

// InsertSearchResults persists every SearchResult for a request in a single
// transaction (spec §4.4 step 5). All-or-nothing: either the whole batch is
// durable before the status transitions to analyzing, or none of it is.
func (l *Ledger) InsertSearchResults(ctx context.Context, requestID string, results []models.SearchResult) error {
	if len(results) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	tx, err := l.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: insert search results: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO search_results (request_id, url, title, content) VALUES ($1, $2, $3, $4)`,
	)
	if err != nil {
		return fmt.Errorf("ledger: prepare search result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, requestID, r.URL, r.Title, r.Content); err != nil {
			return fmt.Errorf("ledger: insert search result: %w", err)
		}
	}

	return tx.Commit()
}

// GetSearchResults loads every SearchResult for a request, oldest first.
func (l *Ledger) GetSearchResults(ctx context.Context, requestID string) ([]models.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	rows, err := l.Conn.QueryContext(ctx,
		`SELECT id, request_id, url, title, content, created_at
		 FROM search_results WHERE request_id = $1 ORDER BY id ASC`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: get search results: %w", err)
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.ID, &r.RequestID, &r.URL, &r.Title, &r.Content, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan search result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountSearchResults returns how many SearchResults exist for a request,
// used by the status projection (spec §6: search_results_count).
func (l *Ledger) CountSearchResults(ctx context.Context, requestID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var n int
	err := l.Conn.QueryRowContext(ctx,
		`SELECT count(*) FROM search_results WHERE request_id = $1`, requestID,
	).Scan(&n)
	return n, err
}
