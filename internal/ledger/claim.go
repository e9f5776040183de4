package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"research-pipeline/internal/metrics"
	"research-pipeline/internal/models"
)

// ClaimOutcome is the result of a claim attempt.
type ClaimOutcome int

const (
	// ClaimWon means this caller, and only this caller, advanced the
	// Request's status. The caller now owns the Request and must drive it
	// to a terminal or next-stage status.
	ClaimWon ClaimOutcome = iota
	// ClaimLost means another replica already holds (or held and finished)
	// the claim, the row does not exist, or its status is terminal. This is
	// not an error: the caller must commit its bus offset and move on.
	ClaimLost
)

// Claim implements the claim primitive (spec §4.2): an atomic
// read-modify-write over the Request row, conditioned on status ==
// expected, using SELECT ... FOR UPDATE SKIP LOCKED so concurrent callers
// racing for the same row never block on each other — the loser sees no
// row and moves on immediately rather than waiting for the winner's
// transaction to finish.
//
// On ClaimWon, status has already been advanced to next within the same
// transaction — the row is no longer claimable by any other caller for this
// (requestID, expected) pair.
//
// Orphan policy: a Request already sitting in a processing_* state (e.g.
// after a prior worker crash) is NOT treated as claimable by a redelivered
// message — the SELECT only matches `status = expected`, and expected is
// always a claimable state (searching/analyzing), never a processing_*
// state. Recovery of stuck processing_* rows is left to the out-of-band
// orphan sweeper (internal/sweep), not to self-reclaim, because no fencing
// token exists to make a second claim of the same row safe.
func (l *Ledger) Claim(ctx context.Context, requestID string, expected, next models.Status) (ClaimOutcome, error) {
	timer := prometheus.NewTimer(metrics.DBQueryDuration.WithLabelValues("claim"))
	defer timer.ObserveDuration()

	outcome, err := l.claim(ctx, requestID, expected, next)
	if err == nil {
		label := "won"
		if outcome == ClaimLost {
			label = "lost"
		}
		metrics.ClaimOutcomes.WithLabelValues(string(expected), label).Inc()
	}
	return outcome, err
}

func (l *Ledger) claim(ctx context.Context, requestID string, expected, next models.Status) (ClaimOutcome, error) {
	tx, err := l.Conn.BeginTx(ctx, nil)
	if err != nil {
		return ClaimLost, err
	}
	defer tx.Rollback() //nolint:errcheck

	var id, status string
	err = tx.QueryRowContext(ctx,
		`SELECT id, status FROM requests WHERE id = $1 AND status = $2 FOR UPDATE SKIP LOCKED`,
		requestID, string(expected),
	).Scan(&id, &status)

	if errors.Is(err, sql.ErrNoRows) {
		return ClaimLost, nil
	}
	if err != nil {
		return ClaimLost, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE requests SET status = $1, updated_at = now() WHERE id = $2`,
		string(next), requestID,
	); err != nil {
		return ClaimLost, err
	}

	if err := tx.Commit(); err != nil {
		return ClaimLost, err
	}

	return ClaimWon, nil
}
