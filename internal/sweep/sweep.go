// Package sweep implements the out-of-band orphan recovery documented as
// the resolution to spec.md's open question on stuck processing_* rows: a
// periodic cron job fails any request that has sat in processing_search or
// processing_analysis past a grace period. It never re-claims such a row
// for further processing — there is no fencing token that would make a
// second claim of a possibly-still-running worker's row safe, so the only
// sound recovery is conservative: mark it failed and let a human or a
// fresh /analyze call take it from there.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"research-pipeline/internal/ledger"
	"research-pipeline/internal/metrics"
	"research-pipeline/internal/models"
)

// orphanStore is the narrow slice of Ledger the sweeper needs, so tests can
// inject a fake without a live Postgres.
type orphanStore interface {
	ListStaleInStatus(ctx context.Context, status models.Status, cutoff time.Time) ([]string, error)
	Fail(ctx context.Context, requestID, reason string) error
}

// Sweeper periodically fails orphaned processing_* requests.
type Sweeper struct {
	ledger orphanStore
	grace  time.Duration
}

// New builds a Sweeper. grace is how long a request may remain in a
// processing_* state before it is considered orphaned.
func New(l *ledger.Ledger, grace time.Duration) *Sweeper {
	return &Sweeper{ledger: l, grace: grace}
}

// Start registers the sweep on the given interval and starts the
// scheduler. The returned *cron.Cron must be stopped on shutdown:
//
//	c, err := sweep.New(l, 15*time.Minute).Start("@every 1m")
//	defer c.Stop()
func (s *Sweeper) Start(schedule string) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		n, err := s.sweepOnce(ctx)
		if err != nil {
			slog.Error("orphan sweep failed", "component", "sweep", "error", err)
			return
		}
		if n > 0 {
			slog.Info("orphan sweep completed", "component", "sweep", "swept", n)
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	slog.Info("orphan sweeper started", "component", "sweep", "schedule", schedule, "grace", s.grace)
	return c, nil
}

// orphanFailureReason is the error_message stamped on a request the sweeper
// gives up on.
const orphanFailureReason = "orphaned: no progress within grace period"

// sweepOnce fails every request stuck in a processing_* state past the
// grace period, for both stages. It is conservative by construction: a
// request still being actively worked on but merely slow will also be
// failed if it outlives the grace period, since the core has no way to
// distinguish "slow" from "abandoned" without a liveness signal neither
// worker emits.
func (s *Sweeper) sweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.grace)

	total := 0
	for _, status := range []models.Status{models.StatusProcessingSearch, models.StatusProcessingAnalysis} {
		ids, err := s.ledger.ListStaleInStatus(ctx, status, cutoff)
		if err != nil {
			return total, err
		}
		for _, id := range ids {
			if err := s.ledger.Fail(ctx, id, orphanFailureReason); err != nil {
				slog.Error("failed to fail orphaned request", "component", "sweep", "request_id", id, "error", err)
				continue
			}
			metrics.OrphansSwept.Inc()
			total++
		}
	}
	return total, nil
}
