package sweep

import (
	"context"
	"testing"
	"time"

	"research-pipeline/internal/models"
)

type fakeOrphanStore struct {
	stale  map[models.Status][]string
	failed map[string]string
}

func newFakeOrphanStore() *fakeOrphanStore {
	return &fakeOrphanStore{
		stale:  map[models.Status][]string{},
		failed: map[string]string{},
	}
}

func (f *fakeOrphanStore) ListStaleInStatus(ctx context.Context, status models.Status, cutoff time.Time) ([]string, error) {
	return f.stale[status], nil
}

func (f *fakeOrphanStore) Fail(ctx context.Context, requestID, reason string) error {
	f.failed[requestID] = reason
	return nil
}

func TestSweepOnce_FailsStaleRequestsInBothStages(t *testing.T) {
	store := newFakeOrphanStore()
	store.stale[models.StatusProcessingSearch] = []string{"r1", "r2"}
	store.stale[models.StatusProcessingAnalysis] = []string{"r3"}

	s := &Sweeper{ledger: store, grace: 15 * time.Minute}

	n, err := s.sweepOnce(context.Background())
	if err != nil {
		t.Fatalf("sweepOnce: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 swept, got %d", n)
	}
	for _, id := range []string{"r1", "r2", "r3"} {
		reason, ok := store.failed[id]
		if !ok {
			t.Errorf("expected %s to be failed", id)
			continue
		}
		if reason != orphanFailureReason {
			t.Errorf("expected failure reason %q, got %q", orphanFailureReason, reason)
		}
	}
}

func TestSweepOnce_NoStaleRequestsIsNoOp(t *testing.T) {
	store := newFakeOrphanStore()
	s := &Sweeper{ledger: store, grace: 15 * time.Minute}

	n, err := s.sweepOnce(context.Background())
	if err != nil {
		t.Fatalf("sweepOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 swept, got %d", n)
	}
	if len(store.failed) != 0 {
		t.Errorf("expected no failures, got %v", store.failed)
	}
}

type erroringOrphanStore struct{}

func (erroringOrphanStore) ListStaleInStatus(ctx context.Context, status models.Status, cutoff time.Time) ([]string, error) {
	return nil, context.DeadlineExceeded
}

func (erroringOrphanStore) Fail(ctx context.Context, requestID, reason string) error {
	return nil
}

func TestSweepOnce_PropagatesListError(t *testing.T) {
	s := &Sweeper{ledger: erroringOrphanStore{}, grace: time.Minute}

	if _, err := s.sweepOnce(context.Background()); err == nil {
		t.Fatal("expected error from ListStaleInStatus to propagate")
	}
}
