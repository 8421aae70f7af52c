package analytics

import (
	"context"
	"sync"

	"github.com/storefront/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// Tracker serialises load-apply-save cycles against a Store and mirrors
// every outcome into Prometheus.
type Tracker struct {
	mu      sync.Mutex
	store   Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewTracker creates a tracker.
func NewTracker(store Store, m *metrics.Metrics, logger *zap.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, metrics: m, logger: logger.Named("analytics")}
}

// Record counts one outcome. Failures are logged and returned; callers treat
// analytics as best effort.
func (t *Tracker) Record(ctx context.Context, outcome Outcome, provider string) error {
	outcome = outcome.Normalize()
	if !outcome.Valid() {
		t.logger.Warn("unknown analytics outcome", zap.String("outcome", string(outcome)))
		return nil
	}
	t.metrics.RecordPaymentOutcome(provider, string(outcome))

	t.mu.Lock()
	defer t.mu.Unlock()

	current, err := t.store.Load(ctx)
	if err != nil {
		t.logger.Warn("load analytics failed", zap.Error(err))
		return err
	}
	if err := t.store.Save(ctx, Apply(current, outcome, provider)); err != nil {
		t.logger.Warn("save analytics failed", zap.Error(err))
		return err
	}
	return nil
}

// Snapshot returns the current record.
func (t *Tracker) Snapshot(ctx context.Context) (Analytics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Load(ctx)
}

// Summary returns the current summary projection.
func (t *Tracker) Summary(ctx context.Context) (SummaryView, error) {
	a, err := t.Snapshot(ctx)
	if err != nil {
		return SummaryView{}, err
	}
	return Summary(a), nil
}
