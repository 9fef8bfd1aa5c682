package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/reportsync/common/logging"
)

// Store loads the aggregates and writes the totals.
type Store interface {
	LoadInstances(ctx context.Context) ([]Instance, error)
	LoadUsageGroups(ctx context.Context) ([]UsageGroup, error)
	LoadDailyUsage(ctx context.Context) ([]DailyUsage, error)
	// Apply clears every instance total and writes assignments, atomically.
	Apply(ctx context.Context, assignments []Assignment) error
}

// Reconciler runs the backfill pass.
type Reconciler struct {
	store  Store
	logger *logging.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile recomputes every bundle instance total from the synced usage.
func (r *Reconciler) Reconcile(ctx context.Context) (Summary, error) {
	start := time.Now()

	instances, err := r.store.LoadInstances(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load bundle instances: %w", err)
	}
	groups, err := r.store.LoadUsageGroups(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load usage groups: %w", err)
	}
	daily, err := r.store.LoadDailyUsage(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load daily usage: %w", err)
	}

	assignments, summary := Match(instances, groups, daily)
	if err := r.store.Apply(ctx, assignments); err != nil {
		return summary, fmt.Errorf("apply usage totals: %w", err)
	}

	if summary.OverlappingPeriods > 0 {
		r.logger.WarnContext(ctx, "overlapping bundle periods found",
			slog.Int("overlaps", summary.OverlappingPeriods))
	}
	r.logger.InfoContext(ctx, "usage backfill complete",
		slog.Int("instances", summary.Instances),
		slog.Int("exact", summary.ExactMatches),
		slog.Int("date_range", summary.DateRangeMatches),
		slog.Int("unmatched", summary.Unmatched),
		logging.Duration(time.Since(start).Milliseconds()))
	return summary, nil
}
