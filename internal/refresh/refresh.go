// Package refresh rebuilds the reporting materialised views after a run.
package refresh

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/telhawk-systems/reportsync/common/database"
	"github.com/telhawk-systems/reportsync/common/logging"
)

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RefreshError reports a view that failed both the concurrent and the
// blocking refresh.
type RefreshError struct {
	View string
	Err  error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.View, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Refresher refreshes a fixed list of materialised views.
type Refresher struct {
	db     Execer
	views  []string
	logger *logging.Logger
}

// New creates a Refresher for views.
func New(db Execer, views []string, logger *logging.Logger) *Refresher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Refresher{db: db, views: views, logger: logger}
}

// Refresh tries a concurrent refresh of each view and falls back to a
// blocking refresh. Every view is attempted; the failures are joined.
func (r *Refresher) Refresh(ctx context.Context) error {
	var errs []error
	for _, view := range r.views {
		if err := r.refreshView(ctx, view); err != nil {
			r.logger.ErrorContext(ctx, "view refresh failed",
				"view", view, logging.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Refresher) refreshView(ctx context.Context, view string) error {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	name := pgx.Identifier{view}.Sanitize()
	_, err := r.db.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+name)
	if err == nil {
		return nil
	}

	r.logger.WarnContext(ctx, "concurrent refresh failed, falling back to blocking refresh",
		"view", view, logging.Error(err))

	if _, err := r.db.Exec(ctx, "REFRESH MATERIALIZED VIEW "+name); err != nil {
		return &RefreshError{View: view, Err: err}
	}
	return nil
}
