// Package repository owns the reporting store connection pool, the tenant
// table and the run log.
package repository

import (
	"context"
	"errors"

	"github.com/telhawk-systems/reportsync/internal/models"
)

var ErrRunNotFound = errors.New("sync run not found")

// Repository is the persistence surface the orchestrator and the status API
// need beyond the table writers.
type Repository interface {
	Ping(ctx context.Context) error
	SeedTenants(ctx context.Context, tenants []models.CanonicalTenant) error
	SaveRun(ctx context.Context, run *models.RunSummary) error
	LatestRun(ctx context.Context) (*models.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error)
}
