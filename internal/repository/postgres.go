package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/reportsync/common/database"
	"github.com/telhawk-systems/reportsync/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a pool capped at maxConns. The pool dials
// lazily; an unreachable database surfaces on the first Ping or query.
func NewPostgresRepository(ctx context.Context, connString string, maxConns int32) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// NewFromPool wraps an existing pool.
func NewFromPool(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Pool exposes the pool for the writer, backfill and refresh components.
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// SeedTenants upserts the canonical tenants, parents before children.
func (r *PostgresRepository) SeedTenants(ctx context.Context, tenants []models.CanonicalTenant) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	ordered := parentsFirst(tenants)
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range ordered {
			batch.Queue(`
				INSERT INTO tenants (tenant_id, tenant_name, parent_tenant_id, role)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (tenant_id) DO UPDATE
				SET tenant_name = EXCLUDED.tenant_name,
				    parent_tenant_id = EXCLUDED.parent_tenant_id,
				    role = EXCLUDED.role,
				    updated_at = now()
				WHERE (tenants.tenant_name, tenants.parent_tenant_id, tenants.role)
				      IS DISTINCT FROM (EXCLUDED.tenant_name, EXCLUDED.parent_tenant_id, EXCLUDED.role)
			`, t.TenantID, t.TenantName, t.ParentTenantID, string(t.Role))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to seed tenants: %w", err)
		}
		return nil
	})
}

// parentsFirst orders a validated tenant forest so every parent precedes its
// children. Relative order is otherwise preserved.
func parentsFirst(tenants []models.CanonicalTenant) []models.CanonicalTenant {
	byID := make(map[string]models.CanonicalTenant, len(tenants))
	for _, t := range tenants {
		byID[t.TenantID] = t
	}

	out := make([]models.CanonicalTenant, 0, len(tenants))
	placed := make(map[string]bool, len(tenants))
	var place func(t models.CanonicalTenant)
	place = func(t models.CanonicalTenant) {
		if placed[t.TenantID] {
			return
		}
		placed[t.TenantID] = true
		if t.ParentTenantID != nil {
			if parent, ok := byID[*t.ParentTenantID]; ok {
				place(parent)
			}
		}
		out = append(out, t)
	}
	for _, t := range tenants {
		place(t)
	}
	return out
}

// SaveRun appends a run summary to the run log.
func (r *PostgresRepository) SaveRun(ctx context.Context, run *models.RunSummary) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal run results: %w", err)
	}

	var refreshErr *string
	if run.RefreshError != "" {
		refreshErr = &run.RefreshError
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO sync_runs (run_id, started_at, finished_at, status, results, refresh_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE
		SET finished_at = EXCLUDED.finished_at,
		    status = EXCLUDED.status,
		    results = EXCLUDED.results,
		    refresh_error = EXCLUDED.refresh_error
	`, run.RunID, run.StartedAt, run.FinishedAt, string(run.Status), results, refreshErr)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

const runColumns = `run_id::text, started_at, finished_at, status, results, coalesce(refresh_error, '')`

func scanRun(row pgx.Row) (*models.RunSummary, error) {
	var (
		run     models.RunSummary
		status  string
		results []byte
	)
	if err := row.Scan(&run.RunID, &run.StartedAt, &run.FinishedAt, &status, &results, &run.RefreshError); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	if err := json.Unmarshal(results, &run.Results); err != nil {
		return nil, fmt.Errorf("failed to decode run results: %w", err)
	}
	return &run, nil
}

// LatestRun returns the most recently started run.
func (r *PostgresRepository) LatestRun(ctx context.Context) (*models.RunSummary, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	run, err := scanRun(r.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (r *PostgresRepository) ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
