package backfill

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/telhawk-systems/reportsync/common/database"
)

// DB is the subset of *pgxpool.Pool the Postgres store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore reads from and writes to the reporting store.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) LoadInstances(ctx context.Context) ([]Instance, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT source_id, tenant_id, btrim(iccid), bundle_moniker, sequence_number, start_time, end_time
		FROM bundle_instances
		ORDER BY source_id, tenant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bundle instances: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Instance, error) {
		var in Instance
		err := row.Scan(&in.SourceID, &in.TenantID, &in.ICCID, &in.Moniker, &in.Sequence, &in.Start, &in.End)
		return in, err
	})
}

func (s *PostgresStore) LoadUsageGroups(ctx context.Context) ([]UsageGroup, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT btrim(iccid), lower(bundle_moniker), sequence_number, sum(charged_bytes)::bigint
		FROM usage_records
		WHERE bundle_moniker IS NOT NULL AND sequence_number IS NOT NULL
		GROUP BY 1, 2, 3
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage groups: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UsageGroup, error) {
		var g UsageGroup
		err := row.Scan(&g.ICCID, &g.Moniker, &g.Sequence, &g.Bytes)
		return g, err
	})
}

func (s *PostgresStore) LoadDailyUsage(ctx context.Context) ([]DailyUsage, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT btrim(iccid), usage_date, sum(charged_bytes)::bigint
		FROM usage_records
		WHERE usage_date IS NOT NULL
		GROUP BY 1, 2
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyUsage, error) {
		var d DailyUsage
		err := row.Scan(&d.ICCID, &d.Date, &d.Bytes)
		return d, err
	})
}

func (s *PostgresStore) Apply(ctx context.Context, assignments []Assignment) error {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE bundle_instances
			SET usage_total_mb = NULL, usage_match_strategy = NULL
			WHERE usage_total_mb IS NOT NULL OR usage_match_strategy IS NOT NULL
		`); err != nil {
			return fmt.Errorf("failed to reset usage totals: %w", err)
		}

		if len(assignments) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, a := range assignments {
			batch.Queue(`
				UPDATE bundle_instances
				SET usage_total_mb = $3, usage_match_strategy = $4
				WHERE source_id = $1 AND tenant_id = $2
			`, a.SourceID, a.TenantID, a.TotalMB, string(a.Strategy))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write usage totals: %w", err)
		}
		return nil
	})
}
