package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/reportsync/internal/models"
	"github.com/telhawk-systems/reportsync/internal/tenant"
	"github.com/telhawk-systems/reportsync/internal/testdb"
)

func TestParentsFirst(t *testing.T) {
	p := func(s string) *string { return &s }
	in := []models.CanonicalTenant{
		{TenantID: "cust", Role: models.RoleCustomer, ParentTenantID: p("reseller")},
		{TenantID: "root", Role: models.RoleTenant},
		{TenantID: "reseller", Role: models.RoleTenant, ParentTenantID: p("root")},
	}

	var ids []string
	for _, t := range parentsFirst(in) {
		ids = append(ids, t.TenantID)
	}
	assert.Equal(t, []string{"root", "reseller", "cust"}, ids)
}

func setupTestRepository(t *testing.T) *PostgresRepository {
	_, connStr := testdb.Start(t)
	repo, err := NewPostgresRepository(context.Background(), connStr, 2)
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

func TestSeedTenants_Idempotent(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	tenants := tenant.Default().Tenants()

	require.NoError(t, repo.SeedTenants(ctx, tenants))
	require.NoError(t, repo.SeedTenants(ctx, tenants))

	var count int
	require.NoError(t, repo.Pool().QueryRow(ctx, `SELECT count(*) FROM tenants`).Scan(&count))
	assert.Equal(t, len(tenants), count)

	var parent string
	require.NoError(t, repo.Pool().QueryRow(ctx,
		`SELECT parent_tenant_id FROM tenants WHERE tenant_id = 'harbour'`).Scan(&parent))
	assert.Equal(t, "kestrel", parent)
}

func TestRunLog(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	_, err := repo.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrRunNotFound)

	started := time.Now().UTC().Truncate(time.Millisecond)
	older := &models.RunSummary{
		RunID:     uuid.Must(uuid.NewV7()).String(),
		StartedAt: started.Add(-time.Hour),
		Status:    models.StatusFailed,
		Results:   []models.SyncResult{{Table: models.StageSetup, Error: "database unreachable"}},
	}
	older.FinishedAt = older.StartedAt.Add(time.Second)

	newer := &models.RunSummary{
		RunID:     uuid.Must(uuid.NewV7()).String(),
		StartedAt: started,
		Results: []models.SyncResult{
			{Table: models.TableEndpoints, RecordsFetched: 3, RecordsSynced: 3, WatermarkAfter: "2024-01-01T00:00:00Z"},
			{Table: models.TableUsage, Error: "source usage_records: status 503"},
		},
		RefreshError: "refresh tenant_usage_daily: boom",
	}
	newer.Finish(started.Add(2 * time.Second))

	require.NoError(t, repo.SaveRun(ctx, older))
	require.NoError(t, repo.SaveRun(ctx, newer))

	latest, err := repo.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.RunID, latest.RunID)
	assert.Equal(t, models.StatusPartial, latest.Status)
	assert.Equal(t, newer.Results, latest.Results)
	assert.Equal(t, newer.RefreshError, latest.RefreshError)
	assert.True(t, newer.StartedAt.Equal(latest.StartedAt))

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, older.RunID, runs[1].RunID)
	assert.Empty(t, runs[1].RefreshError)
}
