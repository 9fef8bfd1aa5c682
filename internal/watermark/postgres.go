package watermark

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/telhawk-systems/reportsync/common/database"
)

// DB is the subset of *pgxpool.Pool the Postgres store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore keeps watermarks in the sync_watermarks table.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, table string) (string, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var value string
	err := s.db.QueryRow(ctx,
		`SELECT watermark FROM sync_watermarks WHERE table_name = $1`, table,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get watermark for %s: %w", table, err)
	}
	return value, nil
}

func (s *PostgresStore) Put(ctx context.Context, table, value string) (bool, error) {
	if value == "" {
		return false, nil
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	moved := false
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx,
			`SELECT watermark FROM sync_watermarks WHERE table_name = $1 FOR UPDATE`, table,
		).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if !Advances(current, value) {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO sync_watermarks (table_name, watermark, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (table_name) DO UPDATE
			SET watermark = EXCLUDED.watermark, updated_at = EXCLUDED.updated_at
		`, table, value)
		if err != nil {
			return err
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to put watermark for %s: %w", table, err)
	}
	return moved, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	return s.db.Ping(ctx)
}
