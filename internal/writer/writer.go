// Package writer upserts mapped records into the reporting store in
// parameter-bounded chunks.
package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/telhawk-systems/reportsync/common/database"
	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/internal/models"
)

// MaxParameters is the Postgres limit on bind parameters per statement.
const MaxParameters = 65535

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Chunk is one committed slice of a Write call.
type Chunk struct {
	Index int
	Rows  []models.MappedRecord
	// Next is the first row of the following chunk, nil for the last chunk.
	Next *models.MappedRecord
}

// ChunkFunc is called after each chunk commits. A non-nil error aborts the
// remaining chunks.
type ChunkFunc func(ctx context.Context, chunk Chunk) error

// Writer performs chunked multi-row upserts.
type Writer struct {
	db        Execer
	batchSize int
	logger    *logging.Logger
	now       func() time.Time
}

// New creates a Writer. batchSize caps rows per statement.
func New(db Execer, batchSize int, logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.Default()
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Writer{
		db:        db,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// ChunkSize returns the number of rows per statement for a table with cols
// columns.
func ChunkSize(batchSize, cols int) int {
	if cols <= 0 {
		return batchSize
	}
	return max(1, min(batchSize, MaxParameters/cols))
}

// Write upserts rows and returns how many were written.
func (w *Writer) Write(ctx context.Context, spec models.TableSpec, rows []models.MappedRecord) (int, error) {
	return w.WriteChunks(ctx, spec, rows, nil)
}

// WriteChunks upserts rows chunk by chunk, calling onChunk after each commit.
// Rows sharing a conflict key are collapsed first, the last one winning. A
// failed chunk stops the write; chunks before it stay committed.
func (w *Writer) WriteChunks(ctx context.Context, spec models.TableSpec, rows []models.MappedRecord, onChunk ChunkFunc) (int, error) {
	rows = Dedupe(spec, rows)
	if len(rows) == 0 {
		return 0, nil
	}

	size := ChunkSize(w.batchSize, len(spec.Columns))
	syncedAt := w.now().UTC()
	written := 0

	for start, idx := 0, 0; start < len(rows); start, idx = start+size, idx+1 {
		end := min(start+size, len(rows))
		chunk := rows[start:end]

		query, args := BuildUpsert(spec, chunk, syncedAt)
		if err := w.exec(ctx, query, args); err != nil {
			return written, &WriteError{Table: spec.Name, Chunk: idx, Err: err}
		}
		written += len(chunk)

		w.logger.DebugContext(ctx, "chunk upserted",
			logging.Table(spec.Name), logging.Chunk(idx), logging.Records(len(chunk)))

		if onChunk != nil {
			c := Chunk{Index: idx, Rows: chunk}
			if end < len(rows) {
				c.Next = &rows[end]
			}
			if err := onChunk(ctx, c); err != nil {
				return written, fmt.Errorf("after chunk %d of %s: %w", idx, spec.Name, err)
			}
		}
	}
	return written, nil
}

func (w *Writer) exec(ctx context.Context, query string, args []any) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	_, err := w.db.Exec(ctx, query, args...)
	return err
}

// Dedupe keeps the last row for each conflict key, preserving the order of
// the survivors.
func Dedupe(spec models.TableSpec, rows []models.MappedRecord) []models.MappedRecord {
	last := make(map[string]int, len(rows))
	for i, r := range rows {
		last[conflictKey(spec, r)] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([]models.MappedRecord, 0, len(last))
	for i, r := range rows {
		if last[conflictKey(spec, r)] == i {
			out = append(out, r)
		}
	}
	return out
}

func conflictKey(spec models.TableSpec, r models.MappedRecord) string {
	parts := make([]string, len(spec.ConflictColumns))
	for i, col := range spec.ConflictColumns {
		parts[i] = fmt.Sprint(columnValue(col, r, time.Time{}))
	}
	return strings.Join(parts, "\x00")
}

func columnValue(col string, r models.MappedRecord, syncedAt time.Time) any {
	switch col {
	case "source_id":
		return r.SourceID
	case "tenant_id":
		return r.TenantID
	case "synced_at":
		return syncedAt
	default:
		return r.Values[col]
	}
}

// BuildUpsert renders one multi-row INSERT ... ON CONFLICT statement for
// rows. Identifiers are quoted with pgx.Identifier and every value is bound.
func BuildUpsert(spec models.TableSpec, rows []models.MappedRecord, syncedAt time.Time) (string, []any) {
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgx.Identifier{spec.Name}.Sanitize())
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(spec.Columns))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, col := range spec.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, columnValue(col, r, syncedAt))
			b.WriteByte('$')
			b.WriteString(fmt.Sprint(len(args)))
		}
		b.WriteByte(')')
	}

	conflict := make([]string, len(spec.ConflictColumns))
	for i, c := range spec.ConflictColumns {
		conflict[i] = pgx.Identifier{c}.Sanitize()
	}
	b.WriteString(" ON CONFLICT (")
	b.WriteString(strings.Join(conflict, ", "))
	b.WriteString(")")

	if len(spec.MutableColumns) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String(), args
	}

	b.WriteString(" DO UPDATE SET ")
	for i, c := range spec.MutableColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		id := pgx.Identifier{c}.Sanitize()
		b.WriteString(id)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(id)
	}
	return b.String(), args
}
