package iccid

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/internal/models"
	"github.com/telhawk-systems/reportsync/internal/source"
	"github.com/telhawk-systems/reportsync/internal/tenant"
)

// Fallback is one source of ICCID/tenant pairs.
type Fallback struct {
	Table       string
	OrderColumn string
}

// DefaultFallbacks lists the fallback tables in priority order. Later
// sources only fill gaps left by earlier ones.
var DefaultFallbacks = []Fallback{
	{Table: models.TableEndpoints, OrderColumn: "created_at"},
	{Table: models.TableBundleInstances, OrderColumn: "start_time"},
	{Table: models.TableBundleCatalog, OrderColumn: "collected_at"},
}

var fallbackColumns = []string{"iccid", "tenant_name", "tenant_id"}

// Builder reads the fallback tables and produces an Index.
type Builder struct {
	reader    source.Reader
	registry  *tenant.Registry
	fallbacks []Fallback
	logger    *logging.Logger
}

// NewBuilder creates a Builder over the default fallback tables.
func NewBuilder(reader source.Reader, registry *tenant.Registry, logger *logging.Logger) *Builder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Builder{
		reader:    reader,
		registry:  registry,
		fallbacks: DefaultFallbacks,
		logger:    logger,
	}
}

// Build fetches every fallback table in priority order and returns a fresh
// index. Rows without an ICCID or a resolvable tenant are ignored.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	acc := newAccumulator()

	for _, fb := range b.fallbacks {
		rows, err := b.reader.FetchAll(ctx, fb.Table, source.FetchOptions{
			Columns:     fallbackColumns,
			OrderColumn: fb.OrderColumn,
			Unbounded:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("build iccid index from %s: %w", fb.Table, err)
		}

		added, unresolved := 0, 0
		for _, row := range rows {
			iccid := row.Text("iccid")
			if iccid == nil {
				continue
			}
			res := b.registry.Resolve(row.Text("tenant_name"), row.Text("tenant_id"))
			if !res.OK() {
				unresolved++
				continue
			}
			if acc.add(*iccid, res.TenantID) {
				added++
			}
		}

		b.logger.DebugContext(ctx, "iccid fallback loaded",
			logging.Table(fb.Table),
			logging.Records(len(rows)),
			slog.Int("added", added),
			slog.Int("unresolved", unresolved))
	}

	ix := acc.index()
	b.logger.InfoContext(ctx, "iccid index built",
		slog.Int("exact", ix.Len()),
		slog.Int("prefixes", ix.PrefixLen()))
	return ix, nil
}
