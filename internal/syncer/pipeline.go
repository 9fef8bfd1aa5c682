package syncer

import (
	"context"
	"time"

	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/internal/iccid"
	"github.com/telhawk-systems/reportsync/internal/mapper"
	"github.com/telhawk-systems/reportsync/internal/metrics"
	"github.com/telhawk-systems/reportsync/internal/models"
	"github.com/telhawk-systems/reportsync/internal/source"
	"github.com/telhawk-systems/reportsync/internal/tenant"
	"github.com/telhawk-systems/reportsync/internal/watermark"
	"github.com/telhawk-systems/reportsync/internal/writer"
)

// syncTable runs fetch, resolve, map and write for one table. The watermark
// only moves when the write succeeded and synced at least one row.
func (o *Orchestrator) syncTable(ctx context.Context, spec models.TableSpec, ix *iccid.Index) models.SyncResult {
	start := time.Now()
	res := models.SyncResult{Table: spec.Name}
	fail := func(err error) models.SyncResult {
		res.Error = err.Error()
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	before, err := o.watermarks.Get(ctx, spec.Name)
	if err != nil {
		return fail(err)
	}
	res.WatermarkBefore = before
	res.WatermarkAfter = before

	records, err := o.reader.FetchAll(ctx, spec.SourceTable, source.FetchOptions{
		Columns:         spec.SelectColumns,
		OrderColumn:     spec.OrderColumn,
		WatermarkColumn: spec.WatermarkColumn,
		Watermark:       before,
	})
	if err != nil {
		return fail(err)
	}
	res.RecordsFetched = len(records)

	rows := make([]models.MappedRecord, 0, len(records))
	for _, rec := range records {
		resolution := o.resolve(rec, ix)
		mapped, ok := mapper.Map(spec.Name, rec, resolution)
		if !ok {
			res.RecordsDropped++
			continue
		}
		metrics.TenantResolutions.WithLabelValues(spec.Name, string(resolution.Via)).Inc()
		rows = append(rows, mapped)
	}
	if res.RecordsDropped > 0 {
		o.logger.WarnContext(ctx, "records dropped",
			logging.Table(spec.Name), logging.Dropped(res.RecordsDropped))
	}

	var onChunk writer.ChunkFunc
	if spec.IncrementalWatermark {
		onChunk = func(ctx context.Context, c writer.Chunk) error {
			value := chunkWatermark(c)
			if value == "" {
				return nil
			}
			moved, err := o.watermarks.Put(ctx, spec.Name, value)
			if err != nil {
				return err
			}
			if moved {
				res.WatermarkAfter = value
			}
			return nil
		}
	}

	n, err := o.writer.WriteChunks(ctx, spec, rows, onChunk)
	res.RecordsSynced = n
	if err != nil {
		return fail(err)
	}

	if n > 0 {
		last, _ := records[len(records)-1].String(spec.WatermarkColumn)
		moved, err := o.watermarks.Put(ctx, spec.Name, last)
		if err != nil {
			return fail(err)
		}
		if moved {
			res.WatermarkAfter = last
		}
	}

	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

// resolve runs the tenant cascade and, for the usage table, falls back to the
// ICCID index.
func (o *Orchestrator) resolve(rec models.SourceRecord, ix *iccid.Index) tenant.Resolution {
	res := o.registry.Resolve(mapper.TenantFields(rec))
	if res.OK() || ix == nil {
		return res
	}
	value := rec.Text("iccid")
	if value == nil {
		return res
	}
	switch tenantID, match := ix.Lookup(*value); match {
	case iccid.ExactMatch:
		return tenant.ResolvedAs(tenantID, tenant.ViaICCID)
	case iccid.PrefixMatch:
		return tenant.ResolvedAs(tenantID, tenant.ViaICCIDPrefix)
	}
	return res
}

// chunkWatermark picks the watermark to commit after a chunk: the greatest
// value in the chunk strictly below the next chunk's first value, so rows
// tied across the boundary are re-read rather than skipped.
func chunkWatermark(c writer.Chunk) string {
	best := ""
	for _, r := range c.Rows {
		if c.Next != nil && watermark.Compare(r.Watermark, c.Next.Watermark) >= 0 {
			continue
		}
		if watermark.Compare(r.Watermark, best) > 0 {
			best = r.Watermark
		}
	}
	return best
}
