// Package syncer drives one sync run: every table pipeline in dependency
// order, then the usage backfill, the view refresh and the run log.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/reportsync/common/audit"
	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/common/messaging"
	"github.com/telhawk-systems/reportsync/internal/backfill"
	"github.com/telhawk-systems/reportsync/internal/iccid"
	"github.com/telhawk-systems/reportsync/internal/mapper"
	"github.com/telhawk-systems/reportsync/internal/metrics"
	"github.com/telhawk-systems/reportsync/internal/models"
	"github.com/telhawk-systems/reportsync/internal/source"
	"github.com/telhawk-systems/reportsync/internal/tenant"
	"github.com/telhawk-systems/reportsync/internal/watermark"
	"github.com/telhawk-systems/reportsync/internal/writer"
)

// ErrSetup marks a failure before any table ran.
var ErrSetup = errors.New("sync setup failed")

// Writer upserts mapped rows.
type Writer interface {
	WriteChunks(ctx context.Context, spec models.TableSpec, rows []models.MappedRecord, onChunk writer.ChunkFunc) (int, error)
}

// IndexBuilder produces the ICCID index for the usage pipeline.
type IndexBuilder interface {
	Build(ctx context.Context) (*iccid.Index, error)
}

// Reconciler is the usage backfill pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (backfill.Summary, error)
}

// Refresher rebuilds the reporting views.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RunStore is the part of the repository a run touches directly.
type RunStore interface {
	Ping(ctx context.Context) error
	SeedTenants(ctx context.Context, tenants []models.CanonicalTenant) error
	SaveRun(ctx context.Context, run *models.RunSummary) error
}

// Deps wires an Orchestrator.
type Deps struct {
	Reader     source.Reader
	Registry   *tenant.Registry
	Index      IndexBuilder
	Writer     Writer
	Watermarks watermark.Store
	Backfill   Reconciler
	Refresher  Refresher
	Runs       RunStore
	Publisher  messaging.Publisher
	Logger     *logging.Logger

	// Signer, when set, adds an HMAC signature header to published summaries.
	Signer *audit.Signer
	// Tables defaults to mapper.Specs().
	Tables []models.TableSpec
	Now    func() time.Time
}

// Orchestrator runs the sync pipeline. It is not safe for concurrent Run
// calls; the scheduler serialises them.
type Orchestrator struct {
	reader     source.Reader
	registry   *tenant.Registry
	index      IndexBuilder
	writer     Writer
	watermarks watermark.Store
	backfill   Reconciler
	refresher  Refresher
	runs       RunStore
	publisher  messaging.Publisher
	signer     *audit.Signer
	logger     *logging.Logger
	tables     []models.TableSpec
	now        func() time.Time
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.Publisher == nil {
		d.Publisher = messaging.NopPublisher{}
	}
	if d.Tables == nil {
		d.Tables = mapper.Specs()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Orchestrator{
		reader:     d.Reader,
		registry:   d.Registry,
		index:      d.Index,
		writer:     d.Writer,
		watermarks: d.Watermarks,
		backfill:   d.Backfill,
		refresher:  d.Refresher,
		runs:       d.Runs,
		publisher:  d.Publisher,
		signer:     d.Signer,
		logger:     d.Logger,
		tables:     d.Tables,
		now:        d.Now,
	}
}

// Run executes one full pass and returns its summary. It never panics on
// pipeline errors: they end up in the summary.
func (o *Orchestrator) Run(ctx context.Context) *models.RunSummary {
	runID, err := uuid.NewV7()
	if err != nil {
		runID = uuid.New()
	}
	summary := &models.RunSummary{
		RunID:     runID.String(),
		StartedAt: o.now().UTC(),
	}
	ctx = logging.ContextWithRunID(ctx, summary.RunID)
	o.logger.InfoContext(ctx, "sync run started")

	metrics.RunInProgress.Set(1)
	defer metrics.RunInProgress.Set(0)

	if err := o.setup(ctx); err != nil {
		o.logger.ErrorContext(ctx, "sync setup failed", logging.Error(err))
		summary.Status = models.StatusFailed
		summary.Results = []models.SyncResult{{Table: models.StageSetup, Error: err.Error()}}
		o.finish(ctx, summary)
		return summary
	}

	for _, spec := range o.tables {
		var ix *iccid.Index
		if spec.Name == models.TableUsage && o.index != nil {
			built, err := o.index.Build(ctx)
			if err != nil {
				wm, wmErr := o.watermarks.Get(ctx, spec.Name)
				if wmErr != nil {
					err = errors.Join(err, wmErr)
				}
				res := models.SyncResult{
					Table:           spec.Name,
					Error:           err.Error(),
					WatermarkBefore: wm,
					WatermarkAfter:  wm,
				}
				o.record(ctx, summary, res)
				continue
			}
			ix = built
		}
		o.record(ctx, summary, o.syncTable(ctx, spec, ix))
	}

	o.record(ctx, summary, o.runBackfill(ctx))

	if o.refresher != nil {
		if err := o.refresher.Refresh(ctx); err != nil {
			summary.RefreshError = err.Error()
		}
	}

	o.finish(ctx, summary)
	return summary
}

func (o *Orchestrator) setup(ctx context.Context) error {
	if err := o.runs.Ping(ctx); err != nil {
		return fmt.Errorf("%w: reporting store unreachable: %w", ErrSetup, err)
	}
	if err := o.watermarks.Ping(ctx); err != nil {
		return fmt.Errorf("%w: watermark store unreachable: %w", ErrSetup, err)
	}
	if err := o.runs.SeedTenants(ctx, o.registry.Tenants()); err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, summary *models.RunSummary, res models.SyncResult) {
	summary.Results = append(summary.Results, res)
	metrics.ObserveTable(res)

	attrs := []any{
		logging.Table(res.Table),
		logging.Records(res.RecordsSynced),
		logging.Dropped(res.RecordsDropped),
		slog.Int("fetched", res.RecordsFetched),
		logging.Watermark(res.WatermarkAfter),
		logging.Duration(res.DurationMs),
	}
	if res.Failed() {
		o.logger.ErrorContext(ctx, "table sync failed", append(attrs, slog.String("error", res.Error))...)
		return
	}
	o.logger.InfoContext(ctx, "table synced", attrs...)
}

func (o *Orchestrator) runBackfill(ctx context.Context) models.SyncResult {
	res := models.SyncResult{Table: models.StageUsageBackfill}
	if o.backfill == nil {
		return res
	}
	start := time.Now()
	summary, err := o.backfill.Reconcile(ctx)
	res.DurationMs = time.Since(start).Milliseconds()
	res.RecordsFetched = summary.Instances
	res.RecordsSynced = summary.ExactMatches + summary.DateRangeMatches
	if err != nil {
		res.Error = err.Error()
		return res
	}
	metrics.BackfillMatches.WithLabelValues(string(backfill.StrategyExact)).Add(float64(summary.ExactMatches))
	metrics.BackfillMatches.WithLabelValues(string(backfill.StrategyDateRange)).Add(float64(summary.DateRangeMatches))
	return res
}

func (o *Orchestrator) finish(ctx context.Context, summary *models.RunSummary) {
	summary.Finish(o.now().UTC())
	metrics.ObserveRun(summary)

	if err := o.runs.SaveRun(ctx, summary); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist run summary", logging.Error(err))
	}

	headers := map[string]string{
		messaging.HeaderRunID:  summary.RunID,
		messaging.HeaderStatus: string(summary.Status),
	}
	if o.signer != nil {
		if data, err := json.Marshal(summary); err == nil {
			headers[messaging.HeaderSignature] = o.signer.Sign(summary.RunID, summary.FinishedAt, data)
		}
	}
	subject := messaging.RunSubject(string(summary.Status))
	if err := messaging.PublishJSON(ctx, o.publisher, subject, summary, headers); err != nil {
		o.logger.WarnContext(ctx, "failed to publish run summary", logging.Error(err))
	}

	o.logger.InfoContext(ctx, "sync run finished",
		logging.Status(string(summary.Status)),
		logging.Records(summary.TotalSynced()),
		logging.Duration(summary.FinishedAt.Sub(summary.StartedAt).Milliseconds()))
}
