// Package mapper turns raw source records into sanitised rows for the
// reporting store.
package mapper

import (
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/reportsync/internal/models"
	"github.com/telhawk-systems/reportsync/internal/tenant"
)

// statusChain is the order in which status-like columns are consulted for
// effective_status.
var statusChain = []string{"status", "bundle_status", "instance_status", "state"}

type mapFunc func(rec models.SourceRecord) (sourceID string, values map[string]any, ok bool)

var mappers = map[string]mapFunc{
	models.TableEndpoints:       mapEndpoint,
	models.TableBundleInstances: mapBundleInstance,
	models.TableUsage:           mapUsage,
	models.TableBundleCatalog:   mapCatalogEntry,
}

// Map converts rec into a row for table. It returns false when the tenant did
// not resolve or when a field needed for the dedup key is missing; the caller
// counts the record as dropped.
func Map(table string, rec models.SourceRecord, res tenant.Resolution) (models.MappedRecord, bool) {
	if !res.OK() {
		return models.MappedRecord{}, false
	}
	spec, ok := Spec(table)
	if !ok {
		return models.MappedRecord{}, false
	}
	sourceID, values, ok := mappers[table](rec)
	if !ok {
		return models.MappedRecord{}, false
	}

	wm, _ := rec.String(spec.WatermarkColumn)
	return models.MappedRecord{
		Table:     table,
		SourceID:  sourceID,
		TenantID:  res.TenantID,
		Values:    values,
		Watermark: wm,
	}, true
}

// TenantFields returns the record's free-text tenant name and id.
func TenantFields(rec models.SourceRecord) (name, id *string) {
	return rec.Text("tenant_name"), rec.Text("tenant_id")
}

func mapEndpoint(rec models.SourceRecord) (string, map[string]any, bool) {
	endpointID := rec.Text("endpoint_id")
	if endpointID == nil {
		return "", nil, false
	}
	return *endpointID, map[string]any{
		"endpoint_id":       *endpointID,
		"iccid":             text(rec, "iccid"),
		"endpoint_name":     text(rec, "endpoint_name"),
		"status":            text(rec, "status"),
		"effective_status":  EffectiveStatus(rec),
		"source_created_at": timestamp(rec, "created_at"),
		"source_updated_at": timestamp(rec, "updated_at"),
	}, true
}

func mapBundleInstance(rec models.SourceRecord) (string, map[string]any, bool) {
	instanceID := rec.Text("bundle_instance_id")
	iccid := rec.Text("iccid")
	start := rec.Text("start_time")
	if instanceID == nil || iccid == nil || start == nil {
		return "", nil, false
	}
	return compositeKey(*instanceID, *iccid, *start), map[string]any{
		"bundle_instance_id": *instanceID,
		"iccid":              *iccid,
		"bundle_moniker":     text(rec, "bundle_moniker"),
		"bundle_name":        text(rec, "bundle_name"),
		"sequence_number":    integer(rec, "sequence_number"),
		"start_time":         timestamp(rec, "start_time"),
		"end_time":           timestamp(rec, "end_time"),
		"status":             text(rec, "status"),
		"effective_status":   EffectiveStatus(rec),
		"allowance_bytes":    integer(rec, "allowance_bytes"),
		"source_updated_at":  timestamp(rec, "updated_at"),
	}, true
}

func mapUsage(rec models.SourceRecord) (string, map[string]any, bool) {
	iccid := rec.Text("iccid")
	if iccid == nil {
		return "", nil, false
	}

	var sourceID string
	if usageID := rec.Text("usage_id"); usageID != nil {
		sourceID = *usageID
	} else {
		eventStart := rec.Text("event_start")
		if eventStart == nil {
			return "", nil, false
		}
		moniker, _ := rec.String("bundle_moniker")
		seq, _ := rec.String("sequence_number")
		sourceID = compositeKey(*iccid, *eventStart, strings.TrimSpace(moniker), strings.TrimSpace(seq))
	}

	// A missing charge is zero; one that is present but not an integer drops
	// the record so usage totals are never understated.
	var charged any = int64(0)
	if v, ok := rec["charged_bytes"]; ok && v != nil {
		if charged = integer(rec, "charged_bytes"); charged == nil {
			return "", nil, false
		}
	}
	return sourceID, map[string]any{
		"usage_id":          text(rec, "usage_id"),
		"iccid":             *iccid,
		"bundle_moniker":    text(rec, "bundle_moniker"),
		"sequence_number":   integer(rec, "sequence_number"),
		"event_start":       timestamp(rec, "event_start"),
		"event_end":         timestamp(rec, "event_end"),
		"usage_date":        UsageDate(rec),
		"charged_bytes":     charged,
		"uploaded_bytes":    integer(rec, "uploaded_bytes"),
		"downloaded_bytes":  integer(rec, "downloaded_bytes"),
		"usage_type":        text(rec, "usage_type"),
		"source_created_at": timestamp(rec, "created_at"),
	}, true
}

func mapCatalogEntry(rec models.SourceRecord) (string, map[string]any, bool) {
	moniker := rec.Text("bundle_moniker")
	iccid := rec.Text("iccid")
	if moniker == nil || iccid == nil {
		return "", nil, false
	}
	return compositeKey(*moniker, *iccid), map[string]any{
		"bundle_moniker":   *moniker,
		"iccid":            *iccid,
		"bundle_name":      text(rec, "bundle_name"),
		"status":           text(rec, "status"),
		"effective_status": EffectiveStatus(rec),
		"allowance_bytes":  integer(rec, "allowance_bytes"),
		"list_price":       number(rec, "list_price"),
		"currency":         text(rec, "currency"),
		"collected_at":     timestamp(rec, "collected_at"),
	}, true
}

// EffectiveStatus returns the first non-blank status-like column, or nil.
func EffectiveStatus(rec models.SourceRecord) any {
	for _, col := range statusChain {
		if v := rec.Text(col); v != nil {
			return *v
		}
	}
	return nil
}

// UsageDate is the UTC calendar date of event_start, falling back to
// created_at. It returns nil when neither parses.
func UsageDate(rec models.SourceRecord) any {
	for _, col := range []string{"event_start", "created_at"} {
		if t, ok := rec.Time(col); ok {
			y, m, d := t.UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
	}
	return nil
}

func compositeKey(parts ...string) string {
	return strings.Join(parts, "|")
}

func text(rec models.SourceRecord, key string) any {
	if v := rec.Text(key); v != nil {
		return *v
	}
	return nil
}

func timestamp(rec models.SourceRecord, key string) any {
	if t, ok := rec.Time(key); ok {
		return t
	}
	return nil
}

func integer(rec models.SourceRecord, key string) any {
	if i, ok := rec.Int64(key); ok {
		return i
	}
	if s := rec.Text(key); s != nil {
		if i, err := strconv.ParseInt(*s, 10, 64); err == nil {
			return i
		}
	}
	return nil
}

func number(rec models.SourceRecord, key string) any {
	if f, ok := rec.Float64(key); ok {
		return f
	}
	if s := rec.Text(key); s != nil {
		if f, err := strconv.ParseFloat(*s, 64); err == nil {
			return f
		}
	}
	return nil
}
