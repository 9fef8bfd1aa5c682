package mapper

import "github.com/telhawk-systems/reportsync/internal/models"

// Column allow-lists. Only the columns named here are ever requested from the
// source or written to the reporting store. Subscriber identifiers other than
// the ICCID (imsi, msisdn), device identifiers (imei), location data,
// credentials (pin, puk, ki, api keys) and raw payloads are never selected.
// Review this file whenever the source schema gains a column.

var endpointsSpec = models.TableSpec{
	Name:        models.TableEndpoints,
	SourceTable: "endpoints",
	SelectColumns: []string{
		"endpoint_id", "iccid", "endpoint_name", "tenant_name", "tenant_id",
		"status", "state", "created_at", "updated_at",
	},
	WatermarkColumn: "updated_at",
	OrderColumn:     "updated_at",
	Columns: []string{
		"source_id", "tenant_id", "endpoint_id", "iccid", "endpoint_name",
		"status", "effective_status", "source_created_at", "source_updated_at", "synced_at",
	},
	ConflictColumns: []string{"source_id"},
	MutableColumns: []string{
		"endpoint_name", "status", "effective_status", "source_updated_at", "synced_at",
	},
}

var bundleInstancesSpec = models.TableSpec{
	Name:        models.TableBundleInstances,
	SourceTable: "bundle_instances",
	SelectColumns: []string{
		"bundle_instance_id", "iccid", "bundle_moniker", "bundle_name", "sequence_number",
		"start_time", "end_time", "status", "bundle_status", "instance_status", "state",
		"allowance_bytes", "tenant_name", "tenant_id", "updated_at",
	},
	WatermarkColumn: "updated_at",
	OrderColumn:     "updated_at",
	Columns: []string{
		"source_id", "tenant_id", "bundle_instance_id", "iccid", "bundle_moniker", "bundle_name",
		"sequence_number", "start_time", "end_time", "status", "effective_status",
		"allowance_bytes", "source_updated_at", "synced_at",
	},
	ConflictColumns: []string{"source_id", "tenant_id"},
	MutableColumns: []string{
		"bundle_name", "end_time", "status", "effective_status", "allowance_bytes", "source_updated_at", "synced_at",
	},
}

var usageSpec = models.TableSpec{
	Name:        models.TableUsage,
	SourceTable: "usage_records",
	SelectColumns: []string{
		"usage_id", "iccid", "bundle_moniker", "sequence_number", "event_start", "event_end",
		"charged_bytes", "uploaded_bytes", "downloaded_bytes", "usage_type",
		"tenant_name", "tenant_id", "created_at",
	},
	WatermarkColumn: "created_at",
	OrderColumn:     "created_at",
	Columns: []string{
		"source_id", "tenant_id", "usage_id", "iccid", "bundle_moniker", "sequence_number",
		"event_start", "event_end", "usage_date", "charged_bytes", "uploaded_bytes",
		"downloaded_bytes", "usage_type", "source_created_at", "synced_at",
	},
	ConflictColumns: []string{"source_id"},
	MutableColumns: []string{
		"event_end", "charged_bytes", "uploaded_bytes", "downloaded_bytes", "synced_at",
	},
	IncrementalWatermark: true,
}

var bundleCatalogSpec = models.TableSpec{
	Name:        models.TableBundleCatalog,
	SourceTable: "bundle_catalog",
	SelectColumns: []string{
		"bundle_moniker", "iccid", "bundle_name", "status", "state", "allowance_bytes",
		"list_price", "currency", "tenant_name", "tenant_id", "collected_at",
	},
	WatermarkColumn: "collected_at",
	OrderColumn:     "collected_at",
	Columns: []string{
		"source_id", "tenant_id", "bundle_moniker", "iccid", "bundle_name", "status",
		"effective_status", "allowance_bytes", "list_price", "currency", "collected_at", "synced_at",
	},
	ConflictColumns: []string{"source_id"},
	MutableColumns: []string{
		"bundle_name", "status", "effective_status", "allowance_bytes",
		"list_price", "currency", "collected_at", "synced_at",
	},
}

// Specs returns the table specs in sync order.
func Specs() []models.TableSpec {
	return []models.TableSpec{endpointsSpec, bundleInstancesSpec, usageSpec, bundleCatalogSpec}
}

// Spec returns the spec for table.
func Spec(table string) (models.TableSpec, bool) {
	for _, s := range Specs() {
		if s.Name == table {
			return s, true
		}
	}
	return models.TableSpec{}, false
}
