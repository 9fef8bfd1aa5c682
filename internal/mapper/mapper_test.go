package mapper

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/reportsync/internal/models"
	"github.com/telhawk-systems/reportsync/internal/tenant"
)

var simsy = tenant.ResolvedAs("simsy", tenant.ViaName)

var forbidden = []string{
	"imsi", "msisdn", "imei", "latitude", "longitude", "cell_id", "location",
	"pin", "puk", "ki", "api_key", "apikey", "password", "raw", "payload",
}

func TestSpecs_AllowLists(t *testing.T) {
	for _, spec := range Specs() {
		t.Run(spec.Name, func(t *testing.T) {
			for _, col := range append(slices.Clone(spec.SelectColumns), spec.Columns...) {
				for _, bad := range forbidden {
					assert.NotEqual(t, bad, col)
					assert.False(t, strings.HasPrefix(col, bad+"_") || strings.HasSuffix(col, "_"+bad),
						"column %q looks like %q", col, bad)
				}
			}

			for _, required := range []string{"source_id", "tenant_id", "synced_at"} {
				assert.Contains(t, spec.Columns, required)
			}
			for _, col := range spec.ConflictColumns {
				assert.Contains(t, spec.Columns, col)
				assert.NotContains(t, spec.MutableColumns, col, "conflict columns are identity fields")
			}
			for _, col := range spec.MutableColumns {
				assert.Contains(t, spec.Columns, col)
			}
			assert.Contains(t, spec.SelectColumns, spec.WatermarkColumn)
		})
	}
}

func TestSpecs_Order(t *testing.T) {
	var names []string
	for _, s := range Specs() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		models.TableEndpoints, models.TableBundleInstances, models.TableUsage, models.TableBundleCatalog,
	}, names)

	usage, ok := Spec(models.TableUsage)
	require.True(t, ok)
	assert.True(t, usage.IncrementalWatermark)

	instances, _ := Spec(models.TableBundleInstances)
	assert.Equal(t, []string{"source_id", "tenant_id"}, instances.ConflictColumns)

	_, ok = Spec("unknown")
	assert.False(t, ok)
}

func TestMap_ValuesStayInsideColumns(t *testing.T) {
	records := map[string]models.SourceRecord{
		models.TableEndpoints: {
			"endpoint_id": "ep-1", "iccid": "8944", "imsi": "234150000000001", "updated_at": "2024-01-01T00:00:00Z",
		},
		models.TableBundleInstances: {
			"bundle_instance_id": "bi-1", "iccid": "8944", "start_time": "2024-01-01T00:00:00Z", "msisdn": "447700900000",
		},
		models.TableUsage: {
			"usage_id": "u-1", "iccid": "8944", "imei": "356938035643809", "latitude": 51.5,
		},
		models.TableBundleCatalog: {
			"bundle_moniker": "EU-1GB", "iccid": "8944", "raw_payload": "{}",
		},
	}

	for table, rec := range records {
		t.Run(table, func(t *testing.T) {
			spec, _ := Spec(table)
			mapped, ok := Map(table, rec, simsy)
			require.True(t, ok)
			assert.Equal(t, "simsy", mapped.TenantID)
			for col := range mapped.Values {
				assert.Contains(t, spec.Columns, col)
			}
			for _, bad := range []string{"imsi", "msisdn", "imei", "latitude", "raw_payload"} {
				assert.NotContains(t, mapped.Values, bad)
			}
		})
	}
}

func TestMap_UnresolvedTenantIsDropped(t *testing.T) {
	rec := models.SourceRecord{"endpoint_id": "ep-1"}
	_, ok := Map(models.TableEndpoints, rec, tenant.Unknown)
	assert.False(t, ok)
}

func TestMap_DedupKeys(t *testing.T) {
	tests := []struct {
		name  string
		table string
		rec   models.SourceRecord
		want  string
		ok    bool
	}{
		{
			name:  "endpoint id",
			table: models.TableEndpoints,
			rec:   models.SourceRecord{"endpoint_id": " ep-1 "},
			want:  "ep-1",
			ok:    true,
		},
		{
			name:  "endpoint without id",
			table: models.TableEndpoints,
			rec:   models.SourceRecord{"iccid": "8944"},
		},
		{
			name:  "bundle instance composite",
			table: models.TableBundleInstances,
			rec: models.SourceRecord{
				"bundle_instance_id": "bi-7", "iccid": "89440000001 ", "start_time": "2024-01-01T00:00:00Z",
			},
			want: "bi-7|89440000001|2024-01-01T00:00:00Z",
			ok:   true,
		},
		{
			name:  "bundle instance missing start",
			table: models.TableBundleInstances,
			rec:   models.SourceRecord{"bundle_instance_id": "bi-7", "iccid": "8944"},
		},
		{
			name:  "usage id",
			table: models.TableUsage,
			rec:   models.SourceRecord{"usage_id": "u-9", "iccid": "8944"},
			want:  "u-9",
			ok:    true,
		},
		{
			name:  "usage composite fallback",
			table: models.TableUsage,
			rec: models.SourceRecord{
				"iccid": "8944", "event_start": "2024-01-01T10:00:00Z", "bundle_moniker": "EU-1GB",
				"sequence_number": json.Number("3"),
			},
			want: "8944|2024-01-01T10:00:00Z|EU-1GB|3",
			ok:   true,
		},
		{
			name:  "usage without iccid",
			table: models.TableUsage,
			rec:   models.SourceRecord{"usage_id": "u-9"},
		},
		{
			name:  "usage composite without event start",
			table: models.TableUsage,
			rec:   models.SourceRecord{"iccid": "8944"},
		},
		{
			name:  "catalog composite",
			table: models.TableBundleCatalog,
			rec:   models.SourceRecord{"bundle_moniker": "EU-1GB", "iccid": "8944"},
			want:  "EU-1GB|8944",
			ok:    true,
		},
		{
			name:  "catalog without moniker",
			table: models.TableBundleCatalog,
			rec:   models.SourceRecord{"iccid": "8944"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped, ok := Map(tt.table, tt.rec, simsy)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, mapped.SourceID)
		})
	}
}

func TestMap_UsageDerivedFields(t *testing.T) {
	rec := models.SourceRecord{
		"usage_id":       "u-1",
		"iccid":          " 89440000001 ",
		"event_start":    "2024-02-29T23:30:00-02:00",
		"charged_bytes":  json.Number("2097152"),
		"created_at":     "2024-03-05T08:00:00Z",
		"bundle_moniker": "EU-1GB",
	}

	mapped, ok := Map(models.TableUsage, rec, simsy)
	require.True(t, ok)
	assert.Equal(t, "89440000001", mapped.Values["iccid"])
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), mapped.Values["usage_date"])
	assert.Equal(t, int64(2097152), mapped.Values["charged_bytes"])
	assert.Equal(t, "2024-03-05T08:00:00Z", mapped.Watermark)

	delete(rec, "event_start")
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), UsageDate(rec))

	delete(rec, "created_at")
	assert.Nil(t, UsageDate(rec))
}

func TestMap_UsageChargedBytes(t *testing.T) {
	tests := []struct {
		name    string
		charged any
		present bool
		want    any
		ok      bool
	}{
		{"number", json.Number("4096"), true, int64(4096), true},
		{"numeric string", "4096", true, int64(4096), true},
		{"absent", nil, false, int64(0), true},
		{"null", nil, true, int64(0), true},
		{"not a number", "4 KB", true, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := models.SourceRecord{
				"usage_id":    "u-1",
				"iccid":       "89440000001",
				"event_start": "2024-03-01T10:00:00Z",
				"created_at":  "2024-03-01T10:05:00Z",
			}
			if tt.present {
				rec["charged_bytes"] = tt.charged
			}

			mapped, ok := Map(models.TableUsage, rec, simsy)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, mapped.Values["charged_bytes"])
			}
		})
	}
}

func TestEffectiveStatus(t *testing.T) {
	tests := []struct {
		name string
		rec  models.SourceRecord
		want any
	}{
		{"primary", models.SourceRecord{"status": "active", "state": "x"}, "active"},
		{"blank primary falls back", models.SourceRecord{"status": "  ", "bundle_status": "expired"}, "expired"},
		{"instance status", models.SourceRecord{"status": nil, "instance_status": "suspended"}, "suspended"},
		{"state last", models.SourceRecord{"state": "pending"}, "pending"},
		{"none", models.SourceRecord{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveStatus(tt.rec))
		})
	}
}

func TestMap_CatalogNumbers(t *testing.T) {
	rec := models.SourceRecord{
		"bundle_moniker":  "EU-1GB",
		"iccid":           "8944",
		"allowance_bytes": "1073741824",
		"list_price":      json.Number("4.99"),
		"collected_at":    "2024-01-01T00:00:00Z",
	}
	mapped, ok := Map(models.TableBundleCatalog, rec, simsy)
	require.True(t, ok)
	assert.Equal(t, int64(1073741824), mapped.Values["allowance_bytes"])
	assert.Equal(t, 4.99, mapped.Values["list_price"])
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), mapped.Values["collected_at"])
}

func TestTenantFields(t *testing.T) {
	name, id := TenantFields(models.SourceRecord{"tenant_name": " Allsee ", "tenant_id": ""})
	require.NotNil(t, name)
	assert.Equal(t, "Allsee", *name)
	assert.Nil(t, id)
}
