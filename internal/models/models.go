// Package models holds the data types shared across the sync engine.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Table names. Target tables share their name with the pipeline that fills them.
const (
	TableEndpoints       = "endpoints"
	TableBundleInstances = "bundle_instances"
	TableUsage           = "usage_records"
	TableBundleCatalog   = "bundle_catalog"

	// StageUsageBackfill labels the backfill pass in a run's results.
	StageUsageBackfill = "usage_backfill"
	// StageSetup labels the single result of a run that failed during setup.
	StageSetup = "setup"
)

// Role is a tenant's place in the tenant hierarchy.
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleCustomer Role = "customer"
)

// CanonicalTenant is a node of the tenant forest.
type CanonicalTenant struct {
	TenantID       string  `json:"tenant_id" yaml:"tenant_id"`
	TenantName     string  `json:"tenant_name" yaml:"tenant_name"`
	ParentTenantID *string `json:"parent_tenant_id,omitempty" yaml:"parent_tenant_id"`
	Role           Role    `json:"role" yaml:"role"`
}

// SourceRecord is a raw row decoded from the source API. It is read-only and
// never written to the target store verbatim.
type SourceRecord map[string]any

// String returns the value under key rendered as a string. Missing keys and
// JSON nulls report ok=false.
func (r SourceRecord) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

// Text returns the trimmed string value under key, or nil when the value is
// missing, null or blank.
func (r SourceRecord) Text(key string) *string {
	s, ok := r.String(key)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Int64 returns the integer value under key.
func (r SourceRecord) Int64(key string) (int64, bool) {
	switch t := r[key].(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	}
	return 0, false
}

// Float64 returns the numeric value under key.
func (r SourceRecord) Float64(key string) (float64, bool) {
	switch t := r[key].(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f, true
		}
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	}
	return 0, false
}

// Time parses the value under key as an RFC 3339 timestamp. Source timestamps
// without a zone are read as UTC.
func (r SourceRecord) Time(key string) (time.Time, bool) {
	s := r.Text(key)
	if s == nil {
		return time.Time{}, false
	}
	return ParseTimestamp(*s)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats the source API emits.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// MappedRecord is a sanitised row ready for the target store.
type MappedRecord struct {
	Table    string
	SourceID string
	// TenantID is never empty: records that fail tenant resolution are
	// dropped before mapping.
	TenantID string
	Values   map[string]any
	// Watermark is the record's value of the table's watermark column.
	Watermark string
}

// TableSpec describes one source table and its target.
type TableSpec struct {
	Name            string
	SourceTable     string
	SelectColumns   []string
	WatermarkColumn string
	OrderColumn     string

	// Columns lists the target columns in insert order. It always contains
	// source_id, tenant_id and synced_at.
	Columns         []string
	ConflictColumns []string
	// MutableColumns are overwritten on conflict; everything else is an
	// identity field and keeps its first written value.
	MutableColumns []string

	// IncrementalWatermark makes the pipeline commit a watermark after every
	// written chunk instead of once at the end.
	IncrementalWatermark bool
}
