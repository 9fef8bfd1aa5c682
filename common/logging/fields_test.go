package logging

import (
	"errors"
	"log/slog"
	"testing"
)

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name      string
		attr      slog.Attr
		wantKey   string
		wantValue string
	}{
		{"service", Service("reportsync"), FieldService, "reportsync"},
		{"run id", RunID("0192"), FieldRunID, "0192"},
		{"table", Table("bundle_instances"), FieldTable, "bundle_instances"},
		{"records", Records(12), FieldRecords, "12"},
		{"dropped", Dropped(3), FieldDropped, "3"},
		{"watermark", Watermark("2024-05-01T00:00:00Z"), FieldWatermark, "2024-05-01T00:00:00Z"},
		{"chunk", Chunk(2), FieldChunk, "2"},
		{"status", Status("partial"), FieldStatus, "partial"},
		{"duration", Duration(1500), FieldDuration, "1500"},
		{"error", Error(errors.New("boom")), FieldError, "boom"},
		{"method", Method("POST"), FieldMethod, "POST"},
		{"path", Path("/api/v1/sync/trigger"), FieldPath, "/api/v1/sync/trigger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("expected key %q, got %q", tt.wantKey, tt.attr.Key)
			}
			if tt.attr.Value.String() != tt.wantValue {
				t.Errorf("expected value %q, got %q", tt.wantValue, tt.attr.Value.String())
			}
		})
	}
}
