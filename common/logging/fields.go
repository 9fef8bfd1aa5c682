package logging

import "log/slog"

// Common field names for consistent logging across the sync engine.
const (
	FieldService   = "service"
	FieldRunID     = "run_id"
	FieldTable     = "table"
	FieldRecords   = "records"
	FieldDropped   = "dropped"
	FieldWatermark = "watermark"
	FieldChunk     = "chunk"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldMethod    = "method"
	FieldPath      = "path"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// RunID returns a slog attribute for a sync run ID.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// Table returns a slog attribute for a source/target table name.
func Table(name string) slog.Attr {
	return slog.String(FieldTable, name)
}

// Records returns a slog attribute for a record count.
func Records(n int) slog.Attr {
	return slog.Int(FieldRecords, n)
}

// Dropped returns a slog attribute for the number of dropped records.
func Dropped(n int) slog.Attr {
	return slog.Int(FieldDropped, n)
}

// Watermark returns a slog attribute for a watermark value.
func Watermark(v string) slog.Attr {
	return slog.String(FieldWatermark, v)
}

// Chunk returns a slog attribute for a write chunk index.
func Chunk(i int) slog.Attr {
	return slog.Int(FieldChunk, i)
}

// Status returns a slog attribute for a status string.
func Status(s string) slog.Attr {
	return slog.String(FieldStatus, s)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}
