package database

import (
	"context"
	"time"
)

// Standard timeout durations for target store operations.
const (
	// DefaultQueryTimeout bounds reads (watermarks, run log, aggregates).
	DefaultQueryTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds a single upsert chunk or watermark write.
	DefaultWriteTimeout = 60 * time.Second

	// DefaultBulkTimeout bounds the backfill transaction and view refreshes.
	DefaultBulkTimeout = 10 * time.Minute
)

// QueryContext creates a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext creates a context with DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}

// BulkContext creates a context with DefaultBulkTimeout.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultBulkTimeout)
}
