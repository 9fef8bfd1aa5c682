// Package watermark stores the per-table sync cursors.
package watermark

import (
	"context"
	"strings"
	"sync"

	"github.com/telhawk-systems/reportsync/internal/models"
)

// Store persists one watermark per table. Implementations never move a
// watermark backwards: a Put of a value that does not compare greater than
// the stored one is ignored.
type Store interface {
	// Get returns the table's watermark, or "" when none has been committed.
	Get(ctx context.Context, table string) (string, error)
	// Put advances the table's watermark and reports whether it moved.
	Put(ctx context.Context, table, value string) (bool, error)
	Ping(ctx context.Context) error
}

// Compare orders two watermarks. Values that both parse as timestamps compare
// as instants, anything else compares lexicographically. The empty string
// sorts before every other value.
func Compare(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	ta, okA := models.ParseTimestamp(a)
	tb, okB := models.ParseTimestamp(b)
	if okA && okB {
		if c := ta.Compare(tb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// Advances reports whether next would move a watermark currently at current.
func Advances(current, next string) bool {
	return next != "" && Compare(next, current) > 0
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, table string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[table], nil
}

func (m *MemoryStore) Put(_ context.Context, table, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !Advances(m.values[table], value) {
		return false, nil
	}
	m.values[table] = value
	return true, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
