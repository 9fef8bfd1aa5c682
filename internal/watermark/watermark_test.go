package watermark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z", 0},
		{"instants across zones", "2024-01-01T01:00:00+01:00", "2024-01-01T00:30:00Z", -1},
		{"fraction beats lexical order", "2024-01-01T00:00:00.5Z", "2024-01-01T00:00:00Z", 1},
		{"non timestamps are lexical", "b", "a", 1},
		{"empty sorts first", "", "a", -1},
		{"anything beats empty", "a", "", 1},
		{"mixed falls back to lexical", "2024-01-01", "zzz", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestAdvances(t *testing.T) {
	assert.True(t, Advances("", "2024-01-01T00:00:00Z"))
	assert.True(t, Advances("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"))
	assert.False(t, Advances("2024-01-02T00:00:00Z", "2024-01-01T00:00:00Z"))
	assert.False(t, Advances("2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z"))
	assert.False(t, Advances("2024-01-01T00:00:00Z", ""))
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	got, err := s.Get(ctx, "endpoints")
	require.NoError(t, err)
	assert.Empty(t, got)

	moved, err := s.Put(ctx, "endpoints", "2024-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = s.Put(ctx, "endpoints", "2024-02-01T10:00:00Z")
	require.NoError(t, err)
	assert.False(t, moved, "older watermark must be ignored")

	moved, err = s.Put(ctx, "endpoints", "")
	require.NoError(t, err)
	assert.False(t, moved)

	got, err = s.Get(ctx, "endpoints")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T10:00:00Z", got)

	moved, err = s.Put(ctx, "endpoints", "2024-03-01T10:00:01Z")
	require.NoError(t, err)
	assert.True(t, moved)

	other, err := s.Get(ctx, "usage_records")
	require.NoError(t, err)
	assert.Empty(t, other, "watermarks are per table")

	require.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}
