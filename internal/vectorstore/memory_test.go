package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AddAndQuery(t *testing.T) {
	s := NewMemory(4)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "a", []float32{1, 0, 0, 0}, map[string]string{"conversation_id": "c1"}))
	require.NoError(t, s.Add(ctx, "b", []float32{0, 1, 0, 0}, map[string]string{"conversation_id": "c1"}))
	require.NoError(t, s.Add(ctx, "c", []float32{1, 0, 0, 0}, map[string]string{"conversation_id": "c2"}))

	results, err := s.Query(ctx, []float32{1, 0, 0, 0}, 10, map[string]string{"conversation_id": "c1"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
}

func TestMemoryStore_DeleteRemovesPoint(t *testing.T) {
	s := NewMemory(2)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "x", []float32{1, 1}, nil))
	require.NoError(t, s.Delete(ctx, "x"))

	results, err := s.Query(ctx, []float32{1, 1}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_QueryRespectsK(t *testing.T) {
	s := NewMemory(2)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Add(ctx, string(rune('a'+i)), []float32{1, float32(i)}, nil))
	}
	results, err := s.Query(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
