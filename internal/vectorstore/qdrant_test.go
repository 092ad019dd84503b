package vectorstore

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsDimensionMismatch(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"vector dimension", errors.New("rpc error: Vector dimension error: expected dim: 768, got 384"), true},
		{"wrong input", errors.New("Wrong input: expected 768, got 1536"), true},
		{"size mismatch", errors.New("size mismatch on upsert"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, isDimensionMismatch(c.err))
		})
	}
}

func TestPointID_PassesThroughValidUUID(t *testing.T) {
	id := uuid.New().String()
	got, remapped := pointID(id)
	assert.Equal(t, id, got)
	assert.False(t, remapped)
}

func TestPointID_RemapsNonUUIDDeterministically(t *testing.T) {
	got1, remapped1 := pointID("https://example.com/report-42")
	got2, remapped2 := pointID("https://example.com/report-42")
	assert.True(t, remapped1)
	assert.True(t, remapped2)
	assert.Equal(t, got1, got2)
	assert.NotEqual(t, "https://example.com/report-42", got1)
}
